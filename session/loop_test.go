package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tossapol/jukebox-party/playback"
	"github.com/tossapol/jukebox-party/protocol"
	"github.com/tossapol/jukebox-party/registry"
)

type fakeChannel struct {
	mx       sync.Mutex
	isOpen   bool
	payloads [][]byte
}

func (ch *fakeChannel) Open() bool {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	return ch.isOpen
}

func (ch *fakeChannel) Send(payload []byte) error {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	ch.payloads = append(ch.payloads, payload)
	return nil
}

// LastSnapshot decodes the most recent broadcast payload, if any.
func (ch *fakeChannel) LastSnapshot(t *testing.T) (protocol.Snapshot, bool) {
	t.Helper()
	ch.mx.Lock()
	defer ch.mx.Unlock()
	if len(ch.payloads) == 0 {
		return protocol.Snapshot{}, false
	}
	snap, err := protocol.DecodeSnapshot(ch.payloads[len(ch.payloads)-1])
	require.NoError(t, err)
	return snap, true
}

type fakeResolver struct {
	title string
	err   error
}

func (r *fakeResolver) Title(context.Context, string) (string, error) {
	return r.title, r.err
}

func newTestLoop(t *testing.T, resolver TitleResolver) (*Loop, *fakeChannel, *fakePlayer) {
	t.Helper()
	logger := zerolog.Nop()
	player := newFakePlayer()
	loop := NewLoop(Config{
		Logger:   &logger,
		HostID:   "host-1",
		Registry: registry.New(&logger),
		Store:    newMemStore(),
		Player:   player,
		Resolver: resolver,
		Delays: Delays{
			OpenBroadcast: time.Millisecond,
			JoinBroadcast: time.Millisecond,
			AddBroadcast:  time.Millisecond,
			AutoNext:      time.Millisecond,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go loop.Run(ctx, wg)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	ch := &fakeChannel{isOpen: true}
	loop.HandleOpen("conn-1", ch)
	return loop, ch, player
}

func TestLoopEndToEnd(t *testing.T) {
	loop, ch, player := newTestLoop(t, &fakeResolver{title: "A Real Title"})

	// Guest A joins, not master.
	loop.HandleData("conn-1", []byte(`{"type":"JOIN","user":{"id":"guest-a","name":"A"}}`))
	loop.HandleData("conn-1", []byte(`{"type":"GET_STATE"}`))

	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && len(snap.Users) == 1
	}, time.Second, 5*time.Millisecond)

	// Guest A adds a song while nothing is playing: the enqueue is
	// broadcast and an automatic Next promotes it within the bounded delay.
	loop.HandleData("conn-1", []byte(`{"type":"ADD_SONG","url":"https://www.youtube.com/watch?v=abc12345678","user":{"id":"guest-a","name":"A"}}`))

	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && snap.CurrentID != nil && *snap.CurrentID == "abc12345678" && len(snap.Queue) == 0
	}, time.Second, 5*time.Millisecond)

	snap, _ := ch.LastSnapshot(t)
	require.NotNil(t, snap.CurrentSong, spew.Sdump(snap))
	assert.Equal(t, "A", snap.CurrentSong.Sender)
	assert.Contains(t, player.Calls(), "load:abc12345678")

	// Enrichment patched the title in place without blocking playback start.
	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && snap.CurrentSong != nil && snap.CurrentSong.Title == "A Real Title"
	}, time.Second, 5*time.Millisecond)
}

func TestLoopDropsMalformedAndUnknown(t *testing.T) {
	loop, ch, _ := newTestLoop(t, &fakeResolver{})

	loop.HandleData("conn-1", []byte(`this is not json`))
	loop.HandleData("conn-1", []byte(`{"type":"SET_VOLUME","volume":11}`))
	loop.HandleData("conn-1", []byte(`{"type":"UPDATE_STATE","queue":[]}`))

	// A GET_STATE afterwards still yields a clean empty snapshot, proving
	// the session survived with no side effects.
	loop.HandleData("conn-1", []byte(`{"type":"GET_STATE"}`))
	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && len(snap.Queue) == 0 && len(snap.Users) == 0 && snap.CurrentID == nil
	}, time.Second, 5*time.Millisecond)
}

func TestLoopIgnoresNonMasterTransportControl(t *testing.T) {
	loop, ch, player := newTestLoop(t, &fakeResolver{})

	loop.HandleData("conn-1", []byte(`{"type":"JOIN","user":{"id":"guest-a","name":"A"}}`))
	loop.HandleData("conn-1", []byte(`{"type":"PLAY","user":{"id":"guest-a","name":"A"}}`))
	loop.HandleData("conn-1", []byte(`{"type":"PAUSE","user":{"id":"guest-a","name":"A"}}`))
	loop.HandleData("conn-1", []byte(`{"type":"STOP","user":{"id":"guest-a","name":"A"}}`))

	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && len(snap.Users) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, player.Calls())

	// After promotion the same guest controls playback.
	loop.Promote("guest-a")
	loop.HandleData("conn-1", []byte(`{"type":"PLAY","user":{"id":"guest-a","name":"A"}}`))

	require.Eventually(t, func() bool {
		for _, call := range player.Calls() {
			if call == "play" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestLoopAdvancesWhenPlaybackEnds(t *testing.T) {
	loop, ch, player := newTestLoop(t, &fakeResolver{})

	loop.HandleData("conn-1", []byte(`{"type":"ADD_SONG","url":"https://www.youtube.com/watch?v=abc12345678","user":{"id":"guest-a","name":"A"}}`))
	loop.HandleData("conn-1", []byte(`{"type":"ADD_SONG","url":"https://www.youtube.com/watch?v=def12345678","user":{"id":"guest-a","name":"A"}}`))

	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && snap.CurrentID != nil && *snap.CurrentID == "abc12345678"
	}, time.Second, 5*time.Millisecond)

	player.events <- playback.StateEnded

	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && snap.CurrentID != nil && *snap.CurrentID == "def12345678" && len(snap.Queue) == 0
	}, time.Second, 5*time.Millisecond)

	// Ending the last song stops the session.
	player.events <- playback.StateEnded
	require.Eventually(t, func() bool {
		snap, ok := ch.LastSnapshot(t)
		return ok && snap.CurrentID == nil
	}, time.Second, 5*time.Millisecond)
}

func TestLoopSnapshotIsSerialized(t *testing.T) {
	loop, _, _ := newTestLoop(t, &fakeResolver{})

	loop.HandleData("conn-1", []byte(`{"type":"JOIN","user":{"id":"guest-a","name":"A"}}`))

	require.Eventually(t, func() bool {
		return len(loop.Snapshot().Users) == 1
	}, time.Second, 5*time.Millisecond)
}
