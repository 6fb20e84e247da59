package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tossapol/jukebox-party/model"
	"github.com/tossapol/jukebox-party/playback"
	"github.com/tossapol/jukebox-party/protocol"
	"github.com/tossapol/jukebox-party/registry"
)

// Broadcast and auto-advance delays. These are scheduling hints that give
// the playback collaborator and freshly opened channels a moment to settle;
// correctness does not depend on them.
const (
	defaultOpenBroadcastDelay = 500 * time.Millisecond
	defaultJoinBroadcastDelay = 200 * time.Millisecond
	defaultAddBroadcastDelay  = 100 * time.Millisecond
	defaultAutoNextDelay      = 500 * time.Millisecond

	taskBacklog = 256
)

type (
	// ChannelRegistry is the host-side channel bookkeeping used for fan-out.
	ChannelRegistry interface {
		Put(connID string, ch registry.Channel)
		Remove(connID string)
		Broadcast(payload []byte) int
	}

	// TitleResolver is the external metadata enrichment collaborator.
	TitleResolver interface {
		Title(ctx context.Context, videoURL string) (string, error)
	}

	Delays struct {
		OpenBroadcast time.Duration
		JoinBroadcast time.Duration
		AddBroadcast  time.Duration
		AutoNext      time.Duration
	}

	Config struct {
		Logger   *zerolog.Logger
		HostID   string
		Registry ChannelRegistry
		Store    MasterStore
		Player   playback.Player
		Resolver TitleResolver
		Notifier Notifier
		Delays   Delays
	}

	// Loop confines the Machine to a single goroutine. Transport callbacks
	// and timers post closures into the task channel; nothing else touches
	// the state. Every scheduled broadcast pushes the full current snapshot
	// to every open channel, so a guest that missed one converges on the
	// next.
	Loop struct {
		logger   zerolog.Logger
		machine  *Machine
		reg      ChannelRegistry
		player   playback.Player
		resolver TitleResolver
		notify   Notifier
		delays   Delays

		tasks chan func()
		done  chan struct{}
		once  sync.Once
	}
)

func (d Delays) withDefaults() Delays {
	if d.OpenBroadcast == 0 {
		d.OpenBroadcast = defaultOpenBroadcastDelay
	}
	if d.JoinBroadcast == 0 {
		d.JoinBroadcast = defaultJoinBroadcastDelay
	}
	if d.AddBroadcast == 0 {
		d.AddBroadcast = defaultAddBroadcastDelay
	}
	if d.AutoNext == 0 {
		d.AutoNext = defaultAutoNextDelay
	}
	return d
}

func NewLoop(cfg Config) *Loop {
	logger := cfg.Logger.With().Str("component", "session-loop").Logger()

	notify := cfg.Notifier
	if notify == nil {
		notify = LogNotifier{Logger: logger}
	}

	machine := NewMachine(MachineConfig{
		Logger:   cfg.Logger,
		HostID:   cfg.HostID,
		Store:    cfg.Store,
		Player:   cfg.Player,
		Notifier: notify,
	})

	return &Loop{
		logger:   logger,
		machine:  machine,
		reg:      cfg.Registry,
		player:   cfg.Player,
		resolver: cfg.Resolver,
		notify:   notify,
		delays:   cfg.Delays.withDefaults(),
		tasks:    make(chan func(), taskBacklog),
		done:     make(chan struct{}),
	}
}

// Run consumes tasks and player events until ctx is canceled.
func (l *Loop) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		l.once.Do(func() { close(l.done) })
		l.logger.Debug().Msg("session loop stopped")
		wg.Done()
	}()

	l.logger.Info().Msg("session loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			task()
		case state := <-l.player.Events():
			l.handlePlayerState(state)
		}
	}
}

func (l *Loop) post(task func()) {
	select {
	case l.tasks <- task:
	case <-l.done:
	}
}

func (l *Loop) schedule(d time.Duration, task func()) {
	time.AfterFunc(d, func() { l.post(task) })
}

func (l *Loop) broadcast() {
	payload, err := protocol.EncodeSnapshot(l.machine.Snapshot())
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	l.reg.Broadcast(payload)
}

// HandleOpen registers a freshly opened channel and pushes an initial
// snapshot shortly after, covering guests that suspect staleness before
// their JOIN is processed.
func (l *Loop) HandleOpen(connID string, ch registry.Channel) {
	l.post(func() {
		l.reg.Put(connID, ch)
		l.schedule(l.delays.OpenBroadcast, l.broadcast)
	})
}

// HandleClose drops the channel from the registry. The roster entry of a
// departed guest stays until a rejoin with the same id overwrites it.
func (l *Loop) HandleClose(connID string) {
	l.post(func() {
		l.reg.Remove(connID)
	})
}

// HandleData feeds one raw inbound frame through the codec and the state
// machine. Malformed and unrecognized messages are dropped with no side
// effect and no response.
func (l *Loop) HandleData(connID string, payload []byte) {
	cmd, err := protocol.Decode(payload)
	if err != nil {
		l.logger.Debug().Err(err).Str("connID", connID).Msg("dropping message")
		return
	}
	l.post(func() { l.apply(cmd) })
}

func (l *Loop) apply(cmd protocol.Command) {
	switch cmd.Type {
	case protocol.TypeJoin:
		l.machine.Join(cmd.User)
		l.schedule(l.delays.JoinBroadcast, l.broadcast)

	case protocol.TypeAddSong:
		song, autoNext := l.machine.AddSong(cmd.URL, cmd.User)
		if song == nil {
			return
		}
		go l.enrich(cmd.URL, *song, cmd.User)
		if autoNext {
			l.schedule(l.delays.AutoNext, func() {
				l.machine.Next(nil, nil)
				l.broadcast()
			})
		}
		l.schedule(l.delays.AddBroadcast, l.broadcast)

	case protocol.TypePlay:
		l.machine.Play(cmd.User)

	case protocol.TypePause:
		l.machine.Pause(cmd.User)

	case protocol.TypeStop:
		if l.machine.Stop(cmd.User) {
			l.broadcast()
		}

	case protocol.TypeNext:
		if l.machine.Next(&cmd.User, nil) {
			l.broadcast()
		}

	case protocol.TypeGetState:
		l.broadcast()

	default:
		// UPDATE_STATE has no meaning host-side.
		l.logger.Debug().Str("type", cmd.Type).Msg("ignoring message")
	}
}

// enrich runs the best-effort title lookup off the loop and patches the
// queued entry in place when it resolves. Failures keep the placeholder.
func (l *Loop) enrich(url string, song model.Song, sender model.User) {
	title, err := l.resolver.Title(context.Background(), url)
	if err != nil || title == "" {
		if err != nil {
			l.logger.Debug().Err(err).Str("url", url).Msg("title enrichment failed")
		}
		l.post(func() {
			l.notify.Notify("add", sender.Name+" added: "+song.Title)
		})
		return
	}
	l.post(func() {
		l.machine.SetTitle(song.ID, title)
		l.notify.Notify("add", sender.Name+" added: "+title)
		l.broadcast()
	})
}

func (l *Loop) handlePlayerState(state playback.State) {
	l.logger.Debug().Stringer("state", state).Msg("player state changed")
	if state == playback.StateEnded {
		l.machine.Next(nil, nil)
		l.broadcast()
	}
}

// Promote hands master control to a roster user. This is the administrative
// host-side action; it never arrives over the wire.
func (l *Loop) Promote(userID string) {
	l.post(func() {
		if l.machine.PromoteMaster(userID) {
			l.broadcast()
		}
	})
}

// Snapshot returns the current authoritative state, serialized through the
// loop so callers never observe a half-applied transition.
func (l *Loop) Snapshot() protocol.Snapshot {
	result := make(chan protocol.Snapshot, 1)
	l.post(func() { result <- l.machine.Snapshot() })
	select {
	case snap := <-result:
		return snap
	case <-l.done:
		return protocol.Snapshot{}
	}
}
