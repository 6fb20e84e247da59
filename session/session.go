package session

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/tossapol/jukebox-party/model"
	"github.com/tossapol/jukebox-party/playback"
	"github.com/tossapol/jukebox-party/protocol"
)

// MasterStore is the persisted remembered-master id surviving host restarts.
type MasterStore interface {
	MasterID(hostID string) (string, error)
	SaveMasterID(hostID, masterID string) error
}

// Notifier surfaces session events on the host display, e.g. as toasts.
// Kind is one of "join", "add", "info", "alert".
type Notifier interface {
	Notify(kind, message string)
}

// LogNotifier emits notifications as structured log events.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(kind, message string) {
	n.Logger.Info().Str("kind", kind).Msg(message)
}

// Machine holds the single authoritative copy of the session state: queue,
// current item, roster and master id. All methods must be called from the
// owning event loop; there is no concurrent mutation.
type Machine struct {
	logger zerolog.Logger
	hostID string
	store  MasterStore
	player playback.Player
	notify Notifier

	queue    []model.Song
	current  *model.Song
	roster   map[string]model.User
	masterID string
}

type MachineConfig struct {
	Logger   *zerolog.Logger
	HostID   string
	Store    MasterStore
	Player   playback.Player
	Notifier Notifier
}

func NewMachine(cfg MachineConfig) *Machine {
	logger := cfg.Logger.With().Str("component", "session").Logger()

	notify := cfg.Notifier
	if notify == nil {
		notify = LogNotifier{Logger: logger}
	}

	m := &Machine{
		logger: logger,
		hostID: cfg.HostID,
		store:  cfg.Store,
		player: cfg.Player,
		notify: notify,
		roster: make(map[string]model.User),
	}

	masterID, err := cfg.Store.MasterID(cfg.HostID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load remembered master")
	} else {
		m.masterID = masterID
	}
	return m
}

func (m *Machine) isMaster(userID string) bool {
	return m.masterID != "" && userID == m.masterID
}

// rememberedMaster reads the persisted master id, falling back to the
// in-memory one when the store is unavailable.
func (m *Machine) rememberedMaster() string {
	masterID, err := m.store.MasterID(m.hostID)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to read remembered master")
		return m.masterID
	}
	return masterID
}

// Join upserts the user into the roster. When the joining id matches the
// remembered master id the user is re-flagged master and, if the session's
// master differs, re-elected on the spot. Joining twice with the same id
// replaces the prior entry, which is how reconnects are absorbed.
func (m *Machine) Join(u model.User) model.User {
	if remembered := m.rememberedMaster(); remembered != "" && u.ID == remembered {
		u.IsMaster = true
		if m.masterID != u.ID {
			m.masterID = u.ID
		}
		m.notify.Notify("info", "Welcome back Master "+u.Name+"!")
	}

	m.roster[u.ID] = u

	if !u.IsMaster {
		m.notify.Notify("join", u.Name+" joined")
	}
	m.logger.Debug().Str("userID", u.ID).Str("name", u.Name).
		Bool("isMaster", u.IsMaster).Msg("user joined")
	return u
}

// AddSong validates the submitted URL and appends a song with a placeholder
// title. It reports the appended song (nil when the URL is rejected) and
// whether an automatic Next should be scheduled because nothing was playing.
func (m *Machine) AddSong(url string, u model.User) (*model.Song, bool) {
	videoID, ok := protocol.ExtractVideoID(url)
	if !ok {
		m.logger.Debug().Str("url", url).Msg("rejected url, no video id")
		return nil, false
	}

	song := model.Song{
		ID:        videoID,
		Title:     protocol.PlaceholderTitle(videoID),
		Sender:    u.Name,
		Thumbnail: protocol.ThumbnailURL(videoID),
	}

	autoNext := m.current == nil && len(m.queue) == 0
	m.queue = append(m.queue, song)

	m.logger.Debug().Str("videoID", videoID).Str("sender", u.Name).
		Bool("autoNext", autoNext).Msg("song queued")
	return &song, autoNext
}

// SetTitle patches every queue entry (and the current song) matching the
// video id with the enriched title.
func (m *Machine) SetTitle(videoID, title string) {
	for i := range m.queue {
		if m.queue[i].ID == videoID {
			m.queue[i].Title = title
		}
	}
	if m.current != nil && m.current.ID == videoID {
		m.current.Title = title
	}
}

// Play delegates to the playback collaborator. Only the master may call it;
// anyone else is silently ignored.
func (m *Machine) Play(u model.User) bool {
	if !m.isMaster(u.ID) {
		return false
	}
	m.player.Play()
	return true
}

func (m *Machine) Pause(u model.User) bool {
	if !m.isMaster(u.ID) {
		return false
	}
	m.player.Pause()
	return true
}

// Stop clears the current song and empties the queue. Master gated.
func (m *Machine) Stop(u model.User) bool {
	if !m.isMaster(u.ID) {
		return false
	}
	m.stop()
	return true
}

func (m *Machine) stop() {
	m.player.Stop()
	m.current = nil
	m.queue = nil
	m.logger.Debug().Msg("playback stopped, queue cleared")
}

// Next pops the head of the queue (or of override when supplied) into the
// current song. A nil user marks an automatic invocation, which bypasses the
// master gate. An empty queue behaves as Stop.
func (m *Machine) Next(u *model.User, override []model.Song) bool {
	if u != nil && !m.isMaster(u.ID) {
		return false
	}

	queue := m.queue
	if override != nil {
		queue = override
	}
	if len(queue) == 0 {
		m.stop()
		return true
	}

	next := queue[0]
	m.queue = queue[1:]
	m.current = &next
	m.player.Load(next.ID)
	m.player.Play()

	m.logger.Debug().Str("videoID", next.ID).Str("title", next.Title).Msg("now playing")
	return true
}

// PromoteMaster is the host-side administrative action that hands transport
// control to a connected user, outside the command protocol.
func (m *Machine) PromoteMaster(userID string) bool {
	u, ok := m.roster[userID]
	if !ok {
		return false
	}

	m.masterID = userID
	if err := m.store.SaveMasterID(m.hostID, userID); err != nil {
		m.logger.Error().Err(err).Str("userID", userID).Msg("failed to persist master id")
	}
	for id, entry := range m.roster {
		entry.IsMaster = id == userID
		m.roster[id] = entry
	}

	m.notify.Notify("info", u.Name+" is now the DJ Master!")
	return true
}

// MasterID returns the currently elected master id, or empty.
func (m *Machine) MasterID() string {
	return m.masterID
}

// Snapshot renders the full authoritative state for broadcast. At most one
// user carries the master flag, and the current song is carried separately
// from the queue.
func (m *Machine) Snapshot() protocol.Snapshot {
	queue := make([]model.Song, len(m.queue))
	copy(queue, m.queue)

	users := make([]model.User, 0, len(m.roster))
	for id, u := range m.roster {
		u.IsMaster = m.isMaster(id)
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	snap := protocol.Snapshot{
		Type:  protocol.TypeUpdateState,
		Queue: queue,
		Users: users,
	}
	if m.current != nil {
		current := *m.current
		snap.CurrentSong = &current
		snap.CurrentID = &current.ID
	}
	if m.masterID != "" {
		masterID := m.masterID
		snap.MasterID = &masterID
	}
	return snap
}
