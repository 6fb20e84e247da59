package playback

import "github.com/rs/zerolog"

// State values reported by the playback collaborator.
type State int

const (
	StateUnstarted State = iota
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unstarted"
	}
}

// Player is the externally supplied playback surface. The session core only
// drives it and reacts to its state changes; rendering and playback engine
// quirks live outside this module.
type Player interface {
	Load(mediaID string)
	Play()
	Pause()
	Stop()
	Seek(seconds float64)
	CurrentTime() float64
	Duration() float64

	// Events delivers state transitions. An ended event triggers an
	// automatic queue advance in the session.
	Events() <-chan State
}

// Noop is a headless player for hosts running without a real playback
// surface. It logs every call and never reports a state change on its own.
type Noop struct {
	logger zerolog.Logger
	events chan State
}

func NewNoop(logger *zerolog.Logger) *Noop {
	return &Noop{
		logger: logger.With().Str("component", "playback").Logger(),
		events: make(chan State, 1),
	}
}

func (n *Noop) Load(mediaID string) {
	n.logger.Info().Str("mediaID", mediaID).Msg("load")
}

func (n *Noop) Play()  { n.logger.Info().Msg("play") }
func (n *Noop) Pause() { n.logger.Info().Msg("pause") }
func (n *Noop) Stop()  { n.logger.Info().Msg("stop") }

func (n *Noop) Seek(seconds float64) {
	n.logger.Info().Float64("seconds", seconds).Msg("seek")
}

func (n *Noop) CurrentTime() float64 { return 0 }
func (n *Noop) Duration() float64    { return 0 }

func (n *Noop) Events() <-chan State { return n.events }

// Emit injects a state change, standing in for the real engine's callbacks.
func (n *Noop) Emit(s State) {
	select {
	case n.events <- s:
	default:
	}
}
