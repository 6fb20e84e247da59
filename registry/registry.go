package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

// Channel is one logical bidirectional link to a connected guest, as
// furnished by the external peer transport. Open reports send readiness.
type Channel interface {
	Send(payload []byte) error
	Open() bool
}

// Registry keeps one channel per connected guest for broadcast fan-out.
// Entries are added when a channel reports open and are not actively pruned:
// sends are guarded by the Open check, so a stale entry is a harmless no-op
// until the guest rejoins and overwrites it.
type Registry struct {
	logger   zerolog.Logger
	mx       *sync.RWMutex
	channels map[string]Channel
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger:   logger.With().Str("component", "registry").Logger(),
		mx:       &sync.RWMutex{},
		channels: make(map[string]Channel),
	}
}

func (r *Registry) Put(connID string, ch Channel) {
	r.mx.Lock()
	r.channels[connID] = ch
	r.mx.Unlock()
	r.logger.Debug().Str("connID", connID).Msg("channel registered")
}

func (r *Registry) Remove(connID string) {
	r.mx.Lock()
	delete(r.channels, connID)
	r.mx.Unlock()
	r.logger.Debug().Str("connID", connID).Msg("channel removed")
}

func (r *Registry) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.channels)
}

// Broadcast sends payload to every currently open channel and reports how
// many sends went through. Send failures are logged and skipped; delivery is
// repaired by the next broadcast, never retried.
func (r *Registry) Broadcast(payload []byte) int {
	r.mx.RLock()
	targets := make(map[string]Channel, len(r.channels))
	for id, ch := range r.channels {
		targets[id] = ch
	}
	r.mx.RUnlock()

	var sent int
	for id, ch := range targets {
		if !ch.Open() {
			continue
		}
		if err := ch.Send(payload); err != nil {
			r.logger.Debug().Err(err).Str("connID", id).Msg("send failed, skipping")
			continue
		}
		sent++
	}
	if sent == 0 && len(targets) > 0 {
		r.logger.Debug().Msg("broadcast did not reach anyone")
	}
	return sent
}
