package guest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tossapol/jukebox-party/model"
	"github.com/tossapol/jukebox-party/protocol"
)

const (
	defaultHandshakeTimeout = 3 * time.Second
	defaultWriteDeadline    = 5 * time.Second
)

var (
	ErrDial   = errors.New("unable to connect to host")
	ErrSend   = errors.New("unable to send command")
	ErrClosed = errors.New("connection closed")
)

type (
	Config struct {
		Logger  *zerolog.Logger
		HostURL string
		Self    model.User
	}

	// Client is the guest-side glue: it dials the host, announces itself,
	// forwards commands and mirrors every pushed snapshot into a read-only
	// view. Commands are fire and forget; a guest cannot tell an ignored
	// command from a lost one, both just leave the view unchanged.
	Client struct {
		logger zerolog.Logger
		conn   *websocket.Conn
		self   model.User

		mx   sync.RWMutex
		view model.View

		wmx    sync.Mutex
		closed chan struct{}
		once   sync.Once
	}
)

// Dial connects to the host, sends JOIN followed by GET_STATE (so a rejoining
// guest converges immediately) and starts mirroring snapshots.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.HostURL, nil)
	if err != nil {
		return nil, errors.Join(ErrDial, err)
	}

	c := &Client{
		logger: cfg.Logger.With().Str("component", "guest-client").Logger(),
		conn:   conn,
		self:   cfg.Self,
		view:   model.View{Self: cfg.Self},
		closed: make(chan struct{}),
	}

	if err = c.send(protocol.Command{Type: protocol.TypeJoin, User: c.self}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err = c.send(protocol.Command{Type: protocol.TypeGetState}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("connection closed")
			} else {
				c.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}

		snap, err := protocol.DecodeSnapshot(payload)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping message")
			continue
		}

		c.mx.Lock()
		c.view = Reduce(c.view, snap, c.self)
		c.mx.Unlock()
		c.logger.Debug().Int("queue", len(snap.Queue)).Msg("snapshot applied")
	}
}

func (c *Client) send(cmd protocol.Command) error {
	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return errors.Join(ErrSend, err)
	}

	c.wmx.Lock()
	defer c.wmx.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if err = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return errors.Join(ErrSend, err)
	}
	if err = c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Join(ErrSend, err)
	}
	return nil
}

// View returns the latest mirrored state.
func (c *Client) View() model.View {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.view
}

// AddSong submits a media URL for enqueueing. The host rejects URLs it
// cannot extract a video id from, silently.
func (c *Client) AddSong(url string) error {
	return c.send(protocol.Command{Type: protocol.TypeAddSong, URL: url, User: c.self})
}

func (c *Client) Play() error {
	return c.send(protocol.Command{Type: protocol.TypePlay, User: c.self})
}

func (c *Client) Pause() error {
	return c.send(protocol.Command{Type: protocol.TypePause, User: c.self})
}

func (c *Client) Stop() error {
	return c.send(protocol.Command{Type: protocol.TypeStop, User: c.self})
}

func (c *Client) Next() error {
	return c.send(protocol.Command{Type: protocol.TypeNext, User: c.self})
}

// RequestState asks the host for an immediate snapshot, used when the guest
// suspects staleness.
func (c *Client) RequestState() error {
	return c.send(protocol.Command{Type: protocol.TypeGetState})
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}
