package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tossapol/jukebox-party/registry"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 4096
	defaultWebsocketWriteBufferSize    = 4096
	defaultWebSocketMaxMessageSize     = 8192
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give a guest to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	sendBacklog = 64
)

var (
	ErrUnexpected  = errors.New("unexpected server error")
	ErrSendBacklog = errors.New("send backlog full")
	ErrChannelGone = errors.New("channel is not open")
)

type (
	// Session receives transport callbacks: a channel opening, inbound raw
	// frames and the channel going away. It is the only consumer of the
	// adapter; framing beyond JSON text messages does not exist.
	Session interface {
		HandleOpen(connID string, ch registry.Channel)
		HandleClose(connID string)
		HandleData(connID string, payload []byte)
	}

	Config struct {
		Logger     *zerolog.Logger
		Session    Session
		ListenAddr string
	}

	Server struct {
		session Session
		ws      *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:  cfg.Logger.With().Str("component", "websocket-server").Logger(),
		session: cfg.Session,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/channel", srv.connect)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) connect(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	logger := srv.logger.With().Str("connID", connID).Logger()

	ch := &channel{
		conn: conn,
		send: make(chan []byte, sendBacklog),
	}
	ch.isOpen.Store(true)

	go ch.writePump(&logger)
	go srv.readPump(connID, ch, &logger)

	srv.session.HandleOpen(connID, ch)
	logger.Debug().Msg("guest channel opened")
}

func (srv *Server) readPump(connID string, ch *channel, logger *zerolog.Logger) {
	defer func() {
		ch.close(logger)
		srv.session.HandleClose(connID)
		logger.Debug().Msg("guest channel closed")
	}()

	conn := ch.conn
	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})
	if err := conn.SetReadDeadline(time.Now().Add(defaultPongWait)); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("connection closed")
			} else {
				logger.Debug().Err(err).Msg("unexpected error during receive")
			}
			return
		}
		srv.session.HandleData(connID, payload)
	}
}

// channel adapts one websocket connection to the registry.Channel contract.
// Open flips to false as soon as either pump dies; the registry's Open guard
// then skips the entry during broadcasts.
type channel struct {
	conn   *websocket.Conn
	send   chan []byte
	isOpen atomic.Bool
	once   sync.Once
}

func (ch *channel) Open() bool {
	return ch.isOpen.Load()
}

// Send queues a payload without blocking the session loop. A full backlog
// counts as a failed send; the next broadcast repairs it.
func (ch *channel) Send(payload []byte) error {
	if !ch.isOpen.Load() {
		return ErrChannelGone
	}
	select {
	case ch.send <- payload:
		return nil
	default:
		return ErrSendBacklog
	}
}

func (ch *channel) writePump(logger *zerolog.Logger) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		ch.close(logger)
	}()

	for {
		select {
		case <-pingTicker.C:
			if err := ch.conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
				logger.Error().Err(err).Msg("failed to set websocket write deadline")
				return
			}
			if err := ch.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logger.Debug().Err(err).Msg("failed to send ping")
				return
			}

		case payload, ok := <-ch.send:
			if !ok {
				return
			}
			if err := ch.conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
				logger.Error().Err(err).Msg("failed to set websocket write deadline")
				return
			}
			if err := ch.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug().Err(err).Msg("failed to write outgoing message")
				return
			}
		}
	}
}

func (ch *channel) close(logger *zerolog.Logger) {
	ch.once.Do(func() {
		ch.isOpen.Store(false)
		if err := ch.conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline)); err == nil {
			_ = ch.conn.WriteMessage(websocket.CloseMessage, []byte{})
		}
		if err := ch.conn.Close(); err != nil {
			logger.Debug().Err(err).Msg("failed to close websocket connection")
		}
	})
}
