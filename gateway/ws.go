package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yanzhidev/windsurf-rtnews/errors"
	"github.com/yanzhidev/windsurf-rtnews/item"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		// Streaming endpoint is origin-agnostic; auth is out of scope here.
		return true
	},
}

// wsSubscriber adapts a WebSocket connection to the broadcast.Subscriber
// interface. All writes are serialized through one mutex because gorilla
// connections allow a single concurrent writer.
type wsSubscriber struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	writeWait time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newWSSubscriber(conn *websocket.Conn, writeWait time.Duration, logger *slog.Logger) *wsSubscriber {
	return &wsSubscriber{
		id:        uuid.NewString(),
		conn:      conn,
		logger:    logger,
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(s.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return errors.WrapTransient(err, "wsSubscriber", "Send", "set deadline")
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.WrapTransient(errors.ErrSendFailed, "wsSubscriber", "Send", "write")
	}
	return nil
}

func (s *wsSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// handleWS upgrades the connection, registers it as a subscriber, pushes
// an initial statistics snapshot, and keeps the connection alive with
// pings until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sub := newWSSubscriber(conn, s.cfg.SendTimeout, s.logger)
	s.mgr.Register(sub)
	s.logger.Info("subscriber connected", "id", sub.ID(), "remote", r.RemoteAddr)

	if env, err := item.StatsEnvelope(s.pipeline.Snapshot()); err == nil {
		if payload, err := env.Encode(); err == nil {
			if err := sub.Send(r.Context(), payload); err != nil {
				s.mgr.Unregister(sub.ID())
				return
			}
		}
	}

	go s.pingLoop(sub)
	go s.readPump(sub)
}

// readPump drains client frames. Inbound payloads carry no meaning; the
// read loop exists to detect disconnects and service pong frames.
func (s *Server) readPump(sub *wsSubscriber) {
	defer func() {
		s.mgr.Unregister(sub.ID())
		s.logger.Info("subscriber disconnected", "id", sub.ID())
	}()

	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pingLoop(sub *wsSubscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			sub.writeMu.Lock()
			err := sub.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(sub.writeWait))
			sub.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
