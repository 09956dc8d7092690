package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types, as in RFC 6455.
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

var (
	// ErrSessionClosed is returned when sending to a closed session.
	ErrSessionClosed = errors.New("websockets: session closed")
	// ErrSendBufferFull is returned when a slow client has not drained its
	// send buffer.
	ErrSendBufferFull = errors.New("websockets: send buffer full")
)

type outbound struct {
	kind int
	data []byte
}

// Session is one open WebSocket connection. Send methods are safe for
// concurrent use; messages are written by a single goroutine per session.
type Session struct {
	id       string
	endpoint string
	conn     *websocket.Conn
	request  *http.Request
	hub      *Hub
	cfg      Config
	opened   time.Time

	send      chan outbound
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	writer    sync.WaitGroup

	mu    sync.RWMutex
	attrs map[string]any
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Endpoint returns the path of the endpoint the session connected to.
func (s *Session) Endpoint() string { return s.endpoint }

// Request returns the handshake request.
func (s *Session) Request() *http.Request { return s.request }

// Context returns the handshake request's context, which carries values
// such as the authenticated principal.
func (s *Session) Context() context.Context { return s.request.Context() }

// Subprotocol returns the negotiated subprotocol.
func (s *Session) Subprotocol() string { return s.conn.Subprotocol() }

// Hub returns the hub tracking the session.
func (s *Session) Hub() *Hub { return s.hub }

// OpenedAt returns when the handshake completed.
func (s *Session) OpenedAt() time.Time { return s.opened }

// Set stores a session attribute.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Get returns a session attribute.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Send queues a message of kind.
func (s *Session) Send(kind int, data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- outbound{kind: kind, data: data}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// SendText queues a text message.
func (s *Session) SendText(text string) error { return s.Send(TextMessage, []byte(text)) }

// SendJSON queues v encoded as a JSON text message.
func (s *Session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(TextMessage, data)
}

// Close sends a close frame and waits up to the write timeout for the client
// to acknowledge it before the connection is dropped.
func (s *Session) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(s.cfg.WriteTimeout.Std())
		err = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.finish()
		_ = s.conn.SetReadDeadline(deadline)
	})
	return err
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) writeLoop() {
	defer s.writer.Done()
	var tick <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval.Std())
		defer ticker.Stop()
		tick = ticker.C
	}
	timeout := s.cfg.WriteTimeout.Std()
	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := s.conn.WriteMessage(msg.kind, msg.data); err != nil {
				s.hub.log.Debug("WebSocket write failed", map[string]interface{}{"session": s.id, "error": err.Error()})
				_ = s.conn.Close()
				return
			}
			s.hub.sent.WithLabelValues(s.endpoint).Inc()
		case <-tick:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) extendReadDeadline() error {
	if s.cfg.PingInterval <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval.Std() + s.cfg.PongTimeout.Std()))
}
