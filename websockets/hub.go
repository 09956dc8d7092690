package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/rest"
)

// Hub tracks the open sessions of every endpoint. It is a managed object:
// Stop closes all sessions and waits for their read loops to finish.
type Hub struct {
	log      *logger.Logger
	open     *prometheus.GaugeVec
	received *prometheus.CounterVec
	sent     *prometheus.CounterVec

	mu       sync.Mutex
	sessions map[string]map[*Session]struct{}
	stopped  bool
	active   sync.WaitGroup
}

// NewHub creates a hub. A nil registry keeps the metrics private.
func NewHub(log *logger.Logger, registry *metrics.Registry) *Hub {
	if log == nil {
		log = logger.Get("websockets")
	}
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Hub{
		log:      log,
		open:     registry.Gauge("websocket_sessions_open", "Open WebSocket sessions.", "endpoint"),
		received: registry.Counter("websocket_messages_received_total", "WebSocket messages received.", "endpoint"),
		sent:     registry.Counter("websocket_messages_sent_total", "WebSocket messages sent.", "endpoint"),
		sessions: map[string]map[*Session]struct{}{},
	}
}

func (h *Hub) Name() string { return "websockets" }

func (h *Hub) Start(context.Context) error { return nil }

// Stop closes every session with 1001 and waits until they are gone or ctx
// expires, in which case the remaining connections are dropped.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	all := h.snapshot("")
	h.mu.Unlock()

	for _, s := range all {
		_ = s.Close(websocket.CloseGoingAway, "server shutting down")
	}
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		if len(all) > 0 {
			h.log.Info("WebSocket sessions closed", map[string]interface{}{"sessions": len(all)})
		}
		return nil
	case <-ctx.Done():
		for _, s := range all {
			_ = s.conn.Close()
		}
		return ctx.Err()
	}
}

// Sessions returns the open sessions of endpoint, or of every endpoint when
// endpoint is empty, oldest first.
func (h *Hub) Sessions(endpoint string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot(endpoint)
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

// Broadcast queues a message on every session of endpoint. Sessions that
// cannot take it are reported in the returned error.
func (h *Hub) Broadcast(endpoint string, kind int, data []byte) error {
	var err error
	for _, s := range h.Sessions(endpoint) {
		if sendErr := s.Send(kind, data); sendErr != nil && !errors.Is(sendErr, ErrSessionClosed) {
			err = multierr.Append(err, sendErr)
		}
	}
	return err
}

func (h *Hub) snapshot(endpoint string) []*Session {
	var out []*Session
	for path, set := range h.sessions {
		if endpoint != "" && path != endpoint {
			continue
		}
		for s := range set {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].opened.Before(out[j].opened) })
	return out
}

func (h *Hub) add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	set, ok := h.sessions[s.endpoint]
	if !ok {
		set = map[*Session]struct{}{}
		h.sessions[s.endpoint] = set
	}
	set[s] = struct{}{}
	h.active.Add(1)
	h.open.WithLabelValues(s.endpoint).Inc()
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions[s.endpoint], s)
	h.mu.Unlock()
	h.open.WithLabelValues(s.endpoint).Dec()
}

func (h *Hub) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Handler returns the handshake handler of an endpoint served at path.
func (h *Hub) Handler(path string, e Endpoint, cfg Config) gin.HandlerFunc {
	cfg.ApplyDefaults()
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  cfg.WriteTimeout.Std(),
		Subprotocols:      cfg.Subprotocols,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin:       originChecker(cfg.AllowedOrigins),
		Error:             handshakeError,
	}
	return func(c *gin.Context) {
		if h.isStopped() {
			rest.RespondError(c, apperrors.ServiceUnavailable("websockets"))
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Debug("WebSocket handshake rejected", map[string]interface{}{logger.FieldEndpoint: path, logger.FieldError: err.Error()})
			c.Abort()
			return
		}
		h.serve(path, e, cfg, conn, c.Request)
	}
}

func (h *Hub) serve(path string, e Endpoint, cfg Config, conn *websocket.Conn, r *http.Request) {
	s := &Session{
		id:       uuid.NewString(),
		endpoint: path,
		conn:     conn,
		request:  r,
		hub:      h,
		cfg:      cfg,
		opened:   time.Now(),
		send:     make(chan outbound, cfg.SendBufferSize),
		done:     make(chan struct{}),
		attrs:    map[string]any{},
	}
	if !h.add(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(cfg.WriteTimeout.Std()))
		_ = conn.Close()
		return
	}
	defer h.active.Done()

	conn.SetReadLimit(cfg.MaxMessageSize.Bytes())
	conn.SetPongHandler(func(string) error { return s.extendReadDeadline() })
	_ = s.extendReadDeadline()
	s.writer.Add(1)
	go s.writeLoop()

	log := h.log.WithFields(map[string]interface{}{logger.FieldEndpoint: path, logger.FieldSession: s.id})
	log.Debug("WebSocket session opened")
	if err := e.OnOpen(s); err != nil {
		log.Warn("WebSocket session rejected", map[string]interface{}{logger.FieldError: err.Error()})
		_ = s.Close(websocket.CloseInternalServerErr, "")
	}

	var code int
	var reason string
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			code, reason = closeStatus(err)
			break
		}
		select {
		case <-s.done:
			continue
		default:
		}
		h.received.WithLabelValues(path).Inc()
		e.OnMessage(s, kind, data)
	}

	s.finish()
	s.writer.Wait()
	_ = conn.Close()
	h.remove(s)
	e.OnClose(s, code, reason)
	log.Debug("WebSocket session closed", map[string]interface{}{"code": code, "reason": reason})
}

func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		return ce.Code, ce.Text
	case errors.Is(err, websocket.ErrReadLimit):
		return websocket.CloseMessageTooBig, "message too big"
	default:
		return websocket.CloseAbnormalClosure, ""
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, o := range allowed {
			if strings.EqualFold(strings.TrimSuffix(o, "/"), u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}

func handshakeError(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apperrors.FromStatus(status).ToResponse())
}
