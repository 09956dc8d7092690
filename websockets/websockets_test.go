package websockets_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/testutil"
	"github.com/kbukum/gowizard/websockets"
)

type closed struct {
	code   int
	reason string
}

// recorder echoes every message and reports session closes.
type recorder struct {
	openErr error
	closes  chan closed
}

func newRecorder() *recorder { return &recorder{closes: make(chan closed, 8)} }

func (r *recorder) OnOpen(s *websockets.Session) error {
	if r.openErr != nil {
		return r.openErr
	}
	return s.SendText("welcome " + s.Request().URL.Query().Get("name"))
}

func (r *recorder) OnMessage(s *websockets.Session, kind int, data []byte) {
	_ = s.Send(kind, append([]byte("echo: "), data...))
}

func (r *recorder) OnClose(_ *websockets.Session, code int, reason string) {
	r.closes <- closed{code, reason}
}

func serve(t *testing.T, hub *websockets.Hub, e websockets.Endpoint, opts ...websockets.EndpointOption) *testutil.ResourceHarness {
	t.Helper()
	var cfg websockets.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return testutil.NewResourceHarness(t, testutil.WithResource(rest.ResourceFunc(func(r gin.IRouter) {
		r.GET("/ws", hub.Handler("/ws", e, cfg))
	})))
}

func dial(t *testing.T, url string, headers ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := http.Header{}
	for i := 0; i+1 < len(headers); i += 2 {
		h.Set(headers[i], headers[i+1])
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), h)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func mustDial(t *testing.T, url string, headers ...string) *websocket.Conn {
	t.Helper()
	conn, _, err := dial(t, url, headers...)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func readClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close error, got %v", err)
		}
		return ce.Code
	}
}

func waitClose(t *testing.T, r *recorder) closed {
	t.Helper()
	select {
	case c := <-r.closes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("expected OnClose")
		return closed{}
	}
}

func TestEchoSession(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	rec := newRecorder()
	h := serve(t, hub, rec)

	conn := mustDial(t, h.URL("/ws?name=ada"))
	if got := readText(t, conn); got != "welcome ada" {
		t.Errorf("expected welcome ada, got %q", got)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readText(t, conn); got != "echo: hi" {
		t.Errorf("expected echo: hi, got %q", got)
	}
	if n := hub.Count(); n != 1 {
		t.Errorf("expected 1 open session, got %d", n)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	if got := waitClose(t, rec); got.code != websocket.CloseNormalClosure || got.reason != "bye" {
		t.Errorf("expected 1000 bye, got %d %q", got.code, got.reason)
	}
	if n := hub.Count(); n != 0 {
		t.Errorf("expected no open sessions, got %d", n)
	}
}

func TestReadLimit(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	rec := newRecorder()
	h := serve(t, hub, rec, websockets.WithReadLimit(8))

	conn := mustDial(t, h.URL("/ws"))
	readText(t, conn)
	_ = conn.WriteMessage(websocket.TextMessage, []byte("far too long for the limit"))
	if code := readClose(t, conn); code != websocket.CloseMessageTooBig {
		t.Errorf("expected 1009, got %d", code)
	}
	if got := waitClose(t, rec); got.code != websocket.CloseMessageTooBig {
		t.Errorf("expected OnClose 1009, got %d", got.code)
	}
}

func TestOriginCheck(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	h := serve(t, hub, newRecorder(), websockets.WithOrigins("https://hello.example.com"))

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed", "https://hello.example.com", true},
		{"allowed case insensitive", "https://HELLO.example.com", true},
		{"other host", "https://evil.example.com", false},
		{"other scheme", "http://hello.example.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := dial(t, h.URL("/ws"), "Origin", tc.origin)
			if tc.ok && err != nil {
				t.Fatalf("expected handshake, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected handshake to fail")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("expected 403, got %v", resp)
				}
			}
		})
	}
}

func TestOnOpenErrorClosesSession(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	rec := newRecorder()
	rec.openErr = errors.New("no seats left")
	h := serve(t, hub, rec)

	conn := mustDial(t, h.URL("/ws"))
	if code := readClose(t, conn); code != websocket.CloseInternalServerErr {
		t.Errorf("expected 1011, got %d", code)
	}
	waitClose(t, rec)
}

func TestBroadcast(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	h := serve(t, hub, newRecorder())

	a := mustDial(t, h.URL("/ws?name=a"))
	b := mustDial(t, h.URL("/ws?name=b"))
	readText(t, a)
	readText(t, b)

	if err := hub.Broadcast("/ws", websockets.TextMessage, []byte("news")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		if got := readText(t, conn); got != "news" {
			t.Errorf("expected news, got %q", got)
		}
	}
	if n := len(hub.Sessions("/ws")); n != 2 {
		t.Errorf("expected 2 sessions, got %d", n)
	}
	if n := len(hub.Sessions("/other")); n != 0 {
		t.Errorf("expected no sessions on /other, got %d", n)
	}
}

func TestPing(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	h := serve(t, hub, newRecorder(), websockets.WithPingInterval(20*time.Millisecond))

	conn := mustDial(t, h.URL("/ws"))
	pinged := make(chan struct{})
	var once sync.Once
	conn.SetPingHandler(func(data string) error {
		once.Do(func() { close(pinged) })
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a ping")
	}
}

func TestStopClosesSessions(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	rec := newRecorder()
	h := serve(t, hub, rec)

	conn := mustDial(t, h.URL("/ws"))
	readText(t, conn)

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- hub.Stop(ctx)
	}()
	if code := readClose(t, conn); code != websocket.CloseGoingAway {
		t.Errorf("expected 1001, got %d", code)
	}
	if err := <-stopped; err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}
	waitClose(t, rec)

	_, resp, err := dial(t, h.URL("/ws"))
	if err == nil {
		t.Fatal("expected handshake after stop to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}

func TestSessionAttributes(t *testing.T) {
	hub := websockets.NewHub(logger.NewNop(), nil)
	ids := make(chan string, 1)
	h := serve(t, hub, websockets.EndpointFuncs{
		Open: func(s *websockets.Session) error {
			s.Set("user", "ada")
			return nil
		},
		Message: func(s *websockets.Session, _ int, _ []byte) {
			user, _ := s.Get("user")
			ids <- s.ID()
			_ = s.SendJSON(map[string]any{"user": user, "endpoint": s.Endpoint()})
		},
	})

	conn := mustDial(t, h.URL("/ws"))
	_ = conn.WriteMessage(websocket.TextMessage, []byte("who"))
	if got := readText(t, conn); got != `{"endpoint":"/ws","user":"ada"}` {
		t.Errorf("unexpected reply %s", got)
	}
	if id := <-ids; id == "" {
		t.Error("expected a session id")
	}
}

type chatConfig struct {
	config.Configuration `yaml:",inline" mapstructure:",squash"`
	WebSockets           websockets.Config `yaml:"webSockets" mapstructure:"webSockets"`
}

type chatApp struct {
	bundle *websockets.Bundle[*chatConfig]
}

func (chatApp) Name() string                  { return "chat" }
func (chatApp) NewConfiguration() *chatConfig { return &chatConfig{} }

func (a chatApp) Initialize(b *bootstrap.Bootstrap[*chatConfig]) {
	b.AddConfiguredBundle(a.bundle)
}

func (chatApp) Run(context.Context, *chatConfig, *bootstrap.Environment) error { return nil }

func TestBundleInApplication(t *testing.T) {
	rec := newRecorder()
	bundle := websockets.NewBundle(func(c *chatConfig) *websockets.Config { return &c.WebSockets }).
		Add("/chat", rec)

	cfg := &chatConfig{}
	cfg.ApplyDefaults()
	cfg.Logging.Level = "off"
	app := testutil.NewAppSupportWithConfig[*chatConfig](t, chatApp{bundle: bundle}, cfg)

	conn := mustDial(t, app.URL("/chat?name=grace"))
	if got := readText(t, conn); got != "welcome grace" {
		t.Errorf("expected welcome grace, got %q", got)
	}
	if n := bundle.Hub().Count(); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
	if status, body := app.GetAdmin("/metrics"); status != http.StatusOK || !strings.Contains(body, `websocket_sessions_open{endpoint="/chat"} 1`) {
		t.Errorf("expected open session gauge, got %d", status)
	}

	found := false
	for _, m := range app.Environment().Lifecycle().Managed() {
		if m == bundle.Hub() {
			found = true
		}
	}
	if !found {
		t.Error("expected hub to be managed")
	}
}
