package tunnel

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aduki-inc/pori/internal/adapter/codec"
	"github.com/aduki-inc/pori/internal/adapter/reconnect"
	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/state"
	"github.com/aduki-inc/pori/theme"
)

func newTestLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(discard{}, nil)), theme.Default())
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeHandler struct {
	mu       sync.Mutex
	accepted []domain.Frame
	accept   bool
}

func (h *fakeHandler) Dispatch(req domain.Frame) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return false
	}
	h.accepted = append(h.accepted, req)
	return true
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newSession(t *testing.T, url string, handler Handler) *Session {
	t.Helper()
	return New(Config{
		TunnelURL:      url,
		ConnectTimeout: time.Second,
		PingInterval:   50 * time.Millisecond,
		PongTimeout:    50 * time.Millisecond,
		MaxFrameBytes:  1 << 20,
	}, &codec.JSON{MaxFrameBytes: 1 << 20}, handler, state.New(), reconnect.New(reconnect.Config{}), newTestLogger())
}

func TestSessionFatalOnHandshake401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := newSession(t, wsURL(srv), &fakeHandler{})
	cause, err := s.Run(t.Context(), make(chan struct{}))
	if cause != domain.TerminationFatal {
		t.Errorf("expected TerminationFatal, got %v (err=%v)", cause, err)
	}
}

func TestSessionCleanShutdownOnSignal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Keep reading so the connection is not torn down from this side.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := newSession(t, wsURL(srv), &fakeHandler{})
	shutdown := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(shutdown)
	}()

	cause, err := s.Run(t.Context(), shutdown)
	if cause != domain.TerminationClean {
		t.Errorf("expected TerminationClean, got %v (err=%v)", cause, err)
	}
}

func TestSessionDispatchesHTTPRequestToHandler(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &codec.JSON{MaxFrameBytes: 1 << 20}
		raw, _, _ := c.Encode(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r1", Method: "GET", Target: "/health"})
		_ = conn.WriteMessage(websocket.TextMessage, raw)
		close(received)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	handler := &fakeHandler{accept: true}
	s := newSession(t, wsURL(srv), handler)
	shutdown := make(chan struct{})
	go func() {
		<-received
		time.Sleep(20 * time.Millisecond)
		close(shutdown)
	}()

	s.Run(t.Context(), shutdown)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.accepted) != 1 || handler.accepted[0].RequestID != "r1" {
		t.Errorf("expected handler to receive request r1, got %+v", handler.accepted)
	}
}

func TestSessionForceTerminateEndsRunAsTransient(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := newSession(t, wsURL(srv), &fakeHandler{})

	done := make(chan struct{})
	var cause domain.TerminationCause
	go func() {
		cause, _ = s.Run(t.Context(), make(chan struct{}))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	s.ForceTerminate()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ForceTerminate did not end the session promptly")
	}
	if cause != domain.TerminationTransient {
		t.Errorf("expected TerminationTransient after ForceTerminate, got %v", cause)
	}
}

func TestSessionForceTerminateBeforeConnectIsNoOp(t *testing.T) {
	s := newSession(t, "ws://127.0.0.1:1/unreachable", &fakeHandler{})
	s.ForceTerminate() // must not panic: the session never finished connecting
}

func TestSessionQueueFullRepliesWithSynthetic503(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotResponse := make(chan domain.Frame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &codec.JSON{MaxFrameBytes: 1 << 20}
		raw, _, _ := c.Encode(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r2", Method: "GET", Target: "/overload"})
		_ = conn.WriteMessage(websocket.TextMessage, raw)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := c.Decode(msg, true)
			if err == nil && frame.Kind == domain.KindHTTPResponse {
				select {
				case gotResponse <- frame:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	handler := &fakeHandler{accept: false}
	s := newSession(t, wsURL(srv), handler)
	shutdown := make(chan struct{})
	go func() {
		select {
		case <-gotResponse:
		case <-time.After(2 * time.Second):
		}
		time.Sleep(10 * time.Millisecond)
		close(shutdown)
	}()

	s.Run(t.Context(), shutdown)

	select {
	case frame := <-gotResponse:
		if frame.RequestID != "r2" || frame.Status != 503 {
			t.Errorf("expected synthetic 503 for r2, got %+v", frame)
		}
	default:
		t.Fatal("expected a synthetic 503 response to have been observed")
	}
}
