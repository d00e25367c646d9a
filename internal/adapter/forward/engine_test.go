package forward

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aduki-inc/pori/internal/adapter/codec"
	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/core/ports"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/state"
	"github.com/aduki-inc/pori/theme"
)

func newTestLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(discard{}, nil)), theme.Default())
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeOrigin struct {
	mu       sync.Mutex
	delay    time.Duration
	fail     bool
	response *ports.ProxyResponse
}

func (f *fakeOrigin) Forward(ctx context.Context, method, pathAndQuery string, headers map[string]string, body []byte, requestID string) (*ports.ProxyResponse, error) {
	f.mu.Lock()
	delay, fail, resp := f.delay, f.fail, f.response
	f.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fail {
		return nil, domain.NewOriginError(domain.OriginUnreachable, method, pathAndQuery, requestID, errors.New("connection refused"))
	}
	if resp == nil {
		resp = &ports.ProxyResponse{Status: 200, StatusText: "OK", Body: []byte("ok")}
	}
	return resp, nil
}

func (f *fakeOrigin) Close() {}

type fakeSender struct {
	mu   sync.Mutex
	sent []domain.Frame
	done chan struct{}
}

func newFakeSender() *fakeSender { return &fakeSender{done: make(chan struct{})} }

func (s *fakeSender) Send(f domain.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	s.mu.Lock()
	s.sent = append(s.sent, f)
	s.mu.Unlock()
	return true
}

func (s *fakeSender) Done() <-chan struct{} { return s.done }

func (s *fakeSender) frames() []domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Frame, len(s.sent))
	copy(out, s.sent)
	return out
}

func TestEngineForwardsSuccessfulRequest(t *testing.T) {
	origin := &fakeOrigin{response: &ports.ProxyResponse{Status: 200, StatusText: "OK", Body: []byte(`{"ok":true}`)}}
	sender := newFakeSender()
	shared := state.New()
	defer shared.Close()

	e := New(Config{MaxOriginConnections: 2, RequestTimeout: time.Second}, origin, &codec.JSON{MaxFrameBytes: 1 << 20}, sender, shared, newTestLogger())
	go e.Run()
	defer e.Stop()

	if !e.Dispatch(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r1", Method: "GET", Target: "/health"}) {
		t.Fatal("expected Dispatch to succeed")
	}

	waitForFrames(t, sender, 1)
	frames := sender.frames()
	if frames[0].RequestID != "r1" || frames[0].Status != 200 {
		t.Errorf("unexpected frame: %+v", frames[0])
	}
	if got := shared.Snapshot().RequestsSuccessful; got != 1 {
		t.Errorf("expected 1 successful, got %d", got)
	}
}

func TestEngineBuildsSynthetic502OnOriginError(t *testing.T) {
	origin := &fakeOrigin{fail: true}
	sender := newFakeSender()
	shared := state.New()
	defer shared.Close()

	e := New(Config{MaxOriginConnections: 1, RequestTimeout: time.Second}, origin, &codec.JSON{MaxFrameBytes: 1 << 20}, sender, shared, newTestLogger())
	go e.Run()
	defer e.Stop()

	e.Dispatch(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r2", Method: "GET", Target: "/x"})

	waitForFrames(t, sender, 1)
	frames := sender.frames()
	if frames[0].Status != 502 {
		t.Errorf("expected 502, got %d", frames[0].Status)
	}
	if got := shared.Snapshot().RequestsFailed; got != 1 {
		t.Errorf("expected 1 failed, got %d", got)
	}
}

func TestEngineDrainsMoreRequestsThanSemaphoreSlots(t *testing.T) {
	origin := &fakeOrigin{delay: 100 * time.Millisecond}
	sender := newFakeSender()
	shared := state.New()
	defer shared.Close()

	e := New(Config{MaxOriginConnections: 2, RequestTimeout: time.Second}, origin, &codec.JSON{MaxFrameBytes: 1 << 20}, sender, shared, newTestLogger())
	go e.Run()
	defer e.Stop()

	for i := 0; i < 6; i++ {
		e.Dispatch(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r", Method: "GET", Target: "/x"})
	}

	waitForFrames(t, sender, 6)
}

func TestEngineDropsRequestWhenQueueFull(t *testing.T) {
	origin := &fakeOrigin{delay: time.Hour}
	sender := newFakeSender()
	shared := state.New()
	defer shared.Close()

	e := New(Config{MaxOriginConnections: 1, RequestTimeout: time.Hour}, origin, &codec.JSON{MaxFrameBytes: 1 << 20}, sender, shared, newTestLogger())
	// Queue capacity is 4x max_origin_connections = 4; do not start Run so
	// nothing drains, filling the queue deterministically.
	accepted := 0
	for i := 0; i < 5; i++ {
		if e.Dispatch(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r", Method: "GET", Target: "/x"}) {
			accepted++
		}
	}
	if accepted != 4 {
		t.Errorf("expected 4 accepted onto a queue of capacity 4, got %d", accepted)
	}
	if e.Dispatch(domain.Frame{Kind: domain.KindHTTPRequest, RequestID: "r", Method: "GET", Target: "/x"}) {
		t.Error("expected the 6th dispatch to be rejected")
	}
}

func waitForFrames(t *testing.T, sender *fakeSender, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.frames()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(sender.frames()))
}
