package origin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/theme"
)

func newTestLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(testWriter{}, nil)), theme.Default())
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestClient(t *testing.T, originURL string) *Client {
	t.Helper()
	return New(Config{
		OriginURL:      originURL,
		ConnectTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
		MaxConnections: 4,
		MaxBodyBytes:   1024,
	}, newTestLogger())
}

func TestForwardStripsHopByHopAndInjectsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Host") == "evil" {
			t.Error("host header should have been stripped before arriving at origin")
		}
		if r.Header.Get("Connection") != "" {
			t.Error("connection header should have been stripped")
		}
		if r.Header.Get("Transfer-Encoding") != "" {
			t.Error("transfer-encoding header should have been stripped")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer x" {
			t.Errorf("expected authorization header to be forwarded, got %q", got)
		}
		if got := r.Header.Get("X-Forwarded-By"); got != "pori" {
			t.Errorf("expected x-forwarded-by: pori, got %q", got)
		}
		if got := r.Header.Get("X-Request-Id"); got != "R2" {
			t.Errorf("expected x-request-id: R2, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	headers := map[string]string{
		"host":              "evil",
		"connection":        "keep-alive",
		"authorization":     "Bearer x",
		"transfer-encoding": "chunked",
	}
	resp, err := client.Forward(t.Context(), "GET", "/", headers, nil, "R2")
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("expected status 200, got %d", resp.Status)
	}
}

func TestForwardSucceedsWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Forward(t.Context(), "GET", "/health", nil, nil, "R1")
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", resp.Body)
	}
}

func TestForwardUnreachableOrigin(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	_, err := client.Forward(t.Context(), "GET", "/", nil, nil, "R3")
	if err == nil {
		t.Fatal("expected an error for an unreachable origin")
	}
	var oe *domain.OriginError
	if !asOriginError(err, &oe) {
		t.Fatalf("expected *domain.OriginError, got %T: %v", err, err)
	}
	if oe.Kind != domain.OriginUnreachable {
		t.Errorf("expected OriginUnreachable, got %v", oe.Kind)
	}
}

func TestForwardPayloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Forward(t.Context(), "GET", "/", nil, nil, "R4")
	if err == nil {
		t.Fatal("expected PayloadTooLarge error")
	}
	var oe *domain.OriginError
	if !asOriginError(err, &oe) {
		t.Fatalf("expected *domain.OriginError, got %T: %v", err, err)
	}
	if oe.Kind != domain.OriginPayloadTooLarge {
		t.Errorf("expected OriginPayloadTooLarge, got %v", oe.Kind)
	}
}

func asOriginError(err error, target **domain.OriginError) bool {
	oe, ok := err.(*domain.OriginError)
	if !ok {
		return false
	}
	*target = oe
	return true
}
