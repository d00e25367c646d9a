package state

import (
	"context"
	"testing"
	"time"

	"github.com/aduki-inc/pori/internal/core/domain"
)

func TestRecordDispatchedAndCompletedUpdateCounters(t *testing.T) {
	s := New()
	defer s.Close()

	s.RecordDispatched()
	s.RecordDispatched()
	s.RecordCompleted("r1", "GET", "/v1/models", 200, 128, true)
	s.RecordCompleted("r2", "GET", "/v1/models", 502, 0, false)

	snap := s.Snapshot()
	if snap.RequestsProcessed != 2 {
		t.Errorf("expected 2 processed, got %d", snap.RequestsProcessed)
	}
	if snap.RequestsSuccessful != 1 {
		t.Errorf("expected 1 successful, got %d", snap.RequestsSuccessful)
	}
	if snap.RequestsFailed != 1 {
		t.Errorf("expected 1 failed, got %d", snap.RequestsFailed)
	}
	if snap.BytesForwarded != 128 {
		t.Errorf("expected 128 bytes forwarded, got %d", snap.BytesForwarded)
	}
}

func TestRecordCancelledCountsAsFailedWithoutResponse(t *testing.T) {
	s := New()
	defer s.Close()

	s.RecordDispatched()
	s.RecordCancelled()

	snap := s.Snapshot()
	if snap.RequestsFailed != 1 {
		t.Errorf("expected 1 failed from cancellation, got %d", snap.RequestsFailed)
	}
	if snap.RequestsSuccessful != 0 {
		t.Errorf("expected 0 successful, got %d", snap.RequestsSuccessful)
	}
}

func TestSetStatusIsReadableUnderConcurrency(t *testing.T) {
	s := New()
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.SetStatus(domain.StatusConnecting)
			s.SetStatus(domain.StatusConnected)
		}
		close(done)
	}()

	for i := 0; i < 1000; i++ {
		_ = s.Status()
	}
	<-done

	if s.Status() != domain.StatusConnected {
		t.Errorf("expected final status Connected, got %v", s.Status())
	}
}

func TestSubscribeReceivesConnectionStateChanged(t *testing.T) {
	s := New()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, cleanup := s.Subscribe(ctx)
	defer cleanup()

	s.SetStatus(domain.StatusConnected)

	select {
	case ev := <-events:
		if ev.Kind != domain.EventConnectionStateChanged || ev.Status != domain.StatusConnected {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dashboard event")
	}
}

func TestRecordReconnectIncrementsCounter(t *testing.T) {
	s := New()
	defer s.Close()

	s.RecordReconnect()
	s.RecordReconnect()

	if got := s.Snapshot().WebsocketReconnects; got != 2 {
		t.Errorf("expected 2 reconnects, got %d", got)
	}
}

func TestShutdownClosesOnceAndIsIdempotent(t *testing.T) {
	s := New()
	defer s.Close()

	select {
	case <-s.ShutdownRequested():
		t.Fatal("shutdown channel should not be closed yet")
	default:
	}

	s.Shutdown()
	s.Shutdown() // must not panic

	select {
	case <-s.ShutdownRequested():
	default:
		t.Fatal("expected shutdown channel to be closed")
	}
}
