// Package state implements C4, the shared state: atomic request/byte
// counters, the single connection status behind a reader-writer discipline,
// a dashboard event broadcast, and the one-shot shutdown signal every other
// component observes.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/aduki-inc/pori/internal/core/domain"
)

// SharedState is C4 (spec §4.4). It is the single source of truth for
// connection status and cumulative counters, read by the dashboard and
// written by the tunnel session and forward engine.
type SharedState struct {
	requestsProcessed  *xsync.Counter
	requestsSuccessful *xsync.Counter
	requestsFailed     *xsync.Counter
	bytesForwarded     *xsync.Counter
	websocketReconnects *xsync.Counter

	startTimestamp time.Time

	statusMu sync.RWMutex
	status   domain.ConnectionStatus

	events *dashboardBroadcaster

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a SharedState with all counters zeroed and status Disconnected.
func New() *SharedState {
	return &SharedState{
		requestsProcessed:   xsync.NewCounter(),
		requestsSuccessful:  xsync.NewCounter(),
		requestsFailed:      xsync.NewCounter(),
		bytesForwarded:      xsync.NewCounter(),
		websocketReconnects: xsync.NewCounter(),
		startTimestamp:      time.Now(),
		status:              domain.StatusDisconnected,
		events:              newDashboardBroadcaster(),
		shutdownCh:          make(chan struct{}),
	}
}

// RecordDispatched increments requests_processed the moment a request is
// accepted onto the forward engine's queue, before the origin round trip
// completes. Invariant: requests_processed == requests_successful +
// requests_failed + in_flight at every instant (spec §8 property 2).
func (s *SharedState) RecordDispatched() {
	s.requestsProcessed.Inc()
}

// RecordCompleted records a forward engine outcome once the origin round
// trip (or its synthetic failure) has produced a response frame.
func (s *SharedState) RecordCompleted(requestID, method, path string, statusCode int, bytes int64, success bool) {
	if success {
		s.requestsSuccessful.Inc()
	} else {
		s.requestsFailed.Inc()
	}
	s.bytesForwarded.Add(bytes)
	s.events.publish(domain.RequestForwardedEvent(requestID, method, path, statusCode))
}

// RecordCancelled records a request abandoned because the session
// terminated before a response frame could be queued (spec §4.6
// cancellation): no response is sent, but the request still counts as
// failed.
func (s *SharedState) RecordCancelled() {
	s.requestsFailed.Inc()
}

// RecordReconnect increments the reconnect counter, called by the supervisor
// on every Transient termination.
func (s *SharedState) RecordReconnect() {
	s.websocketReconnects.Inc()
}

// SetStatus transitions the connection status and publishes a
// ConnectionStateChanged dashboard event.
func (s *SharedState) SetStatus(status domain.ConnectionStatus) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
	s.events.publish(domain.ConnectionStateChangedEvent(status))
}

// Status returns the current connection status.
func (s *SharedState) Status() domain.ConnectionStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// PublishError publishes an informational Error dashboard event without
// affecting any counter.
func (s *SharedState) PublishError(message string) {
	s.events.publish(domain.ErrorEvent(message))
}

// Subscribe returns a channel of dashboard events for the dashboard's
// /metrics push loop; cancelling ctx or calling the returned cleanup
// unsubscribes. A slow subscriber loses its oldest queued events rather than
// block the publisher.
func (s *SharedState) Subscribe(ctx context.Context) (<-chan domain.DashboardEvent, func()) {
	return s.events.subscribe(ctx)
}

// Snapshot is the point-in-time stats view exposed by /api/stats.
type Snapshot struct {
	RequestsProcessed   int64
	RequestsSuccessful  int64
	RequestsFailed      int64
	BytesForwarded      int64
	WebsocketReconnects int64
	StartTimestamp      time.Time
	Uptime              time.Duration
	Status              domain.ConnectionStatus
}

// Snapshot reads every counter and the current status in one pass.
func (s *SharedState) Snapshot() Snapshot {
	return Snapshot{
		RequestsProcessed:   s.requestsProcessed.Value(),
		RequestsSuccessful:  s.requestsSuccessful.Value(),
		RequestsFailed:      s.requestsFailed.Value(),
		BytesForwarded:      s.bytesForwarded.Value(),
		WebsocketReconnects: s.websocketReconnects.Value(),
		StartTimestamp:      s.startTimestamp,
		Uptime:              time.Since(s.startTimestamp),
		Status:              s.Status(),
	}
}

// Shutdown closes the shutdown signal exactly once; safe to call repeatedly
// and from multiple goroutines.
func (s *SharedState) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// ShutdownRequested returns the one-shot shutdown signal channel; it closes
// exactly once, when Shutdown is first called.
func (s *SharedState) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

// Close shuts down the event broadcaster: current subscribers stop receiving
// events, and later Subscribe calls get an already-closed channel.
func (s *SharedState) Close() {
	s.events.shutdown()
}
