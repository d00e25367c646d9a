// Package tunnel implements C5, the tunnel session: WebSocket connection
// establishment, the reader/writer loops, ping/pong liveness, and the
// termination-cause state machine of spec §4.5.
package tunnel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/core/ports"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/state"
)

const (
	DefaultWriterGraceWindow  = 5 * time.Second
	DefaultOutgoingBufferSize = 256
	DefaultLivenessCheckEvery = time.Second
)

// Handler receives inbound HttpRequest frames (C6's Dispatch). It reports
// false when its dispatch queue is full, in which case the session itself
// replies with a synthetic 503 without the handler ever seeing the request.
type Handler interface {
	Dispatch(req domain.Frame) bool
}

// Config carries the subset of Settings the tunnel session needs.
type Config struct {
	TunnelURL          string
	ConnectTimeout     time.Duration
	PingInterval       time.Duration
	PongTimeout        time.Duration
	MaxFrameBytes      int64
	WriterGraceWindow  time.Duration
	OutgoingBufferSize int
}

// Session is the production C5 implementation, one per connection attempt.
type Session struct {
	cfg     Config
	codec   ports.Codec
	handler Handler
	shared  *state.SharedState
	policy  ports.ReconnectPolicy
	logger  *logger.StyledLogger

	conn     *websocket.Conn
	outgoing chan domain.Frame

	done     chan struct{}
	doneOnce sync.Once

	forceClose chan struct{}
	forceOnce  sync.Once

	firstCause domain.TerminationCause
	firstErr   error

	lastPongAt atomic.Int64

	mu    sync.Mutex
	ready bool
}

// New builds a Session, applying spec §4.5 defaults for any zero-valued
// config field.
func New(cfg Config, codec ports.Codec, handler Handler, shared *state.SharedState, policy ports.ReconnectPolicy, log *logger.StyledLogger) *Session {
	if cfg.WriterGraceWindow <= 0 {
		cfg.WriterGraceWindow = DefaultWriterGraceWindow
	}
	if cfg.OutgoingBufferSize <= 0 {
		cfg.OutgoingBufferSize = DefaultOutgoingBufferSize
	}
	return &Session{
		cfg:        cfg,
		codec:      codec,
		handler:    handler,
		shared:     shared,
		policy:     policy,
		logger:     log,
		forceClose: make(chan struct{}),
	}
}

// SetHandler assigns the inbound request handler. It exists because the
// forward engine's Sender is the session itself: the supervisor builds the
// session first, then the engine with the session as its sender, then wires
// the engine back in here before calling Run.
func (s *Session) SetHandler(handler Handler) {
	s.handler = handler
}

// Send enqueues a frame for the writer loop. It blocks until the frame is
// accepted or the session terminates, at which point it returns false; the
// forward engine uses this to detect cancellation on session loss.
func (s *Session) Send(f domain.Frame) bool {
	select {
	case s.outgoing <- f:
		return true
	case <-s.done:
		return false
	}
}

// Done reports session termination; the forward engine races in-flight
// origin requests against it to cancel work that can no longer be answered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ForceTerminate tears down an active session immediately with a Transient
// cause, skipping the writer grace window: the supervisor calls this from
// TriggerReconnect so a dashboard-initiated /api/reconnect doesn't wait for
// in-flight requests to drain before the next connection attempt starts. A
// no-op if the session never finished connecting.
func (s *Session) ForceTerminate() {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return
	}
	s.forceOnce.Do(func() { close(s.forceClose) })
	s.terminate(domain.TerminationTransient, errors.New("reconnect requested via dashboard"))
}

// Run dials the tunnel, and blocks until the session terminates, either
// because shutdownRequested fired or because the connection failed.
func (s *Session) Run(ctx context.Context, shutdownRequested <-chan struct{}) (domain.TerminationCause, error) {
	s.shared.SetStatus(domain.StatusConnecting)

	conn, resp, err := s.dial(ctx)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return domain.TerminationFatal, err
		}
		return domain.TerminationTransient, err
	}
	s.conn = conn
	s.outgoing = make(chan domain.Frame, s.cfg.OutgoingBufferSize)
	s.done = make(chan struct{})
	s.lastPongAt.Store(time.Now().UnixNano())

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	s.shared.SetStatus(domain.StatusAuthenticating)
	// No separate auth frame: the server validates at handshake. Reaching
	// here means it accepted the connection.
	s.policy.Reset()
	s.shared.SetStatus(domain.StatusConnected)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.readLoop() }()
	go func() { defer wg.Done(); s.writeLoop() }()
	go s.livenessLoop()

	select {
	case <-shutdownRequested:
		s.terminate(domain.TerminationClean, nil)
	case <-s.done:
	}

	wg.Wait()
	return s.firstCause, s.firstErr
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.ConnectTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	return dialer.DialContext(ctx, s.cfg.TunnelURL, nil)
}

func (s *Session) terminate(cause domain.TerminationCause, err error) {
	s.doneOnce.Do(func() {
		s.firstCause = cause
		s.firstErr = err
		close(s.done)
	})
}

func (s *Session) readLoop() {
	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.terminate(domain.TerminationTransient, err)
			return
		}
		if s.cfg.MaxFrameBytes > 0 && int64(len(raw)) > s.cfg.MaxFrameBytes {
			s.logger.Warn("dropping oversized inbound frame")
			continue
		}

		frame, err := s.codec.Decode(raw, msgType == websocket.TextMessage)
		if err != nil {
			s.logger.Warn("dropping malformed inbound frame", "error", err)
			continue
		}

		switch frame.Kind {
		case domain.KindPing:
			s.Send(domain.Frame{Kind: domain.KindPong, Payload: frame.Payload})
		case domain.KindPong:
			s.lastPongAt.Store(time.Now().UnixNano())
		case domain.KindHTTPRequest:
			if !s.handler.Dispatch(frame) {
				s.Send(domain.SyntheticResponse(frame.RequestID, 503, "dispatch queue full, request not accepted"))
			}
		case domain.KindShutdown:
			s.terminate(domain.TerminationClean, nil)
			return
		case domain.KindAuthFailure:
			s.terminate(domain.TerminationFatal, &domain.AuthError{Reason: string(frame.Payload)})
			return
		default:
			s.logger.Warn("ignoring frame of unhandled kind", "kind", string(frame.Kind))
		}
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.outgoing:
			s.writeFrame(f)
		case <-ticker.C:
			s.writeFrame(domain.Frame{Kind: domain.KindPing, Payload: domain.PingPayload(time.Now())})
		case <-s.done:
			s.drainAndClose()
			return
		}
	}
}

func (s *Session) writeFrame(f domain.Frame) {
	raw, isText, err := s.codec.Encode(f)
	if err != nil {
		s.logger.Warn("dropping outbound frame that failed to encode", "error", err)
		return
	}
	msgType := websocket.BinaryMessage
	if isText {
		msgType = websocket.TextMessage
	}
	if err := s.conn.WriteMessage(msgType, raw); err != nil {
		s.terminate(domain.TerminationTransient, err)
	}
}

// drainAndClose flushes frames still arriving on the outgoing channel (from
// in-flight C6 workers finishing their forward) for up to the writer grace
// window before sending the close frame. ForceTerminate cuts the wait short
// via forceClose.
func (s *Session) drainAndClose() {
	deadline := time.NewTimer(s.cfg.WriterGraceWindow)
	defer deadline.Stop()

	for {
		select {
		case f := <-s.outgoing:
			s.writeFrame(f)
		case <-deadline.C:
			s.closeConn()
			return
		case <-s.forceClose:
			s.closeConn()
			return
		}
	}
}

func (s *Session) closeConn() {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = s.conn.Close()
}

func (s *Session) livenessLoop() {
	interval := DefaultLivenessCheckEvery
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	threshold := s.cfg.PingInterval + s.cfg.PongTimeout

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastPongAt.Load())
			if time.Since(last) > threshold {
				s.terminate(domain.TerminationTransient, errors.New("pong timeout: no liveness response from relay"))
				return
			}
		case <-s.done:
			return
		}
	}
}
