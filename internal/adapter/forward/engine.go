// Package forward implements C6, the forward engine: it dispatches inbound
// HttpRequest frames to the local origin under bounded concurrency, and
// pushes the resulting HttpResponse (or synthetic 502) back onto the tunnel
// session's writer.
package forward

import (
	"context"
	"sync"
	"time"

	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/core/ports"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/state"
	"github.com/aduki-inc/pori/internal/util"
)

// Sender is the subset of tunnel.Session the forward engine needs: pushing
// a completed frame back to the writer, and observing session termination
// to cancel in-flight work. Declared here (rather than imported from
// internal/adapter/tunnel) so the two packages never import each other.
type Sender interface {
	Send(f domain.Frame) bool
	Done() <-chan struct{}
}

// Config carries the subset of Settings the forward engine needs.
type Config struct {
	MaxOriginConnections int
	RequestTimeout       time.Duration
}

// Engine is the production C6 implementation: one per tunnel session.
type Engine struct {
	origin         ports.OriginClient
	codec          ports.Codec
	sender         Sender
	shared         *state.SharedState
	logger         *logger.StyledLogger
	requestTimeout time.Duration

	sem   chan struct{}
	queue chan domain.Frame

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds an Engine bound to one session. The dispatch queue capacity is
// 4x max_origin_connections per spec §4.6.
func New(cfg Config, origin ports.OriginClient, codec ports.Codec, sender Sender, shared *state.SharedState, log *logger.StyledLogger) *Engine {
	maxConn := cfg.MaxOriginConnections
	if maxConn <= 0 {
		maxConn = 1
	}
	return &Engine{
		origin:         origin,
		codec:          codec,
		sender:         sender,
		shared:         shared,
		logger:         log,
		requestTimeout: cfg.RequestTimeout,
		sem:            make(chan struct{}, maxConn),
		queue:          make(chan domain.Frame, maxConn*4),
		stopCh:         make(chan struct{}),
	}
}

// Dispatch implements tunnel.Handler. It reports false (queue full) without
// blocking, per spec §4.6 step 3; the caller (the tunnel session) is then
// responsible for the synthetic 503. RecordDispatched only fires on a
// successful enqueue, since the overflow path never reaches RecordCompleted/
// RecordCancelled and would otherwise permanently overcount requests_processed
// (spec §8 Property 2).
func (e *Engine) Dispatch(req domain.Frame) bool {
	select {
	case e.queue <- req:
		e.shared.RecordDispatched()
		return true
	default:
		return false
	}
}

// Run drains the dispatch queue, spawning one worker per request bounded by
// the semaphore, until Stop is called or the session terminates.
func (e *Engine) Run() {
	for {
		select {
		case req := <-e.queue:
			e.acquireAndForward(req)
		case <-e.stopCh:
			return
		case <-e.sender.Done():
			return
		}
	}
}

func (e *Engine) acquireAndForward(req domain.Frame) {
	select {
	case e.sem <- struct{}{}:
	case <-e.stopCh:
		return
	case <-e.sender.Done():
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		e.forward(req)
	}()
}

func (e *Engine) forward(req domain.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), e.requestTimeout)
	defer cancel()

	// Cancel the in-flight origin round trip if the session dies underneath
	// it, per the cancellation model of spec §9: the worker's future races
	// the session's termination signal rather than being explicitly aborted.
	abort := make(chan struct{})
	go func() {
		select {
		case <-e.sender.Done():
			cancel()
		case <-abort:
		}
	}()
	defer close(abort)

	target, err := e.codec.NormalizeTarget(req.Target)
	if err != nil {
		e.fail(req, target, "invalid target: "+err.Error())
		return
	}

	trace := util.GenerateRequestID()
	resp, err := e.origin.Forward(ctx, req.Method, target, req.Headers, req.Body, req.RequestID)

	select {
	case <-e.sender.Done():
		// Session is gone; the remote peer will time out on its side. Per
		// spec §4.6 cancellation, no response is queued.
		e.shared.RecordCancelled()
		return
	default:
	}

	if err != nil {
		e.logger.WarnWithRequestID("origin forward failed ("+trace+")", req.RequestID, "error", err.Error())
		e.fail(req, target, err.Error())
		return
	}

	frame := domain.NewHTTPResponse(req.RequestID, resp.Status, resp.StatusText, resp.Headers, resp.Body)
	if e.sender.Send(frame) {
		e.shared.RecordCompleted(req.RequestID, req.Method, target, resp.Status, int64(len(resp.Body)), true)
	} else {
		e.shared.RecordCancelled()
	}
}

func (e *Engine) fail(req domain.Frame, target, message string) {
	frame := domain.SyntheticResponse(req.RequestID, 502, "origin forward failed: "+message)
	if e.sender.Send(frame) {
		e.shared.RecordCompleted(req.RequestID, req.Method, target, 502, 0, false)
	} else {
		e.shared.RecordCancelled()
	}
}

// Stop halts Run and waits for in-flight workers to finish (or abandon, on
// session loss).
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
