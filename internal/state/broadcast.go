package state

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/aduki-inc/pori/internal/core/domain"
)

// dashboardEventBufferSize bounds how many unread events a single /metrics
// subscriber can queue before publish starts dropping for it.
const dashboardEventBufferSize = 100

// dashboardBroadcaster fans DashboardEvents out to every /metrics websocket
// connection without ever blocking the publisher: the tunnel session and
// forward engine call publish() from their own hot paths, so a subscriber
// that falls behind loses events rather than stalling either one. The
// lock-free subscriber registry (xsync.Map over a plain mutex-guarded map)
// is the same structure the teacher's generic pub/sub used; this version
// drops the generic type parameter, the async worker pool, and the
// inactivity sweep, since SharedState only ever carries one event type and
// every subscriber is already tied to a context that unsubscribes it the
// moment its websocket goes away.
type dashboardBroadcaster struct {
	subscribers   *xsync.Map[string, *dashboardSubscriber]
	subscriberSeq atomic.Uint64
	isShutdown    atomic.Bool
}

type dashboardSubscriber struct {
	ch       chan domain.DashboardEvent
	isActive atomic.Bool
}

func newDashboardBroadcaster() *dashboardBroadcaster {
	return &dashboardBroadcaster{
		subscribers: xsync.NewMap[string, *dashboardSubscriber](),
	}
}

// subscribe registers a new subscriber and returns its event channel along
// with a cleanup func; cancelling ctx has the same effect as calling
// cleanup.
func (b *dashboardBroadcaster) subscribe(ctx context.Context) (<-chan domain.DashboardEvent, func()) {
	if b.isShutdown.Load() {
		ch := make(chan domain.DashboardEvent)
		close(ch)
		return ch, func() {}
	}

	id := strconv.FormatUint(b.subscriberSeq.Add(1), 10)
	sub := &dashboardSubscriber{ch: make(chan domain.DashboardEvent, dashboardEventBufferSize)}
	sub.isActive.Store(true)
	b.subscribers.Store(id, sub)

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()

	return sub.ch, func() { b.unsubscribe(id) }
}

// publish delivers event to every active subscriber. When a subscriber's
// buffer is full, its oldest queued event is discarded to make room.
func (b *dashboardBroadcaster) publish(event domain.DashboardEvent) {
	if b.isShutdown.Load() {
		return
	}
	b.subscribers.Range(func(id string, sub *dashboardSubscriber) bool {
		if !sub.isActive.Load() {
			return true
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
		return true
	})
}

func (b *dashboardBroadcaster) unsubscribe(id string) {
	if sub, ok := b.subscribers.Load(id); ok {
		sub.isActive.Store(false)
		b.subscribers.Delete(id)
	}
}

// shutdown marks every subscriber inactive and clears the registry; it is
// safe to call more than once.
func (b *dashboardBroadcaster) shutdown() {
	if !b.isShutdown.CompareAndSwap(false, true) {
		return
	}
	b.subscribers.Range(func(id string, sub *dashboardSubscriber) bool {
		sub.isActive.Store(false)
		return true
	})
	b.subscribers.Clear()
}
