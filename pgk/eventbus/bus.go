package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/saveblush/reraw-timeline/models"
)

var (
	// ErrBusClosed the bus received its terminal signal
	ErrBusClosed = errors.New("eventbus: bus closed")
	// ErrSubscriptionClosed the subscription no longer accepts events
	ErrSubscriptionClosed = errors.New("eventbus: subscription closed")
)

// Handler consumes one status event
type Handler func(ctx context.Context, evt *models.StatusEvent) error

// Subscription owned handle of one registered consumer
type Subscription interface {
	// Name returns the subscription name.
	Name() string
	// Done is closed once no further events will be delivered.
	Done() <-chan struct{}
	// Err is the abrupt termination cause, nil on graceful end or Close. Valid after Done.
	Err() error
	// Close unregisters and waits for the worker to exit. Must not be called from the handler.
	Close(ctx context.Context) error
}

// Bus fan-out of status events to independent subscribers.
// Publish never blocks on a slow subscriber: each subscriber owns an unbounded queue
// drained by a single worker, so deliveries to one subscriber keep publish order.
type Bus struct {
	mu            sync.RWMutex
	nextID        int64
	closed        bool
	subscriptions map[int64]*subscription
	onAsyncError  func(ctx context.Context, scope string, err error)
}

// New new bus
func New(onAsyncError func(ctx context.Context, scope string, err error)) *Bus {
	return &Bus{
		subscriptions: make(map[int64]*subscription),
		onAsyncError:  onAsyncError,
	}
}

// Publish enqueue evt for every subscriber
func (b *Bus) Publish(ctx context.Context, evt *models.StatusEvent) error {
	if evt == nil {
		return errors.New("publish: nil event")
	}
	if evt.IsAdded() && evt.Status == nil {
		return fmt.Errorf("publish %s %d: missing status", evt.Kind, evt.StatusID)
	}

	subs, err := b.snapshotSubscriptions()
	if err != nil {
		return fmt.Errorf("publish %s %d: %w", evt.Kind, evt.StatusID, err)
	}

	for _, sub := range subs {
		if err := sub.enqueue(evt); err != nil {
			b.reportAsyncError(ctx, sub.name, err)
		}
	}

	return nil
}

// Subscribe register handler, the worker starts immediately
func (b *Bus) Subscribe(ctx context.Context, name string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", name)
	}

	subID := atomic.AddInt64(&b.nextID, 1)
	if name == "" {
		name = fmt.Sprintf("subscription-%d", subID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: %w", name, ErrBusClosed)
	}

	sub := newSubscription(subID, name, handler, b)
	b.subscriptions[subID] = sub

	return sub, nil
}

// Close graceful end of stream: queued events are still delivered, then every
// subscription ends with a nil Err.
func (b *Bus) Close(ctx context.Context) error {
	return b.terminate(ctx, nil)
}

// Abort abrupt end of stream: queued events are still delivered, then every
// subscription ends with cause as Err.
func (b *Bus) Abort(ctx context.Context, cause error) error {
	if cause == nil {
		cause = errors.New("eventbus: aborted")
	}

	return b.terminate(ctx, cause)
}

func (b *Bus) terminate(ctx context.Context, cause error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[int64]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.end(cause)
	}

	var errs []error
	for _, sub := range subs {
		select {
		case <-sub.done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("drain subscription %s: %w", sub.name, ctx.Err()))
		}
	}

	return errors.Join(errs...)
}

// Len number of active subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscriptions)
}

// snapshotSubscriptions returns a stable copy for lock-free publish fan-out.
func (b *Bus) snapshotSubscriptions() ([]*subscription, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}

	return subs, nil
}

func (b *Bus) reportAsyncError(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}
