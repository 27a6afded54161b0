package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/saveblush/reraw-timeline/models"
)

// subscription owns the queue and worker of a single subscriber.
type subscription struct {
	id      int64
	name    string
	handler Handler
	bus     *Bus

	mu     sync.Mutex
	queue  []*models.StatusEvent
	ended  bool
	cause  error
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newSubscription(id int64, name string, handler Handler, bus *Bus) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      id,
		name:    name,
		handler: handler,
		bus:     bus,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go sub.run()

	return sub
}

func (s *subscription) Name() string {
	return s.name
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *subscription) Close(ctx context.Context) error {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	s.bus.mu.Unlock()

	return s.shutdown(ctx)
}

// enqueue appends evt without blocking
func (s *subscription) enqueue(evt *models.StatusEvent) error {
	s.mu.Lock()
	if s.ended || s.ctx.Err() != nil {
		s.mu.Unlock()
		return fmt.Errorf("enqueue %s: %w", s.name, ErrSubscriptionClosed)
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	s.notify()

	return nil
}

// end marks the terminal signal, the worker drains what is queued and exits
func (s *subscription) end(cause error) {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		s.cause = cause
	}
	s.mu.Unlock()

	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shutdown stops delivery immediately and waits for the worker
func (s *subscription) shutdown(ctx context.Context) error {
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.name, ctx.Err())
	}
}

func (s *subscription) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		ended, cause := s.ended, s.cause
		s.mu.Unlock()

		for _, evt := range batch {
			if s.ctx.Err() != nil {
				return
			}
			if err := s.handleEvent(evt); err != nil {
				s.bus.reportAsyncError(s.ctx, s.name, err)
			}
		}

		if len(batch) > 0 {
			continue
		}
		if ended {
			s.err = cause
			return
		}

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return
		}
	}
}

// handleEvent one handler call with panic recovery
func (s *subscription) handleEvent(evt *models.StatusEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("subscription %s handle %s %d: panic recovered: %v", s.name, evt.Kind, evt.StatusID, recovered)
		}
	}()

	if err := s.handler(s.ctx, evt); err != nil {
		return fmt.Errorf("subscription %s handle %s %d: %w", s.name, evt.Kind, evt.StatusID, err)
	}

	return nil
}
