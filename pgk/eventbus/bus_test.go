package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/saveblush/reraw-timeline/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func added(id uint64) *models.StatusEvent {
	return models.NewAddedEvent(&models.Status{ID: id, CreatedAt: models.Timestamp(id)})
}

type recorder struct {
	mu  sync.Mutex
	ids []uint64
}

func (r *recorder) handle(_ context.Context, evt *models.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, evt.ID())

	return nil
}

func (r *recorder) snapshot() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]uint64(nil), r.ids...)
}

func TestPublishFansOutInOrder(t *testing.T) {
	bus := New(nil)
	a, b := &recorder{}, &recorder{}

	subA, err := bus.Subscribe(context.Background(), "a", a.handle)
	require.NoError(t, err)
	subB, err := bus.Subscribe(context.Background(), "b", b.handle)
	require.NoError(t, err)

	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, bus.Publish(context.Background(), added(i)))
	}
	require.NoError(t, bus.Publish(context.Background(), models.NewRemovedEvent(5)))
	require.NoError(t, bus.Close(context.Background()))

	<-subA.Done()
	<-subB.Done()
	assert.NoError(t, subA.Err())
	assert.NoError(t, subB.Err())

	want := make([]uint64, 0, 101)
	for i := uint64(1); i <= 100; i++ {
		want = append(want, i)
	}
	want = append(want, 5)
	assert.Equal(t, want, a.snapshot())
	assert.Equal(t, want, b.snapshot())
}

func TestAbortEndsSubscriptionsWithCause(t *testing.T) {
	bus := New(nil)
	rec := &recorder{}
	sub, err := bus.Subscribe(context.Background(), "abort", rec.handle)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), added(1)))
	cause := errors.New("stream timeout")
	require.NoError(t, bus.Abort(context.Background(), cause))

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	assert.ErrorIs(t, sub.Err(), cause)
	assert.Equal(t, []uint64{1}, rec.snapshot())

	err = bus.Publish(context.Background(), added(2))
	assert.ErrorIs(t, err, ErrBusClosed)
	_, err = bus.Subscribe(context.Background(), "late", rec.handle)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := New(nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	rec := &recorder{}
	sub, err := bus.Subscribe(context.Background(), "closer", rec.handle)
	require.NoError(t, err)
	require.Equal(t, 1, bus.Len())

	require.NoError(t, sub.Close(context.Background()))
	assert.Equal(t, 0, bus.Len())
	assert.NoError(t, sub.Err())

	require.NoError(t, bus.Publish(context.Background(), added(1)))
	assert.Empty(t, rec.snapshot())
}

func TestHandlerPanicIsReported(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	bus := New(func(_ context.Context, _ string, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	})

	rec := &recorder{}
	sub, err := bus.Subscribe(context.Background(), "panic", func(ctx context.Context, evt *models.StatusEvent) error {
		if evt.ID() == 1 {
			panic("boom")
		}
		return rec.handle(ctx, evt)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), added(1)))
	require.NoError(t, bus.Publish(context.Background(), added(2)))
	require.NoError(t, bus.Close(context.Background()))
	<-sub.Done()

	assert.Equal(t, []uint64{2}, rec.snapshot())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "panic recovered")
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := New(nil)
	release := make(chan struct{})
	sub, err := bus.Subscribe(context.Background(), "slow", func(ctx context.Context, _ *models.StatusEvent) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint64(1); i <= 1000; i++ {
			_ = bus.Publish(context.Background(), added(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	close(release)
	require.NoError(t, sub.Close(context.Background()))
	require.NoError(t, bus.Close(context.Background()))
}

func TestPublishRejectsAddedWithoutStatus(t *testing.T) {
	bus := New(nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	err := bus.Publish(context.Background(), &models.StatusEvent{Kind: models.EventAdded, StatusID: 1})
	assert.Error(t, err)
}
