package tab

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/utils"
	"github.com/saveblush/reraw-timeline/core/utils/limiter"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/models"
	"github.com/saveblush/reraw-timeline/pgk/eventstore"
	"github.com/saveblush/reraw-timeline/pgk/filters"
	"github.com/saveblush/reraw-timeline/pgk/timeline"
)

// Store status history used for backfill
type Store interface {
	Fetch(c *cctx.Context, req *eventstore.Request) ([]*models.Status, error)
}

// Options tab options
type Options struct {
	Name     string
	Identity uint64
	Expr     filters.Expr
	Store    Store
	// Limiter throttles backfill per identity, optional
	Limiter  *limiter.KeyedRateLimiter
	Timeline timeline.Options
}

// Tab owns a predicate and the timeline it filters.
// A relevant relation change refreshes the predicate and rebuilds the timeline.
type Tab struct {
	id       string
	name     string
	identity uint64
	pred     *filters.Predicate
	timeline *timeline.Timeline
	store    Store
	limiter  *limiter.KeyedRateLimiter

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New new tab
func New(opts Options) (*Tab, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("new tab %s: nil store", opts.Name)
	}

	pred, err := filters.Compile(opts.Expr)
	if err != nil {
		logger.Log.Errorf("compile tab %s filter error: %s", opts.Name, err)
		return nil, err
	}

	t := &Tab{
		id:       uuid.NewString(),
		name:     opts.Name,
		identity: opts.Identity,
		pred:     pred,
		store:    opts.Store,
		limiter:  opts.Limiter,
	}

	tlOpts := opts.Timeline
	tlOpts.Name = opts.Name
	tlOpts.Fetcher = t.fetch
	tl, err := timeline.New(tlOpts)
	if err != nil {
		return nil, err
	}
	t.timeline = tl

	return t, nil
}

// ID instance id
func (t *Tab) ID() string {
	return t.id
}

// Name name
func (t *Tab) Name() string {
	return t.name
}

// Query filter text of the tab
func (t *Tab) Query() string {
	return t.pred.Query()
}

// Timeline timeline
func (t *Tab) Timeline() *timeline.Timeline {
	return t.timeline
}

// Start begin the predicate lifecycle, subscribe the timeline to src and load the first page
func (t *Tab) Start(ctx context.Context, src timeline.Source) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("start tab %s: already started", t.name)
	}
	t.started = true
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	err := t.start(ctx, src)
	if err != nil {
		close(t.done)
		t.Close()
		logger.Log.Errorf("start tab %s error: %s", t.name, err)
		return err
	}
	go t.loop(loopCtx)
	logger.Log.Infof("tab %s (%s) started: %s", t.name, t.id, t.pred.Query())

	return nil
}

func (t *Tab) start(ctx context.Context, src timeline.Source) error {
	if err := t.pred.Begin(); err != nil {
		return err
	}
	if err := t.timeline.Subscribe(ctx, src, t.pred); err != nil {
		return err
	}

	t.timeline.SetSuppressTrimming(true)
	defer t.timeline.SetSuppressTrimming(false)
	if _, err := t.timeline.ReadMore(ctx, nil); err != nil {
		return err
	}

	return nil
}

// loop rebuild on every reapply signal until closed
func (t *Tab) loop(ctx context.Context) {
	defer close(t.done)

	disconnected := t.timeline.Disconnected()
	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-t.pred.Reapply():
			t.pred.Refresh()
			if _, err := t.timeline.Rebuild(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Errorf("rebuild tab %s on %s change error: %s", t.name, kind, err)
			}
		case <-disconnected:
			disconnected = nil
			if err := t.timeline.Err(); err != nil {
				logger.Log.Errorf("tab %s disconnected error: %s", t.name, err)
			} else {
				logger.Log.Infof("tab %s: event source ended", t.name)
			}
		}
	}
}

// LoadOlder backfill one chunk older than the oldest displayed status
func (t *Tab) LoadOlder(ctx context.Context) ([]*models.Status, error) {
	var maxID *uint64
	if oldest := t.timeline.Oldest(); oldest != nil {
		maxID = utils.Pointer(oldest.ID)
	}

	return t.timeline.ReadMore(ctx, maxID)
}

// Statuses displayed statuses, newest first
func (t *Tab) Statuses() []*models.Status {
	return t.timeline.Statuses()
}

// Close stop rebuilding, end the predicate lifecycle and dispose the timeline
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		cancel, done := t.cancel, t.done
		t.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		t.pred.End()
		t.timeline.Dispose()
	})
}

// fetch backfill collaborator of the timeline
func (t *Tab) fetch(ctx context.Context, maxID *uint64, limit int) ([]*models.Status, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx, utils.FormatID(t.identity)); err != nil {
			return nil, err
		}
	}

	return t.store.Fetch(cctx.WithContext(ctx), &eventstore.Request{
		MaxID: maxID,
		Limit: limit,
		Where: t.pred.SQL(),
	})
}
