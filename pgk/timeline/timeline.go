package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/models"
	"github.com/saveblush/reraw-timeline/pgk/eventbus"
	"github.com/saveblush/reraw-timeline/pgk/idindex"
)

const (
	DefaultChunkSize   = 250
	DefaultChunkBounce = 50
)

var (
	// ErrInvalidOptions timeline options are not usable
	ErrInvalidOptions = errors.New("timeline: invalid options")
	// ErrAlreadySubscribed the timeline already consumes an event source
	ErrAlreadySubscribed = errors.New("timeline: already subscribed")
	// ErrDisposed the timeline was disposed
	ErrDisposed = errors.New("timeline: disposed")
)

// FetchFunc backfill collaborator, returns up to limit statuses older than
// maxID (the newest page when maxID is nil), newest first
type FetchFunc func(ctx context.Context, maxID *uint64, limit int) ([]*models.Status, error)

// Evaluator admission predicate
type Evaluator interface {
	Evaluate(status *models.Status) bool
}

// Source event source a timeline subscribes to
type Source interface {
	Subscribe(ctx context.Context, name string, handler eventbus.Handler) (eventbus.Subscription, error)
}

// Options timeline options
type Options struct {
	Name        string
	ChunkSize   int
	ChunkBounce int
	Fetcher     FetchFunc
}

// Timeline bounded, time-ordered, deduplicated view of statuses.
// Every admission (live, backfill, rebuild) is serialized by admitMu.
type Timeline struct {
	name        string
	chunkSize   int
	chunkBounce int
	fetcher     FetchFunc

	admitMu  sync.Mutex
	pred     Evaluator
	suppress bool
	index    *idindex.Index
	// removals seen while a fetch is in flight, fetched copies are stale
	fetching   int
	tombstones map[uint64]struct{}

	mu       sync.RWMutex
	statuses []*models.Status

	subMu        sync.Mutex
	sub          eventbus.Subscription
	watchDone    chan struct{}
	err          error
	disconnected chan struct{}

	stale    atomic.Bool
	disposed atomic.Bool
}

// New new timeline, zero chunk options take the defaults
func New(opts Options) (*Timeline, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkBounce == 0 {
		opts.ChunkBounce = DefaultChunkBounce
	}
	if opts.Name == "" {
		opts.Name = "timeline"
	}

	switch {
	case opts.ChunkSize < 0:
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidOptions, opts.ChunkSize)
	case opts.ChunkBounce < 0:
		return nil, fmt.Errorf("%w: chunk bounce %d", ErrInvalidOptions, opts.ChunkBounce)
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("%w: nil fetcher", ErrInvalidOptions)
	}

	return &Timeline{
		name:         opts.Name,
		chunkSize:    opts.ChunkSize,
		chunkBounce:  opts.ChunkBounce,
		fetcher:      opts.Fetcher,
		index:        idindex.New(),
		tombstones:   make(map[uint64]struct{}),
		disconnected: make(chan struct{}),
	}, nil
}

// Name name
func (t *Timeline) Name() string {
	return t.name
}

// Subscribe consume src through pred, the removed arm is never filtered
func (t *Timeline) Subscribe(ctx context.Context, src Source, pred Evaluator) error {
	if src == nil || pred == nil {
		return fmt.Errorf("subscribe %s: nil source or predicate", t.name)
	}

	t.subMu.Lock()
	defer t.subMu.Unlock()

	if t.disposed.Load() {
		return fmt.Errorf("subscribe %s: %w", t.name, ErrDisposed)
	}
	if t.sub != nil {
		return fmt.Errorf("subscribe %s: %w", t.name, ErrAlreadySubscribed)
	}

	t.admitMu.Lock()
	t.pred = pred
	t.admitMu.Unlock()

	sub, err := src.Subscribe(ctx, t.name, t.handle)
	if err != nil {
		logger.Log.Errorf("subscribe timeline %s error: %s", t.name, err)
		return fmt.Errorf("subscribe %s: %w", t.name, err)
	}
	t.sub = sub
	t.watchDone = make(chan struct{})
	go t.watch(sub, t.watchDone)

	return nil
}

// watch turn the end of the subscription into the disconnected signal
func (t *Timeline) watch(sub eventbus.Subscription, done chan struct{}) {
	defer close(done)

	<-sub.Done()
	if t.disposed.Load() {
		return
	}

	err := sub.Err()
	t.stale.Store(true)

	t.subMu.Lock()
	t.err = err
	t.subMu.Unlock()
	close(t.disconnected)

	if err != nil {
		logger.Log.Errorf("timeline %s disconnected error: %s", t.name, err)
	} else {
		logger.Log.Infof("timeline %s: event source ended", t.name)
	}
}

func (t *Timeline) handle(_ context.Context, evt *models.StatusEvent) error {
	if t.stale.Load() || t.disposed.Load() {
		return nil
	}

	switch evt.Kind {
	case models.EventAdded:
		t.admit(evt.Status)
	case models.EventRemoved:
		t.remove(evt.StatusID)
	default:
		return fmt.Errorf("timeline %s: unknown event kind %d", t.name, evt.Kind)
	}

	return nil
}

// admit predicate, dedup, ordered insert, then trim
func (t *Timeline) admit(status *models.Status) bool {
	if status == nil {
		return false
	}

	t.admitMu.Lock()
	defer t.admitMu.Unlock()

	return t.admitLocked(status)
}

// admitFetched admit a fetched status unless it was removed during the fetch
func (t *Timeline) admitFetched(status *models.Status) bool {
	if status == nil {
		return false
	}

	t.admitMu.Lock()
	defer t.admitMu.Unlock()

	if _, ok := t.tombstones[status.ID]; ok {
		admissionsTotal.WithLabelValues(t.name, resultRemoved).Inc()
		return false
	}

	return t.admitLocked(status)
}

// admitLocked admitMu must be held
func (t *Timeline) admitLocked(status *models.Status) bool {
	if t.pred != nil && !t.pred.Evaluate(status) {
		admissionsTotal.WithLabelValues(t.name, resultRejected).Inc()
		return false
	}
	if !t.index.InsertIfAbsent(status.ID) {
		admissionsTotal.WithLabelValues(t.name, resultDuplicate).Inc()
		return false
	}

	t.mu.Lock()
	i := sort.Search(len(t.statuses), func(i int) bool {
		return status.Newer(t.statuses[i])
	})
	t.statuses = append(t.statuses, nil)
	copy(t.statuses[i+1:], t.statuses[i:])
	t.statuses[i] = status
	n := len(t.statuses)
	t.mu.Unlock()

	admissionsTotal.WithLabelValues(t.name, resultAdmitted).Inc()
	statusesGauge.WithLabelValues(t.name).Set(float64(n))

	if !t.suppress && n >= t.chunkSize+t.chunkBounce {
		t.trimLocked()
	}

	return true
}

func (t *Timeline) remove(id uint64) bool {
	t.admitMu.Lock()
	defer t.admitMu.Unlock()

	if t.fetching > 0 {
		t.tombstones[id] = struct{}{}
	}
	if !t.index.Remove(id) {
		return false
	}

	t.mu.Lock()
	for i, s := range t.statuses {
		if s.ID == id {
			t.statuses = append(t.statuses[:i], t.statuses[i+1:]...)
			break
		}
	}
	n := len(t.statuses)
	t.mu.Unlock()

	removalsTotal.WithLabelValues(t.name).Inc()
	statusesGauge.WithLabelValues(t.name).Set(float64(n))

	return true
}

// trimLocked drop every status older than the chunkSize-th newest one in a single pass.
// admitMu must be held.
func (t *Timeline) trimLocked() {
	if t.suppress {
		return
	}

	t.mu.Lock()
	if len(t.statuses) <= t.chunkSize {
		t.mu.Unlock()
		return
	}

	boundary := t.statuses[t.chunkSize-1]
	cut := len(t.statuses)
	for i := t.chunkSize; i < len(t.statuses); i++ {
		if boundary.Newer(t.statuses[i]) {
			cut = i
			break
		}
	}
	removed := make([]uint64, 0, len(t.statuses)-cut)
	for _, s := range t.statuses[cut:] {
		removed = append(removed, s.ID)
	}
	clear(t.statuses[cut:])
	t.statuses = t.statuses[:cut]
	n := len(t.statuses)
	t.mu.Unlock()

	for _, id := range removed {
		t.index.Remove(id)
	}

	if len(removed) > 0 {
		trimPassesTotal.WithLabelValues(t.name).Inc()
		trimmedTotal.WithLabelValues(t.name).Add(float64(len(removed)))
		statusesGauge.WithLabelValues(t.name).Set(float64(n))
	}
}

// SetSuppressTrimming suppress trimming, leaving suppression runs one trim pass
func (t *Timeline) SetSuppressTrimming(suppress bool) {
	t.admitMu.Lock()
	defer t.admitMu.Unlock()

	wasSuppressed := t.suppress
	t.suppress = suppress
	if wasSuppressed && !suppress {
		t.trimLocked()
	}
}

// ReadMore backfill one chunk older than maxID (newest page when nil) and
// return the statuses that were admitted. Statuses admitted before a fetch
// error or cancellation stay.
func (t *Timeline) ReadMore(ctx context.Context, maxID *uint64) ([]*models.Status, error) {
	if t.disposed.Load() {
		return nil, fmt.Errorf("read more %s: %w", t.name, ErrDisposed)
	}

	return t.fetchAndAdmit(ctx, maxID)
}

func (t *Timeline) beginFetch() {
	t.admitMu.Lock()
	t.fetching++
	t.admitMu.Unlock()
}

func (t *Timeline) endFetch() {
	t.admitMu.Lock()
	t.fetching--
	if t.fetching == 0 {
		clear(t.tombstones)
	}
	t.admitMu.Unlock()
}

func (t *Timeline) fetchAndAdmit(ctx context.Context, maxID *uint64) ([]*models.Status, error) {
	t.beginFetch()
	defer t.endFetch()

	statuses, err := t.fetcher(ctx, maxID, t.chunkSize)
	if err != nil {
		logger.Log.Errorf("fetch timeline %s error: %s", t.name, err)
		return nil, fmt.Errorf("fetch %s: %w", t.name, err)
	}

	admitted := make([]*models.Status, 0, len(statuses))
	for _, status := range statuses {
		if err := ctx.Err(); err != nil {
			return admitted, fmt.Errorf("fetch %s: %w", t.name, err)
		}
		if t.disposed.Load() {
			return admitted, fmt.Errorf("fetch %s: %w", t.name, ErrDisposed)
		}
		if t.admitFetched(status) {
			admitted = append(admitted, status)
		}
	}

	return admitted, nil
}

// Rebuild clear every status and replay admission over the newest page
func (t *Timeline) Rebuild(ctx context.Context) ([]*models.Status, error) {
	if t.disposed.Load() {
		return nil, fmt.Errorf("rebuild %s: %w", t.name, ErrDisposed)
	}

	t.reset()
	rebuildsTotal.WithLabelValues(t.name).Inc()

	return t.fetchAndAdmit(ctx, nil)
}

func (t *Timeline) reset() {
	t.admitMu.Lock()
	defer t.admitMu.Unlock()

	t.index.Clear()
	t.mu.Lock()
	t.statuses = nil
	t.mu.Unlock()
	statusesGauge.WithLabelValues(t.name).Set(0)
}

// Dispose unsubscribe and clear every status, idempotent
func (t *Timeline) Dispose() {
	if !t.disposed.CompareAndSwap(false, true) {
		return
	}

	t.subMu.Lock()
	sub, watchDone := t.sub, t.watchDone
	t.subMu.Unlock()

	if sub != nil {
		if err := sub.Close(context.Background()); err != nil {
			logger.Log.Errorf("close timeline %s subscription error: %s", t.name, err)
		}
		<-watchDone
	}

	t.reset()
	statusesGauge.DeleteLabelValues(t.name)
}

// Statuses copy of the display sequence, newest first
func (t *Timeline) Statuses() []*models.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]*models.Status(nil), t.statuses...)
}

// Len number of displayed statuses
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.statuses)
}

// IndexCount number of ids in the index
func (t *Timeline) IndexCount() int {
	return t.index.Count()
}

// Contains id is admitted
func (t *Timeline) Contains(id uint64) bool {
	return t.index.Contains(id)
}

// Oldest oldest displayed status, nil when empty
func (t *Timeline) Oldest() *models.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.statuses) == 0 {
		return nil
	}

	return t.statuses[len(t.statuses)-1]
}

// Disconnected closed once the event source ended on its own
func (t *Timeline) Disconnected() <-chan struct{} {
	return t.disconnected
}

// Err abrupt end cause of the event source, nil on graceful end
func (t *Timeline) Err() error {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	return t.err
}

// Stale the event source ended, live events are no longer applied
func (t *Timeline) Stale() bool {
	return t.stale.Load()
}
