package filters

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/saveblush/reraw-timeline/models"
	"github.com/saveblush/reraw-timeline/pgk/relation"
)

var (
	// ErrUnboundRelation a value references a relation with no bound snapshot
	ErrUnboundRelation = errors.New("filters: relation is not bound")
	// ErrUnsupportedType the value cannot produce the requested type
	ErrUnsupportedType = errors.New("filters: unsupported value type")
)

// ValueType type a value can produce
type ValueType int

const (
	Numeric ValueType = iota + 1
	Set
)

// Field relation field a value is bound to
type Field int

const (
	// FieldUser user id (numeric) and explicit user set (set)
	FieldUser Field = iota + 1
	FieldFollowings
	FieldFollowers
	FieldBlockings
)

// Value expression value reading from a relation snapshot
type Value interface {
	SupportedTypes() []ValueType
	// NumericValue and SetValue are cached on first access until Refresh.
	NumericValue() int64
	SetValue() *roaring64.Bitmap
	QueryProjection() string
	NumericSQL() string
	SetSQL() string
	BeginLifecycle() error
	EndLifecycle()
	// OnReapply registers fn for relevant relation changes, cancel is idempotent.
	OnReapply(fn func(kind models.RelationChangeKind)) (cancel func())
	Refresh()
}

// Bind bind a value of field to the identity's snapshot
func Bind(graph *relation.Graph, identity uint64, field Field) (Value, error) {
	if graph == nil {
		return nil, fmt.Errorf("bind user %d: %w", identity, ErrUnboundRelation)
	}
	snap, err := graph.SnapshotFor(identity)
	if err != nil {
		return nil, fmt.Errorf("bind user %d: %w: %w", identity, ErrUnboundRelation, err)
	}

	switch field {
	case FieldUser:
		return LocalUser(snap)
	case FieldFollowings:
		return LocalUserFollowings(snap)
	case FieldFollowers:
		return LocalUserFollowers(snap)
	case FieldBlockings:
		return LocalUserBlockings(snap)
	default:
		return nil, fmt.Errorf("bind user %d: unknown field %d", identity, field)
	}
}

// LocalUser user id and explicit user set, reapplies on every change
func LocalUser(snap *relation.Snapshot) (Value, error) {
	return bindField(snap, FieldUser, func(models.RelationChangeKind) bool { return true })
}

// LocalUserFollowings followings, reapplies on following or unspecified changes
func LocalUserFollowings(snap *relation.Snapshot) (Value, error) {
	return bindField(snap, FieldFollowings, only(models.RelationFollowing))
}

// LocalUserFollowers followers, reapplies on follower or unspecified changes
func LocalUserFollowers(snap *relation.Snapshot) (Value, error) {
	return bindField(snap, FieldFollowers, only(models.RelationFollower))
}

// LocalUserBlockings blockings, reapplies on blocking or unspecified changes
func LocalUserBlockings(snap *relation.Snapshot) (Value, error) {
	return bindField(snap, FieldBlockings, only(models.RelationBlocking))
}

func bindField(snap *relation.Snapshot, field Field, relevant func(models.RelationChangeKind) bool) (Value, error) {
	v, err := newUserValue(snap, field, relevant)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func only(kind models.RelationChangeKind) func(models.RelationChangeKind) bool {
	return func(k models.RelationChangeKind) bool {
		return k == models.RelationNone || k == kind
	}
}

// userValue holds the snapshot without owning its lifetime
type userValue struct {
	snap     *relation.Snapshot
	field    Field
	relevant func(models.RelationChangeKind) bool

	mu          sync.Mutex
	cachedSet   *roaring64.Bitmap
	unsubscribe func()
	nextID      int64
	listeners   map[int64]func(models.RelationChangeKind)
}

func newUserValue(snap *relation.Snapshot, field Field, relevant func(models.RelationChangeKind) bool) (*userValue, error) {
	if snap == nil {
		return nil, ErrUnboundRelation
	}

	return &userValue{
		snap:      snap,
		field:     field,
		relevant:  relevant,
		listeners: make(map[int64]func(models.RelationChangeKind)),
	}, nil
}

func (v *userValue) SupportedTypes() []ValueType {
	if v.field == FieldUser && v.snap.UserID() != 0 {
		return []ValueType{Numeric, Set}
	}

	return []ValueType{Set}
}

func (v *userValue) supports(t ValueType) bool {
	for _, st := range v.SupportedTypes() {
		if st == t {
			return true
		}
	}

	return false
}

// NumericValue user id, the identity never changes so it is read as is
func (v *userValue) NumericValue() int64 {
	if v.field != FieldUser {
		return 0
	}

	return int64(v.snap.UserID())
}

func (v *userValue) SetValue() *roaring64.Bitmap {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cachedSet == nil {
		switch v.field {
		case FieldUser:
			v.cachedSet = v.snap.Users()
		case FieldFollowings:
			v.cachedSet = v.snap.Followings()
		case FieldFollowers:
			v.cachedSet = v.snap.Followers()
		case FieldBlockings:
			v.cachedSet = v.snap.Blockings()
		}
	}

	return v.cachedSet
}

func (v *userValue) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cachedSet = nil
}

func (v *userValue) QueryProjection() string {
	base := fmt.Sprintf("user:%d", v.snap.UserID())
	switch v.field {
	case FieldFollowings:
		return base + ".following"
	case FieldFollowers:
		return base + ".followers"
	case FieldBlockings:
		return base + ".blockings"
	default:
		return base
	}
}

func (v *userValue) NumericSQL() string {
	if !v.supports(Numeric) {
		return ""
	}

	return fmt.Sprintf("%d", v.snap.UserID())
}

func (v *userValue) SetSQL() string {
	kind := models.RelationExplicitSet
	switch v.field {
	case FieldFollowings:
		kind = models.RelationFollowing
	case FieldFollowers:
		kind = models.RelationFollower
	case FieldBlockings:
		kind = models.RelationBlocking
	}

	id := v.snap.UserID()
	// the identity lives in the user set without a relations row
	if v.field == FieldUser && id != 0 && v.SetValue().Contains(id) {
		return fmt.Sprintf("(SELECT target_id FROM relations WHERE owner_id = %d AND kind = '%s' UNION SELECT %d)", id, kind, id)
	}

	return fmt.Sprintf("(SELECT target_id FROM relations WHERE owner_id = %d AND kind = '%s')", id, kind)
}

// BeginLifecycle subscribe to the snapshot change feed, idempotent
func (v *userValue) BeginLifecycle() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unsubscribe != nil {
		return nil
	}
	v.unsubscribe = v.snap.Subscribe(v.onRelationChanged)

	return nil
}

// EndLifecycle release the change feed subscription, idempotent
func (v *userValue) EndLifecycle() {
	v.mu.Lock()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (v *userValue) OnReapply(fn func(kind models.RelationChangeKind)) (cancel func()) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.listeners, id)
			v.mu.Unlock()
		})
	}
}

func (v *userValue) onRelationChanged(kind models.RelationChangeKind) {
	if !v.relevant(kind) {
		return
	}

	v.mu.Lock()
	listeners := make([]func(models.RelationChangeKind), 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(kind)
	}
}
