package relation

import (
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/saveblush/reraw-timeline/models"
)

// ChangeFunc receives the kind of every mutation
type ChangeFunc func(kind models.RelationChangeKind)

// Snapshot relation sets of one local identity.
// Readers always receive clones, mutators broadcast the changed kind.
type Snapshot struct {
	userID uint64

	mu         sync.RWMutex
	users      *roaring64.Bitmap
	followings *roaring64.Bitmap
	followers  *roaring64.Bitmap
	blockings  *roaring64.Bitmap

	subMu  sync.Mutex
	nextID int64
	subs   map[int64]ChangeFunc
}

func newSnapshot(userID uint64) *Snapshot {
	users := roaring64.New()
	if userID != 0 {
		users.Add(userID)
	}

	return &Snapshot{
		userID:     userID,
		users:      users,
		followings: roaring64.New(),
		followers:  roaring64.New(),
		blockings:  roaring64.New(),
		subs:       make(map[int64]ChangeFunc),
	}
}

// UserID id of the identity, 0 when unresolved
func (s *Snapshot) UserID() uint64 {
	return s.userID
}

// Users explicit user set
func (s *Snapshot) Users() *roaring64.Bitmap {
	return s.read(func() *roaring64.Bitmap { return s.users })
}

// Followings followings
func (s *Snapshot) Followings() *roaring64.Bitmap {
	return s.read(func() *roaring64.Bitmap { return s.followings })
}

// Followers followers
func (s *Snapshot) Followers() *roaring64.Bitmap {
	return s.read(func() *roaring64.Bitmap { return s.followers })
}

// Blockings blockings
func (s *Snapshot) Blockings() *roaring64.Bitmap {
	return s.read(func() *roaring64.Bitmap { return s.blockings })
}

// IsFollowing owner follows target
func (s *Snapshot) IsFollowing(target uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.followings.Contains(target)
}

// IsBlocking owner blocks target
func (s *Snapshot) IsBlocking(target uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blockings.Contains(target)
}

func (s *Snapshot) read(field func() *roaring64.Bitmap) *roaring64.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return field().Clone()
}

// AddUsers add ids to the explicit user set
func (s *Snapshot) AddUsers(ids ...uint64) {
	s.mutate(models.RelationExplicitSet, s.addTo(func() *roaring64.Bitmap { return s.users }, ids))
}

// RemoveUsers remove ids from the explicit user set
func (s *Snapshot) RemoveUsers(ids ...uint64) {
	s.mutate(models.RelationExplicitSet, s.removeFrom(func() *roaring64.Bitmap { return s.users }, ids))
}

// SetUsers replace the explicit user set
func (s *Snapshot) SetUsers(ids []uint64) {
	s.mutate(models.RelationExplicitSet, s.replace(&s.users, ids))
}

// AddFollowings add followings
func (s *Snapshot) AddFollowings(ids ...uint64) {
	s.mutate(models.RelationFollowing, s.addTo(func() *roaring64.Bitmap { return s.followings }, ids))
}

// RemoveFollowings remove followings
func (s *Snapshot) RemoveFollowings(ids ...uint64) {
	s.mutate(models.RelationFollowing, s.removeFrom(func() *roaring64.Bitmap { return s.followings }, ids))
}

// SetFollowings replace followings
func (s *Snapshot) SetFollowings(ids []uint64) {
	s.mutate(models.RelationFollowing, s.replace(&s.followings, ids))
}

// AddFollowers add followers
func (s *Snapshot) AddFollowers(ids ...uint64) {
	s.mutate(models.RelationFollower, s.addTo(func() *roaring64.Bitmap { return s.followers }, ids))
}

// RemoveFollowers remove followers
func (s *Snapshot) RemoveFollowers(ids ...uint64) {
	s.mutate(models.RelationFollower, s.removeFrom(func() *roaring64.Bitmap { return s.followers }, ids))
}

// SetFollowers replace followers
func (s *Snapshot) SetFollowers(ids []uint64) {
	s.mutate(models.RelationFollower, s.replace(&s.followers, ids))
}

// AddBlockings add blockings
func (s *Snapshot) AddBlockings(ids ...uint64) {
	s.mutate(models.RelationBlocking, s.addTo(func() *roaring64.Bitmap { return s.blockings }, ids))
}

// RemoveBlockings remove blockings
func (s *Snapshot) RemoveBlockings(ids ...uint64) {
	s.mutate(models.RelationBlocking, s.removeFrom(func() *roaring64.Bitmap { return s.blockings }, ids))
}

// SetBlockings replace blockings
func (s *Snapshot) SetBlockings(ids []uint64) {
	s.mutate(models.RelationBlocking, s.replace(&s.blockings, ids))
}

// NotifyAll broadcast an unspecified change
func (s *Snapshot) NotifyAll() {
	s.broadcast(models.RelationNone)
}

func (s *Snapshot) addTo(field func() *roaring64.Bitmap, ids []uint64) func() bool {
	return func() bool {
		bm := field()
		var changed bool
		for _, id := range ids {
			if bm.CheckedAdd(id) {
				changed = true
			}
		}
		return changed
	}
}

func (s *Snapshot) removeFrom(field func() *roaring64.Bitmap, ids []uint64) func() bool {
	return func() bool {
		bm := field()
		var changed bool
		for _, id := range ids {
			if bm.CheckedRemove(id) {
				changed = true
			}
		}
		return changed
	}
}

func (s *Snapshot) replace(field **roaring64.Bitmap, ids []uint64) func() bool {
	return func() bool {
		next := roaring64.BitmapOf(ids...)
		if next.Equals(*field) {
			return false
		}
		*field = next
		return true
	}
}

// mutate apply fn under the write lock, broadcast kind when fn changed something
func (s *Snapshot) mutate(kind models.RelationChangeKind, fn func() bool) {
	s.mu.Lock()
	changed := fn()
	s.mu.Unlock()

	if changed {
		s.broadcast(kind)
	}
}

// Subscribe register fn for change notifications, cancel is idempotent
func (s *Snapshot) Subscribe(fn ChangeFunc) (cancel func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Subscribers number of registered change subscribers
func (s *Snapshot) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	return len(s.subs)
}

func (s *Snapshot) broadcast(kind models.RelationChangeKind) {
	s.subMu.Lock()
	subs := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(kind)
	}
}
