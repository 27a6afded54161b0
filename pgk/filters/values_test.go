package filters

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveblush/reraw-timeline/models"
	"github.com/saveblush/reraw-timeline/pgk/relation"
)

type reapplyRecorder struct {
	mu    sync.Mutex
	kinds []models.RelationChangeKind
}

func (r *reapplyRecorder) record(kind models.RelationChangeKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *reapplyRecorder) get() []models.RelationChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.RelationChangeKind(nil), r.kinds...)
}

func TestBindUnknownIdentity(t *testing.T) {
	_, err := Bind(relation.NewGraph(), 42, FieldFollowings)
	assert.ErrorIs(t, err, ErrUnboundRelation)
	assert.ErrorIs(t, err, relation.ErrUnknownIdentity)

	_, err = Bind(nil, 42, FieldUser)
	assert.ErrorIs(t, err, ErrUnboundRelation)

	_, err = LocalUserFollowers(nil)
	assert.ErrorIs(t, err, ErrUnboundRelation)
}

func TestFollowingsReappliesOnlyOnRelevantKinds(t *testing.T) {
	g := relation.NewGraph()
	snap := g.Register(1)
	v, err := Bind(g, 1, FieldFollowings)
	require.NoError(t, err)
	require.NoError(t, v.BeginLifecycle())
	defer v.EndLifecycle()

	rec := &reapplyRecorder{}
	cancel := v.OnReapply(rec.record)
	defer cancel()

	snap.AddFollowers(5)
	snap.AddBlockings(6)
	snap.AddUsers(7)
	assert.Empty(t, rec.get())

	snap.AddFollowings(2)
	snap.NotifyAll()
	assert.Equal(t, []models.RelationChangeKind{models.RelationFollowing, models.RelationNone}, rec.get())
}

func TestUserReappliesOnEveryKind(t *testing.T) {
	g := relation.NewGraph()
	snap := g.Register(1)
	v, err := Bind(g, 1, FieldUser)
	require.NoError(t, err)
	require.NoError(t, v.BeginLifecycle())
	defer v.EndLifecycle()

	rec := &reapplyRecorder{}
	v.OnReapply(rec.record)

	snap.AddFollowings(2)
	snap.AddFollowers(3)
	snap.AddBlockings(4)
	snap.AddUsers(5)
	snap.NotifyAll()

	assert.Len(t, rec.get(), 5)
}

func TestSetValueIsCachedUntilRefresh(t *testing.T) {
	g := relation.NewGraph()
	snap := g.Register(1)
	snap.AddFollowings(2)
	v, err := LocalUserFollowings(snap)
	require.NoError(t, err)

	assert.Equal(t, []uint64{2}, v.SetValue().ToArray())

	snap.AddFollowings(3)
	assert.Equal(t, []uint64{2}, v.SetValue().ToArray())

	v.Refresh()
	assert.Equal(t, []uint64{2, 3}, v.SetValue().ToArray())
}

func TestSupportedTypes(t *testing.T) {
	g := relation.NewGraph()
	snap := g.Register(9)

	user, err := LocalUser(snap)
	require.NoError(t, err)
	assert.Equal(t, []ValueType{Numeric, Set}, user.SupportedTypes())
	assert.Equal(t, int64(9), user.NumericValue())
	assert.Equal(t, "9", user.NumericSQL())

	followers, err := LocalUserFollowers(snap)
	require.NoError(t, err)
	assert.Equal(t, []ValueType{Set}, followers.SupportedTypes())
	assert.Empty(t, followers.NumericSQL())

	unresolved, err := LocalUser(g.Register(0))
	require.NoError(t, err)
	assert.Equal(t, []ValueType{Set}, unresolved.SupportedTypes())
}

func TestQueryProjectionAndSQL(t *testing.T) {
	snap := relation.NewGraph().Register(5)

	cases := []struct {
		bind       func(*relation.Snapshot) (Value, error)
		projection string
		sql        string
	}{
		{LocalUser, "user:5", "(SELECT target_id FROM relations WHERE owner_id = 5 AND kind = 'user' UNION SELECT 5)"},
		{LocalUserFollowings, "user:5.following", "(SELECT target_id FROM relations WHERE owner_id = 5 AND kind = 'following')"},
		{LocalUserFollowers, "user:5.followers", "(SELECT target_id FROM relations WHERE owner_id = 5 AND kind = 'follower')"},
		{LocalUserBlockings, "user:5.blockings", "(SELECT target_id FROM relations WHERE owner_id = 5 AND kind = 'blocking')"},
	}
	for _, c := range cases {
		v, err := c.bind(snap)
		require.NoError(t, err)
		assert.Equal(t, c.projection, v.QueryProjection())
		assert.Equal(t, c.sql, v.SetSQL())
	}
}

func TestUserSetSQLFollowsMembership(t *testing.T) {
	g := relation.NewGraph()
	snap := g.Register(5)
	v, err := LocalUser(snap)
	require.NoError(t, err)
	assert.Contains(t, v.SetSQL(), "UNION SELECT 5")

	snap.RemoveUsers(5)
	v.Refresh()
	assert.False(t, v.SetValue().Contains(5))
	assert.Equal(t, "(SELECT target_id FROM relations WHERE owner_id = 5 AND kind = 'user')", v.SetSQL())

	unresolved, err := LocalUser(g.Register(0))
	require.NoError(t, err)
	assert.NotContains(t, unresolved.SetSQL(), "UNION")
}

func TestLifecycleIsIdempotentAndReleasesSubscription(t *testing.T) {
	snap := relation.NewGraph().Register(1)
	v, err := LocalUserBlockings(snap)
	require.NoError(t, err)

	require.NoError(t, v.BeginLifecycle())
	require.NoError(t, v.BeginLifecycle())
	assert.Equal(t, 1, snap.Subscribers())

	v.EndLifecycle()
	v.EndLifecycle()
	assert.Equal(t, 0, snap.Subscribers())

	rec := &reapplyRecorder{}
	v.OnReapply(rec.record)
	snap.AddBlockings(3)
	assert.Empty(t, rec.get())
}
