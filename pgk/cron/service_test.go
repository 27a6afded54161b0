package cron

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/config"
	"github.com/saveblush/reraw-timeline/models"
	"github.com/saveblush/reraw-timeline/pgk/eventstore"
)

type fakeRelation struct {
	syncs int
}

func (r *fakeRelation) Sync(*cctx.Context, uint64) error { return nil }

func (r *fakeRelation) SyncAll(*cctx.Context) error {
	r.syncs++
	return nil
}

func (r *fakeRelation) Apply(*cctx.Context, *models.RelationChange) error { return nil }

func (r *fakeRelation) ReplaceFollowings(*cctx.Context, uint64, []uint64) error { return nil }

type fakeEventstore struct {
	maxAge time.Duration
}

func (e *fakeEventstore) Fetch(*cctx.Context, *eventstore.Request) ([]*models.Status, error) {
	return nil, nil
}

func (e *fakeEventstore) FindByID(*cctx.Context, uint64) (*models.Status, error) { return nil, nil }

func (e *fakeEventstore) Insert(*cctx.Context, *models.Status) error { return nil }

func (e *fakeEventstore) Delete(*cctx.Context, uint64) error { return nil }

func (e *fakeEventstore) ClearStatusesOlderThan(_ *cctx.Context, maxAge time.Duration) error {
	e.maxAge = maxAge
	return nil
}

func newTestService(syncSchedule, retentionSchedule string) (*service, *fakeRelation, *fakeEventstore) {
	cf := &config.Configs{}
	cf.Relation.SyncSchedule = syncSchedule
	cf.Retention.Schedule = retentionSchedule
	cf.Retention.MaxAge = 48 * time.Hour

	rel, store := &fakeRelation{}, &fakeEventstore{}

	return &service{
		cctx:       cctx.New(),
		config:     cf,
		cron:       cron.New(),
		eventstore: store,
		relation:   rel,
	}, rel, store
}

func TestScheduleRunsJobs(t *testing.T) {
	s, rel, store := newTestService("*/10 * * * *", "0 * * * *")
	require.NoError(t, s.schedule())

	entries := s.cron.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		e.Job.Run()
	}

	assert.Equal(t, 1, rel.syncs)
	assert.Equal(t, 48*time.Hour, store.maxAge)
}

func TestScheduleRejectsInvalidSpec(t *testing.T) {
	s, _, _ := newTestService("every minute", "0 * * * *")
	assert.Error(t, s.Start())

	s, _, _ = newTestService("*/10 * * * *", "")
	assert.Error(t, s.schedule())
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestService("*/10 * * * *", "0 * * * *")
	require.NoError(t, s.Start())
	s.Stop()
}
