package eventstore

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/utils"
	"github.com/saveblush/reraw-timeline/models"
)

func TestQueryNewestPage(t *testing.T) {
	sql, params := (&repository{}).query(&Request{Limit: 250})

	assert.Contains(t, sql, "WHERE 1 = 1")
	assert.Contains(t, sql, "ORDER BY created_at DESC, id DESC LIMIT ?")
	assert.Equal(t, []any{250}, params)
}

func TestQueryOlderThanWithFilter(t *testing.T) {
	maxID := uint64(42)
	sql, params := (&repository{}).query(&Request{MaxID: &maxID, Where: "user_id = 7"})

	assert.Contains(t, sql, "(created_at, id) < (SELECT created_at, id FROM statuses WHERE id = ?) AND (user_id = 7)")
	assert.Equal(t, []any{uint64(42), 50}, params)
	assert.Equal(t, 1, strings.Count(sql, "LIMIT"))
}

type fakeRepository struct {
	statuses []*models.Status
	before   models.Timestamp
	err      error
}

func (r *fakeRepository) FindAll(_ *gorm.DB, req *Request) ([]*models.Status, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.statuses) > req.Limit {
		return r.statuses[:req.Limit], nil
	}

	return r.statuses, nil
}

func (r *fakeRepository) FindByID(_ *gorm.DB, ID uint64) (*models.Status, error) {
	for _, v := range r.statuses {
		if v.ID == ID {
			return v, r.err
		}
	}

	return &models.Status{}, r.err
}

func (r *fakeRepository) Insert(_ *gorm.DB, req *models.Status) error {
	if r.err != nil {
		return r.err
	}
	for _, v := range r.statuses {
		if v.ID == req.ID {
			return nil
		}
	}
	r.statuses = append(r.statuses, req)

	return nil
}

func (r *fakeRepository) Delete(_ *gorm.DB, ID uint64) error {
	return r.err
}

func (r *fakeRepository) DeleteOlder(_ *gorm.DB, before models.Timestamp) (int64, error) {
	r.before = before

	return 3, r.err
}

func TestFetchMayReturnFewerThanLimit(t *testing.T) {
	repo := &fakeRepository{statuses: []*models.Status{{ID: 3}, {ID: 2}, {ID: 1}}}
	svc := &service{repository: repo}

	res, err := svc.Fetch(cctx.New(), &Request{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = svc.Fetch(cctx.New(), &Request{Limit: 250})
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestInsertIsIdempotent(t *testing.T) {
	repo := &fakeRepository{}
	svc := &service{repository: repo}

	require.NoError(t, svc.Insert(cctx.New(), &models.Status{ID: 1}))
	require.NoError(t, svc.Insert(cctx.New(), &models.Status{ID: 1}))
	assert.Len(t, repo.statuses, 1)

	res, err := svc.FindByID(cctx.New(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.ID)
}

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")
	svc := &service{repository: &fakeRepository{err: boom}}

	_, err := svc.Fetch(cctx.New(), &Request{Limit: 1})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, svc.Insert(cctx.New(), &models.Status{ID: 1}), boom)
	assert.ErrorIs(t, svc.Delete(cctx.New(), 1), boom)
	assert.ErrorIs(t, svc.ClearStatusesOlderThan(cctx.New(), time.Hour), boom)
}

func TestClearStatusesOlderThan(t *testing.T) {
	repo := &fakeRepository{}
	svc := &service{repository: repo}

	require.NoError(t, svc.ClearStatusesOlderThan(cctx.New(), 0))
	assert.Zero(t, repo.before)

	require.NoError(t, svc.ClearStatusesOlderThan(cctx.New(), time.Hour))
	expected := utils.Now().Add(-time.Hour).Unix()
	assert.InDelta(t, expected, int64(repo.before), 2)
}
