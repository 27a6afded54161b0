package eventstore

import (
	"time"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/utils"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/models"
)

// Service service interface
type Service interface {
	Fetch(c *cctx.Context, req *Request) ([]*models.Status, error)
	FindByID(c *cctx.Context, ID uint64) (*models.Status, error)
	Insert(c *cctx.Context, req *models.Status) error
	Delete(c *cctx.Context, ID uint64) error
	ClearStatusesOlderThan(c *cctx.Context, maxAge time.Duration) error
}

type service struct {
	repository Repository
}

func NewService() Service {
	return &service{
		repository: NewRepository(),
	}
}

// Fetch history page newest first, may return fewer than the limit
func (s *service) Fetch(c *cctx.Context, req *Request) ([]*models.Status, error) {
	res, err := s.repository.FindAll(c.GetDatabase(), req)
	if err != nil {
		logger.Log.Errorf("find statuses error: %s", err)
		return nil, err
	}

	return res, nil
}

func (s *service) FindByID(c *cctx.Context, ID uint64) (*models.Status, error) {
	res, err := s.repository.FindByID(c.GetDatabase(), ID)
	if err != nil {
		logger.Log.Errorf("find status [id: %d] error: %s", ID, err)
		return nil, err
	}

	return res, nil
}

// Insert save status, saving the same id twice is a no-op
func (s *service) Insert(c *cctx.Context, req *models.Status) error {
	err := s.repository.Insert(c.GetDatabase(), req)
	if err != nil {
		logger.Log.Errorf("insert status [id: %d] error: %s", req.ID, err)
		return err
	}

	return nil
}

func (s *service) Delete(c *cctx.Context, ID uint64) error {
	err := s.repository.Delete(c.GetDatabase(), ID)
	if err != nil {
		logger.Log.Errorf("delete status [id: %d] error: %s", ID, err)
		return err
	}

	return nil
}

// ClearStatusesOlderThan delete statuses created before now - maxAge
func (s *service) ClearStatusesOlderThan(c *cctx.Context, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}

	before := models.Timestamp(utils.Now().Add(-maxAge).Unix())
	rows, err := s.repository.DeleteOlder(c.GetDatabase(), before)
	if err != nil {
		logger.Log.Errorf("clear statuses older than %s error: %s", maxAge, err)
		return err
	}
	logger.Log.Infof("cleared %d statuses older than %s", rows, maxAge)

	return nil
}
