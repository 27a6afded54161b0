package cron

import (
	"github.com/robfig/cron/v3"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/config"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/pgk/eventstore"
	"github.com/saveblush/reraw-timeline/pgk/relation"
)

// Service service interface
type Service interface {
	Start() error
	Stop()
}

type service struct {
	cctx       *cctx.Context
	config     *config.Configs
	cron       *cron.Cron
	eventstore eventstore.Service
	relation   relation.Service
}

func NewService(relationService relation.Service) Service {
	return &service{
		cctx:       cctx.New(),
		config:     config.CF,
		cron:       cron.New(),
		eventstore: eventstore.NewService(),
		relation:   relationService,
	}
}

func (s *service) Start() error {
	logger.Log.Info("Cron init...")
	if err := s.schedule(); err != nil {
		logger.Log.Errorf("cron schedule error: %s", err)
		return err
	}
	s.cron.Start()

	return nil
}

func (s *service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *service) schedule() error {
	// reload relation sets from the database
	_, err := s.cron.AddFunc(s.config.Relation.SyncSchedule, func() {
		_ = s.relation.SyncAll(s.cctx)
	})
	if err != nil {
		return err
	}

	// drop history older than the retention window
	_, err = s.cron.AddFunc(s.config.Retention.Schedule, func() {
		_ = s.eventstore.ClearStatusesOlderThan(s.cctx, s.config.Retention.MaxAge)
	})
	if err != nil {
		return err
	}

	return nil
}
