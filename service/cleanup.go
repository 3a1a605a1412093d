package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CleanupScheduler periodically runs Cleanup for every kind.
type CleanupScheduler struct {
	cron    *cron.Cron
	svc     MediaService
	log     *logrus.Logger
	timeout time.Duration
}

// NewCleanupScheduler parses schedule as a standard five-field cron spec
// (descriptors such as "@daily" are accepted too).
func NewCleanupScheduler(schedule string, svc MediaService, log *logrus.Logger) (*CleanupScheduler, error) {
	s := &CleanupScheduler{
		svc:     svc,
		log:     log,
		timeout: 10 * time.Minute,
	}
	cronLog := cron.PrintfLogger(log)
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_SCHEDULE %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce sweeps every kind and logs the outcome.
func (s *CleanupScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	for _, kind := range models.Kinds() {
		n, err := s.svc.Cleanup(ctx, kind)
		entry := s.log.WithField("kind", kind)
		if err != nil {
			entry.WithError(err).Error("scheduled cleanup failed")
			continue
		}
		entry.WithField("removed", n).Info("scheduled cleanup finished")
	}
}

func (s *CleanupScheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *CleanupScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
