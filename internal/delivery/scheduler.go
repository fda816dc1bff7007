package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"astro_bot/internal/logging"
)

type batchRunner interface {
	RunDailyBatch(ctx context.Context, now time.Time) (Report, error)
}

// Scheduler triggers the daily batch on a cron schedule evaluated in UTC.
type Scheduler struct {
	cron     *cron.Cron
	runner   batchRunner
	schedule string
	now      func() time.Time
	logger   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler for schedule (standard five-field cron).
func NewScheduler(runner batchRunner, schedule string, logger *logrus.Entry) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("batch runner is required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse delivery schedule %q: %w", schedule, err)
	}

	logger = logging.Component(logger, "delivery_scheduler")
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:     c,
		runner:   runner,
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Start registers the batch and starts the cron loop. Runs in flight observe
// cancellation of ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.schedule, s.Trigger); err != nil {
		s.cancel()
		return fmt.Errorf("schedule delivery batch: %w", err)
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{"event": "scheduler_started", "schedule": s.schedule}).Info("delivery scheduler started")
	return nil
}

// Trigger runs one batch now.
func (s *Scheduler) Trigger() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.runner.RunDailyBatch(ctx, s.now()); err != nil {
		s.logger.WithError(err).WithField("event", "batch_failed").Error("delivery batch failed")
	}
}

// Stop stops scheduling and waits for a running batch, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		if s.cancel != nil {
			s.cancel()
		}
		return nil
	case <-ctx.Done():
		if s.cancel != nil {
			s.cancel()
		}
		return ctx.Err()
	}
}
