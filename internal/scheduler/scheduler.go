// Package scheduler wraps gocron for background maintenance jobs.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs cron jobs in the background.
type Scheduler struct {
	inner gocron.Scheduler
	log   *slog.Logger
}

// New creates and starts a scheduler.
func New(log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&slogAdapter{log: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s.Start()

	return &Scheduler{inner: s, log: log}, nil
}

// AddCronJob schedules job under the given cron expression.
func (s *Scheduler) AddCronJob(name, cronExpr string, job func()) error {
	_, err := s.inner.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(job),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}

	s.log.Info("job scheduled", "name", name, "cron", cronExpr)

	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	if err := s.inner.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}

	return nil
}

// slogAdapter bridges gocron's logger interface to slog.
type slogAdapter struct {
	log *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.log.Debug(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.log.Error(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.log.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.log.Warn(msg, args...) }
