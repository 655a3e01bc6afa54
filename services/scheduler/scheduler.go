// Package scheduler runs the periodic jobs of the application.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
)

const progressSyncTag = "progress-sync"

type (
	SemesterResolver interface {
		CurrentSemester(ctx context.Context) (*academics.Semester, error)
	}

	BatchUpdater interface {
		UpdateAll(ctx context.Context, sem *academics.Semester) (progress.Stats, error)
	}

	// Scheduler reconciles every student's progress on a cron schedule.
	Scheduler struct {
		cron      *gocron.Scheduler
		spec      string
		timeout   time.Duration
		semesters SemesterResolver
		updater   BatchUpdater
		logger    core.Logger
	}
)

func New(conf *core.Config, semesters SemesterResolver, updater BatchUpdater, logger core.Logger) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll() // a run never overlaps the previous one
	return &Scheduler{
		cron:      cron,
		spec:      conf.Academics.ProgressSyncCron,
		timeout:   time.Hour,
		semesters: semesters,
		updater:   updater,
		logger:    logger,
	}
}

// Start schedules the jobs and runs the scheduler in the background.
// An empty cron spec disables the progress sync.
func (s *Scheduler) Start() error {
	if s.spec != "" {
		if _, err := s.cron.Cron(s.spec).Tag(progressSyncTag).Do(s.runProgressSync); err != nil {
			return errors.Wrapf(err, "scheduling progress sync (%q)", s.spec)
		}
	}
	s.cron.StartAsync()
	return nil
}

// Stop stops the scheduler; a running job is not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// SyncProgress recomputes the progress of every student against the current semester.
func (s *Scheduler) SyncProgress(ctx context.Context) (progress.Stats, error) {
	sem, err := s.semesters.CurrentSemester(ctx)
	if err != nil {
		return progress.Stats{}, errors.Wrap(err, "resolving current semester")
	}
	return s.updater.UpdateAll(ctx, sem)
}

func (s *Scheduler) runProgressSync() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	stats, err := s.SyncProgress(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("progress sync: %v", err), err)
		return
	}
	s.logger.Info(
		fmt.Sprintf("progress sync done in %s", time.Since(start).Round(time.Millisecond)),
		map[string]interface{}{
			"total_students":      stats.TotalStudents,
			"enrollments_created": stats.EnrollmentsCreated,
			"enrollments_updated": stats.EnrollmentsUpdated,
			"errors":              stats.Errors,
		},
	)
}
