package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
)

type fakeSemesters struct {
	sem *academics.Semester
	err error
}

func (f fakeSemesters) CurrentSemester(context.Context) (*academics.Semester, error) {
	return f.sem, f.err
}

type fakeUpdater struct {
	calls []*academics.Semester
	stats progress.Stats
	err   error
}

func (f *fakeUpdater) UpdateAll(_ context.Context, sem *academics.Semester) (progress.Stats, error) {
	f.calls = append(f.calls, sem)
	return f.stats, f.err
}

type recordingLogger struct {
	infos, errors []string
}

func (l *recordingLogger) Debug(string, ...interface{})       {}
func (l *recordingLogger) Info(msg string, _ ...interface{})  { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Warn(string, ...interface{})        {}
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Fatal(string, ...interface{})       {}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantJobs int
		wantErr  bool
	}{
		{name: "nightly", spec: "0 2 * * *", wantJobs: 1},
		{name: "disabled", spec: "", wantJobs: 0},
		{name: "invalid spec", spec: "every full moon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Academics.ProgressSyncCron = tt.spec
			s := New(conf, fakeSemesters{}, &fakeUpdater{}, &recordingLogger{})

			err := s.Start()
			defer s.Stop()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.cron.Jobs(), tt.wantJobs)
			assert.True(t, s.cron.IsRunning())
		})
	}
}

func TestScheduler_runProgressSync(t *testing.T) {
	sem := &academics.Semester{ID: 7, Name: "2026-S1"}

	t.Run("runs against the current semester", func(t *testing.T) {
		updater := &fakeUpdater{stats: progress.Stats{TotalStudents: 3, EnrollmentsUpdated: 5}}
		logger := &recordingLogger{}
		s := New(core.NewTestConfig(), fakeSemesters{sem: sem}, updater, logger)

		s.runProgressSync()
		require.Len(t, updater.calls, 1)
		assert.Equal(t, sem, updater.calls[0])
		assert.Len(t, logger.infos, 1)
		assert.Empty(t, logger.errors)
	})

	t.Run("semester resolution fails", func(t *testing.T) {
		updater := &fakeUpdater{}
		logger := &recordingLogger{}
		s := New(core.NewTestConfig(), fakeSemesters{err: errors.New("db down")}, updater, logger)

		s.runProgressSync()
		assert.Empty(t, updater.calls)
		assert.Len(t, logger.errors, 1)
	})

	t.Run("no current semester", func(t *testing.T) {
		updater := &fakeUpdater{err: academics.ErrNoCurrentSemester}
		logger := &recordingLogger{}
		s := New(core.NewTestConfig(), fakeSemesters{}, updater, logger)

		_, err := s.SyncProgress(context.Background())
		assert.Equal(t, academics.ErrNoCurrentSemester, err)
		s.runProgressSync()
		assert.Len(t, logger.errors, 1)
	})
}
