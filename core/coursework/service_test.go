package coursework_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/coursework"
	emailsvc "github.com/siat-edu/siat/services/email"
	logsvc "github.com/siat-edu/siat/services/logger"
	sqlxrepos "github.com/siat-edu/siat/storage/database/sqlx"
	"github.com/siat-edu/siat/tests"
)

type subjectKey struct {
	studentID, subjectID int64
}

// progressRecorder records the recomputations it is asked for.
type progressRecorder struct {
	calls []subjectKey
	err   error
}

func (r *progressRecorder) UpdateSubject(_ context.Context, _ *academics.Semester, studentID, subjectID int64) (int, error) {
	r.calls = append(r.calls, subjectKey{studentID, subjectID})
	return 0, r.err
}

type fixture struct {
	svc      *coursework.Service
	repo     coursework.Repository
	mailSvc  *emailsvc.ConsoleService
	progress *progressRecorder

	sem     academics.Semester
	subject academics.Subject
	instr   academics.Instructor
	student academics.Student
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(conf, logger)

	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	acadRepo := sqlxrepos.NewAcademicsRepository(db)
	repo := sqlxrepos.NewCourseworkRepository(db)
	fx := testutil.NewFixtures(t, usrRepo, acadRepo)

	f := fixture{
		repo:     repo,
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
		progress: new(progressRecorder),
	}
	f.svc = coursework.NewService(db, repo, acadRepo, f.progress, f.mailSvc, logger)

	f.sem = fx.Semester("2026-S1", true)
	course := fx.Course("Software Engineering")
	f.subject = fx.Subject("SE101", "Programming")
	f.instr = fx.Instructor("Ada Lovelace")
	fx.CourseSubject(course.ID, f.subject.ID, f.sem.ID, f.instr.ID, true)
	f.student = fx.Student("Grace Hopper", course.ID)
	return f
}

func (f fixture) assignment(t *testing.T, sem *academics.Semester) academics.Assignment {
	a, err := f.svc.CreateAssignment(context.Background(), sem, coursework.NewAssignment{
		SubjectID:   f.subject.ID,
		Title:       "Loops",
		Description: "Do it.",
		DueDate:     time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return a
}

func newValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func TestService_progressTriggers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, &f.sem)
	want := subjectKey{f.student.ID, f.subject.ID}

	_, err := f.svc.Submit(ctx, &f.sem, f.student.ID, coursework.NewSubmission{AssignmentID: 999, FileURL: "https://files.siat.test/a.pdf"})
	assert.Equal(t, academics.ErrNotFound, err)
	assert.Empty(t, f.progress.calls)

	sub, err := f.svc.Submit(ctx, &f.sem, f.student.ID, coursework.NewSubmission{AssignmentID: a.ID, FileURL: "https://files.siat.test/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []subjectKey{want}, f.progress.calls, "submitting recomputes")

	_, err = f.svc.GradeSubmission(ctx, &f.sem, sub.ID, coursework.GradeSubmission{Grade: "B"})
	require.NoError(t, err)
	assert.Len(t, f.progress.calls, 1, "a grade alone leaves the progress alone")

	score := 75
	sub, err = f.svc.GradeSubmission(ctx, &f.sem, sub.ID, coursework.GradeSubmission{Score: &score})
	require.NoError(t, err)
	assert.Equal(t, 75, sub.Score.Int)
	assert.Equal(t, "B", sub.Grade)
	assert.Equal(t, []subjectKey{want, want}, f.progress.calls, "scoring recomputes")
}

func TestService_progressFailureKeepsSubmission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, &f.sem)
	f.progress.err = errors.New("database is locked")

	sub, err := f.svc.Submit(ctx, &f.sem, f.student.ID, coursework.NewSubmission{AssignmentID: a.ID, FileURL: "https://files.siat.test/a.pdf"})
	require.NoError(t, err)
	assert.NotZero(t, sub.ID)
	assert.Len(t, f.progress.calls, 1)

	subs, err := f.svc.QuerySubmissions(ctx, coursework.SubmissionFilter{StudentID: f.student.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1, "stored once")
	assert.Equal(t, sub.ID, subs[0].ID)

	score := 90
	sub, err = f.svc.GradeSubmission(ctx, &f.sem, sub.ID, coursework.GradeSubmission{Score: &score})
	require.NoError(t, err)
	assert.Equal(t, 90, sub.Score.Int)
}

func TestService_notifications(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("no semester, no recipients", func(t *testing.T) {
		f.assignment(t, nil)
		notifs, err := f.svc.Notifications(ctx, f.student.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, notifs)
	})

	t.Run("in-app only by default", func(t *testing.T) {
		f.assignment(t, &f.sem)
		notifs, err := f.svc.Notifications(ctx, f.student.ID, 0)
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, academics.NotificationAssignment, notifs[0].Type)
		assert.Equal(t, "New Assignment: Loops", notifs[0].Title)
		assert.Contains(t, notifs[0].Message, "Programming")
		assert.Empty(t, f.mailSvc.SentMessages())
	})

	t.Run("emailed once opted in", func(t *testing.T) {
		pref, err := f.svc.ToggleEmailNotifications(ctx, f.student.ID)
		require.NoError(t, err)
		require.True(t, pref.EmailEnabled)

		_, err = f.svc.CreateMaterial(ctx, &f.sem, coursework.NewMaterial{
			SubjectID: f.subject.ID,
			Title:     "Course outline",
			Type:      academics.MaterialOutline,
			URL:       "https://files.siat.test/outline.pdf",
		})
		require.NoError(t, err)

		notifs, err := f.svc.Notifications(ctx, f.student.ID, 1)
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, academics.NotificationMaterial, notifs[0].Type)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, f.student.Email, sent[0].To[0].Address)
		assert.Equal(t, "New Material: Course outline", sent[0].Subject)
	})

	t.Run("mark read", func(t *testing.T) {
		n, err := f.svc.MarkAllNotificationsRead(ctx, f.student.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = f.svc.MarkAllNotificationsRead(ctx, f.student.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestService_CheckTaught(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.CheckTaught(ctx, &f.sem, f.instr.ID, f.subject.ID))
	assert.Equal(t, coursework.ErrNotTaught, f.svc.CheckTaught(ctx, &f.sem, f.instr.ID, 999))
	assert.Equal(t, coursework.ErrNotTaught, f.svc.CheckTaught(ctx, &f.sem, 999, f.subject.ID))
	assert.Equal(t, coursework.ErrNotTaught, f.svc.CheckTaught(ctx, nil, f.instr.ID, f.subject.ID))
}

func TestNewMaterial_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name    string
		nm      coursework.NewMaterial
		wantErr bool
	}{
		{name: "youtube video", nm: coursework.NewMaterial{SubjectID: 1, Title: "Intro", Type: "video", URL: "https://www.youtube.com/watch?v=abc"}},
		{name: "short youtube link", nm: coursework.NewMaterial{SubjectID: 1, Title: "Intro", Type: "Video", URL: "https://youtu.be/abc"}},
		{name: "video elsewhere", nm: coursework.NewMaterial{SubjectID: 1, Title: "Intro", Type: "video", URL: "https://vimeo.com/1"}, wantErr: true},
		{name: "outline anywhere", nm: coursework.NewMaterial{SubjectID: 1, Title: "Intro", Type: "outline", URL: "https://files.siat.test/o.pdf"}},
		{name: "no url", nm: coursework.NewMaterial{SubjectID: 1, Title: "Intro", Type: "module"}, wantErr: true},
		{name: "unknown type", nm: coursework.NewMaterial{SubjectID: 1, Title: "Intro", Type: "podcast", URL: "https://files.siat.test/p.mp3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nm.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
