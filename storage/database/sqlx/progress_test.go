package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
	"github.com/siat-edu/siat/tests"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}

type progressEnv struct {
	repo    *progressRepository
	cwRepo  *courseworkRepository
	fx      *testutil.Fixtures
	sem     academics.Semester
	course  academics.Course
	subject academics.Subject
	cs      academics.CourseSubject
	instr   academics.Instructor
}

func newProgressEnv(t *testing.T) progressEnv {
	db := testutil.PrepareDB(t)
	env := progressEnv{
		repo:   NewProgressRepository(db),
		cwRepo: NewCourseworkRepository(db),
		fx:     testutil.NewFixtures(t, NewUserRepository(db), NewAcademicsRepository(db)),
	}
	env.sem = env.fx.Semester("2026-S1", true)
	env.course = env.fx.Course("Software Engineering")
	env.subject = env.fx.Subject("SE101", "Programming")
	env.instr = env.fx.Instructor("Ada Lovelace")
	env.cs = env.fx.CourseSubject(env.course.ID, env.subject.ID, env.sem.ID, env.instr.ID, true)
	return env
}

func (env progressEnv) assignment(t *testing.T, subjectID int64, title string) academics.Assignment {
	a, err := env.cwRepo.CreateAssignment(context.Background(), academics.Assignment{
		SubjectID: subjectID,
		Title:     title,
		DueDate:   time.Now().UTC().AddDate(0, 0, 7),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return a
}

func (env progressEnv) submit(t *testing.T, studentID, assignmentID int64, score null.Int) academics.Submission {
	s, err := env.cwRepo.CreateSubmission(context.Background(), academics.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		FileURL:      "https://files.siat.test/work.pdf",
		SubmittedAt:  time.Now().UTC(),
		Score:        score,
	})
	require.NoError(t, err)
	return s
}

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	env := newProgressEnv(t)
	st := env.fx.Student("Grace Hopper", env.course.ID)
	a1 := env.assignment(t, env.subject.ID, "Loops")
	a2 := env.assignment(t, env.subject.ID, "Functions")
	env.submit(t, st.ID, a1.ID, null.IntFrom(70))
	env.submit(t, st.ID, a2.ID, null.Int{})

	n, err := env.repo.CountAssignments(ctx, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = env.repo.CountSubmissions(ctx, st.ID, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	avg, err := env.repo.AverageScore(ctx, st.ID, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(70), avg)

	avg, err = env.repo.AverageScore(ctx, st.ID+1, env.subject.ID)
	require.NoError(t, err)
	assert.False(t, avg.Valid)

	cs, err := env.repo.FindCourseSubject(ctx, env.sem.ID, st.ID, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, env.cs.ID, cs.ID)

	outsider := env.fx.Student("Alan Turing")
	_, err = env.repo.FindCourseSubject(ctx, env.sem.ID, outsider.ID, env.subject.ID)
	assert.Equal(t, academics.ErrNotFound, err)

	ids, err := env.repo.QueryStudentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{st.ID, outsider.ID}, ids)

	enr, created, err := env.repo.GetOrCreateSubjectEnrollment(ctx, st.ID, env.cs.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, enr.Progress)

	require.NoError(t, env.repo.SetProgress(ctx, enr.ID, 55))
	again, created, err := env.repo.GetOrCreateSubjectEnrollment(ctx, st.ID, env.cs.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, enr.ID, again.ID)
	assert.Equal(t, 55, again.Progress)
}

func TestProgressCalculatorOnDB(t *testing.T) {
	ctx := context.Background()
	env := newProgressEnv(t)
	calc := progress.NewCalculator(env.repo, discardLogger{})
	sem := &env.sem

	st := env.fx.Student("Grace Hopper", env.course.ID)
	a1 := env.assignment(t, env.subject.ID, "Loops")
	a2 := env.assignment(t, env.subject.ID, "Functions")

	got, err := calc.UpdateSubject(ctx, sem, st.ID, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	s1 := env.submit(t, st.ID, a1.ID, null.Int{})
	got, err = calc.UpdateSubject(ctx, sem, st.ID, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, got)

	s1.Score = null.IntFrom(80)
	_, err = env.cwRepo.UpdateSubmission(ctx, s1)
	require.NoError(t, err)
	env.submit(t, st.ID, a2.ID, null.IntFrom(80))
	got, err = calc.UpdateSubject(ctx, sem, st.ID, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 94, got)

	// the stored value follows the computation
	enr, created, err := env.repo.GetOrCreateSubjectEnrollment(ctx, st.ID, env.cs.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 94, enr.Progress)

	// a subject without assignments is complete
	empty := env.fx.Subject("SE102", "Design")
	env.fx.CourseSubject(env.course.ID, empty.ID, env.sem.ID, 0, true)
	res, err := calc.UpdateStudent(ctx, sem, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, 94, res.Changes[0].NewProgress)
	assert.Equal(t, 100, res.Changes[1].NewProgress)

	env.fx.Student("Alan Turing", env.course.ID)
	stats, err := calc.UpdateAll(ctx, sem)
	require.NoError(t, err)
	assert.Equal(t, progress.Stats{TotalStudents: 2, EnrollmentsCreated: 2, EnrollmentsUpdated: 2}, stats)
}
