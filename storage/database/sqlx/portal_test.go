package sqlxrepos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func TestPortalRepository(t *testing.T) {
	ctx := context.Background()
	env := newProgressEnv(t)
	repo := NewPortalRepository(env.repo.exec)

	grace := env.fx.Student("Grace Hopper", env.course.ID)
	alan := env.fx.Student("Alan Turing", env.course.ID)
	a := env.assignment(t, env.subject.ID, "Loops")
	env.submit(t, grace.ID, a.ID, null.IntFrom(90))
	env.submit(t, alan.ID, a.ID, null.IntFrom(70))

	subjects, err := repo.QueryStudentSubjects(ctx, env.sem.ID, grace.ID)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, env.subject.Code, subjects[0].Code)

	n, err := repo.CountMaterials(ctx, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = repo.FindSubjectEnrollment(ctx, env.sem.ID, grace.ID, env.subject.ID)
	assert.Error(t, err)
	avg, err := repo.AverageProgress(ctx, env.sem.ID, grace.ID)
	require.NoError(t, err)
	assert.False(t, avg.Valid)

	t.Run("taught subjects", func(t *testing.T) {
		taught, err := repo.QueryTaughtSubjects(ctx, env.sem.ID, env.instr.ID)
		require.NoError(t, err)
		require.Len(t, taught, 1)
		assert.Equal(t, env.subject.ID, taught[0].SubjectID)
		assert.Equal(t, 2, taught[0].Enrolled)
		assert.Equal(t, null.Float64From(80), taught[0].AvgScore)

		rows, err := repo.QueryLatestSubmissions(ctx, []int64{env.subject.ID}, 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Alan Turing", rows[0].StudentName)
		assert.Equal(t, "Loops", rows[0].AssignmentTitle)
		assert.Equal(t, env.subject.ID, rows[0].SubjectID)
	})

	t.Run("monitoring", func(t *testing.T) {
		created, err := repo.EnsureSubjectEnrollments(ctx, env.sem.ID, env.instr.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, created)

		created, err = repo.EnsureSubjectEnrollments(ctx, env.sem.ID, env.instr.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, created)

		rows, err := repo.QueryMonitoring(ctx, env.sem.ID, env.instr.ID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Alan Turing", rows[0].StudentName)
		assert.Equal(t, "Grace Hopper", rows[1].StudentName)
		assert.Equal(t, env.course.Title, rows[0].CourseTitle)
		assert.Equal(t, 0, rows[0].Progress)
		assert.False(t, rows[0].FinalScore.Valid)

		enr, err := repo.FindSubjectEnrollment(ctx, env.sem.ID, grace.ID, env.subject.ID)
		require.NoError(t, err)
		require.NoError(t, repo.SetProgress(ctx, enr.ID, 40))
		avg, err := repo.AverageProgress(ctx, env.sem.ID, grace.ID)
		require.NoError(t, err)
		assert.Equal(t, null.Float64From(40), avg)
	})
}
