// Package progress computes how far a student is in a subject:
// 70% weighted assignment completion plus 30% weighted average score.
package progress

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
)

const (
	completionWeight = 70.0
	scoreWeight      = 0.3

	minProgress = 0
	maxProgress = 100
)

type (
	Repository interface {
		CountAssignments(ctx context.Context, subjectID int64, exec ...core.DBExecutor) (int, error)
		CountSubmissions(ctx context.Context, studentID, subjectID int64, exec ...core.DBExecutor) (int, error)
		// AverageScore averages the scored submissions only; Valid is false when there is none.
		AverageScore(ctx context.Context, studentID, subjectID int64, exec ...core.DBExecutor) (null.Float64, error)

		// FindCourseSubject returns the first course-subject of the subject in the semester that belongs to
		// one of the student's enrolled courses, active or not. academics.ErrNotFound when there is none.
		FindCourseSubject(ctx context.Context, semesterID, studentID, subjectID int64, exec ...core.DBExecutor) (academics.CourseSubject, error)
		// QueryStudentCourseSubjects lists the active course-subjects of the semester within the student's enrolled courses.
		QueryStudentCourseSubjects(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) ([]academics.CourseSubject, error)
		QueryStudentIDs(ctx context.Context, exec ...core.DBExecutor) ([]int64, error)

		// GetOrCreateSubjectEnrollment relies on the unique (student_id, course_subject_id) constraint.
		GetOrCreateSubjectEnrollment(ctx context.Context, studentID, courseSubjectID int64, exec ...core.DBExecutor) (academics.SubjectEnrollment, bool, error)
		SetProgress(ctx context.Context, enrollmentID int64, progress int, exec ...core.DBExecutor) error
	}

	// SubjectChange is the outcome of one subject recomputation.
	SubjectChange struct {
		CourseSubjectID int64 `json:"course_subject_id"`
		SubjectID       int64 `json:"subject_id"`
		Created         bool  `json:"created"`
		OldProgress     int   `json:"old_progress"`
		NewProgress     int   `json:"new_progress"`
	}

	// Result sums up a recomputation for a single student.
	Result struct {
		StudentID int64           `json:"student_id"`
		Created   int             `json:"enrollments_created"`
		Updated   int             `json:"enrollments_updated"`
		Changes   []SubjectChange `json:"changes"`
	}

	// Stats sums up a batch recomputation over every student.
	Stats struct {
		TotalStudents      int `json:"total_students"`
		EnrollmentsCreated int `json:"enrollments_created"`
		EnrollmentsUpdated int `json:"enrollments_updated"`
		Errors             int `json:"errors"`
	}

	Calculator struct {
		repo   Repository
		logger core.Logger
	}
)

func NewCalculator(repo Repository, logger core.Logger) *Calculator {
	return &Calculator{repo: repo, logger: logger}
}

// Compute applies the progress formula; it is pure.
func Compute(total, submitted int, avgScore null.Float64) int {
	if total == 0 {
		return maxProgress
	}
	completion := float64(submitted) / float64(total) * completionWeight
	var contribution float64
	if avgScore.Valid {
		contribution = avgScore.Float64 * scoreWeight
	}
	return clamp(int(math.Floor(completion + contribution)))
}

func clamp(progress int) int {
	if progress < minProgress {
		return minProgress
	}
	if progress > maxProgress {
		return maxProgress
	}
	return progress
}

// Calculate computes the student's progress in the subject without writing anything.
// A nil semester yields 0.
func (c *Calculator) Calculate(ctx context.Context, sem *academics.Semester, studentID, subjectID int64) (int, error) {
	if sem == nil {
		return 0, nil
	}

	total, err := c.repo.CountAssignments(ctx, subjectID)
	if err != nil {
		return 0, errors.Wrap(err, "counting assignments")
	}
	if total == 0 {
		return maxProgress, nil
	}
	submitted, err := c.repo.CountSubmissions(ctx, studentID, subjectID)
	if err != nil {
		return 0, errors.Wrap(err, "counting submissions")
	}
	avg, err := c.repo.AverageScore(ctx, studentID, subjectID)
	if err != nil {
		return 0, errors.Wrap(err, "averaging scores")
	}
	return Compute(total, submitted, avg), nil
}

// UpdateSubject recomputes the student's progress in the subject and stores it on the matching
// SubjectEnrollment, creating it when needed.
// It returns 0 and writes nothing when there is no semester or no matching course-subject.
func (c *Calculator) UpdateSubject(ctx context.Context, sem *academics.Semester, studentID, subjectID int64) (int, error) {
	if sem == nil {
		return 0, nil
	}

	cs, err := c.repo.FindCourseSubject(ctx, sem.ID, studentID, subjectID)
	if err != nil {
		if errors.Cause(err) == academics.ErrNotFound {
			return 0, nil
		}
		return 0, errors.Wrap(err, "finding course subject")
	}

	change, err := c.update(ctx, sem, studentID, cs)
	if err != nil {
		return 0, err
	}
	return change.NewProgress, nil
}

// UpdateStudent recomputes the student's progress in every active course-subject of the semester.
// It stops at the first failing subject; the returned Result still counts the subjects stored before it.
func (c *Calculator) UpdateStudent(ctx context.Context, sem *academics.Semester, studentID int64) (Result, error) {
	res := Result{StudentID: studentID, Changes: make([]SubjectChange, 0)}
	if sem == nil {
		return res, academics.ErrNoCurrentSemester
	}

	courseSubjects, err := c.repo.QueryStudentCourseSubjects(ctx, sem.ID, studentID)
	if err != nil {
		return res, errors.Wrap(err, "querying student course subjects")
	}
	for _, cs := range courseSubjects {
		change, err := c.update(ctx, sem, studentID, cs)
		if err != nil {
			return res, err
		}
		if change.Created {
			res.Created++
		} else {
			res.Updated++
		}
		res.Changes = append(res.Changes, change)
	}
	return res, nil
}

// UpdateAll recomputes the progress of every student, one after the other.
// A failing student is logged and counted, and the batch goes on. Enrollments stored for
// that student before the failure are counted too.
func (c *Calculator) UpdateAll(ctx context.Context, sem *academics.Semester) (Stats, error) {
	var stats Stats
	if sem == nil {
		return stats, academics.ErrNoCurrentSemester
	}

	ids, err := c.repo.QueryStudentIDs(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "querying students")
	}
	stats.TotalStudents = len(ids)

	for _, id := range ids {
		if err = ctx.Err(); err != nil {
			return stats, err
		}
		res, err := c.UpdateStudent(ctx, sem, id)
		stats.EnrollmentsCreated += res.Created
		stats.EnrollmentsUpdated += res.Updated
		if err != nil {
			stats.Errors++
			c.logger.Error(fmt.Sprintf("updating progress of student %d: %v", id, err), err)
		}
	}
	return stats, nil
}

func (c *Calculator) update(ctx context.Context, sem *academics.Semester, studentID int64, cs academics.CourseSubject) (SubjectChange, error) {
	change := SubjectChange{CourseSubjectID: cs.ID, SubjectID: cs.SubjectID}

	enr, created, err := c.repo.GetOrCreateSubjectEnrollment(ctx, studentID, cs.ID)
	if err != nil {
		return change, errors.Wrap(err, "getting subject enrollment")
	}
	progress, err := c.Calculate(ctx, sem, studentID, cs.SubjectID)
	if err != nil {
		return change, err
	}
	if err = c.repo.SetProgress(ctx, enr.ID, progress); err != nil {
		return change, errors.Wrap(err, "setting progress")
	}

	change.Created = created
	change.OldProgress = enr.Progress
	change.NewProgress = progress
	return change, nil
}
