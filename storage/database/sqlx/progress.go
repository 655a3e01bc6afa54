package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
)

const subjectEnrollmentColumns = "id, student_id, course_subject_id, progress, grade, final_score, created_at, updated_at"

var nowFunc = time.Now // mockable

type progressRepository struct {
	repository
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{repository{exec: exec}}
}

func (repo progressRepository) CountAssignments(ctx context.Context, subjectID int64, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	var n int
	err := exe.GetContext(ctx, &n, exe.Rebind("SELECT COUNT(*) FROM assignments WHERE subject_id = ?"), subjectID)
	return n, errors.Wrap(err, "counting assignments")
}

func (repo progressRepository) CountSubmissions(ctx context.Context, studentID, subjectID int64, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	var n int
	err := exe.GetContext(ctx, &n, exe.Rebind(`SELECT COUNT(*) FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		WHERE s.student_id = ? AND a.subject_id = ?`), studentID, subjectID)
	return n, errors.Wrap(err, "counting submissions")
}

func (repo progressRepository) AverageScore(ctx context.Context, studentID, subjectID int64, exec ...core.DBExecutor) (null.Float64, error) {
	exe := repo.getExec(exec)
	var avg null.Float64
	err := exe.GetContext(ctx, &avg, exe.Rebind(`SELECT AVG(s.score) FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		WHERE s.student_id = ? AND a.subject_id = ? AND s.score IS NOT NULL`), studentID, subjectID)
	return avg, errors.Wrap(err, "averaging scores")
}

func (repo progressRepository) FindCourseSubject(ctx context.Context, semesterID, studentID, subjectID int64, exec ...core.DBExecutor) (academics.CourseSubject, error) {
	exe := repo.getExec(exec)
	var cs academics.CourseSubject
	err := exe.GetContext(ctx, &cs, exe.Rebind(`SELECT `+courseSubjectColumns+` FROM course_subjects
		WHERE semester_id = ? AND subject_id = ?
		AND course_id IN (SELECT course_id FROM enrollments WHERE student_id = ?)
		ORDER BY id LIMIT 1`), semesterID, subjectID, studentID)
	if err != nil {
		return academics.CourseSubject{}, trapNoRowsErr(err, academics.ErrNotFound, "finding course subject")
	}
	return cs, nil
}

func (repo progressRepository) QueryStudentCourseSubjects(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) ([]academics.CourseSubject, error) {
	exe := repo.getExec(exec)
	css := make([]academics.CourseSubject, 0)
	err := exe.SelectContext(ctx, &css, exe.Rebind(`SELECT `+courseSubjectColumns+` FROM course_subjects
		WHERE semester_id = ? AND is_active = ?
		AND course_id IN (SELECT course_id FROM enrollments WHERE student_id = ?)
		ORDER BY id`), semesterID, true, studentID)
	return css, errors.Wrap(err, "querying student course subjects")
}

func (repo progressRepository) QueryStudentIDs(ctx context.Context, exec ...core.DBExecutor) ([]int64, error) {
	exe := repo.getExec(exec)
	ids := make([]int64, 0)
	err := exe.SelectContext(ctx, &ids, "SELECT id FROM students ORDER BY id")
	return ids, errors.Wrap(err, "querying student ids")
}

func (repo progressRepository) GetOrCreateSubjectEnrollment(ctx context.Context, studentID, courseSubjectID int64, exec ...core.DBExecutor) (academics.SubjectEnrollment, bool, error) {
	exe := repo.getExec(exec)
	now := nowFunc().UTC()

	res, err := exe.ExecContext(ctx, exe.Rebind(`INSERT INTO subject_enrollments
		(student_id, course_subject_id, progress, grade, created_at, updated_at) VALUES (?, ?, 0, '', ?, ?)
		ON CONFLICT (student_id, course_subject_id) DO NOTHING`), studentID, courseSubjectID, now, now)
	if err != nil {
		return academics.SubjectEnrollment{}, false, errors.Wrap(err, "inserting subject enrollment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return academics.SubjectEnrollment{}, false, errors.Wrap(err, "counting inserted subject enrollments")
	}

	var enr academics.SubjectEnrollment
	err = exe.GetContext(ctx, &enr, exe.Rebind(`SELECT `+subjectEnrollmentColumns+` FROM subject_enrollments
		WHERE student_id = ? AND course_subject_id = ?`), studentID, courseSubjectID)
	if err != nil {
		return academics.SubjectEnrollment{}, false, errors.Wrap(err, "getting subject enrollment")
	}
	return enr, n > 0, nil
}

func (repo progressRepository) SetProgress(ctx context.Context, enrollmentID int64, progress int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind("UPDATE subject_enrollments SET progress = ?, updated_at = ? WHERE id = ?"),
		progress, nowFunc().UTC(), enrollmentID)
	return errors.Wrap(err, "setting progress")
}
