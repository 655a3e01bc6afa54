package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/portal"
)

// portalRepository shares the assignment & score aggregates of the progress repository.
type portalRepository struct {
	progressRepository
}

var _ portal.Repository = (*portalRepository)(nil) // interface compliance check

func NewPortalRepository(exec core.DBExecutor) *portalRepository {
	return &portalRepository{progressRepository{repository{exec: exec}}}
}

func (repo portalRepository) QueryStudentSubjects(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) ([]academics.Subject, error) {
	exe := repo.getExec(exec)
	subjects := make([]academics.Subject, 0)
	err := exe.SelectContext(ctx, &subjects, exe.Rebind(`SELECT `+subjectColumns+` FROM subjects WHERE id IN (
			SELECT subject_id FROM course_subjects
			WHERE semester_id = ? AND is_active = ?
			AND course_id IN (SELECT course_id FROM enrollments WHERE student_id = ?)
		) ORDER BY code`), semesterID, true, studentID)
	return subjects, errors.Wrap(err, "querying student subjects")
}

func (repo portalRepository) CountMaterials(ctx context.Context, subjectID int64, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	var n int
	err := exe.GetContext(ctx, &n, exe.Rebind("SELECT COUNT(*) FROM learning_materials WHERE subject_id = ?"), subjectID)
	return n, errors.Wrap(err, "counting materials")
}

func (repo portalRepository) FindSubjectEnrollment(ctx context.Context, semesterID, studentID, subjectID int64, exec ...core.DBExecutor) (academics.SubjectEnrollment, error) {
	exe := repo.getExec(exec)
	var enr academics.SubjectEnrollment
	err := exe.GetContext(ctx, &enr, exe.Rebind(`SELECT se.id, se.student_id, se.course_subject_id, se.progress, se.grade,
		se.final_score, se.created_at, se.updated_at
		FROM subject_enrollments se JOIN course_subjects cs ON cs.id = se.course_subject_id
		WHERE cs.semester_id = ? AND se.student_id = ? AND cs.subject_id = ?
		ORDER BY se.id LIMIT 1`), semesterID, studentID, subjectID)
	if err != nil {
		return academics.SubjectEnrollment{}, trapNoRowsErr(err, academics.ErrNotFound, "finding subject enrollment")
	}
	return enr, nil
}

func (repo portalRepository) AverageProgress(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) (null.Float64, error) {
	exe := repo.getExec(exec)
	var avg null.Float64
	err := exe.GetContext(ctx, &avg, exe.Rebind(`SELECT AVG(se.progress) FROM subject_enrollments se
		JOIN course_subjects cs ON cs.id = se.course_subject_id
		WHERE cs.semester_id = ? AND se.student_id = ?`), semesterID, studentID)
	return avg, errors.Wrap(err, "averaging progress")
}

func (repo portalRepository) QueryTaughtSubjects(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) ([]portal.TaughtSubject, error) {
	exe := repo.getExec(exec)
	subjects := make([]portal.TaughtSubject, 0)
	err := exe.SelectContext(ctx, &subjects, exe.Rebind(`SELECT sj.id AS subject_id, sj.code, sj.title,
		(SELECT COUNT(DISTINCT e.student_id) FROM enrollments e
			JOIN course_subjects cs ON cs.course_id = e.course_id
			WHERE cs.subject_id = sj.id AND cs.semester_id = ? AND cs.instructor_id = ? AND cs.is_active = ?) AS num_enrolled,
		(SELECT AVG(sb.score) FROM submissions sb
			JOIN assignments a ON a.id = sb.assignment_id
			WHERE a.subject_id = sj.id AND sb.score IS NOT NULL) AS avg_score
		FROM subjects sj WHERE sj.id IN (
			SELECT subject_id FROM course_subjects WHERE semester_id = ? AND instructor_id = ? AND is_active = ?
		) ORDER BY sj.code`), semesterID, instructorID, true, semesterID, instructorID, true)
	return subjects, errors.Wrap(err, "querying taught subjects")
}

func (repo portalRepository) QueryLatestSubmissions(ctx context.Context, subjectIDs []int64, limit int, exec ...core.DBExecutor) ([]portal.SubmissionRow, error) {
	rows := make([]portal.SubmissionRow, 0)
	if len(subjectIDs) == 0 {
		return rows, nil
	}
	exe := repo.getExec(exec)
	q, args, err := inClause(exe, `SELECT s.id, s.assignment_id, s.student_id, s.file_url, s.submitted_at, s.score, s.grade,
		st.full_name AS student_name, a.title AS assignment_title, a.subject_id
		FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		JOIN students st ON st.id = s.student_id
		WHERE a.subject_id IN (?)
		ORDER BY s.submitted_at DESC, s.id DESC LIMIT ?`, subjectIDs, limit)
	if err != nil {
		return nil, errors.Wrap(err, "building latest submissions query")
	}
	err = exe.SelectContext(ctx, &rows, q, args...)
	return rows, errors.Wrap(err, "querying latest submissions")
}

func (repo portalRepository) EnsureSubjectEnrollments(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(`INSERT INTO subject_enrollments
		(student_id, course_subject_id, progress, grade, created_at, updated_at)
		SELECT e.student_id, cs.id, 0, '', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		FROM course_subjects cs JOIN enrollments e ON e.course_id = cs.course_id
		WHERE cs.semester_id = ? AND cs.instructor_id = ? AND cs.is_active = ?
		ON CONFLICT (student_id, course_subject_id) DO NOTHING`), semesterID, instructorID, true)
	if err != nil {
		return 0, errors.Wrap(err, "inserting missing subject enrollments")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting inserted subject enrollments")
}

func (repo portalRepository) QueryMonitoring(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) ([]portal.MonitoringRow, error) {
	exe := repo.getExec(exec)
	rows := make([]portal.MonitoringRow, 0)
	err := exe.SelectContext(ctx, &rows, exe.Rebind(`SELECT se.id AS enrollment_id, st.id AS student_id,
		st.full_name AS student_name, st.student_number, c.title AS course_title,
		sj.code AS subject_code, sj.title AS subject_title,
		se.progress, se.grade, se.final_score, se.updated_at
		FROM subject_enrollments se
		JOIN course_subjects cs ON cs.id = se.course_subject_id
		JOIN students st ON st.id = se.student_id
		JOIN courses c ON c.id = cs.course_id
		JOIN subjects sj ON sj.id = cs.subject_id
		WHERE cs.semester_id = ? AND cs.instructor_id = ? AND cs.is_active = ?
		ORDER BY sj.code, st.full_name, se.id`), semesterID, instructorID, true)
	return rows, errors.Wrap(err, "querying monitoring")
}
