package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/coursework"
)

const (
	assignmentColumns   = "id, subject_id, title, description, due_date, file_url, created_at"
	materialColumns     = "id, subject_id, title, type, url, created_at"
	submissionColumns   = "id, assignment_id, student_id, file_url, submitted_at, score, grade"
	notificationColumns = "id, student_id, type, title, message, link, is_read, created_at"
)

type courseworkRepository struct {
	repository
}

var _ coursework.Repository = (*courseworkRepository)(nil) // interface compliance check

func NewCourseworkRepository(exec core.DBExecutor) *courseworkRepository {
	return &courseworkRepository{repository{exec: exec}}
}

func (repo courseworkRepository) CreateAssignment(ctx context.Context, a academics.Assignment, exec ...core.DBExecutor) (academics.Assignment, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO assignments (subject_id, title, description, due_date, file_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.SubjectID, a.Title, a.Description, a.DueDate, a.FileURL, a.CreatedAt,
	)
	if err != nil {
		return academics.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	a.ID = id
	return a, nil
}

func (repo courseworkRepository) GetAssignment(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Assignment, error) {
	exe := repo.getExec(exec)
	var a academics.Assignment
	err := exe.GetContext(ctx, &a, exe.Rebind("SELECT "+assignmentColumns+" FROM assignments WHERE id = ?"), id)
	if err != nil {
		return academics.Assignment{}, trapNoRowsErr(err, academics.ErrNotFound, "getting assignment")
	}
	return a, nil
}

func (repo courseworkRepository) QueryAssignments(ctx context.Context, subjectIDs []int64, exec ...core.DBExecutor) ([]academics.Assignment, error) {
	as := make([]academics.Assignment, 0)
	if len(subjectIDs) == 0 {
		return as, nil
	}
	exe := repo.getExec(exec)
	q, args, err := inClause(exe, "SELECT "+assignmentColumns+" FROM assignments WHERE subject_id IN (?) ORDER BY due_date DESC, id DESC", subjectIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building assignments query")
	}
	err = exe.SelectContext(ctx, &as, q, args...)
	return as, errors.Wrap(err, "querying assignments")
}

func (repo courseworkRepository) CreateMaterial(ctx context.Context, m academics.LearningMaterial, exec ...core.DBExecutor) (academics.LearningMaterial, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO learning_materials (subject_id, title, type, url, created_at) VALUES (?, ?, ?, ?, ?)",
		m.SubjectID, m.Title, m.Type, m.URL, m.CreatedAt,
	)
	if err != nil {
		return academics.LearningMaterial{}, errors.Wrap(err, "inserting material")
	}
	m.ID = id
	return m, nil
}

func (repo courseworkRepository) QueryMaterials(ctx context.Context, subjectIDs []int64, exec ...core.DBExecutor) ([]academics.LearningMaterial, error) {
	ms := make([]academics.LearningMaterial, 0)
	if len(subjectIDs) == 0 {
		return ms, nil
	}
	exe := repo.getExec(exec)
	q, args, err := inClause(exe, "SELECT "+materialColumns+" FROM learning_materials WHERE subject_id IN (?) ORDER BY created_at DESC, id DESC", subjectIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building materials query")
	}
	err = exe.SelectContext(ctx, &ms, q, args...)
	return ms, errors.Wrap(err, "querying materials")
}

func (repo courseworkRepository) CreateSubmission(ctx context.Context, s academics.Submission, exec ...core.DBExecutor) (academics.Submission, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO submissions (assignment_id, student_id, file_url, submitted_at, score, grade) VALUES (?, ?, ?, ?, ?, ?)",
		s.AssignmentID, s.StudentID, s.FileURL, s.SubmittedAt, s.Score, s.Grade,
	)
	if err != nil {
		return academics.Submission{}, errors.Wrap(err, "inserting submission")
	}
	s.ID = id
	return s, nil
}

func (repo courseworkRepository) GetSubmission(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Submission, error) {
	exe := repo.getExec(exec)
	var s academics.Submission
	err := exe.GetContext(ctx, &s, exe.Rebind("SELECT "+submissionColumns+" FROM submissions WHERE id = ?"), id)
	if err != nil {
		return academics.Submission{}, trapNoRowsErr(err, academics.ErrNotFound, "getting submission")
	}
	return s, nil
}

func (repo courseworkRepository) UpdateSubmission(ctx context.Context, s academics.Submission, exec ...core.DBExecutor) (academics.Submission, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE submissions SET file_url = ?, score = ?, grade = ? WHERE id = ?"),
		s.FileURL, s.Score, s.Grade, s.ID)
	if err != nil {
		return academics.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academics.Submission{}, academics.ErrNotFound
	}
	return s, nil
}

func (repo courseworkRepository) QuerySubmissions(ctx context.Context, filter coursework.SubmissionFilter, exec ...core.DBExecutor) ([]academics.Submission, error) {
	exe := repo.getExec(exec)
	subs := make([]academics.Submission, 0)

	var where []string
	var args []interface{}
	if filter.StudentID > 0 {
		where, args = append(where, "s.student_id = ?"), append(args, filter.StudentID)
	}
	if filter.AssignmentID > 0 {
		where, args = append(where, "s.assignment_id = ?"), append(args, filter.AssignmentID)
	}
	if filter.SubjectIDs != nil {
		if len(filter.SubjectIDs) == 0 {
			return subs, nil
		}
		where, args = append(where, "a.subject_id IN (?)"), append(args, filter.SubjectIDs)
	}

	q := `SELECT s.id, s.assignment_id, s.student_id, s.file_url, s.submitted_at, s.score, s.grade
		FROM submissions s JOIN assignments a ON a.id = s.assignment_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY s.submitted_at DESC, s.id DESC"

	q, args, err := inClause(exe, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building submissions query")
	}
	err = exe.SelectContext(ctx, &subs, q, args...)
	return subs, errors.Wrap(err, "querying submissions")
}

func (repo courseworkRepository) GetSubjectEnrollment(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.SubjectEnrollment, error) {
	exe := repo.getExec(exec)
	var enr academics.SubjectEnrollment
	err := exe.GetContext(ctx, &enr, exe.Rebind("SELECT "+subjectEnrollmentColumns+" FROM subject_enrollments WHERE id = ?"), id)
	if err != nil {
		return academics.SubjectEnrollment{}, trapNoRowsErr(err, academics.ErrNotFound, "getting subject enrollment")
	}
	return enr, nil
}

func (repo courseworkRepository) UpdateSubjectEnrollment(ctx context.Context, e academics.SubjectEnrollment, exec ...core.DBExecutor) (academics.SubjectEnrollment, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx,
		exe.Rebind("UPDATE subject_enrollments SET progress = ?, grade = ?, final_score = ?, updated_at = ? WHERE id = ?"),
		e.Progress, e.Grade, e.FinalScore, e.UpdatedAt, e.ID)
	if err != nil {
		return academics.SubjectEnrollment{}, errors.Wrap(err, "updating subject enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academics.SubjectEnrollment{}, academics.ErrNotFound
	}
	return e, nil
}

func (repo courseworkRepository) QueryTaughtSubjectIDs(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) ([]int64, error) {
	exe := repo.getExec(exec)
	ids := make([]int64, 0)
	err := exe.SelectContext(ctx, &ids, exe.Rebind(`SELECT DISTINCT subject_id FROM course_subjects
		WHERE semester_id = ? AND instructor_id = ? AND is_active = ? ORDER BY subject_id`), semesterID, instructorID, true)
	return ids, errors.Wrap(err, "querying taught subjects")
}

func (repo courseworkRepository) QueryStudentSubjectIDs(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) ([]int64, error) {
	exe := repo.getExec(exec)
	ids := make([]int64, 0)
	err := exe.SelectContext(ctx, &ids, exe.Rebind(`SELECT DISTINCT subject_id FROM course_subjects
		WHERE semester_id = ? AND is_active = ?
		AND course_id IN (SELECT course_id FROM enrollments WHERE student_id = ?)
		ORDER BY subject_id`), semesterID, true, studentID)
	return ids, errors.Wrap(err, "querying student subjects")
}

func (repo courseworkRepository) QueryRecipients(ctx context.Context, semesterID, subjectID int64, exec ...core.DBExecutor) ([]coursework.Recipient, error) {
	exe := repo.getExec(exec)
	rs := make([]coursework.Recipient, 0)
	err := exe.SelectContext(ctx, &rs, exe.Rebind(`SELECT st.id AS student_id, st.full_name, st.email,
		COALESCE(np.email_enabled, ?) AS email_enabled
		FROM students st
		LEFT JOIN notification_preferences np ON np.student_id = st.id
		WHERE st.id IN (
			SELECT e.student_id FROM enrollments e
			JOIN course_subjects cs ON cs.course_id = e.course_id
			WHERE cs.semester_id = ? AND cs.subject_id = ? AND cs.is_active = ?
		)
		ORDER BY st.id`), false, semesterID, subjectID, true)
	return rs, errors.Wrap(err, "querying recipients")
}

func (repo courseworkRepository) CreateNotifications(ctx context.Context, notifs []academics.Notification, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind("INSERT INTO notifications (student_id, type, title, message, link, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	for _, n := range notifs {
		if _, err := exe.ExecContext(ctx, q, n.StudentID, n.Type, n.Title, n.Message, n.Link, n.IsRead, n.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting notification")
		}
	}
	return nil
}

func (repo courseworkRepository) QueryNotifications(ctx context.Context, studentID int64, limit int, exec ...core.DBExecutor) ([]academics.Notification, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + notificationColumns + " FROM notifications WHERE student_id = ? ORDER BY created_at DESC, id DESC"
	args := []interface{}{studentID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	notifs := make([]academics.Notification, 0)
	err := exe.SelectContext(ctx, &notifs, exe.Rebind(q), args...)
	return notifs, errors.Wrap(err, "querying notifications")
}

func (repo courseworkRepository) MarkNotificationRead(ctx context.Context, studentID, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE notifications SET is_read = ? WHERE id = ? AND student_id = ?"), true, id, studentID)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academics.ErrNotFound
	}
	return nil
}

func (repo courseworkRepository) MarkAllNotificationsRead(ctx context.Context, studentID int64, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE notifications SET is_read = ? WHERE student_id = ? AND is_read = ?"), true, studentID, false)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting read notifications")
}

// GetNotificationPreference defaults to email disabled when the student has no preference yet.
func (repo courseworkRepository) GetNotificationPreference(ctx context.Context, studentID int64, exec ...core.DBExecutor) (academics.NotificationPreference, error) {
	exe := repo.getExec(exec)
	var pref academics.NotificationPreference
	err := exe.GetContext(ctx, &pref, exe.Rebind("SELECT student_id, email_enabled FROM notification_preferences WHERE student_id = ?"), studentID)
	if errors.Cause(err) == sql.ErrNoRows {
		return academics.NotificationPreference{StudentID: studentID}, nil
	} else if err != nil {
		return academics.NotificationPreference{}, errors.Wrap(err, "getting notification preference")
	}
	return pref, nil
}

func (repo courseworkRepository) SetNotificationPreference(ctx context.Context, studentID int64, emailEnabled bool, exec ...core.DBExecutor) error {
	return academicsRepository{repo.repository}.SetNotificationPreference(ctx, studentID, emailEnabled, exec...)
}
