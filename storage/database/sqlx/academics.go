package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
)

const (
	semesterColumns      = "id, name, start_date, end_date, is_current"
	courseColumns        = "id, title, slug, description, category, duration, fee"
	subjectColumns       = "id, code, title, description, created_at"
	courseSubjectColumns = "id, course_id, subject_id, semester_id, instructor_id, is_active"
	studentColumns       = "id, user_id, full_name, email, phone, student_number, created_at"
	instructorColumns    = "id, user_id, full_name, email, phone, created_at"
	enrollmentColumns    = "id, student_id, course_id, created_at"
	announcementColumns  = "id, course_id, title, content, created_at"
)

type academicsRepository struct {
	repository
}

var _ academics.Repository = (*academicsRepository)(nil) // interface compliance check

func NewAcademicsRepository(exec core.DBExecutor) *academicsRepository {
	return &academicsRepository{repository{exec: exec}}
}

func (repo academicsRepository) CreateSemester(ctx context.Context, sem academics.Semester, exec ...core.DBExecutor) (academics.Semester, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO semesters (name, start_date, end_date, is_current) VALUES (?, ?, ?, ?)",
		sem.Name, sem.StartDate, sem.EndDate, false,
	)
	if err != nil {
		return academics.Semester{}, errors.Wrap(err, "inserting semester")
	}
	sem.ID, sem.IsCurrent = id, false
	return sem, nil
}

func (repo academicsRepository) QuerySemesters(ctx context.Context, exec ...core.DBExecutor) ([]academics.Semester, error) {
	exe := repo.getExec(exec)
	sems := make([]academics.Semester, 0)
	err := exe.SelectContext(ctx, &sems, "SELECT "+semesterColumns+" FROM semesters ORDER BY start_date DESC, id DESC")
	return sems, errors.Wrap(err, "querying semesters")
}

func (repo academicsRepository) GetSemester(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Semester, error) {
	exe := repo.getExec(exec)
	var sem academics.Semester
	err := exe.GetContext(ctx, &sem, exe.Rebind("SELECT "+semesterColumns+" FROM semesters WHERE id = ?"), id)
	if err != nil {
		return academics.Semester{}, trapNoRowsErr(err, academics.ErrNotFound, "getting semester")
	}
	return sem, nil
}

func (repo academicsRepository) GetCurrentSemester(ctx context.Context, exec ...core.DBExecutor) (academics.Semester, error) {
	exe := repo.getExec(exec)
	var sem academics.Semester
	err := exe.GetContext(ctx, &sem, exe.Rebind("SELECT "+semesterColumns+" FROM semesters WHERE is_current = ? LIMIT 1"), true)
	if err != nil {
		return academics.Semester{}, trapNoRowsErr(err, academics.ErrNotFound, "getting current semester")
	}
	return sem, nil
}

func (repo academicsRepository) SetCurrentSemester(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	// clear first: at most one semester may be flagged at any time
	if _, err := exe.ExecContext(ctx, exe.Rebind("UPDATE semesters SET is_current = ? WHERE is_current = ? AND id <> ?"), false, true, id); err != nil {
		return errors.Wrap(err, "clearing current semester")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE semesters SET is_current = ? WHERE id = ?"), true, id)
	if err != nil {
		return errors.Wrap(err, "flagging current semester")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academics.ErrNotFound
	}
	return nil
}

func (repo academicsRepository) CreateCourse(ctx context.Context, course academics.Course, exec ...core.DBExecutor) (academics.Course, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO courses (title, slug, description, category, duration, fee) VALUES (?, ?, ?, ?, ?, ?)",
		course.Title, course.Slug, course.Description, course.Category, course.Duration, course.Fee,
	)
	if err != nil {
		return academics.Course{}, trapUniqueErr(err, "slug", "a course with this slug already exists", "inserting course")
	}
	course.ID = id
	return course, nil
}

func (repo academicsRepository) QueryCourses(ctx context.Context, exec ...core.DBExecutor) ([]academics.Course, error) {
	exe := repo.getExec(exec)
	courses := make([]academics.Course, 0)
	err := exe.SelectContext(ctx, &courses, "SELECT "+courseColumns+" FROM courses ORDER BY title")
	return courses, errors.Wrap(err, "querying courses")
}

func (repo academicsRepository) GetCourse(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Course, error) {
	exe := repo.getExec(exec)
	var course academics.Course
	err := exe.GetContext(ctx, &course, exe.Rebind("SELECT "+courseColumns+" FROM courses WHERE id = ?"), id)
	if err != nil {
		return academics.Course{}, trapNoRowsErr(err, academics.ErrNotFound, "getting course")
	}
	return course, nil
}

func (repo academicsRepository) CreateSubject(ctx context.Context, subj academics.Subject, exec ...core.DBExecutor) (academics.Subject, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO subjects (code, title, description, created_at) VALUES (?, ?, ?, ?)",
		subj.Code, subj.Title, subj.Description, subj.CreatedAt,
	)
	if err != nil {
		return academics.Subject{}, trapUniqueErr(err, "code", "a subject with this code already exists", "inserting subject")
	}
	subj.ID = id
	return subj, nil
}

func (repo academicsRepository) QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]academics.Subject, error) {
	exe := repo.getExec(exec)
	subjects := make([]academics.Subject, 0)
	err := exe.SelectContext(ctx, &subjects, "SELECT "+subjectColumns+" FROM subjects ORDER BY code")
	return subjects, errors.Wrap(err, "querying subjects")
}

func (repo academicsRepository) GetSubject(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Subject, error) {
	exe := repo.getExec(exec)
	var subj academics.Subject
	err := exe.GetContext(ctx, &subj, exe.Rebind("SELECT "+subjectColumns+" FROM subjects WHERE id = ?"), id)
	if err != nil {
		return academics.Subject{}, trapNoRowsErr(err, academics.ErrNotFound, "getting subject")
	}
	return subj, nil
}

func (repo academicsRepository) CreateCourseSubject(ctx context.Context, cs academics.CourseSubject, exec ...core.DBExecutor) (academics.CourseSubject, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO course_subjects (course_id, subject_id, semester_id, instructor_id, is_active) VALUES (?, ?, ?, ?, ?)",
		cs.CourseID, cs.SubjectID, cs.SemesterID, cs.InstructorID, cs.IsActive,
	)
	if err != nil {
		return academics.CourseSubject{}, trapUniqueErr(err, "subject_id",
			"this subject is already offered in this course for this semester", "inserting course subject")
	}
	cs.ID = id
	return cs, nil
}

func (repo academicsRepository) QueryCourseSubjects(ctx context.Context, filter academics.CourseSubjectFilter, exec ...core.DBExecutor) ([]academics.CourseSubject, error) {
	exe := repo.getExec(exec)

	var where []string
	var args []interface{}
	if filter.CourseID > 0 {
		where, args = append(where, "course_id = ?"), append(args, filter.CourseID)
	}
	if filter.SubjectID > 0 {
		where, args = append(where, "subject_id = ?"), append(args, filter.SubjectID)
	}
	if filter.SemesterID > 0 {
		where, args = append(where, "semester_id = ?"), append(args, filter.SemesterID)
	}
	if filter.InstructorID > 0 {
		where, args = append(where, "instructor_id = ?"), append(args, filter.InstructorID)
	}
	if filter.ActiveOnly {
		where, args = append(where, "is_active = ?"), append(args, true)
	}

	q := "SELECT " + courseSubjectColumns + " FROM course_subjects"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	css := make([]academics.CourseSubject, 0)
	err := exe.SelectContext(ctx, &css, exe.Rebind(q), args...)
	return css, errors.Wrap(err, "querying course subjects")
}

func (repo academicsRepository) NextStudentSeq(ctx context.Context, exec ...core.DBExecutor) (int64, error) {
	exe := repo.getExec(exec)
	var seq int64
	err := exe.GetContext(ctx, &seq, "SELECT COALESCE(MAX(id), 0) + 1 FROM students")
	return seq, errors.Wrap(err, "getting next student sequence")
}

func (repo academicsRepository) CreateStudent(ctx context.Context, st academics.Student, exec ...core.DBExecutor) (academics.Student, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO students (user_id, full_name, email, phone, student_number, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		st.UserID, st.FullName, st.Email, st.Phone, st.StudentNumber, st.CreatedAt,
	)
	if err != nil {
		return academics.Student{}, trapUniqueErr(err, "student_number", "this student number is already taken", "inserting student")
	}
	st.ID = id
	return st, nil
}

func (repo academicsRepository) QueryStudents(ctx context.Context, exec ...core.DBExecutor) ([]academics.Student, error) {
	exe := repo.getExec(exec)
	students := make([]academics.Student, 0)
	err := exe.SelectContext(ctx, &students, "SELECT "+studentColumns+" FROM students ORDER BY full_name, id")
	return students, errors.Wrap(err, "querying students")
}

func (repo academicsRepository) GetStudent(ctx context.Context, filter academics.StudentFilter, exec ...core.DBExecutor) (academics.Student, error) {
	exe := repo.getExec(exec)
	var cond string
	var arg interface{}
	switch {
	case filter.ID > 0:
		cond, arg = "id = ?", filter.ID
	case filter.UserID != "":
		cond, arg = "user_id = ?", filter.UserID
	default:
		return academics.Student{}, academics.ErrNotFound
	}
	var st academics.Student
	err := exe.GetContext(ctx, &st, exe.Rebind("SELECT "+studentColumns+" FROM students WHERE "+cond), arg)
	if err != nil {
		return academics.Student{}, trapNoRowsErr(err, academics.ErrNotFound, "getting student")
	}
	return st, nil
}

func (repo academicsRepository) CreateInstructor(ctx context.Context, instr academics.Instructor, exec ...core.DBExecutor) (academics.Instructor, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO instructors (user_id, full_name, email, phone, created_at) VALUES (?, ?, ?, ?, ?)",
		instr.UserID, instr.FullName, instr.Email, instr.Phone, instr.CreatedAt,
	)
	if err != nil {
		return academics.Instructor{}, errors.Wrap(err, "inserting instructor")
	}
	instr.ID = id
	return instr, nil
}

func (repo academicsRepository) QueryInstructors(ctx context.Context, exec ...core.DBExecutor) ([]academics.Instructor, error) {
	exe := repo.getExec(exec)
	instrs := make([]academics.Instructor, 0)
	err := exe.SelectContext(ctx, &instrs, "SELECT "+instructorColumns+" FROM instructors ORDER BY full_name, id")
	return instrs, errors.Wrap(err, "querying instructors")
}

func (repo academicsRepository) GetInstructor(ctx context.Context, filter academics.InstructorFilter, exec ...core.DBExecutor) (academics.Instructor, error) {
	exe := repo.getExec(exec)
	var cond string
	var arg interface{}
	switch {
	case filter.ID > 0:
		cond, arg = "id = ?", filter.ID
	case filter.UserID != "":
		cond, arg = "user_id = ?", filter.UserID
	default:
		return academics.Instructor{}, academics.ErrNotFound
	}
	var instr academics.Instructor
	err := exe.GetContext(ctx, &instr, exe.Rebind("SELECT "+instructorColumns+" FROM instructors WHERE "+cond), arg)
	if err != nil {
		return academics.Instructor{}, trapNoRowsErr(err, academics.ErrNotFound, "getting instructor")
	}
	return instr, nil
}

func (repo academicsRepository) CreateEnrollment(ctx context.Context, enr academics.Enrollment, exec ...core.DBExecutor) (academics.Enrollment, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO enrollments (student_id, course_id, created_at) VALUES (?, ?, ?)",
		enr.StudentID, enr.CourseID, enr.CreatedAt,
	)
	if err != nil {
		return academics.Enrollment{}, trapUniqueErr(err, "course_ids", "student is already enrolled in this course", "inserting enrollment")
	}
	enr.ID = id
	return enr, nil
}

func (repo academicsRepository) QueryEnrollments(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]academics.Enrollment, error) {
	exe := repo.getExec(exec)
	enrs := make([]academics.Enrollment, 0)
	err := exe.SelectContext(ctx, &enrs, exe.Rebind("SELECT "+enrollmentColumns+" FROM enrollments WHERE student_id = ? ORDER BY id"), studentID)
	return enrs, errors.Wrap(err, "querying enrollments")
}

func (repo academicsRepository) CreateAnnouncement(ctx context.Context, ann academics.Announcement, exec ...core.DBExecutor) (academics.Announcement, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		"INSERT INTO announcements (course_id, title, content, created_at) VALUES (?, ?, ?, ?)",
		ann.CourseID, ann.Title, ann.Content, ann.CreatedAt,
	)
	if err != nil {
		return academics.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	ann.ID = id
	return ann, nil
}

func (repo academicsRepository) QueryAnnouncements(ctx context.Context, filter academics.AnnouncementFilter, exec ...core.DBExecutor) ([]academics.Announcement, error) {
	exe := repo.getExec(exec)
	anns := make([]academics.Announcement, 0)

	q := "SELECT " + announcementColumns + " FROM announcements"
	var args []interface{}
	if filter.CourseIDs != nil {
		if len(filter.CourseIDs) == 0 {
			return anns, nil
		}
		q += " WHERE course_id IN (?)"
		args = append(args, filter.CourseIDs)
	}
	q += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	q, args, err := inClause(exe, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building announcements query")
	}
	err = exe.SelectContext(ctx, &anns, q, args...)
	return anns, errors.Wrap(err, "querying announcements")
}

func (repo academicsRepository) SetNotificationPreference(ctx context.Context, studentID int64, emailEnabled bool, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(`INSERT INTO notification_preferences (student_id, email_enabled) VALUES (?, ?)
		ON CONFLICT (student_id) DO UPDATE SET email_enabled = excluded.email_enabled`), studentID, emailEnabled)
	return errors.Wrap(err, "setting notification preference")
}
