// Package portal assembles the read models of the student & instructor portals.
package portal

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/coursework"
)

var (
	dashboardNotifications = 5
	dashboardAnnouncements = 5
	latestSubmissions      = 3
)

type (
	Repository interface {
		// QueryStudentSubjects lists, once each, the subjects of the semester's active course-subjects
		// within the student's enrolled courses.
		QueryStudentSubjects(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) ([]academics.Subject, error)
		CountAssignments(ctx context.Context, subjectID int64, exec ...core.DBExecutor) (int, error)
		CountMaterials(ctx context.Context, subjectID int64, exec ...core.DBExecutor) (int, error)
		AverageScore(ctx context.Context, studentID, subjectID int64, exec ...core.DBExecutor) (null.Float64, error)
		// FindSubjectEnrollment returns academics.ErrNotFound when the student has none for the subject in the semester.
		FindSubjectEnrollment(ctx context.Context, semesterID, studentID, subjectID int64, exec ...core.DBExecutor) (academics.SubjectEnrollment, error)
		AverageProgress(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) (null.Float64, error)

		QueryTaughtSubjects(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) ([]TaughtSubject, error)
		QueryLatestSubmissions(ctx context.Context, subjectIDs []int64, limit int, exec ...core.DBExecutor) ([]SubmissionRow, error)
		// EnsureSubjectEnrollments creates the missing subject enrollments of every student enrolled in a course
		// of the instructor's course-subjects, leaving existing ones untouched. It returns how many were created.
		EnsureSubjectEnrollments(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) (int, error)
		QueryMonitoring(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) ([]MonitoringRow, error)
	}

	SubjectCard struct {
		SubjectID   int64   `json:"id"`
		Code        string  `json:"code"`
		Title       string  `json:"title"`
		Progress    int     `json:"progress"`
		AvgScore    float64 `json:"avg_score"`
		Assignments int     `json:"assignments_count"`
		Materials   int     `json:"materials_count"`
	}

	StudentDashboard struct {
		Semester        *academics.Semester      `json:"semester"`
		Subjects        []SubjectCard            `json:"subjects"`
		OverallProgress float64                  `json:"overall_progress"`
		OverallAvgScore float64                  `json:"avg_score"`
		Notifications   []academics.Notification `json:"notifications"`
		Announcements   []academics.Announcement `json:"announcements"`
	}

	SubjectDetail struct {
		Subject        academics.Subject            `json:"subject"`
		CourseSubjects []academics.CourseSubject    `json:"course_subjects"`
		Assignments    []academics.Assignment       `json:"assignments"`
		Materials      []academics.LearningMaterial `json:"materials"`
		Enrollment     *academics.SubjectEnrollment `json:"enrollment"`
		Progress       int                          `json:"progress"`
		AvgScore       float64                      `json:"avg_score"`
	}

	TaughtSubject struct {
		SubjectID int64        `json:"id" db:"subject_id"`
		Code      string       `json:"code" db:"code"`
		Title     string       `json:"title" db:"title"`
		Enrolled  int          `json:"num_enrolled" db:"num_enrolled"`
		AvgScore  null.Float64 `json:"avg_score" db:"avg_score"`
	}

	SubmissionRow struct {
		academics.Submission
		StudentName     string `json:"student_name" db:"student_name"`
		AssignmentTitle string `json:"assignment_title" db:"assignment_title"`
		SubjectID       int64  `json:"subject_id" db:"subject_id"`
	}

	InstructorDashboard struct {
		Semester          *academics.Semester `json:"semester"`
		Subjects          []TaughtSubject     `json:"subjects"`
		LatestSubmissions []SubmissionRow     `json:"latest_submissions"`
	}

	MonitoringRow struct {
		EnrollmentID  int64     `json:"enrollment_id" db:"enrollment_id"`
		StudentID     int64     `json:"student_id" db:"student_id"`
		StudentName   string    `json:"student_name" db:"student_name"`
		StudentNumber string    `json:"student_number" db:"student_number"`
		CourseTitle   string    `json:"course_title" db:"course_title"`
		SubjectCode   string    `json:"subject_code" db:"subject_code"`
		SubjectTitle  string    `json:"subject_title" db:"subject_title"`
		Progress      int       `json:"progress" db:"progress"`
		Grade         string    `json:"grade" db:"grade"`
		FinalScore    null.Int  `json:"final_score" db:"final_score"`
		UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
	}

	Service struct {
		repo     Repository
		acadRepo academics.Repository
		cwRepo   coursework.Repository
	}
)

func NewService(repo Repository, acadRepo academics.Repository, cwRepo coursework.Repository) *Service {
	return &Service{repo: repo, acadRepo: acadRepo, cwRepo: cwRepo}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// StudentDashboard summarises the student's semester subject by subject, along with the latest
// announcements of their courses. Without a semester only the notifications are filled in.
func (svc *Service) StudentDashboard(ctx context.Context, sem *academics.Semester, studentID int64) (StudentDashboard, error) {
	dash := StudentDashboard{
		Semester:      sem,
		Subjects:      make([]SubjectCard, 0),
		Notifications: make([]academics.Notification, 0),
		Announcements: make([]academics.Announcement, 0),
	}

	notifs, err := svc.cwRepo.QueryNotifications(ctx, studentID, dashboardNotifications)
	if err != nil {
		return dash, errors.Wrap(err, "querying notifications")
	}
	dash.Notifications = append(dash.Notifications, notifs...)

	if sem == nil {
		return dash, nil
	}

	subjects, err := svc.repo.QueryStudentSubjects(ctx, sem.ID, studentID)
	if err != nil {
		return dash, errors.Wrap(err, "querying student subjects")
	}

	var scoreSum float64
	for _, subj := range subjects {
		card, err := svc.subjectCard(ctx, sem, studentID, subj)
		if err != nil {
			return dash, err
		}
		scoreSum += card.AvgScore
		dash.Subjects = append(dash.Subjects, card)
	}
	if len(dash.Subjects) > 0 {
		dash.OverallAvgScore = round2(scoreSum / float64(len(dash.Subjects)))
	}

	avgProgress, err := svc.repo.AverageProgress(ctx, sem.ID, studentID)
	if err != nil {
		return dash, errors.Wrap(err, "averaging progress")
	}
	dash.OverallProgress = round2(avgProgress.Float64)

	enrs, err := svc.acadRepo.QueryEnrollments(ctx, studentID)
	if err != nil {
		return dash, errors.Wrap(err, "querying enrollments")
	}
	courseIDs := make([]int64, 0, len(enrs))
	for _, enr := range enrs {
		courseIDs = append(courseIDs, enr.CourseID)
	}
	anns, err := svc.acadRepo.QueryAnnouncements(ctx, academics.AnnouncementFilter{CourseIDs: courseIDs, Limit: dashboardAnnouncements})
	if err != nil {
		return dash, errors.Wrap(err, "querying announcements")
	}
	dash.Announcements = append(dash.Announcements, anns...)
	return dash, nil
}

func (svc *Service) subjectCard(ctx context.Context, sem *academics.Semester, studentID int64, subj academics.Subject) (SubjectCard, error) {
	card := SubjectCard{SubjectID: subj.ID, Code: subj.Code, Title: subj.Title}

	progress, avg, err := svc.performance(ctx, sem, studentID, subj.ID)
	if err != nil {
		return card, err
	}
	card.Progress = progress
	card.AvgScore = avg

	if card.Assignments, err = svc.repo.CountAssignments(ctx, subj.ID); err != nil {
		return card, errors.Wrap(err, "counting assignments")
	}
	if card.Materials, err = svc.repo.CountMaterials(ctx, subj.ID); err != nil {
		return card, errors.Wrap(err, "counting materials")
	}
	return card, nil
}

// performance returns the stored progress (0 without enrollment) and the rounded average score.
func (svc *Service) performance(ctx context.Context, sem *academics.Semester, studentID, subjectID int64) (int, float64, error) {
	var progress int
	enr, err := svc.repo.FindSubjectEnrollment(ctx, sem.ID, studentID, subjectID)
	switch {
	case err == nil:
		progress = enr.Progress
	case errors.Cause(err) != academics.ErrNotFound:
		return 0, 0, errors.Wrap(err, "finding subject enrollment")
	}

	avg, err := svc.repo.AverageScore(ctx, studentID, subjectID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "averaging scores")
	}
	return progress, round2(avg.Float64), nil
}

// SubjectDetail returns academics.ErrNotFound when the subject is not taught in the semester.
func (svc *Service) SubjectDetail(ctx context.Context, sem *academics.Semester, studentID, subjectID int64) (SubjectDetail, error) {
	var detail SubjectDetail
	if sem == nil {
		return detail, academics.ErrNotFound
	}

	subj, err := svc.acadRepo.GetSubject(ctx, subjectID)
	if err != nil {
		return detail, err
	}
	css, err := svc.acadRepo.QueryCourseSubjects(ctx, academics.CourseSubjectFilter{SubjectID: subjectID, SemesterID: sem.ID})
	if err != nil {
		return detail, errors.Wrap(err, "querying course subjects")
	}
	if len(css) == 0 {
		return detail, academics.ErrNotFound
	}

	detail.Subject = subj
	detail.CourseSubjects = css
	if detail.Assignments, err = svc.cwRepo.QueryAssignments(ctx, []int64{subjectID}); err != nil {
		return detail, errors.Wrap(err, "querying assignments")
	}
	if detail.Materials, err = svc.cwRepo.QueryMaterials(ctx, []int64{subjectID}); err != nil {
		return detail, errors.Wrap(err, "querying materials")
	}

	enr, err := svc.repo.FindSubjectEnrollment(ctx, sem.ID, studentID, subjectID)
	switch {
	case err == nil:
		detail.Enrollment = &enr
		detail.Progress = enr.Progress
	case errors.Cause(err) != academics.ErrNotFound:
		return detail, errors.Wrap(err, "finding subject enrollment")
	}

	avg, err := svc.repo.AverageScore(ctx, studentID, subjectID)
	if err != nil {
		return detail, errors.Wrap(err, "averaging scores")
	}
	detail.AvgScore = round2(avg.Float64)
	return detail, nil
}

// InstructorDashboard lists the subjects taught in the semester and the latest submissions to them.
func (svc *Service) InstructorDashboard(ctx context.Context, sem *academics.Semester, instructorID int64) (InstructorDashboard, error) {
	dash := InstructorDashboard{
		Semester:          sem,
		Subjects:          make([]TaughtSubject, 0),
		LatestSubmissions: make([]SubmissionRow, 0),
	}
	if sem == nil {
		return dash, nil
	}

	subjects, err := svc.repo.QueryTaughtSubjects(ctx, sem.ID, instructorID)
	if err != nil {
		return dash, errors.Wrap(err, "querying taught subjects")
	}
	if len(subjects) == 0 {
		return dash, nil
	}
	dash.Subjects = subjects

	ids := make([]int64, 0, len(subjects))
	for _, s := range subjects {
		ids = append(ids, s.SubjectID)
	}
	subs, err := svc.repo.QueryLatestSubmissions(ctx, ids, latestSubmissions)
	if err != nil {
		return dash, errors.Wrap(err, "querying latest submissions")
	}
	dash.LatestSubmissions = append(dash.LatestSubmissions, subs...)
	return dash, nil
}

// Monitoring makes sure every student of the instructor's course-subjects has a subject enrollment,
// then lists them all.
func (svc *Service) Monitoring(ctx context.Context, sem *academics.Semester, instructorID int64) ([]MonitoringRow, error) {
	if sem == nil {
		return []MonitoringRow{}, nil
	}
	if _, err := svc.repo.EnsureSubjectEnrollments(ctx, sem.ID, instructorID); err != nil {
		return nil, errors.Wrap(err, "ensuring subject enrollments")
	}
	rows, err := svc.repo.QueryMonitoring(ctx, sem.ID, instructorID)
	if err != nil {
		return nil, errors.Wrap(err, "querying monitoring")
	}
	if rows == nil {
		rows = []MonitoringRow{}
	}
	return rows, nil
}
