package coursework

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
)

var (
	nowFunc = time.Now // mockable

	ErrNotTaught = errors.New("subject not taught by this instructor in the current semester")

	dueDateLayout = "Jan 2, 2006 15:04"
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a academics.Assignment, exec ...core.DBExecutor) (academics.Assignment, error)
		GetAssignment(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Assignment, error)
		QueryAssignments(ctx context.Context, subjectIDs []int64, exec ...core.DBExecutor) ([]academics.Assignment, error)

		CreateMaterial(ctx context.Context, m academics.LearningMaterial, exec ...core.DBExecutor) (academics.LearningMaterial, error)
		QueryMaterials(ctx context.Context, subjectIDs []int64, exec ...core.DBExecutor) ([]academics.LearningMaterial, error)

		CreateSubmission(ctx context.Context, s academics.Submission, exec ...core.DBExecutor) (academics.Submission, error)
		GetSubmission(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.Submission, error)
		UpdateSubmission(ctx context.Context, s academics.Submission, exec ...core.DBExecutor) (academics.Submission, error)
		// QuerySubmissions lists the newest first.
		QuerySubmissions(ctx context.Context, filter SubmissionFilter, exec ...core.DBExecutor) ([]academics.Submission, error)

		GetSubjectEnrollment(ctx context.Context, id int64, exec ...core.DBExecutor) (academics.SubjectEnrollment, error)
		UpdateSubjectEnrollment(ctx context.Context, e academics.SubjectEnrollment, exec ...core.DBExecutor) (academics.SubjectEnrollment, error)

		// QueryTaughtSubjectIDs lists the subjects the instructor teaches in the semester.
		QueryTaughtSubjectIDs(ctx context.Context, semesterID, instructorID int64, exec ...core.DBExecutor) ([]int64, error)
		// QueryStudentSubjectIDs lists the subjects of the semester within the student's enrolled courses.
		QueryStudentSubjectIDs(ctx context.Context, semesterID, studentID int64, exec ...core.DBExecutor) ([]int64, error)
		// QueryRecipients lists, once each, the students enrolled in a course teaching the subject in the semester.
		QueryRecipients(ctx context.Context, semesterID, subjectID int64, exec ...core.DBExecutor) ([]Recipient, error)

		CreateNotifications(ctx context.Context, notifs []academics.Notification, exec ...core.DBExecutor) error
		// QueryNotifications lists the newest first; limit <= 0 means no limit.
		QueryNotifications(ctx context.Context, studentID int64, limit int, exec ...core.DBExecutor) ([]academics.Notification, error)
		MarkNotificationRead(ctx context.Context, studentID, id int64, exec ...core.DBExecutor) error
		MarkAllNotificationsRead(ctx context.Context, studentID int64, exec ...core.DBExecutor) (int, error)
		GetNotificationPreference(ctx context.Context, studentID int64, exec ...core.DBExecutor) (academics.NotificationPreference, error)
		SetNotificationPreference(ctx context.Context, studentID int64, emailEnabled bool, exec ...core.DBExecutor) error
	}

	// ProgressUpdater recomputes a student's progress in a subject.
	ProgressUpdater interface {
		UpdateSubject(ctx context.Context, sem *academics.Semester, studentID, subjectID int64) (int, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		acadRepo academics.Repository
		progress ProgressUpdater
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(
	db core.DB,
	repo Repository,
	acadRepo academics.Repository,
	progress ProgressUpdater,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		acadRepo: acadRepo,
		progress: progress,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// TaughtSubjectIDs lists the subjects the instructor teaches in the semester.
func (svc *Service) TaughtSubjectIDs(ctx context.Context, sem *academics.Semester, instructorID int64) ([]int64, error) {
	if sem == nil {
		return []int64{}, nil
	}
	return svc.repo.QueryTaughtSubjectIDs(ctx, sem.ID, instructorID)
}

// StudentSubjectIDs lists the subjects of the semester within the student's enrolled courses.
func (svc *Service) StudentSubjectIDs(ctx context.Context, sem *academics.Semester, studentID int64) ([]int64, error) {
	if sem == nil {
		return []int64{}, nil
	}
	return svc.repo.QueryStudentSubjectIDs(ctx, sem.ID, studentID)
}

// CheckTaught returns ErrNotTaught unless the instructor teaches the subject in the semester.
func (svc *Service) CheckTaught(ctx context.Context, sem *academics.Semester, instructorID, subjectID int64) error {
	ids, err := svc.TaughtSubjectIDs(ctx, sem, instructorID)
	if err != nil {
		return errors.Wrap(err, "querying taught subjects")
	}
	if !containsID(ids, subjectID) {
		return ErrNotTaught
	}
	return nil
}

// CreateAssignment stores the assignment and notifies the students taking its subject in the semester.
func (svc *Service) CreateAssignment(ctx context.Context, sem *academics.Semester, na NewAssignment) (academics.Assignment, error) {
	subj, err := svc.acadRepo.GetSubject(ctx, na.SubjectID)
	if err != nil {
		return academics.Assignment{}, trapNotFound(err, "subject_id", "subject not found")
	}

	title := "New Assignment: " + na.Title
	msg := fmt.Sprintf("A new assignment has been posted for %s. Due: %s", subj.Title, na.DueDate.UTC().Format(dueDateLayout))
	link := "/student/assignments"

	var a academics.Assignment
	var recipients []Recipient
	err = core.WithTx(ctx, svc.db, func(tx *sqlx.Tx) error {
		var err error
		a, err = svc.repo.CreateAssignment(ctx, academics.Assignment{
			SubjectID:   na.SubjectID,
			Title:       na.Title,
			Description: na.Description,
			DueDate:     na.DueDate.UTC(),
			FileURL:     null.NewString(na.FileURL, na.FileURL != ""),
			CreatedAt:   nowFunc().UTC(),
		}, tx)
		if err != nil {
			return errors.Wrap(err, "creating assignment")
		}
		recipients, err = svc.notify(ctx, sem, subj.ID, academics.Notification{
			Type:    academics.NotificationAssignment,
			Title:   title,
			Message: msg,
			Link:    link,
		}, tx)
		return err
	})
	if err != nil {
		return academics.Assignment{}, err
	}

	svc.emailRecipients(recipients, title, msg, link)
	return a, nil
}

func (svc *Service) QueryAssignments(ctx context.Context, subjectIDs []int64) ([]academics.Assignment, error) {
	if len(subjectIDs) == 0 {
		return []academics.Assignment{}, nil
	}
	return svc.repo.QueryAssignments(ctx, subjectIDs)
}

// CreateMaterial stores the learning material and notifies the students taking its subject in the semester.
func (svc *Service) CreateMaterial(ctx context.Context, sem *academics.Semester, nm NewMaterial) (academics.LearningMaterial, error) {
	subj, err := svc.acadRepo.GetSubject(ctx, nm.SubjectID)
	if err != nil {
		return academics.LearningMaterial{}, trapNotFound(err, "subject_id", "subject not found")
	}

	title := "New Material: " + nm.Title
	msg := fmt.Sprintf("A new %s has been uploaded for %s", nm.Type, subj.Title)
	link := fmt.Sprintf("/student/materials?subject_id=%d", subj.ID)

	var m academics.LearningMaterial
	var recipients []Recipient
	err = core.WithTx(ctx, svc.db, func(tx *sqlx.Tx) error {
		var err error
		m, err = svc.repo.CreateMaterial(ctx, academics.LearningMaterial{
			SubjectID: nm.SubjectID,
			Title:     nm.Title,
			Type:      nm.Type,
			URL:       nm.URL,
			CreatedAt: nowFunc().UTC(),
		}, tx)
		if err != nil {
			return errors.Wrap(err, "creating material")
		}
		recipients, err = svc.notify(ctx, sem, subj.ID, academics.Notification{
			Type:    academics.NotificationMaterial,
			Title:   title,
			Message: msg,
			Link:    link,
		}, tx)
		return err
	})
	if err != nil {
		return academics.LearningMaterial{}, err
	}

	svc.emailRecipients(recipients, title, msg, link)
	return m, nil
}

func (svc *Service) QueryMaterials(ctx context.Context, subjectIDs []int64) ([]academics.LearningMaterial, error) {
	if len(subjectIDs) == 0 {
		return []academics.LearningMaterial{}, nil
	}
	return svc.repo.QueryMaterials(ctx, subjectIDs)
}

// notify creates one in-app notification per recipient and returns the recipients.
func (svc *Service) notify(ctx context.Context, sem *academics.Semester, subjectID int64, tmpl academics.Notification, exec core.DBExecutor) ([]Recipient, error) {
	if sem == nil {
		return nil, nil
	}
	recipients, err := svc.repo.QueryRecipients(ctx, sem.ID, subjectID, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying recipients")
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	now := nowFunc().UTC()
	notifs := make([]academics.Notification, 0, len(recipients))
	for _, r := range recipients {
		n := tmpl
		n.StudentID = r.StudentID
		n.CreatedAt = now
		notifs = append(notifs, n)
	}
	if err = svc.repo.CreateNotifications(ctx, notifs, exec); err != nil {
		return nil, errors.Wrap(err, "creating notifications")
	}
	return recipients, nil
}

// emailRecipients emails the recipients who opted in.
func (svc *Service) emailRecipients(recipients []Recipient, title, msg, link string) {
	messages := make([]*core.EmailMessage, 0, len(recipients))
	for _, r := range recipients {
		if !r.EmailEnabled || r.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: r.FullName, Address: r.Email}},
			Subject:      title,
			TemplateName: "new_coursework",
			TemplateData: NewCourseworkData{FullName: r.FullName, Title: title, Message: msg, Link: link},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}

// Submit records the student's submission then recomputes their progress in the assignment's subject.
// A failing recomputation does not fail the submission.
func (svc *Service) Submit(ctx context.Context, sem *academics.Semester, studentID int64, ns NewSubmission) (academics.Submission, error) {
	a, err := svc.repo.GetAssignment(ctx, ns.AssignmentID)
	if err != nil {
		return academics.Submission{}, err
	}

	sub, err := svc.repo.CreateSubmission(ctx, academics.Submission{
		AssignmentID: a.ID,
		StudentID:    studentID,
		FileURL:      ns.FileURL,
		SubmittedAt:  nowFunc().UTC(),
	})
	if err != nil {
		return academics.Submission{}, errors.Wrap(err, "creating submission")
	}

	svc.updateProgress(ctx, sem, studentID, a.SubjectID)
	return sub, nil
}

// updateProgress recomputes the student's progress in the subject. The coursework row is already
// stored at this point, so a failure is logged and left to the next progress sync.
func (svc *Service) updateProgress(ctx context.Context, sem *academics.Semester, studentID, subjectID int64) {
	if _, err := svc.progress.UpdateSubject(ctx, sem, studentID, subjectID); err != nil {
		svc.logger.Error(
			fmt.Sprintf("updating progress of student %d in subject %d: %v", studentID, subjectID, err),
			errors.Wrap(err, "updating progress"),
		)
	}
}

func (svc *Service) QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]academics.Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter)
}

// GetSubmission returns the submission along with its assignment.
func (svc *Service) GetSubmission(ctx context.Context, id int64) (academics.Submission, academics.Assignment, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return academics.Submission{}, academics.Assignment{}, err
	}
	a, err := svc.repo.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return academics.Submission{}, academics.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return sub, a, nil
}

// GradeSubmission sets the grade and/or score; a new score triggers a progress recomputation.
func (svc *Service) GradeSubmission(ctx context.Context, sem *academics.Semester, id int64, gs GradeSubmission) (academics.Submission, error) {
	sub, a, err := svc.GetSubmission(ctx, id)
	if err != nil {
		return academics.Submission{}, err
	}
	if gs.Grade != "" {
		sub.Grade = gs.Grade
	}
	if gs.Score != nil {
		sub.Score = null.IntFrom(*gs.Score)
	}
	if sub, err = svc.repo.UpdateSubmission(ctx, sub); err != nil {
		return academics.Submission{}, errors.Wrap(err, "updating submission")
	}

	if gs.Score != nil {
		svc.updateProgress(ctx, sem, sub.StudentID, a.SubjectID)
	}
	return sub, nil
}

func (svc *Service) GetSubjectEnrollment(ctx context.Context, id int64) (academics.SubjectEnrollment, error) {
	return svc.repo.GetSubjectEnrollment(ctx, id)
}

// GradeEnrollment sets the letter grade and/or final score of a subject enrollment.
func (svc *Service) GradeEnrollment(ctx context.Context, id int64, ge GradeEnrollment) (academics.SubjectEnrollment, error) {
	enr, err := svc.repo.GetSubjectEnrollment(ctx, id)
	if err != nil {
		return academics.SubjectEnrollment{}, err
	}
	if ge.Grade != "" {
		enr.Grade = ge.Grade
	}
	if ge.FinalScore != nil {
		enr.FinalScore = null.IntFrom(*ge.FinalScore)
	}
	enr.UpdatedAt = nowFunc().UTC()
	enr, err = svc.repo.UpdateSubjectEnrollment(ctx, enr)
	return enr, errors.Wrap(err, "updating subject enrollment")
}

// Notifications

func (svc *Service) Notifications(ctx context.Context, studentID int64, limit int) ([]academics.Notification, error) {
	return svc.repo.QueryNotifications(ctx, studentID, limit)
}

func (svc *Service) MarkNotificationRead(ctx context.Context, studentID, id int64) error {
	return svc.repo.MarkNotificationRead(ctx, studentID, id)
}

func (svc *Service) MarkAllNotificationsRead(ctx context.Context, studentID int64) (int, error) {
	return svc.repo.MarkAllNotificationsRead(ctx, studentID)
}

// ToggleEmailNotifications flips the student's email preference and returns the new one.
func (svc *Service) ToggleEmailNotifications(ctx context.Context, studentID int64) (academics.NotificationPreference, error) {
	pref, err := svc.repo.GetNotificationPreference(ctx, studentID)
	if err != nil {
		return academics.NotificationPreference{}, errors.Wrap(err, "getting notification preference")
	}
	pref.EmailEnabled = !pref.EmailEnabled
	if err = svc.repo.SetNotificationPreference(ctx, studentID, pref.EmailEnabled); err != nil {
		return academics.NotificationPreference{}, errors.Wrap(err, "setting notification preference")
	}
	return pref, nil
}

func trapNotFound(err error, field, msg string) error {
	if errors.Cause(err) == academics.ErrNotFound {
		return core.NewFieldError(field, msg)
	}
	return err
}

func containsID(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
