package academics

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound          = errors.New("not found")
	ErrNoCurrentSemester = errors.New("no current semester found")

	generatedPwdLen = 12
)

// Portals, as named in account emails and login links.
const (
	PortalStudent    = "student"
	PortalInstructor = "instructor"
)

type (
	Repository interface {
		CreateSemester(ctx context.Context, sem Semester, exec ...core.DBExecutor) (Semester, error)
		QuerySemesters(ctx context.Context, exec ...core.DBExecutor) ([]Semester, error)
		GetSemester(ctx context.Context, id int64, exec ...core.DBExecutor) (Semester, error)
		// GetCurrentSemester returns ErrNotFound when no semester is flagged current.
		GetCurrentSemester(ctx context.Context, exec ...core.DBExecutor) (Semester, error)
		// SetCurrentSemester flags the semester as current and clears the flag on all others.
		SetCurrentSemester(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreateCourse(ctx context.Context, course Course, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id int64, exec ...core.DBExecutor) (Course, error)

		CreateSubject(ctx context.Context, subj Subject, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]Subject, error)
		GetSubject(ctx context.Context, id int64, exec ...core.DBExecutor) (Subject, error)

		CreateCourseSubject(ctx context.Context, cs CourseSubject, exec ...core.DBExecutor) (CourseSubject, error)
		QueryCourseSubjects(ctx context.Context, filter CourseSubjectFilter, exec ...core.DBExecutor) ([]CourseSubject, error)

		// NextStudentSeq returns the highest student ID + 1.
		NextStudentSeq(ctx context.Context, exec ...core.DBExecutor) (int64, error)
		CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) (Student, error)

		CreateInstructor(ctx context.Context, instr Instructor, exec ...core.DBExecutor) (Instructor, error)
		QueryInstructors(ctx context.Context, exec ...core.DBExecutor) ([]Instructor, error)
		GetInstructor(ctx context.Context, filter InstructorFilter, exec ...core.DBExecutor) (Instructor, error)

		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]Enrollment, error)

		CreateAnnouncement(ctx context.Context, ann Announcement, exec ...core.DBExecutor) (Announcement, error)
		QueryAnnouncements(ctx context.Context, filter AnnouncementFilter, exec ...core.DBExecutor) ([]Announcement, error)

		SetNotificationPreference(ctx context.Context, studentID int64, emailEnabled bool, exec ...core.DBExecutor) error
	}

	Service interface {
		// CurrentSemester resolves the semester every progress & coursework operation runs against:
		// the configured override if any, else the semester flagged current. No semester yields (nil, nil).
		CurrentSemester(ctx context.Context) (*Semester, error)
		CreateSemester(ctx context.Context, ns NewSemester) (Semester, error)
		QuerySemesters(ctx context.Context) ([]Semester, error)
		SetCurrentSemester(ctx context.Context, id int64) (Semester, error)

		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		QueryCourses(ctx context.Context) ([]Course, error)
		CreateSubject(ctx context.Context, ns NewSubject) (Subject, error)
		QuerySubjects(ctx context.Context) ([]Subject, error)
		CreateCourseSubject(ctx context.Context, ncs NewCourseSubject) (CourseSubject, error)
		QueryCourseSubjects(ctx context.Context, filter CourseSubjectFilter) ([]CourseSubject, error)
		CreateAnnouncement(ctx context.Context, na NewAnnouncement) (Announcement, error)
		QueryAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]Announcement, error)

		RegisterStudent(ctx context.Context, ns NewStudent) (Student, error)
		QueryStudents(ctx context.Context) ([]Student, error)
		GetStudent(ctx context.Context, filter StudentFilter) (Student, error)
		QueryEnrollments(ctx context.Context, studentID int64) ([]Enrollment, error)

		RegisterInstructor(ctx context.Context, ni NewInstructor) (Instructor, error)
		QueryInstructors(ctx context.Context) ([]Instructor, error)
		GetInstructor(ctx context.Context, filter InstructorFilter) (Instructor, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
		conf    *core.Config
	}

	// AccountCreatedData feeds the `account_created` email template.
	AccountCreatedData struct {
		FullName      string
		Portal        string
		StudentNumber string
		Username      string
		Password      string
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:      db,
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CurrentSemester(ctx context.Context) (*Semester, error) {
	var sem Semester
	var err error
	if id := svc.conf.Academics.CurrentSemesterID; id > 0 {
		sem, err = svc.repo.GetSemester(ctx, id)
	} else {
		sem, err = svc.repo.GetCurrentSemester(ctx)
	}
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting current semester")
	}
	return &sem, nil
}

func (svc *service) CreateSemester(ctx context.Context, ns NewSemester) (Semester, error) {
	var sem Semester
	err := core.WithTx(ctx, svc.db, func(tx *sqlx.Tx) error {
		var err error
		sem, err = svc.repo.CreateSemester(ctx, Semester{
			Name:      ns.Name,
			StartDate: ns.StartDate.UTC(),
			EndDate:   ns.EndDate.UTC(),
		}, tx)
		if err != nil {
			return err
		}
		if ns.IsCurrent {
			if err = svc.repo.SetCurrentSemester(ctx, sem.ID, tx); err != nil {
				return err
			}
			sem.IsCurrent = true
		}
		return nil
	})
	return sem, errors.Wrap(err, "creating semester")
}

func (svc *service) QuerySemesters(ctx context.Context) ([]Semester, error) {
	return svc.repo.QuerySemesters(ctx)
}

func (svc *service) SetCurrentSemester(ctx context.Context, id int64) (Semester, error) {
	if _, err := svc.repo.GetSemester(ctx, id); err != nil {
		return Semester{}, err
	}
	err := core.WithTx(ctx, svc.db, func(tx *sqlx.Tx) error {
		return svc.repo.SetCurrentSemester(ctx, id, tx)
	})
	if err != nil {
		return Semester{}, errors.Wrap(err, "setting current semester")
	}
	return svc.repo.GetSemester(ctx, id)
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	return svc.repo.CreateCourse(ctx, Course{
		Title:       nc.Title,
		Slug:        nc.Slug,
		Description: nc.Description,
		Category:    nc.Category,
		Duration:    nc.Duration,
		Fee:         null.Float64FromPtr(nc.Fee),
	})
}

func (svc *service) QueryCourses(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryCourses(ctx)
}

func (svc *service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	return svc.repo.CreateSubject(ctx, Subject{
		Code:        ns.Code,
		Title:       ns.Title,
		Description: ns.Description,
		CreatedAt:   nowFunc().UTC(),
	})
}

func (svc *service) QuerySubjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx)
}

func (svc *service) CreateCourseSubject(ctx context.Context, ncs NewCourseSubject) (CourseSubject, error) {
	if _, err := svc.repo.GetCourse(ctx, ncs.CourseID); err != nil {
		return CourseSubject{}, svc.trapNotFound(err, "course_id", "course not found")
	}
	if _, err := svc.repo.GetSubject(ctx, ncs.SubjectID); err != nil {
		return CourseSubject{}, svc.trapNotFound(err, "subject_id", "subject not found")
	}
	if _, err := svc.repo.GetSemester(ctx, ncs.SemesterID); err != nil {
		return CourseSubject{}, svc.trapNotFound(err, "semester_id", "semester not found")
	}
	if ncs.InstructorID != nil {
		if _, err := svc.repo.GetInstructor(ctx, InstructorFilter{ID: *ncs.InstructorID}); err != nil {
			return CourseSubject{}, svc.trapNotFound(err, "instructor_id", "instructor not found")
		}
	}

	isActive := true
	if ncs.IsActive != nil {
		isActive = *ncs.IsActive
	}
	return svc.repo.CreateCourseSubject(ctx, CourseSubject{
		CourseID:     ncs.CourseID,
		SubjectID:    ncs.SubjectID,
		SemesterID:   ncs.SemesterID,
		InstructorID: null.Int64FromPtr(ncs.InstructorID),
		IsActive:     isActive,
	})
}

func (svc *service) QueryCourseSubjects(ctx context.Context, filter CourseSubjectFilter) ([]CourseSubject, error) {
	return svc.repo.QueryCourseSubjects(ctx, filter)
}

func (svc *service) CreateAnnouncement(ctx context.Context, na NewAnnouncement) (Announcement, error) {
	if _, err := svc.repo.GetCourse(ctx, na.CourseID); err != nil {
		return Announcement{}, svc.trapNotFound(err, "course_id", "course not found")
	}
	return svc.repo.CreateAnnouncement(ctx, Announcement{
		CourseID:  na.CourseID,
		Title:     na.Title,
		Content:   na.Content,
		CreatedAt: nowFunc().UTC(),
	})
}

func (svc *service) QueryAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, filter)
}

// trapNotFound maps ErrNotFound on a referenced object to a field error.
func (svc *service) trapNotFound(err error, field, msg string) error {
	if errors.Cause(err) == ErrNotFound {
		return core.NewFieldError(field, msg)
	}
	return err
}

func (svc *service) RegisterStudent(ctx context.Context, ns NewStudent) (Student, error) {
	for _, courseID := range ns.CourseIDs {
		if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
			return Student{}, svc.trapNotFound(err, "course_ids", fmt.Sprintf("course %d not found", courseID))
		}
	}

	pwd, err := user.GeneratePassword(generatedPwdLen)
	if err != nil {
		return Student{}, errors.Wrap(err, "generating password")
	}

	var st Student
	err = core.WithTx(ctx, svc.db, func(tx *sqlx.Tx) error {
		usr, err := svc.usrSvc.Create(ctx, user.NewUser{
			Name:     ns.FullName,
			Username: ns.Username,
			Email:    ns.Email,
			Password: pwd,
			Roles:    []string{user.RoleStudent},
		}, tx)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		now := nowFunc().UTC()
		number := ns.StudentNumber
		if number == "" {
			seq, err := svc.repo.NextStudentSeq(ctx, tx)
			if err != nil {
				return errors.Wrap(err, "getting next student sequence")
			}
			number = fmt.Sprintf("SIAT-%d-%04d", now.Year(), seq)
		}

		st, err = svc.repo.CreateStudent(ctx, Student{
			UserID:        usr.ID,
			FullName:      ns.FullName,
			Email:         ns.Email,
			Phone:         ns.Phone,
			StudentNumber: number,
			CreatedAt:     now,
		}, tx)
		if err != nil {
			return errors.Wrap(err, "creating student")
		}

		for _, courseID := range ns.CourseIDs {
			if _, err = svc.repo.CreateEnrollment(ctx, Enrollment{StudentID: st.ID, CourseID: courseID, CreatedAt: now}, tx); err != nil {
				return errors.Wrap(err, "creating enrollment")
			}
		}
		return errors.Wrap(
			svc.repo.SetNotificationPreference(ctx, st.ID, ns.EmailNotifications, tx),
			"setting notification preference",
		)
	})
	if err != nil {
		return Student{}, errors.Wrap(err, "registering student")
	}

	svc.sendAccountCreated(ns.FullName, ns.Email, PortalStudent, st.StudentNumber, ns.Username, pwd)
	return st, nil
}

func (svc *service) QueryStudents(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryStudents(ctx)
}

func (svc *service) GetStudent(ctx context.Context, filter StudentFilter) (Student, error) {
	return svc.repo.GetStudent(ctx, filter)
}

func (svc *service) QueryEnrollments(ctx context.Context, studentID int64) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, studentID)
}

func (svc *service) RegisterInstructor(ctx context.Context, ni NewInstructor) (Instructor, error) {
	pwd, err := user.GeneratePassword(generatedPwdLen)
	if err != nil {
		return Instructor{}, errors.Wrap(err, "generating password")
	}

	var instr Instructor
	err = core.WithTx(ctx, svc.db, func(tx *sqlx.Tx) error {
		usr, err := svc.usrSvc.Create(ctx, user.NewUser{
			Name:     ni.FullName,
			Username: ni.Username,
			Email:    ni.Email,
			Password: pwd,
			Roles:    []string{user.RoleInstructor},
		}, tx)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		instr, err = svc.repo.CreateInstructor(ctx, Instructor{
			UserID:    usr.ID,
			FullName:  ni.FullName,
			Email:     ni.Email,
			Phone:     ni.Phone,
			CreatedAt: nowFunc().UTC(),
		}, tx)
		return errors.Wrap(err, "creating instructor")
	})
	if err != nil {
		return Instructor{}, errors.Wrap(err, "registering instructor")
	}

	svc.sendAccountCreated(ni.FullName, ni.Email, PortalInstructor, "", ni.Username, pwd)
	return instr, nil
}

func (svc *service) QueryInstructors(ctx context.Context) ([]Instructor, error) {
	return svc.repo.QueryInstructors(ctx)
}

func (svc *service) GetInstructor(ctx context.Context, filter InstructorFilter) (Instructor, error) {
	return svc.repo.GetInstructor(ctx, filter)
}

func (svc *service) sendAccountCreated(name, email, portal, number, uname, pwd string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: email}},
		Subject:      "Your " + portal + " portal account",
		TemplateName: "account_created",
		TemplateData: AccountCreatedData{
			FullName:      name,
			Portal:        portal,
			StudentNumber: number,
			Username:      uname,
			Password:      pwd,
		},
	})
}
