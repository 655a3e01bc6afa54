package academics

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/user"
)

type NewSemester struct {
	Name      string    `json:"name" validate:"required,max=50"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	IsCurrent bool      `json:"is_current"`
}

func (ns *NewSemester) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

type NewCourse struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Slug        string   `json:"slug" validate:"omitempty,max=220"`
	Description string   `json:"description"`
	Category    string   `json:"category" validate:"required,oneof=short_certificate diploma"`
	Duration    string   `json:"duration" validate:"max=100"`
	Fee         *float64 `json:"fee" validate:"omitempty,gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Slug = core.Slugify(nc.Slug)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Title)
	}
	if nc.Category == "" {
		nc.Category = CategoryDiploma
	}
	return validate.Struct(nc)
}

type NewSubject struct {
	Code        string `json:"code" validate:"required,max=20"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Code = strings.ToUpper(core.CleanString(ns.Code))
	ns.Title = core.CleanString(ns.Title)
	return validate.Struct(ns)
}

type NewAnnouncement struct {
	CourseID int64  `json:"course_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Content = strings.TrimSpace(na.Content)
	return validate.Struct(na)
}

type NewCourseSubject struct {
	CourseID     int64  `json:"course_id" validate:"required"`
	SubjectID    int64  `json:"subject_id" validate:"required"`
	SemesterID   int64  `json:"semester_id" validate:"required"`
	InstructorID *int64 `json:"instructor_id"`
	IsActive     *bool  `json:"is_active"`
}

func (ncs *NewCourseSubject) Validate(validate *validator.Validate) error {
	return validate.Struct(ncs)
}

// NewStudent contains the information needed to register a Student and their user account.
type NewStudent struct {
	FullName           string  `json:"full_name" validate:"required,max=200"`
	Email              string  `json:"email" validate:"required,email"`
	Phone              string  `json:"phone" validate:"max=20"`
	Username           string  `json:"username" validate:"omitempty,min=4,alphanum_"`
	StudentNumber      string  `json:"student_number" validate:"max=50"`
	CourseIDs          []int64 `json:"course_ids" validate:"dive,required"`
	EmailNotifications bool    `json:"email_notifications"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, usrSvc user.Service) error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.StudentNumber = core.CleanString(ns.StudentNumber)
	ns.Username = defaultUsername(ns.Username, ns.Email)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return errors.Wrap(usrSvc.CheckUniqueness(ctx, ns.Username, ns.Email), "checking user uniqueness")
}

// NewInstructor contains the information needed to register an Instructor and their user account.
type NewInstructor struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=20"`
	Username string `json:"username" validate:"omitempty,min=4,alphanum_"`
}

func (ni *NewInstructor) Validate(ctx context.Context, validate *validator.Validate, usrSvc user.Service) error {
	ni.FullName = core.CleanString(ni.FullName)
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	ni.Phone = core.CleanString(ni.Phone)
	ni.Username = defaultUsername(ni.Username, ni.Email)
	if err := validate.Struct(ni); err != nil {
		return err
	}
	return errors.Wrap(usrSvc.CheckUniqueness(ctx, ni.Username, ni.Email), "checking user uniqueness")
}

var nonWordChars = regexp.MustCompile(`\W+`)

// defaultUsername falls back to the local part of the email.
func defaultUsername(uname, email string) string {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		if i := strings.Index(email, "@"); i > 0 {
			uname = nonWordChars.ReplaceAllString(email[:i], "_")
		}
	}
	return uname
}
