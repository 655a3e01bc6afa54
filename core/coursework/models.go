package coursework

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
)

const errNotYouTube = "only YouTube links are allowed for video materials (eg. https://www.youtube.com/watch?v=... or https://youtu.be/...)"

type NewAssignment struct {
	SubjectID   int64     `json:"subject_id" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	FileURL     string    `json:"file_url" validate:"omitempty,url"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.FileURL = core.CleanString(na.FileURL)
	return validate.Struct(na)
}

type NewMaterial struct {
	SubjectID int64  `json:"subject_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Type      string `json:"type" validate:"required,oneof=outline module video"`
	URL       string `json:"url" validate:"required,url"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Type = core.CleanString(nm.Type, true /* lower */)
	nm.URL = core.CleanString(nm.URL)
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if nm.Type == academics.MaterialVideo && !core.IsYouTubeURL(nm.URL) {
		return core.NewFieldError("url", errNotYouTube)
	}
	return nil
}

type NewSubmission struct {
	AssignmentID int64  `json:"-"`
	FileURL      string `json:"file_url" validate:"required,url"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.FileURL = core.CleanString(ns.FileURL)
	return validate.Struct(ns)
}

// GradeSubmission sets the grade and/or the score of a Submission.
type GradeSubmission struct {
	Grade string `json:"grade" validate:"omitempty,max=2,letter_grade"`
	Score *int   `json:"score" validate:"omitempty,gte=0,lte=100"`
}

func (gs *GradeSubmission) Validate(validate *validator.Validate) error {
	gs.Grade = core.CleanString(gs.Grade)
	return validate.Struct(gs)
}

// GradeEnrollment sets the letter grade and/or the final score of a SubjectEnrollment.
type GradeEnrollment struct {
	Grade      string `json:"grade" validate:"omitempty,max=2,letter_grade"`
	FinalScore *int   `json:"final_score" validate:"omitempty,gte=0,lte=100"`
}

func (ge *GradeEnrollment) Validate(validate *validator.Validate) error {
	ge.Grade = core.CleanString(ge.Grade)
	return validate.Struct(ge)
}

// Recipient is a Student to notify about new coursework.
type Recipient struct {
	StudentID    int64  `db:"student_id"`
	FullName     string `db:"full_name"`
	Email        string `db:"email"`
	EmailEnabled bool   `db:"email_enabled"`
}

// NewCourseworkData feeds the `new_coursework` email template.
type NewCourseworkData struct {
	FullName string
	Title    string
	Message  string
	Link     string
}

type SubmissionFilter struct {
	StudentID    int64
	AssignmentID int64
	SubjectIDs   []int64
}
