package academics

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Course categories
const (
	CategoryShortCertificate = "short_certificate"
	CategoryDiploma          = "diploma"
)

// Learning material types
const (
	MaterialOutline = "outline"
	MaterialModule  = "module"
	MaterialVideo   = "video"
)

// Notification types
const (
	NotificationAssignment = "assignment"
	NotificationMaterial   = "material"
)

type Semester struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	IsCurrent bool      `json:"is_current" db:"is_current"`
}

type Course struct {
	ID          int64        `json:"id" db:"id"`
	Title       string       `json:"title" db:"title"`
	Slug        string       `json:"slug" db:"slug"`
	Description string       `json:"description" db:"description"`
	Category    string       `json:"category" db:"category"`
	Duration    string       `json:"duration" db:"duration"`
	Fee         null.Float64 `json:"fee" db:"fee"`
}

type Subject struct {
	ID          int64     `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CourseSubject is a subject taught within a course during a semester.
type CourseSubject struct {
	ID           int64      `json:"id" db:"id"`
	CourseID     int64      `json:"course_id" db:"course_id"`
	SubjectID    int64      `json:"subject_id" db:"subject_id"`
	SemesterID   int64      `json:"semester_id" db:"semester_id"`
	InstructorID null.Int64 `json:"instructor_id" db:"instructor_id"`
	IsActive     bool       `json:"is_active" db:"is_active"`
}

type Student struct {
	ID            int64     `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	FullName      string    `json:"full_name" db:"full_name"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone" db:"phone"`
	StudentNumber string    `json:"student_number" db:"student_number"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Instructor struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Enrollment links a Student to a Course.
type Enrollment struct {
	ID        int64     `json:"id" db:"id"`
	StudentID int64     `json:"student_id" db:"student_id"`
	CourseID  int64     `json:"course_id" db:"course_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Announcement is a news item posted to the students of a course.
type Announcement struct {
	ID        int64     `json:"id" db:"id"`
	CourseID  int64     `json:"course_id" db:"course_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Assignment struct {
	ID          int64       `json:"id" db:"id"`
	SubjectID   int64       `json:"subject_id" db:"subject_id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	DueDate     time.Time   `json:"due_date" db:"due_date"`
	FileURL     null.String `json:"file_url" db:"file_url"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

type Submission struct {
	ID           int64     `json:"id" db:"id"`
	AssignmentID int64     `json:"assignment_id" db:"assignment_id"`
	StudentID    int64     `json:"student_id" db:"student_id"`
	FileURL      string    `json:"file_url" db:"file_url"`
	SubmittedAt  time.Time `json:"submitted_at" db:"submitted_at"`
	Score        null.Int  `json:"score" db:"score"` // 0 - 100
	Grade        string    `json:"grade" db:"grade"`
}

// SubjectEnrollment tracks a Student's progress & grade in a CourseSubject.
type SubjectEnrollment struct {
	ID              int64     `json:"id" db:"id"`
	StudentID       int64     `json:"student_id" db:"student_id"`
	CourseSubjectID int64     `json:"course_subject_id" db:"course_subject_id"`
	Progress        int       `json:"progress" db:"progress"` // 0 - 100
	Grade           string    `json:"grade" db:"grade"`
	FinalScore      null.Int  `json:"final_score" db:"final_score"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type LearningMaterial struct {
	ID        int64     `json:"id" db:"id"`
	SubjectID int64     `json:"subject_id" db:"subject_id"`
	Title     string    `json:"title" db:"title"`
	Type      string    `json:"type" db:"type"`
	URL       string    `json:"url" db:"url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Notification struct {
	ID        int64     `json:"id" db:"id"`
	StudentID int64     `json:"student_id" db:"student_id"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Link      string    `json:"link" db:"link"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NotificationPreference struct {
	StudentID    int64 `json:"student_id" db:"student_id"`
	EmailEnabled bool  `json:"email_enabled" db:"email_enabled"`
}

type CourseSubjectFilter struct {
	CourseID     int64 `query:"course_id"`
	SubjectID    int64 `query:"subject_id"`
	SemesterID   int64 `query:"semester_id"`
	InstructorID int64 `query:"instructor_id"`
	ActiveOnly   bool  `query:"active"`
}

// AnnouncementFilter lists the announcements of the given courses, newest first. An empty
// (non-nil) CourseIDs matches nothing.
type AnnouncementFilter struct {
	CourseIDs []int64
	Limit     int
}

// StudentFilter selects a single Student; the first non-empty field wins.
type StudentFilter struct {
	ID     int64
	UserID string
}

// InstructorFilter selects a single Instructor; the first non-empty field wins.
type InstructorFilter struct {
	ID     int64
	UserID string
}
