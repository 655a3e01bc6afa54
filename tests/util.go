package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/user"
	"github.com/siat-edu/siat/storage/database"
)

// PrepareDB opens a fresh, migrated in-memory database that is closed with the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.NewTestConfig()
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db, conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Second)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Fixtures builds academic records on top of a repository, failing the test on any error.
type Fixtures struct {
	t        *testing.T
	UserRepo user.Repository
	Repo     academics.Repository
	seq      int
}

func NewFixtures(t *testing.T, usrRepo user.Repository, repo academics.Repository) *Fixtures {
	return &Fixtures{t: t, UserRepo: usrRepo, Repo: repo}
}

func (f *Fixtures) next() int {
	f.seq++
	return f.seq
}

func (f *Fixtures) check(name string, err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("%s() failed: %v", name, err)
	}
}

// Semester creates a semester, flagged current when asked.
func (f *Fixtures) Semester(name string, current bool) academics.Semester {
	f.t.Helper()
	ctx := context.Background()
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	sem, err := f.Repo.CreateSemester(ctx, academics.Semester{Name: name, StartDate: start, EndDate: start.AddDate(0, 6, 0)})
	f.check("Semester", err)
	if current {
		f.check("Semester", f.Repo.SetCurrentSemester(ctx, sem.ID))
		sem.IsCurrent = true
	}
	return sem
}

func (f *Fixtures) Course(title string) academics.Course {
	f.t.Helper()
	c, err := f.Repo.CreateCourse(context.Background(), academics.Course{
		Title:    title,
		Slug:     fmt.Sprintf("course-%d", f.next()),
		Category: academics.CategoryDiploma,
	})
	f.check("Course", err)
	return c
}

func (f *Fixtures) Subject(code, title string) academics.Subject {
	f.t.Helper()
	s, err := f.Repo.CreateSubject(context.Background(), academics.Subject{Code: code, Title: title, CreatedAt: time.Now().UTC()})
	f.check("Subject", err)
	return s
}

// CourseSubject offers the subject in the course for the semester, taught by instructorID when > 0.
func (f *Fixtures) CourseSubject(courseID, subjectID, semesterID, instructorID int64, active bool) academics.CourseSubject {
	f.t.Helper()
	cs, err := f.Repo.CreateCourseSubject(context.Background(), academics.CourseSubject{
		CourseID:     courseID,
		SubjectID:    subjectID,
		SemesterID:   semesterID,
		InstructorID: null.NewInt64(instructorID, instructorID > 0),
		IsActive:     active,
	})
	f.check("CourseSubject", err)
	return cs
}

// Student creates a student user & profile enrolled in the courses.
func (f *Fixtures) Student(fullName string, courseIDs ...int64) academics.Student {
	f.t.Helper()
	ctx := context.Background()
	n := f.next()
	usr := CreateUser(f.t, f.UserRepo, fullName, fmt.Sprintf("student%d", n), fmt.Sprintf("student%d@siat.test", n),
		"", []string{user.RoleStudent}, true)
	st, err := f.Repo.CreateStudent(ctx, academics.Student{
		UserID:        usr.ID,
		FullName:      fullName,
		Email:         usr.Email,
		StudentNumber: fmt.Sprintf("SIAT-2026-%04d", n),
		CreatedAt:     time.Now().UTC(),
	})
	f.check("Student", err)
	for _, id := range courseIDs {
		_, err = f.Repo.CreateEnrollment(ctx, academics.Enrollment{StudentID: st.ID, CourseID: id, CreatedAt: time.Now().UTC()})
		f.check("Student", err)
	}
	return st
}

func (f *Fixtures) Instructor(fullName string) academics.Instructor {
	f.t.Helper()
	n := f.next()
	usr := CreateUser(f.t, f.UserRepo, fullName, fmt.Sprintf("instructor%d", n), fmt.Sprintf("instructor%d@siat.test", n),
		"", []string{user.RoleInstructor}, true)
	instr, err := f.Repo.CreateInstructor(context.Background(), academics.Instructor{
		UserID:    usr.ID,
		FullName:  fullName,
		Email:     usr.Email,
		CreatedAt: time.Now().UTC(),
	})
	f.check("Instructor", err)
	return instr
}
