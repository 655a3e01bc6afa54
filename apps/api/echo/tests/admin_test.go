package tests

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/portal"
	"github.com/siat-edu/siat/core/progress"
	"github.com/siat-edu/siat/core/user"
	"github.com/siat-edu/siat/tests"
)

func adminToken(t *testing.T, env *testEnv) string {
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@siat.test", testPwd, []string{user.RoleAdmin}, true)
	return getToken(t, env.conf, admin)
}

func Test_adminApi_access(t *testing.T) {
	env := setup(t)
	instr := env.fx.Instructor("Ada Lovelace")
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	env.run(t, []httpTest{
		{name: "auth required", path: "/v1/admin/semesters", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/admin/semesters", token: env.tokenFor(t, instr.UserID), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "public catalogue", path: "/v1/courses", wantData: marchallList(t)},
		{name: "home", path: "/", wantCode: http.StatusOK},
	})
}

func Test_adminApi_semesters(t *testing.T) {
	env := setup(t)
	token := adminToken(t, env)

	semester := func(name string, current bool) []byte {
		return []byte(fmt.Sprintf(
			`{"name":%q,"start_date":"2026-01-05T00:00:00Z","end_date":"2026-06-30T00:00:00Z","is_current":%t}`, name, current,
		))
	}

	rec := env.do(http.MethodPost, "/v1/admin/semesters", token, semester("2026-S1", true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s1 academics.Semester
	decode(t, rec, &s1)
	assert.True(t, s1.IsCurrent)

	rec = env.do(http.MethodPost, "/v1/admin/semesters", token, semester("2026-S2", false))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s2 academics.Semester
	decode(t, rec, &s2)

	env.run(t, []httpTest{
		{
			name: "invalid dates", method: http.MethodPost, path: "/v1/admin/semesters", token: token,
			body:     []byte(`{"name":"bad","start_date":"2026-06-30T00:00:00Z","end_date":"2026-01-05T00:00:00Z"}`),
			wantCode: http.StatusBadRequest,
		},
		{name: "set current (unknown)", method: http.MethodPut, path: "/v1/admin/semesters/999/current", token: token, wantCode: http.StatusNotFound},
		{name: "set current (bad id)", method: http.MethodPut, path: "/v1/admin/semesters/lol/current", token: token, wantCode: http.StatusNotFound},
	})

	rec = env.do(http.MethodPut, fmt.Sprintf("/v1/admin/semesters/%d/current", s2.ID), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/v1/admin/semesters", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var sems []academics.Semester
	decode(t, rec, &sems)
	require.Len(t, sems, 2)
	current := map[int64]bool{}
	for _, s := range sems {
		current[s.ID] = s.IsCurrent
	}
	assert.Equal(t, map[int64]bool{s1.ID: false, s2.ID: true}, current)
}

func Test_adminApi_catalogue(t *testing.T) {
	env := setup(t)
	token := adminToken(t, env)
	sem := env.fx.Semester("2026-S1", true)
	instr := env.fx.Instructor("Ada Lovelace")

	rec := env.do(http.MethodPost, "/v1/admin/courses", token, []byte(`{"title":"  Software Engineering ","category":"diploma"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var course academics.Course
	decode(t, rec, &course)
	assert.Equal(t, "software-engineering", course.Slug)

	rec = env.do(http.MethodPost, "/v1/admin/subjects", token, []byte(`{"code":"se101","title":"Programming"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var subj academics.Subject
	decode(t, rec, &subj)
	assert.Equal(t, "SE101", subj.Code)

	csBody := []byte(fmt.Sprintf(
		`{"course_id":%d,"subject_id":%d,"semester_id":%d,"instructor_id":%d}`, course.ID, subj.ID, sem.ID, instr.ID,
	))
	rec = env.do(http.MethodPost, "/v1/admin/course-subjects", token, csBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cs academics.CourseSubject
	decode(t, rec, &cs)
	assert.True(t, cs.IsActive)
	assert.Equal(t, instr.ID, cs.InstructorID.Int64)

	env.run(t, []httpTest{
		{
			name: "duplicate course", method: http.MethodPost, path: "/v1/admin/courses", token: token,
			body: []byte(`{"title":"Software Engineering"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "bad category", method: http.MethodPost, path: "/v1/admin/courses", token: token,
			body: []byte(`{"title":"Other","category":"phd"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "duplicate course subject", method: http.MethodPost, path: "/v1/admin/course-subjects", token: token,
			body: csBody, wantCode: http.StatusBadRequest,
		},
		{name: "public catalogue", path: "/v1/courses", wantData: marchallList(t, course)},
		{
			name: "course subjects by instructor", path: fmt.Sprintf("/v1/admin/course-subjects?instructor_id=%d", instr.ID),
			token: token, wantData: marchallList(t, cs),
		},
		{name: "course subjects (none)", path: "/v1/admin/course-subjects?instructor_id=999", token: token, wantData: marchallList(t)},
	})
}

func Test_adminApi_registration(t *testing.T) {
	env := setup(t)
	token := adminToken(t, env)
	course := env.fx.Course("Software Engineering")

	body := []byte(fmt.Sprintf(
		`{"full_name":"Grace Hopper","email":"Grace.Hopper@siat.test","course_ids":[%d],"email_notifications":true}`, course.ID,
	))
	rec := env.do(http.MethodPost, "/v1/admin/students", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var st academics.Student
	decode(t, rec, &st)
	assert.Regexp(t, regexp.MustCompile(`^SIAT-\d{4}-0001$`), st.StudentNumber)
	assert.Equal(t, "grace.hopper@siat.test", st.Email)

	sent := env.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "grace.hopper@siat.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Username: grace_hopper")
	assert.Contains(t, sent[0].TextContent, "Student number: "+st.StudentNumber)

	// the generated credentials work
	pwd := strings.TrimSpace(sent[0].TextContent[strings.Index(sent[0].TextContent, "Password: ")+len("Password: "):])
	pwd = strings.SplitN(pwd, "\n", 2)[0]
	rec = env.do(http.MethodPost, "/v1/users/login", "", marchallObj(t, map[string]string{"username": "grace_hopper", "password": pwd}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.run(t, []httpTest{
		{name: "duplicate email", method: http.MethodPost, path: "/v1/admin/students", token: token, body: body, wantCode: http.StatusBadRequest},
		{
			name: "unknown course", method: http.MethodPost, path: "/v1/admin/students", token: token,
			body: []byte(`{"full_name":"Alan Turing","email":"alan@siat.test","course_ids":[999]}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course_ids": "course 999 not found"}),
		},
		{
			name: "missing name", method: http.MethodPost, path: "/v1/admin/instructors", token: token,
			body: []byte(`{"email":"ada@siat.test"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"full_name": "this field is required"}),
		},
	})

	rec = env.do(http.MethodPost, "/v1/admin/instructors", token, []byte(`{"full_name":"Ada Lovelace","email":"ada@siat.test"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/v1/admin/instructors", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var instructors []academics.Instructor
	decode(t, rec, &instructors)
	require.Len(t, instructors, 1)
	assert.Equal(t, "Ada Lovelace", instructors[0].FullName)

	rec = env.do(http.MethodGet, "/v1/admin/students", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var students []academics.Student
	decode(t, rec, &students)
	require.Len(t, students, 1)
	assert.Equal(t, st.ID, students[0].ID)
}

func Test_adminApi_progressSync(t *testing.T) {
	env := setup(t)
	token := adminToken(t, env)

	env.run(t, []httpTest{
		{
			name: "no current semester", method: http.MethodPost, path: "/v1/admin/progress/sync", token: token,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "no current semester found"}),
		},
	})

	sem := env.fx.Semester("2026-S1", true)
	course := env.fx.Course("Software Engineering")
	subj := env.fx.Subject("SE101", "Programming")
	env.fx.CourseSubject(course.ID, subj.ID, sem.ID, 0, true)
	st := env.fx.Student("Grace Hopper", course.ID)
	env.fx.Student("Alan Turing", course.ID)

	rec := env.do(http.MethodPost, "/v1/admin/progress/sync", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats progress.Stats
	decode(t, rec, &stats)
	assert.Equal(t, progress.Stats{TotalStudents: 2, EnrollmentsCreated: 2}, stats)

	rec = env.do(http.MethodPost, fmt.Sprintf("/v1/admin/progress/sync/%d", st.ID), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res progress.Result
	decode(t, rec, &res)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Changes, 1)
	// no assignment yet: the subject counts as complete
	assert.Equal(t, 100, res.Changes[0].OldProgress)
	assert.Equal(t, 100, res.Changes[0].NewProgress)

	env.run(t, []httpTest{
		{name: "unknown student", method: http.MethodPost, path: "/v1/admin/progress/sync/999", token: token, wantCode: http.StatusNotFound},
	})
}

func Test_adminApi_announcements(t *testing.T) {
	env := setup(t)
	token := adminToken(t, env)
	c := newCampus(t, env)
	other := env.fx.Course("Accounting")
	st := env.fx.Student("Grace Hopper", c.course.ID)

	announce := func(courseID int64, title string) []byte {
		return []byte(fmt.Sprintf(`{"course_id":%d,"title":%q,"content":"Classes resume on Monday."}`, courseID, title))
	}

	env.run(t, []httpTest{
		{name: "auth required", path: "/v1/admin/announcements", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "none yet", path: "/v1/admin/announcements", token: token, wantData: marchallList(t)},
		{
			name: "missing content", method: http.MethodPost, path: "/v1/admin/announcements", token: token,
			body:     []byte(fmt.Sprintf(`{"course_id":%d,"title":"Welcome"}`, c.course.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"content": "this field is required"}),
		},
		{
			name: "unknown course", method: http.MethodPost, path: "/v1/admin/announcements", token: token,
			body: announce(999, "Welcome"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course_id": "course not found"}),
		},
	})

	for _, tc := range []struct {
		courseID int64
		title    string
	}{{c.course.ID, "Welcome"}, {other.ID, "Exam dates"}, {c.course.ID, "Lab closed"}} {
		rec := env.do(http.MethodPost, "/v1/admin/announcements", token, announce(tc.courseID, tc.title))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodGet, fmt.Sprintf("/v1/admin/announcements?course_id=%d", other.ID), token)
	require.Equal(t, http.StatusOK, rec.Code)
	var anns []academics.Announcement
	decode(t, rec, &anns)
	require.Len(t, anns, 1)
	assert.Equal(t, "Exam dates", anns[0].Title)

	// the student only sees the announcements of their course
	rec = env.do(http.MethodGet, "/v1/student/dashboard", env.tokenFor(t, st.UserID))
	require.Equal(t, http.StatusOK, rec.Code)
	var dash portal.StudentDashboard
	decode(t, rec, &dash)
	require.Len(t, dash.Announcements, 2)
	titles := []string{dash.Announcements[0].Title, dash.Announcements[1].Title}
	assert.ElementsMatch(t, []string{"Welcome", "Lab closed"}, titles)
}
