package tests

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/portal"
	"github.com/siat-edu/siat/services/report"
)

func Test_instructorApi_coursework(t *testing.T) {
	env := setup(t)
	c := newCampus(t, env)
	env.fx.Student("Grace Hopper", c.course.ID)
	token := env.tokenFor(t, c.instr.UserID)
	other := env.fx.Subject("MA101", "Calculus")
	notTaught := marchallObj(t, httpErr{Error: "subject not taught by this instructor in the current semester"})

	material := func(subjectID int64, typ, url string) []byte {
		return []byte(fmt.Sprintf(`{"subject_id":%d,"title":"Intro","type":%q,"url":%q}`, subjectID, typ, url))
	}

	env.run(t, []httpTest{
		{
			name: "assignment for a subject not taught", method: http.MethodPost, path: "/v1/instructor/assignments", token: token,
			body:     []byte(fmt.Sprintf(`{"subject_id":%d,"title":"Limits","description":"Do it.","due_date":"2026-03-01T12:00:00Z"}`, other.ID)),
			wantCode: http.StatusForbidden, wantData: notTaught,
		},
		{
			name: "assignment without description", method: http.MethodPost, path: "/v1/instructor/assignments", token: token,
			body:     []byte(fmt.Sprintf(`{"subject_id":%d,"title":"Loops","due_date":"2026-03-01T12:00:00Z"}`, c.subject.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"description": "this field is required"}),
		},
		{
			name: "video must be on youtube", method: http.MethodPost, path: "/v1/instructor/materials", token: token,
			body: material(c.subject.ID, "video", "https://vimeo.com/123"), wantCode: http.StatusBadRequest,
		},
		{
			name: "material for a subject not taught", method: http.MethodPost, path: "/v1/instructor/materials", token: token,
			body: material(other.ID, "outline", "https://files.siat.test/outline.pdf"), wantCode: http.StatusForbidden, wantData: notTaught,
		},
		{
			name: "video", method: http.MethodPost, path: "/v1/instructor/materials", token: token,
			body: material(c.subject.ID, "video", "https://youtu.be/dQw4w9WgXcQ"), wantCode: http.StatusCreated,
		},
		{name: "no assignments yet", path: "/v1/instructor/assignments", token: token, wantData: marchallList(t)},
	})

	rec := env.do(http.MethodGet, "/v1/instructor/materials", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var materials []academics.LearningMaterial
	decode(t, rec, &materials)
	require.Len(t, materials, 1)
	assert.Equal(t, academics.MaterialVideo, materials[0].Type)
}

func Test_instructorApi_grading(t *testing.T) {
	env := setup(t)
	c := newCampus(t, env)
	st := env.fx.Student("Grace Hopper", c.course.ID)
	token := env.tokenFor(t, c.instr.UserID)
	a1 := env.assignment(t, c.subject.ID, "Loops")
	env.assignment(t, c.subject.ID, "Functions")

	rec := env.do(http.MethodPost, fmt.Sprintf("/v1/student/assignments/%d/submissions", a1.ID), env.tokenFor(t, st.UserID),
		[]byte(`{"file_url":"https://files.siat.test/loops.pdf"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub academics.Submission
	decode(t, rec, &sub)

	rec = env.do(http.MethodGet, "/v1/instructor/submissions", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []academics.Submission
	decode(t, rec, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)

	path := fmt.Sprintf("/v1/instructor/submissions/%d", sub.ID)
	env.run(t, []httpTest{
		{name: "score out of range", method: http.MethodPut, path: path, token: token, body: []byte(`{"score":101}`), wantCode: http.StatusBadRequest},
		{name: "bad grade", method: http.MethodPut, path: path, token: token, body: []byte(`{"grade":"Z"}`), wantCode: http.StatusBadRequest},
		{name: "unknown submission", method: http.MethodPut, path: "/v1/instructor/submissions/999", token: token, body: []byte(`{"score":80}`), wantCode: http.StatusNotFound},
		{
			name: "other instructor", method: http.MethodPut, path: path, token: env.tokenFor(t, env.fx.Instructor("Alan Turing").UserID),
			body: []byte(`{"score":80}`), wantCode: http.StatusNotFound,
		},
	})

	rec = env.do(http.MethodPut, path, token, []byte(`{"score":80,"grade":"B+"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &sub)
	assert.Equal(t, 80, sub.Score.Int)
	assert.Equal(t, "B+", sub.Grade)

	// 1 of 2 submitted, average score 80: floor(35 + 24) = 59
	rec = env.do(http.MethodGet, "/v1/instructor/monitoring", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []portal.MonitoringRow
	decode(t, rec, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, st.ID, rows[0].StudentID)
	assert.Equal(t, 59, rows[0].Progress)

	enrPath := fmt.Sprintf("/v1/instructor/enrollments/%d", rows[0].EnrollmentID)
	env.run(t, []httpTest{
		{name: "final score out of range", method: http.MethodPut, path: enrPath, token: token, body: []byte(`{"final_score":-1}`), wantCode: http.StatusBadRequest},
		{name: "unknown enrollment", method: http.MethodPut, path: "/v1/instructor/enrollments/999", token: token, body: []byte(`{"grade":"A"}`), wantCode: http.StatusNotFound},
	})

	rec = env.do(http.MethodPut, enrPath, token, []byte(`{"grade":"A-","final_score":88}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enr academics.SubjectEnrollment
	decode(t, rec, &enr)
	assert.Equal(t, "A-", enr.Grade)
	assert.Equal(t, 88, enr.FinalScore.Int)
	assert.Equal(t, 59, enr.Progress, "grading leaves the progress alone")

	rec = env.do(http.MethodGet, "/v1/instructor/dashboard", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash portal.InstructorDashboard
	decode(t, rec, &dash)
	require.Len(t, dash.Subjects, 1)
	assert.Equal(t, 1, dash.Subjects[0].Enrolled)
	assert.Equal(t, 80.0, dash.Subjects[0].AvgScore.Float64)
	require.Len(t, dash.LatestSubmissions, 1)
	assert.Equal(t, "Grace Hopper", dash.LatestSubmissions[0].StudentName)
}

func Test_instructorApi_monitoringExport(t *testing.T) {
	env := setup(t)
	c := newCampus(t, env)
	env.fx.Student("Grace Hopper", c.course.ID)
	env.fx.Student("Alan Turing", c.course.ID)
	token := env.tokenFor(t, c.instr.UserID)

	rec := env.do(http.MethodGet, "/v1/instructor/monitoring/export", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="monitoring-2026-s1.xlsx"`, rec.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 4) // title, header, 2 students
	assert.Equal(t, "Semester: 2026-S1", rows[0][0])
	names := []string{rows[2][1], rows[3][1]}
	assert.ElementsMatch(t, []string{"Grace Hopper", "Alan Turing"}, names)
}
