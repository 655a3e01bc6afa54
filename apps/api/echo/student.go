package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/coursework"
	"github.com/siat-edu/siat/core/portal"
)

// StudentAssignment is an assignment along with the student's latest submission to it, if any.
type StudentAssignment struct {
	academics.Assignment
	Submission *academics.Submission `json:"submission"`
}

type studentApi struct {
	cw       *coursework.Service
	portal   *portal.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *jwtAuth, deps ServerDeps) {
	api := studentApi{
		cw:       deps.Coursework,
		portal:   deps.Portal,
		validate: deps.Validate,
	}
	conf := deps.Conf

	sg := g.Group(
		"/student",
		portalMiddleware(func() bool { return conf.Portals.StudentActive }, conf),
		jwt,
		studentMiddleware(auth, deps.UserSvc, deps.AcadSvc),
	)

	sg.GET("/dashboard", api.dashboard)
	sg.GET("/semester", api.semester)
	sg.GET("/subjects/:id", api.subjectDetail)
	sg.GET("/assignments", api.queryAssignments)
	sg.POST("/assignments/:id/submissions", api.submit)
	sg.GET("/materials", api.queryMaterials)

	sg.GET("/notifications", api.queryNotifications)
	sg.POST("/notifications/read-all", api.markAllNotificationsRead)
	sg.POST("/notifications/email", api.toggleEmailNotifications)
	sg.POST("/notifications/:id/read", api.markNotificationRead)
}

func (api *studentApi) dashboard(ctx echo.Context) error {
	dash, err := api.portal.StudentDashboard(ctx.Request().Context(), contextSemester(ctx), contextStudent(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "building student dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *studentApi) semester(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"semester": contextSemester(ctx)})
}

// subjectIDs lists the student's subjects, narrowed down to `?subject_id=` when given.
func (api *studentApi) subjectIDs(ctx echo.Context) ([]int64, error) {
	ids, err := api.cw.StudentSubjectIDs(ctx.Request().Context(), contextSemester(ctx), contextStudent(ctx).ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student subjects")
	}
	return narrowIDs(ctx, ids)
}

func (api *studentApi) subjectDetail(ctx echo.Context) error {
	subjectID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	ids, err := api.cw.StudentSubjectIDs(ctx.Request().Context(), contextSemester(ctx), contextStudent(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying student subjects")
	}
	if !containsID(ids, subjectID) {
		return errHttpNotFound
	}
	detail, err := api.portal.SubjectDetail(ctx.Request().Context(), contextSemester(ctx), contextStudent(ctx).ID, subjectID)
	if err != nil {
		return errors.Wrap(err, "building subject detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *studentApi) queryAssignments(ctx echo.Context) error {
	ids, err := api.subjectIDs(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	assignments, err := api.cw.QueryAssignments(reqCtx, ids)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	subs, err := api.cw.QuerySubmissions(reqCtx, coursework.SubmissionFilter{StudentID: contextStudent(ctx).ID, SubjectIDs: ids})
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}

	// submissions come newest first: keep the first one per assignment
	latest := make(map[int64]academics.Submission, len(subs))
	for _, s := range subs {
		if _, ok := latest[s.AssignmentID]; !ok {
			latest[s.AssignmentID] = s
		}
	}
	res := make([]StudentAssignment, 0, len(assignments))
	for _, a := range assignments {
		sa := StudentAssignment{Assignment: a}
		if s, ok := latest[a.ID]; ok {
			sa.Submission = &s
		}
		res = append(res, sa)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) submit(ctx echo.Context) error {
	assignmentID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	sem, st := contextSemester(ctx), contextStudent(ctx)

	ids, err := api.cw.StudentSubjectIDs(reqCtx, sem, st.ID)
	if err != nil {
		return errors.Wrap(err, "querying student subjects")
	}
	assignments, err := api.cw.QueryAssignments(reqCtx, ids)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if !containsAssignment(assignments, assignmentID) {
		return errHttpNotFound
	}

	var data coursework.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	data.AssignmentID = assignmentID
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.cw.Submit(reqCtx, sem, st.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *studentApi) queryMaterials(ctx echo.Context) error {
	ids, err := api.subjectIDs(ctx)
	if err != nil {
		return err
	}
	materials, err := api.cw.QueryMaterials(ctx.Request().Context(), ids)
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	return ctx.JSON(http.StatusOK, materials)
}

// Notifications

func (api *studentApi) queryNotifications(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	notifs, err := api.cw.Notifications(ctx.Request().Context(), contextStudent(ctx).ID, limit)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []academics.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *studentApi) markNotificationRead(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.cw.MarkNotificationRead(ctx.Request().Context(), contextStudent(ctx).ID, id); err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) markAllNotificationsRead(ctx echo.Context) error {
	n, err := api.cw.MarkAllNotificationsRead(ctx.Request().Context(), contextStudent(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "marking all notifications as read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"updated": n})
}

func (api *studentApi) toggleEmailNotifications(ctx echo.Context) error {
	pref, err := api.cw.ToggleEmailNotifications(ctx.Request().Context(), contextStudent(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "toggling email notifications")
	}
	return ctx.JSON(http.StatusOK, pref)
}

// narrowIDs keeps `?subject_id=` if it belongs to ids; an unknown subject yields an empty list.
func narrowIDs(ctx echo.Context, ids []int64) ([]int64, error) {
	wanted, err := queryIDs(ctx, "subject_id")
	if err != nil {
		return nil, err
	}
	if wanted == nil {
		return ids, nil
	}
	narrowed := make([]int64, 0, len(wanted))
	for _, id := range wanted {
		if containsID(ids, id) {
			narrowed = append(narrowed, id)
		}
	}
	return narrowed, nil
}

func containsID(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func containsAssignment(assignments []academics.Assignment, id int64) bool {
	for _, a := range assignments {
		if a.ID == id {
			return true
		}
	}
	return false
}
