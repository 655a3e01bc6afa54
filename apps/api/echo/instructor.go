package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/coursework"
	"github.com/siat-edu/siat/core/portal"
	"github.com/siat-edu/siat/services/report"
)

type instructorApi struct {
	acadSvc  academics.Service
	cw       *coursework.Service
	portal   *portal.Service
	validate *validator.Validate
}

func registerInstructorAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *jwtAuth, deps ServerDeps) {
	api := instructorApi{
		acadSvc:  deps.AcadSvc,
		cw:       deps.Coursework,
		portal:   deps.Portal,
		validate: deps.Validate,
	}
	conf := deps.Conf

	ig := g.Group(
		"/instructor",
		portalMiddleware(func() bool { return conf.Portals.InstructorActive }, conf),
		jwt,
		instructorMiddleware(auth, deps.UserSvc, deps.AcadSvc),
	)

	ig.GET("/dashboard", api.dashboard)
	ig.GET("/assignments", api.queryAssignments)
	ig.POST("/assignments", api.createAssignment)
	ig.GET("/materials", api.queryMaterials)
	ig.POST("/materials", api.createMaterial)
	ig.GET("/submissions", api.querySubmissions)
	ig.PUT("/submissions/:id", api.gradeSubmission)
	ig.PUT("/enrollments/:id", api.gradeEnrollment)
	ig.GET("/monitoring", api.monitoring)
	ig.GET("/monitoring/export", api.exportMonitoring)
}

func (api *instructorApi) dashboard(ctx echo.Context) error {
	dash, err := api.portal.InstructorDashboard(ctx.Request().Context(), contextSemester(ctx), contextInstructor(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "building instructor dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

// subjectIDs lists the subjects taught, narrowed down to `?subject_id=` when given.
func (api *instructorApi) subjectIDs(ctx echo.Context) ([]int64, error) {
	ids, err := api.cw.TaughtSubjectIDs(ctx.Request().Context(), contextSemester(ctx), contextInstructor(ctx).ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying taught subjects")
	}
	return narrowIDs(ctx, ids)
}

// Coursework

func (api *instructorApi) queryAssignments(ctx echo.Context) error {
	ids, err := api.subjectIDs(ctx)
	if err != nil {
		return err
	}
	assignments, err := api.cw.QueryAssignments(ctx.Request().Context(), ids)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *instructorApi) createAssignment(ctx echo.Context) error {
	var data coursework.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	reqCtx, sem := ctx.Request().Context(), contextSemester(ctx)
	if err := api.cw.CheckTaught(reqCtx, sem, contextInstructor(ctx).ID, data.SubjectID); err != nil {
		return err
	}
	a, err := api.cw.CreateAssignment(reqCtx, sem, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *instructorApi) queryMaterials(ctx echo.Context) error {
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

func (api *instructorApi) createMaterial(ctx echo.Context) error {
	var data coursework.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	reqCtx, sem := ctx.Request().Context(), contextSemester(ctx)
	if err := api.cw.CheckTaught(reqCtx, sem, contextInstructor(ctx).ID, data.SubjectID); err != nil {
		return err
	}
	m, err := api.cw.CreateMaterial(reqCtx, sem, data)
	if err != nil {
		return errors.Wrap(err, "creating material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

// Grading

func (api *instructorApi) querySubmissions(ctx echo.Context) error {
	ids, err := api.subjectIDs(ctx)
	if err != nil {
		return err
	}
	filter := coursework.SubmissionFilter{SubjectIDs: ids}
	if filter.SubjectIDs == nil {
		filter.SubjectIDs = []int64{}
	}
	if v := ctx.QueryParam("assignment_id"); v != "" {
		if filter.AssignmentID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return ctx.JSON(http.StatusOK, []academics.Submission{})
		}
	}
	subs, err := api.cw.QuerySubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []academics.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *instructorApi) gradeSubmission(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	reqCtx, sem := ctx.Request().Context(), contextSemester(ctx)

	_, a, err := api.cw.GetSubmission(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	if err = api.cw.CheckTaught(reqCtx, sem, contextInstructor(ctx).ID, a.SubjectID); err != nil {
		return errHttpNotFound
	}

	var data coursework.GradeSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.cw.GradeSubmission(reqCtx, sem, id, data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *instructorApi) gradeEnrollment(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	reqCtx, sem := ctx.Request().Context(), contextSemester(ctx)
	if sem == nil {
		return errHttpNotFound
	}

	enr, err := api.cw.GetSubjectEnrollment(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting subject enrollment")
	}
	css, err := api.acadSvc.QueryCourseSubjects(reqCtx, academics.CourseSubjectFilter{
		SemesterID:   sem.ID,
		InstructorID: contextInstructor(ctx).ID,
	})
	if err != nil {
		return errors.Wrap(err, "querying course subjects")
	}
	if !containsCourseSubject(css, enr.CourseSubjectID) {
		return errHttpNotFound
	}

	var data coursework.GradeEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeEnrollment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	enr, err = api.cw.GradeEnrollment(reqCtx, id, data)
	if err != nil {
		return errors.Wrap(err, "grading subject enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

// Monitoring

func (api *instructorApi) monitoring(ctx echo.Context) error {
	rows, err := api.portal.Monitoring(ctx.Request().Context(), contextSemester(ctx), contextInstructor(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "building monitoring")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *instructorApi) exportMonitoring(ctx echo.Context) error {
	sem := contextSemester(ctx)
	rows, err := api.portal.Monitoring(ctx.Request().Context(), sem, contextInstructor(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "building monitoring")
	}

	semName := "none"
	if sem != nil {
		semName = sem.Name
	}
	var buf bytes.Buffer
	if err = report.WriteMonitoring(&buf, semName, rows); err != nil {
		return errors.Wrap(err, "writing monitoring report")
	}
	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "monitoring-"+core.Slugify(semName)+".xlsx"),
	)
	return ctx.Blob(http.StatusOK, report.ContentTypeXLSX, buf.Bytes())
}

func containsCourseSubject(css []academics.CourseSubject, id int64) bool {
	for _, cs := range css {
		if cs.ID == id {
			return true
		}
	}
	return false
}
