package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/progress"
	"github.com/siat-edu/siat/core/user"
)

func registerCatalogueAPI(g *echo.Group, svc academics.Service) {
	g.GET("/courses", func(ctx echo.Context) error {
		courses, err := svc.QueryCourses(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "querying courses")
		}
		if courses == nil {
			courses = []academics.Course{}
		}
		return ctx.JSON(http.StatusOK, courses)
	})
}

type adminApi struct {
	svc        academics.Service
	usrSvc     user.Service
	calculator *progress.Calculator
	syncer     ProgressSyncer
	validate   *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *jwtAuth, deps ServerDeps) {
	api := adminApi{
		svc:        deps.AcadSvc,
		usrSvc:     deps.UserSvc,
		calculator: deps.Calculator,
		syncer:     deps.Syncer,
		validate:   deps.Validate,
	}

	ag := g.Group("/admin", jwt, adminMiddleware(auth))

	ag.GET("/semesters", api.querySemesters)
	ag.POST("/semesters", api.createSemester)
	ag.PUT("/semesters/:id/current", api.setCurrentSemester)

	ag.GET("/courses", api.queryCourses)
	ag.POST("/courses", api.createCourse)
	ag.GET("/subjects", api.querySubjects)
	ag.POST("/subjects", api.createSubject)
	ag.GET("/course-subjects", api.queryCourseSubjects)
	ag.POST("/course-subjects", api.createCourseSubject)
	ag.GET("/announcements", api.queryAnnouncements)
	ag.POST("/announcements", api.createAnnouncement)

	ag.GET("/students", api.queryStudents)
	ag.POST("/students", api.registerStudent)
	ag.GET("/instructors", api.queryInstructors)
	ag.POST("/instructors", api.registerInstructor)

	ag.POST("/progress/sync", api.syncProgress)
	ag.POST("/progress/sync/:student_id", api.syncStudentProgress)
}

// Semesters

func (api *adminApi) querySemesters(ctx echo.Context) error {
	sems, err := api.svc.QuerySemesters(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying semesters")
	}
	if sems == nil {
		sems = []academics.Semester{}
	}
	return ctx.JSON(http.StatusOK, sems)
}

func (api *adminApi) createSemester(ctx echo.Context) error {
	var data academics.NewSemester
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSemester")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sem, err := api.svc.CreateSemester(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating semester")
	}
	return ctx.JSON(http.StatusCreated, sem)
}

func (api *adminApi) setCurrentSemester(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	sem, err := api.svc.SetCurrentSemester(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "setting current semester")
	}
	return ctx.JSON(http.StatusOK, sem)
}

// Catalogue

func (api *adminApi) queryCourses(ctx echo.Context) error {
	courses, err := api.svc.QueryCourses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []academics.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *adminApi) createCourse(ctx echo.Context) error {
	var data academics.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	course, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

// queryAnnouncements lists announcements newest first, narrowed down to `?course_id=` when given.
func (api *adminApi) queryAnnouncements(ctx echo.Context) error {
	var filter academics.AnnouncementFilter
	ids, err := queryIDs(ctx, "course_id")
	if err != nil {
		return err
	}
	filter.CourseIDs = ids
	anns, err := api.svc.QueryAnnouncements(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *adminApi) createAnnouncement(ctx echo.Context) error {
	var data academics.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ann, err := api.svc.CreateAnnouncement(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, ann)
}

func (api *adminApi) querySubjects(ctx echo.Context) error {
	subjects, err := api.svc.QuerySubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []academics.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *adminApi) createSubject(ctx echo.Context) error {
	var data academics.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	subj, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *adminApi) queryCourseSubjects(ctx echo.Context) error {
	var filter academics.CourseSubjectFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academics.CourseSubject{})
	}
	css, err := api.svc.QueryCourseSubjects(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying course subjects")
	}
	if css == nil {
		css = []academics.CourseSubject{}
	}
	return ctx.JSON(http.StatusOK, css)
}

func (api *adminApi) createCourseSubject(ctx echo.Context) error {
	var data academics.NewCourseSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourseSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cs, err := api.svc.CreateCourseSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course subject")
	}
	return ctx.JSON(http.StatusCreated, cs)
}

// People

func (api *adminApi) queryStudents(ctx echo.Context) error {
	students, err := api.svc.QueryStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []academics.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *adminApi) registerStudent(ctx echo.Context) error {
	var data academics.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.usrSvc); err != nil {
		return err
	}
	st, err := api.svc.RegisterStudent(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *adminApi) queryInstructors(ctx echo.Context) error {
	instructors, err := api.svc.QueryInstructors(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying instructors")
	}
	if instructors == nil {
		instructors = []academics.Instructor{}
	}
	return ctx.JSON(http.StatusOK, instructors)
}

func (api *adminApi) registerInstructor(ctx echo.Context) error {
	var data academics.NewInstructor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstructor")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.usrSvc); err != nil {
		return err
	}
	instr, err := api.svc.RegisterInstructor(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "registering instructor")
	}
	return ctx.JSON(http.StatusCreated, instr)
}

// Progress

func (api *adminApi) syncProgress(ctx echo.Context) error {
	stats, err := api.syncer.SyncProgress(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "syncing progress")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) syncStudentProgress(ctx echo.Context) error {
	id, err := paramID(ctx, "student_id")
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if _, err = api.svc.GetStudent(reqCtx, academics.StudentFilter{ID: id}); err != nil {
		return errors.Wrap(err, "getting student")
	}
	sem, err := api.svc.CurrentSemester(reqCtx)
	if err != nil {
		return errors.Wrap(err, "getting current semester")
	}
	res, err := api.calculator.UpdateStudent(reqCtx, sem, id)
	if err != nil {
		return errors.Wrap(err, "updating student progress")
	}
	return ctx.JSON(http.StatusOK, res)
}
