package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core"
	"github.com/siat-edu/siat/core/academics"
	"github.com/siat-edu/siat/core/user"
)

var (
	contextStudentKey    = "student"
	contextInstructorKey = "instructor"
	contextSemesterKey   = "semester"
)

func adminMiddleware(auth *jwtAuth, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := auth.getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && auth.contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// portalMiddleware answers 503 with the maintenance message while the portal is switched off.
func portalMiddleware(active func() bool, conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !active() {
				return echo.NewHTTPError(http.StatusServiceUnavailable, conf.Portals.MaintenanceMessage)
			}
			return next(ctx)
		}
	}
}

// studentMiddleware lets students in and loads their profile & the current semester into the context.
func studentMiddleware(auth *jwtAuth, usrSvc user.Service, acadSvc academics.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := auth.getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !claims.IsStudent {
				return errHttpForbidden
			}
			usr, err := auth.getContextUser(ctx, usrSvc, claims)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			reqCtx := ctx.Request().Context()
			st, err := acadSvc.GetStudent(reqCtx, academics.StudentFilter{UserID: usr.ID})
			if err != nil {
				if errors.Cause(err) == academics.ErrNotFound {
					return errNoProfile
				}
				return errors.Wrap(err, "getting student profile")
			}
			sem, err := acadSvc.CurrentSemester(reqCtx)
			if err != nil {
				return errors.Wrap(err, "getting current semester")
			}
			ctx.Set(contextStudentKey, st)
			ctx.Set(contextSemesterKey, sem)
			return next(ctx)
		}
	}
}

// instructorMiddleware lets instructors in and loads their profile & the current semester into the context.
func instructorMiddleware(auth *jwtAuth, usrSvc user.Service, acadSvc academics.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := auth.getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !claims.IsInstructor {
				return errHttpForbidden
			}
			usr, err := auth.getContextUser(ctx, usrSvc, claims)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			reqCtx := ctx.Request().Context()
			instr, err := acadSvc.GetInstructor(reqCtx, academics.InstructorFilter{UserID: usr.ID})
			if err != nil {
				if errors.Cause(err) == academics.ErrNotFound {
					return errNoProfile
				}
				return errors.Wrap(err, "getting instructor profile")
			}
			sem, err := acadSvc.CurrentSemester(reqCtx)
			if err != nil {
				return errors.Wrap(err, "getting current semester")
			}
			ctx.Set(contextInstructorKey, instr)
			ctx.Set(contextSemesterKey, sem)
			return next(ctx)
		}
	}
}

func contextStudent(ctx echo.Context) academics.Student {
	st, _ := ctx.Get(contextStudentKey).(academics.Student)
	return st
}

func contextInstructor(ctx echo.Context) academics.Instructor {
	instr, _ := ctx.Get(contextInstructorKey).(academics.Instructor)
	return instr
}

// contextSemester is nil when no semester is current.
func contextSemester(ctx echo.Context) *academics.Semester {
	sem, _ := ctx.Get(contextSemesterKey).(*academics.Semester)
	return sem
}
