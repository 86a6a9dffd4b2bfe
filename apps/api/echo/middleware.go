package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/submission"
)

const (
	contextObjectKey     = "object"
	contextClassKey      = "class"
	contextAssignmentKey = "assignment"
	contextOwnerKey      = "isOwner"
)

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// teacherMiddleware lets teachers and admins through.
func teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsTeacher || claims.IsAdmin {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsStudent {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func contextObject[T any](ctx echo.Context, key string) (T, error) {
	obj, ok := ctx.Get(key).(T)
	if !ok {
		return obj, errors.Wrapf(errObjNotFoundInCtx, "retrieving %q from context", key)
	}
	return obj, nil
}

func isContextOwner(ctx echo.Context) bool {
	owner, _ := ctx.Get(contextOwnerKey).(bool)
	return owner
}

// classAccess reports whether the context user owns classID's class (teacher or admin) or is enrolled in it.
func (s *server) classAccess(ctx echo.Context, teacherID, classID string) (owner, member bool, err error) {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return false, false, errors.Wrap(err, "getting context user")
	}
	if usr.IsAdmin() || usr.ID == teacherID {
		return true, true, nil
	}
	if !usr.IsStudent() {
		return false, false, nil
	}
	member, err = s.deps.ClassSvc.IsEnrolled(ctx.Request().Context(), classID, usr.ID)
	if err != nil {
		return false, false, errors.Wrap(err, "checking enrollment")
	}
	return false, member, nil
}

// classMiddleware loads the class of the ":id" path param for its owner and, unless ownerOnly, its students.
func (s *server) classMiddleware(ownerOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			cls, err := s.deps.ClassSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == class.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding class by ID")
			}

			owner, member, err := s.classAccess(ctx, cls.TeacherID, cls.ID)
			if err != nil {
				return err
			}
			switch {
			case owner:
			case !member:
				return errHttpNotFound
			case ownerOnly:
				return errHttpForbidden
			default:
				cls = cls.Public()
			}
			ctx.Set(contextClassKey, cls)
			ctx.Set(contextOwnerKey, owner)
			return next(ctx)
		}
	}
}

// assignmentMiddleware loads the assignment of the ":id" path param for the owner of its class and,
// unless ownerOnly, the students enrolled in it.
func (s *server) assignmentMiddleware(ownerOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			a, err := s.deps.AssignmentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == assignment.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding assignment by ID")
			}

			owner, member, err := s.classAccess(ctx, a.TeacherID, a.ClassID)
			if err != nil {
				return err
			}
			switch {
			case owner:
			case !member:
				return errHttpNotFound
			case ownerOnly:
				return errHttpForbidden
			}
			ctx.Set(contextAssignmentKey, a)
			ctx.Set(contextOwnerKey, owner)
			return next(ctx)
		}
	}
}

// submissionMiddleware loads the submission of the ":id" path param and its assignment, for the student who
// handed it in and, when grading, only for the owner of the assignment's class.
func (s *server) submissionMiddleware(grading bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			rctx := ctx.Request().Context()
			sub, err := s.deps.SubmissionSvc.GetByID(rctx, ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == submission.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding submission by ID")
			}
			a, err := s.deps.AssignmentSvc.GetByID(rctx, sub.AssignmentID)
			if err != nil {
				return errors.Wrap(err, "finding assignment by ID")
			}

			usr, err := getContextUser(ctx, s.deps.UserSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			owner := usr.IsAdmin() || usr.ID == a.TeacherID
			switch {
			case owner:
			case usr.ID != sub.StudentID:
				return errHttpNotFound
			case grading:
				return errHttpForbidden
			}
			ctx.Set(contextObjectKey, sub)
			ctx.Set(contextAssignmentKey, a)
			ctx.Set(contextOwnerKey, owner)
			return next(ctx)
		}
	}
}
