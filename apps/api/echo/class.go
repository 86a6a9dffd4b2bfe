package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/user"
)

type classApi struct {
	svc           *class.Service
	userSvc       *user.Service
	profileSvc    *profile.Service
	assignmentSvc *assignment.Service
	validate      *validator.Validate
}

func registerClassAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := classApi{
		svc:           s.deps.ClassSvc,
		userSvc:       s.deps.UserSvc,
		profileSvc:    s.deps.ProfileSvc,
		assignmentSvc: s.deps.AssignmentSvc,
		validate:      s.validate,
	}
	member, owner := s.classMiddleware(false), s.classMiddleware(true)

	cg := g.Group("/classes", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, teacherMiddleware)
	cg.POST("/join", api.join, studentMiddleware)

	// detail endpoints
	dg := cg.Group("/:id")
	dg.GET("", api.retrieve, member)
	dg.PUT("", api.update, owner)
	dg.DELETE("", api.destroy, owner)
	dg.GET("/assignments", api.queryAssignments, member)
	dg.POST("/join-code", api.generateJoinCode, owner)
	dg.DELETE("/join-code", api.revokeJoinCode, owner)
	dg.GET("/students", api.roster, owner)
	dg.DELETE("/students/:studentId", api.removeStudent, owner)
	dg.GET("/invitations", api.queryInvitations, owner)
	dg.POST("/invitations", api.invite, owner)
	dg.DELETE("/invitations/:invitationId", api.revokeInvitation, owner)
}

func registerInvitationAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := classApi{svc: s.deps.ClassSvc, userSvc: s.deps.UserSvc, validate: s.validate}

	ig := g.Group("/invitations", jwt, studentMiddleware)
	ig.GET("", api.myInvitations)
	ig.POST("/accept", api.respond(true))
	ig.POST("/decline", api.respond(false))
	ig.POST("/:id/accept", api.respond(true))
	ig.POST("/:id/decline", api.respond(false))
}

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cls, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

// query lists the classes of the context user: taught ones for teachers, joined ones for students, all for admins.
func (api *classApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := class.QueryFilter{Search: ctx.QueryParam("search")}
	switch {
	case ctxUsr.IsAdmin():
		filter.TeacherID = ctx.QueryParam("teacher_id")
	case ctxUsr.IsTeacher():
		filter.TeacherID = ctxUsr.ID
	case ctxUsr.IsStudent():
		filter.StudentID = ctxUsr.ID
	default:
		return ctx.JSON(http.StatusOK, []class.Class{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	if filter.StudentID != "" {
		for i := range classes {
			classes[i] = classes[i].Public()
		}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) update(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}

	var data class.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err = api.svc.Update(ctx.Request().Context(), cls, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) destroy(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), cls.ID); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) queryAssignments(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	filter := assignment.QueryFilter{ClassID: cls.ID, Search: ctx.QueryParam("search")}
	assignments, err := api.assignmentSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *classApi) generateJoinCode(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	cls, err = api.svc.GenerateJoinCode(ctx.Request().Context(), cls)
	if err != nil {
		return errors.Wrap(err, "generating join code")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) revokeJoinCode(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	cls, err = api.svc.RevokeJoinCode(ctx.Request().Context(), cls)
	if err != nil {
		return errors.Wrap(err, "revoking join code")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) join(ctx echo.Context) error {
	var data class.JoinRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cls, err := api.svc.JoinByCode(ctx.Request().Context(), data.Code, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "joining class")
	}
	return ctx.JSON(http.StatusOK, cls.Public())
}

func (api *classApi) roster(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	enrollments, err := api.svc.Roster(rctx, cls.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	ids := make([]string, 0, len(enrollments))
	for _, enr := range enrollments {
		ids = append(ids, enr.StudentID)
	}
	entries := make([]RosterEntry, 0, len(enrollments))
	if len(ids) == 0 {
		return ctx.JSON(http.StatusOK, entries)
	}

	students, err := api.userSvc.Query(rctx, &user.QueryFilter{IDs: ids}, nil)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	byID := make(map[string]user.User, len(students))
	for _, usr := range students {
		byID[usr.ID] = usr
	}
	profiles, err := api.profileSvc.GetMany(rctx, ids)
	if err != nil {
		return errors.Wrap(err, "getting profiles")
	}

	for _, enr := range enrollments {
		usr, ok := byID[enr.StudentID]
		if !ok {
			continue
		}
		prof := profiles[enr.StudentID]
		entries = append(entries, RosterEntry{
			StudentID:      usr.ID,
			Name:           usr.Name,
			Username:       usr.Username,
			Email:          usr.Email,
			Persona:        prof.Persona,
			Accommodations: prof.Accommodations,
			JoinedAt:       enr.JoinedAt,
		})
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *classApi) removeStudent(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	if err = api.svc.RemoveStudent(ctx.Request().Context(), cls.ID, ctx.Param("studentId")); err != nil {
		return errors.Wrap(err, "removing student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) invite(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}

	var data class.Invite
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Invite")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	invitations, err := api.svc.Invite(ctx.Request().Context(), cls, ctxUsr.Name, data)
	if err != nil {
		return errors.Wrap(err, "inviting students")
	}
	return ctx.JSON(http.StatusCreated, invitations)
}

func (api *classApi) queryInvitations(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	invitations, err := api.svc.Invitations(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "querying invitations")
	}
	if invitations == nil {
		invitations = []class.Invitation{}
	}
	return ctx.JSON(http.StatusOK, invitations)
}

func (api *classApi) revokeInvitation(ctx echo.Context) error {
	cls, err := contextObject[class.Class](ctx, contextClassKey)
	if err != nil {
		return err
	}
	inv, err := api.svc.RevokeInvitation(ctx.Request().Context(), cls.ID, ctx.Param("invitationId"))
	if err != nil {
		return errors.Wrap(err, "revoking invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *classApi) myInvitations(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	invitations, err := api.svc.PendingInvitations(ctx.Request().Context(), ctxUsr.Email)
	if err != nil {
		return errors.Wrap(err, "querying invitations")
	}
	return ctx.JSON(http.StatusOK, invitations)
}

// respond accepts or declines the invitation of the ":id" path param or, without it, of the token in the body.
func (api *classApi) respond(accept bool) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data InvitationResponse
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to InvitationResponse")
		}
		id := ctx.Param("id")
		if id == "" {
			if err := api.validate.Struct(data); err != nil {
				return err
			}
		}

		ctxUsr, err := getContextUser(ctx, api.userSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		inv, err := api.svc.Respond(ctx.Request().Context(), id, data.Token, ctxUsr.ID, ctxUsr.Email, accept)
		if err != nil {
			return errors.Wrap(err, "answering invitation")
		}
		return ctx.JSON(http.StatusOK, inv)
	}
}

type (
	RosterEntry struct {
		StudentID      string          `json:"student_id"`
		Name           string          `json:"name"`
		Username       string          `json:"username"`
		Email          string          `json:"email"`
		Persona        persona.Persona `json:"persona"`
		Accommodations []string        `json:"accommodations"`
		JoinedAt       time.Time       `json:"joined_at"`
	}

	InvitationResponse struct {
		Token string `json:"token" validate:"required,notblank"`
	}
)
