package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/user"
)

type assignmentApi struct {
	svc       *assignment.Service
	classSvc  *class.Service
	userSvc   *user.Service
	extractor *extract.Extractor
	validate  *validator.Validate
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := assignmentApi{
		svc:       s.deps.AssignmentSvc,
		classSvc:  s.deps.ClassSvc,
		userSvc:   s.deps.UserSvc,
		extractor: s.deps.Extractor,
		validate:  s.validate,
	}
	member, owner := s.assignmentMiddleware(false), s.assignmentMiddleware(true)

	g.POST("/extract", api.extract, jwt)
	g.POST("/remodel", api.preview, jwt, teacherMiddleware)

	ag := g.Group("/assignments", jwt)
	ag.GET("", api.query)
	ag.POST("", api.create, teacherMiddleware)

	// detail endpoints
	dg := ag.Group("/:id")
	dg.GET("", api.retrieve, member)
	dg.PUT("", api.update, owner)
	dg.DELETE("", api.destroy, owner)
	dg.GET("/view", api.view, member)
	dg.POST("/remodel", api.remodel, owner)
	dg.GET("/variants", api.queryVariants, owner)
	dg.GET("/variants/:persona", api.retrieveVariant, owner)
	dg.PUT("/variants/:persona", api.updateVariant, owner)
	dg.DELETE("/variants/:persona", api.destroyVariant, owner)
}

// Handlers

// extract returns the text of the uploaded file, as it would be stored.
func (api *assignmentApi) extract(ctx echo.Context) error {
	res, err := extractUpload(ctx, api.extractor)
	if err != nil {
		return errors.Wrap(err, "extracting upload")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assignmentApi) preview(ctx echo.Context) error {
	var data assignment.PreviewRemodel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreviewRemodel")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	if data.StudentID != "" {
		ctxUsr, err := getContextUser(ctx, api.userSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !ctxUsr.IsAdmin() {
			ok, err := api.classSvc.TeacherHasStudent(rctx, ctxUsr.ID, data.StudentID)
			if err != nil {
				return errors.Wrap(err, "checking teacher's students")
			}
			if !ok {
				return core.NewFieldError("student_id", "student not found in your classes")
			}
		}
	}

	variants, err := api.svc.Preview(rctx, data)
	if err != nil {
		return errors.Wrap(err, "previewing remodel")
	}
	return ctx.JSON(http.StatusOK, variants)
}

// create stores a new assignment from pasted text (JSON) or an uploaded file (multipart).
func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if isMultipart(ctx) {
		dueAt, err := formTime(ctx, "due_at")
		if err != nil {
			return err
		}
		res, err := extractUpload(ctx, api.extractor)
		if err != nil {
			return errors.Wrap(err, "extracting upload")
		}
		data.DueAt = dueAt
		data.Content = res.Text
		data.SourceFilename = res.Filename
		data.SourceFormat = string(res.Format)
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()
	cls, err := api.classSvc.GetByID(rctx, data.ClassID)
	if err != nil && errors.Cause(err) != class.ErrNotFound {
		return errors.Wrap(err, "finding class by ID")
	}
	if err != nil || !(ctxUsr.IsAdmin() || cls.TeacherID == ctxUsr.ID) {
		return core.NewFieldError("class_id", class.ErrNotFound.Error())
	}

	a, err := api.svc.Create(rctx, cls.TeacherID, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

// query lists the assignments the context user can see, optionally in one class.
func (api *assignmentApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()

	filter := assignment.QueryFilter{ClassID: ctx.QueryParam("class_id"), Search: ctx.QueryParam("search")}
	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsTeacher():
		filter.TeacherID = ctxUsr.ID
	case ctxUsr.IsStudent():
		classes, err := api.classSvc.Query(rctx, class.QueryFilter{StudentID: ctxUsr.ID}, nil)
		if err != nil {
			return errors.Wrap(err, "querying classes")
		}
		filter.ClassIDs = make([]string, 0, len(classes))
		for _, cls := range classes {
			filter.ClassIDs = append(filter.ClassIDs, cls.ID)
		}
	default:
		return ctx.JSON(http.StatusOK, []assignment.Assignment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.svc.Query(rctx, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

// retrieve returns the assignment to its owner, and its view to students.
func (api *assignmentApi) retrieve(ctx echo.Context) error {
	if !isContextOwner(ctx) {
		return api.view(ctx)
	}
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

// view returns the assignment as a student reads it. Owners pick the student with ?student_id=.
func (api *assignmentApi) view(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	studentID := ctx.QueryParam("student_id")
	if !isContextOwner(ctx) {
		ctxUsr, err := getContextUser(ctx, api.userSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		studentID = ctxUsr.ID
	} else if studentID != "" {
		enrolled, err := api.classSvc.IsEnrolled(rctx, a.ClassID, studentID)
		if err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return core.NewFieldError("student_id", class.ErrNotEnrolled.Error())
		}
	}

	view, err := api.svc.ViewFor(rctx, a, studentID)
	if err != nil {
		return errors.Wrap(err, "viewing assignment")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}

	var data assignment.UpdateAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err = api.svc.Update(ctx.Request().Context(), a, data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// remodel generates the variants of the assignment for the requested personas, or those of the class.
func (api *assignmentApi) remodel(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}

	var data assignment.RemodelRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RemodelRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	personas, err := api.svc.TargetPersonas(rctx, a, data.Personas)
	if err != nil {
		return errors.Wrap(err, "selecting personas")
	}
	variants, err := api.svc.Remodel(rctx, a, personas)
	if err != nil {
		return errors.Wrap(err, "remodeling assignment")
	}
	return ctx.JSON(http.StatusOK, variants)
}

func (api *assignmentApi) queryVariants(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}
	variants, err := api.svc.Variants(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "querying variants")
	}
	if variants == nil {
		variants = []assignment.Variant{}
	}
	return ctx.JSON(http.StatusOK, variants)
}

func (api *assignmentApi) retrieveVariant(ctx echo.Context) error {
	v, err := api.contextVariant(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *assignmentApi) updateVariant(ctx echo.Context) error {
	v, err := api.contextVariant(ctx)
	if err != nil {
		return err
	}

	var data assignment.UpdateVariant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateVariant")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	v, err = api.svc.UpdateVariant(ctx.Request().Context(), v, data)
	if err != nil {
		return errors.Wrap(err, "updating variant")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *assignmentApi) destroyVariant(ctx echo.Context) error {
	v, err := api.contextVariant(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteVariant(ctx.Request().Context(), v.AssignmentID, v.Persona); err != nil {
		return errors.Wrap(err, "deleting variant")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// contextVariant loads the variant of the ":persona" path param of the context assignment.
func (api *assignmentApi) contextVariant(ctx echo.Context) (assignment.Variant, error) {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return assignment.Variant{}, err
	}
	p, err := persona.Parse(ctx.Param("persona"))
	if err != nil {
		return assignment.Variant{}, errHttpNotFound
	}
	v, err := api.svc.GetVariant(ctx.Request().Context(), a.ID, p)
	if err != nil {
		return assignment.Variant{}, errors.Wrap(err, "getting variant")
	}
	return v, nil
}
