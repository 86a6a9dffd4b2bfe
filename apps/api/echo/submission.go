package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/submission"
	"github.com/alloqly/alloqly/core/user"
)

type submissionApi struct {
	svc       *submission.Service
	userSvc   *user.Service
	extractor *extract.Extractor
	validate  *validator.Validate
}

func registerSubmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := submissionApi{
		svc:       s.deps.SubmissionSvc,
		userSvc:   s.deps.UserSvc,
		extractor: s.deps.Extractor,
		validate:  s.validate,
	}

	ag := g.Group("/assignments/:id", jwt, s.assignmentMiddleware(false))
	ag.GET("/submissions", api.query)
	ag.POST("/submissions", api.submit, studentMiddleware)
	ag.GET("/submission", api.mine, studentMiddleware)

	sg := g.Group("/submissions/:id", jwt)
	sg.GET("", api.retrieve, s.submissionMiddleware(false))
	sg.POST("/ai-grade", api.aiGrade, s.submissionMiddleware(true))
	sg.PUT("/grade", api.grade, s.submissionMiddleware(true))
}

// Handlers

// submit hands in the work of the context student, as pasted text (JSON) or an uploaded file (multipart).
func (api *submissionApi) submit(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}

	var data submission.NewSubmission
	if isMultipart(ctx) {
		res, err := extractUpload(ctx, api.extractor)
		if err != nil {
			return errors.Wrap(err, "extracting upload")
		}
		data.Content = res.Text
		data.SourceFilename = res.Filename
	} else if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Submit(ctx.Request().Context(), a, ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting work")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

// query lists the submissions of the assignment: all of them for its owner, their own for students.
func (api *submissionApi) query(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}

	filter := submission.QueryFilter{AssignmentID: a.ID, Status: ctx.QueryParam("status")}
	if isContextOwner(ctx) {
		filter.StudentID = ctx.QueryParam("student_id")
	} else {
		ctxUsr, err := getContextUser(ctx, api.userSvc)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		filter.StudentID = ctxUsr.ID
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	subs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) mine(ctx echo.Context) error {
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Get(ctx.Request().Context(), a.ID, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	sub, err := contextObject[submission.Submission](ctx, contextObjectKey)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) aiGrade(ctx echo.Context) error {
	sub, err := contextObject[submission.Submission](ctx, contextObjectKey)
	if err != nil {
		return err
	}
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}

	sub, err = api.svc.AIGrade(ctx.Request().Context(), a, sub)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) grade(ctx echo.Context) error {
	sub, err := contextObject[submission.Submission](ctx, contextObjectKey)
	if err != nil {
		return err
	}
	a, err := contextObject[assignment.Assignment](ctx, contextAssignmentKey)
	if err != nil {
		return err
	}

	var data submission.Grade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Grade")
	}
	if err = data.Validate(api.validate, a.MaxScore); err != nil {
		return err
	}

	sub, err = api.svc.Grade(ctx.Request().Context(), a, sub, data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}
