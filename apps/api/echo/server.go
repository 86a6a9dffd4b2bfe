package echoapi

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/submission"
	"github.com/alloqly/alloqly/core/user"
)

type (
	// Deps holds the services the API is built on.
	Deps struct {
		Conf          *core.Config
		Logger        core.Logger
		UserSvc       *user.Service
		ProfileSvc    *profile.Service
		ClassSvc      *class.Service
		AssignmentSvc *assignment.Service
		SubmissionSvc *submission.Service
		Extractor     *extract.Extractor
	}

	Server interface {
		http.Handler
		Start() error
		Shutdown(context.Context) error
	}

	server struct {
		addr       string
		shutdown   chan os.Signal
		deps       *Deps
		app        *echo.Echo
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

// NewServer builds the API server. Signals sent on shutdown ask the owner of the channel to stop the server.
func NewServer(addr string, shutdown chan os.Signal, deps *Deps) Server {
	s := &server{
		addr:       addr,
		shutdown:   shutdown,
		deps:       deps,
		app:        echo.New(),
		validate:   validator.New(),
		translator: core.NewTranslator(),
	}
	core.InitValidators(s.validate, s.translator)
	user.InitValidators(s.validate, s.translator)
	persona.InitValidators(s.validate, s.translator)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.BodyLimit(bodyLimit(conf.Uploads.MaxBytes)))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := newJWTMiddleware(conf)

	g.GET("/personas", listPersonas)
	registerUserAPI(g, jwt, s)
	registerClassAPI(g, jwt, s)
	registerInvitationAPI(g, jwt, s)
	registerAssignmentAPI(g, jwt, s)
	registerSubmissionAPI(g, jwt, s)
}

func (s *server) Start() error {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "starting server")
	}
	return nil
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) signalShutdown() {
	if s.shutdown == nil {
		return
	}
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

// bodyLimit formats maxBytes for middleware.BodyLimit, leaving room for the multipart envelope.
func bodyLimit(maxBytes int64) string {
	const envelope = 1 << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	kb := (maxBytes + envelope + 1023) / 1024
	return strconv.FormatInt(kb, 10) + "K"
}
