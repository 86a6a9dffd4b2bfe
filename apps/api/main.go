package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/alloqly/alloqly/apps/api/echo"
	"github.com/alloqly/alloqly/assets"
	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/submission"
	"github.com/alloqly/alloqly/core/user"
	emailsvc "github.com/alloqly/alloqly/services/email"
	llmsvc "github.com/alloqly/alloqly/services/llm"
	logsvc "github.com/alloqly/alloqly/services/logger"
	"github.com/alloqly/alloqly/storage/database"
	sqlxrepos "github.com/alloqly/alloqly/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	apiLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer apiLogger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		dbLogger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		dbLogger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	if err = database.Migrate(db.DB, "up"); err != nil {
		dbLogger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(log.New(os.Stdout, "EMAIL : ", log.LstdFlags), conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(apiLogger, conf)
	}

	var llmSvc core.LLMService
	if conf.LLM.APIKey == "" && conf.Debug {
		apiLogger.Warn("no LLM API key: using the offline model")
		llmSvc = llmsvc.NewOfflineService(apiLogger)
	} else {
		llmSvc = llmsvc.NewOpenAIService(apiLogger, conf)
	}

	extractor := extract.NewExtractor(conf.Uploads)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	profileSvc := profile.NewService(sqlxrepos.NewProfileRepository(db))
	classSvc := class.NewService(sqlxrepos.NewClassRepository(db), mailSvc, conf)
	assignmentSvc := assignment.NewService(
		sqlxrepos.NewAssignmentRepository(db), llmSvc, classSvc, profileSvc, extractor, conf,
	)
	submissionSvc := submission.NewService(
		sqlxrepos.NewSubmissionRepository(db), llmSvc, profileSvc, usrSvc, mailSvc, extractor,
	)

	// =========================================================================
	// Initialize App

	apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer apiLogger.Info("Application stopped")

	if err = core.ParseEmailTemplates(assets.FS, conf); err != nil {
		apiLogger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	if err = loadCommonPasswords(); err != nil {
		apiLogger.Fatal(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics (LLM requests & latency).

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Host, shutdown, &echoapi.Deps{
		Conf:          conf,
		Logger:        apiLogger,
		UserSvc:       usrSvc,
		ProfileSvc:    profileSvc,
		ClassSvc:      classSvc,
		AssignmentSvc: assignmentSvc,
		SubmissionSvc: submissionSvc,
		Extractor:     extractor,
	})

	serverErrors := make(chan error, 1)
	go func() {
		apiLogger.Info("API listening on " + conf.Server.Host)
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != nil {
			apiLogger.Error(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-shutdown:
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func loadCommonPasswords() error {
	f, err := assets.FS.Open(assets.CommonPasswords)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return user.LoadCommonPasswords(f)
}
