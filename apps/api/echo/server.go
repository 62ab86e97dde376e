package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/exam"
	"github.com/trezcool/elearning/core/file"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/session"
	"github.com/trezcool/elearning/core/srs"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	metricsvc "github.com/trezcool/elearning/services/metrics"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Metrics    *metricsvc.Metrics // optional

		UserSvc      user.ServiceInterface
		TopicSvc     *topic.Service
		QuestionSvc  *question.Service
		TestSvc      *test.Service
		AttemptSvc   *attempt.Service
		FileSvc      *file.Service
		FlashcardSvc *flashcard.Service
		SRSSvc       *srs.Service
		ExamSvc      *exam.Service
		SessionSvc   *session.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if conf.Debug && !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if len(conf.Server.CORSOrigins) > 0 {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: conf.Server.CORSOrigins}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.Middleware())
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := s.auth.middleware()
	base := baseApi{auth: s.auth, validate: s.deps.Validate, logger: s.deps.Logger}

	registerUserAPI(v1, jwt, base, s.deps.UserSvc, conf)
	registerTopicAPI(v1, jwt, base, s.deps.TopicSvc)
	registerQuestionAPI(v1, jwt, base, s.deps.QuestionSvc)
	registerTestAPI(v1, jwt, base, s.deps.TestSvc, s.deps.AttemptSvc)
	registerAttemptAPI(v1, jwt, base, s.deps.AttemptSvc)
	registerFileAPI(v1, jwt, base, s.deps.FileSvc)
	registerFlashcardAPI(v1, jwt, base, s.deps.FlashcardSvc)
	registerSRSAPI(v1, jwt, base, s.deps.SRSSvc)
	registerExamAPI(v1, jwt, base, s.deps.ExamSvc)
	registerSessionAPI(v1, jwt, base, s.deps.SessionSvc)
}

// Start listens until the server is shut down. Listener failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
