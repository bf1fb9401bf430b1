package echoapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
)

type (
	// Reporter renders the PDF documents served by the API.
	Reporter interface {
		MarksReport(w io.Writer, t task.Task, sheet marking.Sheet, summary marking.Summary) error
		CoverSheet(w io.Writer, t task.Task, b answer.Book) error
	}

	// Mirror signs the URLs of mirrored files.
	Mirror interface {
		URL(remotePath string) string
	}

	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc    user.Service
		TaskSvc    task.Service
		AnswerSvc  answer.Service
		MarkingSvc marking.Service
		Reporter   Reporter
		Mirror     Mirror // nil when mirroring is disabled

		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf
	debug := conf.Debug && !conf.TestMode

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(conf, s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = debug

	api := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	api.GET("/version", s.version)
	s.registerAccountAPI(api, jwt)
	s.registerTaskAPI(api, jwt)
	s.registerAnswerAPI(api, jwt)
	s.registerMarkingAPI(api, jwt)
}

// Start blocks until the server stops. Failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
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
	default:
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

type versionResponse struct {
	Name  string `json:"name"`
	Build string `json:"build"`
	Env   string `json:"env"`
}

func (s *Server) version(ctx echo.Context) error {
	conf := s.deps.Conf
	return ctx.JSON(http.StatusOK, versionResponse{Name: conf.AppName, Build: conf.Build, Env: conf.Env})
}

// contextUser returns the authenticated user of the request.
func (s *Server) contextUser(ctx echo.Context) (user.User, error) {
	return getContextUser(ctx, s.deps.UserSvc)
}
