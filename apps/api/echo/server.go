package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

// Deps are the services exposed by the API.
type Deps struct {
	Validate    *validator.Validate
	Translator  ut.Translator
	Clock       core.Clock
	Location    *time.Location
	UserSvc     *user.Service
	StudentSvc  *student.Service
	ScheduleSvc *schedule.Service
	PaymentSvc  *billing.Service
	Generator   *billing.Generator
	Commissions *billing.CommissionCalculator
	FinanceSvc  *finance.Service
}

type Server struct {
	conf     *core.Config
	logger   core.Logger
	deps     *Deps
	auth     *authenticator
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(conf *core.Config, logger core.Logger, deps *Deps) *Server {
	s := &Server{
		conf:     conf,
		logger:   logger,
		deps:     deps,
		auth:     newAuthenticator(conf, deps.UserSvc),
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig())

	registerUserAPI(v1, jwt, s.auth, s.deps)
	registerStudentAPI(v1, jwt, s.auth, s.deps)
	registerScheduleAPI(v1, jwt, s.auth, s.deps)
	registerBillingAPI(v1, jwt, s.auth, s.deps)
	registerFinanceAPI(v1, jwt, s.auth, s.deps)
}

// Start blocks until the server stops. Listener errors are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the main goroutine to stop the server gracefully.
func (s *Server) SignalShutdown() {
	s.shutdown <- syscall.SIGTERM
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
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
