package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/badge"
	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/syncop"
	"github.com/akela-hq/akela/core/unit"
	"github.com/akela-hq/akela/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		UserSvc     user.Service
		UnitSvc     unit.Service
		MemberSvc   member.Service
		MeetingSvc  meeting.Service
		BadgeSvc    badge.Service
		AnnounceSvc announce.Service
		SyncSvc     syncop.Service

		Validate   *validator.Validate
		Translator ut.Translator
		Logger     core.Logger

		// SignalShutdown is called when an unrecoverable error is caught.
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	debug := core.Conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.SignalShutdown)
	s.app.Debug = debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	appJWTConfig.SigningKey = core.Conf.SecretKey
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts)
	registerUnitAPI(v1, jwt, s.opts)
	registerMemberAPI(v1, jwt, s.opts)
	registerMeetingAPI(v1, jwt, s.opts)
	registerBadgeAPI(v1, jwt, s.opts)
	registerAnnounceAPI(v1, jwt, s.opts)
	registerSyncAPI(v1, jwt, s.opts)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Akela API!")
}
