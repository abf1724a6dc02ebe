package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/session"
	"github.com/lumenedu/lumen/portal"
	"github.com/lumenedu/lumen/services/completion"
	"github.com/lumenedu/lumen/services/identity"
)

type (
	Options struct {
		Addr           string
		DisableReqLogs bool

		Conf          *core.Config
		Logger        core.Logger
		Ctrl          *session.Controller
		Store         identity.Store
		CompletionSvc completion.Service
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
		dash *dashboards
	}
)

var _ Server = (*server)(nil)

// NewServer builds the local JSON facade the interactive UI talks to.
// One process serves one interactive client and one session controller.
func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
		dash: &dashboards{store: opts.Store, completionSvc: opts.CompletionSvc},
	}
	s.setup()
	return s
}

func (s *server) setup() {
	debug := s.opts.Conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || s.opts.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger)
	s.app.Debug = debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	registerSessionAPI(v1, s.opts.Ctrl)
	registerDashboardAPI(v1, s.opts.Ctrl, s.dash)

	// unknown/malformed paths always land back at the root, never on a
	// blank page
	s.app.Any("/*", redirectHome)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Addr))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// home is the gate: it reports which view the UI must render for the
// current session state, and the resolved user when one exists.
func (s *server) home(ctx echo.Context) error {
	st := s.opts.Ctrl.State()
	usr, ok := s.opts.Ctrl.User()

	resp := GateResponse{View: portal.Resolve(st, usr), State: st.String()}
	if ok {
		resp.User = &usr
	}
	return ctx.JSON(http.StatusOK, resp)
}

func redirectHome(ctx echo.Context) error {
	return ctx.Redirect(http.StatusTemporaryRedirect, "/")
}
