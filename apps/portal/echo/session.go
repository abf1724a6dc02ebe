package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/session"
	"github.com/lumenedu/lumen/core/user"
	"github.com/lumenedu/lumen/portal"
)

type sessionApi struct {
	ctrl *session.Controller
}

func registerSessionAPI(g *echo.Group, ctrl *session.Controller) {
	api := sessionApi{ctrl: ctrl}

	sg := g.Group("/session")
	sg.POST("/login", api.login)
	sg.POST("/register", api.register)
	sg.POST("/logout", api.logout)
}

// Handlers

func (api *sessionApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	// The session-change notification drives the state transition; by
	// the time the call returns, the gate reflects it.
	if err := api.ctrl.Login(ctx.Request().Context(), data.Email, data.Password); err != nil {
		return err
	}

	st := api.ctrl.State()
	usr, ok := api.ctrl.User()
	resp := GateResponse{View: portal.Resolve(st, usr), State: st.String()}
	if ok {
		resp.User = &usr
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *sessionApi) register(ctx echo.Context) error {
	var data user.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}

	if err := api.ctrl.Register(ctx.Request().Context(), data); err != nil {
		return err
	}

	// No session is issued: the store's policy gates it on email
	// confirmation.
	return ctx.JSON(http.StatusCreated, SuccessResponse{
		Success: "Registration successful! Please check your email to confirm your account.",
	})
}

func (api *sessionApi) logout(ctx echo.Context) error {
	api.ctrl.Logout(ctx.Request().Context())
	return ctx.NoContent(http.StatusNoContent)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	GateResponse struct {
		View  portal.View `json:"view"`
		State string      `json:"state"`
		User  *user.User  `json:"user,omitempty"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return core.Validate.Struct(lr)
}
