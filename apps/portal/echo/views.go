package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core/material"
	"github.com/lumenedu/lumen/core/session"
	"github.com/lumenedu/lumen/portal"
)

type dashboardApi struct {
	ctrl *session.Controller
	dash *dashboards
}

func registerDashboardAPI(g *echo.Group, ctrl *session.Controller, dash *dashboards) {
	api := dashboardApi{ctrl: ctrl, dash: dash}

	tg := g.Group("/materials", viewMiddleware(ctrl, portal.ViewTeacher))
	tg.GET("", api.queryMaterials)
	tg.POST("", api.addMaterial)

	ag := g.Group("/profiles", viewMiddleware(ctrl, portal.ViewAdmin))
	ag.GET("", api.queryProfiles)
	ag.DELETE("/:id", api.deleteProfile)

	sg := g.Group("/assistant", viewMiddleware(ctrl, portal.ViewStudent))
	sg.POST("", api.ask)
	sg.GET("", api.transcript)
}

// viewMiddleware answers as the gate dictates: a dashboard route that
// does not match the current resolved view redirects home instead of
// rendering — or crashing on an unknown role.
func viewMiddleware(ctrl *session.Controller, want portal.View) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, _ := ctrl.User()
			if portal.Resolve(ctrl.State(), usr) != want {
				return redirectHome(ctx)
			}
			return next(ctx)
		}
	}
}

// Teacher view

func (api *dashboardApi) queryMaterials(ctx echo.Context) error {
	usr, _ := api.ctrl.User()
	dash, err := api.dash.teacherFor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "mounting teacher dashboard")
	}
	return ctx.JSON(http.StatusOK, dash.Materials())
}

func (api *dashboardApi) addMaterial(ctx echo.Context) error {
	var data material.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}

	usr, _ := api.ctrl.User()
	dash, err := api.dash.teacherFor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "mounting teacher dashboard")
	}

	row, err := dash.Add(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, row)
}

// Admin view

func (api *dashboardApi) queryProfiles(ctx echo.Context) error {
	usr, _ := api.ctrl.User()
	dash, err := api.dash.adminFor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "mounting admin dashboard")
	}
	return ctx.JSON(http.StatusOK, dash.Profiles())
}

func (api *dashboardApi) deleteProfile(ctx echo.Context) error {
	usr, _ := api.ctrl.User()
	dash, err := api.dash.adminFor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "mounting admin dashboard")
	}

	if err := dash.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Student view

func (api *dashboardApi) ask(ctx echo.Context) error {
	var data portal.Question
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Question")
	}

	usr, _ := api.ctrl.User()
	reply, err := api.dash.studentFor(usr).Ask(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, reply)
}

func (api *dashboardApi) transcript(ctx echo.Context) error {
	usr, _ := api.ctrl.User()
	return ctx.JSON(http.StatusOK, api.dash.studentFor(usr).Transcript())
}
