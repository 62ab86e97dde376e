package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/session"
)

type sessionApi struct {
	baseApi
	svc *session.Service
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *session.Service) {
	api := sessionApi{baseApi: base, svc: svc}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.start)
	sg.GET("/time-by-month", api.timeByMonth)
	sg.PATCH("/:id/time", api.addTime)
	sg.POST("/:id/end", api.end)
}

func (api *sessionApi) start(ctx echo.Context) error {
	var data session.NewSession
	if err := api.bind(ctx, &data, "NewSession"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.Start(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusCreated, StartSessionResponse{Success: true, SessionID: s.ID})
}

func (api *sessionApi) addTime(ctx echo.Context) error {
	var data session.AddTime
	if err := api.bind(ctx, &data, "AddTime"); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.AddTime(ctx.Request().Context(), usr, ctx.Param("id"), data.TimeSpentSeconds); err != nil {
		return errors.Wrap(err, "adding session time")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *sessionApi) end(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.End(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "ending session")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *sessionApi) timeByMonth(ctx echo.Context) error {
	year, err := yearParam(ctx)
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	report, err := api.svc.TimeByMonth(ctx.Request().Context(), usr, year)
	if err != nil {
		return errors.Wrap(err, "reporting study time")
	}
	return ctx.JSON(http.StatusOK, report)
}

type StartSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}
