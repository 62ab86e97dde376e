package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/attempt"
)

type attemptApi struct {
	baseApi
	svc *attempt.Service
}

func registerAttemptAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *attempt.Service) {
	api := attemptApi{baseApi: base, svc: svc}

	ag := g.Group("/attempts", jwt)
	ag.GET("", api.list)
	ag.PATCH("/:id/progress", api.saveProgress)
	ag.POST("/:id/submit", api.submit)
	ag.GET("/:id/result", api.result)
}

func (api *attemptApi) list(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	attempts, err := api.svc.ListAll(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing attempts")
	}
	if attempts == nil {
		attempts = []attempt.Summary{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *attemptApi) saveProgress(ctx echo.Context) error {
	var data attempt.Progress
	if err := api.bind(ctx, &data, "Progress"); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.SaveProgress(ctx.Request().Context(), usr, ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "saving progress")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Progress saved"})
}

func (api *attemptApi) submit(ctx echo.Context) error {
	var data attempt.Submission
	if err := api.bind(ctx, &data, "Submission"); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Submit(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attemptApi) result(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.ResultDetails(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt result")
	}
	return ctx.JSON(http.StatusOK, res)
}
