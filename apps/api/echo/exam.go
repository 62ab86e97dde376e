package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/exam"
)

type examApi struct {
	baseApi
	svc *exam.Service
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *exam.Service) {
	api := examApi{baseApi: base, svc: svc}

	eg := g.Group("/exams", jwt)
	eg.POST("", api.start)
	eg.GET("/history", api.history)
	eg.GET("/time-by-month", api.timeByMonth)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/answers", api.submitAnswer)
	eg.POST("/:id/self-assessments", api.selfAssess)
	eg.POST("/:id/complete", api.complete)
}

func (api *examApi) start(ctx echo.Context) error {
	var data StartExamRequest
	if err := api.bind(ctx, &data, "StartExamRequest"); err != nil {
		return err
	}
	data.TopicID = core.CleanString(data.TopicID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Start(ctx.Request().Context(), usr, data.TopicID)
	if err != nil {
		return errors.Wrap(err, "starting exam")
	}
	return ctx.JSON(http.StatusCreated, StartExamResponse{Attempt: res})
}

func (api *examApi) submitAnswer(ctx echo.Context) error {
	var data exam.Answer
	if err := api.bind(ctx, &data, "Answer"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.SubmitAnswer(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting exam answer")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *examApi) selfAssess(ctx echo.Context) error {
	var data exam.SelfAssessment
	if err := api.bind(ctx, &data, "SelfAssessment"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.SelfAssess(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "self-assessing flashcard")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *examApi) complete(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	att, err := api.svc.Complete(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing exam")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	view, err := api.svc.Details(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam details")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *examApi) history(ctx echo.Context) error {
	var filter exam.HistoryFilter
	if err := ctx.Bind(&filter); err != nil {
		return core.Invalid("invalid history filter")
	}
	filter.Clean()
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	hist, err := api.svc.History(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "getting exam history")
	}
	if hist.Attempts == nil {
		hist.Attempts = []exam.AttemptView{}
	}
	return ctx.JSON(http.StatusOK, hist)
}

func (api *examApi) timeByMonth(ctx echo.Context) error {
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
		return errors.Wrap(err, "reporting exam time")
	}
	return ctx.JSON(http.StatusOK, report)
}

type (
	StartExamRequest struct {
		TopicID string `json:"topic_id" validate:"required"`
	}

	StartExamResponse struct {
		Attempt exam.StartResult `json:"attempt"`
	}
)
