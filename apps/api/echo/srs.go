package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/srs"
)

type srsApi struct {
	baseApi
	svc *srs.Service
}

func registerSRSAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *srs.Service) {
	api := srsApi{baseApi: base, svc: svc}

	sg := g.Group("/srs", jwt)
	sg.GET("/summary", api.summary)
	sg.GET("/review-cards", api.reviewCards)
	sg.POST("/progress", api.rate)
	sg.DELETE("/topics/:id", api.resetTopic)
	sg.GET("/time-by-month", api.timeByMonth)
}

func (api *srsApi) summary(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.DueSummary(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing due cards")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *srsApi) reviewCards(ctx echo.Context) error {
	topicID := core.CleanString(ctx.QueryParam("topic_id"))
	if topicID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "topic_id", Error: "topic_id is required"})
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	review, err := api.svc.ReviewCards(ctx.Request().Context(), usr.ID, topicID)
	if err != nil {
		return errors.Wrap(err, "getting review cards")
	}
	return ctx.JSON(http.StatusOK, review)
}

func (api *srsApi) rate(ctx echo.Context) error {
	var data srs.Rating
	if err := api.bind(ctx, &data, "Rating"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.RateCard(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "rating card")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *srsApi) resetTopic(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.ResetTopic(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resetting topic progress")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Success: true, DeletedCount: n})
}

func (api *srsApi) timeByMonth(ctx echo.Context) error {
	year, err := yearParam(ctx)
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	report, err := api.svc.TimeByMonth(ctx.Request().Context(), usr.ID, year)
	if err != nil {
		return errors.Wrap(err, "reporting srs time")
	}
	return ctx.JSON(http.StatusOK, report)
}
