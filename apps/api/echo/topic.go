package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/topic"
)

type topicApi struct {
	baseApi
	svc *topic.Service
}

func registerTopicAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *topic.Service) {
	api := topicApi{baseApi: base, svc: svc}

	tg := g.Group("/topics", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create, contentManagerMiddleware())
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update, contentManagerMiddleware())
	tg.DELETE("/:id", api.destroy, contentManagerMiddleware())
}

// query lists active topics. Content managers also see inactive ones.
func (api *topicApi) query(ctx echo.Context) error {
	var filter topic.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []topic.Topic{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter.ActiveOnly = !claims.CanManageContent()

	topics, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying topics")
	}
	if topics == nil {
		topics = []topic.Topic{}
	}
	return ctx.JSON(http.StatusOK, topics)
}

func (api *topicApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting topic")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *topicApi) create(ctx echo.Context) error {
	var data topic.NewTopic
	if err := api.bind(ctx, &data, "NewTopic"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating topic")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *topicApi) update(ctx echo.Context) error {
	var data topic.UpdateTopic
	if err := api.bind(ctx, &data, "UpdateTopic"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating topic")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *topicApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting topic")
	}
	return ctx.NoContent(http.StatusNoContent)
}
