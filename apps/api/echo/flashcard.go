package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/flashcard"
)

type flashcardApi struct {
	baseApi
	svc *flashcard.Service
}

func registerFlashcardAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *flashcard.Service) {
	api := flashcardApi{baseApi: base, svc: svc}

	fg := g.Group("/flashcards", jwt)
	fg.GET("", api.query)
	fg.POST("", api.create, contentManagerMiddleware())
	fg.GET("/:id", api.retrieve)
	fg.PUT("/:id", api.update, contentManagerMiddleware())
	fg.DELETE("/:id", api.destroy, contentManagerMiddleware())

	g.GET("/topics/:id/flashcard-settings", api.settings, jwt)
	g.PUT("/topics/:id/flashcard-settings", api.saveSettings, jwt)
}

func (api *flashcardApi) query(ctx echo.Context) error {
	var filter flashcard.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []flashcard.Flashcard{})
	}
	filter.Clean()

	cards, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying flashcards")
	}
	if cards == nil {
		cards = []flashcard.Flashcard{}
	}
	return ctx.JSON(http.StatusOK, cards)
}

func (api *flashcardApi) retrieve(ctx echo.Context) error {
	fc, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting flashcard")
	}
	return ctx.JSON(http.StatusOK, fc)
}

func (api *flashcardApi) create(ctx echo.Context) error {
	var data flashcard.NewFlashcard
	if err := api.bind(ctx, &data, "NewFlashcard"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fc, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating flashcard")
	}
	return ctx.JSON(http.StatusCreated, fc)
}

func (api *flashcardApi) update(ctx echo.Context) error {
	var data flashcard.NewFlashcard
	if err := api.bind(ctx, &data, "NewFlashcard"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fc, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating flashcard")
	}
	return ctx.JSON(http.StatusOK, fc)
}

func (api *flashcardApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting flashcard")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *flashcardApi) settings(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Settings(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting flashcard settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *flashcardApi) saveSettings(ctx echo.Context) error {
	var data flashcard.UpdateSettings
	if err := api.bind(ctx, &data, "UpdateSettings"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.SaveSettings(ctx.Request().Context(), usr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving flashcard settings")
	}
	return ctx.JSON(http.StatusOK, s)
}
