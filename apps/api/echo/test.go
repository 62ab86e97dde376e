package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/test"
)

type testApi struct {
	baseApi
	svc      *test.Service
	attempts *attempt.Service
}

func registerTestAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *test.Service, attempts *attempt.Service) {
	api := testApi{baseApi: base, svc: svc, attempts: attempts}

	tg := g.Group("/tests", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create, contentManagerMiddleware())
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update, contentManagerMiddleware())
	tg.DELETE("/:id", api.destroy, contentManagerMiddleware())
	tg.GET("/:id/data", api.data)

	tg.GET("/:id/attempt-status", api.attemptStatus)
	tg.POST("/:id/attempts", api.startAttempt)
	tg.GET("/:id/attempts", api.listAttempts)
}

// query lists active tests. Content managers also see inactive ones.
func (api *testApi) query(ctx echo.Context) error {
	var filter test.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []test.Summary{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var tests []test.Summary
	if claims.CanManageContent() {
		tests, err = api.svc.Query(ctx.Request().Context(), filter)
	} else {
		tests, err = api.svc.ListActive(ctx.Request().Context(), filter)
	}
	if err != nil {
		return errors.Wrap(err, "querying tests")
	}
	if tests == nil {
		tests = []test.Summary{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *testApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.Details(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting test details")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *testApi) data(ctx echo.Context) error {
	data, err := api.svc.TestData(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting test data")
	}
	return ctx.JSON(http.StatusOK, data)
}

func (api *testApi) create(ctx echo.Context) error {
	var data test.NewTest
	if err := api.bind(ctx, &data, "NewTest"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating test")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *testApi) update(ctx echo.Context) error {
	var data test.NewTest
	if err := api.bind(ctx, &data, "NewTest"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating test")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *testApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting test")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *testApi) attemptStatus(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	status, err := api.attempts.Status(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *testApi) startAttempt(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	session, err := api.attempts.StartOrResume(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusOK, session)
}

func (api *testApi) listAttempts(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	attempts, err := api.attempts.ListForTest(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing attempts")
	}
	if attempts == nil {
		attempts = []attempt.Summary{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}
