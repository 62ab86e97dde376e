package echoapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/file"
)

const maxUploadBytes = 10<<20 + 1

type fileApi struct {
	baseApi
	svc *file.Service
}

func registerFileAPI(g *echo.Group, jwt echo.MiddlewareFunc, base baseApi, svc *file.Service) {
	api := fileApi{baseApi: base, svc: svc}

	fg := g.Group("/files", jwt)
	fg.POST("/answer-images", api.uploadAnswerImage)
	fg.GET("/:name", api.serve)
}

func (api *fileApi) uploadAnswerImage(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "No file uploaded"})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer src.Close()

	// the service rejects anything above its limit
	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return errors.Wrap(err, "reading uploaded file")
	}

	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	f, err := api.svc.Upload(ctx.Request().Context(), usr.ID, fh.Filename, content, true, "")
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, UploadResponse{
		Name:             f.Name,
		FileURL:          f.URL,
		OriginalFilename: f.OriginalFilename,
	})
}

func (api *fileApi) serve(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	f, content, err := api.svc.Open(ctx.Request().Context(), usr, ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	h := ctx.Response().Header()
	h.Set(echo.HeaderXContentTypeOptions, "nosniff")
	if !file.IsImage(f.ContentType) {
		h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.OriginalFilename))
	}
	return ctx.Blob(http.StatusOK, f.ContentType, content)
}

type UploadResponse struct {
	Name             string `json:"name"`
	FileURL          string `json:"file_url"`
	OriginalFilename string `json:"original_filename"`
}
