package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
	"github.com/trezcool/elearning/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// yearParam reads the "year" query parameter, defaulting to the current UTC year.
func yearParam(ctx echo.Context) (int, error) {
	val := ctx.QueryParam("year")
	if val == "" {
		return time.Now().UTC().Year(), nil
	}
	year, err := strconv.Atoi(val)
	if err != nil || year < 1 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "year", Error: "invalid year"})
	}
	return year, nil
}

// baseApi holds what every handler group needs.
type baseApi struct {
	auth     *authenticator
	validate *validator.Validate
	logger   core.Logger
}

func (api baseApi) user(ctx echo.Context) (user.User, error) {
	usr, err := api.auth.contextUser(ctx)
	return usr, errors.Wrap(err, "getting context user")
}

func (api baseApi) bind(ctx echo.Context, data interface{}, name string) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding to "+name)
	}
	return nil
}

type (
	SuccessResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}

	CountResponse struct {
		Success      bool `json:"success"`
		DeletedCount int  `json:"deleted_count"`
	}
)
