package httpserver

import (
	"errors"
	"strings"

	apperrors "github.com/KimuSoft/twitch-point-timer/internal/platform/errors"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator(v *validator.Validate) *requestValidator {
	return &requestValidator{validate: v}
}

func (rv *requestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	fieldErrs, ok := errors.AsType[validator.ValidationErrors](err)
	if !ok {
		return apperrors.ValidationError("invalid request")
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return apperrors.ValidationError("invalid request").WithField("fields", strings.Join(fields, ","))
}

// bindAndValidate decodes the body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}
