package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
)

var ErrValidation = errors.New("request validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name so the errors map matches the payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateRequest runs struct validation on req. On failure it writes a 400
// with one entry per offending field and returns false.
func validateRequest(w http.ResponseWriter, r *http.Request, req any, env string) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		problem.ServerError(w, r, err, env)
		return false
	}
	problem.BadRequest(w, r, ErrValidation, env,
		problem.WithDetail("One or more fields are invalid"),
		problem.WithErrors(fieldErrors(fieldErrs)),
	)
	return false
}

func fieldErrors(errs validator.ValidationErrors) map[string]any {
	out := make(map[string]any, len(errs))
	for _, fe := range errs {
		out[fieldPath(fe)] = fieldMessage(fe)
	}
	return out
}

// fieldPath drops the top-level struct name: "groupRequest.members[0].email"
// becomes "members[0].email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
