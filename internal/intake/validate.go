package intake

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"marketintel/internal/payload"
)

// LargeKeywordCount is the keyword count above which validation warns.
const LargeKeywordCount = 20

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ApplyDefaults fills the optional enumerations a caller may omit.
func ApplyDefaults(req *payload.Request) {
	if strings.TrimSpace(req.ExtractionMode) == "" {
		req.ExtractionMode = "summary"
	}
	if strings.TrimSpace(req.Priority) == "" {
		req.Priority = "medium"
	}
	if strings.TrimSpace(req.Strategy) == "" {
		req.Strategy = "table"
	}
}

// Validate checks a request and returns the recorded outcome. The returned
// Validation is populated even when the request is invalid.
func Validate(req payload.Request, now time.Time) payload.Validation {
	result := payload.Validation{ValidatedAt: now.UTC()}

	if err := requestValidator().Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				result.Errors = append(result.Errors, describe(fe))
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	if len(req.Keywords) > LargeKeywordCount {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d keywords may impact processing time", len(req.Keywords)))
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must not be empty"
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", field, fe.Value(), fe.Param())
	case "gte", "lte":
		return field + " must be between 0 and 1"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
