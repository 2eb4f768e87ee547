package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leofalp/railgraph/core/batch"
)

var configValidator = newValidator()

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return validate
}

// Validate checks cfg and reports every invalid field, one message per
// field, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	problems := make([]error, 0)
	if err := configValidator.Struct(cfg); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("validation error: %w", err)
		}
		for _, fieldError := range fieldErrors {
			problems = append(problems, errors.New(formatFieldError(fieldError)))
		}
	}

	for index, schedule := range cfg.Batch.Schedules {
		if _, err := batch.ParseCron(schedule.Cron); err != nil {
			problems = append(problems, fmt.Errorf("field 'batch.schedules[%d].cron' %w", index, err))
		}
		if schedule.ID == "" || schedule.PipelineID == "" {
			problems = append(problems, fmt.Errorf("field 'batch.schedules[%d]' needs id and pipeline_id", index))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
}

func formatFieldError(fieldError validator.FieldError) string {
	path := fieldPath(fieldError.Namespace())
	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", path)
	case "required_unless":
		return fmt.Sprintf("field '%s' is required unless %s", path, fieldError.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of [%s]", path, fieldError.Param())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s (got: %v)", path, fieldError.Param(), fieldError.Value())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s (got: %v)", path, fieldError.Param(), fieldError.Value())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL (got: %v)", path, fieldError.Value())
	default:
		return fmt.Sprintf("field '%s' failed '%s' validation", path, fieldError.Tag())
	}
}

// fieldPath drops the root struct name: "Config.run.log_cap" → "run.log_cap".
func fieldPath(namespace string) string {
	if _, rest, found := strings.Cut(namespace, "."); found {
		return rest
	}
	return namespace
}
