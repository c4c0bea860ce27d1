package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("env", validateEnvironment)
	validate.RegisterStructValidation(validateTracing, TracingConfig{})
	validate.RegisterStructValidation(validateCache, CacheConfig{})
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var details ValidationErrors
			for _, fe := range validationErrors {
				details = append(details, ConfigError{
					Field:   fe.Namespace(),
					Message: formatValidationError(fe),
					Value:   fe.Value(),
				})
			}
			return details
		}
		return err
	}
	return nil
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "numeric":
		return "must be numeric"
	case "env":
		return "must be one of [development staging production]"
	case "endpoint_required":
		return "is required when tracing uses an OTLP exporter"
	case "path_required":
		return "is required for the badger cache"
	case "address_required":
		return "is required for the redis cache"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateTracing requires an endpoint for network exporters.
func validateTracing(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(TracingConfig)
	if !cfg.Enabled || cfg.Exporter == "console" {
		return
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		sl.ReportError(cfg.Endpoint, "Endpoint", "Endpoint", "endpoint_required", "")
	}
}

// validateCache requires the settings of the selected backend.
func validateCache(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(CacheConfig)
	switch cfg.Type {
	case "badger":
		if strings.TrimSpace(cfg.Badger.Path) == "" {
			sl.ReportError(cfg.Badger.Path, "Badger.Path", "Path", "path_required", "")
		}
	case "redis":
		if strings.TrimSpace(cfg.Redis.Address) == "" {
			sl.ReportError(cfg.Redis.Address, "Redis.Address", "Address", "address_required", "")
		}
	}
}
