// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e ValidationError) Error() string {
	if e.Value == nil || e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every rejected field of one config.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	structValid  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structValid = validator.New(validator.WithRequiredStructEnabled())
	})
	return structValid
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg AppConfig) error {
	var errs ValidationErrors

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Field:   strings.TrimPrefix(fe.Namespace(), "AppConfig."),
				Message: describeTag(fe),
				Value:   fe.Value(),
			})
		}
	}

	if u, err := url.Parse(cfg.Backend.URL); err == nil && cfg.Backend.URL != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, ValidationError{Field: "Backend.URL", Message: "scheme must be http or https", Value: u.Scheme})
		}
	}

	switch cfg.Store.Backend {
	case "badger":
		if cfg.Store.Path == "" {
			errs = append(errs, ValidationError{Field: "Store.Path", Message: "required for badger backend"})
		}
	case "redis":
		if cfg.Store.RedisAddr == "" {
			errs = append(errs, ValidationError{Field: "Store.RedisAddr", Message: "required for redis backend"})
		}
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, ValidationError{Field: "Telemetry.Endpoint", Message: "required when telemetry is enabled"})
	}

	if cfg.Network.SlowThreshold >= cfg.Network.ProbeTimeout && cfg.Network.ProbeTimeout > 0 {
		errs = append(errs, ValidationError{
			Field:   "Network.SlowThreshold",
			Message: "must be below Network.ProbeTimeout",
			Value:   cfg.Network.SlowThreshold,
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "cidr|ip":
		return "must be a CIDR or IP address"
	case "hostname|ip":
		return "must be a host name or IP address"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}
