package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// convertValidationError normalizes validator errors into watchman validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return watchmanerrors.NewValidationError(field, msg, err)
	}

	return watchmanerrors.NewValidationError("config", err.Error(), err)
}

// yamlishFieldName drops the root struct from the namespace, which is
// already built from yaml tag names.
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}
