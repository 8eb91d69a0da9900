package config

import (
	"fmt"
	"unicode/utf8"

	"github.com/dukerupert/referidos/internal/model"
)

// ValidationError reports a field that failed client-side validation.
// It is never sent to the remote API.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FormatValue rewrites value for display using the kind's format rule.
// The rule is applied to the first match only. Kinds without a rule and
// empty values are returned unchanged.
func (c *Config) FormatValue(kind, value string) string {
	if value == "" {
		return ""
	}
	f, ok := c.formats[kind]
	if !ok {
		return value
	}
	loc := f.re.FindStringSubmatchIndex(value)
	if loc == nil {
		return value
	}
	out := f.re.ExpandString(nil, f.replace, value, loc)
	return value[:loc[0]] + string(out) + value[loc[1]:]
}

// ValidateField checks value against the kind's minimum length and pattern.
func (c *Config) ValidateField(kind, value string) error {
	minLen := c.App.Validation.MinLength[kind]
	if value == "" || utf8.RuneCountInString(value) < minLen {
		return &ValidationError{
			Field:   kind,
			Message: fmt.Sprintf("El campo debe tener al menos %d caracteres", minLen),
		}
	}
	if re, ok := c.patterns[kind]; ok && !re.MatchString(value) {
		return &ValidationError{
			Field:   kind,
			Message: fmt.Sprintf("El formato del %s no es válido", kind),
		}
	}
	return nil
}

// Classifier returns the completion parser for the configured literal sets.
func (c *Config) Classifier() model.Classifier {
	return model.NewClassifier(c.App.CompleteValues.Complete)
}
