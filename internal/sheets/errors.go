package sheets

import (
	"errors"
	"strings"
)

// ValidationError reports a request that was rejected before any remote call.
type ValidationError struct {
	Field       string
	Value       string
	Message     string
	Valid       []string
	Available   []string
	Suggestions []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Suggestions) > 0 {
		b.WriteString("; did you mean: ")
		b.WriteString(strings.Join(e.Suggestions, ", "))
	}
	if len(e.Valid) > 0 {
		b.WriteString("; valid ")
		b.WriteString(e.pluralLabel())
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Valid, ", "))
	}
	if len(e.Available) > 0 {
		b.WriteString("; available ")
		b.WriteString(e.pluralLabel())
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Available, ", "))
	}
	return b.String()
}

func (e *ValidationError) pluralLabel() string {
	switch e.Field {
	case "operator":
		return "operators"
	case "tableName":
		return "tables"
	case "columnName", "returnColumns":
		return "columns"
	default:
		return "values"
	}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
