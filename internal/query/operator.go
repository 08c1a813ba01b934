package query

import (
	"fmt"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
)

// Operator is a comparison the remote filter understands. The set is closed.
type Operator string

const (
	Equals      Operator = "Equals"
	NotEqu      Operator = "NotEqu"
	Greater     Operator = "Greater"
	GreaterEqu  Operator = "GreaterEqu"
	Less        Operator = "Less"
	LessEqu     Operator = "LessEqu"
	BeginWith   Operator = "BeginWith"
	EndWith     Operator = "EndWith"
	Contains    Operator = "Contains"
	NotContains Operator = "NotContains"
	Intersected Operator = "Intersected"
	Empty       Operator = "Empty"
	NotEmpty    Operator = "NotEmpty"
)

var operators = []Operator{
	Equals, NotEqu, Greater, GreaterEqu, Less, LessEqu,
	BeginWith, EndWith, Contains, NotContains, Intersected,
	Empty, NotEmpty,
}

// Operators returns every supported operator in canonical order.
func Operators() []Operator {
	return append([]Operator(nil), operators...)
}

func OperatorNames() []string {
	names := make([]string, len(operators))
	for i, op := range operators {
		names[i] = string(op)
	}
	return names
}

func (o Operator) Valid() bool {
	for _, op := range operators {
		if op == o {
			return true
		}
	}
	return false
}

// RequiresValue is false only for Empty and NotEmpty.
func (o Operator) RequiresValue() bool {
	return o != Empty && o != NotEmpty
}

// ParseOperator matches s exactly (surrounding whitespace ignored).
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.TrimSpace(s))
	if op.Valid() {
		return op, nil
	}
	return "", &sheets.ValidationError{
		Field:   "operator",
		Value:   s,
		Message: fmt.Sprintf("invalid operator %q", s),
		Valid:   OperatorNames(),
	}
}
