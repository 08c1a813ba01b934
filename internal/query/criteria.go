package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SearchValue is the value side of a criterion. JSON strings, numbers and
// booleans are accepted and kept in string form; null means "not provided".
type SearchValue struct {
	text string
	set  bool
}

func Text(s string) SearchValue { return SearchValue{text: s, set: true} }

func Number(f float64) SearchValue {
	return SearchValue{text: strconv.FormatFloat(f, 'f', -1, 64), set: true}
}

func (v SearchValue) String() string { return v.text }

// Provided reports whether a usable value is present. Zero counts as a value;
// an explicit empty string does not.
func (v SearchValue) Provided() bool { return v.set && v.text != "" }

func (v SearchValue) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.text)
}

func (v *SearchValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = SearchValue{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Text(strconv.FormatBool(b))
	case '{', '[':
		return fmt.Errorf("searchValue must be a string or number, got %s", data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("searchValue must be a string or number: %w", err)
		}
		*v = numberValue(n)
	}
	return nil
}

// numberValue keeps integer literals verbatim and renders other numbers in
// plain decimal form, so 1.50 becomes "1.5" and 1e3 becomes "1000".
func numberValue(n json.Number) SearchValue {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		return Text(lit)
	}
	f, err := n.Float64()
	if err != nil {
		return Text(lit)
	}
	return Number(f)
}

// SearchCriterion is one (column, operator, value) condition as supplied by a
// caller. It is validated by Compile.
type SearchCriterion struct {
	ColumnName  string      `json:"columnName"`
	SearchValue SearchValue `json:"searchValue"`
	Operator    string      `json:"op"`
}

// Criterion is a convenience constructor for a string-valued criterion.
func Criterion(column string, op Operator, value string) SearchCriterion {
	c := SearchCriterion{ColumnName: column, Operator: string(op)}
	if op.RequiresValue() {
		c.SearchValue = Text(value)
	}
	return c
}

// UnmarshalJSON also accepts "column", "value" and "operator" as key names.
func (c *SearchCriterion) UnmarshalJSON(data []byte) error {
	var aux struct {
		ColumnName  string          `json:"columnName"`
		Column      string          `json:"column"`
		SearchValue json.RawMessage `json:"searchValue"`
		Value       json.RawMessage `json:"value"`
		Op          string          `json:"op"`
		Operator    string          `json:"operator"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	out := SearchCriterion{ColumnName: aux.ColumnName, Operator: aux.Op}
	if out.ColumnName == "" {
		out.ColumnName = aux.Column
	}
	if out.Operator == "" {
		out.Operator = aux.Operator
	}

	raw := aux.SearchValue
	if len(raw) == 0 {
		raw = aux.Value
	}
	if len(raw) > 0 {
		if err := out.SearchValue.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("criterion on column %q: %w", out.ColumnName, err)
		}
	}

	*c = out
	return nil
}
