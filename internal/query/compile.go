package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
)

// CompiledClause is one condition in the remote filter format.
type CompiledClause struct {
	Field  string   `json:"field"`
	Op     Operator `json:"op"`
	Values []string `json:"values,omitempty"`
}

// CompiledFilter is an AND of clauses in input order. It cannot be modified
// after Compile returns it.
type CompiledFilter struct {
	clauses []CompiledClause
}

const modeAnd = "AND"

func (f *CompiledFilter) Mode() string { return modeAnd }

func (f *CompiledFilter) Len() int { return len(f.clauses) }

// Clauses returns a copy of the compiled clauses.
func (f *CompiledFilter) Clauses() []CompiledClause {
	out := make([]CompiledClause, len(f.clauses))
	for i, c := range f.clauses {
		out[i] = CompiledClause{Field: c.Field, Op: c.Op, Values: append([]string(nil), c.Values...)}
	}
	return out
}

// MarshalJSON emits the filter description the remote script consumes:
// {"mode":"AND","criteria":[{"field":..,"op":..,"values":[..]}]}.
func (f *CompiledFilter) MarshalJSON() ([]byte, error) {
	clauses := f.clauses
	if clauses == nil {
		clauses = []CompiledClause{}
	}
	return json.Marshal(struct {
		Mode     string           `json:"mode"`
		Criteria []CompiledClause `json:"criteria"`
	}{Mode: modeAnd, Criteria: clauses})
}

// Describe renders the filter for humans, e.g.
// "PartNo Contains 'A100' AND Level Equals 'F'".
func (f *CompiledFilter) Describe() string {
	parts := make([]string, 0, len(f.clauses))
	for _, c := range f.clauses {
		if len(c.Values) == 0 {
			parts = append(parts, fmt.Sprintf("%s %s", c.Field, c.Op))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s '%s'", c.Field, c.Op, strings.Join(c.Values, "', '")))
	}
	return strings.Join(parts, " AND ")
}

func (f *CompiledFilter) String() string { return f.Describe() }

type compileOptions struct {
	dropBlankColumns bool
}

type CompileOption func(*compileOptions)

// DropBlankColumns skips criteria whose column name is blank instead of
// rejecting them. Batch assembly uses it for best-effort rows.
func DropBlankColumns() CompileOption {
	return func(o *compileOptions) { o.dropBlankColumns = true }
}

// Compile validates criteria against the known columns and builds the remote
// filter. A nil column set skips the column check. Any invalid criterion
// fails the whole compile with a *sheets.ValidationError.
func Compile(columns *sheets.ColumnSet, criteria []SearchCriterion, opts ...CompileOption) (*CompiledFilter, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}

	clauses := make([]CompiledClause, 0, len(criteria))
	for i, c := range criteria {
		column := strings.TrimSpace(c.ColumnName)
		if column == "" {
			if o.dropBlankColumns {
				continue
			}
			return nil, &sheets.ValidationError{
				Field:   "columnName",
				Message: fmt.Sprintf("criterion %d: columnName is required", i+1),
			}
		}

		op, err := ParseOperator(c.Operator)
		if err != nil {
			return nil, err
		}

		field, ok := columns.Lookup(column)
		if !ok {
			return nil, &sheets.ValidationError{
				Field:       "columnName",
				Value:       column,
				Message:     fmt.Sprintf("unknown column %q", column),
				Available:   columns.Names(),
				Suggestions: columns.Suggest(column),
			}
		}

		clause := CompiledClause{Field: field, Op: op}
		if op.RequiresValue() {
			if !c.SearchValue.Provided() {
				return nil, &sheets.ValidationError{
					Field:   "searchValue",
					Message: fmt.Sprintf("searchValue is required for operator %s on column %q", op, field),
				}
			}
			clause.Values = []string{c.SearchValue.String()}
		}
		clauses = append(clauses, clause)
	}

	if len(clauses) == 0 {
		return nil, &sheets.ValidationError{
			Field:   "criteria",
			Message: "at least one search criterion is required",
		}
	}
	return &CompiledFilter{clauses: clauses}, nil
}
