package sheets

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Column describes one column of a sheet.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Table is a sheet inside a workbook together with its column metadata.
// Columns is empty when the remote side did not report any.
type Table struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns,omitempty"`
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// ColumnSet returns nil when the table has no column metadata.
func (t Table) ColumnSet() *ColumnSet {
	return NewColumnSet(t.ColumnNames()...)
}

// ColumnSet is the set of known columns of a table. A nil *ColumnSet means
// "no metadata" and every lookup succeeds with the caller's spelling.
type ColumnSet struct {
	names []string
	index map[string]string
}

func NewColumnSet(names ...string) *ColumnSet {
	cs := &ColumnSet{index: make(map[string]string, len(names))}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, dup := cs.index[name]; dup {
			continue
		}
		cs.names = append(cs.names, name)
		cs.index[name] = name
		if key := NormaliseName(name); key != name {
			if _, taken := cs.index[key]; !taken {
				cs.index[key] = name
			}
		}
	}
	if len(cs.names) == 0 {
		return nil
	}
	return cs
}

func (c *ColumnSet) Known() bool { return c != nil }

func (c *ColumnSet) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Lookup resolves name to the sheet's own spelling of the column. Matching
// falls back to NFC-normalised, case-folded comparison.
func (c *ColumnSet) Lookup(name string) (string, bool) {
	if c == nil {
		return name, true
	}
	if canonical, ok := c.index[name]; ok {
		return canonical, true
	}
	canonical, ok := c.index[NormaliseName(name)]
	return canonical, ok
}

func (c *ColumnSet) Suggest(name string) []string {
	if c == nil {
		return nil
	}
	return Suggest(name, c.names, 3)
}

// NormaliseName folds a column or table name for tolerant comparison: NFC,
// case folding and collapsed whitespace.
func NormaliseName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// Suggest returns up to limit candidates that fuzzily match name, best first.
func Suggest(name string, candidates []string, limit int) []string {
	name = strings.TrimSpace(name)
	if name == "" || len(candidates) == 0 {
		return nil
	}

	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		folded := make([]string, len(candidates))
		for i, c := range candidates {
			folded[i] = NormaliseName(c)
		}
		matches = fuzzy.Find(NormaliseName(name), folded)
	}

	out := make([]string, 0, limit)
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, candidates[m.Index])
	}
	return out
}
