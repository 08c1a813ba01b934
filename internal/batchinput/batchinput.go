// Package batchinput turns tabular input (pasted text, CSV or an xlsx sheet)
// into batch query items. The first row names the columns; each following row
// becomes one item.
package batchinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/query"
	"github.com/xuri/excelize/v2"
)

const DefaultIDColumn = "id"

// Options controls how rows are mapped to criteria.
type Options struct {
	// IDColumn names the column holding item ids. Matching ignores case.
	IDColumn string
	// DefaultOperator applies to header cells without a ":Operator" suffix.
	DefaultOperator query.Operator
}

func (o Options) withDefaults() Options {
	if o.IDColumn == "" {
		o.IDColumn = DefaultIDColumn
	}
	if o.DefaultOperator == "" {
		o.DefaultOperator = query.Equals
	}
	return o
}

var ErrNoRows = errors.New("batch input has no data rows")

// FromText parses pasted tabular text. Tab-separated input is detected from the
// header line; anything else is read as CSV.
func FromText(text string, opts Options) ([]query.BatchItem, error) {
	text = strings.TrimLeft(text, "\r\n")
	header, _, _ := strings.Cut(text, "\n")

	r := csv.NewReader(strings.NewReader(text))
	if strings.Contains(header, "\t") {
		r.Comma = '\t'
	}
	return fromReader(r, opts)
}

// FromCSV reads comma-separated input.
func FromCSV(in io.Reader, opts Options) ([]query.BatchItem, error) {
	return fromReader(csv.NewReader(in), opts)
}

// FromFile reads a delimited text file, detecting tabs the same way FromText
// does.
func FromFile(path string, opts Options) ([]query.BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return FromText(strings.TrimPrefix(string(data), "\ufeff"), opts)
}

func fromReader(r *csv.Reader, opts Options) ([]query.BatchItem, error) {
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read batch rows: %w", err)
	}
	return FromRows(rows, opts)
}

// FromXLSX reads the named sheet of an xlsx workbook, or the first sheet when
// sheet is empty.
func FromXLSX(path, sheet string, opts Options) (items []query.BatchItem, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return FromRows(rows, opts)
}

type column struct {
	index int
	name  string
	op    query.Operator
}

// FromRows maps a header row plus data rows to batch items. Rows without an id
// are named "row-<n>", n counting data rows from 1.
func FromRows(rows [][]string, opts Options) ([]query.BatchItem, error) {
	opts = opts.withDefaults()
	if !opts.DefaultOperator.Valid() {
		_, err := query.ParseOperator(string(opts.DefaultOperator))
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	idIndex := -1
	var columns []column
	for i, cell := range rows[0] {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if strings.EqualFold(cell, opts.IDColumn) {
			idIndex = i
			continue
		}
		name, op := splitHeader(cell, opts.DefaultOperator)
		columns = append(columns, column{index: i, name: name, op: op})
	}
	if len(columns) == 0 {
		return nil, errors.New("batch input header names no search columns")
	}

	var items []query.BatchItem
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}

		item := query.BatchItem{ID: cellAt(row, idIndex)}
		if item.ID == "" {
			item.ID = fmt.Sprintf("row-%d", n+1)
		}
		for _, col := range columns {
			value := cellAt(row, col.index)
			if value == "" && col.op.RequiresValue() {
				continue
			}
			item.Criteria = append(item.Criteria, query.Criterion(col.name, col.op, value))
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, ErrNoRows
	}
	return items, nil
}

// splitHeader reads "Column:Operator". The suffix only counts when it names a
// known operator, so column names may themselves contain colons.
func splitHeader(cell string, def query.Operator) (string, query.Operator) {
	i := strings.LastIndex(cell, ":")
	if i <= 0 {
		return cell, def
	}
	op := query.Operator(strings.TrimSpace(cell[i+1:]))
	if !op.Valid() {
		return cell, def
	}
	return strings.TrimSpace(cell[:i]), op
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
