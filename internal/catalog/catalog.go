// Package catalog loads table and column metadata from the script webhook.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/cache"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/webhook"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAction = "getTables"

	tablesKey = "tables"
)

// Catalog caches the table list of one workbook.
type Catalog struct {
	caller webhook.Caller
	action string
	cache  *cache.Cache[[]sheets.Table]
	logger *logrus.Logger
}

// New creates a catalog. Metadata is cached for ttl; a ttl of zero fetches
// on every call.
func New(caller webhook.Caller, action string, ttl time.Duration, logger *logrus.Logger) *Catalog {
	if action == "" {
		action = DefaultAction
	}
	return &Catalog{
		caller: caller,
		action: action,
		cache:  cache.NewCache[[]sheets.Table](ttl),
		logger: logger,
	}
}

// Tables returns every table of the workbook with its columns.
func (c *Catalog) Tables(ctx context.Context) ([]sheets.Table, error) {
	if tables, ok := c.cache.Get(tablesKey); ok {
		return tables, nil
	}

	data, err := c.caller.Call(ctx, c.action, map[string]any{})
	if err != nil {
		return nil, err
	}
	tables, err := DecodeTables(data)
	if err != nil {
		return nil, err
	}

	c.cache.Set(tablesKey, tables)
	c.logger.WithField("tables", len(tables)).Debug("Loaded table metadata")
	return tables, nil
}

// Resolve finds the table called name, matching exactly first and then on the
// normalised spelling. When metadata cannot be loaded the caller is trusted and
// a Table without columns is returned, so the remote script does the
// validation instead.
func (c *Catalog) Resolve(ctx context.Context, name string) (sheets.Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return sheets.Table{}, &sheets.ValidationError{Field: "tableName", Message: "tableName is required"}
	}

	tables, err := c.Tables(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return sheets.Table{}, err
		}
		c.logger.WithError(err).WithField("table", name).Warn("Table metadata unavailable, skipping validation")
		return sheets.Table{Name: name}, nil
	}

	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	want := sheets.NormaliseName(name)
	for _, t := range tables {
		if sheets.NormaliseName(t.Name) == want {
			return t, nil
		}
	}

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return sheets.Table{}, &sheets.ValidationError{
		Field:       "tableName",
		Value:       name,
		Message:     fmt.Sprintf("unknown table %q", name),
		Available:   names,
		Suggestions: sheets.Suggest(name, names, 3),
	}
}

// Invalidate drops cached metadata.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

type rawTable struct {
	ID      json.RawMessage `json:"id"`
	SheetID json.RawMessage `json:"sheetId"`
	Name    string          `json:"name"`
	Fields  json.RawMessage `json:"fields"`
	Columns json.RawMessage `json:"columns"`
}

// DecodeTables reads a list-tables payload: a bare array or an object with a
// "tables" or "sheets" list. Columns may be objects or plain names.
func DecodeTables(data json.RawMessage) ([]sheets.Table, error) {
	data = bytes.TrimSpace(data)

	var raw []rawTable
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode tables: %w", err)
		}
	} else {
		var payload struct {
			Tables []rawTable `json:"tables"`
			Sheets []rawTable `json:"sheets"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode tables: %w", err)
		}
		raw = payload.Tables
		if raw == nil {
			raw = payload.Sheets
		}
	}

	tables := make([]sheets.Table, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		id := idText(r.ID)
		if id == "" {
			id = idText(r.SheetID)
		}
		colsRaw := r.Fields
		if len(colsRaw) == 0 || string(colsRaw) == "null" {
			colsRaw = r.Columns
		}
		cols, err := decodeColumns(colsRaw)
		if err != nil {
			return nil, fmt.Errorf("decode columns of %q: %w", r.Name, err)
		}
		tables = append(tables, sheets.Table{ID: id, Name: r.Name, Columns: cols})
	}
	return tables, nil
}

func decodeColumns(data json.RawMessage) ([]sheets.Column, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	cols := make([]sheets.Column, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var name string
			if err := json.Unmarshal(item, &name); err != nil {
				return nil, err
			}
			cols = append(cols, sheets.Column{Name: name})
			continue
		}
		var col sheets.Column
		if err := json.Unmarshal(item, &col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func idText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
