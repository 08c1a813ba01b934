// Package images resolves embedded cell images to downloadable URLs through
// the script webhook.
package images

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/webhook"
	"github.com/sirupsen/logrus"
)

const DefaultAction = "getImageUrls"

// Cell addresses one image cell by record and column.
type Cell struct {
	RecordID string `json:"recordId"`
	Field    string `json:"field"`
}

// ImageURL is the lookup result for one Cell. Either URL or Error is set.
type ImageURL struct {
	RecordID string `json:"recordId"`
	Field    string `json:"field"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Lookup struct {
	caller webhook.Caller
	action string
	logger *logrus.Logger
}

func NewLookup(caller webhook.Caller, action string, logger *logrus.Logger) *Lookup {
	if action == "" {
		action = DefaultAction
	}
	return &Lookup{caller: caller, action: action, logger: logger}
}

// URLs asks the remote script for the URLs of cells. The result has one entry
// per requested cell, in request order; cells the remote did not answer carry
// an error.
func (l *Lookup) URLs(ctx context.Context, sheetID, tableName string, cells []Cell) ([]ImageURL, error) {
	if len(cells) == 0 {
		return nil, errors.New("no image cells requested")
	}

	params := map[string]any{
		"tableName": tableName,
		"cells":     cells,
	}
	if sheetID != "" {
		params["sheetId"] = sheetID
	}

	data, err := l.caller.Call(ctx, l.action, params)
	if err != nil {
		return nil, err
	}

	found, err := decodeURLs(data)
	if err != nil {
		return nil, err
	}

	byCell := make(map[Cell]ImageURL, len(found))
	for _, u := range found {
		byCell[Cell{RecordID: u.RecordID, Field: u.Field}] = u
	}

	out := make([]ImageURL, len(cells))
	missing := 0
	for i, c := range cells {
		u, ok := byCell[c]
		if !ok {
			missing++
			u = ImageURL{RecordID: c.RecordID, Field: c.Field, Error: "no image returned for cell"}
		} else if u.URL == "" && u.Error == "" {
			u.Error = "empty image url"
		}
		out[i] = u
	}

	l.logger.WithFields(logrus.Fields{
		"table":   tableName,
		"cells":   len(cells),
		"missing": missing,
	}).Debug("Resolved image URLs")
	return out, nil
}

// decodeURLs accepts a bare array or an object holding the list under "urls"
// or "images".
func decodeURLs(data json.RawMessage) ([]ImageURL, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []ImageURL
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode image urls: %w", err)
		}
		return list, nil
	}

	var payload struct {
		URLs   []ImageURL `json:"urls"`
		Images []ImageURL `json:"images"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode image urls: %w", err)
	}
	if payload.URLs != nil {
		return payload.URLs, nil
	}
	return payload.Images, nil
}

// CellsFromRecords collects every image cell in records that has no URL yet.
// Columns restrict the scan when non-empty.
func CellsFromRecords(records []sheets.Record, columns ...string) []Cell {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}

	var cells []Cell
	for _, rec := range records {
		for _, f := range rec.Fields() {
			if len(want) > 0 && !want[f.Name] {
				continue
			}
			if img, ok := f.Value.Image(); ok && img.URL == "" {
				cells = append(cells, Cell{RecordID: rec.ID, Field: f.Name})
			}
		}
	}
	return cells
}
