package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/webhook"
)

// DefaultSearchAction is the script action that returns one filtered page.
const DefaultSearchAction = "searchRecords"

// Cursor is the opaque resumption token of a filtered scan. The zero Cursor
// starts a scan; it is passed back to the remote exactly as received.
type Cursor struct {
	raw json.RawMessage
}

// NewCursor wraps a remote token. Falsy tokens (null, false, 0, "") yield the
// zero Cursor.
func NewCursor(raw json.RawMessage) Cursor {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return Cursor{}
	}
	return Cursor{raw: append(json.RawMessage(nil), raw...)}
}

func StringCursor(s string) Cursor {
	if s == "" {
		return Cursor{}
	}
	raw, _ := json.Marshal(s)
	return Cursor{raw: raw}
}

func (c Cursor) Valid() bool { return len(c.raw) > 0 }

func (c Cursor) String() string { return string(c.raw) }

func (c Cursor) Equal(other Cursor) bool { return bytes.Equal(c.raw, other.raw) }

func (c Cursor) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return []byte("null"), nil
	}
	return c.raw, nil
}

// Page is one answer of the "get records" primitive.
type Page struct {
	Records []sheets.Record
	Next    Cursor
}

// PageFetcher is the "get records with filter and cursor" primitive.
type PageFetcher interface {
	FetchPage(ctx context.Context, target Target, filter *CompiledFilter, cursor Cursor, pageSize int) (Page, error)
}

// RemoteFetcher implements PageFetcher over the script webhook.
type RemoteFetcher struct {
	caller webhook.Caller
	action string
}

func NewRemoteFetcher(caller webhook.Caller, action string) *RemoteFetcher {
	if action == "" {
		action = DefaultSearchAction
	}
	return &RemoteFetcher{caller: caller, action: action}
}

func (f *RemoteFetcher) FetchPage(ctx context.Context, target Target, filter *CompiledFilter, cursor Cursor, pageSize int) (Page, error) {
	params := map[string]any{
		"tableName": target.TableName,
		"filter":    filter,
		"pageSize":  pageSize,
	}
	if target.SheetID != "" {
		params["sheetId"] = target.SheetID
	}
	if cursor.Valid() {
		params["offset"] = cursor
	}

	data, err := f.caller.Call(ctx, f.action, params)
	if err != nil {
		return Page{}, err
	}
	return DecodePage(data)
}

// DecodePage reads a page payload. It accepts {"records": [...], "offset": ..}
// (also "nextOffset" or "cursor" for the token) or a bare array of records.
func DecodePage(data json.RawMessage) (Page, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []sheets.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return Page{}, fmt.Errorf("decode records: %w", err)
		}
		return Page{Records: records}, nil
	}

	var payload struct {
		Records    []sheets.Record `json:"records"`
		Offset     json.RawMessage `json:"offset"`
		NextOffset json.RawMessage `json:"nextOffset"`
		Cursor     json.RawMessage `json:"cursor"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Page{}, fmt.Errorf("decode records page: %w", err)
	}

	next := NewCursor(payload.Offset)
	if !next.Valid() {
		next = NewCursor(payload.NextOffset)
	}
	if !next.Valid() {
		next = NewCursor(payload.Cursor)
	}
	return Page{Records: payload.Records, Next: next}, nil
}
