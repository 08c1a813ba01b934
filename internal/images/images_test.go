package images

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCaller struct {
	action string
	params map[string]any
	reply  string
	err    error
}

func (s *stubCaller) Call(_ context.Context, action string, params map[string]any) (json.RawMessage, error) {
	s.action = action
	s.params = params
	return json.RawMessage(s.reply), s.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestLookup_URLs(t *testing.T) {
	caller := &stubCaller{reply: `[
		{"recordId":"r2","field":"Photo","url":"https://img/2.png"},
		{"recordId":"r1","field":"Photo","url":"https://img/1.png"},
		{"recordId":"r3","field":"Photo","error":"not an image"}
	]`}
	lookup := NewLookup(caller, "", quietLogger())

	cells := []Cell{{"r1", "Photo"}, {"r2", "Photo"}, {"r3", "Photo"}, {"r4", "Photo"}}
	urls, err := lookup.URLs(context.Background(), "3", "Parts", cells)
	require.NoError(t, err)

	assert.Equal(t, DefaultAction, caller.action)
	assert.Equal(t, "3", caller.params["sheetId"])
	assert.Equal(t, "Parts", caller.params["tableName"])

	require.Len(t, urls, 4)
	assert.Equal(t, "https://img/1.png", urls[0].URL)
	assert.Equal(t, "https://img/2.png", urls[1].URL)
	assert.Equal(t, "not an image", urls[2].Error)
	assert.Equal(t, "r4", urls[3].RecordID)
	assert.NotEmpty(t, urls[3].Error)
}

func TestLookup_ObjectPayloads(t *testing.T) {
	for _, reply := range []string{
		`{"urls":[{"recordId":"r1","field":"Photo","url":"u"}]}`,
		`{"images":[{"recordId":"r1","field":"Photo","url":"u"}]}`,
	} {
		urls, err := NewLookup(&stubCaller{reply: reply}, "imgs", quietLogger()).URLs(context.Background(), "", "Parts", []Cell{{"r1", "Photo"}})
		require.NoError(t, err)
		assert.Equal(t, "u", urls[0].URL)
	}
}

func TestLookup_Errors(t *testing.T) {
	lookup := NewLookup(&stubCaller{err: errors.New("down")}, "", quietLogger())

	_, err := lookup.URLs(context.Background(), "", "Parts", nil)
	assert.Error(t, err)

	_, err = lookup.URLs(context.Background(), "", "Parts", []Cell{{"r1", "Photo"}})
	assert.EqualError(t, err, "down")

	_, err = NewLookup(&stubCaller{reply: `"x"`}, "", quietLogger()).URLs(context.Background(), "", "Parts", []Cell{{"r1", "Photo"}})
	assert.Error(t, err)
}

func TestCellsFromRecords(t *testing.T) {
	records := []sheets.Record{
		sheets.NewRecord("r1",
			sheets.Field{Name: "PartNo", Value: sheets.String("A1")},
			sheets.Field{Name: "Photo", Value: sheets.Image(sheets.ImageRef{ID: "ID_1"})},
			sheets.Field{Name: "Drawing", Value: sheets.Image(sheets.ImageRef{ID: "ID_2", URL: "https://known"})},
		),
		sheets.NewRecord("r2",
			sheets.Field{Name: "Photo", Value: sheets.Image(sheets.ImageRef{ID: "ID_3"})},
			sheets.Field{Name: "Sketch", Value: sheets.Image(sheets.ImageRef{ID: "ID_4"})},
		),
	}

	assert.Equal(t, []Cell{{"r1", "Photo"}, {"r2", "Photo"}, {"r2", "Sketch"}}, CellsFromRecords(records))
	assert.Equal(t, []Cell{{"r1", "Photo"}, {"r2", "Photo"}}, CellsFromRecords(records, "Photo"))
	assert.Nil(t, CellsFromRecords(nil))
}
