package query

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/images"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTables []sheets.Table

func (s staticTables) Tables(context.Context) ([]sheets.Table, error) { return s, nil }

func (s staticTables) Resolve(_ context.Context, name string) (sheets.Table, error) {
	for _, t := range s {
		if t.Name == name {
			return t, nil
		}
	}
	return sheets.Table{}, &sheets.ValidationError{Field: "tableName", Value: name, Message: fmt.Sprintf("unknown table %q", name)}
}

var workbook = staticTables{
	{ID: "3", Name: "Parts", Columns: []sheets.Column{{Name: "PartNo"}, {Name: "Level"}, {Name: "Photo", Type: "image"}}},
	{ID: "4", Name: "Suppliers", Columns: []sheets.Column{{Name: "Name"}}},
}

func newService(t *testing.T, fetcher PageFetcher, caller *recordingCaller, cfg ServiceConfig) *Service {
	t.Helper()
	exec := NewExecutor(fetcher, quietLogger())
	batch, err := NewCoordinator(exec, 2, quietLogger())
	require.NoError(t, err)
	t.Cleanup(batch.Close)

	var lookup *images.Lookup
	if caller != nil {
		lookup = images.NewLookup(caller, "", quietLogger())
	}
	return NewService(workbook, exec, batch, lookup, cfg, quietLogger())
}

func TestService_Search(t *testing.T) {
	fetcher := newSliceFetcher()
	fetcher.records["A100"] = makeRecords("A100", 3)
	svc := newService(t, fetcher, nil, ServiceConfig{})

	resp, err := svc.Search(context.Background(), SearchRequest{
		TableName:     "Parts",
		Criteria:      []SearchCriterion{Criterion("partno", Contains, "A100")},
		ReturnColumns: []string{"level"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Parts", resp.TableName)
	assert.Equal(t, "PartNo Contains 'A100'", resp.CriteriaDescription)
	assert.Equal(t, 3, resp.TotalCount)
	assert.Equal(t, []string{"Level"}, resp.Records[0].Names())
	assert.Equal(t, Target{SheetID: "3", TableName: "Parts"}, fetcher.calls[0].Target)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tableName":"Parts"`)
	assert.Contains(t, string(raw), `"criteriaDescription":"PartNo Contains 'A100'"`)
	assert.Contains(t, string(raw), `"maxRecords":100`)
}

func TestService_SearchValidation(t *testing.T) {
	fetcher := newSliceFetcher()
	svc := newService(t, fetcher, nil, ServiceConfig{})

	_, err := svc.Search(context.Background(), SearchRequest{TableName: "Nope", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "x")}})
	assert.True(t, sheets.IsValidation(err))

	_, err = svc.Search(context.Background(), SearchRequest{TableName: "Parts"})
	assert.True(t, sheets.IsValidation(err))

	_, err = svc.Search(context.Background(), SearchRequest{
		TableName:     "Parts",
		Criteria:      []SearchCriterion{Criterion("PartNo", Equals, "x")},
		ReturnColumns: []string{"Colour"},
	})
	var verr *sheets.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "returnColumns", verr.Field)

	assert.Empty(t, fetcher.calls, "validation failures must not reach the sheet")
}

func TestService_CapClamping(t *testing.T) {
	svc := newService(t, newSliceFetcher(), nil, ServiceConfig{DefaultMaxRecords: 50, MaxRecordsLimit: 500})

	assert.Equal(t, 50, svc.capFor(0))
	assert.Equal(t, 50, svc.capFor(-3))
	assert.Equal(t, 200, svc.capFor(200))
	assert.Equal(t, 500, svc.capFor(10000))
}

func TestService_Batch(t *testing.T) {
	fetcher := newSliceFetcher()
	fetcher.records["A"] = makeRecords("A", 2)
	svc := newService(t, fetcher, nil, ServiceConfig{})

	res, err := svc.Batch(context.Background(), BatchRequest{
		TableName: "Parts",
		BatchCriteria: []BatchItem{
			{ID: "first", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "A")}},
			{Criteria: []SearchCriterion{Criterion("PartNo", Equals, "missing")}},
		},
		ReturnColumns: []string{"PartNo"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Parts", res.TableName)
	assert.Equal(t, 2, res.TotalQueries)
	assert.Equal(t, 2, res.TotalMatches)
	assert.Equal(t, "first", res.Results[0].ID)
	assert.NotEmpty(t, res.Results[1].ID)
	assert.True(t, res.Results[1].Success)
	assert.Empty(t, res.Results[1].Records)
	assert.Equal(t, []string{"PartNo"}, res.Results[0].Records[0].Names())

	_, err = svc.Batch(context.Background(), BatchRequest{TableName: "Parts"})
	assert.True(t, sheets.IsValidation(err))
}

func TestService_MultiSearch(t *testing.T) {
	fetcher := newSliceFetcher()
	fetcher.records["A"] = makeRecords("A", 2)
	fetcher.records["Acme"] = makeRecords("Acme", 1)
	svc := newService(t, fetcher, nil, ServiceConfig{})

	res, err := svc.MultiSearch(context.Background(), []SearchRequest{
		{TableName: "Parts", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "A")}},
		{TableName: "Ghost", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "A")}},
		{TableName: "Suppliers", Criteria: []SearchCriterion{Criterion("Name", Contains, "Acme")}},
	})
	require.NoError(t, err)

	assert.Equal(t, MultiSearchSummary{Total: 3, Successful: 2, Failed: 1}, res.Summary)
	assert.True(t, res.Searches[0].Success)
	assert.Equal(t, 2, res.Searches[0].Result.TotalCount)
	assert.False(t, res.Searches[1].Success)
	assert.Contains(t, res.Searches[1].Error, "Ghost")
	assert.Equal(t, "Suppliers", res.Searches[2].TableName)

	_, err = svc.MultiSearch(context.Background(), nil)
	assert.True(t, sheets.IsValidation(err))
}

func TestService_ImageURLs(t *testing.T) {
	caller := &recordingCaller{reply: json.RawMessage(`{"urls":[{"recordId":"r1","field":"Photo","url":"https://img/1.png"}]}`)}
	svc := newService(t, newSliceFetcher(), caller, ServiceConfig{})

	urls, err := svc.ImageURLs(context.Background(), ImageURLsRequest{
		TableName: "Parts",
		Cells:     []images.Cell{{RecordID: "r1", Field: "photo"}, {RecordID: "r2", Field: "Photo"}},
	})
	require.NoError(t, err)

	require.Len(t, urls, 2)
	assert.Equal(t, "https://img/1.png", urls[0].URL)
	assert.NotEmpty(t, urls[1].Error)
	assert.Equal(t, "3", caller.params["sheetId"])

	_, err = svc.ImageURLs(context.Background(), ImageURLsRequest{TableName: "Parts", Cells: []images.Cell{{RecordID: "r1", Field: "Colour"}}})
	assert.True(t, sheets.IsValidation(err))

	noImages := newService(t, newSliceFetcher(), nil, ServiceConfig{})
	_, err = noImages.ImageURLs(context.Background(), ImageURLsRequest{TableName: "Parts", Cells: []images.Cell{{RecordID: "r1", Field: "Photo"}}})
	assert.Error(t, err)
}
