package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, fetcher PageFetcher, concurrency int) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(NewExecutor(fetcher, quietLogger()), concurrency, quietLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestExecuteBatch_IsolatesFailures(t *testing.T) {
	fetcher := newSliceFetcher()
	fetcher.records["A"] = makeRecords("A", 3)
	fetcher.records["C"] = makeRecords("C", 2)
	fetcher.fail["B"] = errors.New("script timed out")

	items := []BatchItem{
		{ID: "row-1", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "A")}},
		{ID: "row-2", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "B")}},
		{ID: "row-3", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "C")}},
		{ID: "row-4", Criteria: []SearchCriterion{Criterion("Nope", Equals, "D")}},
	}

	for _, concurrency := range []int{1, 4} {
		res := newCoordinator(t, fetcher, concurrency).ExecuteBatch(context.Background(), partsTarget, partsColumns(), items, 100)

		assert.Equal(t, 4, res.TotalQueries)
		assert.Equal(t, 2, res.SuccessfulQueries)
		assert.Equal(t, 2, res.FailedQueries)
		assert.Equal(t, 5, res.TotalMatches)

		require.Len(t, res.Results, 4)
		assert.True(t, res.Results[0].Success)
		assert.Len(t, res.Results[0].Records, 3)
		assert.False(t, res.Results[1].Success)
		assert.Contains(t, res.Results[1].Error, "script timed out")
		assert.True(t, res.Results[2].Success)
		assert.False(t, res.Results[3].Success)
		assert.Contains(t, res.Results[3].Error, "unknown column")
		assert.True(t, sheets.IsValidation(res.Results[3].Err))
	}
}

func TestExecuteBatch_OrderFollowsInput(t *testing.T) {
	fetcher := newSliceFetcher()
	keys := []string{"slow", "medium", "fast"}
	delays := []time.Duration{60 * time.Millisecond, 30 * time.Millisecond, 0}
	items := make([]BatchItem, len(keys))
	for i, k := range keys {
		fetcher.records[k] = makeRecords(k, 1)
		fetcher.delay[k] = delays[i]
		items[i] = BatchItem{ID: k, Criteria: []SearchCriterion{Criterion("PartNo", Equals, k)}}
	}

	res := newCoordinator(t, fetcher, 3).ExecuteBatch(context.Background(), partsTarget, nil, items, 10)

	require.Len(t, res.Results, 3)
	for i, k := range keys {
		assert.Equal(t, k, res.Results[i].ID)
		require.True(t, res.Results[i].Success)
		assert.Equal(t, k+"-0", res.Results[i].Records[0].ID)
	}
}

func TestExecuteBatch_DropsBlankColumns(t *testing.T) {
	fetcher := newSliceFetcher()
	fetcher.records["A"] = makeRecords("A", 1)

	items := []BatchItem{
		{ID: "1", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "A"), Criterion("", Equals, "ignored")}},
		{ID: "2", Criteria: []SearchCriterion{Criterion("", Equals, "only blank")}},
	}
	res := newCoordinator(t, fetcher, 1).ExecuteBatch(context.Background(), partsTarget, partsColumns(), items, 10)

	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "PartNo Equals 'A'", res.Results[0].CriteriaDescription)
	assert.False(t, res.Results[1].Success)
}

func TestExecuteBatch_CancelledContextFailsItems(t *testing.T) {
	fetcher := newSliceFetcher()
	fetcher.records["A"] = makeRecords("A", 1)
	fetcher.delay["A"] = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []BatchItem{{ID: "1", Criteria: []SearchCriterion{Criterion("PartNo", Equals, "A")}}}
	res := newCoordinator(t, fetcher, 2).ExecuteBatch(ctx, partsTarget, nil, items, 10)

	assert.Equal(t, 1, res.FailedQueries)
	assert.ErrorIs(t, res.Results[0].Err, context.Canceled)
}

func TestBatchOutcome_JSON(t *testing.T) {
	ok := BatchOutcome{
		ID:                 "1",
		Success:            true,
		Records:            nil,
		Truncated:          true,
		OriginalTotalCount: TotalCount{N: 100, AtLeast: true},
	}
	raw, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","success":true,"records":[],"truncated":true,"originalTotalCount":"100+"}`, string(raw))

	failed := BatchOutcome{ID: "2", Error: "boom", Records: makeRecords("x", 1)}
	raw, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2","success":false,"error":"boom"}`, string(raw))
}
