package query

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/telemetry"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// BatchItem is one independent sub-query of a batch.
type BatchItem struct {
	ID       string            `json:"id"`
	Criteria []SearchCriterion `json:"criteria"`
}

// BatchOutcome reports one BatchItem. Records is only emitted for successful
// items.
type BatchOutcome struct {
	ID                  string
	Success             bool
	Records             []sheets.Record
	Error               string
	CriteriaDescription string
	Truncated           bool
	OriginalTotalCount  TotalCount

	Err error
}

func (o BatchOutcome) MarshalJSON() ([]byte, error) {
	type success struct {
		ID                  string          `json:"id"`
		Success             bool            `json:"success"`
		Records             []sheets.Record `json:"records"`
		CriteriaDescription string          `json:"criteriaDescription,omitempty"`
		Truncated           bool            `json:"truncated,omitempty"`
		OriginalTotalCount  *TotalCount     `json:"originalTotalCount,omitempty"`
	}
	type failure struct {
		ID                  string `json:"id"`
		Success             bool   `json:"success"`
		Error               string `json:"error"`
		CriteriaDescription string `json:"criteriaDescription,omitempty"`
	}

	if !o.Success {
		return json.Marshal(failure{ID: o.ID, Error: o.Error, CriteriaDescription: o.CriteriaDescription})
	}
	out := success{
		ID:                  o.ID,
		Success:             true,
		Records:             o.Records,
		CriteriaDescription: o.CriteriaDescription,
		Truncated:           o.Truncated,
	}
	if out.Records == nil {
		out.Records = []sheets.Record{}
	}
	if o.Truncated {
		total := o.OriginalTotalCount
		out.OriginalTotalCount = &total
	}
	return json.Marshal(out)
}

// BatchResult aggregates a batch. Results follow input order.
type BatchResult struct {
	TableName         string         `json:"tableName,omitempty"`
	TotalQueries      int            `json:"totalQueries"`
	TotalMatches      int            `json:"totalMatches"`
	SuccessfulQueries int            `json:"successfulQueries"`
	FailedQueries     int            `json:"failedQueries"`
	Results           []BatchOutcome `json:"results"`
}

// Coordinator runs batch items through an Executor on a bounded worker pool.
type Coordinator struct {
	exec   *Executor
	pool   *ants.Pool
	logger *logrus.Logger
}

// NewCoordinator creates a coordinator running up to concurrency items at
// once. A concurrency of 1 or less runs items sequentially.
func NewCoordinator(exec *Executor, concurrency int, logger *logrus.Logger) (*Coordinator, error) {
	c := &Coordinator{exec: exec, logger: logger}
	if concurrency <= 1 {
		return c, nil
	}

	pool, err := ants.NewPool(concurrency, ants.WithPanicHandler(func(v any) {
		logger.WithField("panic", v).Error("Batch item panicked")
	}))
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return c, nil
}

// Close releases the worker pool.
func (c *Coordinator) Close() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// ExecuteBatch compiles and runs every item independently. A failing item is
// recorded in its own outcome and never affects its siblings.
func (c *Coordinator) ExecuteBatch(ctx context.Context, target Target, columns *sheets.ColumnSet, items []BatchItem, maxRecords int) *BatchResult {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanNameQueryBatch,
		attribute.String(telemetry.AttrTableName, target.TableName),
		attribute.Int(telemetry.AttrBatchItems, len(items)),
	)

	results := make([]BatchOutcome, len(items))
	for i, item := range items {
		results[i] = BatchOutcome{ID: item.ID, Error: "batch item did not complete"}
	}

	c.fanOut(len(items), func(i int) {
		results[i] = c.runItem(ctx, target, columns, items[i], maxRecords)
	})

	res := &BatchResult{
		TableName:    target.TableName,
		TotalQueries: len(items),
		Results:      results,
	}
	for _, r := range results {
		if r.Success {
			res.SuccessfulQueries++
			res.TotalMatches += len(r.Records)
		} else {
			res.FailedQueries++
		}
	}

	span.SetAttributes(attribute.Int(telemetry.AttrBatchSucceeded, res.SuccessfulQueries))
	telemetry.EndSpan(span, nil)
	c.logger.WithFields(logrus.Fields{
		"table":      target.TableName,
		"queries":    res.TotalQueries,
		"successful": res.SuccessfulQueries,
		"matches":    res.TotalMatches,
	}).Info("Batch search completed")
	return res
}

func (c *Coordinator) runItem(ctx context.Context, target Target, columns *sheets.ColumnSet, item BatchItem, maxRecords int) BatchOutcome {
	logger := c.logger.WithFields(logrus.Fields{"table": target.TableName, "item_id": item.ID})

	filter, err := Compile(columns, item.Criteria, DropBlankColumns())
	if err != nil {
		logger.WithError(err).Debug("Batch item rejected")
		return BatchOutcome{ID: item.ID, Error: err.Error(), Err: err}
	}

	outcome, err := c.exec.Execute(ctx, target, filter, maxRecords)
	if err != nil {
		logger.WithError(err).Debug("Batch item failed")
		return BatchOutcome{ID: item.ID, Error: err.Error(), Err: err, CriteriaDescription: filter.Describe()}
	}

	return BatchOutcome{
		ID:                  item.ID,
		Success:             true,
		Records:             outcome.Records,
		CriteriaDescription: filter.Describe(),
		Truncated:           outcome.Truncated,
		OriginalTotalCount:  outcome.OriginalTotalCount,
	}
}

// fanOut calls task for 0..n-1 and waits for all of them. Each task writes
// only its own index, so completion order never affects the results.
func (c *Coordinator) fanOut(n int, task func(i int)) {
	if c.pool == nil {
		for i := range n {
			task(i)
		}
		return
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		run := func() {
			defer wg.Done()
			task(i)
		}
		if err := c.pool.Submit(run); err != nil {
			c.logger.WithError(err).Debug("Worker pool unavailable, running task inline")
			run()
		}
	}
	wg.Wait()
}
