package query

import (
	"context"
	"errors"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxRecords = 100
	DefaultPageSize   = 100
)

var errRepeatedCursor = errors.New("remote returned the cursor it was given; refusing to loop")

// Executor drives PageFetcher across pages until the data or the record cap
// runs out. Pages of one scan are fetched strictly in sequence.
type Executor struct {
	fetcher     PageFetcher
	pageSize    int
	pageTimeout time.Duration
	logger      *logrus.Logger
}

type ExecutorOption func(*Executor)

func WithPageSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithPageTimeout bounds each page fetch. A timed out page aborts the scan.
func WithPageTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.pageTimeout = d }
}

func NewExecutor(fetcher PageFetcher, logger *logrus.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{fetcher: fetcher, pageSize: DefaultPageSize, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute scans target with filter and returns at most maxRecords records
// (DefaultMaxRecords when maxRecords <= 0). Any page failure aborts the scan
// with a *ScanError and no partial records.
func (e *Executor) Execute(ctx context.Context, target Target, filter *CompiledFilter, maxRecords int) (outcome *SearchOutcome, err error) {
	if filter == nil {
		return nil, errors.New("execute: nil filter")
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanNameQueryScan,
		attribute.String(telemetry.AttrTableName, target.TableName),
		attribute.String(telemetry.AttrSheetID, target.SheetID),
		attribute.String(telemetry.AttrFilter, filter.Describe()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	logger := e.logger.WithFields(logrus.Fields{
		"table":    target.TableName,
		"sheet_id": target.SheetID,
	})

	var (
		acc     []sheets.Record
		cursor  Cursor
		pages   int
		hasMore bool
	)
	for {
		pages++
		page, fetchErr := e.fetch(ctx, target, filter, cursor)
		if fetchErr == nil && page.Next.Valid() && page.Next.Equal(cursor) {
			fetchErr = errRepeatedCursor
		}
		if fetchErr != nil {
			logger.WithError(fetchErr).WithField("page", pages).Warn("Scan aborted")
			return nil, &ScanError{Target: target, Filter: filter, Page: pages, Err: fetchErr}
		}

		if len(page.Records) == 0 {
			hasMore = false
			break
		}
		acc = append(acc, page.Records...)
		cursor = page.Next
		logger.WithFields(logrus.Fields{"page": pages, "records": len(page.Records)}).Debug("Fetched page")

		if len(acc) >= maxRecords {
			hasMore = cursor.Valid()
			break
		}
		if !cursor.Valid() {
			break
		}
	}

	outcome = buildOutcome(acc, maxRecords, hasMore)
	outcome.Pages = pages

	span.SetAttributes(
		attribute.Int(telemetry.AttrScanPages, pages),
		attribute.Int(telemetry.AttrScanRecords, outcome.TotalCount),
		attribute.Bool(telemetry.AttrScanTruncated, outcome.Truncated),
	)
	telemetry.RecordScan(ctx, target.TableName, pages, outcome.Truncated)
	logger.WithFields(logrus.Fields{
		"pages":     pages,
		"records":   outcome.TotalCount,
		"truncated": outcome.Truncated,
	}).Debug("Scan completed")
	return outcome, nil
}

func (e *Executor) fetch(ctx context.Context, target Target, filter *CompiledFilter, cursor Cursor) (Page, error) {
	if e.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.pageTimeout)
		defer cancel()
	}
	return e.fetcher.FetchPage(ctx, target, filter, cursor, e.pageSize)
}

// buildOutcome applies the cap bookkeeping. hasMore means the remote still
// offered a cursor when accumulation stopped.
func buildOutcome(acc []sheets.Record, maxRecords int, hasMore bool) *SearchOutcome {
	out := &SearchOutcome{MaxRecords: maxRecords}

	switch {
	case len(acc) > maxRecords:
		out.OriginalTotalCount = TotalCount{N: len(acc), AtLeast: hasMore}
		acc = acc[:maxRecords]
		out.Truncated = true
	case hasMore:
		out.OriginalTotalCount = TotalCount{N: len(acc), AtLeast: true}
		out.Truncated = true
	default:
		out.OriginalTotalCount = TotalCount{N: len(acc)}
	}

	if acc == nil {
		acc = []sheets.Record{}
	}
	out.Records = acc
	out.TotalCount = len(acc)
	return out
}
