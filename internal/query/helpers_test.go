package query

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func makeRecords(prefix string, n int) []sheets.Record {
	out := make([]sheets.Record, n)
	for i := range n {
		out[i] = sheets.NewRecord(fmt.Sprintf("%s-%d", prefix, i),
			sheets.Field{Name: "PartNo", Value: sheets.String(fmt.Sprintf("%s%03d", prefix, i))},
			sheets.Field{Name: "Level", Value: sheets.String("F")},
		)
	}
	return out
}

// sliceFetcher serves records in pages keyed by a numeric string offset.
// Pages shorter than pageSize still carry a cursor unless they reach the end.
type sliceFetcher struct {
	mu      sync.Mutex
	records map[string][]sheets.Record
	delay   map[string]time.Duration
	fail    map[string]error
	failAt  int
	calls   []fetchCall
	sameCur bool
}

type fetchCall struct {
	Target   Target
	Filter   string
	Cursor   string
	PageSize int
}

func newSliceFetcher() *sliceFetcher {
	return &sliceFetcher{
		records: map[string][]sheets.Record{},
		delay:   map[string]time.Duration{},
		fail:    map[string]error{},
	}
}

// key is the first clause value of the filter, which tests use to pick a
// data set.
func filterKey(f *CompiledFilter) string {
	clauses := f.Clauses()
	if len(clauses) == 0 || len(clauses[0].Values) == 0 {
		return ""
	}
	return clauses[0].Values[0]
}

func (f *sliceFetcher) FetchPage(ctx context.Context, target Target, filter *CompiledFilter, cursor Cursor, pageSize int) (Page, error) {
	key := filterKey(filter)

	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Target: target, Filter: filter.Describe(), Cursor: cursor.String(), PageSize: pageSize})
	callNo := len(f.calls)
	delay := f.delay[key]
	failErr := f.fail[key]
	data := f.records[key]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if failErr != nil {
		return Page{}, failErr
	}
	if f.failAt > 0 && callNo >= f.failAt {
		return Page{}, fmt.Errorf("remote unavailable")
	}

	offset := 0
	if cursor.Valid() {
		n, err := strconv.Atoi(cursor.String())
		if err != nil {
			return Page{}, err
		}
		offset = n
	}
	if offset >= len(data) {
		return Page{}, nil
	}
	end := min(offset+pageSize, len(data))

	page := Page{Records: append([]sheets.Record(nil), data[offset:end]...)}
	if end < len(data) {
		page.Next = NewCursor([]byte(strconv.Itoa(end)))
	}
	if f.sameCur && cursor.Valid() {
		page.Next = cursor
	}
	return page, nil
}

func (f *sliceFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func mustCompile(criteria ...SearchCriterion) *CompiledFilter {
	filter, err := Compile(nil, criteria)
	if err != nil {
		panic(err)
	}
	return filter
}
