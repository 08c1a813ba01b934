package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/images"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TableResolver supplies table metadata. catalog.Catalog implements it.
type TableResolver interface {
	Tables(ctx context.Context) ([]sheets.Table, error)
	Resolve(ctx context.Context, name string) (sheets.Table, error)
}

type ServiceConfig struct {
	DefaultMaxRecords int
	MaxRecordsLimit   int
}

// Service is the query surface of one workbook.
type Service struct {
	tables TableResolver
	exec   *Executor
	batch  *Coordinator
	images *images.Lookup
	cfg    ServiceConfig
	logger *logrus.Logger
}

func NewService(tables TableResolver, exec *Executor, batch *Coordinator, lookup *images.Lookup, cfg ServiceConfig, logger *logrus.Logger) *Service {
	if cfg.DefaultMaxRecords <= 0 {
		cfg.DefaultMaxRecords = DefaultMaxRecords
	}
	return &Service{tables: tables, exec: exec, batch: batch, images: lookup, cfg: cfg, logger: logger}
}

type SearchRequest struct {
	TableName     string            `json:"tableName"`
	Criteria      []SearchCriterion `json:"criteria"`
	ReturnColumns []string          `json:"returnColumns,omitempty"`
	MaxRecords    int               `json:"maxRecords,omitempty"`
}

type SearchResponse struct {
	TableName           string `json:"tableName"`
	CriteriaDescription string `json:"criteriaDescription"`
	*SearchOutcome
}

type BatchRequest struct {
	TableName     string      `json:"tableName"`
	BatchCriteria []BatchItem `json:"batchCriteria"`
	ReturnColumns []string    `json:"returnColumns,omitempty"`
	MaxRecords    int         `json:"maxRecords,omitempty"`
}

type MultiSearchEntry struct {
	TableName string          `json:"tableName"`
	Success   bool            `json:"success"`
	Result    *SearchResponse `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type MultiSearchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type MultiSearchResult struct {
	Searches []MultiSearchEntry `json:"searches"`
	Summary  MultiSearchSummary `json:"summary"`
}

type ImageURLsRequest struct {
	TableName string        `json:"tableName"`
	Cells     []images.Cell `json:"cells"`
}

// ListTables returns the workbook's tables with their columns.
func (s *Service) ListTables(ctx context.Context) ([]sheets.Table, error) {
	return s.tables.Tables(ctx)
}

// Search runs a single AND query against one table.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	table, err := s.tables.Resolve(ctx, req.TableName)
	if err != nil {
		return nil, err
	}
	columns := table.ColumnSet()

	filter, err := Compile(columns, req.Criteria)
	if err != nil {
		return nil, err
	}
	project, err := resolveColumns(columns, req.ReturnColumns)
	if err != nil {
		return nil, err
	}

	outcome, err := s.exec.Execute(ctx, targetFor(table), filter, s.capFor(req.MaxRecords))
	if err != nil {
		return nil, err
	}
	outcome.project(project)

	return &SearchResponse{
		TableName:           table.Name,
		CriteriaDescription: filter.Describe(),
		SearchOutcome:       outcome,
	}, nil
}

// Batch runs every item of req against one table. Only table resolution and
// request-level validation fail the call; item failures stay in their outcome.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.BatchCriteria) == 0 {
		return nil, &sheets.ValidationError{Field: "batchCriteria", Message: "at least one batch item is required"}
	}

	table, err := s.tables.Resolve(ctx, req.TableName)
	if err != nil {
		return nil, err
	}
	columns := table.ColumnSet()
	project, err := resolveColumns(columns, req.ReturnColumns)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(req.BatchCriteria))
	for i, item := range req.BatchCriteria {
		if strings.TrimSpace(item.ID) == "" {
			item.ID = uuid.NewString()
		}
		items[i] = item
	}

	res := s.batch.ExecuteBatch(ctx, targetFor(table), columns, items, s.capFor(req.MaxRecords))
	res.TableName = table.Name
	if len(project) > 0 {
		for i := range res.Results {
			for j, rec := range res.Results[i].Records {
				res.Results[i].Records[j] = rec.Project(project)
			}
		}
	}
	return res, nil
}

// MultiSearch runs independent searches, possibly against different tables,
// on the batch worker pool. Each failure is confined to its own entry.
func (s *Service) MultiSearch(ctx context.Context, reqs []SearchRequest) (*MultiSearchResult, error) {
	if len(reqs) == 0 {
		return nil, &sheets.ValidationError{Field: "searches", Message: "at least one search is required"}
	}

	entries := make([]MultiSearchEntry, len(reqs))
	for i, r := range reqs {
		entries[i] = MultiSearchEntry{TableName: r.TableName, Error: "search did not complete"}
	}

	s.batch.fanOut(len(reqs), func(i int) {
		resp, err := s.Search(ctx, reqs[i])
		if err != nil {
			entries[i] = MultiSearchEntry{TableName: reqs[i].TableName, Error: err.Error()}
			return
		}
		entries[i] = MultiSearchEntry{TableName: resp.TableName, Success: true, Result: resp}
	})

	res := &MultiSearchResult{Searches: entries, Summary: MultiSearchSummary{Total: len(entries)}}
	for _, e := range entries {
		if e.Success {
			res.Summary.Successful++
		} else {
			res.Summary.Failed++
		}
	}
	return res, nil
}

// ImageURLs resolves image cells of one table to URLs.
func (s *Service) ImageURLs(ctx context.Context, req ImageURLsRequest) ([]images.ImageURL, error) {
	if s.images == nil {
		return nil, errors.New("image lookup is not configured")
	}
	if len(req.Cells) == 0 {
		return nil, &sheets.ValidationError{Field: "cells", Message: "at least one cell is required"}
	}

	table, err := s.tables.Resolve(ctx, req.TableName)
	if err != nil {
		return nil, err
	}
	columns := table.ColumnSet()

	cells := make([]images.Cell, len(req.Cells))
	for i, c := range req.Cells {
		if c.RecordID == "" {
			return nil, &sheets.ValidationError{Field: "cells", Message: fmt.Sprintf("cell %d: recordId is required", i+1)}
		}
		field, ok := columns.Lookup(c.Field)
		if !ok || field == "" {
			return nil, &sheets.ValidationError{
				Field:       "columnName",
				Value:       c.Field,
				Message:     fmt.Sprintf("cell %d: unknown column %q", i+1, c.Field),
				Available:   columns.Names(),
				Suggestions: columns.Suggest(c.Field),
			}
		}
		cells[i] = images.Cell{RecordID: c.RecordID, Field: field}
	}
	return s.images.URLs(ctx, table.ID, table.Name, cells)
}

// capFor maps a requested record cap onto the configured default and limit.
func (s *Service) capFor(requested int) int {
	n := requested
	if n <= 0 {
		n = s.cfg.DefaultMaxRecords
	}
	if s.cfg.MaxRecordsLimit > 0 && n > s.cfg.MaxRecordsLimit {
		n = s.cfg.MaxRecordsLimit
	}
	return n
}

func targetFor(t sheets.Table) Target {
	return Target{SheetID: t.ID, TableName: t.Name}
}

// resolveColumns maps requested return columns to their canonical spelling.
func resolveColumns(columns *sheets.ColumnSet, requested []string) ([]string, error) {
	var out []string
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		canonical, ok := columns.Lookup(name)
		if !ok {
			return nil, &sheets.ValidationError{
				Field:       "returnColumns",
				Value:       name,
				Message:     fmt.Sprintf("unknown return column %q", name),
				Available:   columns.Names(),
				Suggestions: columns.Suggest(name),
			}
		}
		out = append(out, canonical)
	}
	return out, nil
}
