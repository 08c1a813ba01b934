// Package sheetquery exposes the spreadsheet query core as the sheet_query
// MCP tool.
package sheetquery

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/batchinput"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/images"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/query"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

const ToolName = "sheet_query"

const (
	FunctionListTables   = "list_tables"
	FunctionSearch       = "search"
	FunctionBatchSearch  = "batch_search"
	FunctionMultiSearch  = "multi_search"
	FunctionGetImageURLs = "get_image_urls"
)

// SheetQueryTool answers queries against the configured workbooks.
type SheetQueryTool struct {
	workbooks map[string]*Workbook
	names     []string
}

func New(workbooks ...*Workbook) *SheetQueryTool {
	t := &SheetQueryTool{workbooks: make(map[string]*Workbook, len(workbooks))}
	for _, wb := range workbooks {
		t.workbooks[wb.Name] = wb
		t.names = append(t.names, wb.Name)
	}
	sort.Strings(t.names)
	return t
}

func (t *SheetQueryTool) Definition() mcp.Tool {
	workbookOpts := []mcp.PropertyOption{
		mcp.Description("Workbook to query. Optional when only one workbook is configured."),
	}
	if len(t.names) > 0 {
		workbookOpts = append(workbookOpts, mcp.Enum(t.names...))
	}

	return mcp.NewTool(
		ToolName,
		mcp.WithDescription(`Search rows in WPS/Kdocs online spreadsheets through their AirScript webhook. All criteria of one query are combined with AND.

Functions:
- list_tables: tables and their columns (call first to learn column names)
- search: one query against one table, capped at max_records
- batch_search: many independent queries against one table, from batch_criteria, pasted batch_text or a CSV/XLSX batch_file; one result per query in input order
- multi_search: independent searches against several tables
- get_image_urls: download URLs for image cells found in search results

Operators: Equals, NotEqu, Greater, GreaterEqu, Less, LessEqu, BeginWith, EndWith, Contains, NotContains, Intersected, Empty, NotEmpty. Empty/NotEmpty take no value.

Results report truncated=true and originalTotalCount="N+" when more rows matched than max_records allowed.

Use get_tool_help tool with tool_name="sheet_query" for examples and troubleshooting.`),
		mcp.WithString("function",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum(FunctionListTables, FunctionSearch, FunctionBatchSearch, FunctionMultiSearch, FunctionGetImageURLs),
		),
		mcp.WithString("workbook", workbookOpts...),
		mcp.WithString("table_name",
			mcp.Description("Table (sheet) name. Required for search, batch_search and get_image_urls."),
		),
		mcp.WithArray("criteria",
			mcp.Description(`Search criteria for search. Example: [{"columnName":"PartNo","op":"Contains","searchValue":"A100"}]`),
			mcp.Items(criterionSchema()),
		),
		mcp.WithArray("return_columns",
			mcp.Description("Only return these columns (default: all columns)"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("max_records",
			mcp.Description("Maximum records per query (default from workbook configuration, usually 100)"),
		),
		mcp.WithArray("batch_criteria",
			mcp.Description(`Queries for batch_search. Example: [{"id":"row-1","criteria":[{"columnName":"PartNo","op":"Equals","searchValue":"A100"}]}]`),
		),
		mcp.WithString("batch_text",
			mcp.Description("Tab or comma separated table for batch_search. The header row names the columns, optionally as Column:Operator; an 'id' column names each query."),
		),
		mcp.WithString("batch_file",
			mcp.Description("Path to a .csv or .xlsx file laid out like batch_text"),
		),
		mcp.WithString("batch_sheet",
			mcp.Description("Worksheet of batch_file to read (default: first sheet)"),
		),
		mcp.WithString("id_column",
			mcp.Description("Header naming the query id column in batch_text/batch_file (default: id)"),
		),
		mcp.WithString("default_operator",
			mcp.Description("Operator for batch_text/batch_file columns without an explicit :Operator (default: Equals)"),
			mcp.Enum(query.OperatorNames()...),
		),
		mcp.WithArray("searches",
			mcp.Description(`Searches for multi_search. Example: [{"tableName":"Parts","criteria":[...]},{"tableName":"Stock","criteria":[...]}]`),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("list_tables: drop cached table metadata and ask the workbook again"),
		),
		mcp.WithBoolean("resolve_images",
			mcp.Description("search: also fetch download URLs for image cells in the returned records"),
		),
		mcp.WithArray("cells",
			mcp.Description(`Image cells for get_image_urls. Example: [{"recordId":"r1","field":"Photo"}]`),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func criterionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"columnName":  map[string]any{"type": "string"},
			"op":          map[string]any{"type": "string", "enum": query.OperatorNames()},
			"searchValue": map[string]any{"type": []string{"string", "number", "boolean", "null"}},
		},
		"required": []string{"columnName", "op"},
	}
}

func (t *SheetQueryTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	function, ok := args["function"].(string)
	if !ok || function == "" {
		return nil, &sheets.ValidationError{Field: "function", Message: "function parameter is required"}
	}

	wb, err := t.workbook(args)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"function": function,
		"workbook": wb.Name,
	}).Debug("Executing sheet query")

	switch function {
	case FunctionListTables:
		if refresh, _ := args["refresh"].(bool); refresh {
			wb.Catalog.Invalidate()
		}
		return t.listTables(ctx, wb)
	case FunctionSearch:
		return t.search(ctx, wb, args)
	case FunctionBatchSearch:
		return t.batchSearch(ctx, wb, args)
	case FunctionMultiSearch:
		return t.multiSearch(ctx, wb, args)
	case FunctionGetImageURLs:
		return t.imageURLs(ctx, wb, args)
	default:
		return nil, &sheets.ValidationError{
			Field:   "function",
			Value:   function,
			Message: fmt.Sprintf("unknown function %q", function),
			Valid:   []string{FunctionListTables, FunctionSearch, FunctionBatchSearch, FunctionMultiSearch, FunctionGetImageURLs},
		}
	}
}

// Workbooks returns the configured workbook names, sorted.
func (t *SheetQueryTool) Workbooks() []string {
	return append([]string(nil), t.names...)
}

func (t *SheetQueryTool) workbook(args map[string]any) (*Workbook, error) {
	name, _ := args["workbook"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		switch len(t.names) {
		case 0:
			return nil, fmt.Errorf("no workbooks configured")
		case 1:
			return t.workbooks[t.names[0]], nil
		}
		name = "default"
	}
	if wb, ok := t.workbooks[name]; ok {
		return wb, nil
	}
	return nil, &sheets.ValidationError{
		Field:       "workbook",
		Value:       name,
		Message:     fmt.Sprintf("unknown workbook %q", name),
		Available:   t.Workbooks(),
		Suggestions: sheets.Suggest(name, t.names, 3),
	}
}

type tablesResponse struct {
	Workbook string         `json:"workbook"`
	Tables   []sheets.Table `json:"tables"`
}

func (t *SheetQueryTool) listTables(ctx context.Context, wb *Workbook) (*mcp.CallToolResult, error) {
	tables, err := wb.Service.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []sheets.Table{}
	}
	return tools.JSONResult(tablesResponse{Workbook: wb.Name, Tables: tables})
}

func (t *SheetQueryTool) search(ctx context.Context, wb *Workbook, args map[string]any) (*mcp.CallToolResult, error) {
	req := query.SearchRequest{
		TableName:  stringArg(args, "table_name"),
		MaxRecords: intArg(args, "max_records"),
	}
	if err := decodeArg(args, "criteria", &req.Criteria); err != nil {
		return nil, err
	}
	if err := decodeArg(args, "return_columns", &req.ReturnColumns); err != nil {
		return nil, err
	}

	resp, err := wb.Service.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if resolve, _ := args["resolve_images"].(bool); !resolve {
		return tools.JSONResult(resp)
	}

	out := searchWithImages{SearchResponse: resp}
	if cells := images.CellsFromRecords(resp.Records); len(cells) > 0 {
		urls, err := wb.Service.ImageURLs(ctx, query.ImageURLsRequest{TableName: resp.TableName, Cells: cells})
		if err != nil {
			out.ImageError = err.Error()
		}
		out.Images = urls
	}
	return tools.JSONResult(out)
}

type searchWithImages struct {
	*query.SearchResponse
	Images     []images.ImageURL `json:"images,omitempty"`
	ImageError string            `json:"imageError,omitempty"`
}

func (t *SheetQueryTool) batchSearch(ctx context.Context, wb *Workbook, args map[string]any) (*mcp.CallToolResult, error) {
	req := query.BatchRequest{
		TableName:  stringArg(args, "table_name"),
		MaxRecords: intArg(args, "max_records"),
	}
	if err := decodeArg(args, "return_columns", &req.ReturnColumns); err != nil {
		return nil, err
	}

	items, err := batchItems(args)
	if err != nil {
		return nil, err
	}
	req.BatchCriteria = items

	res, err := wb.Service.Batch(ctx, req)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(res)
}

// batchItems reads the batch from exactly one of batch_criteria, batch_text
// or batch_file.
func batchItems(args map[string]any) ([]query.BatchItem, error) {
	text := stringArg(args, "batch_text")
	file := stringArg(args, "batch_file")
	_, hasCriteria := args["batch_criteria"]

	sources := 0
	for _, present := range []bool{hasCriteria, text != "", file != ""} {
		if present {
			sources++
		}
	}
	if sources != 1 {
		return nil, &sheets.ValidationError{
			Field:   "batch_criteria",
			Message: "provide exactly one of batch_criteria, batch_text or batch_file",
		}
	}

	opts := batchinput.Options{
		IDColumn:        stringArg(args, "id_column"),
		DefaultOperator: query.Operator(stringArg(args, "default_operator")),
	}

	switch {
	case hasCriteria:
		var items []query.BatchItem
		if err := decodeArg(args, "batch_criteria", &items); err != nil {
			return nil, err
		}
		return items, nil
	case text != "":
		return batchinput.FromText(text, opts)
	default:
		return batchFromFile(file, stringArg(args, "batch_sheet"), opts)
	}
}

func batchFromFile(path, sheet string, opts batchinput.Options) ([]query.BatchItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return batchinput.FromXLSX(path, sheet, opts)
	case ".csv", ".tsv", ".txt":
		return batchinput.FromFile(path, opts)
	default:
		return nil, &sheets.ValidationError{
			Field:   "batch_file",
			Value:   path,
			Message: "batch_file must be a .csv, .tsv, .txt or .xlsx file",
		}
	}
}

func (t *SheetQueryTool) multiSearch(ctx context.Context, wb *Workbook, args map[string]any) (*mcp.CallToolResult, error) {
	var reqs []query.SearchRequest
	if err := decodeArg(args, "searches", &reqs); err != nil {
		return nil, err
	}

	res, err := wb.Service.MultiSearch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(res)
}

type imagesResponse struct {
	TableName string            `json:"tableName"`
	Images    []images.ImageURL `json:"images"`
}

func (t *SheetQueryTool) imageURLs(ctx context.Context, wb *Workbook, args map[string]any) (*mcp.CallToolResult, error) {
	req := query.ImageURLsRequest{TableName: stringArg(args, "table_name")}
	if err := decodeArg(args, "cells", &req.Cells); err != nil {
		return nil, err
	}

	urls, err := wb.Service.ImageURLs(ctx, req)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(imagesResponse{TableName: req.TableName, Images: urls})
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// decodeArg converts a decoded JSON argument into out. A string holding JSON
// is accepted too, since some clients send nested arrays pre-encoded.
func decodeArg(args map[string]any, key string, out any) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}

	var raw []byte
	if s, isString := v.(string); isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") {
			s = fmt.Sprintf("[%q]", s)
		}
		raw = []byte(s)
	} else {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &sheets.ValidationError{Field: key, Message: fmt.Sprintf("invalid %s: %v", key, err)}
	}
	return nil
}
