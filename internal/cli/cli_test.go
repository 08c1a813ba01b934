package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoTool returns its arguments as JSON.
type echoTool struct{}

func (echoTool) Definition() mcp.Tool {
	return mcp.NewTool("sheet_query",
		mcp.WithDescription("Search spreadsheets\nMore detail here"),
		mcp.WithString("function", mcp.Required(), mcp.Enum("search", "list_tables")),
		mcp.WithString("table_name"),
		mcp.WithNumber("max_records"),
		mcp.WithBoolean("verbose"),
		mcp.WithArray("return_columns", mcp.WithStringItems()),
	)
}

func (echoTool) Execute(_ context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	if args["function"] == "fail" {
		return nil, errors.New("boom")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func newRunner(t *testing.T, output OutputFormat) (*Runner, *bytes.Buffer) {
	t.Helper()
	t.Setenv(registry.EnvDisabledTools, "")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := registry.New(logger)
	require.True(t, reg.Register(echoTool{}))

	var out bytes.Buffer
	return NewRunner(reg, logger, &out, output), &out
}

func TestListTools(t *testing.T) {
	r, out := newRunner(t, OutputText)
	require.NoError(t, r.ListTools())
	assert.Contains(t, out.String(), "sheet_query")
	assert.Contains(t, out.String(), "Search spreadsheets")
	assert.NotContains(t, out.String(), "More detail")

	r, out = newRunner(t, OutputJSON)
	require.NoError(t, r.ListTools())
	assert.JSONEq(t, `[{"name":"sheet_query","description":"Search spreadsheets"}]`, out.String())
}

func TestHelpTool(t *testing.T) {
	r, out := newRunner(t, OutputText)
	require.NoError(t, r.HelpTool("sheet-query"))

	text := out.String()
	assert.Contains(t, text, "Tool: sheet_query")
	assert.Contains(t, text, "--function")
	assert.Contains(t, text, "(required) [search|list_tables]")
	assert.Contains(t, text, "--table-name")

	assert.Error(t, r.HelpTool("nope"))
}

func TestRunTool_FlagsAndJSON(t *testing.T) {
	r, out := newRunner(t, OutputText)
	err := r.RunTool(context.Background(), "sheet_query", []string{
		`{"function":"list_tables","table_name":"Stock"}`,
		"--function=search",
		"--table-name", "Parts",
		"--max-records=25",
		"--verbose",
		"--return-columns=PartNo, Level",
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, map[string]any{
		"function":       "search",
		"table_name":     "Parts",
		"max_records":    float64(25),
		"verbose":        true,
		"return_columns": []any{"PartNo", "Level"},
	}, got)
}

func TestRunTool_Errors(t *testing.T) {
	r, _ := newRunner(t, OutputText)

	err := r.RunTool(context.Background(), "missing", nil)
	assert.ErrorContains(t, err, "unknown tool")

	err = r.RunTool(context.Background(), "sheet_query", []string{"positional"})
	assert.ErrorContains(t, err, "unexpected argument")

	err = r.RunTool(context.Background(), "sheet_query", []string{"--table-name"})
	assert.ErrorContains(t, err, "requires a value")

	err = r.RunTool(context.Background(), "sheet_query", []string{"--function=fail"})
	assert.ErrorContains(t, err, "tool error: boom")
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		raw, schemaType string
		want            any
	}{
		{"12", "number", float64(12)},
		{"1.5", "number", 1.5},
		{"abc", "number", "abc"},
		{"TRUE", "boolean", true},
		{"no", "boolean", false},
		{`["a","b"]`, "array", []any{"a", "b"}},
		{`{"k":1}`, "object", map[string]any{"k": float64(1)}},
		{"plain", "string", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceValue(tt.raw, tt.schemaType))
		})
	}
}

func TestToFlagName(t *testing.T) {
	assert.Equal(t, "table-name", toFlagName("table_name"))
	assert.Equal(t, "return-columns", toFlagName("returnColumns"))
}
