package registry

import (
	"context"
	"io"
	"testing"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct{ name string }

func (f fakeTool) Definition() mcp.Tool { return mcp.NewTool(f.name) }

func (f fakeTool) Execute(context.Context, *logrus.Logger, map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(f.name), nil
}

type helpfulTool struct{ fakeTool }

func (helpfulTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{WhenToUse: "always"}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Setenv(EnvDisabledTools, "")
	r := New(quietLogger())

	assert.True(t, r.Register(fakeTool{"sheet_query"}))
	assert.True(t, r.Register(helpfulTool{fakeTool{"get_tool_help"}}))

	tool, ok := r.Get("sheet-query")
	require.True(t, ok)
	assert.Equal(t, "sheet_query", tool.Definition().Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"get_tool_help", "sheet_query"}, r.Names())
	assert.Equal(t, []string{"get_tool_help"}, r.NamesWithExtendedHelp())
	assert.Len(t, r.Tools(), 2)
}

func TestRegistry_DisabledTools(t *testing.T) {
	t.Setenv(EnvDisabledTools, " Sheet-Query , ,other")
	r := New(quietLogger())

	assert.False(t, r.Register(fakeTool{"sheet_query"}))
	assert.True(t, r.Register(fakeTool{"get_tool_help"}))

	_, ok := r.Get("sheet_query")
	assert.False(t, ok)
	assert.Equal(t, []string{"get_tool_help"}, r.Names())
}
