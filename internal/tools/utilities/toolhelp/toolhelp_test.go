package toolhelp

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/registry"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type documentedTool struct{}

func (documentedTool) Definition() mcp.Tool {
	return mcp.NewTool("sheet_query", mcp.WithDescription("Query spreadsheets"))
}

func (documentedTool) Execute(context.Context, *logrus.Logger, map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}

func (documentedTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{WhenToUse: "Looking up rows"}
}

type plainTool struct{}

func (plainTool) Definition() mcp.Tool { return mcp.NewTool("plain") }

func (plainTool) Execute(context.Context, *logrus.Logger, map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	t.Setenv(registry.EnvDisabledTools, "")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := registry.New(logger)
	reg.Register(documentedTool{})
	reg.Register(plainTool{})
	return reg
}

func TestToolHelp_Execute(t *testing.T) {
	help := New(newRegistry(t))

	result, err := help.Execute(context.Background(), nil, map[string]any{"tool_name": "sheet_query"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var resp ToolHelpResponse
	require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	assert.Equal(t, "sheet_query", resp.ToolName)
	assert.Equal(t, "Query spreadsheets", resp.BasicInfo.Description)
	assert.True(t, resp.HasExtendedInfo)
	assert.Equal(t, "Looking up rows", resp.ExtendedInfo.WhenToUse)
}

func TestToolHelp_Errors(t *testing.T) {
	help := New(newRegistry(t))

	_, err := help.Execute(context.Background(), nil, map[string]any{})
	assert.Error(t, err)

	_, err = help.Execute(context.Background(), nil, map[string]any{"tool_name": "plain"})
	assert.ErrorContains(t, err, "does not provide extended help")

	_, err = help.Execute(context.Background(), nil, map[string]any{"tool_name": "ghost"})
	assert.ErrorContains(t, err, "sheet_query")
}

func TestToolHelp_DefinitionListsHelpfulTools(t *testing.T) {
	def := New(newRegistry(t)).Definition()
	assert.Equal(t, ToolName, def.Name)

	prop, ok := def.InputSchema.Properties["tool_name"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"sheet_query"}, prop["enum"])
}
