// Package toolhelp implements get_tool_help, which returns examples and
// troubleshooting notes for registered tools.
package toolhelp

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/registry"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

const ToolName = "get_tool_help"

// ToolHelpTool answers with the extended help of other tools in the same
// registry.
type ToolHelpTool struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *ToolHelpTool {
	return &ToolHelpTool{registry: reg}
}

func (t *ToolHelpTool) Definition() mcp.Tool {
	names := t.registry.NamesWithExtendedHelp()

	description := "Get detailed usage examples and troubleshooting for the spreadsheet query tools when a call fails unexpectedly."
	if len(names) == 0 {
		description = "No tools currently provide extended help information."
		names = []string{}
	}

	return mcp.NewTool(
		ToolName,
		mcp.WithDescription(description),
		mcp.WithString("tool_name",
			mcp.Required(),
			mcp.Description("Name of the tool to get help for"),
			mcp.Enum(names...),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func (t *ToolHelpTool) Execute(_ context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	toolName, ok := args["tool_name"].(string)
	if !ok || toolName == "" {
		return nil, fmt.Errorf("invalid parameters: missing or invalid required parameter: tool_name")
	}

	tool, exists := t.registry.Get(toolName)
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found or disabled. Tools with extended help: %s", toolName, strings.Join(t.registry.NamesWithExtendedHelp(), ", "))
	}
	provider, ok := tool.(tools.ExtendedHelpProvider)
	if !ok {
		return nil, fmt.Errorf("tool '%s' does not provide extended help. Tools with extended help: %s", toolName, strings.Join(t.registry.NamesWithExtendedHelp(), ", "))
	}

	def := tool.Definition()
	response := &ToolHelpResponse{
		ToolName: def.Name,
		BasicInfo: BasicInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		},
		HasExtendedInfo: true,
	}

	if info := provider.ProvideExtendedInfo(); info != nil {
		response.ExtendedInfo = info
	} else {
		response.HasExtendedInfo = false
		response.Message = fmt.Sprintf("Tool '%s' returned no extended information", def.Name)
	}

	return tools.JSONResult(response)
}
