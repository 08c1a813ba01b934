package toolhelp

import (
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolHelpResponse is the output of get_tool_help.
type ToolHelpResponse struct {
	ToolName        string              `json:"tool_name"`
	BasicInfo       BasicInfo           `json:"basic_info"`
	ExtendedInfo    *tools.ExtendedHelp `json:"extended_info,omitempty"`
	HasExtendedInfo bool                `json:"has_extended_info"`
	Message         string              `json:"message,omitempty"`
}

type BasicInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema mcp.ToolInputSchema `json:"input_schema"`
}
