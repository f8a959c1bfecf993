package types

import (
	"encoding/json"

	"github.com/slighter12/qualityos-mcp-go/mcp"
)

// Tool interface defines the contract for all tools
type Tool interface {
	Name() string
	Description() string
	InputSchema() mcp.InputSchema
	Execute(args json.RawMessage) ([]byte, error)
}

// ToolRegistry interface defines the contract for tool registries
type ToolRegistry interface {
	RegisterTool(tool Tool) error
	GetTool(name string) (Tool, bool)
	ListTools() []Tool
	ExecuteTool(name string, args json.RawMessage) ([]byte, error)
}

// DecodeArgs unmarshals tool arguments into v. Empty arguments leave v untouched.
func DecodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return NewInvalidParamsError("Invalid tool arguments", map[string]any{
			"field":   "arguments",
			"problem": "malformed_payload",
			"details": err.Error(),
		})
	}
	return nil
}
