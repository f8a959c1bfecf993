package tools

import (
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

// GetAllTools returns all available tools bound to runner
func GetAllTools(runner *quality.Runner) []types.Tool {
	var all []types.Tool
	all = append(all, quality.GetAllTools(runner)...)
	return all
}

// NewDefaultManager returns a manager holding every tool bound to runner.
func NewDefaultManager(runner *quality.Runner) *Manager {
	m := NewManager()
	m.RegisterTools(GetAllTools(runner)...)
	return m
}
