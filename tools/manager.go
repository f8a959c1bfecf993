package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

var ErrToolNotFound = errors.New("tool not found")

func IsToolNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}

// CallHook observes every executed tool call.
type CallHook func(name string, err error)

// Manager implements ToolRegistry interface
type Manager struct {
	tools  map[string]types.Tool
	onCall CallHook
	mutex  sync.RWMutex
}

// NewManager creates a new tool manager
func NewManager() *Manager {
	return &Manager{
		tools: make(map[string]types.Tool),
	}
}

// SetCallHook installs hook; nil removes it.
func (m *Manager) SetCallHook(hook CallHook) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onCall = hook
}

// RegisterTool registers a new tool
func (m *Manager) RegisterTool(tool types.Tool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if tool == nil {
		return errors.New("tool cannot be nil")
	}

	name := tool.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}

	m.tools[name] = tool
	logger.Debug("Tool registered", "name", name)
	return nil
}

// RegisterTools registers every tool, logging the ones that fail.
func (m *Manager) RegisterTools(tools ...types.Tool) {
	registered := 0
	for _, tool := range tools {
		if err := m.RegisterTool(tool); err != nil {
			logger.Error("Failed to register tool", "error", err)
			continue
		}
		registered++
	}
	logger.Info("Tools registered", "count", registered)
}

// GetTool retrieves a tool by name
func (m *Manager) GetTool(name string) (types.Tool, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	tool, exists := m.tools[name]
	return tool, exists
}

// ListTools returns all registered tools sorted by name
func (m *Manager) ListTools() []types.Tool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	tools := make([]types.Tool, 0, len(m.tools))
	for _, tool := range m.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})
	return tools
}

// ExecuteTool executes a tool by name with the given arguments
func (m *Manager) ExecuteTool(name string, args json.RawMessage) ([]byte, error) {
	tool, exists := m.GetTool(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	logger.Debug("Executing tool", "name", name, "args_bytes", len(args))
	result, err := tool.Execute(args)

	m.mutex.RLock()
	hook := m.onCall
	m.mutex.RUnlock()
	if hook != nil {
		hook(name, err)
	}
	return result, err
}

// GetTools returns a list of registered tools with their descriptions and schemas
func (m *Manager) GetTools() []mcp.Tool {
	tools := m.ListTools()
	mcpTools := make([]mcp.Tool, 0, len(tools))

	for _, tool := range tools {
		mcpTool := mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		}
		mcpTools = append(mcpTools, mcpTool)
	}

	return mcpTools
}

// CallTool calls a registered tool with decoded arguments and returns the decoded result.
func (m *Manager) CallTool(name string, args map[string]any) (any, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	resultJSON, err := m.ExecuteTool(name, argsJSON)
	if err != nil {
		return nil, err
	}

	var result any
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, err
	}

	return result, nil
}
