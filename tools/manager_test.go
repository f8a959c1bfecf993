package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	if err := logger.Init(logger.GetLevelFromString("debug"), logger.FormatJSON, nil); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// TestTool implements Tool interface for testing
type TestTool struct {
	name        string
	description string
	schema      mcp.InputSchema
	executor    func(args json.RawMessage) ([]byte, error)
}

func (t *TestTool) Name() string {
	return t.name
}

func (t *TestTool) Description() string {
	return t.description
}

func (t *TestTool) InputSchema() mcp.InputSchema {
	return t.schema
}

func (t *TestTool) Execute(args json.RawMessage) ([]byte, error) {
	return t.executor(args)
}

func TestToolManager(t *testing.T) {
	// Create a tool manager
	manager := NewManager()

	// Test tool registration
	testTool := &TestTool{
		name:        "testTool",
		description: "Test tool",
		schema: mcp.InputSchema{
			Type:       "object",
			Properties: map[string]any{},
			Required:   []string{},
		},
		executor: func(args json.RawMessage) ([]byte, error) {
			result := "test result"
			return json.Marshal(result)
		},
	}
	manager.RegisterTool(testTool)

	// Test tool execution
	result, err := manager.CallTool("testTool", map[string]any{})
	if err != nil {
		t.Errorf("CallTool failed: %v", err)
	}
	if result != "test result" {
		t.Errorf("Expected 'test result', got %v", result)
	}

	// Test non-existent tool
	_, err = manager.CallTool("nonExistentTool", map[string]any{})
	if err == nil {
		t.Error("Expected error for non-existent tool")
	}

	// Test tool error handling
	errorTool := &TestTool{
		name:        "errorTool",
		description: "Error tool",
		schema: mcp.InputSchema{
			Type:       "object",
			Properties: map[string]any{},
			Required:   []string{},
		},
		executor: func(args json.RawMessage) ([]byte, error) {
			return nil, fmt.Errorf("test error")
		},
	}
	manager.RegisterTool(errorTool)

	_, err = manager.CallTool("errorTool", map[string]any{})
	if err == nil {
		t.Error("Expected error from errorTool")
	}
}

func TestConcurrentToolExecution(t *testing.T) {
	manager := NewManager()

	// Register a tool that takes some time to execute
	slowTool := &TestTool{
		name:        "slowTool",
		description: "Slow tool",
		schema: mcp.InputSchema{
			Type:       "object",
			Properties: map[string]any{},
			Required:   []string{},
		},
		executor: func(args json.RawMessage) ([]byte, error) {
			time.Sleep(100 * time.Millisecond)
			result := "slow result"
			return json.Marshal(result)
		},
	}
	manager.RegisterTool(slowTool)

	// Test concurrent execution
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := manager.CallTool("slowTool", map[string]any{})
			if err != nil {
				t.Errorf("Concurrent CallTool failed: %v", err)
			}
			if result != "slow result" {
				t.Errorf("Expected 'slow result', got %v", result)
			}
		}()
	}
	wg.Wait()
}

func TestCallHookObservesOutcome(t *testing.T) {
	manager := NewManager()
	manager.RegisterTools(
		&TestTool{name: "okTool", executor: func(json.RawMessage) ([]byte, error) { return json.Marshal("ok") }},
		&TestTool{name: "badTool", executor: func(json.RawMessage) ([]byte, error) { return nil, fmt.Errorf("bad") }},
	)

	outcomes := map[string]bool{}
	manager.SetCallHook(func(name string, err error) {
		outcomes[name] = err == nil
	})

	if _, err := manager.CallTool("okTool", nil); err != nil {
		t.Fatalf("okTool failed: %v", err)
	}
	if _, err := manager.CallTool("badTool", nil); err == nil {
		t.Fatal("expected badTool to fail")
	}
	if _, err := manager.CallTool("missing", nil); !IsToolNotFound(err) {
		t.Fatalf("expected tool not found, got %v", err)
	}

	if !outcomes["okTool"] || outcomes["badTool"] {
		t.Fatalf("unexpected outcomes: %v", outcomes)
	}
	if _, seen := outcomes["missing"]; seen {
		t.Fatal("hook must not fire for unknown tools")
	}
}

func TestDefaultManagerListsQualityToolsSorted(t *testing.T) {
	catalog := rulecatalog.New(rulecatalog.Options{})
	if _, err := catalog.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	manager := NewDefaultManager(quality.NewRunner(catalog, quality.Options{}))

	expected := []string{
		"quality-input-requests",
		"quality-list-rules",
		"quality-reload-rules",
		"quality-run",
		"quality-run-batch",
	}
	listed := manager.GetTools()
	if len(listed) != len(expected) {
		t.Fatalf("expected %d tools, got %d", len(expected), len(listed))
	}
	for i, tool := range listed {
		if tool.Name != expected[i] {
			t.Fatalf("tool %d: expected %s, got %s", i, expected[i], tool.Name)
		}
		if tool.InputSchema.Type != "object" {
			t.Fatalf("tool %s: expected object schema", tool.Name)
		}
	}
}
