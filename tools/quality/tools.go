package quality

import (
	"context"
	"encoding/json"

	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/quality/engine"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

func requestProperties() map[string]any {
	return map[string]any{
		"moduleKey": map[string]any{
			"type":        "string",
			"description": "Copy module, e.g. landing, detail, sns, push, faq",
		},
		"industryKey": map[string]any{
			"type":        "string",
			"description": "Optional industry override, e.g. medical, finance",
		},
		"draft": map[string]any{
			"type":        "string",
			"description": "Draft copy to evaluate and rewrite",
		},
		"brandStyle": map[string]any{
			"type":        "object",
			"description": "Brand voice hints: tone, formality, default_cta, blacklist",
		},
		"proofPack": map[string]any{
			"type":        "object",
			"description": "Supporting facts keyed by category (numbers, reviews, certifications, ...)",
		},
		"maxPasses": map[string]any{
			"type":        "integer",
			"description": "Pass budget; defaults to the server setting",
		},
	}
}

// RunTool evaluates one draft.
type RunTool struct {
	runner *Runner
}

func NewRunTool(runner *Runner) *RunTool { return &RunTool{runner: runner} }

func (t *RunTool) Name() string { return "quality-run" }

func (t *RunTool) Description() string {
	return "Scores a marketing draft against the active rule set and returns the rewritten copy with its scorecard"
}

func (t *RunTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type:       "object",
		Properties: requestProperties(),
		Required:   []string{"moduleKey", "draft"},
		Title:      "Quality Run",
	}
}

func (t *RunTool) Execute(args json.RawMessage) ([]byte, error) {
	var req engine.Request
	if err := types.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	result, err := t.runner.Run(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// RunBatchTool evaluates several drafts concurrently.
type RunBatchTool struct {
	runner *Runner
}

func NewRunBatchTool(runner *Runner) *RunBatchTool { return &RunBatchTool{runner: runner} }

func (t *RunBatchTool) Name() string { return "quality-run-batch" }

func (t *RunBatchTool) Description() string {
	return "Runs several drafts against one rule snapshot; invalid entries are reported per item"
}

func (t *RunBatchTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"requests": map[string]any{
				"type":        "array",
				"description": "Run requests, each shaped like quality-run arguments",
				"items": map[string]any{
					"type":       "object",
					"properties": requestProperties(),
					"required":   []string{"moduleKey", "draft"},
				},
			},
		},
		Required: []string{"requests"},
		Title:    "Quality Run Batch",
	}
}

func (t *RunBatchTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Requests []engine.Request `json:"requests"`
	}
	if err := types.DecodeArgs(args, &payload); err != nil {
		return nil, err
	}
	items, err := t.runner.RunBatch(context.Background(), payload.Requests)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"count":   len(items),
		"results": items,
	})
}

// InputRequestsTool lists the information a draft is missing.
type InputRequestsTool struct {
	runner *Runner
}

func NewInputRequestsTool(runner *Runner) *InputRequestsTool {
	return &InputRequestsTool{runner: runner}
}

func (t *InputRequestsTool) Name() string { return "quality-input-requests" }

func (t *InputRequestsTool) Description() string {
	return "Lists the proof and specificity the module policy requires but the proof pack lacks"
}

func (t *InputRequestsTool) InputSchema() mcp.InputSchema {
	props := requestProperties()
	delete(props, "draft")
	delete(props, "maxPasses")
	return mcp.InputSchema{
		Type:       "object",
		Properties: props,
		Required:   []string{"moduleKey"},
		Title:      "Quality Input Requests",
	}
}

func (t *InputRequestsTool) Execute(args json.RawMessage) ([]byte, error) {
	var req engine.Request
	if err := types.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	result, err := t.runner.InputRequests(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// ListRulesTool lists compiled rules.
type ListRulesTool struct {
	runner *Runner
}

func NewListRulesTool(runner *Runner) *ListRulesTool { return &ListRulesTool{runner: runner} }

func (t *ListRulesTool) Name() string { return "quality-list-rules" }

func (t *ListRulesTool) Description() string {
	return "Lists the rules of the active snapshot, optionally filtered by module, severity or dimension"
}

func (t *ListRulesTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"moduleKey": map[string]any{"type": "string", "description": "Only rules applying to this module"},
			"severity":  map[string]any{"type": "string", "description": "HARD_FAIL, HIGH, MEDIUM or LOW"},
			"dimension": map[string]any{"type": "string", "description": "Scorecard dimension"},
		},
		Required: []string{},
		Title:    "Quality List Rules",
	}
}

func (t *ListRulesTool) Execute(args json.RawMessage) ([]byte, error) {
	var filter RuleFilter
	if err := types.DecodeArgs(args, &filter); err != nil {
		return nil, err
	}
	snapshot, err := t.runner.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(ListRules(snapshot, filter))
}

// ReloadRulesTool reloads the rule catalog from disk.
type ReloadRulesTool struct {
	catalog *rulecatalog.Catalog
}

func NewReloadRulesTool(catalog *rulecatalog.Catalog) *ReloadRulesTool {
	return &ReloadRulesTool{catalog: catalog}
}

func (t *ReloadRulesTool) Name() string { return "quality-reload-rules" }

func (t *ReloadRulesTool) Description() string {
	return "Reloads rule bundles from the configured catalog paths"
}

func (t *ReloadRulesTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type:       "object",
		Properties: map[string]any{},
		Required:   []string{},
		Title:      "Quality Reload Rules",
	}
}

func (t *ReloadRulesTool) Execute(args json.RawMessage) ([]byte, error) {
	result, err := t.catalog.Reload()
	payload := map[string]any{
		"changed":        result.Changed,
		"ruleCount":      result.RuleCount,
		"warningCount":   result.WarningCount,
		"loadErrorCount": result.LoadErrorCount,
		"status":         result.Status,
		"fingerprint":    result.Fingerprint,
	}
	if len(result.Warnings) > 0 {
		payload["warnings"] = result.Warnings
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	return json.Marshal(payload)
}

// GetAllTools returns every quality tool bound to runner.
func GetAllTools(runner *Runner) []types.Tool {
	return []types.Tool{
		NewRunTool(runner),
		NewRunBatchTool(runner),
		NewInputRequestsTool(runner),
		NewListRulesTool(runner),
		NewReloadRulesTool(runner.Catalog()),
	}
}
