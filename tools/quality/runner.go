// Package quality exposes the copy quality engine as MCP tools.
package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/slighter12/qualityos-mcp-go/config"
	"github.com/slighter12/qualityos-mcp-go/quality/engine"
	"github.com/slighter12/qualityos-mcp-go/quality/inputreq"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

const (
	DefaultBatchConcurrency = 4
	DefaultMaxBatchSize     = 100
)

// Options configure a Runner.
type Options struct {
	Engine           engine.Options
	BatchConcurrency int
	MaxBatchSize     int
	// NewRunID defaults to random UUIDs.
	NewRunID func() string
}

// OptionsFromConfig maps the engine config section onto runner options.
func OptionsFromConfig(cfg config.Engine) Options {
	return Options{
		Engine: engine.Options{
			DefaultMaxPasses: cfg.DefaultMaxPasses,
			PassCeiling:      cfg.MaxPasses,
			DefaultCutoff:    cfg.DefaultCutoff,
			RedactionMarker:  cfg.RedactionMarker,
			FallbackCTA:      cfg.FallbackCTA,
		},
		BatchConcurrency: cfg.BatchConcurrency,
	}
}

// Runner evaluates drafts against the catalog's active snapshot. Each call builds its
// engine from the snapshot current at call time, so a reload never affects a run in flight.
type Runner struct {
	catalog *rulecatalog.Catalog
	opts    Options
}

func NewRunner(catalog *rulecatalog.Catalog, opts Options) *Runner {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Runner{catalog: catalog, opts: opts}
}

// RunResult is an engine result plus the identifiers of the call that produced it.
type RunResult struct {
	RunID       string `json:"runId"`
	RuleVersion string `json:"ruleVersion"`
	engine.Result
}

// InputRequestResult is the missing-information report for one request.
type InputRequestResult struct {
	ModuleKey   string `json:"moduleKey"`
	RuleVersion string `json:"ruleVersion"`
	inputreq.Result
}

// BatchItem is one entry of a batch run. Exactly one of Result and Error is set.
type BatchItem struct {
	Index  int            `json:"index"`
	Result *RunResult     `json:"result,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// Catalog returns the catalog the runner reads snapshots from.
func (r *Runner) Catalog() *rulecatalog.Catalog {
	return r.catalog
}

// Snapshot returns the active snapshot or a not_available semantic error.
func (r *Runner) Snapshot() (*ruleset.Snapshot, error) {
	snapshot, err := r.catalog.Snapshot()
	if err != nil {
		if errors.Is(err, rulecatalog.ErrNoSnapshot) {
			return nil, types.NewNotAvailableError("Rule catalog is not loaded", map[string]any{
				"feature": "rule_catalog",
			})
		}
		return nil, fmt.Errorf("load rule snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *Runner) engine() (*engine.Engine, error) {
	snapshot, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return engine.New(snapshot, r.opts.Engine), nil
}

// Run evaluates one request.
func (r *Runner) Run(req engine.Request) (RunResult, error) {
	if err := ValidateRequest(req); err != nil {
		return RunResult{}, err
	}
	eng, err := r.engine()
	if err != nil {
		return RunResult{}, err
	}
	return r.run(eng, req), nil
}

func (r *Runner) run(eng *engine.Engine, req engine.Request) RunResult {
	return RunResult{
		RunID:       r.opts.NewRunID(),
		RuleVersion: eng.Snapshot().Version,
		Result:      eng.Run(req),
	}
}

// RunBatch evaluates requests concurrently, at most BatchConcurrency at a time, against
// one snapshot. Invalid requests are reported per item; the batch itself fails only when
// it is empty, too large, or ctx is cancelled.
func (r *Runner) RunBatch(ctx context.Context, reqs []engine.Request) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, types.MissingField("requests")
	}
	if len(reqs) > r.opts.MaxBatchSize {
		return nil, types.NewInvalidParamsError(fmt.Sprintf("batch exceeds %d requests", r.opts.MaxBatchSize), map[string]any{
			"field":   "requests",
			"problem": "too_many",
			"max":     r.opts.MaxBatchSize,
		})
	}
	eng, err := r.engine()
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.BatchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items[i].Index = i
			if err := ValidateRequest(req); err != nil {
				items[i].Error = errorPayload(err)
				return nil
			}
			result := r.run(eng, req)
			items[i].Result = &result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run batch: %w", err)
	}
	return items, nil
}

// InputRequests reports what the caller should supply for req without running passes.
func (r *Runner) InputRequests(req engine.Request) (InputRequestResult, error) {
	if strings.TrimSpace(req.ModuleKey) == "" {
		return InputRequestResult{}, types.MissingField("moduleKey")
	}
	eng, err := r.engine()
	if err != nil {
		return InputRequestResult{}, err
	}
	return InputRequestResult{
		ModuleKey:   strings.TrimSpace(req.ModuleKey),
		RuleVersion: eng.Snapshot().Version,
		Result:      eng.InputRequests(req),
	}, nil
}

// ValidateRequest rejects requests without a module key or draft text.
func ValidateRequest(req engine.Request) error {
	if strings.TrimSpace(req.ModuleKey) == "" {
		return types.MissingField("moduleKey")
	}
	if strings.TrimSpace(req.Draft) == "" {
		return types.MissingField("draft")
	}
	if req.MaxPasses < 0 {
		return types.NewInvalidParamsError("maxPasses must not be negative", map[string]any{
			"field":   "maxPasses",
			"problem": "negative",
		})
	}
	return nil
}

func errorPayload(err error) map[string]any {
	if semanticErr, ok := types.AsSemanticError(err); ok {
		return semanticErr.Payload()
	}
	return map[string]any{"message": err.Error()}
}
