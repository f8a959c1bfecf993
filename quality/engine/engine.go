// Package engine runs the quality pass loop: it redacts brand-forbidden terms once, then
// evaluates the module's rules in severity order, rewrites the text, enforces the
// global CTA, evidence and disclaimer slots, and scores the result until the text passes
// or the pass budget runs out.
//
// An Engine holds an immutable rule snapshot and may serve concurrent runs.
package engine

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/slighter12/qualityos-mcp-go/quality/action"
	"github.com/slighter12/qualityos-mcp-go/quality/inputreq"
	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/scorecard"
)

const (
	DefaultMaxPasses       = 3
	DefaultPassCeiling     = 10
	DefaultRedactionMarker = "[REDACTED]"
)

// Options tune an Engine. The zero value is usable.
type Options struct {
	// DefaultMaxPasses applies when a request leaves MaxPasses unset.
	DefaultMaxPasses int
	// PassCeiling clamps requested pass budgets.
	PassCeiling     int
	DefaultCutoff   float64
	RedactionMarker string
	// FallbackCTA is used when the brand style has no default CTA.
	FallbackCTA string
	Logger      *slog.Logger
	Observer    Observer
	Clock       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultMaxPasses <= 0 {
		o.DefaultMaxPasses = DefaultMaxPasses
	}
	if o.PassCeiling <= 0 {
		o.PassCeiling = DefaultPassCeiling
	}
	if o.DefaultCutoff <= 0 {
		o.DefaultCutoff = ruleset.DefaultPassCutoff
	}
	if o.RedactionMarker == "" {
		o.RedactionMarker = DefaultRedactionMarker
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Request is one draft to evaluate.
type Request struct {
	ModuleKey   string             `json:"moduleKey"`
	IndustryKey string             `json:"industryKey,omitempty"`
	Draft       string             `json:"draft"`
	BrandStyle  ruleset.BrandStyle `json:"brandStyle,omitempty"`
	ProofPack   ruleset.ProofPack  `json:"proofPack,omitempty"`
	MaxPasses   int                `json:"maxPasses,omitempty"`
}

// StopReason says why the pass loop ended.
type StopReason string

const (
	StopPassed            StopReason = "passed"
	StopNeedsConfirmation StopReason = "needs_confirmation"
	StopMaxPasses         StopReason = "max_passes"
)

// PassRecord is the diagnostic trace of one pass.
type PassRecord struct {
	Index          int      `json:"index"`
	Input          string   `json:"input"`
	Output         string   `json:"output"`
	TriggeredRules []string `json:"triggeredRules"`
	AppliedActions []string `json:"appliedActions"`
	Score          float64  `json:"score"`
	HardFail       bool     `json:"hardFail"`
}

// Debug carries the diagnostics returned next to the final copy.
type Debug struct {
	Passes              []PassRecord `json:"passes"`
	InputRequests       []string     `json:"inputRequests"`
	NextQuestionsPrompt string       `json:"nextQuestionsPrompt"`
}

// Result is the outcome of a run.
type Result struct {
	FinalCopy  string              `json:"finalCopy"`
	Scorecard  scorecard.Scorecard `json:"scorecard"`
	StopReason StopReason          `json:"stopReason"`
	Debug      Debug               `json:"debug"`
}

// Engine evaluates drafts against one snapshot.
type Engine struct {
	snapshot *ruleset.Snapshot
	opts     Options
}

// New returns an engine over snapshot. A nil snapshot behaves like an empty rule set.
func New(snapshot *ruleset.Snapshot, opts Options) *Engine {
	if snapshot == nil {
		snapshot = &ruleset.Snapshot{Dimensions: slices.Clone(ruleset.AllDimensions)}
	}
	return &Engine{snapshot: snapshot, opts: opts.withDefaults()}
}

// Snapshot returns the rules the engine evaluates.
func (e *Engine) Snapshot() *ruleset.Snapshot {
	return e.snapshot
}

// Run evaluates req to completion.
func (e *Engine) Run(req Request) Result {
	run := e.Prepare(req)
	state := run.Initial()
	for state.Phase != PhaseDone {
		state = run.Step(state)
	}
	result := run.Result(state)
	e.opts.Observer.RunCompleted(run.moduleKey, result)
	return result
}

// InputRequests builds the missing-information questions for req without running passes.
func (e *Engine) InputRequests(req Request) inputreq.Result {
	moduleKey := strings.TrimSpace(req.ModuleKey)
	maps := lexicon.Resolve(e.snapshot.RewriteMaps, req.IndustryKey)
	policy := e.snapshot.Policies.PolicyWithCutoff(moduleKey, e.opts.DefaultCutoff)
	return inputreq.Build(policy, req.ProofPack, maps.RequiredSpecificity)
}

// Prepare resolves everything a run of req needs. The returned Run is stepped with
// Initial and Step; Engine.Run does exactly that.
func (e *Engine) Prepare(req Request) *Run {
	moduleKey := strings.TrimSpace(req.ModuleKey)
	maps := lexicon.Resolve(e.snapshot.RewriteMaps, req.IndustryKey)

	maxPasses := req.MaxPasses
	if maxPasses <= 0 {
		maxPasses = e.opts.DefaultMaxPasses
	}
	maxPasses = min(maxPasses, e.opts.PassCeiling)

	return &Run{
		opts:      e.opts,
		snapshot:  e.snapshot,
		moduleKey: moduleKey,
		industry:  maps.Industry,
		draft:     req.Draft,
		brand:     req.BrandStyle,
		proof:     req.ProofPack,
		maxPasses: maxPasses,
		maps:      maps,
		policy:    e.snapshot.Policies.PolicyWithCutoff(moduleKey, e.opts.DefaultCutoff),
		highRisk:  e.snapshot.Policies.IsHighRisk(moduleKey),
		rules:     applicableRules(e.snapshot.Rules, moduleKey),
		actionCtx: action.Context{
			Maps:       maps,
			Brand:      req.BrandStyle,
			DefaultCTA: action.ResolveDefaultCTA(req.BrandStyle, e.opts.FallbackCTA),
		},
	}
}

// applicableRules keeps the rules in scope for moduleKey, ordered by severity rank and
// then by their position in the snapshot.
func applicableRules(rules []ruleset.RuleSpec, moduleKey string) []ruleset.RuleSpec {
	out := make([]ruleset.RuleSpec, 0, len(rules))
	for _, rule := range rules {
		if rule.AppliesToModule(moduleKey) {
			out = append(out, rule)
		}
	}
	slices.SortStableFunc(out, func(a, b ruleset.RuleSpec) int {
		return a.Severity.Rank() - b.Severity.Rank()
	})
	return out
}
