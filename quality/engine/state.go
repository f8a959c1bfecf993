package engine

import (
	"regexp"

	"github.com/slighter12/qualityos-mcp-go/quality/action"
	"github.com/slighter12/qualityos-mcp-go/quality/ceg"
	"github.com/slighter12/qualityos-mcp-go/quality/detect"
	"github.com/slighter12/qualityos-mcp-go/quality/inputreq"
	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/scorecard"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// Phase is the position of a run in its state machine.
type Phase int

const (
	PhasePrePass Phase = iota
	PhasePass
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePrePass:
		return "pre_pass"
	case PhasePass:
		return "pass"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

var needsConfirmationMarker = regexp.MustCompile(`(?i)\[(?:확인 필요|needs[_ ]confirmation)[^\]]*\]`)

// HasNeedsConfirmation reports whether text carries a placeholder only a human can resolve.
func HasNeedsConfirmation(text string) bool {
	return needsConfirmationMarker.MatchString(text)
}

// State is an immutable snapshot of a run between steps.
type State struct {
	Phase     Phase
	Text      string
	Passes    []PassRecord
	Scorecard scorecard.Scorecard
	Stop      StopReason
}

// Run is one prepared evaluation. It is not safe for concurrent use; Engine.Run creates
// one per call.
type Run struct {
	opts      Options
	snapshot  *ruleset.Snapshot
	moduleKey string
	industry  string
	draft     string
	brand     ruleset.BrandStyle
	proof     ruleset.ProofPack
	maxPasses int
	maps      lexicon.Effective
	policy    ruleset.ModulePolicy
	highRisk  bool
	rules     []ruleset.RuleSpec
	actionCtx action.Context
}

// MaxPasses is the resolved pass budget of the run.
func (r *Run) MaxPasses() int {
	return r.maxPasses
}

// Initial is the Pre-pass state holding the raw draft.
func (r *Run) Initial() State {
	return State{Phase: PhasePrePass, Text: r.draft}
}

// Step advances s by one transition: Pre-pass redaction, one full pass, or nothing once
// the run is done.
func (r *Run) Step(s State) State {
	switch s.Phase {
	case PhasePrePass:
		return r.prePass(s)
	case PhasePass:
		return r.pass(s)
	default:
		return s
	}
}

// Redaction happens once and never contributes to the score.
func (r *Run) prePass(s State) State {
	text := textkit.NormalizeSpace(s.Text)
	text = action.Redact(text, r.brand.Blacklist, r.opts.RedactionMarker)
	return State{Phase: PhasePass, Text: text}
}

// fold is the running value threaded through the rules of one pass.
type fold struct {
	text      string
	triggered []ruleset.RuleSpec
	applied   []string
}

func (r *Run) applyRule(acc fold, rule ruleset.RuleSpec) fold {
	result := detect.Evaluate(rule.Detection, acc.text, r.maps)
	for _, u := range result.Unhandled {
		r.opts.Logger.Debug("unhandled detection", "rule_id", rule.ID, "type", u.Type, "reason", u.Reason)
	}
	if !result.Triggered {
		return acc
	}

	acc.triggered = append(acc.triggered, rule)
	r.opts.Observer.RuleTriggered(r.moduleKey, rule)

	for _, a := range rule.Actions {
		outcome := action.Apply(a, acc.text, r.actionCtx)
		if outcome.Unhandled != nil {
			r.opts.Logger.Debug("unhandled action", "rule_id", rule.ID, "type", outcome.Unhandled.Type, "reason", outcome.Unhandled.Reason)
			continue
		}
		acc.text = outcome.Text
		acc.applied = append(acc.applied, rule.ID+":"+ruleset.Describe(a))
	}
	return acc
}

func (r *Run) pass(s State) State {
	input := s.Text
	acc := fold{text: input}
	for _, rule := range r.rules {
		acc = r.applyRule(acc, rule)
	}

	// Evidence lines carry no CTA term and disclaimer lines never count as CTAs, so one
	// merge ahead of the insertions holds for the whole pass.
	for _, enforce := range []enforcer{r.enforceSingleCTA, r.enforceEvidence, r.enforceDisclaimers} {
		text, applied := enforce(acc.text)
		if applied != "" && text != acc.text {
			acc.applied = append(acc.applied, applied)
		}
		acc.text = text
	}
	acc.text = textkit.NormalizeSpace(acc.text)

	card := scorecard.Build(scorecard.Input{
		Version:        r.snapshot.Version,
		ModuleKey:      r.moduleKey,
		IndustryKey:    r.industry,
		Cutoff:         r.policy.PassCutoff,
		Triggered:      acc.triggered,
		AppliedActions: acc.applied,
		CEG:            ceg.Extract(acc.text),
		Now:            r.opts.Clock(),
	})

	record := PassRecord{
		Index:          len(s.Passes) + 1,
		Input:          input,
		Output:         acc.text,
		TriggeredRules: card.TriggeredRules,
		AppliedActions: card.AppliedActions,
		Score:          card.TotalScore,
		HardFail:       card.HardFail,
	}
	r.opts.Observer.PassCompleted(r.moduleKey, record)
	r.opts.Logger.Debug("quality pass completed",
		"module", r.moduleKey,
		"pass", record.Index,
		"score", record.Score,
		"hard_fail", record.HardFail,
		"triggered", len(record.TriggeredRules),
	)

	next := State{
		Phase:     PhasePass,
		Text:      acc.text,
		Passes:    append(append([]PassRecord(nil), s.Passes...), record),
		Scorecard: card,
	}
	switch {
	case card.Pass:
		next.Phase, next.Stop = PhaseDone, StopPassed
	case card.HardFail && HasNeedsConfirmation(acc.text):
		next.Phase, next.Stop = PhaseDone, StopNeedsConfirmation
	case len(next.Passes) >= r.maxPasses:
		next.Phase, next.Stop = PhaseDone, StopMaxPasses
	}
	return next
}

// Result assembles the caller-facing result from a finished state.
func (r *Run) Result(s State) Result {
	requests := inputreq.Build(r.policy, r.proof, r.maps.RequiredSpecificity)
	return Result{
		FinalCopy:  s.Text,
		Scorecard:  s.Scorecard,
		StopReason: s.Stop,
		Debug: Debug{
			Passes:              s.Passes,
			InputRequests:       requests.Requests,
			NextQuestionsPrompt: requests.Prompt,
		},
	}
}
