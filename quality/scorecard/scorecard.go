// Package scorecard folds the rule triggers of one pass into dimension scores, a total
// and a pass verdict.
package scorecard

import (
	"time"

	"github.com/slighter12/qualityos-mcp-go/quality/ceg"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
)

const (
	// DefaultBase is the total before any delta.
	DefaultBase = 100.0
	// MaxDimension is both the starting and the highest dimension score.
	MaxDimension = 5.0
	// MinDimension is the lowest dimension score.
	MinDimension = 0.0
)

// Delta is one penalty or bonus entry.
type Delta struct {
	RuleID string  `json:"ruleId"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason,omitempty"`
}

// Scorecard is the verdict of one pass.
type Scorecard struct {
	Version         string                        `json:"version"`
	ModuleKey       string                        `json:"moduleKey"`
	IndustryKey     string                        `json:"industryKey,omitempty"`
	TotalScore      float64                       `json:"totalScore"`
	Cutoff          float64                       `json:"cutoff"`
	Pass            bool                          `json:"pass"`
	HardFail        bool                          `json:"hardFail"`
	DimensionScores map[ruleset.Dimension]float64 `json:"dimensionScores"`
	Penalties       []Delta                       `json:"penalties"`
	Bonuses         []Delta                       `json:"bonuses"`
	TriggeredRules  []string                      `json:"triggeredRules"`
	AppliedActions  []string                      `json:"appliedActions"`
	CEG             ceg.Result                    `json:"ceg"`
	Timestamp       time.Time                     `json:"timestamp"`
}

// Input is everything Build needs.
type Input struct {
	Version     string
	ModuleKey   string
	IndustryKey string
	// Base defaults to DefaultBase when zero.
	Base           float64
	Cutoff         float64
	Triggered      []ruleset.RuleSpec
	AppliedActions []string
	CEG            ceg.Result
	Now            time.Time
}

// Build computes the scorecard. A triggered HARD_FAIL rule caps the total at zero, and
// the card passes only without a hard fail, at or above the cutoff, and with a perfect
// credibility_safety score.
func Build(in Input) Scorecard {
	base := in.Base
	if base == 0 {
		base = DefaultBase
	}

	dimensions := make(map[ruleset.Dimension]float64, len(ruleset.AllDimensions))
	for _, d := range ruleset.AllDimensions {
		dimensions[d] = MaxDimension
	}

	card := Scorecard{
		Version:         in.Version,
		ModuleKey:       in.ModuleKey,
		IndustryKey:     in.IndustryKey,
		Cutoff:          in.Cutoff,
		DimensionScores: dimensions,
		Penalties:       []Delta{},
		Bonuses:         []Delta{},
		TriggeredRules:  make([]string, 0, len(in.Triggered)),
		AppliedActions:  append([]string{}, in.AppliedActions...),
		CEG:             in.CEG,
		Timestamp:       in.Now.UTC(),
	}

	delta := 0.0
	for _, rule := range in.Triggered {
		card.TriggeredRules = append(card.TriggeredRules, rule.ID)
		if rule.Severity == ruleset.SeverityHardFail {
			card.HardFail = true
		}
		if p := rule.Score.Penalty; p != 0 {
			card.Penalties = append(card.Penalties, Delta{RuleID: rule.ID, Amount: -p, Reason: rule.Message})
			delta -= p
		}
		if b := rule.Score.Bonus; b != 0 {
			card.Bonuses = append(card.Bonuses, Delta{RuleID: rule.ID, Amount: b, Reason: rule.Message})
			delta += b
		}
		for d, v := range rule.Score.DimensionDelta {
			if _, ok := dimensions[d]; ok {
				dimensions[d] += v
			}
		}
	}

	for d, v := range dimensions {
		dimensions[d] = Clamp(v)
	}

	card.TotalScore = base + delta
	if card.HardFail {
		card.TotalScore = min(card.TotalScore, 0)
	}
	card.Pass = Passes(card)
	return card
}

// Clamp bounds a dimension score to [MinDimension, MaxDimension].
func Clamp(v float64) float64 {
	return max(MinDimension, min(MaxDimension, v))
}

// Passes is the pass predicate.
func Passes(card Scorecard) bool {
	return !card.HardFail &&
		card.TotalScore >= card.Cutoff &&
		card.DimensionScores[ruleset.DimensionCredibilitySafety] == MaxDimension
}
