package quality

import (
	"strings"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
)

// RuleSummary is the client-facing view of a compiled rule.
type RuleSummary struct {
	ID             string                        `json:"id"`
	Name           string                        `json:"name,omitempty"`
	Dimension      ruleset.Dimension             `json:"dimension,omitempty"`
	Severity       ruleset.Severity              `json:"severity"`
	AppliesTo      []string                      `json:"appliesTo"`
	Detection      string                        `json:"detection"`
	Actions        []string                      `json:"actions"`
	Penalty        float64                       `json:"penalty"`
	Bonus          float64                       `json:"bonus"`
	DimensionDelta map[ruleset.Dimension]float64 `json:"dimensionDelta,omitempty"`
	Message        string                        `json:"message,omitempty"`
}

// RuleListing is the result of listing the rules of a snapshot.
type RuleListing struct {
	Version    string              `json:"version"`
	Dimensions []ruleset.Dimension `json:"dimensions"`
	Rules      []RuleSummary       `json:"rules"`
}

// RuleFilter narrows a listing. Zero fields match everything.
type RuleFilter struct {
	ModuleKey string `json:"moduleKey,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Dimension string `json:"dimension,omitempty"`
}

func (f RuleFilter) matches(rule ruleset.RuleSpec) bool {
	if key := strings.TrimSpace(f.ModuleKey); key != "" && !rule.AppliesToModule(key) {
		return false
	}
	if severity := strings.TrimSpace(f.Severity); severity != "" && !strings.EqualFold(severity, string(rule.Severity)) {
		return false
	}
	if dimension := strings.TrimSpace(f.Dimension); dimension != "" && !strings.EqualFold(dimension, string(rule.Dimension)) {
		return false
	}
	return true
}

// ListRules summarizes the rules of snapshot that match filter, in snapshot order.
func ListRules(snapshot *ruleset.Snapshot, filter RuleFilter) RuleListing {
	listing := RuleListing{
		Version:    snapshot.Version,
		Dimensions: snapshot.Dimensions,
		Rules:      make([]RuleSummary, 0, len(snapshot.Rules)),
	}
	for _, rule := range snapshot.Rules {
		if !filter.matches(rule) {
			continue
		}
		listing.Rules = append(listing.Rules, summarizeRule(rule))
	}
	return listing
}

func summarizeRule(rule ruleset.RuleSpec) RuleSummary {
	actions := make([]string, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		actions = append(actions, ruleset.Describe(action))
	}
	detection := ""
	if rule.Detection != nil {
		detection = rule.Detection.DetectionType()
	}
	return RuleSummary{
		ID:             rule.ID,
		Name:           rule.Name,
		Dimension:      rule.Dimension,
		Severity:       rule.Severity,
		AppliesTo:      rule.AppliesTo,
		Detection:      detection,
		Actions:        actions,
		Penalty:        rule.Score.Penalty,
		Bonus:          rule.Score.Bonus,
		DimensionDelta: rule.Score.DimensionDelta,
		Message:        rule.Message,
	}
}
