package ruleset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle is the parsed configuration object the engine consumes:
// {rules: {version, dimensions, rules[]}, rewrite_maps, module_policies}.
type Bundle struct {
	Rules          RulesDocument  `json:"rules" yaml:"rules"`
	RewriteMaps    RewriteMaps    `json:"rewrite_maps" yaml:"rewrite_maps"`
	ModulePolicies ModulePolicies `json:"module_policies" yaml:"module_policies"`
}

// RulesDocument is the "rules" section of a bundle.
type RulesDocument struct {
	Version    string     `json:"version" yaml:"version"`
	Dimensions []string   `json:"dimensions" yaml:"dimensions"`
	Rules      []WireRule `json:"rules" yaml:"rules"`
}

// WireRule is a rule before compilation.
type WireRule struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Dimension string          `json:"dimension" yaml:"dimension"`
	Severity  string          `json:"severity" yaml:"severity"`
	AppliesTo []string        `json:"applies_to" yaml:"applies_to"`
	Detect    WireDetection   `json:"detect" yaml:"detect"`
	Actions   []WireAction    `json:"actions" yaml:"actions"`
	Score     WireScoreEffect `json:"score" yaml:"score"`
	Message   string          `json:"message" yaml:"message"`
}

// WireDetection is a detection before compilation. Composite types carry Specs.
type WireDetection struct {
	Type   string          `json:"type" yaml:"type"`
	Params map[string]any  `json:"params,omitempty" yaml:"params,omitempty"`
	Specs  []WireDetection `json:"specs,omitempty" yaml:"specs,omitempty"`
}

// WireAction is an action before compilation.
type WireAction struct {
	Type     string         `json:"type" yaml:"type"`
	Strategy string         `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Position string         `json:"position,omitempty" yaml:"position,omitempty"`
	Template string         `json:"template,omitempty" yaml:"template,omitempty"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// WireScoreEffect is a score effect before compilation.
type WireScoreEffect struct {
	Penalty        float64            `json:"penalty" yaml:"penalty"`
	Bonus          float64            `json:"bonus" yaml:"bonus"`
	DimensionDelta map[string]float64 `json:"dimension_delta,omitempty" yaml:"dimension_delta,omitempty"`
}

// Format selects the bundle encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the bundle format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// DecodeBundle parses one bundle document.
func DecodeBundle(data []byte, format Format) (Bundle, error) {
	var bundle Bundle
	switch format {
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&bundle); err != nil {
			return Bundle{}, fmt.Errorf("decode json bundle: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &bundle); err != nil {
			return Bundle{}, fmt.Errorf("decode yaml bundle: %w", err)
		}
	default:
		return Bundle{}, fmt.Errorf("unsupported bundle format %q", format)
	}
	return bundle, nil
}

// MergeBundles folds bundle fragments in order. Lexicons and lists are appended,
// table entries of later fragments win, and a rule id seen twice keeps its first
// definition and reports the duplicate.
func MergeBundles(fragments ...Bundle) (Bundle, []string) {
	var merged Bundle
	var warnings []string
	seenRules := make(map[string]struct{})

	for _, fragment := range fragments {
		if merged.Rules.Version == "" {
			merged.Rules.Version = strings.TrimSpace(fragment.Rules.Version)
		}
		merged.Rules.Dimensions = append(merged.Rules.Dimensions, fragment.Rules.Dimensions...)
		for _, rule := range fragment.Rules.Rules {
			id := strings.TrimSpace(rule.ID)
			if id != "" {
				if _, dup := seenRules[id]; dup {
					warnings = append(warnings, fmt.Sprintf("duplicate rule id %q", id))
					continue
				}
				seenRules[id] = struct{}{}
			}
			merged.Rules.Rules = append(merged.Rules.Rules, rule)
		}

		merged.RewriteMaps = mergeRewriteMaps(merged.RewriteMaps, fragment.RewriteMaps)
		merged.ModulePolicies = mergePolicies(merged.ModulePolicies, fragment.ModulePolicies)
	}
	return merged, warnings
}

func mergeRewriteMaps(base, next RewriteMaps) RewriteMaps {
	base.Lexicons = Lexicons{
		CTA:         append(base.Lexicons.CTA, next.Lexicons.CTA...),
		Cliche:      append(base.Lexicons.Cliche, next.Lexicons.Cliche...),
		Overclaim:   append(base.Lexicons.Overclaim, next.Lexicons.Overclaim...),
		Abstract:    append(base.Lexicons.Abstract, next.Lexicons.Abstract...),
		RepeatAllow: append(base.Lexicons.RepeatAllow, next.Lexicons.RepeatAllow...),
		Blocklist:   append(base.Lexicons.Blocklist, next.Lexicons.Blocklist...),
	}
	base.ClicheToSpecific = mergeTable(base.ClicheToSpecific, next.ClicheToSpecific)
	base.AbstractToSpecific = mergeTable(base.AbstractToSpecific, next.AbstractToSpecific)
	base.SafeSofteners = mergeTable(base.SafeSofteners, next.SafeSofteners)
	if len(next.IndustryOverrides) > 0 {
		if base.IndustryOverrides == nil {
			base.IndustryOverrides = make(map[string]IndustryOverride, len(next.IndustryOverrides))
		}
		maps.Copy(base.IndustryOverrides, next.IndustryOverrides)
	}
	return base
}

func mergeTable(base, next map[string]string) map[string]string {
	if len(next) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]string, len(next))
	}
	maps.Copy(base, next)
	return base
}

func mergePolicies(base, next ModulePolicies) ModulePolicies {
	if next.Default.PassCutoff > 0 || len(next.Default.RequiredEvidence) > 0 || len(next.Default.RequiredStructures) > 0 {
		base.Default = next.Default
	}
	if len(next.Modules) > 0 {
		if base.Modules == nil {
			base.Modules = make(map[string]ModulePolicy, len(next.Modules))
		}
		maps.Copy(base.Modules, next.Modules)
	}
	base.HighRisk = append(base.HighRisk, next.HighRisk...)
	return base
}
