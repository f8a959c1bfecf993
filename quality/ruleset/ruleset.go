// Package ruleset defines the read-only rule model consumed by the quality engine:
// rule specs with their detection and action variants, rewrite maps, module policies,
// brand style and proof packs.
//
// Values in this package are built once by Compile and never mutated afterwards, so a
// Snapshot can be shared by any number of concurrent engine runs.
package ruleset

import (
	"slices"
	"strings"
)

// Severity ranks how strongly a rule violation counts against a draft.
type Severity string

const (
	SeverityHardFail Severity = "HARD_FAIL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank returns the evaluation order of s; lower ranks are evaluated first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHardFail:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// ParseSeverity canonicalizes raw severities such as "hard-fail" or "high".
func ParseSeverity(raw string) (Severity, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if normalized == "HARDFAIL" {
		normalized = string(SeverityHardFail)
	}
	s := Severity(normalized)
	switch s {
	case SeverityHardFail, SeverityHigh, SeverityMedium, SeverityLow:
		return s, true
	}
	return SeverityLow, false
}

// Dimension is one of the seven quality axes a scorecard reports.
type Dimension string

const (
	DimensionClarity           Dimension = "clarity"
	DimensionSpecificity       Dimension = "specificity"
	DimensionStructure         Dimension = "structure"
	DimensionVoiceFit          Dimension = "voice_fit"
	DimensionReadabilityRhythm Dimension = "readability_rhythm"
	DimensionCredibilitySafety Dimension = "credibility_safety"
	DimensionConversion        Dimension = "conversion"
)

// AllDimensions lists the dimensions in scorecard order.
var AllDimensions = []Dimension{
	DimensionClarity,
	DimensionSpecificity,
	DimensionStructure,
	DimensionVoiceFit,
	DimensionReadabilityRhythm,
	DimensionCredibilitySafety,
	DimensionConversion,
}

// ValidDimension reports whether d names a known dimension.
func ValidDimension(d Dimension) bool {
	return slices.Contains(AllDimensions, d)
}

// Wildcard in AppliesTo makes a rule apply to every module.
const Wildcard = "*"

// RuleSpec is one compiled rule.
type RuleSpec struct {
	ID        string
	Name      string
	Dimension Dimension
	Severity  Severity
	AppliesTo []string
	Detection Detection
	Actions   []Action
	Score     ScoreEffect
	Message   string
}

// AppliesToModule reports whether the rule is in scope for moduleKey.
func (r RuleSpec) AppliesToModule(moduleKey string) bool {
	for _, key := range r.AppliesTo {
		if key == Wildcard || key == moduleKey {
			return true
		}
	}
	return false
}

// ScoreEffect is what a triggered rule contributes to the scorecard.
// Penalty and Bonus are magnitudes; the scorecard subtracts and adds them.
type ScoreEffect struct {
	Penalty        float64
	Bonus          float64
	DimensionDelta map[Dimension]float64
}

// Lexicons are the named term lists detectors and actions look up.
type Lexicons struct {
	CTA         []string `json:"cta" yaml:"cta"`
	Cliche      []string `json:"cliche" yaml:"cliche"`
	Overclaim   []string `json:"overclaim" yaml:"overclaim"`
	Abstract    []string `json:"abstract" yaml:"abstract"`
	RepeatAllow []string `json:"repeat_allow" yaml:"repeat_allow"`
	Blocklist   []string `json:"blocklist" yaml:"blocklist"`
}

// LexiconName addresses one list inside Lexicons.
type LexiconName string

const (
	LexiconCTA         LexiconName = "cta"
	LexiconCliche      LexiconName = "cliche"
	LexiconOverclaim   LexiconName = "overclaim"
	LexiconAbstract    LexiconName = "abstract"
	LexiconRepeatAllow LexiconName = "repeat_allow"
	LexiconBlocklist   LexiconName = "blocklist"
)

// Lookup returns the named lexicon, or nil for unknown names.
func (l Lexicons) Lookup(name LexiconName) []string {
	switch name {
	case LexiconCTA:
		return l.CTA
	case LexiconCliche:
		return l.Cliche
	case LexiconOverclaim:
		return l.Overclaim
	case LexiconAbstract:
		return l.Abstract
	case LexiconRepeatAllow:
		return l.RepeatAllow
	case LexiconBlocklist:
		return l.Blocklist
	default:
		return nil
	}
}

// IndustryOverride extends the base rewrite maps for one industry.
type IndustryOverride struct {
	ExtraCTA            []string `json:"extra_cta" yaml:"extra_cta"`
	ExtraCliche         []string `json:"extra_cliche" yaml:"extra_cliche"`
	ExtraOverclaim      []string `json:"extra_overclaim" yaml:"extra_overclaim"`
	ExtraAbstract       []string `json:"extra_abstract" yaml:"extra_abstract"`
	ExtraRepeatAllow    []string `json:"extra_repeat_allow" yaml:"extra_repeat_allow"`
	ExtraBlocklist      []string `json:"extra_blocklist" yaml:"extra_blocklist"`
	RequiredDisclaimers []string `json:"required_disclaimers" yaml:"required_disclaimers"`
	RequiredSpecificity []string `json:"required_specificity" yaml:"required_specificity"`
}

// RewriteMaps are the lexicons and substitution tables shared by every run.
type RewriteMaps struct {
	Lexicons           Lexicons                    `json:"lexicons" yaml:"lexicons"`
	ClicheToSpecific   map[string]string           `json:"cliche_to_specific" yaml:"cliche_to_specific"`
	AbstractToSpecific map[string]string           `json:"abstract_to_specific" yaml:"abstract_to_specific"`
	SafeSofteners      map[string]string           `json:"safe_softeners" yaml:"safe_softeners"`
	IndustryOverrides  map[string]IndustryOverride `json:"industry_overrides" yaml:"industry_overrides"`
}

// DefaultPassCutoff applies when neither the module nor the default policy sets one.
const DefaultPassCutoff = 80.0

// ModulePolicy is the per-module quality gate.
type ModulePolicy struct {
	PassCutoff         float64  `json:"pass_cutoff" yaml:"pass_cutoff"`
	RequiredEvidence   []string `json:"required_evidence" yaml:"required_evidence"`
	RequiredStructures []string `json:"required_structures" yaml:"required_structures"`
}

// ModulePolicies maps module keys to their policies.
type ModulePolicies struct {
	Default  ModulePolicy            `json:"default" yaml:"default"`
	Modules  map[string]ModulePolicy `json:"modules" yaml:"modules"`
	HighRisk []string                `json:"high_risk" yaml:"high_risk"`
}

// Policy resolves the policy for moduleKey, falling back to Default.
func (p ModulePolicies) Policy(moduleKey string) ModulePolicy {
	return p.PolicyWithCutoff(moduleKey, DefaultPassCutoff)
}

// PolicyWithCutoff is Policy with a caller-chosen cutoff for when neither the module nor
// the default policy sets one.
func (p ModulePolicies) PolicyWithCutoff(moduleKey string, fallback float64) ModulePolicy {
	policy, ok := p.Modules[moduleKey]
	if !ok {
		policy = p.Default
	}
	if policy.PassCutoff <= 0 {
		policy.PassCutoff = p.Default.PassCutoff
	}
	if policy.PassCutoff <= 0 {
		policy.PassCutoff = fallback
	}
	if policy.PassCutoff <= 0 {
		policy.PassCutoff = DefaultPassCutoff
	}
	return policy
}

// IsHighRisk reports whether moduleKey must receive disclaimer insertion.
func (p ModulePolicies) IsHighRisk(moduleKey string) bool {
	return slices.Contains(p.HighRisk, moduleKey)
}

// BrandStyle carries the caller's brand voice hints.
type BrandStyle struct {
	Tone       string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	Formality  string   `json:"formality,omitempty" yaml:"formality,omitempty"`
	DefaultCTA string   `json:"default_cta,omitempty" yaml:"default_cta,omitempty"`
	Blacklist  []string `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
}

// ProofPack holds caller-supplied supporting facts keyed by category.
type ProofPack map[string][]string

// Well-known proof pack categories.
const (
	ProofNumbers        = "numbers"
	ProofReviews        = "reviews"
	ProofCertifications = "certifications"
	ProofAwards         = "awards"
	ProofPartners       = "partners"
	ProofPress          = "press"
	ProofProcess        = "process"
	ProofPolicies       = "policies"
)

// Items returns the non-empty entries stored under key.
func (p ProofPack) Items(key string) []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p[key]))
	for _, item := range p[key] {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Empty reports whether the pack holds no usable entry at all.
func (p ProofPack) Empty() bool {
	for key := range p {
		if len(p.Items(key)) > 0 {
			return false
		}
	}
	return true
}

// Snapshot is the compiled, immutable rule store a run evaluates against.
type Snapshot struct {
	Version     string
	Dimensions  []Dimension
	Rules       []RuleSpec
	RewriteMaps RewriteMaps
	Policies    ModulePolicies
}

// Rule returns the rule with the given id.
func (s *Snapshot) Rule(id string) (RuleSpec, bool) {
	if s == nil {
		return RuleSpec{}, false
	}
	for _, rule := range s.Rules {
		if rule.ID == id {
			return rule, true
		}
	}
	return RuleSpec{}, false
}
