package engine

import (
	"regexp"
	"slices"
	"strings"

	"github.com/slighter12/qualityos-mcp-go/quality/action"
	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// MaxEvidencePicks caps the proof items quoted in an evidence line.
const MaxEvidencePicks = 3

const (
	evidencePrefix     = "근거: "
	verificationPrefix = "검증 방법: "
)

var evidenceMarker = regexp.MustCompile(`(?mi)^\s*(?:근거|검증 방법|evidence|verification)\s*:`)

// evidenceCategories are tried in order when picking proof items.
var evidenceCategories = []string{
	ruleset.ProofNumbers,
	ruleset.ProofCertifications,
	ruleset.ProofAwards,
	ruleset.ProofPartners,
	ruleset.ProofPress,
	ruleset.ProofReviews,
}

// HasEvidenceMarker reports whether text already holds an evidence or verification line.
func HasEvidenceMarker(text string) bool {
	return evidenceMarker.MatchString(text)
}

type enforcer func(text string) (string, string)

func (r *Run) enforceSingleCTA(text string) (string, string) {
	return action.MergeCTA(text, r.maps, r.actionCtx.DefaultCTA), "GLOBAL:" + ruleset.ActionMergeCTA
}

func (r *Run) enforceEvidence(text string) (string, string) {
	if HasEvidenceMarker(text) {
		return text, ""
	}
	var line string
	if picks := r.evidencePicks(); len(picks) > 0 {
		line = evidencePrefix + strings.Join(picks, " · ")
	} else {
		line = verificationPrefix + r.verificationSentence()
	}
	return InsertLineBeforeCTA(text, line, r.maps), "GLOBAL:INSERT_EVIDENCE"
}

func (r *Run) enforceDisclaimers(text string) (string, string) {
	if !r.highRisk {
		return text, ""
	}
	for _, disclaimer := range r.maps.RequiredDisclaimers {
		if strings.Contains(text, disclaimer) {
			continue
		}
		text = InsertLineBeforeCTA(text, disclaimer, r.maps)
	}
	return text, "GLOBAL:INSERT_DISCLAIMER"
}

// withoutCTA drops the items that carry a CTA term, so an inserted evidence or
// verification line never competes with the draft's CTA.
func (r *Run) withoutCTA(items []string) []string {
	var out []string
	for _, item := range items {
		if !textkit.ContainsAny(item, r.maps.Lexicons.CTA) {
			out = append(out, textkit.NormalizeSpace(item))
		}
	}
	return textkit.Dedupe(out)
}

// evidencePicks takes the first item of every category in order, then second items,
// until MaxEvidencePicks.
func (r *Run) evidencePicks() []string {
	columns := make([][]string, 0, len(evidenceCategories))
	depth := 0
	for _, category := range evidenceCategories {
		items := r.withoutCTA(r.proof.Items(category))
		columns = append(columns, items)
		depth = max(depth, len(items))
	}

	var picks []string
	for row := 0; row < depth; row++ {
		for _, items := range columns {
			if row >= len(items) {
				continue
			}
			picks = append(picks, items[row])
			if len(picks) == MaxEvidencePicks {
				return picks
			}
		}
	}
	return picks
}

func (r *Run) verificationSentence() string {
	topics := r.withoutCTA(r.maps.RequiredSpecificity)
	steps := r.withoutCTA(slices.Concat(r.proof.Items(ruleset.ProofProcess), r.proof.Items(ruleset.ProofPolicies)))
	switch {
	case len(steps) > 0 && len(topics) > 0:
		return strings.Join(steps, " → ") + " 순서로 진행되며, " + strings.Join(topics, ", ") + " 기준은 자료로 확인하실 수 있습니다."
	case len(steps) > 0:
		return strings.Join(steps, " → ") + " 순서로 진행되며, 단계마다 결과를 확인하실 수 있습니다."
	case len(topics) > 0:
		return strings.Join(topics, ", ") + " 기준은 자료로 확인하실 수 있습니다."
	default:
		return "진행 기준과 결과는 자료로 확인하실 수 있습니다."
	}
}

// InsertLineBeforeCTA puts line on its own line directly above the first CTA sentence,
// or at the end when the text has no CTA.
func InsertLineBeforeCTA(text, line string, maps lexicon.Effective) string {
	segments := textkit.Segments(text)
	for i, isCTA := range maps.CTAFlags(segments) {
		if !isCTA {
			continue
		}
		out := make([]textkit.Segment, 0, len(segments)+1)
		out = append(out, segments[:i]...)
		if i > 0 && !strings.Contains(out[i-1].Sep, "\n") {
			out[i-1].Sep = "\n"
		}
		out = append(out, textkit.Segment{Text: line, Sep: "\n"})
		out = append(out, segments[i:]...)
		return textkit.Join(out)
	}
	trimmed := strings.TrimRight(text, " \t\n")
	if trimmed == "" {
		return line
	}
	return trimmed + "\n" + line
}
