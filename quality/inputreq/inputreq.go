// Package inputreq turns unmet module requirements into questions for the caller.
package inputreq

import (
	"fmt"
	"strings"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// PromptHeader opens the combined prompt.
const PromptHeader = "더 정확한 카피를 위해 아래 정보를 알려주세요."

// aliases maps requirement spellings to proof pack keys.
var aliases = map[string]string{
	"number":         ruleset.ProofNumbers,
	"numbers":        ruleset.ProofNumbers,
	"stats":          ruleset.ProofNumbers,
	"metrics":        ruleset.ProofNumbers,
	"review":         ruleset.ProofReviews,
	"reviews":        ruleset.ProofReviews,
	"testimonials":   ruleset.ProofReviews,
	"cert":           ruleset.ProofCertifications,
	"certs":          ruleset.ProofCertifications,
	"certification":  ruleset.ProofCertifications,
	"certifications": ruleset.ProofCertifications,
	"award":          ruleset.ProofAwards,
	"awards":         ruleset.ProofAwards,
	"partner":        ruleset.ProofPartners,
	"partners":       ruleset.ProofPartners,
	"press":          ruleset.ProofPress,
	"media":          ruleset.ProofPress,
	"process":        ruleset.ProofProcess,
	"steps":          ruleset.ProofProcess,
	"policy":         ruleset.ProofPolicies,
	"policies":       ruleset.ProofPolicies,
}

var questions = map[string]string{
	ruleset.ProofNumbers:        "성과를 보여줄 수 있는 구체적인 수치(고객 수, 만족도, 기간 등)가 있나요?",
	ruleset.ProofReviews:        "인용할 수 있는 고객 후기나 리뷰가 있나요?",
	ruleset.ProofCertifications: "보유한 인증이나 자격이 있나요?",
	ruleset.ProofAwards:         "수상 이력이 있나요?",
	ruleset.ProofPartners:       "함께하는 파트너사나 제휴처가 있나요?",
	ruleset.ProofPress:          "언론 보도나 소개된 매체가 있나요?",
	ruleset.ProofProcess:        "서비스가 진행되는 단계나 절차를 알려주세요.",
	ruleset.ProofPolicies:       "환불, 보증 등 고객 정책을 알려주세요.",
}

// Result is the question list plus the combined prompt. Both are empty when nothing is
// missing.
type Result struct {
	Requests []string `json:"inputRequests"`
	Prompt   string   `json:"nextQuestionsPrompt"`
}

// CanonicalKey resolves a requirement name to its proof pack key.
func CanonicalKey(requirement string) string {
	key := strings.ToLower(strings.TrimSpace(requirement))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return key
}

// Build lists one question per unmet evidence type, structure and specificity topic.
func Build(policy ruleset.ModulePolicy, proof ruleset.ProofPack, specificity []string) Result {
	var asks []string

	for _, requirement := range textkit.Dedupe(policy.RequiredEvidence) {
		if !satisfied(proof, requirement) {
			asks = append(asks, question(requirement))
		}
	}
	for _, structure := range textkit.Dedupe(policy.RequiredStructures) {
		if !satisfied(proof, structure) {
			asks = append(asks, fmt.Sprintf("'%s' 항목에 들어갈 내용을 알려주세요.", structure))
		}
	}
	for _, topic := range textkit.Dedupe(specificity) {
		if !mentioned(proof, topic) {
			asks = append(asks, fmt.Sprintf("'%s'에 대한 구체적인 정보를 알려주세요.", topic))
		}
	}

	out := Result{Requests: make([]string, 0, len(asks))}
	for i, ask := range asks {
		out.Requests = append(out.Requests, fmt.Sprintf("%d. %s", i+1, ask))
	}
	if len(out.Requests) > 0 {
		out.Prompt = PromptHeader + "\n" + strings.Join(out.Requests, "\n")
	}
	return out
}

func satisfied(proof ruleset.ProofPack, requirement string) bool {
	key := CanonicalKey(requirement)
	if len(proof.Items(key)) > 0 {
		return true
	}
	// Callers may key the pack with the raw requirement spelling.
	return len(proof.Items(strings.TrimSpace(requirement))) > 0
}

func mentioned(proof ruleset.ProofPack, topic string) bool {
	for key := range proof {
		if textkit.ContainsAny(strings.Join(proof.Items(key), "\n"), []string{topic}) {
			return true
		}
	}
	return false
}

func question(requirement string) string {
	if q, ok := questions[CanonicalKey(requirement)]; ok {
		return q
	}
	return fmt.Sprintf("'%s' 관련 근거 자료를 알려주세요.", requirement)
}
