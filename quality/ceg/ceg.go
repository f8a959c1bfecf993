// Package ceg extracts the claim-evidence graph of a text: claim sentences, evidence
// sentences, and the claims no evidence sentence backs.
package ceg

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// MaxEntries caps every list of a Result.
const MaxEntries = 8

// MaxClaimRunes is the exclusive length limit for a claim sentence.
const MaxClaimRunes = 120

var declarativeEnding = regexp.MustCompile(`(?:[다요][.!]?|[.!])["'”’)\]]*$`)

// ProofMarkers flag a sentence as evidence.
var ProofMarkers = []string{
	"인증", "수상", "후기", "리뷰", "보도", "언론", "파트너", "제휴",
	"certified", "certification", "award", "review", "press", "partner",
}

// Result is the claim-evidence graph of one text.
type Result struct {
	Claims         []string `json:"claims"`
	Evidence       []string `json:"evidence"`
	UnlinkedClaims []string `json:"unlinkedClaims"`
}

// Extract classifies every sentence of text. A claim is linked only when the exact same
// sentence is also classified as evidence.
func Extract(text string) Result {
	var claims, evidence []string
	for _, sentence := range textkit.Sentences(text) {
		if IsClaim(sentence) {
			claims = append(claims, sentence)
		}
		if IsEvidence(sentence) {
			evidence = append(evidence, sentence)
		}
	}
	claims = textkit.Dedupe(claims)
	evidence = textkit.Dedupe(evidence)

	unlinked := make([]string, 0, len(claims))
	for _, claim := range claims {
		if !slices.Contains(evidence, claim) {
			unlinked = append(unlinked, claim)
		}
	}

	return Result{
		Claims:         capped(claims),
		Evidence:       capped(evidence),
		UnlinkedClaims: capped(unlinked),
	}
}

// IsClaim reports whether sentence reads as a short declarative statement.
func IsClaim(sentence string) bool {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" || utf8.RuneCountInString(sentence) >= MaxClaimRunes {
		return false
	}
	return declarativeEnding.MatchString(sentence)
}

// IsEvidence reports whether sentence carries a number or a proof marker.
func IsEvidence(sentence string) bool {
	if strings.IndexFunc(sentence, unicode.IsDigit) >= 0 {
		return true
	}
	return textkit.ContainsAny(sentence, ProofMarkers)
}

// Count returns the number of distinct claims in text without the cap.
func Count(text string) int {
	var claims []string
	for _, sentence := range textkit.Sentences(text) {
		if IsClaim(sentence) {
			claims = append(claims, sentence)
		}
	}
	return len(textkit.Dedupe(claims))
}

func capped(values []string) []string {
	if values == nil {
		return []string{}
	}
	if len(values) > MaxEntries {
		return values[:MaxEntries]
	}
	return values
}
