// Package detect evaluates rule detections against a text. Every detector is a pure
// predicate; a true result means the rule is violated.
package detect

import (
	"strings"
	"unicode/utf8"

	"github.com/slighter12/qualityos-mcp-go/quality/ceg"
	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// Result is the outcome of evaluating one detection tree.
type Result struct {
	Triggered bool
	// Unhandled lists every variant in the tree that could not be evaluated.
	Unhandled []ruleset.UnhandledDetection
}

// Handled reports whether every variant in the tree was evaluated.
func (r Result) Handled() bool {
	return len(r.Unhandled) == 0
}

// Evaluate runs d against text with the effective maps of the run.
func Evaluate(d ruleset.Detection, text string, maps lexicon.Effective) Result {
	switch v := d.(type) {
	case ruleset.PatternAny:
		return hit(textkit.CountMatches(text, v.Patterns) > 0)
	case ruleset.PatternNone:
		return hit(textkit.CountMatches(text, v.Patterns) == 0)
	case ruleset.PatternCountBelow:
		return hit(textkit.CountMatches(text, v.Patterns) < v.Min)
	case ruleset.LexiconCountAtLeast:
		return hit(textkit.CountTerms(text, maps.Lexicons.Lookup(v.Lexicon)) >= v.Min)
	case ruleset.CTACountExceeds:
		return hit(CTASentenceCount(text, maps) > v.Max)
	case ruleset.CTANearEndMissing:
		return hit(ctaNearEndMissing(text, v.Window, maps))
	case ruleset.SentenceWordsExceed:
		return hit(longestSentence(text) > v.Max)
	case ruleset.EndingRunAtLeast:
		return hit(v.Threshold > 0 && LongestEndingRun(text, v.Endings) >= v.Threshold)
	case ruleset.WordRepetitionAtLeast:
		ignore := append(append([]string(nil), v.Ignore...), maps.Lexicons.RepeatAllow...)
		return hit(v.Threshold > 0 && MaxTokenCount(text, ignore) >= v.Threshold)
	case ruleset.ListItemsExceed:
		return hit(len(textkit.ListItems(text)) > v.Max)
	case ruleset.QAMinimumGate:
		return hit(qaGateFails(text, v))
	case ruleset.ClaimCountExceeds:
		return hit(ceg.Count(text) > v.Max)
	case ruleset.AllOf:
		return composite(v.Specs, text, maps, true)
	case ruleset.AnyOf:
		return composite(v.Specs, text, maps, false)
	case ruleset.UnhandledDetection:
		return Result{Unhandled: []ruleset.UnhandledDetection{v}}
	default:
		return Result{Unhandled: []ruleset.UnhandledDetection{{Reason: "unsupported detection value"}}}
	}
}

func hit(triggered bool) Result {
	return Result{Triggered: triggered}
}

func composite(specs []ruleset.Detection, text string, maps lexicon.Effective, all bool) Result {
	if len(specs) == 0 {
		return Result{}
	}
	var out Result
	triggered := all
	for _, spec := range specs {
		nested := Evaluate(spec, text, maps)
		out.Unhandled = append(out.Unhandled, nested.Unhandled...)
		if all {
			triggered = triggered && nested.Triggered
		} else {
			triggered = triggered || nested.Triggered
		}
	}
	out.Triggered = triggered
	return out
}

// CTASentenceCount counts the sentences that count as calls to action under maps.
func CTASentenceCount(text string, maps lexicon.Effective) int {
	return maps.CTACount(text)
}

// With an empty CTA lexicon no sentence can be a CTA, so the window always misses.
func ctaNearEndMissing(text string, window int, maps lexicon.Effective) bool {
	segments := textkit.Segments(text)
	flags := maps.CTAFlags(segments)
	var sentences []bool
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" {
			sentences = append(sentences, flags[i])
		}
	}
	if window > 0 && len(sentences) > window {
		sentences = sentences[len(sentences)-window:]
	}
	for _, isCTA := range sentences {
		if isCTA {
			return false
		}
	}
	return true
}

func longestSentence(text string) int {
	longest := 0
	for _, sentence := range textkit.Sentences(text) {
		longest = max(longest, textkit.WordCount(sentence))
	}
	return longest
}

// EndingOf returns the first configured ending sentence terminates with, or "".
func EndingOf(sentence string, endings []string) string {
	sentence = strings.TrimSpace(sentence)
	for _, ending := range endings {
		if ending != "" && strings.HasSuffix(sentence, ending) {
			return ending
		}
	}
	return ""
}

// LongestEndingRun is the longest run of consecutive sentences sharing one non-empty ending.
func LongestEndingRun(text string, endings []string) int {
	longest, run := 0, 0
	previous := ""
	for _, sentence := range textkit.Sentences(text) {
		ending := EndingOf(sentence, endings)
		switch {
		case ending == "":
			run = 0
		case ending == previous:
			run++
		default:
			run = 1
		}
		previous = ending
		longest = max(longest, run)
	}
	return longest
}

// MaxTokenCount returns the highest occurrence count of any token longer than one rune
// that is not in ignore.
func MaxTokenCount(text string, ignore []string) int {
	skip := make(map[string]struct{}, len(ignore))
	for _, term := range ignore {
		skip[strings.ToLower(strings.TrimSpace(term))] = struct{}{}
	}
	counts := make(map[string]int)
	highest := 0
	for _, token := range textkit.Tokens(text) {
		if utf8.RuneCountInString(token) <= 1 {
			continue
		}
		if _, ok := skip[token]; ok {
			continue
		}
		counts[token]++
		highest = max(highest, counts[token])
	}
	return highest
}

// Questions are counted per line so a "Q." prefix and its question mark count once.
func qaGateFails(text string, gate ruleset.QAMinimumGate) bool {
	questions := 0
	if gate.QuestionMarker != nil {
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" && gate.QuestionMarker.MatchString(line) {
				questions++
			}
		}
	}
	if questions < gate.MinQuestions {
		return true
	}
	if gate.MinTopics <= 0 {
		return false
	}
	covered := 0
	for _, topic := range textkit.Dedupe(gate.Topics) {
		if textkit.ContainsAny(text, []string{topic}) {
			covered++
		}
	}
	return covered < gate.MinTopics
}
