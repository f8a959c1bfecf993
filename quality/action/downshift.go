package action

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// SoftenerFallbackKey selects the template used for overclaim terms without their own entry.
const SoftenerFallbackKey = "*"

// ReduceKeepSentences is the sentence budget of reduce_to_one_claim: the first claim
// plus at most two supporting sentences.
const ReduceKeepSentences = 3

var connectives = []string{
	"그리고", "하지만", "또한", "그래서", "그러나", "게다가", "또는",
	"and", "but", "which", "so", "because", "while",
}

func downshift(a ruleset.Downshift, text string, ctx Context) (string, bool) {
	switch a.Strategy {
	case ruleset.StrategySafeSoftener:
		return SafeSoften(text, ctx.Maps.Lexicons.Overclaim, ctx.Maps.SafeSofteners), true
	case ruleset.StrategySplitSentence:
		return SplitLongSentences(text, orDefault(a.MaxWords, ruleset.DefaultSplitMaxWords)), true
	case ruleset.StrategyVaryEndings:
		return VaryEndings(text, a.Ending, a.Alternates, orDefault(a.RunLength, ruleset.DefaultEndingRun)), true
	case ruleset.StrategyDeDuplicate:
		return DeDuplicate(text), true
	case ruleset.StrategyTrimList:
		return TrimList(text, orDefault(a.MaxItems, ruleset.DefaultMaxListItems)), true
	case ruleset.StrategyReduceToOneClaim:
		return KeepFirstSentences(text, ReduceKeepSentences), true
	case ruleset.StrategySuperlativeToStandard:
		return applyRewrites(text, superlativeRewrites), true
	case ruleset.StrategyRankToStandard:
		return applyRewrites(text, rankRewrites), true
	case ruleset.StrategyCalmPunctuation:
		return applyRewrites(text, punctuationRewrites), true
	default:
		return text, false
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// SafeSoften replaces each overclaim term with its softener template, or with the
// fallback template. Terms without any template are left alone.
func SafeSoften(text string, overclaims []string, softeners map[string]string) string {
	if len(softeners) == 0 {
		return text
	}
	table := make(map[string]string)
	for _, term := range textkit.Dedupe(overclaims) {
		if !strings.Contains(text, term) {
			continue
		}
		template, ok := softeners[term]
		if !ok {
			template, ok = softeners[SoftenerFallbackKey]
		}
		if ok {
			table[term] = template
		}
	}
	return ReplaceTable(text, table, longestFirst)
}

// SplitLongSentences breaks sentences over maxWords words at commas and before
// connective words. Sentences without a split point are kept whole.
func SplitLongSentences(text string, maxWords int) string {
	segments := textkit.Segments(text)
	changed := false
	for i, seg := range segments {
		if textkit.WordCount(seg.Text) <= maxWords {
			continue
		}
		if split, ok := splitSentence(seg.Text); ok {
			segments[i].Text = split
			changed = true
		}
	}
	if !changed {
		return text
	}
	return textkit.Join(segments)
}

func splitSentence(sentence string) (string, bool) {
	words := strings.Fields(sentence)
	var chunks [][]string
	var current []string
	for i, word := range words {
		if i > 0 && len(current) > 0 && slices.Contains(connectives, strings.ToLower(word)) {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, word)
		if strings.HasSuffix(word, ",") && i < len(words)-1 {
			current[len(current)-1] = strings.TrimSuffix(word, ",")
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	if len(chunks) < 2 {
		return sentence, false
	}

	terminal := trailingTerminal(sentence)
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		part := strings.Join(chunk, " ")
		if i < len(chunks)-1 {
			part = strings.TrimRight(part, ",;:") + terminal
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " "), true
}

func trailingTerminal(sentence string) string {
	r, _ := utf8.DecodeLastRuneInString(strings.TrimSpace(sentence))
	switch r {
	case '!', '?', '。', '！', '？':
		return string(r)
	}
	return "."
}

// VaryEndings rewrites a sentence ending in ending once runLength consecutive sentences
// before it already ended that way, then restarts the run.
func VaryEndings(text, ending string, alternates []string, runLength int) string {
	if ending == "" || len(alternates) == 0 {
		return text
	}
	segments := textkit.Segments(text)
	run, next := 0, 0
	changed := false
	for i, seg := range segments {
		trimmed := strings.TrimRight(seg.Text, " \t")
		if !strings.HasSuffix(trimmed, ending) {
			run = 0
			continue
		}
		if run < runLength {
			run++
			continue
		}
		alternate := alternates[next%len(alternates)]
		next++
		segments[i].Text = strings.TrimSuffix(trimmed, ending) + alternate
		changed = true
		run = 0
	}
	if !changed {
		return text
	}
	return textkit.Join(segments)
}

// DeDuplicate collapses immediately repeated words and immediately repeated two-word
// phrases, line by line.
func DeDuplicate(text string) string {
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		words := strings.Fields(line)
		collapsed := collapsePhrases(collapseWords(words))
		if len(collapsed) == len(words) {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = indent + strings.Join(collapsed, " ")
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

func sameWord(a, b string) bool {
	return strings.EqualFold(strings.Trim(a, ",.!?"), strings.Trim(b, ",.!?")) && strings.Trim(a, ",.!?") != ""
}

func collapseWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, word := range words {
		if n := len(out); n > 0 && sameWord(out[n-1], word) {
			// Keep the trailing punctuation of the later copy.
			out[n-1] = word
			continue
		}
		out = append(out, word)
	}
	return out
}

func collapsePhrases(words []string) []string {
	out := make([]string, 0, len(words))
	for _, word := range words {
		out = append(out, word)
		if n := len(out); n >= 4 && sameWord(out[n-4], out[n-2]) && sameWord(out[n-3], out[n-1]) {
			out[n-3] = out[n-1]
			out = out[:n-2]
		}
	}
	return out
}

// TrimList keeps the first maxItems list entries and drops the rest. Other lines pass
// through untouched.
func TrimList(text string, maxItems int) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	items := 0
	for _, line := range lines {
		if textkit.IsListItem(line) {
			items++
			if items > maxItems {
				continue
			}
		}
		out = append(out, line)
	}
	if items <= maxItems {
		return text
	}
	return strings.Join(out, "\n")
}

// KeepFirstSentences truncates text after n sentences.
func KeepFirstSentences(text string, n int) string {
	segments := textkit.Segments(text)
	kept := 0
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		kept++
		if kept == n {
			if i == len(segments)-1 {
				return text
			}
			return strings.TrimSpace(textkit.Join(segments[:i+1]))
		}
	}
	return text
}
