// Package textkit holds the side-effect free text primitives the quality engine is
// built on: sentence segmentation, whitespace normalization, literal term counting and
// list-item detection.
package textkit

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	listItemPattern  = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.)])\s+`)
	horizontalSpaces = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
)

// Segment is one sentence plus the separator that followed it in the source text.
// Joining every Text+Sep in order reproduces the input exactly.
type Segment struct {
	Text string
	Sep  string
}

// Segments splits text on terminal punctuation followed by whitespace, or on newlines.
// Text without any split point comes back as a single segment.
func Segments(text string) []Segment {
	if text == "" {
		return nil
	}

	var out []Segment
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == '\n':
			end := i
			sepEnd := consumeSpace(text, i)
			out = append(out, Segment{Text: text[start:end], Sep: text[end:sepEnd]})
			start = sepEnd
			i = sepEnd
			continue
		case r == '.' && isOrdinal(text[start:i]):
			// "1. item" is a numbered list marker, not a sentence end.
			i += size
			continue
		case isTerminal(r):
			// Terminal runs such as "?!" or "..." stay with the sentence.
			j := i + size
			for j < len(text) {
				next, nsize := utf8.DecodeRuneInString(text[j:])
				if !isTerminal(next) && !isClosing(next) {
					break
				}
				j += nsize
			}
			if j < len(text) {
				next, _ := utf8.DecodeRuneInString(text[j:])
				if unicode.IsSpace(next) {
					sepEnd := consumeSpace(text, j)
					out = append(out, Segment{Text: text[start:j], Sep: text[j:sepEnd]})
					start = sepEnd
					i = sepEnd
					continue
				}
			}
			i = j
			continue
		}
		i += size
	}
	if start < len(text) {
		out = append(out, Segment{Text: text[start:]})
	}
	return out
}

// Join reassembles segments produced by Segments.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
		b.WriteString(seg.Sep)
	}
	return b.String()
}

// Sentences returns the trimmed, non-empty sentences of text.
func Sentences(text string) []string {
	segments := Segments(text)
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if trimmed := strings.TrimSpace(seg.Text); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func consumeSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func isOrdinal(prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return false
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '…', '！', '？':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』':
		return true
	}
	return false
}

// NormalizeSpace applies NFC, unifies line endings, collapses horizontal whitespace and
// trims every line.
func NormalizeSpace(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpaces.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// CountTerms counts case-insensitive literal occurrences of every term in text.
func CountTerms(text string, terms []string) int {
	lowered := strings.ToLower(text)
	total := 0
	for _, term := range terms {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		total += strings.Count(lowered, needle)
	}
	return total
}

// ContainsAny reports whether text contains at least one of terms, ignoring case.
func ContainsAny(text string, terms []string) bool {
	lowered := strings.ToLower(text)
	for _, term := range terms {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle != "" && strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}

// CountMatches counts non-overlapping matches of every pattern in text.
func CountMatches(text string, patterns []*regexp.Regexp) int {
	total := 0
	for _, p := range patterns {
		if p == nil {
			continue
		}
		total += len(p.FindAllStringIndex(text, -1))
	}
	return total
}

// LiteralPattern compiles term as a case-insensitive literal.
func LiteralPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
}

// IsListItem reports whether line is a bullet or numbered list entry.
func IsListItem(line string) bool {
	return listItemPattern.MatchString(line)
}

// ListItems returns the list-entry lines of text.
func ListItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if IsListItem(line) {
			out = append(out, line)
		}
	}
	return out
}

// WordCount counts whitespace separated words.
func WordCount(sentence string) int {
	return len(strings.Fields(sentence))
}

// Tokens lower-cases text, strips punctuation and splits on whitespace.
func Tokens(text string) []string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Fields(stripped)
}

// Dedupe drops empty and repeated entries, preserving first-seen order.
func Dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
