package lexicon

import (
	"strings"

	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// CTAFlags marks the segments that count as call-to-action sentences. A line that is
// exactly one of the required disclaimers never counts, whatever terms it carries.
func (e Effective) CTAFlags(segments []textkit.Segment) []bool {
	flags := make([]bool, len(segments))
	start := 0
	for i, seg := range segments {
		if i < len(segments)-1 && !strings.Contains(seg.Sep, "\n") {
			continue
		}
		exempt := e.IsDisclaimerLine(textkit.Join(segments[start : i+1]))
		for j := start; j <= i; j++ {
			flags[j] = !exempt && textkit.ContainsAny(segments[j].Text, e.Lexicons.CTA)
		}
		start = i + 1
	}
	return flags
}

// CTACount counts the call-to-action sentences of text.
func (e Effective) CTACount(text string) int {
	count := 0
	for _, flagged := range e.CTAFlags(textkit.Segments(text)) {
		if flagged {
			count++
		}
	}
	return count
}

// IsDisclaimerLine reports whether line, whitespace aside, is a required disclaimer.
func (e Effective) IsDisclaimerLine(line string) bool {
	line = textkit.NormalizeSpace(line)
	if line == "" {
		return false
	}
	for _, disclaimer := range e.RequiredDisclaimers {
		if textkit.NormalizeSpace(disclaimer) == line {
			return true
		}
	}
	return false
}
