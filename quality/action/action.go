// Package action applies rule actions to a text. Every transform is pure: it returns a
// new text and never touches its inputs.
package action

import (
	"strings"

	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// Context is what a transform may read besides the text.
type Context struct {
	Maps       lexicon.Effective
	Brand      ruleset.BrandStyle
	DefaultCTA string
}

// Outcome is the result of one action.
type Outcome struct {
	Text    string
	Changed bool
	// Unhandled is set when the action could not run; Text is then the input.
	Unhandled *ruleset.UnhandledAction
}

// ResolveDefaultCTA prefers the brand's default CTA over the configured fallback.
func ResolveDefaultCTA(brand ruleset.BrandStyle, fallback string) string {
	if cta := strings.TrimSpace(brand.DefaultCTA); cta != "" {
		return cta
	}
	return strings.TrimSpace(fallback)
}

// Apply runs a against text.
func Apply(a ruleset.Action, text string, ctx Context) Outcome {
	var out string
	switch v := a.(type) {
	case ruleset.Replace:
		switch v.Strategy {
		case ruleset.StrategyClicheToSpecific:
			out = ReplaceTable(text, ctx.Maps.ClicheToSpecific, lexicalOrder)
		case ruleset.StrategyAbstractToSpecific:
			out = ReplaceTable(text, ctx.Maps.AbstractToSpecific, longestFirst)
		default:
			return unhandled(text, ruleset.UnhandledAction{Type: v.ActionType(), Reason: "unknown strategy " + v.Strategy})
		}
	case ruleset.Downshift:
		var ok bool
		out, ok = downshift(v, text, ctx)
		if !ok {
			return unhandled(text, ruleset.UnhandledAction{Type: v.ActionType(), Reason: "unknown strategy " + v.Strategy})
		}
	case ruleset.Insert:
		out = insert(v, text, ctx)
	case ruleset.MergeCTA:
		out = MergeCTA(text, ctx.Maps, ctx.DefaultCTA)
	case ruleset.Label:
		out = label(v.Text, text)
	case ruleset.UnhandledAction:
		return unhandled(text, v)
	default:
		return unhandled(text, ruleset.UnhandledAction{Reason: "unsupported action value"})
	}
	return Outcome{Text: out, Changed: out != text}
}

func unhandled(text string, u ruleset.UnhandledAction) Outcome {
	return Outcome{Text: text, Unhandled: &u}
}

// FillTemplate substitutes the default CTA placeholder.
func FillTemplate(template, defaultCTA string) string {
	return strings.TrimSpace(strings.ReplaceAll(template, ruleset.PlaceholderDefaultCTA, defaultCTA))
}

// Inserting text that is already present is a no-op, so repeated passes do not stack
// copies. An end insert only checks the end of the text.
func insert(a ruleset.Insert, text string, ctx Context) string {
	filled := FillTemplate(a.Template, ctx.DefaultCTA)
	if filled == "" {
		return text
	}
	if a.Position == ruleset.InsertEnd {
		if strings.HasSuffix(strings.TrimRight(text, " \t\n"), filled) {
			return text
		}
		return AppendSentence(text, filled)
	}
	if strings.Contains(text, filled) {
		return text
	}
	switch a.Position {
	case ruleset.InsertStart:
		return PrependLine(text, filled)
	case ruleset.InsertEndIfMissing:
		if ctx.Maps.CTACount(text) > 0 {
			return text
		}
		return AppendSentence(text, filled)
	case ruleset.InsertBeforeCTA:
		return InsertBeforeCTA(text, filled, ctx.Maps)
	default:
		return text
	}
}

// PrependLine puts line above text.
func PrependLine(text, line string) string {
	if strings.TrimSpace(text) == "" {
		return line
	}
	return line + "\n" + text
}

// AppendSentence adds sentence after text, on a new line when text is multi-line.
func AppendSentence(text, sentence string) string {
	trimmed := strings.TrimRight(text, " \t\n")
	if trimmed == "" {
		return sentence
	}
	sep := " "
	if strings.Contains(trimmed, "\n") {
		sep = "\n"
	}
	return trimmed + sep + sentence
}

// InsertBeforeCTA places sentence immediately before the first call-to-action sentence,
// or appends it when there is none.
func InsertBeforeCTA(text, sentence string, maps lexicon.Effective) string {
	segments := textkit.Segments(text)
	for i, isCTA := range maps.CTAFlags(segments) {
		if !isCTA {
			continue
		}
		sep := " "
		if i > 0 && segments[i-1].Sep != "" {
			sep = segments[i-1].Sep
		}
		out := make([]textkit.Segment, 0, len(segments)+1)
		out = append(out, segments[:i]...)
		out = append(out, textkit.Segment{Text: sentence, Sep: sep})
		out = append(out, segments[i:]...)
		return textkit.Join(out)
	}
	return AppendSentence(text, sentence)
}

// MergeCTA leaves exactly one CTA sentence in text: the last one when there are several,
// or defaultCTA appended when there is none. Required disclaimer lines are never dropped.
func MergeCTA(text string, maps lexicon.Effective, defaultCTA string) string {
	if len(textkit.Dedupe(maps.Lexicons.CTA)) == 0 {
		return text
	}
	segments := textkit.Segments(text)
	var ctaIdx []int
	for i, isCTA := range maps.CTAFlags(segments) {
		if isCTA {
			ctaIdx = append(ctaIdx, i)
		}
	}

	switch len(ctaIdx) {
	case 0:
		defaultCTA = strings.TrimSpace(defaultCTA)
		if defaultCTA == "" || strings.Contains(text, defaultCTA) {
			return text
		}
		return AppendSentence(text, defaultCTA)
	case 1:
		return text
	}

	drop := make(map[int]struct{}, len(ctaIdx)-1)
	for _, i := range ctaIdx[:len(ctaIdx)-1] {
		drop[i] = struct{}{}
	}
	out := make([]textkit.Segment, 0, len(segments))
	for i, seg := range segments {
		if _, ok := drop[i]; !ok {
			out = append(out, seg)
			continue
		}
		// Keep line breaks of dropped sentences.
		if n := len(out); n > 0 && strings.Contains(seg.Sep, "\n") && !strings.Contains(out[n-1].Sep, "\n") {
			out[n-1].Sep = seg.Sep
		}
	}
	return strings.TrimSpace(textkit.Join(out))
}

func label(labelText, text string) string {
	firstLine, _, _ := strings.Cut(text, "\n")
	if strings.TrimSpace(firstLine) == labelText {
		return text
	}
	return PrependLine(text, labelText)
}
