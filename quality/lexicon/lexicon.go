// Package lexicon resolves the effective rewrite maps for one run by folding an
// optional industry override into the base maps.
package lexicon

import (
	"maps"
	"slices"
	"strings"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

// Effective is the per-run view of the rewrite maps.
type Effective struct {
	Industry            string
	Lexicons            ruleset.Lexicons
	ClicheToSpecific    map[string]string
	AbstractToSpecific  map[string]string
	SafeSofteners       map[string]string
	RequiredDisclaimers []string
	RequiredSpecificity []string
}

// Resolve merges the override registered for industryKey into base. Each lexicon is
// the base list followed by the override's extra list, de-duplicated in first-seen
// order. An unknown or empty key yields the base lexicons with empty required lists.
func Resolve(base ruleset.RewriteMaps, industryKey string) Effective {
	key := strings.TrimSpace(industryKey)
	override, ok := base.IndustryOverrides[key]
	if !ok {
		key = ""
	}

	return Effective{
		Industry: key,
		Lexicons: ruleset.Lexicons{
			CTA:         union(base.Lexicons.CTA, override.ExtraCTA),
			Cliche:      union(base.Lexicons.Cliche, override.ExtraCliche),
			Overclaim:   union(base.Lexicons.Overclaim, override.ExtraOverclaim),
			Abstract:    union(base.Lexicons.Abstract, override.ExtraAbstract),
			RepeatAllow: union(base.Lexicons.RepeatAllow, override.ExtraRepeatAllow),
			Blocklist:   union(base.Lexicons.Blocklist, override.ExtraBlocklist),
		},
		ClicheToSpecific:    cloneOrEmpty(base.ClicheToSpecific),
		AbstractToSpecific:  cloneOrEmpty(base.AbstractToSpecific),
		SafeSofteners:       cloneOrEmpty(base.SafeSofteners),
		RequiredDisclaimers: union(override.RequiredDisclaimers),
		RequiredSpecificity: union(override.RequiredSpecificity),
	}
}

func union(lists ...[]string) []string {
	return textkit.Dedupe(slices.Concat(lists...))
}

func cloneOrEmpty(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return maps.Clone(in)
}
