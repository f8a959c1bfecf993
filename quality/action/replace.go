package action

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/slighter12/qualityos-mcp-go/quality/textkit"
)

type keyOrder func(a, b string) int

func lexicalOrder(a, b string) int {
	return strings.Compare(a, b)
}

func longestFirst(a, b string) int {
	if c := cmp.Compare(utf8.RuneCountInString(b), utf8.RuneCountInString(a)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// ReplaceTable substitutes every table key with its value in a single scan, trying keys
// in the given order at each position. Replacements are never rescanned.
func ReplaceTable(text string, table map[string]string, order keyOrder) string {
	if len(table) == 0 || text == "" {
		return text
	}
	keys := make([]string, 0, len(table))
	for key := range table {
		if key != "" {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, order)

	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, key, table[key])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Redact replaces every case-insensitive occurrence of each term with marker. Longer
// terms go first so they are not split by shorter ones.
func Redact(text string, terms []string, marker string) string {
	terms = textkit.Dedupe(terms)
	slices.SortFunc(terms, longestFirst)
	for _, term := range terms {
		text = textkit.LiteralPattern(term).ReplaceAllLiteralString(text, marker)
	}
	return text
}

type rewrite struct {
	pattern *regexp.Regexp
	with    string
}

func applyRewrites(text string, rewrites []rewrite) string {
	for _, r := range rewrites {
		text = r.pattern.ReplaceAllString(text, r.with)
	}
	return text
}

var superlativeRewrites = []rewrite{
	{regexp.MustCompile(`최고의`), "우수한"},
	{regexp.MustCompile(`최상의`), "높은 수준의"},
	{regexp.MustCompile(`완벽한`), "꼼꼼한"},
	{regexp.MustCompile(`완벽하게`), "꼼꼼하게"},
	{regexp.MustCompile(`가장\s+`), ""},
	{regexp.MustCompile(`최고`), "우수"},
	{regexp.MustCompile(`(?i)\bthe\s+best\b`), "a great"},
	{regexp.MustCompile(`(?i)\bbest\b`), "great"},
	{regexp.MustCompile(`(?i)\bperfect(ly)?\b`), "careful${1}"},
	{regexp.MustCompile(`(?i)\bunbeatable\b`), "competitive"},
}

var rankRewrites = []rewrite{
	{regexp.MustCompile(`업계\s*(?:1|일)\s*위`), "업계에서 인정받는"},
	{regexp.MustCompile(`(?:국내|세계)\s*(?:최초|1\s*위|No\.?\s*1)`), "주목받는"},
	{regexp.MustCompile(`(?:판매|매출|점유율)\s*1\s*위`), "꾸준히 선택받는"},
	{regexp.MustCompile(`(?i)(?:#\s*1|\bno\.?\s*1\b|\bnumber\s+one\b)`), "a leading"},
	{regexp.MustCompile(`1\s*위`), "상위권"},
}

// punctuationRewrites collapse runs of emphatic punctuation to a single mark.
var punctuationRewrites = []rewrite{
	{regexp.MustCompile(`[!！]{2,}`), "!"},
	{regexp.MustCompile(`[?？]{2,}`), "?"},
	{regexp.MustCompile(`[~～]{2,}`), "~"},
}
