package ruleset

import "regexp"

// Detection type names as they appear in rule bundles.
const (
	DetectPatternAny         = "pattern_match_any"
	DetectPatternNone        = "pattern_match_none"
	DetectPatternCountBelow  = "pattern_count_below"
	DetectLexiconCountGTE    = "lexicon_count_gte"
	DetectCTACountExceeds    = "cta_count_exceeds"
	DetectCTANearEnd         = "cta_near_end"
	DetectSentenceWordsAbove = "sentence_word_count_exceeds"
	DetectEndingRepetition   = "ending_repetition_gte"
	DetectWordRepetition     = "word_repetition_gte"
	DetectListItemsExceed    = "list_item_count_exceeds"
	DetectQAMinimumGate      = "qa_minimum_gate"
	DetectClaimCountExceeds  = "claim_count_exceeds"
	DetectCompositeAll       = "composite_all"
	DetectCompositeAny       = "composite_any"
)

// Detection is the sealed set of predicates a rule can carry.
// Every implementation lives in this package.
type Detection interface {
	DetectionType() string
	isDetection()
}

// PatternAny triggers when any pattern matches.
type PatternAny struct {
	Patterns []*regexp.Regexp
}

// PatternNone triggers when no pattern matches.
type PatternNone struct {
	Patterns []*regexp.Regexp
}

// PatternCountBelow triggers when the total match count is below Min.
type PatternCountBelow struct {
	Patterns []*regexp.Regexp
	Min      int
}

// LexiconCountAtLeast triggers when terms of the named lexicon occur at least Min times.
type LexiconCountAtLeast struct {
	Lexicon LexiconName
	Min     int
}

// CTACountExceeds triggers when more than Max sentences carry a CTA term.
type CTACountExceeds struct {
	Max int
}

// CTANearEndMissing triggers when none of the last Window sentences carries a CTA term.
type CTANearEndMissing struct {
	Window int
}

// SentenceWordsExceed triggers when any sentence has more than Max words.
type SentenceWordsExceed struct {
	Max int
}

// EndingRunAtLeast triggers when Threshold or more consecutive sentences share one of
// the configured endings.
type EndingRunAtLeast struct {
	Endings   []string
	Threshold int
}

// WordRepetitionAtLeast triggers when any token occurs Threshold or more times.
type WordRepetitionAtLeast struct {
	Threshold int
	Ignore    []string
}

// ListItemsExceed triggers when the text has more than Max list entries.
type ListItemsExceed struct {
	Max int
}

// QAMinimumGate fails when there are too few questions, or too few topics covered.
type QAMinimumGate struct {
	QuestionMarker *regexp.Regexp
	MinQuestions   int
	Topics         []string
	MinTopics      int
}

// ClaimCountExceeds triggers when the extracted claim count is above Max.
type ClaimCountExceeds struct {
	Max int
}

// AllOf triggers when every nested spec triggers.
type AllOf struct {
	Specs []Detection
}

// AnyOf triggers when at least one nested spec triggers.
type AnyOf struct {
	Specs []Detection
}

// UnhandledDetection stands in for a detection the engine cannot evaluate: an unknown
// type or unusable parameters. It never triggers.
type UnhandledDetection struct {
	Type   string
	Reason string
}

func (PatternAny) DetectionType() string            { return DetectPatternAny }
func (PatternNone) DetectionType() string           { return DetectPatternNone }
func (PatternCountBelow) DetectionType() string     { return DetectPatternCountBelow }
func (LexiconCountAtLeast) DetectionType() string   { return DetectLexiconCountGTE }
func (CTACountExceeds) DetectionType() string       { return DetectCTACountExceeds }
func (CTANearEndMissing) DetectionType() string     { return DetectCTANearEnd }
func (SentenceWordsExceed) DetectionType() string   { return DetectSentenceWordsAbove }
func (EndingRunAtLeast) DetectionType() string      { return DetectEndingRepetition }
func (WordRepetitionAtLeast) DetectionType() string { return DetectWordRepetition }
func (ListItemsExceed) DetectionType() string       { return DetectListItemsExceed }
func (QAMinimumGate) DetectionType() string         { return DetectQAMinimumGate }
func (ClaimCountExceeds) DetectionType() string     { return DetectClaimCountExceeds }
func (AllOf) DetectionType() string                 { return DetectCompositeAll }
func (AnyOf) DetectionType() string                 { return DetectCompositeAny }
func (d UnhandledDetection) DetectionType() string  { return d.Type }

func (PatternAny) isDetection()            {}
func (PatternNone) isDetection()           {}
func (PatternCountBelow) isDetection()     {}
func (LexiconCountAtLeast) isDetection()   {}
func (CTACountExceeds) isDetection()       {}
func (CTANearEndMissing) isDetection()     {}
func (SentenceWordsExceed) isDetection()   {}
func (EndingRunAtLeast) isDetection()      {}
func (WordRepetitionAtLeast) isDetection() {}
func (ListItemsExceed) isDetection()       {}
func (QAMinimumGate) isDetection()         {}
func (ClaimCountExceeds) isDetection()     {}
func (AllOf) isDetection()                 {}
func (AnyOf) isDetection()                 {}
func (UnhandledDetection) isDetection()    {}
