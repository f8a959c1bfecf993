package ruleset

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// MaxPatternLength caps user-supplied regular expressions. RE2 never backtracks, so
// length is the remaining cost lever.
const MaxPatternLength = 512

// Detection parameter defaults.
const (
	DefaultCTAWindow        = 2
	DefaultEndingThreshold  = 4
	DefaultRepeatThreshold  = 4
	DefaultMinQuestions     = 3
	DefaultQuestionPatterns = `(?i)^\s*(?:q\s*\d*\s*[.:)]|질문\s*\d*\s*[.:)])|[?？]\s*$`
)

var defaultQuestionMarker = regexp.MustCompile(DefaultQuestionPatterns)

// Compile converts a wire bundle into an immutable Snapshot. It never fails: rules or
// rule parts that cannot be used become Unhandled variants or are skipped, and every
// such decision is reported in the returned warnings.
func Compile(bundle Bundle) (*Snapshot, []string) {
	c := &compiler{}

	snapshot := &Snapshot{
		Version:     strings.TrimSpace(bundle.Rules.Version),
		Dimensions:  c.dimensions(bundle.Rules.Dimensions),
		RewriteMaps: cloneRewriteMaps(bundle.RewriteMaps),
		Policies:    clonePolicies(bundle.ModulePolicies),
	}

	seen := make(map[string]struct{}, len(bundle.Rules.Rules))
	for i, wire := range bundle.Rules.Rules {
		id := strings.TrimSpace(wire.ID)
		if id == "" {
			c.warnf("rule #%d: missing id, skipped", i)
			continue
		}
		if _, dup := seen[id]; dup {
			c.warnf("rule %s: duplicate id, skipped", id)
			continue
		}
		seen[id] = struct{}{}
		snapshot.Rules = append(snapshot.Rules, c.rule(id, wire))
	}
	return snapshot, c.warnings
}

type compiler struct {
	warnings []string
}

func (c *compiler) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *compiler) dimensions(raw []string) []Dimension {
	var out []Dimension
	for _, name := range raw {
		d := Dimension(strings.ToLower(strings.TrimSpace(name)))
		if !ValidDimension(d) {
			c.warnf("unknown dimension %q ignored", name)
			continue
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return slices.Clone(AllDimensions)
	}
	return out
}

func (c *compiler) rule(id string, wire WireRule) RuleSpec {
	severity, ok := ParseSeverity(wire.Severity)
	if !ok {
		c.warnf("rule %s: unknown severity %q treated as LOW", id, wire.Severity)
	}

	dimension := Dimension(strings.ToLower(strings.TrimSpace(wire.Dimension)))
	if dimension != "" && !ValidDimension(dimension) {
		c.warnf("rule %s: unknown dimension %q", id, wire.Dimension)
	}

	appliesTo := make([]string, 0, len(wire.AppliesTo))
	for _, key := range wire.AppliesTo {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			appliesTo = append(appliesTo, trimmed)
		}
	}
	if len(appliesTo) == 0 {
		appliesTo = []string{Wildcard}
	}

	actions := make([]Action, 0, len(wire.Actions))
	for i, wa := range wire.Actions {
		action := c.action(wa)
		if u, ok := action.(UnhandledAction); ok {
			c.warnf("rule %s: action #%d unhandled: %s", id, i, u.Reason)
		}
		actions = append(actions, action)
	}

	return RuleSpec{
		ID:        id,
		Name:      strings.TrimSpace(wire.Name),
		Dimension: dimension,
		Severity:  severity,
		AppliesTo: appliesTo,
		Detection: c.detectionFor(id, wire.Detect),
		Actions:   actions,
		Score:     c.score(id, wire.Score),
		Message:   wire.Message,
	}
}

func (c *compiler) detectionFor(id string, wire WireDetection) Detection {
	d := c.detection(wire)
	reportUnhandled(d, func(u UnhandledDetection) {
		c.warnf("rule %s: detection %q unhandled: %s", id, u.Type, u.Reason)
	})
	return d
}

func reportUnhandled(d Detection, report func(UnhandledDetection)) {
	switch v := d.(type) {
	case UnhandledDetection:
		report(v)
	case AllOf:
		for _, nested := range v.Specs {
			reportUnhandled(nested, report)
		}
	case AnyOf:
		for _, nested := range v.Specs {
			reportUnhandled(nested, report)
		}
	}
}

func (c *compiler) detection(wire WireDetection) Detection {
	kind := strings.ToLower(strings.TrimSpace(wire.Type))
	params := wire.Params
	unhandled := func(err error) Detection {
		return UnhandledDetection{Type: kind, Reason: err.Error()}
	}

	switch kind {
	case DetectPatternAny, DetectPatternNone:
		patterns, err := compilePatterns(params)
		if err != nil {
			return unhandled(err)
		}
		if kind == DetectPatternAny {
			return PatternAny{Patterns: patterns}
		}
		return PatternNone{Patterns: patterns}

	case DetectPatternCountBelow:
		patterns, err := compilePatterns(params)
		if err != nil {
			return unhandled(err)
		}
		minimum, err := intParam(params, "min", 1)
		if err != nil {
			return unhandled(err)
		}
		return PatternCountBelow{Patterns: patterns, Min: minimum}

	case DetectLexiconCountGTE:
		name := LexiconName(strings.ToLower(strings.TrimSpace(stringParam(params, "lexicon"))))
		if !knownLexicon(name) {
			return unhandled(fmt.Errorf("unknown lexicon %q", name))
		}
		minimum, err := intParam(params, "min", 1)
		if err != nil {
			return unhandled(err)
		}
		if minimum <= 0 {
			minimum = 1
		}
		return LexiconCountAtLeast{Lexicon: name, Min: minimum}

	case DetectCTACountExceeds:
		maximum, err := intParam(params, "max", 1)
		if err != nil {
			return unhandled(err)
		}
		return CTACountExceeds{Max: maximum}

	case DetectCTANearEnd:
		window, err := intParam(params, "window", DefaultCTAWindow)
		if err != nil {
			return unhandled(err)
		}
		if window <= 0 {
			window = DefaultCTAWindow
		}
		return CTANearEndMissing{Window: window}

	case DetectSentenceWordsAbove:
		maximum, err := intParam(params, "max", DefaultSplitMaxWords)
		if err != nil {
			return unhandled(err)
		}
		return SentenceWordsExceed{Max: maximum}

	case DetectEndingRepetition:
		endings, err := stringsParam(params, "endings")
		if err != nil {
			return unhandled(err)
		}
		if len(endings) == 0 {
			endings = []string{DefaultFormalEnding}
		}
		threshold, err := intParam(params, "threshold", DefaultEndingThreshold)
		if err != nil {
			return unhandled(err)
		}
		return EndingRunAtLeast{Endings: endings, Threshold: threshold}

	case DetectWordRepetition:
		threshold, err := intParam(params, "threshold", DefaultRepeatThreshold)
		if err != nil {
			return unhandled(err)
		}
		ignore, err := stringsParam(params, "ignore")
		if err != nil {
			return unhandled(err)
		}
		return WordRepetitionAtLeast{Threshold: threshold, Ignore: ignore}

	case DetectListItemsExceed:
		maximum, err := intParam(params, "max", DefaultMaxListItems)
		if err != nil {
			return unhandled(err)
		}
		return ListItemsExceed{Max: maximum}

	case DetectQAMinimumGate:
		return c.qaGate(params, unhandled)

	case DetectClaimCountExceeds:
		maximum, err := intParam(params, "max", 3)
		if err != nil {
			return unhandled(err)
		}
		return ClaimCountExceeds{Max: maximum}

	case DetectCompositeAll, DetectCompositeAny:
		nested := make([]Detection, 0, len(wire.Specs))
		for _, spec := range wire.Specs {
			nested = append(nested, c.detection(spec))
		}
		if kind == DetectCompositeAll {
			return AllOf{Specs: nested}
		}
		return AnyOf{Specs: nested}

	case "":
		return UnhandledDetection{Reason: "missing detection type"}

	default:
		return UnhandledDetection{Type: kind, Reason: "unknown detection type"}
	}
}

func (c *compiler) qaGate(params map[string]any, unhandled func(error) Detection) Detection {
	marker := defaultQuestionMarker
	if raw := strings.TrimSpace(stringParam(params, "question_pattern")); raw != "" {
		compiled, err := compilePattern(raw)
		if err != nil {
			return unhandled(err)
		}
		marker = compiled
	}
	minQuestions, err := intParam(params, "min_questions", DefaultMinQuestions)
	if err != nil {
		return unhandled(err)
	}
	topics, err := stringsParam(params, "topics")
	if err != nil {
		return unhandled(err)
	}
	minTopics, err := intParam(params, "min_topics", len(topics))
	if err != nil {
		return unhandled(err)
	}
	return QAMinimumGate{
		QuestionMarker: marker,
		MinQuestions:   minQuestions,
		Topics:         topics,
		MinTopics:      minTopics,
	}
}

func knownLexicon(name LexiconName) bool {
	switch name {
	case LexiconCTA, LexiconCliche, LexiconOverclaim, LexiconAbstract, LexiconRepeatAllow, LexiconBlocklist:
		return true
	}
	return false
}

func compilePatterns(params map[string]any) ([]*regexp.Regexp, error) {
	raw, err := firstStrings(params, "patterns", "pattern")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no patterns")
	}
	out := make([]*regexp.Regexp, 0, len(raw))
	for _, source := range raw {
		compiled, err := compilePattern(source)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

func compilePattern(source string) (*regexp.Regexp, error) {
	if len(source) > MaxPatternLength {
		return nil, fmt.Errorf("pattern exceeds %d bytes", MaxPatternLength)
	}
	compiled, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", source, err)
	}
	return compiled, nil
}

func (c *compiler) action(wire WireAction) Action {
	kind := strings.ToUpper(strings.TrimSpace(wire.Type))
	strategy := strings.ToLower(strings.TrimSpace(wire.Strategy))
	if strategy == "" {
		strategy = strings.ToLower(strings.TrimSpace(stringParam(wire.Params, "strategy")))
	}

	switch kind {
	case ActionReplace:
		switch strategy {
		case StrategyClicheToSpecific, StrategyAbstractToSpecific:
			return Replace{Strategy: strategy}
		}
		return UnhandledAction{Type: kind, Reason: fmt.Sprintf("unknown replace strategy %q", strategy)}

	case ActionDownshift:
		return c.downshift(kind, strategy, wire.Params)

	case ActionInsert:
		position := InsertPosition(strings.ToLower(strings.TrimSpace(wire.Position)))
		if position == "" {
			position = InsertPosition(strings.ToLower(stringParam(wire.Params, "position")))
		}
		switch position {
		case InsertStart, InsertEnd, InsertEndIfMissing, InsertBeforeCTA:
		default:
			return UnhandledAction{Type: kind, Reason: fmt.Sprintf("unknown insert position %q", position)}
		}
		template := wire.Template
		if template == "" {
			template = stringParam(wire.Params, "template")
		}
		if strings.TrimSpace(template) == "" {
			return UnhandledAction{Type: kind, Reason: "empty insert template"}
		}
		return Insert{Position: position, Template: template}

	case ActionMergeCTA:
		return MergeCTA{}

	case ActionLabel:
		text := wire.Label
		if text == "" {
			text = wire.Template
		}
		if text == "" {
			text = stringParam(wire.Params, "label")
		}
		if strings.TrimSpace(text) == "" {
			return UnhandledAction{Type: kind, Reason: "empty label"}
		}
		return Label{Text: strings.TrimSpace(text)}

	case "":
		return UnhandledAction{Reason: "missing action type"}

	default:
		return UnhandledAction{Type: kind, Reason: "unknown action type"}
	}
}

func (c *compiler) downshift(kind, strategy string, params map[string]any) Action {
	unhandled := func(err error) Action {
		return UnhandledAction{Type: kind, Reason: err.Error()}
	}

	d := Downshift{Strategy: strategy}
	switch strategy {
	case StrategySafeSoftener, StrategyDeDuplicate, StrategyReduceToOneClaim,
		StrategySuperlativeToStandard, StrategyRankToStandard, StrategyCalmPunctuation:

	case StrategySplitSentence:
		maxWords, err := intParam(params, "max_words", DefaultSplitMaxWords)
		if err != nil {
			return unhandled(err)
		}
		d.MaxWords = maxWords

	case StrategyVaryEndings:
		d.Ending = stringParam(params, "ending")
		if d.Ending == "" {
			d.Ending = DefaultFormalEnding
		}
		alternates, err := stringsParam(params, "alternates")
		if err != nil {
			return unhandled(err)
		}
		if len(alternates) == 0 {
			alternates = slices.Clone(DefaultEndingAlternates)
		}
		d.Alternates = alternates
		run, err := intParam(params, "run_length", DefaultEndingRun)
		if err != nil {
			return unhandled(err)
		}
		if run <= 0 {
			run = DefaultEndingRun
		}
		d.RunLength = run

	case StrategyTrimList:
		maxItems, err := intParam(params, "max_items", DefaultMaxListItems)
		if err != nil {
			return unhandled(err)
		}
		d.MaxItems = maxItems

	default:
		return UnhandledAction{Type: kind, Reason: fmt.Sprintf("unknown downshift strategy %q", strategy)}
	}
	return d
}

func (c *compiler) score(id string, wire WireScoreEffect) ScoreEffect {
	effect := ScoreEffect{
		Penalty: abs(wire.Penalty),
		Bonus:   abs(wire.Bonus),
	}
	if len(wire.DimensionDelta) == 0 {
		return effect
	}
	effect.DimensionDelta = make(map[Dimension]float64, len(wire.DimensionDelta))
	for name, delta := range wire.DimensionDelta {
		d := Dimension(strings.ToLower(strings.TrimSpace(name)))
		if !ValidDimension(d) {
			c.warnf("rule %s: dimension delta for unknown dimension %q ignored", id, name)
			continue
		}
		effect.DimensionDelta[d] += delta
	}
	return effect
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func cloneRewriteMaps(in RewriteMaps) RewriteMaps {
	out := RewriteMaps{
		Lexicons: Lexicons{
			CTA:         slices.Clone(in.Lexicons.CTA),
			Cliche:      slices.Clone(in.Lexicons.Cliche),
			Overclaim:   slices.Clone(in.Lexicons.Overclaim),
			Abstract:    slices.Clone(in.Lexicons.Abstract),
			RepeatAllow: slices.Clone(in.Lexicons.RepeatAllow),
			Blocklist:   slices.Clone(in.Lexicons.Blocklist),
		},
		ClicheToSpecific:   maps.Clone(in.ClicheToSpecific),
		AbstractToSpecific: maps.Clone(in.AbstractToSpecific),
		SafeSofteners:      maps.Clone(in.SafeSofteners),
	}
	if in.IndustryOverrides != nil {
		out.IndustryOverrides = make(map[string]IndustryOverride, len(in.IndustryOverrides))
		for key, o := range in.IndustryOverrides {
			out.IndustryOverrides[strings.TrimSpace(key)] = IndustryOverride{
				ExtraCTA:            slices.Clone(o.ExtraCTA),
				ExtraCliche:         slices.Clone(o.ExtraCliche),
				ExtraOverclaim:      slices.Clone(o.ExtraOverclaim),
				ExtraAbstract:       slices.Clone(o.ExtraAbstract),
				ExtraRepeatAllow:    slices.Clone(o.ExtraRepeatAllow),
				ExtraBlocklist:      slices.Clone(o.ExtraBlocklist),
				RequiredDisclaimers: slices.Clone(o.RequiredDisclaimers),
				RequiredSpecificity: slices.Clone(o.RequiredSpecificity),
			}
		}
	}
	return out
}

func clonePolicies(in ModulePolicies) ModulePolicies {
	out := ModulePolicies{
		Default:  clonePolicy(in.Default),
		HighRisk: slices.Clone(in.HighRisk),
	}
	if in.Modules != nil {
		out.Modules = make(map[string]ModulePolicy, len(in.Modules))
		for key, policy := range in.Modules {
			out.Modules[strings.TrimSpace(key)] = clonePolicy(policy)
		}
	}
	return out
}

func clonePolicy(in ModulePolicy) ModulePolicy {
	return ModulePolicy{
		PassCutoff:         in.PassCutoff,
		RequiredEvidence:   slices.Clone(in.RequiredEvidence),
		RequiredStructures: slices.Clone(in.RequiredStructures),
	}
}
