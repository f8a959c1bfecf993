package ruleset

// Action type names as they appear in rule bundles.
const (
	ActionReplace   = "REPLACE"
	ActionDownshift = "DOWNSHIFT"
	ActionInsert    = "INSERT"
	ActionMergeCTA  = "MERGE_CTA"
	ActionLabel     = "LABEL"
)

// REPLACE strategies.
const (
	StrategyClicheToSpecific   = "cliche_to_specific"
	StrategyAbstractToSpecific = "abstract_to_specific"
)

// DOWNSHIFT strategies.
const (
	StrategySafeSoftener          = "safe_softener"
	StrategySplitSentence         = "split_sentence"
	StrategyVaryEndings           = "vary_endings"
	StrategyDeDuplicate           = "de_duplicate"
	StrategyTrimList              = "trim_list"
	StrategyReduceToOneClaim      = "reduce_to_one_claim"
	StrategySuperlativeToStandard = "superlative_to_standard"
	StrategyRankToStandard        = "rank_to_standard"
	StrategyCalmPunctuation       = "calm_punctuation"
)

// Downshift defaults applied when a bundle leaves a parameter out.
const (
	DefaultSplitMaxWords = 28
	DefaultFormalEnding  = "합니다."
	DefaultEndingRun     = 3
	DefaultMaxListItems  = 5
)

// DefaultEndingAlternates replace the formal ending once its run is too long.
var DefaultEndingAlternates = []string{"해요."}

// InsertPosition says where an INSERT action places its text.
type InsertPosition string

const (
	InsertStart        InsertPosition = "start"
	InsertEnd          InsertPosition = "end"
	InsertEndIfMissing InsertPosition = "end_if_missing"
	InsertBeforeCTA    InsertPosition = "before_cta"
)

// PlaceholderDefaultCTA is substituted with the resolved default CTA in templates.
const PlaceholderDefaultCTA = "{{CTA_DEFAULT}}"

// Action is the sealed set of transforms a rule can apply.
type Action interface {
	ActionType() string
	isAction()
}

// Replace applies a substitution table strategy.
type Replace struct {
	Strategy string
}

// Downshift applies a softening or structural strategy.
type Downshift struct {
	Strategy string
	// MaxWords is the split_sentence threshold.
	MaxWords int
	// Ending, Alternates and RunLength drive vary_endings.
	Ending     string
	Alternates []string
	RunLength  int
	// MaxItems caps trim_list.
	MaxItems int
}

// Insert places Template at Position.
type Insert struct {
	Position InsertPosition
	Template string
}

// MergeCTA collapses the text to a single CTA sentence.
type MergeCTA struct{}

// Label prefixes Text as its own line.
type Label struct {
	Text string
}

// UnhandledAction stands in for an action the engine cannot run. It leaves text unchanged.
type UnhandledAction struct {
	Type   string
	Reason string
}

func (Replace) ActionType() string           { return ActionReplace }
func (Downshift) ActionType() string         { return ActionDownshift }
func (Insert) ActionType() string            { return ActionInsert }
func (MergeCTA) ActionType() string          { return ActionMergeCTA }
func (Label) ActionType() string             { return ActionLabel }
func (a UnhandledAction) ActionType() string { return a.Type }

func (Replace) isAction()         {}
func (Downshift) isAction()       {}
func (Insert) isAction()          {}
func (MergeCTA) isAction()        {}
func (Label) isAction()           {}
func (UnhandledAction) isAction() {}

// Describe renders an action as "TYPE:detail" for traces.
func Describe(a Action) string {
	switch v := a.(type) {
	case Replace:
		return ActionReplace + ":" + v.Strategy
	case Downshift:
		return ActionDownshift + ":" + v.Strategy
	case Insert:
		return ActionInsert + ":" + string(v.Position)
	case MergeCTA:
		return ActionMergeCTA
	case Label:
		return ActionLabel
	case UnhandledAction:
		return "UNHANDLED:" + v.Type
	default:
		return "UNKNOWN"
	}
}
