package engine

import "github.com/slighter12/qualityos-mcp-go/quality/ruleset"

// Observer receives run events. Implementations must be safe for concurrent use when the
// engine serves parallel runs.
type Observer interface {
	RuleTriggered(moduleKey string, rule ruleset.RuleSpec)
	PassCompleted(moduleKey string, record PassRecord)
	RunCompleted(moduleKey string, result Result)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) RuleTriggered(string, ruleset.RuleSpec) {}
func (NopObserver) PassCompleted(string, PassRecord)       {}
func (NopObserver) RunCompleted(string, Result)            {}
