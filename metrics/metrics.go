// Package metrics exposes quality run and rule catalog counters over Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slighter12/qualityos-mcp-go/quality/engine"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
)

const namespace = "qualityos"

// otherModule labels runs for module keys the active snapshot does not define.
const otherModule = "other"

// Recorder owns a private registry so tests and multiple servers never collide on the
// global one. It implements engine.Observer.
type Recorder struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	ruleTriggers *prometheus.CounterVec
	passes       *prometheus.HistogramVec
	scores       *prometheus.HistogramVec
	reloads      *prometheus.CounterVec
	catalogRules prometheus.Gauge
	toolCalls    *prometheus.CounterVec

	modules atomic.Pointer[map[string]struct{}]
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder registers every collector on a fresh registry, including the Go runtime
// and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Quality runs by module and stop reason.",
		}, []string{"module", "stop_reason"}),
		ruleTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_triggers_total",
			Help:      "Rule detections that fired during a pass.",
		}, []string{"rule", "severity"}),
		passes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_passes",
			Help:      "Passes executed per run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
		}, []string{"module"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_score",
			Help:      "Final total score per run.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"module"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Rule catalog reloads by status.",
		}, []string{"status"}),
		catalogRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_rules",
			Help:      "Rules in the active snapshot.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runs,
		r.ruleTriggers,
		r.passes,
		r.scores,
		r.reloads,
		r.catalogRules,
		r.toolCalls,
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// TrackModules sets the module keys that get their own label value. Runs for any other
// key are counted under "other".
func (r *Recorder) TrackModules(snapshot *ruleset.Snapshot) {
	known := make(map[string]struct{})
	if snapshot != nil {
		for key := range snapshot.Policies.Modules {
			known[key] = struct{}{}
		}
	}
	r.modules.Store(&known)
}

func (r *Recorder) moduleLabel(moduleKey string) string {
	known := r.modules.Load()
	if known == nil {
		return otherModule
	}
	if _, ok := (*known)[moduleKey]; !ok {
		return otherModule
	}
	return moduleKey
}

func (r *Recorder) RuleTriggered(_ string, rule ruleset.RuleSpec) {
	r.ruleTriggers.WithLabelValues(rule.ID, string(rule.Severity)).Inc()
}

func (r *Recorder) PassCompleted(string, engine.PassRecord) {}

func (r *Recorder) RunCompleted(moduleKey string, result engine.Result) {
	moduleKey = r.moduleLabel(moduleKey)
	r.runs.WithLabelValues(moduleKey, string(result.StopReason)).Inc()
	r.passes.WithLabelValues(moduleKey).Observe(float64(len(result.Debug.Passes)))
	r.scores.WithLabelValues(moduleKey).Observe(result.Scorecard.TotalScore)
}

// CatalogReloaded records a reload outcome.
func (r *Recorder) CatalogReloaded(result rulecatalog.ReloadResult) {
	r.reloads.WithLabelValues(result.Status).Inc()
	if result.Status != rulecatalog.ReloadFailed {
		r.catalogRules.Set(float64(result.RuleCount))
	}
}

// ToolCalled records one tool invocation.
func (r *Recorder) ToolCalled(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
}
