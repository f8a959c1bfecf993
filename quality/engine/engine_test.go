package engine

import (
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slighter12/qualityos-mcp-go/quality/detect"
	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
	"github.com/slighter12/qualityos-mcp-go/quality/scorecard"
)

const testBundle = `
rules:
  version: "test-1"
  dimensions: [clarity, specificity, structure, voice_fit, readability_rhythm, credibility_safety, conversion]
  rules:
    - id: R-BLOCK
      name: Blocked claim
      dimension: credibility_safety
      severity: HARD_FAIL
      applies_to: ["*"]
      detect: {type: lexicon_count_gte, params: {lexicon: blocklist, min: 1}}
      score: {penalty: 50, dimension_delta: {credibility_safety: -5}}
      message: Remove claims that cannot be made.
    - id: R-CTA
      name: Single CTA
      dimension: conversion
      severity: HIGH
      applies_to: ["*"]
      detect: {type: cta_count_exceeds, params: {max: 1}}
      actions: [{type: MERGE_CTA}]
      score: {penalty: 5, dimension_delta: {conversion: -1}}
    - id: R-ENDING
      name: Ending rhythm
      dimension: readability_rhythm
      severity: MEDIUM
      applies_to: ["*"]
      detect: {type: ending_repetition_gte, params: {endings: ["합니다."], threshold: 4}}
      actions: [{type: DOWNSHIFT, strategy: vary_endings}]
      score: {penalty: 5, dimension_delta: {readability_rhythm: -1}}
    - id: R-CLICHE
      name: Cliche
      dimension: specificity
      severity: LOW
      applies_to: [landing]
      detect: {type: lexicon_count_gte, params: {lexicon: cliche, min: 1}}
      actions: [{type: REPLACE, strategy: cliche_to_specific}]
      score: {penalty: 3, dimension_delta: {specificity: -0.5}}
    - id: R-FUTURE
      name: Newer than this engine
      severity: LOW
      applies_to: ["*"]
      detect: {type: sentiment_score_below}
      actions: [{type: REWRITE_WITH_LLM}]
rewrite_maps:
  lexicons:
    cta: ["문의", "신청"]
    cliche: ["혁신적인"]
    blocklist: ["완치 보장"]
  cliche_to_specific:
    혁신적인: 새로운 방식의
  industry_overrides:
    clinic:
      extra_blocklist: ["부작용 없음"]
      required_disclaimers: ["개인에 따라 결과가 다를 수 있습니다."]
      required_specificity: ["진료 과목"]
    dermatology:
      required_disclaimers: ["부작용은 전문의 상담 후 문의 바랍니다."]
module_policies:
  default: {pass_cutoff: 80}
  modules:
    landing: {pass_cutoff: 85, required_evidence: [numbers, reviews]}
  high_risk: [clinic_landing]
`

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSnapshot(t *testing.T) *ruleset.Snapshot {
	t.Helper()
	bundle, err := ruleset.DecodeBundle([]byte(testBundle), ruleset.FormatYAML)
	require.NoError(t, err)
	snapshot, warnings := ruleset.Compile(bundle)
	require.Len(t, warnings, 2, "unexpected warnings: %v", warnings)
	return snapshot
}

func testEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	opts.Clock = func() time.Time { return fixedNow }
	if opts.FallbackCTA == "" {
		opts.FallbackCTA = "지금 문의하세요."
	}
	return New(testSnapshot(t), opts)
}

func evidenceLines(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if HasEvidenceMarker(line) {
			count++
		}
	}
	return count
}

func TestScenarioEndingRepetitionRewritesFourth(t *testing.T) {
	eng := testEngine(t, Options{})
	draft := "상담을 준비합니다. 꼼꼼하게 확인합니다. 빠르게 안내합니다. 끝까지 동행합니다. 지금 문의하세요."

	res := eng.Run(Request{ModuleKey: "landing", Draft: draft})

	assert.Contains(t, res.Scorecard.TriggeredRules, "R-ENDING")
	assert.Contains(t, res.FinalCopy, "끝까지 동행해요.")
	assert.Contains(t, res.FinalCopy, "빠르게 안내합니다.")
	assert.Less(t, detect.LongestEndingRun(res.FinalCopy, []string{"합니다."}), 4)
	assert.True(t, res.Scorecard.Pass)
	assert.Equal(t, StopPassed, res.StopReason)
}

func TestScenarioBlacklistRedactedWithoutPenalty(t *testing.T) {
	eng := testEngine(t, Options{})
	req := Request{
		ModuleKey:  "promo",
		Draft:      "경쟁사A보다 빠릅니다. 경쟁사a 고객도 만족합니다. 지금 문의하세요.",
		BrandStyle: ruleset.BrandStyle{Blacklist: []string{"경쟁사A"}},
	}

	res := eng.Run(req)

	assert.NotContains(t, strings.ToLower(res.FinalCopy), "경쟁사a")
	assert.Equal(t, 2, strings.Count(res.FinalCopy, DefaultRedactionMarker))
	assert.Empty(t, res.Scorecard.Penalties)
	assert.Equal(t, 100.0, res.Scorecard.TotalScore)
	require.NotEmpty(t, res.Debug.Passes)
	assert.Contains(t, res.Debug.Passes[0].Input, DefaultRedactionMarker)
}

func TestScenarioTwoCTAsKeepLast(t *testing.T) {
	eng := testEngine(t, Options{})
	draft := "지금 문의하세요. 좋은 서비스입니다. 상담 신청은 여기서 하세요."

	res := eng.Run(Request{ModuleKey: "landing", Draft: draft})

	maps := lexicon.Resolve(eng.Snapshot().RewriteMaps, "")
	assert.Equal(t, 1, detect.CTASentenceCount(res.FinalCopy, maps))
	assert.Contains(t, res.FinalCopy, "상담 신청은 여기서 하세요.")
	assert.NotContains(t, res.FinalCopy, "지금 문의하세요.")
	assert.Contains(t, res.Scorecard.TriggeredRules, "R-CTA")
}

func TestScenarioHardFailSinglePass(t *testing.T) {
	eng := testEngine(t, Options{})

	res := eng.Run(Request{ModuleKey: "landing", Draft: "완치 보장 프로그램입니다. 지금 문의하세요.", MaxPasses: 1})

	assert.True(t, res.Scorecard.HardFail)
	assert.False(t, res.Scorecard.Pass)
	assert.LessOrEqual(t, res.Scorecard.TotalScore, 0.0)
	assert.Len(t, res.Debug.Passes, 1)
	assert.Equal(t, StopMaxPasses, res.StopReason)
}

func TestHardFailRunsFullBudgetWithoutMarker(t *testing.T) {
	eng := testEngine(t, Options{})

	res := eng.Run(Request{ModuleKey: "landing", Draft: "완치 보장 프로그램입니다. 지금 문의하세요."})

	assert.Len(t, res.Debug.Passes, DefaultMaxPasses)
	assert.Equal(t, StopMaxPasses, res.StopReason)
}

func TestHardFailWithConfirmationMarkerStopsEarly(t *testing.T) {
	eng := testEngine(t, Options{})
	draft := "완치 보장 [확인 필요: 임상 자료] 프로그램입니다. 지금 문의하세요."

	res := eng.Run(Request{ModuleKey: "landing", Draft: draft, MaxPasses: 5})

	assert.Len(t, res.Debug.Passes, 1)
	assert.Equal(t, StopNeedsConfirmation, res.StopReason)
}

func TestIdempotentOnOwnOutput(t *testing.T) {
	eng := testEngine(t, Options{})
	drafts := []string{
		"상담을 준비합니다. 꼼꼼하게 확인합니다. 빠르게 안내합니다. 끝까지 동행합니다. 지금 문의하세요.",
		"혁신적인 방법으로 돕습니다. 지금 문의하세요. 상담 신청도 받습니다.",
		"좋은 서비스입니다.",
	}
	for _, draft := range drafts {
		first := eng.Run(Request{ModuleKey: "landing", Draft: draft})
		require.True(t, first.Scorecard.Pass, "draft %q did not pass: %+v", draft, first.Scorecard)

		second := eng.Run(Request{ModuleKey: "landing", Draft: first.FinalCopy})

		assert.Empty(t, second.Scorecard.TriggeredRules, draft)
		assert.Equal(t, first.FinalCopy, second.FinalCopy)
		assert.True(t, second.Scorecard.Pass)
		assert.Len(t, second.Debug.Passes, 1)
	}
}

func TestEvidenceLineFromProofPack(t *testing.T) {
	eng := testEngine(t, Options{})
	proof := ruleset.ProofPack{
		ruleset.ProofReviews:        {"친절해요"},
		ruleset.ProofNumbers:        {"누적 고객 1,200명", "재방문율 70%"},
		ruleset.ProofCertifications: {"ISO 9001"},
		ruleset.ProofPartners:       {"문의 창구 제휴"},
	}

	res := eng.Run(Request{ModuleKey: "landing", Draft: "좋은 서비스입니다. 지금 문의하세요.", ProofPack: proof})

	assert.Contains(t, res.FinalCopy, "근거: 누적 고객 1,200명 · ISO 9001 · 친절해요\n지금 문의하세요.")
	assert.Equal(t, 1, evidenceLines(res.FinalCopy))
	assert.Empty(t, res.Debug.InputRequests)
}

func TestVerificationSentenceWithoutProof(t *testing.T) {
	eng := testEngine(t, Options{})

	res := eng.Run(Request{
		ModuleKey:   "landing",
		IndustryKey: "clinic",
		Draft:       "편안한 진료를 약속합니다. 지금 문의하세요.",
		ProofPack:   ruleset.ProofPack{ruleset.ProofProcess: {"초진 상담", "맞춤 계획"}},
	})

	assert.Contains(t, res.FinalCopy, "검증 방법: 초진 상담 → 맞춤 계획 순서로 진행되며, 진료 과목 기준은 자료로 확인하실 수 있습니다.")
	assert.Equal(t, 1, evidenceLines(res.FinalCopy))
	assert.NotEmpty(t, res.Debug.InputRequests)
	assert.NotEmpty(t, res.Debug.NextQuestionsPrompt)
}

func TestVerificationLineSkipsCTASteps(t *testing.T) {
	eng := testEngine(t, Options{})

	res := eng.Run(Request{
		ModuleKey: "landing",
		Draft:     "편안한 진료를 약속합니다. 지금 문의하세요.",
		ProofPack: ruleset.ProofPack{ruleset.ProofProcess: {"온라인 신청 접수", "상담"}},
	})

	assert.Equal(t, "편안한 진료를 약속합니다.\n검증 방법: 상담 순서로 진행되며, 단계마다 결과를 확인하실 수 있습니다.\n지금 문의하세요.", res.FinalCopy)
	assert.Equal(t, 1, evidenceLines(res.FinalCopy))
	assert.Equal(t, 1, detect.CTASentenceCount(res.FinalCopy, lexicon.Resolve(eng.Snapshot().RewriteMaps, "")))
}

func TestDisclaimerWithCTATermSurvivesMerge(t *testing.T) {
	eng := testEngine(t, Options{})
	disclaimer := "부작용은 전문의 상담 후 문의 바랍니다."
	req := Request{ModuleKey: "clinic_landing", IndustryKey: "dermatology", Draft: "편안한 진료를 약속합니다. 지금 문의하세요."}

	res := eng.Run(req)
	assert.Equal(t, 1, strings.Count(res.FinalCopy, disclaimer))
	assert.True(t, strings.HasSuffix(res.FinalCopy, disclaimer+"\n지금 문의하세요."), res.FinalCopy)
	assert.Equal(t, 1, evidenceLines(res.FinalCopy))
	require.True(t, res.Scorecard.Pass)

	again := eng.Run(Request{ModuleKey: req.ModuleKey, IndustryKey: req.IndustryKey, Draft: res.FinalCopy})
	assert.Equal(t, res.FinalCopy, again.FinalCopy)
	assert.Empty(t, again.Scorecard.TriggeredRules)
}

func TestDisclaimersOnlyForHighRiskModules(t *testing.T) {
	eng := testEngine(t, Options{})
	disclaimer := "개인에 따라 결과가 다를 수 있습니다."
	req := Request{ModuleKey: "clinic_landing", IndustryKey: "clinic", Draft: "편안한 진료를 약속합니다. 지금 문의하세요."}

	res := eng.Run(req)
	assert.Equal(t, 1, strings.Count(res.FinalCopy, disclaimer))
	assert.True(t, strings.HasSuffix(res.FinalCopy, "지금 문의하세요."))

	again := eng.Run(Request{ModuleKey: req.ModuleKey, IndustryKey: req.IndustryKey, Draft: res.FinalCopy})
	assert.Equal(t, res.FinalCopy, again.FinalCopy)

	req.ModuleKey = "landing"
	assert.NotContains(t, eng.Run(req).FinalCopy, disclaimer)
}

func TestIndustryBlocklistTriggersHardFail(t *testing.T) {
	eng := testEngine(t, Options{})

	withIndustry := eng.Run(Request{ModuleKey: "landing", IndustryKey: "clinic", Draft: "부작용 없음을 약속합니다.", MaxPasses: 1})
	withoutIndustry := eng.Run(Request{ModuleKey: "landing", Draft: "부작용 없음을 약속합니다.", MaxPasses: 1})

	assert.True(t, withIndustry.Scorecard.HardFail)
	assert.False(t, withoutIndustry.Scorecard.HardFail)
}

func TestRulesRunInSeverityOrder(t *testing.T) {
	eng := testEngine(t, Options{})
	draft := "혁신적인 방식입니다. 완치 보장합니다. 지금 문의하세요. 상담 신청하세요."

	res := eng.Run(Request{ModuleKey: "landing", Draft: draft, MaxPasses: 1})

	assert.Equal(t, []string{"R-BLOCK", "R-CTA", "R-CLICHE"}, res.Scorecard.TriggeredRules)
}

func TestOutputProperties(t *testing.T) {
	eng := testEngine(t, Options{})
	maps := lexicon.Resolve(eng.Snapshot().RewriteMaps, "")
	drafts := []string{
		"",
		"좋은 서비스입니다.",
		"지금 문의하세요. 신청하세요. 문의는 언제든 환영합니다.",
		"완치 보장 프로그램입니다. 지금 문의하세요.",
		"혁신적인 솔루션입니다. 혁신적인 팀입니다.\n- 하나\n- 둘",
		"준비합니다. 확인합니다. 안내합니다. 공유합니다. 정리합니다. 마무리합니다. 지원합니다. 신청하세요.",
	}
	for _, draft := range drafts {
		res := eng.Run(Request{ModuleKey: "landing", Draft: draft})
		card := res.Scorecard

		assert.LessOrEqual(t, detect.CTASentenceCount(res.FinalCopy, maps), 1, draft)
		if card.HardFail {
			assert.LessOrEqual(t, card.TotalScore, 0.0, draft)
		}
		if card.Pass {
			assert.False(t, card.HardFail, draft)
			assert.GreaterOrEqual(t, card.TotalScore, card.Cutoff, draft)
			assert.Equal(t, scorecard.MaxDimension, card.DimensionScores[ruleset.DimensionCredibilitySafety], draft)
		}
		for d, v := range card.DimensionScores {
			assert.GreaterOrEqual(t, v, scorecard.MinDimension, d)
			assert.LessOrEqual(t, v, scorecard.MaxDimension, d)
		}
		assert.Equal(t, 1, evidenceLines(res.FinalCopy), draft)
		assert.LessOrEqual(t, len(res.Debug.Passes), DefaultMaxPasses)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	eng := testEngine(t, Options{})
	req := Request{ModuleKey: "landing", Draft: "혁신적인 방식입니다. 지금 문의하세요. 신청하세요."}

	first := eng.Run(req)
	second := eng.Run(req)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
}

func TestConcurrentRunsShareSnapshot(t *testing.T) {
	eng := testEngine(t, Options{})
	req := Request{ModuleKey: "landing", Draft: "혁신적인 방식입니다. 지금 문의하세요. 신청하세요."}
	want := eng.Run(req)

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Go(func() {
			results[i] = eng.Run(req)
		})
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want.FinalCopy, got.FinalCopy)
		assert.Equal(t, want.Scorecard.TotalScore, got.Scorecard.TotalScore)
	}
}

func TestStepTransitions(t *testing.T) {
	eng := testEngine(t, Options{})
	run := eng.Prepare(Request{
		ModuleKey:  "landing",
		Draft:      "  금지어 포함   초안입니다.  ",
		BrandStyle: ruleset.BrandStyle{Blacklist: []string{"금지어"}},
		MaxPasses:  2,
	})
	assert.Equal(t, 2, run.MaxPasses())

	state := run.Initial()
	assert.Equal(t, PhasePrePass, state.Phase)

	state = run.Step(state)
	assert.Equal(t, PhasePass, state.Phase)
	assert.Equal(t, "[REDACTED] 포함 초안입니다.", state.Text)
	assert.Empty(t, state.Passes)

	state = run.Step(state)
	require.Len(t, state.Passes, 1)
	assert.Equal(t, PhaseDone, state.Phase)
	assert.Equal(t, StopPassed, state.Stop)

	done := run.Step(state)
	assert.Equal(t, state.Text, done.Text)
	assert.Len(t, done.Passes, 1)
}

func TestPassBudgetClamped(t *testing.T) {
	eng := testEngine(t, Options{PassCeiling: 4})

	assert.Equal(t, 4, eng.Prepare(Request{MaxPasses: 50}).MaxPasses())
	assert.Equal(t, DefaultMaxPasses, eng.Prepare(Request{}).MaxPasses())
}

type recordingObserver struct {
	mu        sync.Mutex
	triggered []string
	passes    int
	runs      []StopReason
}

func (o *recordingObserver) RuleTriggered(_ string, rule ruleset.RuleSpec) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.triggered = append(o.triggered, rule.ID)
}

func (o *recordingObserver) PassCompleted(string, PassRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.passes++
}

func (o *recordingObserver) RunCompleted(_ string, result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, result.StopReason)
}

func TestObserverReceivesEvents(t *testing.T) {
	observer := &recordingObserver{}
	eng := testEngine(t, Options{Observer: observer})

	eng.Run(Request{ModuleKey: "landing", Draft: "완치 보장 프로그램입니다.", MaxPasses: 2})

	assert.Equal(t, []string{"R-BLOCK", "R-BLOCK"}, observer.triggered)
	assert.Equal(t, 2, observer.passes)
	assert.Equal(t, []StopReason{StopMaxPasses}, observer.runs)
}

func TestNilSnapshotPassesCleanDraft(t *testing.T) {
	eng := New(nil, Options{Clock: func() time.Time { return fixedNow }})

	res := eng.Run(Request{ModuleKey: "any", Draft: "안녕하세요."})

	assert.True(t, res.Scorecard.Pass)
	assert.True(t, slices.Contains(res.Scorecard.AppliedActions, "GLOBAL:INSERT_EVIDENCE"))
}
