package action

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slighter12/qualityos-mcp-go/quality/lexicon"
	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
)

func testContext() Context {
	maps := lexicon.Resolve(ruleset.RewriteMaps{
		Lexicons: ruleset.Lexicons{
			CTA:       []string{"문의", "신청"},
			Overclaim: []string{"100% 보장", "무조건"},
		},
		ClicheToSpecific: map[string]string{
			"혁신적인":   "새로운 방식의",
			"차별화된": "다른 곳과 구분되는",
		},
		AbstractToSpecific: map[string]string{
			"품질":     "검수 기준",
			"높은 품질": "3단계 검수를 거친 품질",
		},
		SafeSofteners: map[string]string{
			"100% 보장":           "최대한 지원",
			SoftenerFallbackKey: "대부분의 경우",
		},
	}, "")
	return Context{Maps: maps, DefaultCTA: "지금 문의하세요."}
}

func TestApplyReplaceStrategies(t *testing.T) {
	ctx := testContext()

	got := Apply(ruleset.Replace{Strategy: ruleset.StrategyClicheToSpecific}, "혁신적인 서비스와 차별화된 경험", ctx)
	assert.Equal(t, "새로운 방식의 서비스와 다른 곳과 구분되는 경험", got.Text)
	assert.True(t, got.Changed)

	got = Apply(ruleset.Replace{Strategy: ruleset.StrategyAbstractToSpecific}, "높은 품질을 약속합니다.", ctx)
	assert.Equal(t, "3단계 검수를 거친 품질을 약속합니다.", got.Text)
}

func TestApplySafeSoftener(t *testing.T) {
	got := Apply(ruleset.Downshift{Strategy: ruleset.StrategySafeSoftener}, "결과를 100% 보장하며 무조건 만족합니다.", testContext())
	assert.Equal(t, "결과를 최대한 지원하며 대부분의 경우 만족합니다.", got.Text)
}

func TestVaryEndingsRewritesFourthInRun(t *testing.T) {
	text := "상담을 준비합니다. 꼼꼼히 확인합니다. 빠르게 안내합니다. 끝까지 책임집니다. 결과를 공유합니다."
	action := ruleset.Downshift{
		Strategy:   ruleset.StrategyVaryEndings,
		Ending:     ruleset.DefaultFormalEnding,
		Alternates: ruleset.DefaultEndingAlternates,
		RunLength:  ruleset.DefaultEndingRun,
	}

	got := Apply(action, text, testContext())

	assert.Equal(t, "상담을 준비합니다. 꼼꼼히 확인합니다. 빠르게 안내합니다. 끝까지 책임집니다. 결과를 공유합니다.", got.Text)
	assert.False(t, got.Changed)

	text = "준비합니다. 확인합니다. 안내합니다. 공유합니다. 정리합니다."
	got = Apply(action, text, testContext())
	assert.Equal(t, "준비합니다. 확인합니다. 안내합니다. 공유해요. 정리합니다.", got.Text)
}

func TestSplitLongSentences(t *testing.T) {
	long := strings.Repeat("단어 ", 15) + "그리고 " + strings.Repeat("말 ", 15) + "끝입니다."

	got := SplitLongSentences(long, ruleset.DefaultSplitMaxWords)

	sentences := strings.Split(got, ". ")
	require.Len(t, sentences, 2)
	assert.True(t, strings.HasPrefix(sentences[1], "그리고 "))
	assert.True(t, strings.HasSuffix(got, "끝입니다."))

	noSplit := strings.Repeat("단어 ", 30) + "끝."
	assert.Equal(t, noSplit, SplitLongSentences(noSplit, ruleset.DefaultSplitMaxWords))
}

func TestDeDuplicate(t *testing.T) {
	assert.Equal(t, "정말 좋아요.", DeDuplicate("정말 정말 좋아요."))
	assert.Equal(t, "빠른 배송 서비스", DeDuplicate("빠른 배송 빠른 배송 서비스"))
	assert.Equal(t, "변화 없음", DeDuplicate("변화 없음"))
}

func TestTrimListKeepsNonListLines(t *testing.T) {
	text := "혜택 안내\n- 하나\n- 둘\n- 셋\n마무리"

	assert.Equal(t, "혜택 안내\n- 하나\n- 둘\n마무리", TrimList(text, 2))
	assert.Equal(t, text, TrimList(text, 5))
}

func TestKeepFirstSentences(t *testing.T) {
	assert.Equal(t, "하나. 둘. 셋.", KeepFirstSentences("하나. 둘. 셋. 넷. 다섯.", 3))
	assert.Equal(t, "하나. 둘.", KeepFirstSentences("하나. 둘.", 3))
}

func TestSuperlativeAndRankRewrites(t *testing.T) {
	ctx := testContext()

	got := Apply(ruleset.Downshift{Strategy: ruleset.StrategySuperlativeToStandard}, "최고의 맛과 가장 빠른 배송", ctx)
	assert.Equal(t, "우수한 맛과 빠른 배송", got.Text)

	got = Apply(ruleset.Downshift{Strategy: ruleset.StrategyRankToStandard}, "업계 1위 브랜드, #1 choice", ctx)
	assert.Equal(t, "업계에서 인정받는 브랜드, a leading choice", got.Text)

	got = Apply(ruleset.Downshift{Strategy: ruleset.StrategyRankToStandard}, "No 1 service", ctx)
	assert.Equal(t, "a leading service", got.Text)
}

func TestInsertPositions(t *testing.T) {
	ctx := testContext()
	text := "좋은 서비스입니다. 지금 문의하세요."

	got := Apply(ruleset.Insert{Position: ruleset.InsertBeforeCTA, Template: "근거: 회원 1만 명"}, text, ctx)
	assert.Equal(t, "좋은 서비스입니다. 근거: 회원 1만 명 지금 문의하세요.", got.Text)

	got = Apply(ruleset.Insert{Position: ruleset.InsertEnd, Template: "{{CTA_DEFAULT}}"}, "좋은 서비스입니다.", ctx)
	assert.Equal(t, "좋은 서비스입니다. 지금 문의하세요.", got.Text)

	got = Apply(ruleset.Insert{Position: ruleset.InsertEndIfMissing, Template: "{{CTA_DEFAULT}}"}, text, ctx)
	assert.False(t, got.Changed)

	got = Apply(ruleset.Insert{Position: ruleset.InsertStart, Template: "[안내]"}, text, ctx)
	assert.Equal(t, "[안내]\n"+text, got.Text)

	again := Apply(ruleset.Insert{Position: ruleset.InsertStart, Template: "[안내]"}, got.Text, ctx)
	assert.False(t, again.Changed)
}

func TestMergeCTAKeepsLast(t *testing.T) {
	maps := testContext().Maps

	got := MergeCTA("지금 문의하세요. 좋은 서비스입니다. 상담 신청은 여기서 하세요.", maps, "지금 문의하세요.")
	assert.Equal(t, "좋은 서비스입니다. 상담 신청은 여기서 하세요.", got)

	single := "좋은 서비스입니다. 지금 문의하세요."
	assert.Equal(t, single, MergeCTA(single, maps, "지금 문의하세요."))

	assert.Equal(t, "좋은 서비스입니다. 지금 문의하세요.", MergeCTA("좋은 서비스입니다.", maps, "지금 문의하세요."))
	assert.Equal(t, "좋은 서비스입니다.", MergeCTA("좋은 서비스입니다.", maps, ""))
}

func TestMergeCTAKeepsDisclaimerLines(t *testing.T) {
	maps := testContext().Maps
	maps.RequiredDisclaimers = []string{"부작용은 전문의 상담 후 문의 바랍니다."}
	text := "편안한 진료입니다.\n부작용은 전문의 상담 후 문의 바랍니다.\n지금 문의하세요."

	assert.Equal(t, text, MergeCTA(text, maps, "지금 문의하세요."))

	got := MergeCTA("상담 신청하세요.\n"+text, maps, "지금 문의하세요.")
	assert.Equal(t, text, got)
}

func TestInsertEndMovesCTAToTheEnd(t *testing.T) {
	ctx := testContext()
	text := "지금 문의하세요. 좋은 서비스입니다. 꼼꼼하게 안내합니다."

	got := Apply(ruleset.Insert{Position: ruleset.InsertEnd, Template: "{{CTA_DEFAULT}}"}, text, ctx)
	require.True(t, got.Changed)
	merged := Apply(ruleset.MergeCTA{}, got.Text, ctx)
	assert.Equal(t, "좋은 서비스입니다. 꼼꼼하게 안내합니다. 지금 문의하세요.", merged.Text)

	again := Apply(ruleset.Insert{Position: ruleset.InsertEnd, Template: "{{CTA_DEFAULT}}"}, merged.Text, ctx)
	assert.False(t, again.Changed)
}

func TestCalmPunctuation(t *testing.T) {
	got := Apply(ruleset.Downshift{Strategy: ruleset.StrategyCalmPunctuation}, "역대급 할인!! 놓치지 마세요~~ 정말요??", testContext())
	assert.Equal(t, "역대급 할인! 놓치지 마세요~ 정말요?", got.Text)
}

func TestLabelIsIdempotent(t *testing.T) {
	ctx := testContext()
	got := Apply(ruleset.Label{Text: "[광고]"}, "본문입니다.", ctx)
	assert.Equal(t, "[광고]\n본문입니다.", got.Text)

	again := Apply(ruleset.Label{Text: "[광고]"}, got.Text, ctx)
	assert.Equal(t, got.Text, again.Text)
}

func TestUnhandledActionLeavesTextUnchanged(t *testing.T) {
	got := Apply(ruleset.UnhandledAction{Type: "REWRITE_WITH_LLM"}, "원문", testContext())

	assert.Equal(t, "원문", got.Text)
	assert.False(t, got.Changed)
	require.NotNil(t, got.Unhandled)
	assert.Equal(t, "REWRITE_WITH_LLM", got.Unhandled.Type)
}

func TestRedactIsCaseInsensitive(t *testing.T) {
	got := Redact("Cheap deals, CHEAP prices, 경쟁사A 대비", []string{"cheap", "경쟁사A"}, "[REDACTED]")
	assert.Equal(t, "[REDACTED] deals, [REDACTED] prices, [REDACTED] 대비", got)
}

func TestResolveDefaultCTA(t *testing.T) {
	assert.Equal(t, "브랜드 CTA", ResolveDefaultCTA(ruleset.BrandStyle{DefaultCTA: " 브랜드 CTA "}, "기본"))
	assert.Equal(t, "기본", ResolveDefaultCTA(ruleset.BrandStyle{}, "기본"))
}
