package ceg

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClassifiesSentences(t *testing.T) {
	text := "저희는 빠르게 배송합니다. 고객 만족도 98%를 기록했습니다. 궁금하신가요?"

	got := Extract(text)

	assert.Equal(t, []string{"저희는 빠르게 배송합니다.", "고객 만족도 98%를 기록했습니다."}, got.Claims)
	assert.Equal(t, []string{"고객 만족도 98%를 기록했습니다."}, got.Evidence)
	assert.Equal(t, []string{"저희는 빠르게 배송합니다."}, got.UnlinkedClaims)
}

func TestExtractUsesExactEqualityForLinking(t *testing.T) {
	// The evidence sentence supports the claim semantically but is not byte-identical.
	text := "업계에서 인정받은 서비스입니다. ISO 인증을 받았습니다"

	got := Extract(text)

	assert.Contains(t, got.UnlinkedClaims, "업계에서 인정받은 서비스입니다.")
	assert.Contains(t, got.Evidence, "ISO 인증을 받았습니다")
}

func TestExtractSkipsLongSentencesAsClaims(t *testing.T) {
	long := strings.Repeat("가", MaxClaimRunes) + "다."

	got := Extract(long)

	assert.Empty(t, got.Claims)
	assert.NotNil(t, got.Claims)
}

func TestExtractDedupesAndCaps(t *testing.T) {
	var b strings.Builder
	for i := range 12 {
		fmt.Fprintf(&b, "항목 %d번은 좋습니다.\n", i)
	}
	b.WriteString("항목 0번은 좋습니다.\n")

	got := Extract(b.String())

	assert.Len(t, got.Claims, MaxEntries)
	assert.Len(t, got.Evidence, MaxEntries)
	assert.Empty(t, got.UnlinkedClaims)
	assert.Equal(t, 12, Count(b.String()))
}

func TestIsEvidenceMarkers(t *testing.T) {
	assert.True(t, IsEvidence("Featured in the press last spring"))
	assert.True(t, IsEvidence("고객 후기가 증명합니다"))
	assert.False(t, IsEvidence("정성을 다합니다"))
}
