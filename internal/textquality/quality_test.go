package textquality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreEmptyText(t *testing.T) {
	s, m := Score("")
	assert.Zero(t, s)
	assert.Zero(t, m.CharsNonWS)

	s, _ = Score("   \n\t  ")
	assert.Zero(t, s)
}

func TestScoreCleanInvoiceText(t *testing.T) {
	text := strings.Repeat("Faktura 2024-0042 Dodavatel: Rohlik.cz, Celkem k úhradě 1 234,50 Kč\n", 10)
	s, m := Score(text)
	assert.Greater(t, s, 0.5, "clean dense text should score well")
	assert.LessOrEqual(t, s, 1.0)
	assert.Positive(t, m.RatioLetters)
	assert.Positive(t, m.RatioDigits)
}

func TestScoreReplacementCharsDragDown(t *testing.T) {
	clean := strings.Repeat("Polozka 123,45 Kc za kus\n", 8)
	dirty := strings.Repeat("Po�o�ka 1��,45 �� za k�s\n", 8)

	sClean, _ := Score(clean)
	sDirty, mDirty := Score(dirty)
	assert.Positive(t, mDirty.ReplacementChars)
	assert.Less(t, sDirty, sClean)
}

func TestScoreShortFragmentDamped(t *testing.T) {
	short, _ := Score("ab 12")
	long, _ := Score(strings.Repeat("ab 12 cd 34 ef 56 gh 78 ", 5))
	assert.Less(t, short, long)
}

func TestSummarizeWeightsLineLengths(t *testing.T) {
	a := Compute("aaaa\nbbbb\ncccc\n")            // 3 lines of 4
	b := Compute("aaaaaaaaaaaaaaaaaaaaaaaaaaaa") // 1 line of 28

	s := Summarize([]Metrics{a, b})
	assert.Equal(t, 2, s.Pages)
	assert.Equal(t, 2, s.PagesNonEmpty)
	// (3*4 + 1*28) / 4 = 10
	assert.InDelta(t, 10.0, s.AvgLineLen, 0.001)
}
