package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmountToken(t *testing.T) {
	out, changed := NormalizeAmountToken("1O5O")
	assert.Equal(t, "1050", out)
	assert.True(t, changed)

	out, changed = NormalizeAmountToken("123,45")
	assert.Equal(t, "123,45", out)
	assert.False(t, changed)

	out, changed = NormalizeAmountToken("l2S,B0")
	assert.Equal(t, "125,80", out)
	assert.True(t, changed)
}

func TestDecimalCandidatesGarbledToken(t *testing.T) {
	cands := DecimalCandidates("1O5O")
	assert.Contains(t, cands, "10,50")
	assert.Contains(t, cands, "10.50")
	assert.Contains(t, cands, "1,05")
}

func TestDecimalCandidatesKeepsExistingDecimal(t *testing.T) {
	cands := DecimalCandidates("123,45")
	assert.Equal(t, []string{"123,45", "123.45"}, cands)
}

func TestDecimalCandidatesTooShort(t *testing.T) {
	assert.Nil(t, DecimalCandidates("12"))
	assert.Nil(t, DecimalCandidates(""))
}

func TestParseAmountCandidates(t *testing.T) {
	vals := ParseAmountCandidates("1O5O")
	assert.Contains(t, vals, 10.50)
	assert.Contains(t, vals, 1.05)
}

func TestBestCandidatePrefersClosestToGuess(t *testing.T) {
	guess := 11.0
	v, ok := BestCandidate([]float64{1.05, 10.50, 105.0}, &guess)
	assert.True(t, ok)
	assert.Equal(t, 10.50, v)

	v, ok = BestCandidate([]float64{1.05, 10.50}, nil)
	assert.True(t, ok)
	assert.Equal(t, 1.05, v)

	_, ok = BestCandidate(nil, &guess)
	assert.False(t, ok)
}

func TestFilterCandidates(t *testing.T) {
	out := FilterCandidates([]float64{-5, 10, 2000}, func(v float64) bool { return v > 0 && v < 1000 })
	assert.Equal(t, []float64{10}, out)
}
