// Package textquality scores extracted page text so the pipeline can decide
// whether an embedded PDF layer is trustworthy or the page must be OCR'd.
package textquality

import (
	"math"
	"strings"
	"unicode"
)

// Metrics are per-text character statistics.
type Metrics struct {
	CharsTotal       int
	CharsNonWS       int
	CharsPrintable   int
	CharsLetters     int
	CharsDigits      int
	ReplacementChars int
	LinesNonEmpty    int
	AvgLineLen       float64
	TokenGroups      int

	RatioNonWS       float64
	RatioPrintable   float64
	RatioLetters     float64 // letters / non-whitespace
	RatioDigits      float64 // digits / non-whitespace
	RatioReplacement float64
}

// Compute gathers character statistics for one page of text.
func Compute(text string) Metrics {
	var m Metrics
	for _, r := range text {
		m.CharsTotal++
		if !unicode.IsSpace(r) {
			m.CharsNonWS++
		}
		if unicode.IsPrint(r) {
			m.CharsPrintable++
		}
		if unicode.IsLetter(r) {
			m.CharsLetters++
		}
		if unicode.IsDigit(r) {
			m.CharsDigits++
		}
		if r == '�' {
			m.ReplacementChars++
		}
	}
	var lineLenSum int
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		m.LinesNonEmpty++
		lineLenSum += len(ln)
	}
	if m.LinesNonEmpty > 0 {
		m.AvgLineLen = float64(lineLenSum) / float64(m.LinesNonEmpty)
	}
	m.TokenGroups = len(strings.Fields(text))

	m.RatioNonWS = ratio(m.CharsNonWS, m.CharsTotal)
	m.RatioPrintable = ratio(m.CharsPrintable, m.CharsTotal)
	m.RatioLetters = ratio(m.CharsLetters, m.CharsNonWS)
	m.RatioDigits = ratio(m.CharsDigits, m.CharsNonWS)
	m.RatioReplacement = ratio(m.ReplacementChars, m.CharsTotal)
	return m
}

// Score collapses Metrics into a single quality score in [0,1]. Empty or
// whitespace-only text scores 0; heavy replacement-character contamination
// drags the score down sharply.
func Score(text string) (float64, Metrics) {
	m := Compute(text)
	if m.CharsNonWS == 0 {
		return 0, m
	}
	content := m.RatioLetters + m.RatioDigits
	if content > 1 {
		content = 1
	}
	density := m.RatioNonWS * 2.5
	if density > 1 {
		density = 1
	}
	s := 0.6*content + 0.4*density
	s -= 2.0 * m.RatioReplacement
	// Very short fragments cannot carry a whole page.
	if m.CharsNonWS < 20 {
		s *= float64(m.CharsNonWS) / 20.0
	}
	return clamp01(s), m
}

// Summary aggregates per-page metrics into document-level figures.
type Summary struct {
	Pages         int
	PagesNonEmpty int
	CharsTotal    int
	CharsNonWS    int
	RatioLetters  float64
	RatioDigits   float64
	AvgLineLen    float64
}

// Summarize folds page metrics into a Summary. The average line length is
// weighted by each page's non-empty line count.
func Summarize(pages []Metrics) Summary {
	var s Summary
	s.Pages = len(pages)
	var letters, digits, lineCount int
	var lineLenSum float64
	for _, m := range pages {
		if m.CharsNonWS > 0 {
			s.PagesNonEmpty++
		}
		s.CharsTotal += m.CharsTotal
		s.CharsNonWS += m.CharsNonWS
		letters += m.CharsLetters
		digits += m.CharsDigits
		lineCount += m.LinesNonEmpty
		lineLenSum += m.AvgLineLen * float64(m.LinesNonEmpty)
	}
	s.RatioLetters = ratio(letters, s.CharsNonWS)
	s.RatioDigits = ratio(digits, s.CharsNonWS)
	if lineCount > 0 {
		s.AvgLineLen = lineLenSum / float64(lineCount)
	}
	return s
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
