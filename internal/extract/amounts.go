package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Common OCR confusions inside numeric tokens.
var ocrCharMap = map[rune]rune{
	'O': '0',
	'o': '0',
	'l': '1',
	'I': '1',
	'S': '5',
	's': '5',
	'B': '8',
}

var (
	currencySuffixRe = regexp.MustCompile(`(?i)\s*(Kč|CZK|EUR)$`)
	decimalTokenRe   = regexp.MustCompile(`^-?\d+[,.]\d{2}$`)
	nonDigitRe       = regexp.MustCompile(`\D+`)
	wsRe             = regexp.MustCompile(`\s+`)
)

// NormalizeAmountToken rewrites common OCR character confusions in a numeric
// token. Returns the rewritten token and whether anything changed.
func NormalizeAmountToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	out := strings.Map(func(r rune) rune {
		if repl, ok := ocrCharMap[r]; ok {
			return repl
		}
		return r
	}, token)
	out = strings.TrimSpace(strings.ReplaceAll(out, " ", " "))
	return out, out != token
}

// DecimalCandidates generates plausible decimal placements for a garbled OCR
// amount token, e.g. "1O5O" -> ["10,50" "10.50" "1,05" "1.05"].
func DecimalCandidates(token string) []string {
	norm, _ := NormalizeAmountToken(token)
	compact := wsRe.ReplaceAllString(norm, "")
	compact = currencySuffixRe.ReplaceAllString(compact, "")
	compact = strings.ReplaceAll(compact, ".", ",")
	if compact == "" {
		return nil
	}

	// already has a 2-digit decimal part: keep it, plus a dot variant
	if decimalTokenRe.MatchString(strings.ReplaceAll(compact, ",", ".")) && strings.Contains(compact, ",") {
		return dedupeStrings([]string{compact, strings.ReplaceAll(compact, ",", ".")})
	}

	digits := nonDigitRe.ReplaceAllString(compact, "")
	if len(digits) < 3 {
		return nil
	}

	var cands []string
	base := digits[:len(digits)-2] + "," + digits[len(digits)-2:]
	cands = append(cands, base, strings.ReplaceAll(base, ",", "."))

	// OCR sometimes inserts or drops one digit; try the neighbouring split too
	if len(digits) >= 4 {
		alt := digits[:len(digits)-3] + "," + digits[len(digits)-3:len(digits)-1]
		cands = append(cands, alt, strings.ReplaceAll(alt, ",", "."))
	}
	return dedupeStrings(cands)
}

// ParseAmountCandidates parses the decimal candidates of a token into values.
func ParseAmountCandidates(token string) []float64 {
	var out []float64
	seen := map[float64]struct{}{}
	for _, cand := range DecimalCandidates(token) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.ReplaceAll(cand, " ", ""), ",", "."), 64)
		if err != nil {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FilterCandidates keeps only candidates passing an accounting invariant.
func FilterCandidates(candidates []float64, valid func(float64) bool) []float64 {
	var out []float64
	for _, c := range candidates {
		if valid(c) {
			out = append(out, c)
		}
	}
	return out
}

// BestCandidate picks the candidate closest to the original guess, or the
// first one when there is no guess.
func BestCandidate(candidates []float64, originalGuess *float64) (float64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	if originalGuess == nil {
		return candidates[0], true
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if math.Abs(c-*originalGuess) < math.Abs(best-*originalGuess) {
			best = c
		}
	}
	return best, true
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
