// Package vat canonicalizes line items and reconciles document totals.
//
// Every item that enters the database passes through DeriveItem so that unit
// and line prices, net and gross, and the VAT band code are all filled in and
// mutually consistent. ComputeTotals then rebuilds the document-level sums and
// per-rate breakdown from the canonical items and checks them against the
// printed total.
package vat

import (
	"fmt"
	"math"
	"sort"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

const (
	// Reconciliation passes when |sum - printed| is within either bound.
	absTolerance = 2.0
	relTolerance = 0.03
)

// BandCode maps a VAT rate to its stable band code.
func BandCode(rate float64) string {
	switch rate {
	case 0:
		return "ZERO"
	case 10:
		return "REDUCED_2"
	case 12:
		return "REDUCED_0"
	case 15:
		return "REDUCED_1"
	case 21:
		return "STANDARD"
	default:
		return fmt.Sprintf("RATE_%g", rate)
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// DeriveItem turns a raw extracted item into a canonical line item. Whatever
// subset of unit/line net/gross amounts was extracted, the missing ones are
// derived from the VAT rate and quantity; a zero quantity counts as one.
func DeriveItem(lineNo int, raw extract.Item) entity.LineItem {
	qty := raw.Quantity
	if qty <= 0 {
		qty = 1
	}
	factor := 1 + raw.VATRate/100

	lineGross := valueOf(raw.LineGross)
	lineNet := valueOf(raw.LineNet)
	unitGross := valueOf(raw.UnitGross)
	unitNet := valueOf(raw.UnitNet)

	// Fill line amounts first; they anchor everything else.
	switch {
	case lineGross == nil && lineNet != nil:
		g := *lineNet * factor
		lineGross = &g
	case lineGross == nil && unitGross != nil:
		g := *unitGross * qty
		lineGross = &g
	case lineGross == nil && unitNet != nil:
		g := *unitNet * qty * factor
		lineGross = &g
	}
	if lineGross == nil {
		z := 0.0
		lineGross = &z
	}
	if lineNet == nil {
		n := *lineGross / factor
		lineNet = &n
	}
	if unitGross == nil {
		u := *lineGross / qty
		unitGross = &u
	}
	if unitNet == nil {
		u := *lineNet / qty
		unitNet = &u
	}

	return entity.LineItem{
		LineNo:    lineNo,
		Name:      raw.Name,
		Quantity:  qty,
		UnitNet:   round4(*unitNet),
		UnitGross: round4(*unitGross),
		LineNet:   round2(*lineNet),
		LineGross: round2(*lineGross),
		VATRate:   raw.VATRate,
		VATAmount: round2(*lineGross - *lineNet),
		VATCode:   BandCode(raw.VATRate),
	}
}

func valueOf(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Totals is the recomputed document-level view of a set of canonical items.
type Totals struct {
	Net       float64
	VAT       float64
	Gross     float64
	Breakdown []entity.VATBand

	// Reconciled is true when a printed total was available and the item sum
	// matched it within tolerance. Unverifiable means no printed total.
	Reconciled   bool
	Unverifiable bool
	Delta        float64
}

// ComputeTotals sums canonical items, builds the per-rate breakdown sorted by
// rate, and reconciles against the printed total when one exists.
func ComputeTotals(items []entity.LineItem, printedTotal *float64) Totals {
	byRate := map[float64]*entity.VATBand{}
	var t Totals
	for _, it := range items {
		t.Net += it.LineNet
		t.VAT += it.VATAmount
		t.Gross += it.LineGross
		b, ok := byRate[it.VATRate]
		if !ok {
			b = &entity.VATBand{Rate: it.VATRate, Code: it.VATCode}
			byRate[it.VATRate] = b
		}
		b.Net = round2(b.Net + it.LineNet)
		b.VAT = round2(b.VAT + it.VATAmount)
		b.Gross = round2(b.Gross + it.LineGross)
	}
	t.Net, t.VAT, t.Gross = round2(t.Net), round2(t.VAT), round2(t.Gross)

	for _, b := range byRate {
		t.Breakdown = append(t.Breakdown, *b)
	}
	sort.Slice(t.Breakdown, func(i, j int) bool { return t.Breakdown[i].Rate < t.Breakdown[j].Rate })

	if printedTotal == nil {
		t.Unverifiable = true
		return t
	}
	t.Delta = math.Abs(t.Gross - *printedTotal)
	t.Reconciled = WithinTolerance(t.Gross, *printedTotal)
	return t
}

// WithinTolerance reports whether two gross amounts agree within the absolute
// or the relative bound.
func WithinTolerance(sum, printed float64) bool {
	delta := math.Abs(sum - printed)
	if delta <= absTolerance {
		return true
	}
	ref := math.Max(math.Abs(printed), 1)
	return delta/ref <= relTolerance
}

// CorrectItems tries OCR amount correction on items whose raw tokens look
// garbled, accepting a corrected line gross only when it strictly shrinks the
// gap between the item sum and the printed total. Returns the corrected items
// and whether any correction was applied.
func CorrectItems(items []entity.LineItem, raws []extract.Item, printedTotal *float64) ([]entity.LineItem, bool) {
	if printedTotal == nil || len(items) != len(raws) {
		return items, false
	}
	sum := 0.0
	for _, it := range items {
		sum += it.LineGross
	}
	bestDelta := math.Abs(round2(sum) - *printedTotal)
	if WithinTolerance(round2(sum), *printedTotal) {
		return items, false
	}

	corrected := false
	for i := range items {
		token := raws[i].RawTotal
		if token == "" {
			continue
		}
		// a candidate qualifies only when it strictly shrinks the gap; among
		// the qualifiers, the one closest to the gross the total implies wins
		rest := sum - items[i].LineGross
		target := *printedTotal - rest
		cands := extract.FilterCandidates(extract.ParseAmountCandidates(token), func(c float64) bool {
			return math.Abs(round2(rest+c)-*printedTotal) < bestDelta
		})
		cand, ok := extract.BestCandidate(cands, &target)
		if !ok {
			continue
		}
		// strict improvement: re-derive the line from the new gross
		raw := raws[i]
		raw.LineGross = &cand
		raw.UnitGross = nil
		raw.LineNet = nil
		raw.UnitNet = nil
		items[i] = DeriveItem(items[i].LineNo, raw)
		sum = rest + cand
		bestDelta = math.Abs(round2(sum) - *printedTotal)
		corrected = true
	}
	return items, corrected
}
