package extract

import (
	"regexp"
	"strings"
)

// layoutRecognizer extracts line items from one known document layout.
// Recognizers are tried in order and the first match wins; the generic
// recognizer always matches and runs last.
type layoutRecognizer interface {
	Name() string
	Matches(text string) bool
	Extract(text string) []Item
}

var recognizers = []layoutRecognizer{
	rohlikLayout{},
	albertLayout{},
	genericLayout{},
}

// ExtractItems runs the recognizer chain over full-page text.
func ExtractItems(text string) []Item {
	for _, r := range recognizers {
		if !r.Matches(text) {
			continue
		}
		if items := r.Extract(text); len(items) > 0 {
			return items
		}
	}
	return nil
}

// rohlikLayout handles Rohlik.cz invoices: numbered rows with quantity,
// unit price, VAT rate and row total in fixed columns.
type rohlikLayout struct{}

var rohlikRowRe = regexp.MustCompile(
	`^\s*\d+\.?\s+(.{2,70}?)\s+(\d+(?:[.,]\d+)?)\s*(?:ks|kg|l|bal)?\s+(-?\d[\d \x{a0}]*[.,]\d{2})\s+(\d{1,2})\s*%\s+(-?\d[\d \x{a0}]*[.,]\d{2})\s*$`)

func (rohlikLayout) Name() string { return "rohlik" }

func (rohlikLayout) Matches(text string) bool {
	low := strings.ToLower(text)
	return strings.Contains(low, "rohlik.cz") || strings.Contains(low, "velká pekárna")
}

func (rohlikLayout) Extract(text string) []Item {
	var items []Item
	for _, line := range strings.Split(text, "\n") {
		m := rohlikRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		qty, err := ParseAmount(m[2])
		if err != nil || qty <= 0 {
			qty = 1
		}
		unit, uerr := ParseAmount(m[3])
		rate, _ := ParseAmount(m[4])
		total, terr := ParseAmount(m[5])
		it := Item{Name: strings.TrimSpace(m[1]), Quantity: qty, VATRate: rate, RawTotal: m[5]}
		if uerr == nil {
			it.UnitGross = &unit
		}
		if terr == nil {
			it.LineGross = &total
		}
		items = append(items, it)
	}
	return items
}

// albertLayout handles Albert receipts: the item name on one line and the
// amount (often with a VAT letter) on the next.
type albertLayout struct{}

var (
	albertAmountRe = regexp.MustCompile(`^\s*(-?\d[\d \x{a0}]*[.,]\d{2})\s*([A-C])?\s*$`)
	albertQtyRe    = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)\s*(?:ks|x)\s*[x*]?\s*(-?\d[\d \x{a0}]*[.,]\d{2})\s*$`)
)

func (albertLayout) Name() string { return "albert" }

func (albertLayout) Matches(text string) bool {
	low := strings.ToLower(text)
	return strings.Contains(low, "albert") && (strings.Contains(low, "účtenka") || strings.Contains(low, "uctenka") || strings.Contains(low, "pokladna"))
}

func (albertLayout) Extract(text string) []Item {
	lines := strings.Split(text, "\n")
	var items []Item
	for i := 0; i < len(lines)-1; i++ {
		name := strings.TrimSpace(lines[i])
		if name == "" || isSummaryLine(name) || !hasLetter(name) || albertAmountRe.MatchString(name) {
			continue
		}
		next := strings.TrimSpace(lines[i+1])
		if m := albertQtyRe.FindStringSubmatch(next); m != nil && i+2 < len(lines) {
			// quantity line between name and total
			if am := albertAmountRe.FindStringSubmatch(strings.TrimSpace(lines[i+2])); am != nil {
				qty, _ := ParseAmount(m[1])
				if qty <= 0 {
					qty = 1
				}
				unit, _ := ParseAmount(m[2])
				total, err := ParseAmount(am[1])
				if err == nil {
					it := Item{Name: name, Quantity: qty, UnitGross: &unit, LineGross: &total, RawTotal: am[1], VATRate: albertVATRate(am[2])}
					items = append(items, it)
					i += 2
					continue
				}
			}
		}
		if m := albertAmountRe.FindStringSubmatch(next); m != nil {
			total, err := ParseAmount(m[1])
			if err != nil {
				continue
			}
			it := Item{Name: name, Quantity: 1, LineGross: &total, RawTotal: m[1], VATRate: albertVATRate(m[2])}
			items = append(items, it)
			i++
		}
	}
	return items
}

// Albert prints VAT groups as letters; A is the standard rate.
func albertVATRate(letter string) float64 {
	switch letter {
	case "A":
		return 21
	case "B":
		return 12
	case "C":
		return 0
	default:
		return 21
	}
}

// genericLayout is the fallback: any line that ends in an amount and starts
// with a plausible name becomes an item. Summary and header rows are skipped
// so totals do not turn into items.
type genericLayout struct{}

var genericRowRe = regexp.MustCompile(
	`^\s*(?:\d+[.)]\s+)?(.{2,70}?)\s{1,}(?:(\d+(?:[.,]\d+)?)\s*(?:ks|kg|l)\s+)?(-?\d[\d \x{a0}]*[.,]\d{2})\s*(?:Kč|CZK|EUR)?\s*$`)

var summaryWords = []string{
	"celkem", "součet", "soucet", "mezisoučet", "mezisoucet", "rekapitulace",
	"základ", "zaklad", "dph", "k úhradě", "k uhrade", "k zaplacení", "k zaplaceni",
	"převodem", "prevodem", "hotově", "hotove", "vráceno", "vraceno",
	"datum", "iban", "účet", "ucet", "variabilní", "variabilni", "total",
}

var (
	// a rate token at the end of the name column, e.g. "Položka 21 %"
	rowVATRe = regexp.MustCompile(`(?:^|\s)(\d{1,2})\s*%\s*$`)
	// only the real Czech bands count as a document-wide hint
	vatDefaultRe = regexp.MustCompile(`\b(21|15|12|10)\s*%`)
)

// detectVATDefault picks the fallback rate for rows that carry no rate of
// their own. A document that never mentions a rate is taken at face value,
// not taxed by guesswork.
func detectVATDefault(text string) float64 {
	m := vatDefaultRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	r, err := ParseAmount(m[1])
	if err != nil {
		return 0
	}
	return r
}

func (genericLayout) Name() string { return "generic" }

func (genericLayout) Matches(string) bool { return true }

func (genericLayout) Extract(text string) []Item {
	vatDefault := detectVATDefault(text)
	var items []Item
	for _, line := range strings.Split(text, "\n") {
		m := genericRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		rate := vatDefault
		if vm := rowVATRe.FindStringSubmatch(name); vm != nil {
			if r, err := ParseAmount(vm[1]); err == nil {
				rate = r
				name = strings.TrimSpace(name[:len(name)-len(vm[0])])
			}
		}
		if !hasLetter(name) || isSummaryLine(name) {
			continue
		}
		qty := 1.0
		if m[2] != "" {
			if q, err := ParseAmount(m[2]); err == nil && q > 0 {
				qty = q
			}
		}
		total, err := ParseAmount(m[3])
		if err != nil {
			continue
		}
		it := Item{Name: name, Quantity: qty, LineGross: &total, RawTotal: m[3], VATRate: rate}
		items = append(items, it)
	}
	return items
}

func isSummaryLine(s string) bool {
	low := strings.ToLower(s)
	for _, w := range summaryWords {
		if strings.Contains(low, w) {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127 {
			return true
		}
	}
	return false
}
