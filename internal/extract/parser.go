// Package extract pulls structured accounting fields and line items out of
// flattened invoice/receipt text produced by the embedded-PDF/OCR fuser.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extracted is the result of offline extraction over one page (or one merged
// page group) of text.
type Extracted struct {
	SupplierICO  string
	DocNumber    string
	BankAccount  string
	IssueDate    *time.Time
	TotalWithVAT *float64
	Currency     string
	Items        []Item

	Confidence     float64
	RequiresReview bool
	ReviewReasons  []string
	FullText       string
}

// Item is a raw extracted line before VAT canonicalization. Zero-valued
// optional fields are represented by nil pointers.
type Item struct {
	Name      string
	Quantity  float64
	UnitNet   *float64
	UnitGross *float64
	LineNet   *float64
	LineGross *float64
	VATRate   float64
	RawTotal  string // original token, kept for OCR amount correction
}

// Review reason codes, ordered and de-duplicated before persisting.
const (
	ReasonMissingSupplierID  = "missing_supplier_id"
	ReasonMissingDocNumber   = "missing_doc_number"
	ReasonMissingIssueDate   = "missing_issue_date"
	ReasonMissingTotal       = "missing_total"
	ReasonMissingItems       = "missing_items"
	ReasonLowConfidence      = "low_extraction_confidence"
	ReasonLowOCRConfidence   = "low_ocr_confidence"
	ReasonSumMismatch        = "sum_mismatch"
	ReasonSumUnverifiable    = "sum_unverifiable"
	ReasonAmountCorrected    = "amount_corrected"
	ReasonIBANChecksum       = "iban_checksum_failed"
	ReasonRegistryFailed     = "registry_lookup_failed"
	ReasonPseudoSupplierID   = "pseudo_supplier_id"
	ReasonSyntheticDocNumber = "synthetic_doc_number"
	ReasonSyntheticItem      = "synthetic_item_from_total"
	ReasonIncomplete         = "incomplete_extraction"
	ReasonSelfHealedICO      = "supplier_id_recovered"
	ReasonEmptyText          = "no_text_extracted"
	ReasonQRAugmented        = "qr_payment_augmented"
)

var (
	icoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bIČO?\s*[:#]?\s*(\d{8})\b`),
		regexp.MustCompile(`(?i)\bICO\s*[:#]?\s*(\d{8})\b`),
		// label on its own line, value on the next
		regexp.MustCompile(`(?i)\bIČO?\s*:?\s*\n\s*(\d{8})\b`),
	}
	icoLoosePattern = regexp.MustCompile(`\b(\d{8})\b`)

	docNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Č[ií]slo\s+faktury\s*[: ]\s*([\w/-]+)`),
		regexp.MustCompile(`(?i)Faktura\s*-?\s*daňový\s+doklad\s+č\.?\s*([\w/-]+)`),
		regexp.MustCompile(`(?i)DAŇOVÝ\s+DOKLAD\s+č\.?\s*([\w/-]+)`),
		regexp.MustCompile(`(?i)\bFaktura\s+č\.?\s*:?\s*([\w/-]+)`),
		regexp.MustCompile(`(?i)\bVS\s*[: ]\s*(\d{3,})\b`),
		regexp.MustCompile(`(?i)Variabiln[ií]\s+symbol\s*[: ]\s*(\d{3,})\b`),
	}

	bankPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bIBAN\s*[: ]\s*([A-Z]{2}\d{2}[A-Z0-9 ]{10,40})`),
		regexp.MustCompile(`(?i)\bÚčet\s*[: ]\s*(\d{1,6}-?\d{2,10}/\d{4})\b`),
		regexp.MustCompile(`(?i)\bČ[ií]slo\s+účtu\s*[: ]\s*(\d{1,6}-?\d{2,10}/\d{4})\b`),
		regexp.MustCompile(`\b(\d{6,}-?\d{2,}\s*/\s*\d{4})\b`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Datum\s+vystaven[ií]\s*[: ]\s*([0-9]{1,2}[./ ][0-9]{1,2}[./ ][0-9]{2,4})`),
		regexp.MustCompile(`(?i)Datum\s+vystaven[ií]\s*[: ]\s*([0-9]{1,2}\.?\s*[a-záčďéěíňóřšťúůýž]+\s+[0-9]{4})`),
		regexp.MustCompile(`(?i)\bDUZP\s*[: ]\s*([0-9]{1,2}[./][0-9]{1,2}[./][0-9]{2,4})`),
		regexp.MustCompile(`(?i)Datum\s*[: ]\s*([0-9]{1,2}[./][0-9]{1,2}[./][0-9]{2,4})`),
		regexp.MustCompile(`\b([0-9]{4}-[0-9]{2}-[0-9]{2})\b`),
		regexp.MustCompile(`\b([0-9]{2}/[0-9]{2}/[0-9]{4})\b`),
		regexp.MustCompile(`\b([0-9]{1,2}\.\s*[a-záčďéěíňóřšťúůýž]+\s+[0-9]{4})\b`),
	}

	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)CELKEM\s+K\s+ÚHRADĚ\s*:?\s*\n?\s*(-?[0-9][0-9 \x{a0}]*[.,][0-9]{2})`),
		regexp.MustCompile(`(?i)Celkem\s+k\s+úhradě\s*[: ]\s*(-?[0-9][0-9 \x{a0}]*[.,][0-9]{2})`),
		regexp.MustCompile(`(?i)K\s+zaplacení\s+celkem\s*(?:EUR|CZK|Kč)?\s*(-?[0-9][0-9 \x{a0}]*[.,][0-9]{2})`),
		regexp.MustCompile(`(?i)Cena\s+celkem\s*:?\s*(-?[0-9][0-9 \x{a0}]*[.,][0-9]{2})`),
		regexp.MustCompile(`(?i)Celkem\s*(?:s\s*DPH)?\s*[: ]\s*(-?[0-9][0-9 \x{a0}]*[.,][0-9]{2})`),
		regexp.MustCompile(`(?i)\bTOTAL\s*[: ]\s*(-?[0-9][0-9 \x{a0}]*[.,][0-9]{2})`),
		// label glued to the number, a frequent OCR artefact
		regexp.MustCompile(`(?i)celkem(-?[0-9]+[.,][0-9]{2})\b`),
	}

	supplierSectionRe = regexp.MustCompile(`(?is)Dodavatel\s*:?(.*?)(?:Odběratel|Příjemce|$)`)

	czechMonths = map[string]time.Month{
		"ledna": time.January, "února": time.February, "unora": time.February,
		"března": time.March, "brezna": time.March, "dubna": time.April,
		"května": time.May, "kvetna": time.May, "června": time.June, "cervna": time.June,
		"července": time.July, "cervence": time.July, "srpna": time.August,
		"září": time.September, "zari": time.September, "října": time.October, "rijna": time.October,
		"listopadu": time.November, "prosince": time.December,
	}
	monthNameDateRe = regexp.MustCompile(`(?i)^([0-9]{1,2})\.?\s*([a-záčďéěíňóřšťúůýž]+)\s+([0-9]{4})$`)
)

// FromText runs the label-driven single-field extractors and the layout
// recognizer chain over one page of text.
func FromText(text string) Extracted {
	ex := Extracted{FullText: text, Currency: detectCurrency(text)}

	// Prefer the supplier sub-section for the ICO when the document has one;
	// the customer's ICO is usually printed too and must not win.
	icoScope := text
	if m := supplierSectionRe.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		icoScope = m[1]
	}
	if v := findFirst(icoPatterns, icoScope); v != "" {
		ex.SupplierICO = v
	} else if v := findFirst(icoPatterns, text); v != "" {
		ex.SupplierICO = v
	} else if m := icoLoosePattern.FindStringSubmatch(icoScope); m != nil && icoScope != text {
		ex.SupplierICO = m[1]
	}

	ex.DocNumber = findFirst(docNumberPatterns, text)
	if v := findFirst(bankPatterns, text); v != "" {
		ex.BankAccount = wsRe.ReplaceAllString(v, "")
	}
	if v := findFirst(datePatterns, text); v != "" {
		if d, ok := ParseDate(v); ok {
			ex.IssueDate = &d
		}
	}
	if v := findFirst(totalPatterns, text); v != "" {
		if t, err := ParseAmount(v); err == nil {
			ex.TotalWithVAT = &t
		}
	}

	ex.Items = ExtractItems(text)

	ex.Confidence, ex.ReviewReasons = scoreFields(&ex)
	ex.RequiresReview = ex.Confidence < 0.75
	if ex.RequiresReview {
		ex.ReviewReasons = append(ex.ReviewReasons, ReasonLowConfidence)
	}
	return ex
}

func scoreFields(ex *Extracted) (float64, []string) {
	var conf float64
	var reasons []string
	if ex.SupplierICO != "" {
		conf += 0.25
	} else {
		reasons = append(reasons, ReasonMissingSupplierID)
	}
	if ex.DocNumber != "" {
		conf += 0.15
	} else {
		reasons = append(reasons, ReasonMissingDocNumber)
	}
	if ex.IssueDate != nil {
		conf += 0.15
	} else {
		reasons = append(reasons, ReasonMissingIssueDate)
	}
	if ex.TotalWithVAT != nil {
		conf += 0.25
	} else {
		reasons = append(reasons, ReasonMissingTotal)
	}
	if len(ex.Items) > 0 {
		conf += 0.20
	} else {
		reasons = append(reasons, ReasonMissingItems)
	}
	if conf > 1 {
		conf = 1
	}
	return conf, reasons
}

func findFirst(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func detectCurrency(text string) string {
	switch {
	case regexp.MustCompile(`\bCZK\b|Kč`).MatchString(text):
		return "CZK"
	case regexp.MustCompile(`\bEUR\b|€`).MatchString(text):
		return "EUR"
	default:
		return "CZK"
	}
}

// ParseAmount parses a Czech-formatted amount ("1 234,50") into a float.
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}

// ParseDate parses dd.mm.yyyy, dd/mm/yyyy, ISO and Czech month-name dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := monthNameDateRe.FindStringSubmatch(s); m != nil {
		if month, ok := czechMonths[strings.ToLower(m[2])]; ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			if day >= 1 && day <= 31 {
				return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
			}
		}
		return time.Time{}, false
	}
	for _, layout := range []string{"2.1.2006", "02.01.2006", "2/1/2006", "02/01/2006", "2006-01-02", "2 1 2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
