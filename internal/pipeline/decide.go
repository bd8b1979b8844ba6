package pipeline

import (
	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
	"github.com/karelmartinek-a11y/kajovospend/internal/vat"
)

// DecideConfig tunes the acceptance policy.
type DecideConfig struct {
	// OCRConfFloor forces review when the fused page confidence of a group
	// falls below it, regardless of how complete the extraction looks.
	OCRConfFloor float64
}

func (c DecideConfig) floor() float64 {
	if c.OCRConfFloor <= 0 {
		return 0.65
	}
	return c.OCRConfFloor
}

// Decide turns one merged page group into a document draft, applying the
// invoice (strict) or receipt (permissive) acceptance policy.
//
// Invoices are complete only with a real ICO, document number, issue date,
// total, at least one item and a reconciled sum; anything missing is a review
// reason. Receipts degrade gracefully instead: a missing ICO becomes a pseudo
// ID derived from the supplier name, a missing document number becomes a
// deterministic synthetic one, and a receipt with a total but no items gets a
// single synthetic purchase line. A receipt sum mismatch is recorded but does
// not force review on its own.
func Decide(g Group, fileSHA string, cfg DecideConfig) entity.Document {
	e := g.Extracted
	docType := extract.ClassifyDocType(e.FullText)

	reasons := append([]string(nil), e.ReviewReasons...)
	review := false

	// canonicalize and, when the sum disagrees with the printed total, try
	// OCR amount correction before judging reconciliation
	items := make([]entity.LineItem, 0, len(e.Items))
	for i, raw := range e.Items {
		items = append(items, vat.DeriveItem(i+1, raw))
	}
	items, fixed := vat.CorrectItems(items, e.Items, e.TotalWithVAT)
	if fixed {
		reasons = append(reasons, extract.ReasonAmountCorrected)
	}

	if docType == constants.DocTypeReceipt {
		if e.SupplierICO == "" {
			name := extract.GuessSupplierName(e.FullText)
			e.SupplierICO = extract.PseudoICO(name)
			reasons = append(reasons, extract.ReasonPseudoSupplierID)
		}
		if e.DocNumber == "" {
			e.DocNumber = extract.SyntheticDocNumber(fileSHA, g.PageFrom, g.PageTo, e.IssueDate, e.TotalWithVAT)
			reasons = append(reasons, extract.ReasonSyntheticDocNumber)
		}
		if len(items) == 0 && e.TotalWithVAT != nil {
			// a stand-in line carries no VAT of its own
			items = append(items, vat.DeriveItem(1, extract.Item{
				Name:      "Nákup",
				Quantity:  1,
				LineGross: e.TotalWithVAT,
				VATRate:   0,
			}))
			reasons = append(reasons, extract.ReasonSyntheticItem)
		}
	}

	totals := vat.ComputeTotals(items, e.TotalWithVAT)

	switch docType {
	case constants.DocTypeInvoice:
		if e.SupplierICO == "" || e.DocNumber == "" || e.IssueDate == nil ||
			e.TotalWithVAT == nil || len(items) == 0 {
			review = true
			reasons = append(reasons, extract.ReasonIncomplete)
		}
		if totals.Unverifiable {
			review = true
			reasons = append(reasons, extract.ReasonSumUnverifiable)
		} else if !totals.Reconciled {
			review = true
			reasons = append(reasons, extract.ReasonSumMismatch)
		}
	case constants.DocTypeReceipt:
		if e.IssueDate == nil || (e.TotalWithVAT == nil && len(items) == 0) {
			review = true
			reasons = append(reasons, extract.ReasonIncomplete)
		}
		if !totals.Unverifiable && !totals.Reconciled {
			// recorded, not escalated
			reasons = append(reasons, extract.ReasonSumMismatch)
		}
	}

	confidence := e.Confidence
	if e.BankAccount != "" && extract.LooksLikeIBAN(e.BankAccount) && !extract.ValidIBAN(e.BankAccount) {
		review = true
		reasons = append(reasons, extract.ReasonIBANChecksum)
		if confidence > 0.5 {
			confidence = 0.5
		}
	}

	if g.Confidence < cfg.floor() {
		review = true
		reasons = append(reasons, extract.ReasonLowOCRConfidence)
	}

	total := e.TotalWithVAT
	if total == nil && len(items) > 0 {
		t := totals.Gross
		total = &t
	}

	d := entity.Document{
		SupplierICO:    e.SupplierICO,
		DocNumber:      e.DocNumber,
		BankAccount:    e.BankAccount,
		IssueDate:      e.IssueDate,
		Currency:       e.Currency,
		TotalWithVAT:   total,
		DocType:        docType,
		PageFrom:       g.PageFrom,
		PageTo:         g.PageTo,
		Confidence:     confidence,
		Method:         constants.MethodOffline,
		RequiresReview: review,
		ReviewReasons:  dedupeReasons(reasons),
		Items:          items,
		FullText:       e.FullText,
	}
	if len(items) > 0 {
		net, vatAmt := totals.Net, totals.VAT
		d.TotalWithoutVAT = &net
		d.TotalVATAmount = &vatAmt
		d.VATBreakdown = totals.Breakdown
	}
	return d
}

// Incomplete reports whether a draft still misses enough that the fallback
// extractor should be consulted.
func Incomplete(d *entity.Document) bool {
	if d.DocType == constants.DocTypeInvoice {
		return d.SupplierICO == "" || d.DocNumber == "" || d.IssueDate == nil ||
			d.TotalWithVAT == nil || len(d.Items) == 0
	}
	return d.IssueDate == nil || (d.TotalWithVAT == nil && len(d.Items) == 0)
}
