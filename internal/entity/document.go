package entity

import (
	"time"

	"github.com/karelmartinek-a11y/kajovospend/constants"
)

// Document represents one logical accounting document, possibly spanning
// several merged pages of a source file.
type Document struct {
	ID         int64
	FileID     int64
	SupplierID *int64

	SupplierICO string // raw or pseudo ID as extracted
	DocNumber   string // real or synthetic
	BankAccount string
	IssueDate   *time.Time
	Currency    string

	TotalWithVAT    *float64
	TotalWithoutVAT *float64
	TotalVATAmount  *float64
	VATBreakdown    []VATBand

	DocType  constants.DocType
	PageFrom int
	PageTo   int

	Confidence     float64
	Method         constants.ExtractionMethod
	TextQuality    float64
	RequiresReview bool
	ReviewReasons  []string

	Items []LineItem

	// FullText is the fused page text this document was extracted from. It
	// feeds the full-text index.
	FullText string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem is a canonical invoice/receipt line. Net and gross fields are
// always both populated after derivation.
type LineItem struct {
	ID         int64
	DocumentID int64
	LineNo     int

	Name      string
	Quantity  float64
	UnitNet   float64
	UnitGross float64
	LineNet   float64
	LineGross float64
	VATRate   float64
	VATAmount float64
	VATCode   string
	ItemCode  string
	EAN       string
}

// VATBand is one row of the per-rate VAT breakdown.
type VATBand struct {
	Rate  float64 `json:"vat_rate"`
	Net   float64 `json:"net"`
	VAT   float64 `json:"vat"`
	Gross float64 `json:"gross"`
	Code  string  `json:"vat_code"`
}

// IdentityKey is the business identity of a document. Complete keys
// participate in multi-page merging and business-duplicate checks.
type IdentityKey struct {
	SupplierICO string
	DocNumber   string
	IssueDate   time.Time
}

// Key returns the document's identity key and whether it is complete.
func (d *Document) Key() (IdentityKey, bool) {
	if d.SupplierICO == "" || d.DocNumber == "" || d.IssueDate == nil {
		return IdentityKey{}, false
	}
	return IdentityKey{SupplierICO: d.SupplierICO, DocNumber: d.DocNumber, IssueDate: *d.IssueDate}, true
}
