// Package llm is the optional extraction fallback consulted when offline
// extraction cannot complete a document. It never bypasses reconciliation:
// callers re-run the canonicalizer over whatever it returns.
package llm

import (
	"context"
	"time"
)

// Fields is the structured result of one fallback extraction. Nil pointers
// and empty strings mean the model did not find the field.
type Fields struct {
	SupplierICO  string     `json:"supplier_ico"`
	SupplierName string     `json:"supplier_name"`
	DocNumber    string     `json:"doc_number"`
	IssueDate    *time.Time `json:"-"`
	TotalWithVAT *float64   `json:"total_with_vat"`
	Currency     string     `json:"currency"`
	DocType      string     `json:"doc_type"`
	Items        []Item     `json:"items"`
}

// Item is one extracted line.
type Item struct {
	Name      string   `json:"name"`
	Quantity  float64  `json:"quantity"`
	LineGross *float64 `json:"line_gross"`
	VATRate   float64  `json:"vat_rate"`
}

// Extractor is the fallback seam. Implementations return (nil, nil) when they
// have nothing usable, so the caller can distinguish "no answer" from errors.
type Extractor interface {
	Extract(ctx context.Context, text string, pageImages [][]byte) (*Fields, error)
	Close() error
}

// Disabled is the no-op extractor used when no API key is configured.
type Disabled struct{}

func (Disabled) Extract(context.Context, string, [][]byte) (*Fields, error) { return nil, nil }
func (Disabled) Close() error                                               { return nil }
