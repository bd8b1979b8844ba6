package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

const testFileSHA = "abcdef0123456789abcdef0123456789"

func fp(v float64) *float64 { return &v }

func invoiceGroup() Group {
	total := 121.0
	return Group{
		PageFrom: 1,
		PageTo:   1,
		Extracted: extract.Extracted{
			SupplierICO:  "27082440",
			DocNumber:    "F-2024-001",
			IssueDate:    datePtr(2024, 3, 15),
			TotalWithVAT: &total,
			Currency:     "CZK",
			FullText:     "Faktura č. F-2024-001",
			Items: []extract.Item{
				{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(121), RawTotal: "121,00"},
			},
			Confidence: 0.9,
		},
		Confidence: 0.9,
	}
}

func TestDecideInvoiceCompleteAndReconciled(t *testing.T) {
	g := invoiceGroup()
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.Equal(t, constants.DocTypeInvoice, d.DocType)
	assert.False(t, d.RequiresReview)
	assert.Empty(t, d.ReviewReasons)
	assert.Equal(t, constants.MethodOffline, d.Method)
	require.NotNil(t, d.TotalWithVAT)
	assert.InDelta(t, 121, *d.TotalWithVAT, 0.001)
	require.NotNil(t, d.TotalWithoutVAT)
	assert.InDelta(t, 100, *d.TotalWithoutVAT, 0.001)
	require.Len(t, d.VATBreakdown, 1)
	assert.Equal(t, "STANDARD", d.VATBreakdown[0].Code)
	assert.False(t, Incomplete(&d))
}

func TestDecideInvoiceMissingDocNumberForcesReview(t *testing.T) {
	g := invoiceGroup()
	g.Extracted.DocNumber = ""
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.True(t, d.RequiresReview)
	assert.Contains(t, d.ReviewReasons, extract.ReasonIncomplete)
	assert.Empty(t, d.DocNumber, "invoices never get synthetic numbers")
	assert.True(t, Incomplete(&d))
}

func TestDecideInvoiceSumMismatchForcesReview(t *testing.T) {
	g := invoiceGroup()
	g.Extracted.TotalWithVAT = fp(300)
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.True(t, d.RequiresReview)
	assert.Contains(t, d.ReviewReasons, extract.ReasonSumMismatch)
}

func TestDecideReceiptDegradesGracefully(t *testing.T) {
	total := 84.70
	g := Group{
		PageFrom: 1,
		PageTo:   1,
		Extracted: extract.Extracted{
			IssueDate:    datePtr(2024, 3, 15),
			TotalWithVAT: &total,
			FullText:     "Kavárna U Mloka\nÚčtenka\nHotově 85,00",
			Confidence:   0.9,
		},
		Confidence: 0.9,
	}
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.Equal(t, constants.DocTypeReceipt, d.DocType)
	assert.False(t, d.RequiresReview)

	assert.True(t, extract.IsPseudoICO(d.SupplierICO))
	assert.Equal(t, extract.PseudoICO("Kavárna U Mloka"), d.SupplierICO)
	assert.Contains(t, d.ReviewReasons, extract.ReasonPseudoSupplierID)

	assert.Equal(t, "R-abcdef012345-P1-1-20240315-8470", d.DocNumber)
	assert.Contains(t, d.ReviewReasons, extract.ReasonSyntheticDocNumber)

	require.Len(t, d.Items, 1)
	assert.Equal(t, "Nákup", d.Items[0].Name)
	assert.InDelta(t, 84.70, d.Items[0].LineGross, 0.001)
	assert.Equal(t, 0.0, d.Items[0].VATRate)
	assert.InDelta(t, 84.70, d.Items[0].LineNet, 0.001)
	assert.InDelta(t, 0.0, d.Items[0].VATAmount, 0.001)
	assert.Contains(t, d.ReviewReasons, extract.ReasonSyntheticItem)
}

func TestDecideReceiptSumMismatchRecordedNotEscalated(t *testing.T) {
	g := Group{
		PageFrom: 1,
		PageTo:   1,
		Extracted: extract.Extracted{
			IssueDate:    datePtr(2024, 3, 15),
			TotalWithVAT: fp(200),
			FullText:     "Potraviny Krátký\nÚčtenka\nPlatba kartou",
			Items: []extract.Item{
				{Name: "Rohlík", Quantity: 1, VATRate: 12, LineGross: fp(100), RawTotal: "100,00"},
			},
			Confidence: 0.9,
		},
		Confidence: 0.9,
	}
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.False(t, d.RequiresReview, "receipt sum mismatch alone does not force review")
	assert.Contains(t, d.ReviewReasons, extract.ReasonSumMismatch)
}

func TestDecideLowOCRConfidenceForcesReview(t *testing.T) {
	g := invoiceGroup()
	g.Confidence = 0.4
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.True(t, d.RequiresReview)
	assert.Contains(t, d.ReviewReasons, extract.ReasonLowOCRConfidence)
}

func TestDecideIBANChecksumFailureCapsConfidence(t *testing.T) {
	g := invoiceGroup()
	g.Extracted.BankAccount = "CZ6508000000192000145390" // one digit off
	d := Decide(g, testFileSHA, DecideConfig{})

	assert.True(t, d.RequiresReview)
	assert.Contains(t, d.ReviewReasons, extract.ReasonIBANChecksum)
	assert.LessOrEqual(t, d.Confidence, 0.5)
}

func TestDecideFallsBackToComputedTotal(t *testing.T) {
	g := Group{
		PageFrom: 1,
		PageTo:   1,
		Extracted: extract.Extracted{
			IssueDate: datePtr(2024, 3, 15),
			FullText:  "Bistro U Dvou koček\nÚčtenka\nPlatba kartou",
			Items: []extract.Item{
				{Name: "Polévka", Quantity: 1, VATRate: 12, LineGross: fp(56)},
			},
			Confidence: 0.9,
		},
		Confidence: 0.9,
	}
	d := Decide(g, testFileSHA, DecideConfig{})

	require.NotNil(t, d.TotalWithVAT)
	assert.InDelta(t, 56, *d.TotalWithVAT, 0.001)
	assert.NotContains(t, d.ReviewReasons, extract.ReasonSumMismatch)
}
