package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

func draft(page int, ico, num string, date *time.Time, conf float64) PageDraft {
	return PageDraft{
		PageNo: page,
		Extracted: extract.Extracted{
			SupplierICO: ico,
			DocNumber:   num,
			IssueDate:   date,
			FullText:    "page text",
			Items:       []extract.Item{{Name: "položka", Quantity: 1}},
		},
		Confidence: conf,
	}
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestMergePagesSameIdentityContiguous(t *testing.T) {
	d := datePtr(2024, 3, 15)
	groups := MergePages([]PageDraft{
		draft(1, "27082440", "F-1", d, 0.9),
		draft(2, "27082440", "F-1", d, 0.8),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].PageFrom)
	assert.Equal(t, 2, groups[0].PageTo)
	assert.Len(t, groups[0].Extracted.Items, 2)
	assert.Len(t, groups[0].RawItems, 2)
	assert.InDelta(t, 0.9, groups[0].Confidence, 0.001, "merged group keeps the best page confidence")
}

func TestMergePagesDifferentIdentitySplits(t *testing.T) {
	d := datePtr(2024, 3, 15)
	groups := MergePages([]PageDraft{
		draft(1, "27082440", "F-1", d, 0.9),
		draft(2, "27082440", "F-2", d, 0.9),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "F-1", groups[0].Extracted.DocNumber)
	assert.Equal(t, "F-2", groups[1].Extracted.DocNumber)
}

func TestMergePagesIncompleteIdentityNeverMerges(t *testing.T) {
	d := datePtr(2024, 3, 15)
	groups := MergePages([]PageDraft{
		draft(1, "27082440", "", d, 0.9),
		draft(2, "27082440", "", d, 0.9),
	})
	assert.Len(t, groups, 2, "pages without a document number stay separate")
}

func TestMergePagesNonContiguousSplits(t *testing.T) {
	d := datePtr(2024, 3, 15)
	groups := MergePages([]PageDraft{
		draft(1, "27082440", "F-1", d, 0.9),
		draft(3, "27082440", "F-1", d, 0.9),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, 1, groups[0].PageTo)
	assert.Equal(t, 3, groups[1].PageFrom)
}

func TestMergeFillsMissingFieldsFromLaterPages(t *testing.T) {
	d := datePtr(2024, 3, 15)
	total := 150.0

	p1 := draft(1, "27082440", "F-1", d, 0.9)
	p2 := draft(2, "27082440", "F-1", d, 0.7)
	p2.Extracted.TotalWithVAT = &total
	p2.Extracted.BankAccount = "CZ6508000000192000145399"
	p2.Extracted.RequiresReview = true
	p2.Extracted.ReviewReasons = []string{extract.ReasonMissingTotal, extract.ReasonMissingTotal}

	groups := MergePages([]PageDraft{p1, p2})
	require.Len(t, groups, 1)
	e := groups[0].Extracted

	require.NotNil(t, e.TotalWithVAT)
	assert.InDelta(t, 150, *e.TotalWithVAT, 0.001)
	assert.Equal(t, "CZ6508000000192000145399", e.BankAccount)
	assert.True(t, e.RequiresReview)
	assert.Equal(t, []string{extract.ReasonMissingTotal}, e.ReviewReasons)
}

func TestDedupeReasonsKeepsOrder(t *testing.T) {
	out := dedupeReasons([]string{"b", "a", "b", "", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, out)
}
