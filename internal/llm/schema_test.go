package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResponse = `{
	"supplier_ico": "27082440",
	"supplier_name": "Alza.cz a.s.",
	"doc_number": "F-2024-001",
	"issue_date": "2024-03-15",
	"total_with_vat": 121.0,
	"currency": "CZK",
	"doc_type": "invoice",
	"items": [
		{"name": "Zboží", "quantity": 1, "line_gross": 121.0, "vat_rate": 21}
	]
}`

func TestParseFieldsValidResponse(t *testing.T) {
	f, err := parseFields(validResponse)
	require.NoError(t, err)
	require.NotNil(t, f)

	assert.Equal(t, "27082440", f.SupplierICO)
	assert.Equal(t, "F-2024-001", f.DocNumber)
	require.NotNil(t, f.IssueDate)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *f.IssueDate)
	require.NotNil(t, f.TotalWithVAT)
	assert.InDelta(t, 121, *f.TotalWithVAT, 0.001)
	require.Len(t, f.Items, 1)
	assert.Equal(t, "Zboží", f.Items[0].Name)
	assert.Equal(t, 21.0, f.Items[0].VATRate)
}

func TestParseFieldsTolerantOfMarkdownFence(t *testing.T) {
	f, err := parseFields("```json\n" + validResponse + "\n```")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "27082440", f.SupplierICO)
}

func TestParseFieldsRejectsBadICOShape(t *testing.T) {
	f, err := parseFields(`{"supplier_ico": "12ab5678", "doc_number": "F-1"}`)
	assert.Error(t, err)
	assert.Nil(t, f)
}

func TestParseFieldsRejectsUnknownDocType(t *testing.T) {
	f, err := parseFields(`{"doc_number": "F-1", "doc_type": "quittung"}`)
	assert.Error(t, err)
	assert.Nil(t, f)
}

func TestParseFieldsAllEmptyMeansNoAnswer(t *testing.T) {
	f, err := parseFields(`{"supplier_ico": null, "doc_number": "", "items": null}`)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestParseFieldsNoJSONObject(t *testing.T) {
	_, err := parseFields("I could not read the document, sorry.")
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	got, err := extractJSONObject("Here you go:\n{\"a\": 1}\nThanks!")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)

	got, err = extractJSONObject("```json\n{\"a\": {\"b\": 2}}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 2}}`, got)

	_, err = extractJSONObject("}{")
	assert.Error(t, err)
}

func TestDisabledExtractorReturnsNothing(t *testing.T) {
	f, err := Disabled{}.Extract(nil, "text", nil)
	assert.NoError(t, err)
	assert.Nil(t, f)
}
