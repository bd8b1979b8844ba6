package extract

import (
	"strings"

	"github.com/karelmartinek-a11y/kajovospend/constants"
)

var invoiceKeywords = []string{
	"faktura", "daňový doklad", "danovy doklad", "invoice",
	"variabilní symbol", "variabilni symbol", "splatnost", "odběratel", "odberatel",
}

var receiptKeywords = []string{
	"účtenka", "uctenka", "paragon", "pokladní doklad", "pokladni doklad",
	"zjednodušený daňový doklad", "zjednoduseny danovy doklad", "pokladna",
	"platba kartou", "hotově", "hotove",
}

// ClassifyDocType decides between invoice and receipt from keyword hits.
// Receipts use simplified tax documents, so receipt keywords win a tie with
// the generic "daňový doklad" phrase; with no hits at all the document is
// treated as an invoice.
func ClassifyDocType(text string) constants.DocType {
	low := strings.ToLower(text)
	var inv, rec int
	for _, k := range invoiceKeywords {
		if strings.Contains(low, k) {
			inv++
		}
	}
	for _, k := range receiptKeywords {
		if strings.Contains(low, k) {
			rec++
		}
	}
	if rec > 0 && rec >= inv {
		return constants.DocTypeReceipt
	}
	return constants.DocTypeInvoice
}
