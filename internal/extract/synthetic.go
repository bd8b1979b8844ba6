package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const pseudoICOPrefix = "NOICO-"

// PseudoICO derives a stable stand-in supplier ID from the supplier name for
// receipts that carry no ICO. Pseudo IDs must never be sent to the business
// registry, so the prefix marks them unambiguously.
func PseudoICO(supplierName string) string {
	norm := strings.ToLower(strings.TrimSpace(supplierName))
	if norm == "" {
		norm = "unknown"
	}
	sum := sha256.Sum256([]byte(norm))
	return pseudoICOPrefix + hex.EncodeToString(sum[:])[:10]
}

// IsPseudoICO reports whether an ICO value is a derived stand-in rather than
// a real registry identifier.
func IsPseudoICO(ico string) bool {
	return strings.HasPrefix(ico, pseudoICOPrefix)
}

// SyntheticDocNumber builds a deterministic document number for receipts that
// print none. It is derived from the source file hash and page span, plus the
// issue date and total when known, so re-processing the same file yields the
// same number while distinct purchases stay distinct.
func SyntheticDocNumber(fileSHA256 string, pageFrom, pageTo int, issueDate *time.Time, totalWithVAT *float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "R-%s-P%d-%d", fileSHA256[:12], pageFrom, pageTo)
	if issueDate != nil {
		fmt.Fprintf(&b, "-%s", issueDate.Format("20060102"))
	}
	if totalWithVAT != nil {
		cents := int64(*totalWithVAT*100 + 0.5)
		if *totalWithVAT < 0 {
			cents = int64(*totalWithVAT*100 - 0.5)
		}
		fmt.Fprintf(&b, "-%d", cents)
	}
	return b.String()
}

// GuessSupplierName returns the first plausible name line from receipt text:
// non-empty, contains letters, and is not a summary or address-like row.
func GuessSupplierName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || !hasLetter(s) || isSummaryLine(s) {
			continue
		}
		if len([]rune(s)) > 60 {
			continue
		}
		return s
	}
	return ""
}
