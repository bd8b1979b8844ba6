package extract

import (
	"regexp"
	"strings"
)

var ibanRe = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`)

// NormalizeIBAN removes whitespace and upper-cases an IBAN-like string.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(wsRe.ReplaceAllString(s, ""))
}

// LooksLikeIBAN reports whether a normalized account string has IBAN shape.
func LooksLikeIBAN(s string) bool {
	if len(s) < 15 {
		return false
	}
	return s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z' &&
		s[2] >= '0' && s[2] <= '9' && s[3] >= '0' && s[3] <= '9'
}

// ValidIBAN runs the offline ISO 13616 mod-97 checksum.
func ValidIBAN(iban string) bool {
	iban = NormalizeIBAN(iban)
	if !ibanRe.MatchString(iban) {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var sb strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			sb.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			sb.WriteString(itoa(int(ch - 'A' + 10)))
		default:
			return false
		}
	}
	// mod 97 in chunks to avoid big integers
	num := sb.String()
	rem := 0
	for i := 0; i < len(num); i++ {
		rem = (rem*10 + int(num[i]-'0')) % 97
	}
	return rem == 1
}

func itoa(v int) string {
	return string([]byte{byte('0' + v/10), byte('0' + v%10)})
}
