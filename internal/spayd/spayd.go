// Package spayd reads QR Platba payment codes. The payload format is SPAYD
// ("SPD*1.0*ACC:CZ..*AM:123.45*CC:CZK*X-VS:2025001"), the short payment
// descriptor used on Czech invoices.
package spayd

import (
	"strconv"
	"strings"
)

const prefix = "SPD*"

// Payment holds the fields a payment QR can carry. Amount is nil when the
// code names no sum.
type Payment struct {
	Account  string // IBAN, first when the code lists several
	Amount   *float64
	Currency string
	VS       string // variable symbol
	SS       string
	KS       string
	Message  string
	Date     string // YYYYMMDD when present
}

// Parse decodes an SPAYD payload. Non-SPAYD text returns false.
func Parse(payload string) (*Payment, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, prefix) {
		return nil, false
	}

	// SPD*<version>*KEY:VALUE*KEY:VALUE...
	kv := map[string]string{}
	for _, part := range strings.Split(payload, "*")[2:] {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		kv[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	p := &Payment{
		Currency: strings.ToUpper(kv["CC"]),
		VS:       kv["X-VS"],
		SS:       kv["X-SS"],
		KS:       kv["X-KS"],
		Date:     kv["DT"],
	}
	if acc := kv["ACC"]; acc != "" {
		p.Account = strings.TrimSpace(strings.Split(acc, ",")[0])
	}
	if am := kv["AM"]; am != "" {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(am, ",", "."), 64); err == nil {
			p.Amount = &v
		}
	}
	p.Message = kv["MSG"]
	if p.Message == "" {
		p.Message = kv["RN"]
	}
	return p, true
}
