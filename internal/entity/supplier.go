package entity

import "time"

// Supplier is a registry-resolved master record, keyed by normalized ICO.
type Supplier struct {
	ID      int64
	ICO     string
	ICONorm string

	Name      string
	DIC       string
	LegalForm string
	Address   string
	Street    string
	StreetNo  string
	City      string
	ZipCode   string

	IsVATPayer   *bool
	RegistrySync *time.Time
}
