package customers

import (
	"regexp"
	"strings"
	"time"
)

// gstinPattern matches a well-formed GSTIN: two jurisdiction digits,
// a ten character PAN block, entity code, the literal Z and a final
// check character.
var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// Customer is a billing counterparty. TaxID is optional; registered
// customers carry a GSTIN whose first two characters name their tax
// jurisdiction, and unregistered ones leave both fields empty.
type Customer struct {
	ID           int64
	Name         string
	TaxID        string
	Jurisdiction string
	Email        string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeTaxID trims and upper-cases a raw tax identifier.
func NormalizeTaxID(taxID string) string {
	return strings.ToUpper(strings.TrimSpace(taxID))
}

// ValidTaxID reports whether taxID is empty or a well-formed GSTIN.
func ValidTaxID(taxID string) bool {
	if taxID == "" {
		return true
	}
	return gstinPattern.MatchString(taxID)
}

// DeriveJurisdiction returns the jurisdiction code embedded in a tax
// ID, or the empty string for an unregistered customer.
func DeriveJurisdiction(taxID string) string {
	if len(taxID) < 2 {
		return ""
	}
	return taxID[:2]
}
