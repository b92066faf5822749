package domain

import "github.com/shopspring/decimal"

// Balances is the user's spendable holdings. It is eventually consistent:
// refreshed after every execution and on the regular sync cadence, never
// mutated optimistically.
type Balances struct {
	EUR          decimal.Decimal `json:"eur"`
	CertificateA decimal.Decimal `json:"certificate_a"`
	CertificateB decimal.Decimal `json:"certificate_b"`
}

// Certificate returns the holding for the given certificate class.
func (b Balances) Certificate(ct CertificateType) decimal.Decimal {
	switch ct {
	case CertificateA:
		return b.CertificateA
	case CertificateB:
		return b.CertificateB
	}
	return decimal.Zero
}
