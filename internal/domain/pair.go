// Package domain defines the ledger's core data structures and error taxonomy.
package domain

import "fmt"

// Pair asset quoted in a fiat currency.
type Pair struct {
	// From asset code.
	From string
	// To fiat code the asset is priced in.
	To string
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
