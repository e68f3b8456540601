package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEventKind committed operation type.
type LedgerEventKind string

const (
	LedgerEventOpen     LedgerEventKind = "open"
	LedgerEventBuy      LedgerEventKind = "buy"
	LedgerEventSell     LedgerEventKind = "sell"
	LedgerEventTransfer LedgerEventKind = "transfer"
)

// LedgerEvent describes one committed ledger operation.
// Decimal fields are zero when they do not apply to the kind.
type LedgerEvent struct {
	ID           string          `json:"id"`
	Seq          uint64          `json:"seq,omitempty"`
	Kind         LedgerEventKind `json:"kind"`
	Identity     string          `json:"identity"`
	Counterparty string          `json:"counterparty,omitempty"`
	Asset        string          `json:"asset,omitempty"`
	FiatAmount   decimal.Decimal `json:"fiat_amount"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"ts"`
}

// LedgerEventRecord bundles an event with its journal position.
type LedgerEventRecord struct {
	Index uint64
	Event LedgerEvent
}
