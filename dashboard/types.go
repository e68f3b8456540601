package dashboard

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/carteira/internal/domain"
)

// PortfolioResponse is the read-only view of an account served over HTTP.
type PortfolioResponse struct {
	domain.Portfolio
	// Valuation is omitted when quotes are unavailable.
	Valuation *Valuation `json:"valuation,omitempty"`
}

// Valuation prices holdings with the quotes fetched for the request.
type Valuation struct {
	Fiat     string          `json:"fiat"`
	Total    decimal.Decimal `json:"total"`
	Unpriced []string        `json:"unpriced,omitempty"`
}

// ErrorResponse carries the stable error kind of a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSMessage is the envelope of every message pushed to websocket clients.
type WSMessage struct {
	Type string `json:"type"` // "ledger_event", "subscribed", "unsubscribed"
	Data any    `json:"data"`
}

// WSSubscribeRequest is sent by clients to pick the channels they follow:
// "ledger" for every event or "account:<identity>" for one account.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
