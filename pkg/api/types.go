package api

// Request/response types for the REST endpoints and WebSocket messages.

import (
	"github.com/universexyz/marketplace-orderbook/pkg/order"
)

// MatchRequest wraps the indexer's match events.
type MatchRequest struct {
	Events []order.MatchEvent `json:"events"`
}

// CancelRequest wraps the indexer's cancel events.
type CancelRequest struct {
	Events []order.CancelEvent `json:"events"`
}

// BatchResponse maps each txHash to "success", "not found" or "error: ...".
type BatchResponse map[string]string

// QueryResponse is one page of listings plus the total match count.
type QueryResponse struct {
	Orders []*order.Order `json:"orders"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// PrepareRequest identifies the taker accepting a listing. Amount overrides
// the take value for partial ERC1155 fills; empty takes the full amount.
type PrepareRequest struct {
	Taker  string `json:"taker"`
	Amount string `json:"amount,omitempty"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// OrderEvent is pushed to WebSocket subscribers on every lifecycle
// transition.
type OrderEvent struct {
	Type  string       `json:"type"` // always "order"
	Order *order.Order `json:"order"`
}

// WSSubscribeRequest is the client-side subscription message.
// Channels: "orders" (all transitions) or "maker:<address>".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}
