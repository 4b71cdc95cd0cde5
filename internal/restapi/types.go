package restapi

// OrderRequest is the JSON body accepted by POST /api/v1/orders.
type OrderRequest struct {
	Trader       string `json:"trader"` // 0x-hex TraderID
	IsAsk        bool   `json:"isAsk"`
	FirstAsset   string `json:"firstAsset"`
	SecondAsset  string `json:"secondAsset"`
	FirstAmount  int64  `json:"firstAmount"`
	SecondAmount int64  `json:"secondAmount"`
	TimeoutSec   int64  `json:"timeoutSeconds"`
	Signature    string `json:"signature"`
}

// OrderResponse is returned after an order is accepted into the book.
type OrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// CancelOrderRequest is the JSON body accepted by POST /api/v1/orders/cancel.
type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

// PriceLevelView is one price level in an order book snapshot.
type PriceLevelView struct {
	Price string `json:"price"`
	Depth int64  `json:"depth"`
}

// OrderbookSnapshot mirrors the book's current state for a given asset pair.
type OrderbookSnapshot struct {
	Pair      string           `json:"pair"`
	Bids      []PriceLevelView `json:"bids"`
	Asks      []PriceLevelView `json:"asks"`
	Timestamp int64            `json:"timestamp"`
}

// OrderbookUpdate is the WebSocket push counterpart of OrderbookSnapshot,
// sent to every client subscribed to "orderbook:<pair>".
type OrderbookUpdate struct {
	Type      string           `json:"type"`
	Pair      string           `json:"pair"`
	Bids      []PriceLevelView `json:"bids"`
	Asks      []PriceLevelView `json:"asks"`
	Timestamp int64            `json:"timestamp"`
}

// TradeView is one entry in a trade-history listing.
type TradeView struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Counterparty  string `json:"counterparty"`
	FirstAsset    string `json:"firstAsset"`
	SecondAsset   string `json:"secondAsset"`
	FirstAmount   int64  `json:"firstAmount"`
	SecondAmount  int64  `json:"secondAmount"`
	Timestamp     int64  `json:"timestamp"`
}

// OrderView is one entry in a trader's open-order listing.
type OrderView struct {
	OrderID   string `json:"orderId"`
	IsAsk     bool   `json:"isAsk"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Traded    int64  `json:"traded"`
	Available int64  `json:"available"`
}

// WSSubscribeRequest is a client -> server WebSocket control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ErrorResponse is the JSON body of any non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
