package core

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase an asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns the string representation of the order side ("BUY" or "SELL").
func (s OrderSide) String() string {
	return [...]string{"BUY", "SELL"}[s]
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts both uppercase and lowercase formats.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BUY"`, `"buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`:
		*s = SideSell
	}
	return nil
}

// OrderType represents the type of order to place on the exchange.
type OrderType int

// Order type constants define how an order is executed.
const (
	// TypeMarket executes immediately at the best available price.
	TypeMarket OrderType = iota
	// TypeLimit executes at a specified price or better.
	TypeLimit
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	return [...]string{"MARKET", "LIMIT"}[t]
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
// It accepts both uppercase and lowercase formats.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"MARKET"`, `"market"`:
		*t = TypeMarket
	case `"LIMIT"`, `"limit"`:
		*t = TypeLimit
	}
	return nil
}

// OrderStatus represents the current state of an order.
type OrderStatus int

// Order status constants define the lifecycle state of an order.
const (
	// StatusNew indicates the order has been accepted by the exchange.
	StatusNew OrderStatus = iota
	// StatusPartiallyFilled indicates the order has been partially filled.
	StatusPartiallyFilled
	// StatusFilled indicates the order has been completely filled.
	StatusFilled
	// StatusCanceled indicates the order has been canceled.
	StatusCanceled
	// StatusRejected indicates the order was rejected by the exchange.
	StatusRejected
	// StatusExpired indicates the order has expired.
	StatusExpired
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	return [...]string{"NEW", "PARTIALLY_FILLED", "FILLED", "CANCELED", "REJECTED", "EXPIRED"}[s]
}

// IsTerminal returns true if the order is in a terminal state.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected || s == StatusExpired
}

// TimeInForce represents how long an order remains active.
type TimeInForce int

// Time in force constants define order lifetime policies.
const (
	// GTC (good till canceled) keeps the order active until filled or canceled.
	GTC TimeInForce = iota
	// IOC (immediate or cancel) fills what it can immediately and cancels the rest.
	IOC
	// FOK (fill or kill) fills completely and immediately or not at all.
	FOK
)

// String returns the string representation of the time in force.
func (t TimeInForce) String() string {
	return [...]string{"GTC", "IOC", "FOK"}[t]
}

// Ticker holds normalized 24h market statistics for a symbol.
// All numeric fields are decimals parsed from the exchange's string payloads.
type Ticker struct {
	Symbol    string      `json:"symbol"`
	Bid       apd.Decimal `json:"bid"`
	Ask       apd.Decimal `json:"ask"`
	Last      apd.Decimal `json:"last"`
	High      apd.Decimal `json:"high"`
	Low       apd.Decimal `json:"low"`
	Volume    apd.Decimal `json:"volume"`
	Timestamp time.Time   `json:"timestamp"`
}

// Kline holds a normalized candlestick.
type Kline struct {
	Symbol    string      `json:"symbol"`
	OpenTime  time.Time   `json:"open_time"`
	CloseTime time.Time   `json:"close_time"`
	Open      apd.Decimal `json:"open"`
	High      apd.Decimal `json:"high"`
	Low       apd.Decimal `json:"low"`
	Close     apd.Decimal `json:"close"`
	Volume    apd.Decimal `json:"volume"`
}

// OrderBookLevel is a single price level in an order book.
type OrderBookLevel struct {
	Price    apd.Decimal `json:"price"`
	Quantity apd.Decimal `json:"quantity"`
}

// OrderBook holds a normalized order book snapshot.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Order holds a normalized exchange order.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id,omitempty"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Status         OrderStatus `json:"status"`
	TimeInForce    TimeInForce `json:"time_in_force"`
	Price          apd.Decimal `json:"price"`
	Quantity       apd.Decimal `json:"quantity"`
	FilledQuantity apd.Decimal `json:"filled_quantity"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Balance holds a normalized per-asset wallet balance.
type Balance struct {
	Asset  string      `json:"asset"`
	Free   apd.Decimal `json:"free"`
	Locked apd.Decimal `json:"locked"`
}
