package domain

import "time"

// Side is the contract side of an order on the exchange.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// OrderAction is the exchange-level action (open vs close a side).
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderStatus represents the lifecycle of an open order.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusResting   OrderStatus = "resting"
	StatusExecuted  OrderStatus = "executed"
	StatusCancelled OrderStatus = "cancelled"
	StatusExpired   OrderStatus = "expired"
	StatusRejected  OrderStatus = "rejected"
)

// Terminal reports whether the status can no longer transition.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Order is an open order as seen through a broker adapter.
type Order struct {
	ID        string
	Ticker    string
	Side      Side
	Action    OrderAction
	Price     int // cents
	Qty       int // original quantity
	Remaining int
	Status    OrderStatus
	CreatedAt time.Time
	ReadyAt   *time.Time // sim: earliest fill time (placement + latency)
	ExpireAt  *time.Time
}

// TradeAction is the strategy vocabulary: always expressed as buying a side.
// Closes are materialized by the adapter as a sell on the held side.
type TradeAction string

const (
	BuyYes TradeAction = "BUY_YES"
	BuyNo  TradeAction = "BUY_NO"
)

// Side returns the contract side the action accumulates.
func (a TradeAction) Side() Side {
	if a == BuyYes {
		return SideYes
	}
	return SideNo
}

// Opposite returns the action on the other side of the market.
func (a TradeAction) Opposite() TradeAction {
	if a == BuyYes {
		return BuyNo
	}
	return BuyYes
}

// DesiredOrder is one order the strategy wants resting on the book.
type DesiredOrder struct {
	Action      TradeAction
	Price       int // cents, strategy vocabulary (price of the bought side)
	Qty         int
	ExpireAfter time.Duration
	Reason      string // signal tag for the decision log
}

// PlaceStatus classifies the outcome of a place_order call.
type PlaceStatus string

const (
	PlaceExecuted     PlaceStatus = "executed"
	PlaceResting      PlaceStatus = "resting"
	PlaceRejectedCash PlaceStatus = "rejected_cash"
	PlaceError        PlaceStatus = "error"
	PlaceException    PlaceStatus = "exception"
)

// PlaceResult is what a broker adapter returns from PlaceOrder.
type PlaceResult struct {
	OK      bool
	Filled  int
	Status  PlaceStatus
	OrderID string
}

// TradeRecord is one fill, as written to unified_trades.csv.
type TradeRecord struct {
	Time      time.Time
	Action    TradeAction
	Ticker    string
	Price     int // cents
	Qty       int
	Fee       float64 // dollars
	Cost      float64 // dollars, ex-fee
	Source    string  // cross | passive | live
	OrderID   string
	OrderTime time.Time
	FillTime  time.Time
}

// FillDelay returns seconds between placement and fill.
func (t TradeRecord) FillDelay() float64 {
	if t.OrderTime.IsZero() || t.FillTime.IsZero() {
		return 0
	}
	return t.FillTime.Sub(t.OrderTime).Seconds()
}

// OrderEvent is one lifecycle transition, as written to unified_orders.csv.
type OrderEvent struct {
	Time    time.Time
	Ticker  string
	Side    Side
	Price   int
	Qty     int
	Status  string // accepted | resting | executed | rejected | canceled | expired
	Filled  int
	OrderID string
}
