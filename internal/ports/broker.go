package ports

import (
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
)

// Broker is the uniform adapter interface the engine trades through.
// Two implementations exist: the deterministic simulator and the signed
// HTTP client for the live exchange. All calls are synchronous; the engine
// is a single cooperative loop.
type Broker interface {
	// ProcessTick gives the adapter a chance to fill resting orders and
	// refresh its last-price cache before the engine reconciles.
	ProcessTick(ticker string, state domain.MarketState, t time.Time)

	// OpenOrders returns only open/resting orders with remaining > 0.
	OpenOrders(ticker string, state domain.MarketState, t time.Time) []domain.Order

	CancelOrder(orderID string) error

	PlaceOrder(order domain.Order, state domain.MarketState, t time.Time) domain.PlaceResult

	// Positions returns a per-call snapshot; the adapter owns the store.
	Positions() map[string]domain.Position

	// Cash returns spendable dollars.
	Cash() float64
}

// OrderAmender is implemented by adapters that support in-place repricing.
// The engine type-asserts; absence means cancel+replace.
type OrderAmender interface {
	AmendOrder(orderID, ticker string, action domain.OrderAction, side domain.Side, price, qty int) bool
}

// MarketSettler is implemented by adapters that handle terminal valuation.
// SettleMarket removes the position and credits qty_yes·sp/100 +
// qty_no·(100-sp)/100; settling an already-settled ticker is a no-op.
type MarketSettler interface {
	SettleMarket(ticker string, settlementPrice float64, t time.Time) float64
}
