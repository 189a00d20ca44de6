package ports

import (
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
)

// Strategy produces the desired order set for one ticker per tick.
//
// The (desired, act) pair encodes three outcomes:
//   - act == false            → hold: keep whatever is resting
//   - act == true, empty set  → cancel all of this strategy's orders
//   - act == true, non-empty  → the new desired set
type Strategy interface {
	OnMarketUpdate(
		ticker string,
		state domain.MarketState,
		t time.Time,
		inv domain.Inventory,
		active []domain.DesiredOrder,
		cash float64,
	) (desired []domain.DesiredOrder, act bool)
}

// ReasonTagger is implemented by strategies that tag their decisions for
// the decision-intent log. The engine type-asserts.
type ReasonTagger interface {
	LastReason(ticker string) string
}
