package domain

import "time"

// MarketState is the top-of-book snapshot carried by a tick.
// Prices are integer cents in [0, 100]; 0 means the side is unknown
// (contracts never trade at 0 on the book).
type MarketState struct {
	YesBid int
	YesAsk int
	NoBid  int
	NoAsk  int
}

// EffectiveYesBid devuelve el yes_bid, derivándolo del no_ask si hace falta.
func (m MarketState) EffectiveYesBid() int {
	if m.YesBid > 0 {
		return m.YesBid
	}
	if m.NoAsk > 0 {
		return 100 - m.NoAsk
	}
	return 0
}

// HasBothSides reports whether both yes_bid and yes_ask are known.
func (m MarketState) HasBothSides() bool {
	return m.EffectiveYesBid() > 0 && m.YesAsk > 0
}

// Mid returns the YES midpoint in cents, or 0 if either side is unknown.
func (m MarketState) Mid() float64 {
	bid := m.EffectiveYesBid()
	if bid <= 0 || m.YesAsk <= 0 {
		return 0
	}
	return float64(bid+m.YesAsk) / 2
}

// Spread returns yes_ask - yes_bid in cents, or -1 if unknown.
func (m MarketState) Spread() int {
	bid := m.EffectiveYesBid()
	if bid <= 0 || m.YesAsk <= 0 {
		return -1
	}
	return m.YesAsk - bid
}

// LastKnownPrice returns the best single-number summary of the book:
// the mid when both sides are known, otherwise whichever side exists.
func (m MarketState) LastKnownPrice() float64 {
	if mid := m.Mid(); mid > 0 {
		return mid
	}
	if bid := m.EffectiveYesBid(); bid > 0 {
		return float64(bid)
	}
	if m.YesAsk > 0 {
		return float64(m.YesAsk)
	}
	return 0
}

// Tick is one record from a tick source: a timestamped market state.
type Tick struct {
	Time   time.Time
	Ticker string
	State  MarketState

	// Provenance, optional.
	Seq        int64
	SourceFile string
	SourceRow  int
}
