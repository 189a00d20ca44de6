package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
)

const (
	midWindowSize    = 20
	spreadWindowSize = 500
	// Percentile gating needs this many spread samples before the
	// threshold switches from the window mean to the percentile.
	minPercentileSamples = 100

	quoteExpiry = 15 * time.Second
)

// defaultActiveHours are the sessions where daily binaries actually trade:
// early morning, US afternoon, and the late evening ramp into expiry.
var defaultActiveHours = []int{5, 6, 7, 8, 13, 14, 15, 16, 17, 21, 22, 23}

// Config holds the maker's knobs. Zero values fall back to defaults in New.
type Config struct {
	MarginCents         float64 // safety margin on top of fees, cents
	ScalingFactor       float64 // edge cents that map to full size
	MaxNotionalPct      float64 // fraction of cash per order
	MaxLossPct          float64 // fraction of cash at risk per order
	MaxInventory        int     // per-side contract cap; 0 = uncapped
	TightnessPercentile int     // spread percentile that counts as "tight"
	ActiveHours         []int   // nil = defaultActiveHours
	DisableTimeGates    bool    // trade around the clock (backtest sweeps)
	WarmupGate          bool    // require a full mid window before quoting
}

// DefaultConfig returns the production knobs.
func DefaultConfig() Config {
	return Config{
		MarginCents:         4,
		ScalingFactor:       4,
		MaxNotionalPct:      0.05,
		MaxLossPct:          0.02,
		MaxInventory:        50,
		TightnessPercentile: 20,
		WarmupGate:          true,
	}
}

// tickerState is the per-ticker rolling state. Created on first usable
// tick, never destroyed within a session.
type tickerState struct {
	mids    *window
	spreads *window
}

// MarketMaker is the fair-value market making strategy: a regime gate
// (active hours + spread tightness) wrapped around an inventory-aware
// single-order quoter.
type MarketMaker struct {
	cfg        Config
	byTicker   map[string]*tickerState
	lastReason map[string]string
	hourSet    map[int]bool
}

// New creates a MarketMaker with defaults applied over cfg.
func New(cfg Config) *MarketMaker {
	def := DefaultConfig()
	if cfg.MarginCents <= 0 {
		cfg.MarginCents = def.MarginCents
	}
	if cfg.ScalingFactor <= 0 {
		cfg.ScalingFactor = def.ScalingFactor
	}
	if cfg.MaxNotionalPct <= 0 {
		cfg.MaxNotionalPct = def.MaxNotionalPct
	}
	if cfg.MaxLossPct <= 0 {
		cfg.MaxLossPct = def.MaxLossPct
	}
	if cfg.TightnessPercentile <= 0 {
		cfg.TightnessPercentile = def.TightnessPercentile
	}

	hours := cfg.ActiveHours
	if hours == nil {
		hours = defaultActiveHours
	}
	hourSet := make(map[int]bool, len(hours))
	for _, h := range hours {
		hourSet[h] = true
	}

	return &MarketMaker{
		cfg:        cfg,
		byTicker:   make(map[string]*tickerState),
		lastReason: make(map[string]string),
		hourSet:    hourSet,
	}
}

// LastReason returns the tag recorded for the most recent decision on a
// ticker, for the decision-intent log.
func (mm *MarketMaker) LastReason(ticker string) string {
	return mm.lastReason[ticker]
}

// OnMarketUpdate implements ports.Strategy. act=false means hold, act=true
// with no orders means cancel everything.
func (mm *MarketMaker) OnMarketUpdate(
	ticker string,
	state domain.MarketState,
	t time.Time,
	inv domain.Inventory,
	active []domain.DesiredOrder,
	cash float64,
) ([]domain.DesiredOrder, bool) {
	st := mm.byTicker[ticker]
	if st == nil {
		st = &tickerState{
			mids:    newWindow(midWindowSize),
			spreads: newWindow(spreadWindowSize),
		}
		mm.byTicker[ticker] = st
	}

	spread := state.Spread()
	if spread >= 0 {
		st.spreads.Append(float64(spread))
	}

	if !mm.isActiveHour(t) {
		mm.lastReason[ticker] = "hour_off"
		return nil, false
	}

	if spread < 0 {
		// Missing prices: hold, never cancel on bad data.
		mm.lastReason[ticker] = "no_prices"
		return nil, false
	}

	if !mm.isTight(st, spread) {
		mm.lastReason[ticker] = "spread_wide"
		return nil, true
	}

	return mm.quote(ticker, st, state, inv, cash)
}

// isActiveHour checks the configured trading-hour set.
func (mm *MarketMaker) isActiveHour(t time.Time) bool {
	if mm.cfg.DisableTimeGates {
		return true
	}
	return mm.hourSet[t.Hour()]
}

// isTight compares the current spread against the percentile threshold
// (window mean while the sample is thin).
func (mm *MarketMaker) isTight(st *tickerState, spread int) bool {
	var threshold float64
	if st.spreads.Len() >= minPercentileSamples {
		threshold = st.spreads.Percentile(mm.cfg.TightnessPercentile)
	} else {
		threshold = st.spreads.Mean()
	}
	return float64(spread) <= threshold
}

// quote is the inner maker: fair value from the mid window, fee-aware edge
// gating, budgeted sizing with an inventory penalty, one aggressive limit
// at the far touch.
func (mm *MarketMaker) quote(
	ticker string,
	st *tickerState,
	state domain.MarketState,
	inv domain.Inventory,
	cash float64,
) ([]domain.DesiredOrder, bool) {
	if !state.HasBothSides() {
		mm.lastReason[ticker] = "no_prices"
		return nil, false
	}

	mid := state.Mid()
	st.mids.Append(mid)
	if mm.cfg.WarmupGate && !st.mids.Full() {
		mm.lastReason[ticker] = "warmup"
		return nil, false
	}

	fairProb := st.mids.Mean() / 100

	priceYes := int(mid) // floor: mid is non-negative
	priceNo := 100 - priceYes

	edgeYes := fairProb - float64(priceYes)/100
	edgeNo := (1 - fairProb) - float64(priceNo)/100

	var action domain.TradeAction
	var edge float64
	var price int
	switch {
	case edgeYes > 0 && edgeYes >= edgeNo:
		action, edge, price = domain.BuyYes, edgeYes, priceYes
	case edgeNo > 0:
		action, edge, price = domain.BuyNo, edgeNo, priceNo
	default:
		mm.lastReason[ticker] = "no_edge"
		return nil, false
	}

	edgeCents := edge * 100
	feeCents := domain.FeePerContractCents(price)
	if edgeCents < feeCents+mm.cfg.MarginCents {
		mm.lastReason[ticker] = "min_edge_fee_gate"
		return nil, false
	}

	edgeAfterFee := edgeCents - feeCents - mm.cfg.MarginCents
	if edgeAfterFee <= 0 {
		mm.lastReason[ticker] = "edge_after_fee_negative"
		return nil, false
	}

	scale := edgeAfterFee / mm.cfg.ScalingFactor
	if scale > 1 {
		scale = 1
	}

	p := float64(price) / 100
	perContract := p + domain.FeePerContract(price)
	maxNotional := cash * mm.cfg.MaxNotionalPct
	maxLoss := cash * mm.cfg.MaxLossPct
	budget := maxNotional
	if maxLoss < budget {
		budget = maxLoss
	}
	baseQty := int(budget / perContract)

	sideInv := inv.Yes
	oppInv := inv.No
	if action == domain.BuyNo {
		sideInv, oppInv = inv.No, inv.Yes
	}

	room := baseQty // uncapped unless MaxInventory is set
	if mm.cfg.MaxInventory > 0 {
		room = mm.cfg.MaxInventory - sideInv
		if room <= 0 {
			mm.lastReason[ticker] = "inventory_full"
			return nil, false
		}
	}

	penalty := 1 / (1 + float64(sideInv)/200)
	qty := int(float64(baseQty) * scale * penalty)
	if qty < 1 {
		qty = 1
	}
	if qty > room {
		qty = room
	}

	// Fee gating used the continuous approximation; accounting uses the
	// ceiled formula. Recheck with the true fee for this exact qty.
	realFee := domain.Fee(qty, price)
	realFeeCents := realFee * 100 / float64(qty)
	if edgeCents-realFeeCents-mm.cfg.MarginCents <= 0 {
		mm.lastReason[ticker] = "real_fee_gate"
		return nil, false
	}

	// Never straddle: closing held inventory is the adapter's job.
	if oppInv > 0 {
		mm.lastReason[ticker] = "opposite_inventory"
		return nil, false
	}

	// Price at the far touch. Mid-priced quotes don't fill in thin books.
	quotePrice := state.YesAsk
	if action == domain.BuyNo {
		quotePrice = state.NoAsk
		if quotePrice <= 0 {
			quotePrice = 100 - state.EffectiveYesBid()
		}
	}

	reason := fmt.Sprintf("SIGNAL_%s", action)
	mm.lastReason[ticker] = reason

	slog.Debug("strategy: quoting",
		"ticker", ticker,
		"action", action,
		"price", quotePrice,
		"qty", qty,
		"fair", fmt.Sprintf("%.4f", fairProb),
		"edge_cents", fmt.Sprintf("%.2f", edgeCents),
	)

	return []domain.DesiredOrder{{
		Action:      action,
		Price:       quotePrice,
		Qty:         qty,
		ExpireAfter: quoteExpiry,
		Reason:      reason,
	}}, true
}
