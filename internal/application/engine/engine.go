package engine

// engine.go — the unified per-tick reconciliation loop.
//
// One Engine instance drives one broker adapter (sim or live) through the
// same code path: process the tick, gate on staleness and throttles, ask
// the strategy for its desired set, then reconcile desired vs active with
// amend/cancel/place under the per-ticker action budget.

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
)

// Engine reconciles strategy intent against the live order book, one
// ticker at a time, in tick order. Single-threaded by design: all state
// maps are only touched from OnTick.
type Engine struct {
	broker ports.Broker
	strat  ports.Strategy
	rec    ports.Recorder
	cfg    Config

	amender ports.OrderAmender // nil when the adapter can't amend
	settler ports.MarketSettler
	tagger  ports.ReasonTagger

	lastRequote    map[string]time.Time
	lastOpenReject map[string]time.Time
	lastMetric     map[string]time.Time
	lastMid        map[string]float64
	actions        map[string][]time.Time // 60s sliding action window
	actionsTotal   int
}

// New wires an engine. Optional broker capabilities (amend, settle) and
// strategy capabilities (reason tags) are discovered by type assertion.
func New(broker ports.Broker, strat ports.Strategy, rec ports.Recorder, cfg Config) *Engine {
	cfg.setDefaults()

	e := &Engine{
		broker:         broker,
		strat:          strat,
		rec:            rec,
		cfg:            cfg,
		lastRequote:    make(map[string]time.Time),
		lastOpenReject: make(map[string]time.Time),
		lastMetric:     make(map[string]time.Time),
		lastMid:        make(map[string]float64),
		actions:        make(map[string][]time.Time),
	}
	if a, ok := broker.(ports.OrderAmender); ok {
		e.amender = a
	}
	if s, ok := broker.(ports.MarketSettler); ok {
		e.settler = s
	}
	if r, ok := strat.(ports.ReasonTagger); ok {
		e.tagger = r
	}
	return e
}

// ActionsTotal returns the number of amend/cancel/place actions issued
// over the whole session.
func (e *Engine) ActionsTotal() int {
	return e.actionsTotal
}

// OnTick processes one tick end to end. All faults below the staleness
// gate are local: the loop continues on the next tick.
func (e *Engine) OnTick(ticker string, state domain.MarketState, t time.Time) {
	e.broker.ProcessTick(ticker, state, t)

	if mid := state.Mid(); mid > 0 {
		e.lastMid[ticker] = mid
	}

	if e.settleIfEnded(ticker, t) {
		return
	}

	if e.cfg.TradeLiveWindow > 0 {
		if lag := e.cfg.Now().Sub(t); lag > e.cfg.TradeLiveWindow {
			slog.Warn("STALE_TICK",
				"event", "STALE_TICK",
				"ticker", ticker,
				"lag_s", fmt.Sprintf("%.1f", lag.Seconds()),
			)
			if e.cfg.StaleWarmupOnly {
				// Warm the windows, discard any intent.
				inv := e.inventories(ticker, nil)
				e.strat.OnMarketUpdate(ticker, state, t, inv, nil, e.broker.Cash())
			}
			return
		}
	}

	active := e.collectActive(ticker, state, t)
	inv := e.inventories(ticker, active)

	if last, ok := e.lastRequote[ticker]; ok && t.Sub(last) < e.cfg.MinRequoteInterval {
		return
	}

	normalized := make([]domain.DesiredOrder, len(active))
	for i, a := range active {
		normalized[i] = a.norm
	}

	desired, act := e.strat.OnMarketUpdate(ticker, state, t, inv, normalized, e.broker.Cash())

	e.emitMetric(ticker, t, inv, len(active))

	if !act {
		e.recordDecision(ticker, state, t, "keep", nil)
		return
	}

	e.lastRequote[ticker] = t

	kind := "quote"
	if len(desired) == 0 {
		kind = "cancel_all"
	}
	e.recordDecision(ticker, state, t, kind, desired)

	e.reconcile(ticker, state, t, active, desired, inv)
}

// FinalSweep values every remaining position at its last known mid,
// snapped to settlement. Called once when the tick source is exhausted so
// a backtest never ends with unvalued inventory.
func (e *Engine) FinalSweep(t time.Time) {
	if e.settler == nil {
		return
	}
	for ticker := range e.broker.Positions() {
		sp := domain.SnapSettlement(e.lastMid[ticker])
		payout := e.settler.SettleMarket(ticker, sp, t)
		slog.Info("engine: final sweep",
			"ticker", ticker,
			"sp", fmt.Sprintf("%.1f", sp),
			"payout", fmt.Sprintf("$%.2f", payout),
		)
	}
}

// inventories builds held + pending for the ticker.
func (e *Engine) inventories(ticker string, active []activeOrder) domain.Inventory {
	pos := e.broker.Positions()[ticker]
	inv := domain.Inventory{Yes: pos.Yes, No: pos.No}
	for _, a := range active {
		switch a.norm.Action {
		case domain.BuyYes:
			inv.Yes += a.order.Remaining
		case domain.BuyNo:
			inv.No += a.order.Remaining
		}
	}
	return inv
}

// settleIfEnded runs terminal valuation once the ticker's market window is
// over. Unparseable tickers never settle.
func (e *Engine) settleIfEnded(ticker string, t time.Time) bool {
	sched, err := domain.ParseTicker(ticker)
	if err != nil || t.Before(sched.MarketEnd) {
		return false
	}
	if e.settler != nil {
		sp := domain.SnapSettlement(e.lastMid[ticker])
		e.settler.SettleMarket(ticker, sp, t)
	}
	return true
}

// emitMetric logs one METRIC line per ticker at the configured cadence.
func (e *Engine) emitMetric(ticker string, t time.Time, inv domain.Inventory, openOrders int) {
	if last, ok := e.lastMetric[ticker]; ok && t.Sub(last) < e.cfg.MetricInterval {
		return
	}
	e.lastMetric[ticker] = t

	pos := e.broker.Positions()[ticker]
	slog.Info("METRIC",
		"event", "METRIC",
		"ticker", ticker,
		"cash", fmt.Sprintf("%.2f", e.broker.Cash()),
		"pos_yes", pos.Yes,
		"pos_no", pos.No,
		"pending_yes", inv.Yes-pos.Yes,
		"pending_no", inv.No-pos.No,
		"net_inv", inv.Yes-inv.No,
		"actions_last_60s", len(e.windowAt(ticker, t)),
		"open_orders", openOrders,
	)
}

func (e *Engine) recordDecision(ticker string, state domain.MarketState, t time.Time, kind string, desired []domain.DesiredOrder) {
	if e.rec == nil {
		return
	}
	reason := ""
	if e.tagger != nil {
		reason = e.tagger.LastReason(ticker)
	}
	e.rec.RecordDecision(ports.Decision{
		ID:      uuid.New().String(),
		Time:    t,
		Ticker:  ticker,
		State:   state,
		Kind:    kind,
		Reason:  reason,
		Desired: desired,
	})
}

// --- action budget (60s sliding window per ticker) ---

func (e *Engine) windowAt(ticker string, t time.Time) []time.Time {
	w := e.actions[ticker]
	cutoff := t.Add(-time.Minute)
	for len(w) > 0 && !w[0].After(cutoff) {
		w = w[1:]
	}
	e.actions[ticker] = w
	return w
}

// actionAllowed reports whether the per-ticker budget has room at t.
func (e *Engine) actionAllowed(ticker string, t time.Time) bool {
	return len(e.windowAt(ticker, t)) < e.cfg.MaxActionsPerMinute
}

// countAction records one amend/cancel/place against the budget.
func (e *Engine) countAction(ticker string, t time.Time) {
	e.actions[ticker] = append(e.actions[ticker], t)
	e.actionsTotal++
}
