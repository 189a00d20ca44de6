package sim

// broker.go — deterministic fill engine for backtests and shadow replays.
//
// Orders rest until their ready_at (placement + modeled latency) passes,
// then fill either by crossing the touch or by a probabilistic passive
// capture when a last-trade print passes through the order's price.
// Cash, positions, and YES/NO netting are all settled locally.

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
)

const defaultOverdraft = 10.0 // dollars of slack, stands in for near-real netting

// Config holds the simulator's knobs.
type Config struct {
	InitialCash          float64
	PassiveFillPerMinute float64 // P_minute: chance/min a print fills a resting order
	Latency              LatencyModel
	LatencySeed          int64
	Overdraft            float64 // 0 = defaultOverdraft
}

// Broker implements ports.Broker, ports.OrderAmender, and
// ports.MarketSettler against an in-memory ledger.
type Broker struct {
	cfg Config
	rng *rand.Rand
	rec ports.Recorder

	wallet    domain.Wallet
	positions map[string]domain.Position
	book      []*domain.Order // placement order, for deterministic fills
	byID      map[string]*domain.Order
	lastPrice map[string]float64
	lastTick  map[string]time.Time
	settled   map[string]bool
	nextID    int
}

// New creates a simulated broker with the given starting cash.
func New(cfg Config, rec ports.Recorder) *Broker {
	if cfg.Overdraft <= 0 {
		cfg.Overdraft = defaultOverdraft
	}
	b := &Broker{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.LatencySeed)),
		rec:       rec,
		positions: make(map[string]domain.Position),
		byID:      make(map[string]*domain.Order),
		lastPrice: make(map[string]float64),
		lastTick:  make(map[string]time.Time),
		settled:   make(map[string]bool),
	}
	b.wallet.Available = cfg.InitialCash
	return b
}

// SeedPositions loads snapshot holdings into the ledger. Snapshot netting
// already happened at load time.
func (b *Broker) SeedPositions(positions map[string]domain.SnapshotPosition) {
	for ticker, sp := range positions {
		if sp.Yes == 0 && sp.No == 0 {
			continue
		}
		b.positions[ticker] = domain.Position{Yes: sp.Yes, No: sp.No, Cost: sp.Cost}
	}
}

// ProcessTick releases due settlements, refreshes the last-price cache,
// and attempts to fill every resting order for the ticker.
func (b *Broker) ProcessTick(ticker string, state domain.MarketState, t time.Time) {
	b.wallet.CheckSettlements(t)

	if p := state.LastKnownPrice(); p > 0 {
		b.lastPrice[ticker] = p
	}

	dt := 1.0
	if prev, ok := b.lastTick[ticker]; ok {
		if d := t.Sub(prev).Seconds(); d > 0 {
			dt = d
		}
	}
	b.lastTick[ticker] = t

	for _, o := range b.book {
		if o.Ticker != ticker || o.Status.Terminal() || o.Remaining <= 0 {
			continue
		}
		if o.ExpireAt != nil && !o.ExpireAt.After(t) {
			o.Status = domain.StatusExpired
			b.orderEvent(t, o, "expired")
			continue
		}
		if o.ReadyAt != nil && o.ReadyAt.After(t) {
			continue
		}
		b.tryFill(o, state, t, dt)
	}
}

// tryFill applies the fill rules in order: marketable cross first, then
// passive capture through the last trade print.
func (b *Broker) tryFill(o *domain.Order, state domain.MarketState, t time.Time, dt float64) {
	// 1. Marketable cross at the touch.
	if o.Side == domain.SideYes && state.YesAsk > 0 && o.Price >= state.YesAsk {
		b.fill(o, state.YesAsk, t, "cross")
		return
	}
	if o.Side == domain.SideNo && state.NoAsk > 0 && o.Price >= state.NoAsk {
		b.fill(o, state.NoAsk, t, "cross")
		return
	}

	// 2. Passive capture: a print at or through our price lifts us with
	// per-second probability P_minute/60, scaled by elapsed tick time.
	last, ok := b.lastPrice[o.Ticker]
	if !ok || b.cfg.PassiveFillPerMinute <= 0 {
		return
	}
	prob := b.cfg.PassiveFillPerMinute / 60 * dt
	if prob > 1 {
		prob = 1
	}

	switch o.Side {
	case domain.SideYes:
		if last <= float64(o.Price) && b.rng.Float64() < prob {
			b.fill(o, int(last+0.5), t, "passive")
		}
	case domain.SideNo:
		noPrint := 100 - last
		if noPrint <= float64(o.Price) && b.rng.Float64() < prob {
			b.fill(o, int(noPrint+0.5), t, "passive")
		}
	}
}

// fill executes the whole remaining quantity at priceCents, runs the cash
// and netting ledger, and emits trade and order events.
func (b *Broker) fill(o *domain.Order, priceCents int, t time.Time, source string) {
	qty := o.Remaining
	cost := float64(qty*priceCents) / 100
	fee := domain.Fee(qty, priceCents)

	pos := b.positions[o.Ticker]
	oppositeHeld := pos.No
	if o.Side == domain.SideNo {
		oppositeHeld = pos.Yes
	}

	if b.wallet.Available+b.cfg.Overdraft < cost+fee && oppositeHeld < qty {
		o.Status = domain.StatusRejected
		b.orderEvent(t, o, "rejected")
		slog.Warn("sim: fill rejected for cash",
			"ticker", o.Ticker,
			"order", o.ID,
			"need", fmt.Sprintf("$%.2f", cost+fee),
			"cash", fmt.Sprintf("$%.2f", b.wallet.Available),
		)
		return
	}

	b.wallet.Debit(cost + fee)

	if o.Side == domain.SideYes {
		pos.Yes += qty
	} else {
		pos.No += qty
	}
	pos.Cost += cost + fee

	if netted := pos.NetPairs(); netted > 0 {
		b.wallet.Credit(float64(netted))
	}

	if pos.Empty() {
		delete(b.positions, o.Ticker)
	} else {
		b.positions[o.Ticker] = pos
	}

	o.Remaining = 0
	o.Status = domain.StatusExecuted
	b.orderEvent(t, o, "executed")

	action := domain.BuyYes
	if o.Side == domain.SideNo {
		action = domain.BuyNo
	}
	if b.rec != nil {
		b.rec.RecordTrade(domain.TradeRecord{
			Time:      t,
			Action:    action,
			Ticker:    o.Ticker,
			Price:     priceCents,
			Qty:       qty,
			Fee:       fee,
			Cost:      cost,
			Source:    source,
			OrderID:   o.ID,
			OrderTime: o.CreatedAt,
			FillTime:  t,
		})
	}
}

// OpenOrders returns the non-terminal orders for a ticker, oldest first.
func (b *Broker) OpenOrders(ticker string, _ domain.MarketState, _ time.Time) []domain.Order {
	var out []domain.Order
	for _, o := range b.book {
		if o.Ticker != ticker || o.Status.Terminal() || o.Remaining <= 0 {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// PlaceOrder rests the order (after its latency window) and, when latency
// is zero, attempts an immediate marketable fill.
func (b *Broker) PlaceOrder(order domain.Order, state domain.MarketState, t time.Time) domain.PlaceResult {
	if order.ID == "" {
		// Sequential IDs keep replays byte-identical run to run.
		b.nextID++
		order.ID = fmt.Sprintf("sim-%06d", b.nextID)
	}
	if order.Remaining == 0 {
		order.Remaining = order.Qty
	}
	order.CreatedAt = t
	order.Status = domain.StatusResting

	latency := b.cfg.Latency.Sample(b.rng)
	if latency > 0 {
		ready := t.Add(time.Duration(latency * float64(time.Second)))
		order.ReadyAt = &ready
	}

	o := &order
	b.book = append(b.book, o)
	b.byID[o.ID] = o
	b.orderEvent(t, o, "accepted")

	if o.ReadyAt == nil {
		b.tryFill(o, state, t, 0)
	}

	switch o.Status {
	case domain.StatusExecuted:
		return domain.PlaceResult{OK: true, Filled: o.Qty, Status: domain.PlaceExecuted, OrderID: o.ID}
	case domain.StatusRejected:
		return domain.PlaceResult{OK: false, Status: domain.PlaceRejectedCash, OrderID: o.ID}
	default:
		b.orderEvent(t, o, "resting")
		return domain.PlaceResult{OK: true, Status: domain.PlaceResting, OrderID: o.ID}
	}
}

// CancelOrder marks an order cancelled. Unknown IDs are an error.
func (b *Broker) CancelOrder(orderID string) error {
	o, ok := b.byID[orderID]
	if !ok {
		return fmt.Errorf("sim.CancelOrder: unknown order %q", orderID)
	}
	if o.Status.Terminal() {
		return nil
	}
	o.Status = domain.StatusCancelled
	b.orderEvent(b.lastTick[o.Ticker], o, "canceled")
	return nil
}

// AmendOrder reprices a resting order in place. The ready_at clock does not
// restart: latency models submission, not modification.
func (b *Broker) AmendOrder(orderID, _ string, _ domain.OrderAction, _ domain.Side, price, qty int) bool {
	o, ok := b.byID[orderID]
	if !ok || o.Status.Terminal() {
		return false
	}
	o.Price = price
	o.Remaining = qty
	return true
}

// Positions returns a copy of the per-ticker holdings.
func (b *Broker) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(b.positions))
	for k, v := range b.positions {
		out[k] = v
	}
	return out
}

// Cash returns spendable dollars (queued payouts excluded).
func (b *Broker) Cash() float64 {
	return b.wallet.Available
}

// PendingPayouts returns dollars queued for future settlement release.
func (b *Broker) PendingPayouts() float64 {
	return b.wallet.PendingTotal()
}

// SettleMarket values the position at the settlement price, removes it,
// and queues the payout for the ticker's payout time. Idempotent per
// session: a second call for the same ticker returns 0.
func (b *Broker) SettleMarket(ticker string, settlementPrice float64, t time.Time) float64 {
	if b.settled[ticker] {
		return 0
	}
	b.settled[ticker] = true

	for _, o := range b.book {
		if o.Ticker == ticker && !o.Status.Terminal() {
			o.Status = domain.StatusExpired
			b.orderEvent(t, o, "expired")
		}
	}

	pos, ok := b.positions[ticker]
	if !ok {
		return 0
	}
	payout := domain.SettlementPayout(pos, settlementPrice)
	delete(b.positions, ticker)

	if sched, err := domain.ParseTicker(ticker); err == nil {
		b.wallet.QueuePayout(payout, sched.PayoutAt)
	} else {
		b.wallet.Credit(payout)
	}

	slog.Info("sim: settled market",
		"ticker", ticker,
		"sp", fmt.Sprintf("%.1f", settlementPrice),
		"payout", fmt.Sprintf("$%.2f", payout),
	)
	return payout
}

func (b *Broker) orderEvent(t time.Time, o *domain.Order, status string) {
	if b.rec == nil {
		return
	}
	b.rec.RecordOrderEvent(domain.OrderEvent{
		Time:    t,
		Ticker:  o.Ticker,
		Side:    o.Side,
		Price:   o.Price,
		Qty:     o.Qty,
		Status:  status,
		Filled:  o.Qty - o.Remaining,
		OrderID: o.ID,
	})
}
