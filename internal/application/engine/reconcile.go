package engine

// reconcile.go — desired-vs-active order reconciliation.
//
// The strategy speaks a BUY-only vocabulary; broker sells are normalized
// into it (a resting `sell yes` at p is a strategy-visible BUY_NO at
// 100-p). Matching keeps orders whose price/qty are close enough, amends
// in place when the adapter supports it, cancels the rest, and places
// whatever desire is left unsatisfied — all under the action budget.

import (
	"log/slog"
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
)

// activeOrder pairs a broker order with its normalized strategy view.
type activeOrder struct {
	order domain.Order
	norm  domain.DesiredOrder
}

// collectActive fetches the ticker's open orders, force-cancels the ones
// past MaxOrderAge, and normalizes the rest.
func (e *Engine) collectActive(ticker string, state domain.MarketState, t time.Time) []activeOrder {
	var out []activeOrder
	for _, o := range e.broker.OpenOrders(ticker, state, t) {
		if o.Status.Terminal() || o.Remaining <= 0 {
			continue
		}
		if e.cfg.MaxOrderAge > 0 && t.Sub(o.CreatedAt) > e.cfg.MaxOrderAge && e.actionAllowed(ticker, t) {
			if err := e.broker.CancelOrder(o.ID); err != nil {
				slog.Warn("engine: cancel aged order", "ticker", ticker, "order", o.ID, "err", err)
			} else {
				e.countAction(ticker, t)
				continue
			}
		}
		out = append(out, activeOrder{order: o, norm: normalize(o)})
	}
	return out
}

// normalize maps a broker order into the strategy's BUY-only vocabulary.
func normalize(o domain.Order) domain.DesiredOrder {
	action := domain.BuyYes
	price := o.Price
	switch {
	case o.Side == domain.SideYes && o.Action == domain.ActionBuy:
		action = domain.BuyYes
	case o.Side == domain.SideNo && o.Action == domain.ActionBuy:
		action = domain.BuyNo
	case o.Side == domain.SideYes && o.Action == domain.ActionSell:
		action, price = domain.BuyNo, 100-o.Price
	case o.Side == domain.SideNo && o.Action == domain.ActionSell:
		action, price = domain.BuyYes, 100-o.Price
	}
	return domain.DesiredOrder{Action: action, Price: price, Qty: o.Remaining}
}

// closeAction returns the action that would reduce the effective
// inventory, or "" when flat.
func closeAction(inv domain.Inventory) domain.TradeAction {
	switch {
	case inv.Yes > inv.No:
		return domain.BuyNo
	case inv.No > inv.Yes:
		return domain.BuyYes
	}
	return ""
}

func (e *Engine) reconcile(
	ticker string,
	state domain.MarketState,
	t time.Time,
	active []activeOrder,
	desired []domain.DesiredOrder,
	inv domain.Inventory,
) {
	matched := make([]bool, len(active))
	satisfied := make([]bool, len(desired))

	// 1. Match or amend: first unmatched active order with the same action
	// decides each desire's fate.
	for di, d := range desired {
		for ai, a := range active {
			if matched[ai] || a.norm.Action != d.Action {
				continue
			}

			priceDelta := abs(a.norm.Price - d.Price)
			qtyDelta := abs(a.order.Remaining - d.Qty)

			keep := priceDelta <= e.cfg.AmendPriceTolerance && qtyDelta <= e.cfg.AmendQtyTolerance
			if !keep {
				resizeFloor := max(e.cfg.ResizeMinAbs, int(e.cfg.ResizeMinRel*float64(a.order.Remaining)))
				keep = priceDelta < e.cfg.RepriceMinCents && qtyDelta < resizeFloor
			}

			if keep {
				matched[ai], satisfied[di] = true, true
				break
			}

			if e.amender != nil && e.actionAllowed(ticker, t) {
				brokerPrice := d.Price
				if a.order.Action == domain.ActionSell {
					// The resting order lives on the opposite side.
					brokerPrice = 100 - d.Price
				}
				if e.amender.AmendOrder(a.order.ID, ticker, a.order.Action, a.order.Side, brokerPrice, d.Qty) {
					e.countAction(ticker, t)
					matched[ai], satisfied[di] = true, true
					slog.Debug("engine: amended order",
						"ticker", ticker, "order", a.order.ID,
						"price", d.Price, "qty", d.Qty)
				}
			}
			break
		}
	}

	// 2. Cancel unmatched actives, protecting closes and young quotes.
	protect := closeAction(inv)
	for ai, a := range active {
		if matched[ai] {
			continue
		}
		isClose := protect != "" && a.norm.Action == protect
		if isClose {
			// Keep exits alive through the pending-netting window.
			continue
		}
		if t.Sub(a.order.CreatedAt) < e.cfg.MinQuoteLifetime {
			continue
		}
		if !e.actionAllowed(ticker, t) {
			continue
		}
		if err := e.broker.CancelOrder(a.order.ID); err != nil {
			slog.Warn("engine: cancel failed", "ticker", ticker, "order", a.order.ID, "err", err)
			continue
		}
		e.countAction(ticker, t)
	}

	// 3. Place the still-unsatisfied desires.
	for di, d := range desired {
		if satisfied[di] {
			continue
		}
		e.placeDesired(ticker, state, t, d, inv)
	}
}

// placeDesired runs the pre-flight gates and submits one order.
func (e *Engine) placeDesired(ticker string, state domain.MarketState, t time.Time, d domain.DesiredOrder, inv domain.Inventory) {
	isOpen := true
	if ca := closeAction(inv); ca == d.Action {
		isOpen = false
	}

	if isOpen {
		if last, ok := e.lastOpenReject[ticker]; ok && t.Sub(last) < e.cfg.OpenRejectCooldown {
			e.orderSkip(ticker, t, d, "open_reject_cooldown")
			return
		}
		need := float64(d.Qty)*(float64(d.Price)+domain.FeePerContractCents(d.Price))/100 + e.cfg.CashBuffer
		if e.broker.Cash() < need {
			e.orderSkip(ticker, t, d, "insufficient_cash_preflight")
			return
		}
	}

	if !e.actionAllowed(ticker, t) {
		return
	}

	var expireAt *time.Time
	if d.ExpireAfter > 0 {
		ea := t.Add(d.ExpireAfter)
		expireAt = &ea
	}

	order := domain.Order{
		Ticker:    ticker,
		Side:      d.Action.Side(),
		Action:    domain.ActionBuy,
		Price:     d.Price,
		Qty:       d.Qty,
		Remaining: d.Qty,
		ExpireAt:  expireAt,
	}

	slog.Info("trade_intent",
		"event", "TRADE_INTENT",
		"ticker", ticker,
		"action", d.Action,
		"price", d.Price,
		"qty", d.Qty,
		"reason", d.Reason,
	)

	res := e.broker.PlaceOrder(order, state, t)
	e.countAction(ticker, t)

	if !res.OK && isOpen {
		e.lastOpenReject[ticker] = t
		slog.Warn("engine: open rejected",
			"ticker", ticker, "status", res.Status, "price", d.Price, "qty", d.Qty)
	}
}

func (e *Engine) orderSkip(ticker string, t time.Time, d domain.DesiredOrder, reason string) {
	slog.Info("ORDER_SKIP",
		"event", "ORDER_SKIP",
		"ticker", ticker,
		"reason", reason,
		"action", d.Action,
		"price", d.Price,
		"qty", d.Qty,
		"t", t.Format("15:04:05"),
	)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
