package kalshi

// broker.go — live broker adapter over the Kalshi portfolio API.
//
// Balance and positions are cached for 60s, per-ticker open orders for
// 2s: the reconciliation loop runs every tick and the API budget does
// not. Any action (place, cancel, amend) invalidates the affected
// caches so the next read is fresh.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
)

const (
	balanceCacheTTL = 60 * time.Second
	ordersCacheTTL  = 2 * time.Second
)

type ordersCacheEntry struct {
	orders  []domain.Order
	fetched time.Time
}

// Broker implements ports.Broker and ports.OrderAmender against the live
// exchange. All methods are called from the engine's single tick loop.
type Broker struct {
	client *Client
	ctx    context.Context
	rec    ports.Recorder

	balance        float64
	balanceFetched time.Time

	positions        map[string]domain.Position
	positionsFetched time.Time

	orders map[string]ordersCacheEntry
}

// New creates a live broker. ctx bounds every API call the adapter makes.
func New(ctx context.Context, client *Client, rec ports.Recorder) *Broker {
	return &Broker{
		client:    client,
		ctx:       ctx,
		rec:       rec,
		positions: make(map[string]domain.Position),
		orders:    make(map[string]ordersCacheEntry),
	}
}

// ProcessTick warms the balance and position caches. Fills and
// settlements happen exchange-side; there is no local ledger to advance.
func (b *Broker) ProcessTick(ticker string, _ domain.MarketState, t time.Time) {
	if t.Sub(b.balanceFetched) >= balanceCacheTTL {
		if err := b.refreshBalance(); err != nil {
			slog.Warn("kalshi: refresh balance", "err", err)
		}
	}
	if t.Sub(b.positionsFetched) >= balanceCacheTTL {
		if err := b.refreshPositions(); err != nil {
			slog.Warn("kalshi: refresh positions", "err", err)
		}
	}
}

func (b *Broker) refreshBalance() error {
	var resp balanceResponse
	if err := b.client.get(b.ctx, "/portfolio/balance", &resp); err != nil {
		return fmt.Errorf("kalshi.refreshBalance: %w", err)
	}
	b.balance = float64(resp.Balance) / 100
	b.balanceFetched = time.Now()
	return nil
}

func (b *Broker) refreshPositions() error {
	positions := make(map[string]domain.Position)
	cursor := ""
	for {
		path := "/portfolio/positions?limit=200"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		var resp positionsResponse
		if err := b.client.get(b.ctx, path, &resp); err != nil {
			return fmt.Errorf("kalshi.refreshPositions: %w", err)
		}
		for _, mp := range resp.MarketPositions {
			if mp.Position == 0 {
				continue
			}
			pos := domain.Position{Cost: float64(mp.TotalTraded) / 100}
			if mp.Position > 0 {
				pos.Yes = mp.Position
			} else {
				pos.No = -mp.Position
			}
			positions[mp.Ticker] = pos
		}
		if resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}
	b.positions = positions
	b.positionsFetched = time.Now()
	return nil
}

// OpenOrders returns resting orders for the ticker, served from a short
// cache so back-to-back reconciliations don't double-hit the API.
func (b *Broker) OpenOrders(ticker string, _ domain.MarketState, t time.Time) []domain.Order {
	if entry, ok := b.orders[ticker]; ok && t.Sub(entry.fetched) < ordersCacheTTL {
		return entry.orders
	}

	var resp ordersResponse
	path := "/portfolio/orders?status=resting&ticker=" + ticker
	if err := b.client.get(b.ctx, path, &resp); err != nil {
		slog.Warn("kalshi: fetch open orders", "ticker", ticker, "err", err)
		if entry, ok := b.orders[ticker]; ok {
			return entry.orders // stale beats empty on a transient error
		}
		return nil
	}

	out := make([]domain.Order, 0, len(resp.Orders))
	for _, w := range resp.Orders {
		out = append(out, fromWire(w))
	}
	b.orders[ticker] = ordersCacheEntry{orders: out, fetched: t}
	return out
}

// PlaceOrder submits the order, splitting it when it can be partially
// served by closing the opposite side: selling held NO at 100-p is the
// same exposure as buying YES at p, without tying up fresh cash.
func (b *Broker) PlaceOrder(order domain.Order, _ domain.MarketState, t time.Time) domain.PlaceResult {
	pos := b.positions[order.Ticker]
	oppositeHeld := pos.No
	oppositeSide := domain.SideNo
	if order.Side == domain.SideNo {
		oppositeHeld = pos.Yes
		oppositeSide = domain.SideYes
	}

	sellQty := min(order.Qty, oppositeHeld)
	buyQty := order.Qty - sellQty

	var firstID string
	if sellQty > 0 {
		res := b.submit(order.Ticker, oppositeSide, domain.ActionSell, 100-order.Price, sellQty, order.ExpireAt, t)
		if !res.OK {
			return res
		}
		firstID = res.OrderID
	}
	if buyQty > 0 {
		res := b.submit(order.Ticker, order.Side, domain.ActionBuy, order.Price, buyQty, order.ExpireAt, t)
		if firstID != "" && res.OrderID == "" {
			res.OrderID = firstID
		}
		return res
	}
	return domain.PlaceResult{OK: true, Status: domain.PlaceResting, OrderID: firstID}
}

// submit sends one leg and maps the outcome. Only a provable
// insufficient-balance response becomes a local cash reject; anything
// else surfaces as an error status so the engine can back off.
func (b *Broker) submit(ticker string, side domain.Side, action domain.OrderAction, price, qty int, expireAt *time.Time, t time.Time) domain.PlaceResult {
	req := createOrderRequest{
		Ticker:        ticker,
		ClientOrderID: uuid.New().String(),
		Side:          string(side),
		Action:        string(action),
		Type:          "limit",
		Count:         qty,
	}
	if side == domain.SideYes {
		req.YesPrice = price
	} else {
		req.NoPrice = price
	}
	if expireAt != nil {
		req.ExpirationTs = expireAt.Unix()
	}

	var resp orderResponse
	err := b.client.post(b.ctx, "/portfolio/orders", req, &resp)

	delete(b.orders, ticker)
	b.balanceFetched = time.Time{}

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Body, "insufficient") {
			slog.Warn("kalshi: order rejected for balance", "ticker", ticker, "price", price, "qty", qty)
			return domain.PlaceResult{OK: false, Status: domain.PlaceRejectedCash}
		}
		slog.Error("kalshi: place order", "ticker", ticker, "err", err)
		return domain.PlaceResult{OK: false, Status: domain.PlaceError}
	}

	o := fromWire(resp.Order)
	b.orderEvent(t, o, string(o.Status))

	switch o.Status {
	case domain.StatusExecuted:
		return domain.PlaceResult{OK: true, Filled: o.Qty - o.Remaining, Status: domain.PlaceExecuted, OrderID: o.ID}
	default:
		return domain.PlaceResult{OK: true, Status: domain.PlaceResting, OrderID: o.ID}
	}
}

// CancelOrder deletes an order exchange-side.
func (b *Broker) CancelOrder(orderID string) error {
	if err := b.client.del(b.ctx, "/portfolio/orders/"+orderID, nil); err != nil {
		return fmt.Errorf("kalshi.CancelOrder: %w", err)
	}
	b.orders = make(map[string]ordersCacheEntry)
	return nil
}

// AmendOrder rewrites price and count in place via PUT.
func (b *Broker) AmendOrder(orderID, ticker string, action domain.OrderAction, side domain.Side, price, qty int) bool {
	req := amendOrderRequest{
		Action:        string(action),
		Side:          string(side),
		Count:         qty,
		ClientOrderID: uuid.New().String(),
	}
	if side == domain.SideYes {
		req.YesPrice = price
	} else {
		req.NoPrice = price
	}

	if err := b.client.put(b.ctx, "/portfolio/orders/"+orderID, req, nil); err != nil {
		slog.Warn("kalshi: amend order", "order", orderID, "ticker", ticker, "err", err)
		return false
	}
	delete(b.orders, ticker)
	return true
}

// Positions returns the cached per-ticker holdings.
func (b *Broker) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(b.positions))
	for k, v := range b.positions {
		out[k] = v
	}
	return out
}

// Cash returns the cached spendable balance in dollars.
func (b *Broker) Cash() float64 {
	return b.balance
}

func (b *Broker) orderEvent(t time.Time, o domain.Order, status string) {
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

// fromWire maps an exchange order onto the domain type. The price kept
// is the one on the order's own side.
func fromWire(w wireOrder) domain.Order {
	price := w.YesPrice
	side := domain.SideYes
	if w.Side == "no" {
		price = w.NoPrice
		side = domain.SideNo
	}

	action := domain.ActionBuy
	if w.Action == "sell" {
		action = domain.ActionSell
	}

	o := domain.Order{
		ID:        w.OrderID,
		Ticker:    w.Ticker,
		Side:      side,
		Action:    action,
		Price:     price,
		Qty:       w.InitialCount,
		Remaining: w.RemainingCount,
		Status:    wireStatus(w.Status),
	}
	if ts, err := time.Parse(time.RFC3339, w.CreatedTime); err == nil {
		o.CreatedAt = ts
	}
	if w.ExpirationTime != "" {
		if ts, err := time.Parse(time.RFC3339, w.ExpirationTime); err == nil {
			o.ExpireAt = &ts
		}
	}
	return o
}

func wireStatus(s string) domain.OrderStatus {
	switch s {
	case "resting":
		return domain.StatusResting
	case "executed":
		return domain.StatusExecuted
	case "canceled":
		return domain.StatusCancelled
	case "expired":
		return domain.StatusExpired
	default:
		return domain.StatusOpen
	}
}
