package sim_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/adapters/report"
	"github.com/afuentes7/kalshibot/internal/adapters/sim"
	"github.com/afuentes7/kalshibot/internal/domain"
)

const testTicker = "KXHIGHLAX-26JAN09-B68"

var (
	t0        = time.Date(2026, time.January, 9, 8, 0, 0, 0, time.Local)
	bookState = domain.MarketState{YesBid: 49, YesAsk: 50, NoBid: 49, NoAsk: 51}
)

func newBroker(cash float64) (*sim.Broker, *report.Recorder) {
	rec := report.NewRecorder(false)
	b := sim.New(sim.Config{InitialCash: cash}, rec)
	return b, rec
}

func buyYes(price, qty int) domain.Order {
	return domain.Order{
		Ticker: testTicker,
		Side:   domain.SideYes,
		Action: domain.ActionBuy,
		Price:  price,
		Qty:    qty,
	}
}

func TestBroker_CrossFillDebitsCashAndFee(t *testing.T) {
	b, _ := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)

	res := b.PlaceOrder(buyYes(50, 10), bookState, t0)
	require.True(t, res.OK)
	assert.Equal(t, domain.PlaceExecuted, res.Status)
	assert.Equal(t, 10, res.Filled)

	// 10·$0.50 + fee $0.18
	assert.InDelta(t, 94.82, b.Cash(), 1e-9)
	pos := b.Positions()[testTicker]
	assert.Equal(t, 10, pos.Yes)
	assert.Equal(t, 0, pos.No)
}

func TestBroker_PairsNetToCash(t *testing.T) {
	b, _ := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)

	require.True(t, b.PlaceOrder(buyYes(50, 10), bookState, t0).OK)

	noOrder := domain.Order{
		Ticker: testTicker,
		Side:   domain.SideNo,
		Action: domain.ActionBuy,
		Price:  51,
		Qty:    4,
	}
	res := b.PlaceOrder(noOrder, bookState, t0)
	require.True(t, res.OK)
	assert.Equal(t, domain.PlaceExecuted, res.Status)

	// 4 parejas netean a $4 en cash; queda 6 YES.
	pos := b.Positions()[testTicker]
	assert.Equal(t, 6, pos.Yes)
	assert.Equal(t, 0, pos.No)

	// 94.82 − (4·0.51 + 0.07) + 4.00
	assert.InDelta(t, 96.71, b.Cash(), 1e-9)
}

func TestBroker_RejectsFillWithoutCashOrOpposite(t *testing.T) {
	b, _ := newBroker(1)
	b.ProcessTick(testTicker, bookState, t0)

	res := b.PlaceOrder(buyYes(50, 100), bookState, t0)
	assert.False(t, res.OK)
	assert.Equal(t, domain.PlaceRejectedCash, res.Status)
	assert.InDelta(t, 1.0, b.Cash(), 1e-9)
	assert.Empty(t, b.Positions())
}

func TestBroker_OrderExpires(t *testing.T) {
	b, _ := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)

	expireAt := t0.Add(15 * time.Second)
	o := buyYes(45, 5) // debajo del ask: descansa
	o.ExpireAt = &expireAt

	res := b.PlaceOrder(o, bookState, t0)
	require.True(t, res.OK)
	assert.Equal(t, domain.PlaceResting, res.Status)
	require.Len(t, b.OpenOrders(testTicker, bookState, t0), 1)

	b.ProcessTick(testTicker, bookState, t0.Add(16*time.Second))
	assert.Empty(t, b.OpenOrders(testTicker, bookState, t0))
}

func TestBroker_LatencyDelaysFill(t *testing.T) {
	rec := report.NewRecorder(false)
	b := sim.New(sim.Config{
		InitialCash: 100,
		Latency:     sim.LatencyModel{Constant: 2},
	}, rec)
	b.ProcessTick(testTicker, bookState, t0)

	res := b.PlaceOrder(buyYes(50, 5), bookState, t0)
	require.True(t, res.OK)
	// Con latencia, nunca hay fill inmediato aunque cruce.
	assert.Equal(t, domain.PlaceResting, res.Status)

	b.ProcessTick(testTicker, bookState, t0.Add(time.Second))
	assert.Empty(t, b.Positions())

	b.ProcessTick(testTicker, bookState, t0.Add(2*time.Second))
	assert.Equal(t, 5, b.Positions()[testTicker].Yes)
}

func TestBroker_CancelEventCarriesTickTime(t *testing.T) {
	b, rec := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)

	res := b.PlaceOrder(buyYes(45, 5), bookState, t0)
	require.Equal(t, domain.PlaceResting, res.Status)

	later := t0.Add(3 * time.Second)
	b.ProcessTick(testTicker, bookState, later)
	require.NoError(t, b.CancelOrder(res.OrderID))

	events := rec.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "canceled", last.Status)
	// El evento lleva el reloj del último tick, no el cero de time.Time.
	assert.Equal(t, later, last.Time)
}

func TestBroker_AmendRepricesInPlace(t *testing.T) {
	b, _ := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)

	res := b.PlaceOrder(buyYes(45, 5), bookState, t0)
	require.True(t, res.OK)
	require.Equal(t, domain.PlaceResting, res.Status)

	require.True(t, b.AmendOrder(res.OrderID, testTicker, domain.ActionBuy, domain.SideYes, 50, 5))
	b.ProcessTick(testTicker, bookState, t0.Add(time.Second))
	assert.Equal(t, 5, b.Positions()[testTicker].Yes)
}

func TestBroker_SettlementQueuesPayoutUntilPayoutTime(t *testing.T) {
	b, _ := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)
	require.True(t, b.PlaceOrder(buyYes(50, 10), bookState, t0).OK)
	cashAfterBuy := b.Cash()

	// Mid 99.4 snapea a 100: los 10 YES pagan $10.
	payout := b.SettleMarket(testTicker, domain.SnapSettlement(99.4), t0.Add(time.Hour))
	assert.InDelta(t, 10.0, payout, 1e-9)
	assert.Empty(t, b.Positions())
	assert.InDelta(t, 10.0, b.PendingPayouts(), 1e-9)
	assert.InDelta(t, cashAfterBuy, b.Cash(), 1e-9)

	// Segunda llamada es idempotente.
	assert.Zero(t, b.SettleMarket(testTicker, 100, t0.Add(time.Hour)))

	// El payout se libera en payout_at (01:00 del día siguiente).
	payoutAt := time.Date(2026, time.January, 10, 1, 0, 0, 0, time.Local)
	b.ProcessTick(testTicker, bookState, payoutAt)
	assert.InDelta(t, cashAfterBuy+10, b.Cash(), 1e-9)
	assert.Zero(t, b.PendingPayouts())
}

func TestBroker_SettlementExpiresOpenOrders(t *testing.T) {
	b, _ := newBroker(100)
	b.ProcessTick(testTicker, bookState, t0)
	require.Equal(t, domain.PlaceResting, b.PlaceOrder(buyYes(45, 5), bookState, t0).Status)

	b.SettleMarket(testTicker, 50, t0.Add(time.Hour))
	assert.Empty(t, b.OpenOrders(testTicker, bookState, t0.Add(time.Hour)))
}

func TestBroker_PassiveFillsAreDeterministic(t *testing.T) {
	runOnce := func() []domain.TradeRecord {
		rec := report.NewRecorder(false)
		b := sim.New(sim.Config{
			InitialCash:          100,
			PassiveFillPerMinute: 30,
			LatencySeed:          42,
		}, rec)

		// Book ancho: mid 50, el precio 55 no cruza el ask 60.
		wide := domain.MarketState{YesBid: 40, YesAsk: 60, NoBid: 40, NoAsk: 60}
		b.ProcessTick(testTicker, wide, t0)
		b.PlaceOrder(buyYes(55, 2), wide, t0)

		for i := 1; i <= 20; i++ {
			b.ProcessTick(testTicker, wide, t0.Add(time.Duration(i)*time.Second))
		}
		return rec.Trades()
	}

	first := runOnce()
	second := runOnce()
	assert.Equal(t, first, second)
}

func TestBroker_SeedPositions(t *testing.T) {
	b, _ := newBroker(100)
	b.SeedPositions(map[string]domain.SnapshotPosition{
		testTicker: {Yes: 6, Cost: 3.0},
		"EMPTY":    {},
	})
	pos := b.Positions()
	assert.Equal(t, 6, pos[testTicker].Yes)
	_, hasEmpty := pos["EMPTY"]
	assert.False(t, hasEmpty)
}
