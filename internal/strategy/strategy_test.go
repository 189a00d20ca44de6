package strategy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/strategy"
)

const testTicker = "KXHIGHLAX-26JAN09-B68"

// activeAt es una hora de sesión activa (08:xx local).
var activeAt = time.Date(2026, time.January, 9, 8, 30, 0, 0, time.Local)

func testConfig() strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.DisableTimeGates = true
	cfg.WarmupGate = false
	cfg.MarginCents = 1
	return cfg
}

// warmToSignal deja al maker con fair value por encima del precio actual:
// un tick a mid 59 seguido de uno a mid 50.
func warmToSignal(t *testing.T, mm *strategy.MarketMaker) domain.MarketState {
	t.Helper()
	high := domain.MarketState{YesBid: 58, YesAsk: 60, NoBid: 40, NoAsk: 42}
	desired, act := mm.OnMarketUpdate(testTicker, high, activeAt, domain.Inventory{}, nil, 1000)
	require.Nil(t, desired)
	require.False(t, act)
	require.Equal(t, "no_edge", mm.LastReason(testTicker))

	return domain.MarketState{YesBid: 49, YesAsk: 51, NoBid: 49, NoAsk: 51}
}

func TestMaker_SignalsBuyYesBelowFair(t *testing.T) {
	mm := strategy.New(testConfig())
	cheap := warmToSignal(t, mm)

	desired, act := mm.OnMarketUpdate(testTicker, cheap, activeAt, domain.Inventory{}, nil, 1000)
	require.True(t, act)
	require.Len(t, desired, 1)

	d := desired[0]
	assert.Equal(t, domain.BuyYes, d.Action)
	// La quote va al far touch, no al mid.
	assert.Equal(t, 51, d.Price)
	assert.Equal(t, 15*time.Second, d.ExpireAfter)
	assert.Greater(t, d.Qty, 0)
	assert.Equal(t, "SIGNAL_BUY_YES", mm.LastReason(testTicker))
}

func TestMaker_OppositeInventoryHolds(t *testing.T) {
	mm := strategy.New(testConfig())
	cheap := warmToSignal(t, mm)

	// Con NO en cartera, un señal BUY_YES se convierte en hold: nunca straddle.
	desired, act := mm.OnMarketUpdate(testTicker, cheap, activeAt, domain.Inventory{No: 5}, nil, 1000)
	assert.Nil(t, desired)
	assert.False(t, act)
	assert.Equal(t, "opposite_inventory", mm.LastReason(testTicker))
}

func TestMaker_WideSpreadCancelsAll(t *testing.T) {
	mm := strategy.New(testConfig())

	tight := domain.MarketState{YesBid: 49, YesAsk: 51, NoBid: 49, NoAsk: 51}
	mm.OnMarketUpdate(testTicker, tight, activeAt, domain.Inventory{}, nil, 1000)

	// spread 10 contra media previa 2 → régimen OFF: cancel all.
	wide := domain.MarketState{YesBid: 45, YesAsk: 55, NoBid: 45, NoAsk: 55}
	desired, act := mm.OnMarketUpdate(testTicker, wide, activeAt, domain.Inventory{}, nil, 1000)
	assert.Empty(t, desired)
	assert.True(t, act)
	assert.Equal(t, "spread_wide", mm.LastReason(testTicker))
}

func TestMaker_HourGateHolds(t *testing.T) {
	cfg := testConfig()
	cfg.DisableTimeGates = false
	mm := strategy.New(cfg)

	offHours := time.Date(2026, time.January, 9, 11, 0, 0, 0, time.Local)
	state := domain.MarketState{YesBid: 49, YesAsk: 51, NoBid: 49, NoAsk: 51}
	desired, act := mm.OnMarketUpdate(testTicker, state, offHours, domain.Inventory{}, nil, 1000)
	assert.Nil(t, desired)
	assert.False(t, act)
	assert.Equal(t, "hour_off", mm.LastReason(testTicker))
}

func TestMaker_MissingPricesHoldNeverCancel(t *testing.T) {
	mm := strategy.New(testConfig())

	// Solo un lado conocido: hold, nunca cancelar por datos malos.
	oneSided := domain.MarketState{YesAsk: 51}
	desired, act := mm.OnMarketUpdate(testTicker, oneSided, activeAt, domain.Inventory{}, nil, 1000)
	assert.Nil(t, desired)
	assert.False(t, act)
	assert.Equal(t, "no_prices", mm.LastReason(testTicker))
}

func TestMaker_WarmupGateBlocksUntilWindowFull(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupGate = true
	mm := strategy.New(cfg)

	state := domain.MarketState{YesBid: 49, YesAsk: 51, NoBid: 49, NoAsk: 51}
	desired, act := mm.OnMarketUpdate(testTicker, state, activeAt, domain.Inventory{}, nil, 1000)
	assert.Nil(t, desired)
	assert.False(t, act)
	assert.Equal(t, "warmup", mm.LastReason(testTicker))
}

func TestMaker_InventoryCapBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInventory = 10
	mm := strategy.New(cfg)
	cheap := warmToSignal(t, mm)

	desired, act := mm.OnMarketUpdate(testTicker, cheap, activeAt, domain.Inventory{Yes: 10}, nil, 1000)
	assert.Nil(t, desired)
	assert.False(t, act)
	assert.Equal(t, "inventory_full", mm.LastReason(testTicker))
}

func TestMaker_FeeGateBlocksThinEdge(t *testing.T) {
	cfg := testConfig()
	cfg.MarginCents = 4
	mm := strategy.New(cfg)

	// Edge de ~4.5 céntimos no cubre fee (1.75) + margen (4).
	cheap := warmToSignal(t, mm)
	desired, act := mm.OnMarketUpdate(testTicker, cheap, activeAt, domain.Inventory{}, nil, 1000)
	assert.Nil(t, desired)
	assert.False(t, act)
	assert.Equal(t, "min_edge_fee_gate", mm.LastReason(testTicker))
}

func TestMaker_InventoryPenaltyShrinksSize(t *testing.T) {
	mmFlat := strategy.New(testConfig())
	cheap := warmToSignal(t, mmFlat)
	flat, act := mmFlat.OnMarketUpdate(testTicker, cheap, activeAt, domain.Inventory{}, nil, 1000)
	require.True(t, act)
	require.Len(t, flat, 1)

	mmLoaded := strategy.New(testConfig())
	cheap = warmToSignal(t, mmLoaded)
	loaded, act := mmLoaded.OnMarketUpdate(testTicker, cheap, activeAt, domain.Inventory{Yes: 40}, nil, 1000)
	require.True(t, act)
	require.Len(t, loaded, 1)

	assert.Less(t, loaded[0].Qty, flat[0].Qty)
}
