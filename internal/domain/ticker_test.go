package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/domain"
)

func TestParseTicker_WeatherStyle(t *testing.T) {
	sched, err := domain.ParseTicker("KXHIGHLAX-26JAN09-B68")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, time.January, 9, 0, 0, 0, 0, time.Local), sched.Date)
	// El mercado termina a medianoche del día siguiente; el payout una hora después.
	assert.Equal(t, time.Date(2026, time.January, 10, 0, 0, 0, 0, time.Local), sched.MarketEnd)
	assert.Equal(t, time.Date(2026, time.January, 10, 1, 0, 0, 0, time.Local), sched.PayoutAt)
}

func TestParseTicker_TokenPosition(t *testing.T) {
	// El token de fecha no tiene por qué ser el segundo segmento.
	sched, err := domain.ParseTicker("KXBTC-ABOVE-25DEC31-T100")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.December, 31, 0, 0, 0, 0, time.Local), sched.Date)
}

func TestParseTicker_NoDateToken(t *testing.T) {
	_, err := domain.ParseTicker("INDEX-PERPETUAL")
	require.Error(t, err)

	// La segunda llamada sale de la cache y debe seguir fallando.
	_, err = domain.ParseTicker("INDEX-PERPETUAL")
	require.Error(t, err)
}

func TestParseTicker_BadMonthOrDay(t *testing.T) {
	_, err := domain.ParseTicker("KX-26XXX09-B68")
	require.Error(t, err)

	_, err = domain.ParseTicker("KX-26JAN4X-B68")
	require.Error(t, err)

	_, err = domain.ParseTicker("KX-26JAN40-B68")
	require.Error(t, err)
}

func TestParseTicker_Cached(t *testing.T) {
	a, err := domain.ParseTicker("KXHIGHNY-26FEB14-B40")
	require.NoError(t, err)
	b, err := domain.ParseTicker("KXHIGHNY-26FEB14-B40")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestWallet_QueuedPayouts(t *testing.T) {
	w := domain.Wallet{Available: 100}
	settle := time.Date(2026, time.January, 10, 1, 0, 0, 0, time.Local)

	w.QueuePayout(25, settle)
	assert.InDelta(t, 100.0, w.Available, 1e-9)
	assert.InDelta(t, 25.0, w.PendingTotal(), 1e-9)

	// Antes del payout no se libera nada.
	released := w.CheckSettlements(settle.Add(-time.Minute))
	assert.Zero(t, released)
	assert.InDelta(t, 100.0, w.Available, 1e-9)

	// En el instante exacto sí.
	released = w.CheckSettlements(settle)
	assert.InDelta(t, 25.0, released, 1e-9)
	assert.InDelta(t, 125.0, w.Available, 1e-9)
	assert.Zero(t, w.PendingTotal())
}
