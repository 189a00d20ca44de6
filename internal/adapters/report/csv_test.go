package report_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/adapters/report"
	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
)

func sampleTrade(ts time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		Time:      ts,
		Action:    domain.BuyYes,
		Ticker:    "KXHIGHLAX-26JAN09-B68",
		Price:     51,
		Qty:       10,
		Fee:       0.18,
		Cost:      5.10,
		Source:    "cross",
		OrderID:   "sim-000001",
		OrderTime: ts,
		FillTime:  ts.Add(3 * time.Second),
	}
}

func TestRecorder_FlushWritesAllArtifacts(t *testing.T) {
	ts := time.Date(2026, time.January, 9, 8, 0, 0, 0, time.Local)
	rec := report.NewRecorder(true)
	rec.RecordTrade(sampleTrade(ts))
	rec.RecordOrderEvent(domain.OrderEvent{
		Time: ts, Ticker: "KXHIGHLAX-26JAN09-B68", Side: domain.SideYes,
		Price: 51, Qty: 10, Status: "resting", OrderID: "sim-000001",
	})
	rec.RecordDecision(ports.Decision{
		ID: "d1", Time: ts, Ticker: "KXHIGHLAX-26JAN09-B68",
		Kind: "quote", Reason: "SIGNAL_BUY_YES",
		Desired: []domain.DesiredOrder{{Action: domain.BuyYes, Price: 51, Qty: 10}},
	})

	dir := t.TempDir()
	positions := map[string]domain.Position{
		"KXHIGHLAX-26JAN09-B68": {Yes: 10, Cost: 5.10},
	}
	require.NoError(t, rec.Flush(dir, 94.72, positions))

	trades, err := os.ReadFile(filepath.Join(dir, "unified_trades.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(trades), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"time,action,ticker,price,qty,fee,cost,source,order_id,order_time,fill_time,fill_delay_s",
		lines[0])
	assert.Equal(t,
		"2026-01-09 08:00:00,BUY_YES,KXHIGHLAX-26JAN09-B68,51,10,0.18,5.10,cross,sim-000001,2026-01-09 08:00:00,2026-01-09 08:00:03,3.0",
		lines[1])

	orders, err := os.ReadFile(filepath.Join(dir, "unified_orders.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(orders), "sim-000001")

	var art struct {
		Cash      float64 `json:"cash"`
		Positions map[string]struct {
			Yes int `json:"yes"`
			No  int `json:"no"`
		} `json:"positions"`
	}
	raw, err := os.ReadFile(filepath.Join(dir, "unified_positions.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.InDelta(t, 94.72, art.Cash, 1e-9)
	assert.Equal(t, 10, art.Positions["KXHIGHLAX-26JAN09-B68"].Yes)

	decisions, err := os.ReadFile(filepath.Join(dir, "decision_intents.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(decisions), "SIGNAL_BUY_YES")
}

func TestRecorder_FlushIsDeterministic(t *testing.T) {
	ts := time.Date(2026, time.January, 9, 8, 0, 0, 0, time.Local)
	positions := map[string]domain.Position{
		"B": {No: 3, Cost: 1.2},
		"A": {Yes: 5, Cost: 2.4},
	}

	var runs [2][]byte
	for i := range runs {
		rec := report.NewRecorder(false)
		rec.RecordTrade(sampleTrade(ts))
		dir := t.TempDir()
		require.NoError(t, rec.Flush(dir, 100, positions))
		raw, err := os.ReadFile(filepath.Join(dir, "unified_positions.json"))
		require.NoError(t, err)
		runs[i] = raw
	}
	assert.Equal(t, string(runs[0]), string(runs[1]))
}

func TestRecorder_DecisionsDisabled(t *testing.T) {
	rec := report.NewRecorder(false)
	rec.RecordDecision(ports.Decision{ID: "d1"})

	dir := t.TempDir()
	require.NoError(t, rec.Flush(dir, 0, nil))
	_, err := os.Stat(filepath.Join(dir, "decision_intents.csv"))
	assert.True(t, os.IsNotExist(err))
}
