package domain_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/domain"
)

func writeSnapshotFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSnapshot_NetsPairsOnLoad(t *testing.T) {
	path := writeSnapshotFile(t, `{
		"timestamp": "2026-01-09 08:00:00",
		"balance": 500,
		"daily_start_equity": 520,
		"positions": {
			"KXHIGHLAX-26JAN09-B68": {"yes": 10, "no": 4, "cost": 9.0}
		}
	}`)

	snap, err := domain.LoadSnapshot(path)
	require.NoError(t, err)

	// 4 parejas netean: +$4 al balance, posición 6/0, coste -4.
	assert.InDelta(t, 504.0, snap.Balance, 1e-9)
	pos := snap.Positions["KXHIGHLAX-26JAN09-B68"]
	assert.Equal(t, 6, pos.Yes)
	assert.Equal(t, 0, pos.No)
	assert.InDelta(t, 5.0, pos.Cost, 1e-9)
}

func TestLoadSnapshot_BadTimestampIsFatal(t *testing.T) {
	path := writeSnapshotFile(t, `{"timestamp": "not-a-time", "balance": 100}`)
	_, err := domain.LoadSnapshot(path)
	require.Error(t, err)
}

func TestLoadSnapshot_StrategyOverrides(t *testing.T) {
	path := writeSnapshotFile(t, `{
		"timestamp": "2026-01-09 08:00:00",
		"balance": 100,
		"strategy_config": {"risk_pct": 0.01, "tightness_percentile": 10}
	}`)

	snap, err := domain.LoadSnapshot(path)
	require.NoError(t, err)
	require.NotNil(t, snap.StrategyConfig)
	require.NotNil(t, snap.StrategyConfig.RiskPct)
	assert.InDelta(t, 0.01, *snap.StrategyConfig.RiskPct, 1e-9)
	require.NotNil(t, snap.StrategyConfig.TightnessPercentile)
	assert.Equal(t, 10, *snap.StrategyConfig.TightnessPercentile)
}

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	snap := &domain.Snapshot{
		Balance: 250,
		Positions: map[string]domain.SnapshotPosition{
			"KXHIGHNY-26FEB14-B40": {Yes: 3, Cost: 1.5},
		},
	}
	now := time.Date(2026, time.February, 13, 12, 0, 0, 0, time.Local)
	require.NoError(t, domain.WriteSnapshot(path, snap, now))

	loaded, err := domain.LoadSnapshot(path)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, loaded.Balance, 1e-9)
	assert.Equal(t, 3, loaded.Positions["KXHIGHNY-26FEB14-B40"].Yes)
	assert.Equal(t, "2026-02-13 12:00:00", loaded.Timestamp)
}
