package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const snapshotTimeLayout = "2006-01-02 15:04:05"

// SnapshotPosition is the serialized per-ticker holding.
type SnapshotPosition struct {
	Yes  int     `json:"yes"`
	No   int     `json:"no"`
	Cost float64 `json:"cost"`
}

// StrategyConfigSnapshot carries the strategy knobs a snapshot may pin.
type StrategyConfigSnapshot struct {
	RiskPct             *float64 `json:"risk_pct,omitempty"`
	TightnessPercentile *int     `json:"tightness_percentile,omitempty"`
}

// Snapshot is the resumable portfolio state.
type Snapshot struct {
	Timestamp        string                      `json:"timestamp"`
	Balance          float64                     `json:"balance"`
	DailyStartEquity float64                     `json:"daily_start_equity"`
	Positions        map[string]SnapshotPosition `json:"positions"`
	StrategyConfig   *StrategyConfigSnapshot     `json:"strategy_config,omitempty"`
}

// Time parses the snapshot timestamp (local naive, like tick times).
func (s *Snapshot) Time() (time.Time, error) {
	return time.ParseInLocation(snapshotTimeLayout, s.Timestamp, time.Local)
}

// LoadSnapshot reads and validates a snapshot file. Positions that carry
// both YES and NO for the same ticker are netted on load, crediting one
// dollar per pair to the balance.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("domain.LoadSnapshot: read %q: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("domain.LoadSnapshot: parse %q: %w", path, err)
	}
	if snap.Timestamp != "" {
		if _, err := snap.Time(); err != nil {
			return nil, fmt.Errorf("domain.LoadSnapshot: bad timestamp %q: %w", snap.Timestamp, err)
		}
	}
	if snap.Positions == nil {
		snap.Positions = map[string]SnapshotPosition{}
	}

	for ticker, sp := range snap.Positions {
		if n := min(sp.Yes, sp.No); n > 0 {
			sp.Yes -= n
			sp.No -= n
			sp.Cost -= float64(n)
			if sp.Cost < 0 {
				sp.Cost = 0
			}
			snap.Positions[ticker] = sp
			snap.Balance += float64(n)
		}
	}

	return &snap, nil
}

// WriteSnapshot serializes the snapshot to path with a fresh timestamp.
func WriteSnapshot(path string, snap *Snapshot, now time.Time) error {
	snap.Timestamp = now.Format(snapshotTimeLayout)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("domain.WriteSnapshot: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("domain.WriteSnapshot: write %q: %w", path, err)
	}
	return nil
}
