package report

// csv.go — artefactos de salida de la sesión.
//
// El Recorder acumula en memoria y Flush escribe los ficheros de una
// vez, en orden de inserción. Con la misma secuencia de fills la salida
// es byte a byte idéntica entre ejecuciones.

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
)

const timeLayout = "2006-01-02 15:04:05"

// Recorder buffers trades, order events, and decisions for end-of-run
// artifact writing.
type Recorder struct {
	mu        sync.Mutex
	trades    []domain.TradeRecord
	events    []domain.OrderEvent
	decisions []ports.Decision

	withDecisions bool
}

// NewRecorder creates an in-memory recorder. withDecisions enables the
// decision_intents.csv artifact.
func NewRecorder(withDecisions bool) *Recorder {
	return &Recorder{withDecisions: withDecisions}
}

func (r *Recorder) RecordTrade(tr domain.TradeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, tr)
}

func (r *Recorder) RecordOrderEvent(ev domain.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) RecordDecision(d ports.Decision) {
	if !r.withDecisions {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

// Trades returns the buffered fills in arrival order.
func (r *Recorder) Trades() []domain.TradeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TradeRecord, len(r.trades))
	copy(out, r.trades)
	return out
}

// Events returns the buffered order events in arrival order.
func (r *Recorder) Events() []domain.OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OrderEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Flush escribe todos los artefactos en outDir.
func (r *Recorder) Flush(outDir string, cash float64, positions map[string]domain.Position) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("report.Flush: mkdir %s: %w", outDir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeTrades(filepath.Join(outDir, "unified_trades.csv")); err != nil {
		return err
	}
	if err := r.writeOrders(filepath.Join(outDir, "unified_orders.csv")); err != nil {
		return err
	}
	if err := writePositions(filepath.Join(outDir, "unified_positions.json"), cash, positions); err != nil {
		return err
	}
	if r.withDecisions {
		if err := r.writeDecisions(filepath.Join(outDir, "decision_intents.csv")); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) writeTrades(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report.writeTrades: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{
		"time", "action", "ticker", "price", "qty", "fee", "cost",
		"source", "order_id", "order_time", "fill_time", "fill_delay_s",
	})
	for _, tr := range r.trades {
		w.Write([]string{
			tr.Time.Format(timeLayout),
			string(tr.Action),
			tr.Ticker,
			strconv.Itoa(tr.Price),
			strconv.Itoa(tr.Qty),
			fmt.Sprintf("%.2f", tr.Fee),
			fmt.Sprintf("%.2f", tr.Cost),
			tr.Source,
			tr.OrderID,
			tr.OrderTime.Format(timeLayout),
			tr.FillTime.Format(timeLayout),
			fmt.Sprintf("%.1f", tr.FillDelay()),
		})
	}
	w.Flush()
	return w.Error()
}

func (r *Recorder) writeOrders(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report.writeOrders: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"time", "ticker", "side", "price", "qty", "status", "filled", "order_id"})
	for _, ev := range r.events {
		ts := ""
		if !ev.Time.IsZero() {
			ts = ev.Time.Format(timeLayout)
		}
		w.Write([]string{
			ts,
			ev.Ticker,
			string(ev.Side),
			strconv.Itoa(ev.Price),
			strconv.Itoa(ev.Qty),
			ev.Status,
			strconv.Itoa(ev.Filled),
			ev.OrderID,
		})
	}
	w.Flush()
	return w.Error()
}

func (r *Recorder) writeDecisions(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report.writeDecisions: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{
		"decision_id", "time", "ticker",
		"yes_bid", "yes_ask", "no_bid", "no_ask",
		"kind", "reason", "desired",
	})
	for _, d := range r.decisions {
		desired, err := json.Marshal(d.Desired)
		if err != nil {
			desired = []byte("[]")
		}
		w.Write([]string{
			d.ID,
			d.Time.Format(timeLayout),
			d.Ticker,
			strconv.Itoa(d.State.YesBid),
			strconv.Itoa(d.State.YesAsk),
			strconv.Itoa(d.State.NoBid),
			strconv.Itoa(d.State.NoAsk),
			d.Kind,
			d.Reason,
			string(desired),
		})
	}
	w.Flush()
	return w.Error()
}

type positionsArtifact struct {
	Cash      float64                     `json:"cash"`
	Positions map[string]positionSnapshot `json:"positions"`
}

type positionSnapshot struct {
	Yes  int     `json:"yes"`
	No   int     `json:"no"`
	Cost float64 `json:"cost"`
}

func writePositions(path string, cash float64, positions map[string]domain.Position) error {
	art := positionsArtifact{
		Cash:      cash,
		Positions: make(map[string]positionSnapshot, len(positions)),
	}
	// Keys sorted so the artifact is stable across runs.
	tickers := make([]string, 0, len(positions))
	for t := range positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		p := positions[t]
		art.Positions[t] = positionSnapshot{Yes: p.Yes, No: p.No, Cost: p.Cost}
	}

	b, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("report.writePositions: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("report.writePositions: %w", err)
	}
	return nil
}

// Tee duplica cada evento hacia varios recorders (p.ej. CSV + SQLite).
type Tee []ports.Recorder

func (t Tee) RecordTrade(tr domain.TradeRecord) {
	for _, r := range t {
		r.RecordTrade(tr)
	}
}

func (t Tee) RecordOrderEvent(ev domain.OrderEvent) {
	for _, r := range t {
		r.RecordOrderEvent(ev)
	}
}

func (t Tee) RecordDecision(d ports.Decision) {
	for _, r := range t {
		r.RecordDecision(d)
	}
}

var _ ports.Recorder = (*Recorder)(nil)
var _ ports.Recorder = (Tee)(nil)
