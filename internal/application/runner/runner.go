package runner

// runner.go — sesión completa: drena el tick source contra el engine y
// escribe los artefactos al terminar.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/afuentes7/kalshibot/internal/adapters/report"
	"github.com/afuentes7/kalshibot/internal/application/engine"
	"github.com/afuentes7/kalshibot/internal/ports"
)

// PendingReporter is implemented by brokers that queue settlement
// payouts (the simulator). Live balances already include them.
type PendingReporter interface {
	PendingPayouts() float64
}

// Config del runner.
type Config struct {
	OutDir    string
	StartCash float64
	DiagEvery int // DIAG line every N ticks; 0 = off
}

// Runner drives one session end to end.
type Runner struct {
	cfg     Config
	src     ports.TickSource
	eng     *engine.Engine
	broker  ports.Broker
	rec     *report.Recorder
	console *report.Console
}

// New wires a session.
func New(cfg Config, src ports.TickSource, eng *engine.Engine, broker ports.Broker, rec *report.Recorder, console *report.Console) *Runner {
	return &Runner{cfg: cfg, src: src, eng: eng, broker: broker, rec: rec, console: console}
}

// Run drena el source hasta io.EOF (o cancelación), hace el sweep final
// y escribe los artefactos. El error de un tick individual no corta la
// sesión; solo un source roto o el contexto la terminan.
func (r *Runner) Run(ctx context.Context) error {
	defer r.src.Close()

	var (
		ticks    int
		lastTime time.Time
	)

	for {
		tick, err := r.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("runner: session interrupted", "ticks", ticks)
				break
			}
			return fmt.Errorf("runner.Run: tick source: %w", err)
		}

		ticks++
		lastTime = tick.Time
		r.eng.OnTick(tick.Ticker, tick.State, tick.Time)

		if r.cfg.DiagEvery > 0 && ticks%r.cfg.DiagEvery == 0 {
			slog.Info("DIAG",
				"event", "DIAG",
				"ticks", ticks,
				"t", tick.Time.Format("15:04:05"),
				"ticker", tick.Ticker,
				"cash", fmt.Sprintf("%.2f", r.broker.Cash()),
				"actions", r.eng.ActionsTotal(),
			)
		}
	}

	if lastTime.IsZero() {
		lastTime = time.Now()
	}

	r.eng.FinalSweep(lastTime)

	pending := 0.0
	if pr, ok := r.broker.(PendingReporter); ok {
		pending = pr.PendingPayouts()
	}

	cash := r.broker.Cash()
	positions := r.broker.Positions()

	if r.cfg.OutDir != "" {
		if err := r.rec.Flush(r.cfg.OutDir, cash, positions); err != nil {
			return fmt.Errorf("runner.Run: write artifacts: %w", err)
		}
		slog.Info("runner: artifacts written", "dir", r.cfg.OutDir)
	}

	if r.console != nil {
		r.console.PrintSummary(r.rec.Trades(), r.cfg.StartCash, cash, pending, positions)
	}

	slog.Info("runner: session done",
		"ticks", ticks,
		"fills", len(r.rec.Trades()),
		"cash", fmt.Sprintf("%.2f", cash),
		"pending", fmt.Sprintf("%.2f", pending),
	)
	return nil
}
