package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/afuentes7/kalshibot/config"
	"github.com/afuentes7/kalshibot/internal/adapters/feed"
	"github.com/afuentes7/kalshibot/internal/adapters/kalshi"
	"github.com/afuentes7/kalshibot/internal/adapters/report"
	"github.com/afuentes7/kalshibot/internal/adapters/sim"
	"github.com/afuentes7/kalshibot/internal/adapters/storage"
	"github.com/afuentes7/kalshibot/internal/application/engine"
	"github.com/afuentes7/kalshibot/internal/application/runner"
	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
	"github.com/afuentes7/kalshibot/internal/strategy"
)

const tsLayout = "2006-01-02 15:04:05"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (optional)")
		live        = flag.Bool("live", false, "trade against the real exchange")
		stratSpec   = flag.String("strategy", "maker", "strategy name or name:variant")
		logDir      = flag.String("log-dir", "", "directory of CSV tick logs")
		tickLog     = flag.String("tick-log", "", "single CSV tick log")
		follow      = flag.Bool("follow", false, "tail the tick log for new rows")
		snapshot    = flag.String("snapshot", "", "portfolio snapshot to seed from")
		initialCash = flag.Float64("initial-cash", 0, "starting cash for the simulator (overrides snapshot)")
		minRequote  = flag.Float64("min-requote-interval", 0, "seconds between requotes per ticker")
		startTS     = flag.String("start-ts", "", "replay from this timestamp (YYYY-MM-DD HH:MM:SS)")
		endTS       = flag.String("end-ts", "", "replay until this timestamp")
		outDir      = flag.String("out-dir", "out", "directory for session artifacts")
		decisionLog = flag.Bool("decision-log", false, "write decision_intents.csv")
		diagLog     = flag.String("diag-log", "", "rotating diagnostic log file")
		diagEvery   = flag.Int("diag-every", 0, "DIAG line every N ticks")
		heartbeatS  = flag.Float64("diag-heartbeat-s", 30, "heartbeat cadence while tailing, seconds")
		latencyS    = flag.Float64("fill-latency-s", 0, "constant simulated fill latency, seconds")
		latencyJSON = flag.String("fill-latency-model", "", "JSON array of latency samples to draw from")
		latencySeed = flag.Int64("fill-latency-seed", 0, "seed for the latency/fill RNG")
		tickers     = flag.String("tickers", "", "comma-separated market tickers (live websocket source)")
		verbose     = flag.Bool("verbose", false, "set log level to debug")
		logFormat   = flag.String("format", "", "log format: text|json (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log, *diagLog)

	slog.Info("kalshibot starting",
		"live", *live,
		"strategy", *stratSpec,
		"tick_log", *tickLog,
		"log_dir", *logDir,
		"follow", *follow,
		"out_dir", *outDir,
	)

	if err := run(cfg, options{
		live:        *live,
		stratSpec:   *stratSpec,
		logDir:      *logDir,
		tickLog:     *tickLog,
		follow:      *follow,
		snapshot:    *snapshot,
		initialCash: *initialCash,
		minRequote:  *minRequote,
		startTS:     *startTS,
		endTS:       *endTS,
		outDir:      *outDir,
		decisionLog: *decisionLog,
		diagEvery:   *diagEvery,
		heartbeatS:  *heartbeatS,
		latencyS:    *latencyS,
		latencyJSON: *latencyJSON,
		latencySeed: *latencySeed,
		tickers:     *tickers,
	}); err != nil {
		slog.Error("session failed", "err", err)
		os.Exit(1)
	}

	slog.Info("kalshibot stopped cleanly")
}

type options struct {
	live        bool
	stratSpec   string
	logDir      string
	tickLog     string
	follow      bool
	snapshot    string
	initialCash float64
	minRequote  float64
	startTS     string
	endTS       string
	outDir      string
	decisionLog bool
	diagEvery   int
	heartbeatS  float64
	latencyS    float64
	latencyJSON string
	latencySeed int64
	tickers     string
}

func run(cfg *config.Config, opts options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Recorders: artefactos CSV siempre; SQLite si hay DSN.
	csvRec := report.NewRecorder(opts.decisionLog)
	var rec ports.Recorder = csvRec
	if cfg.Storage.DSN != "" {
		store, err := storage.NewSessionStore(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()
		rec = report.Tee{csvRec, store}
	}

	// Snapshot.
	var snap *domain.Snapshot
	if opts.snapshot != "" {
		s, err := domain.LoadSnapshot(opts.snapshot)
		if err != nil {
			return err
		}
		snap = s
	}

	// Estrategia.
	stratCfg := strategyConfig(cfg, snap)
	factory, err := strategy.Lookup(opts.stratSpec)
	if err != nil {
		return err
	}
	strat := factory(stratCfg)

	// Broker.
	var (
		broker    ports.Broker
		startCash float64
	)
	if opts.live {
		signer, err := kalshi.NewSignerFromFile(cfg.Live.APIKeyID, cfg.Live.KeyPEMPath)
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		client := kalshi.NewClient(cfg.Live.BaseURL, signer)
		lb := kalshi.New(ctx, client, rec)
		// Ceba la cache de balance para que el resumen parta del cash real.
		lb.ProcessTick("", domain.MarketState{}, time.Now())
		broker = lb
		startCash = lb.Cash()
	} else {
		latency, err := latencyModel(opts.latencyS, opts.latencyJSON)
		if err != nil {
			return err
		}
		simCfg := sim.Config{
			InitialCash:          cfg.Sim.InitialCash,
			PassiveFillPerMinute: cfg.Sim.PassiveFillPerMinute,
			Latency:              latency,
			LatencySeed:          opts.latencySeed,
		}
		if snap != nil {
			simCfg.InitialCash = snap.Balance
		}
		if opts.initialCash > 0 {
			simCfg.InitialCash = opts.initialCash
		}
		sb := sim.New(simCfg, rec)
		if snap != nil {
			sb.SeedPositions(snap.Positions)
		}
		broker = sb
		startCash = simCfg.InitialCash
	}

	// Tick source.
	src, err := tickSource(ctx, cfg, opts)
	if err != nil {
		return err
	}

	// Engine.
	engCfg := engineConfig(cfg, opts)
	eng := engine.New(broker, strat, rec, engCfg)

	r := runner.New(runner.Config{
		OutDir:    opts.outDir,
		StartCash: startCash,
		DiagEvery: opts.diagEvery,
	}, src, eng, broker, csvRec, report.NewConsole(os.Stdout))

	return r.Run(ctx)
}

func strategyConfig(cfg *config.Config, snap *domain.Snapshot) strategy.Config {
	sc := strategy.DefaultConfig()
	sc.MarginCents = cfg.Strategy.MarginCents
	sc.ScalingFactor = cfg.Strategy.ScalingFactor
	sc.MaxNotionalPct = cfg.Strategy.MaxNotionalPct
	sc.MaxLossPct = cfg.Strategy.MaxLossPct
	if cfg.Strategy.MaxInventory > 0 {
		sc.MaxInventory = cfg.Strategy.MaxInventory
	} else {
		sc.MaxInventory = 0 // -1 en el YAML: sin tope
	}
	sc.TightnessPercentile = cfg.Strategy.TightnessPercentile
	if len(cfg.Strategy.ActiveHours) > 0 {
		sc.ActiveHours = cfg.Strategy.ActiveHours
	}
	sc.DisableTimeGates = cfg.Strategy.DisableTimeGates

	// El snapshot puede pinear knobs de riesgo de la sesión anterior.
	if snap != nil && snap.StrategyConfig != nil {
		if v := snap.StrategyConfig.RiskPct; v != nil {
			sc.MaxLossPct = *v
		}
		if v := snap.StrategyConfig.TightnessPercentile; v != nil {
			sc.TightnessPercentile = *v
		}
	}
	return sc
}

func engineConfig(cfg *config.Config, opts options) engine.Config {
	ec := engine.Config{
		MinRequoteInterval:  cfg.MinRequoteInterval(),
		MaxActionsPerMinute: cfg.Engine.MaxActionsPerMinute,
		MinQuoteLifetime:    cfg.MinQuoteLifetime(),
		MaxOrderAge:         cfg.MaxOrderAge(),
		AmendPriceTolerance: cfg.Engine.AmendPriceTolerance,
		AmendQtyTolerance:   cfg.Engine.AmendQtyTolerance,
		RepriceMinCents:     cfg.Engine.RepriceMinCents,
		ResizeMinAbs:        cfg.Engine.ResizeMinAbs,
		ResizeMinRel:        cfg.Engine.ResizeMinRel,
		OpenRejectCooldown:  cfg.OpenRejectCooldown(),
		CashBuffer:          cfg.Engine.CashBuffer,
		TradeLiveWindow:     cfg.TradeLiveWindow(),
		StaleWarmupOnly:     cfg.Engine.StaleWarmupOnly,
	}
	if opts.minRequote > 0 {
		ec.MinRequoteInterval = time.Duration(opts.minRequote * float64(time.Second))
	}
	return ec
}

func tickSource(ctx context.Context, cfg *config.Config, opts options) (ports.TickSource, error) {
	csvCfg := feed.CSVConfig{
		Follow:         opts.follow,
		HeartbeatEvery: time.Duration(opts.heartbeatS * float64(time.Second)),
	}
	if opts.startTS != "" {
		t, err := time.ParseInLocation(tsLayout, opts.startTS, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad --start-ts %q: %w", opts.startTS, err)
		}
		csvCfg.Start = t
	}
	if opts.endTS != "" {
		t, err := time.ParseInLocation(tsLayout, opts.endTS, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad --end-ts %q: %w", opts.endTS, err)
		}
		csvCfg.End = t
	}

	switch {
	case opts.tickLog != "":
		return feed.NewCSVFile(opts.tickLog, csvCfg)
	case opts.logDir != "":
		return feed.NewCSVDir(opts.logDir, csvCfg)
	case opts.live && opts.tickers != "":
		signer, err := kalshi.NewSignerFromFile(cfg.Live.APIKeyID, cfg.Live.KeyPEMPath)
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		return feed.NewWS(ctx, feed.WSConfig{
			URL:            cfg.Live.WSURL,
			Path:           "/trade-api/ws/v2",
			Tickers:        strings.Split(opts.tickers, ","),
			HeartbeatEvery: time.Duration(opts.heartbeatS * float64(time.Second)),
		}, signer), nil
	default:
		return nil, fmt.Errorf("no tick source: pass --tick-log, --log-dir, or --live with --tickers")
	}
}

func latencyModel(constant float64, samplesJSON string) (sim.LatencyModel, error) {
	m := sim.LatencyModel{Constant: constant}
	if samplesJSON != "" {
		if err := json.Unmarshal([]byte(samplesJSON), &m.Samples); err != nil {
			return m, fmt.Errorf("bad --fill-latency-model %q: %w", samplesJSON, err)
		}
	}
	return m, nil
}

func setupLogger(cfg config.LogConfig, diagPath string) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if diagPath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   diagPath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}
