package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Strategy StrategyConfig `yaml:"strategy"`
	Sim      SimConfig      `yaml:"sim"`
	Live     LiveConfig     `yaml:"live"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig controla el loop de reconciliación.
type EngineConfig struct {
	MinRequoteIntervalS float64 `yaml:"min_requote_interval_s"`
	MaxActionsPerMinute int     `yaml:"max_actions_per_minute"`
	MinQuoteLifetimeS   float64 `yaml:"min_quote_lifetime_s"`
	MaxOrderAgeS        float64 `yaml:"max_order_age_s"` // 0 = sin límite
	AmendPriceTolerance int     `yaml:"amend_price_tolerance"`
	AmendQtyTolerance   int     `yaml:"amend_qty_tolerance"`
	RepriceMinCents     int     `yaml:"reprice_min_cents"`
	ResizeMinAbs        int     `yaml:"resize_min_abs"`
	ResizeMinRel        float64 `yaml:"resize_min_rel"`
	OpenRejectCooldownS float64 `yaml:"open_reject_cooldown_s"`
	CashBuffer          float64 `yaml:"cash_buffer"`
	TradeLiveWindowS    float64 `yaml:"trade_live_window_s"` // 0 = sin gate de staleness
	StaleWarmupOnly     bool    `yaml:"stale_warmup_only"`
}

// StrategyConfig controla el market maker.
type StrategyConfig struct {
	MarginCents         float64 `yaml:"margin_cents"`
	ScalingFactor       float64 `yaml:"scaling_factor"`
	MaxNotionalPct      float64 `yaml:"max_notional_pct"`
	MaxLossPct          float64 `yaml:"max_loss_pct"`
	MaxInventory        int     `yaml:"max_inventory"` // -1 = sin tope
	TightnessPercentile int     `yaml:"tightness_percentile"`
	ActiveHours         []int   `yaml:"active_hours"`
	DisableTimeGates    bool    `yaml:"disable_time_gates"`
}

// SimConfig controla el broker simulado.
type SimConfig struct {
	InitialCash          float64 `yaml:"initial_cash"`
	PassiveFillPerMinute float64 `yaml:"passive_fill_per_minute"`
}

// LiveConfig contiene las credenciales y el endpoint del broker real.
// La clave privada nunca va en el YAML; solo la ruta al PEM.
type LiveConfig struct {
	BaseURL    string `yaml:"base_url"`
	WSURL      string `yaml:"ws_url"`
	APIKeyID   string `yaml:"api_key_id"`
	KeyPEMPath string `yaml:"key_pem_path"`
}

// StorageConfig controla dónde se persiste el histórico de sesión.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"; vacío = sin histórico
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// MinRequoteInterval devuelve el throttle de requote como time.Duration.
func (c *Config) MinRequoteInterval() time.Duration {
	return secondsToDuration(c.Engine.MinRequoteIntervalS)
}

// MinQuoteLifetime devuelve la vida mínima de una quote.
func (c *Config) MinQuoteLifetime() time.Duration {
	return secondsToDuration(c.Engine.MinQuoteLifetimeS)
}

// MaxOrderAge devuelve la edad máxima de una orden antes de cancelarla.
func (c *Config) MaxOrderAge() time.Duration {
	return secondsToDuration(c.Engine.MaxOrderAgeS)
}

// OpenRejectCooldown devuelve el cooldown tras un open rechazado.
func (c *Config) OpenRejectCooldown() time.Duration {
	return secondsToDuration(c.Engine.OpenRejectCooldownS)
}

// TradeLiveWindow devuelve la ventana de frescura para operar en vivo.
func (c *Config) TradeLiveWindow() time.Duration {
	return secondsToDuration(c.Engine.TradeLiveWindowS)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KALSHI_API_KEY_ID"); v != "" {
		cfg.Live.APIKeyID = v
	}
	if v := os.Getenv("KALSHI_KEY_PEM_PATH"); v != "" {
		cfg.Live.KeyPEMPath = v
	}
	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		cfg.Live.BaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.MinRequoteIntervalS <= 0 {
		cfg.Engine.MinRequoteIntervalS = 2
	}
	if cfg.Engine.MaxActionsPerMinute <= 0 {
		cfg.Engine.MaxActionsPerMinute = 30
	}
	if cfg.Engine.MinQuoteLifetimeS <= 0 {
		cfg.Engine.MinQuoteLifetimeS = 5
	}
	if cfg.Engine.RepriceMinCents <= 0 {
		cfg.Engine.RepriceMinCents = 1
	}
	if cfg.Engine.ResizeMinAbs <= 0 {
		cfg.Engine.ResizeMinAbs = 2
	}
	if cfg.Engine.ResizeMinRel <= 0 {
		cfg.Engine.ResizeMinRel = 0.25
	}
	if cfg.Engine.OpenRejectCooldownS <= 0 {
		cfg.Engine.OpenRejectCooldownS = 30
	}
	if cfg.Engine.CashBuffer <= 0 {
		cfg.Engine.CashBuffer = 0.50
	}
	if cfg.Strategy.MarginCents <= 0 {
		cfg.Strategy.MarginCents = 4
	}
	if cfg.Strategy.ScalingFactor <= 0 {
		cfg.Strategy.ScalingFactor = 4
	}
	if cfg.Strategy.MaxNotionalPct <= 0 {
		cfg.Strategy.MaxNotionalPct = 0.05
	}
	if cfg.Strategy.MaxLossPct <= 0 {
		cfg.Strategy.MaxLossPct = 0.02
	}
	if cfg.Strategy.TightnessPercentile <= 0 {
		cfg.Strategy.TightnessPercentile = 20
	}
	// 0 = no configurado; el sentinel explícito para "sin tope" es -1.
	if cfg.Strategy.MaxInventory == 0 {
		cfg.Strategy.MaxInventory = 50
	}
	if cfg.Sim.InitialCash <= 0 {
		cfg.Sim.InitialCash = 1000
	}
	if cfg.Sim.PassiveFillPerMinute < 0 {
		cfg.Sim.PassiveFillPerMinute = 0
	}
	if cfg.Live.BaseURL == "" {
		cfg.Live.BaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if cfg.Live.WSURL == "" {
		cfg.Live.WSURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
