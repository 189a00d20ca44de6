package engine

import "time"

// Config holds the reconciliation loop's knobs. Zero values fall back to
// the defaults in Default.
type Config struct {
	// Throttles.
	MinRequoteInterval  time.Duration
	MaxActionsPerMinute int           // amend+cancel+place per ticker, sliding 60s
	MinQuoteLifetime    time.Duration // churn guard for non-close orders
	MaxOrderAge         time.Duration // 0 = never force-cancel by age

	// Matching tolerances.
	AmendPriceTolerance int     // cents: within this, keep as-is
	AmendQtyTolerance   int     // contracts: within this, keep as-is
	RepriceMinCents     int     // below this delta, not worth touching
	ResizeMinAbs        int     // contracts
	ResizeMinRel        float64 // fraction of existing qty

	// Safety.
	OpenRejectCooldown time.Duration
	CashBuffer         float64 // dollars kept back on pre-flight checks

	// Staleness gate for live tailing; 0 disables.
	TradeLiveWindow time.Duration
	StaleWarmupOnly bool // feed stale ticks to the strategy, never trade them

	MetricInterval time.Duration

	// Now is the wall clock used by the staleness gate. Tests inject it.
	Now func() time.Time
}

// Default returns the production engine knobs.
func Default() Config {
	return Config{
		MinRequoteInterval:  2 * time.Second,
		MaxActionsPerMinute: 30,
		MinQuoteLifetime:    5 * time.Second,
		AmendPriceTolerance: 0,
		AmendQtyTolerance:   0,
		RepriceMinCents:     1,
		ResizeMinAbs:        2,
		ResizeMinRel:        0.25,
		OpenRejectCooldown:  30 * time.Second,
		CashBuffer:          0.50,
		MetricInterval:      30 * time.Second,
	}
}

func (c *Config) setDefaults() {
	def := Default()
	if c.MinRequoteInterval <= 0 {
		c.MinRequoteInterval = def.MinRequoteInterval
	}
	if c.MaxActionsPerMinute <= 0 {
		c.MaxActionsPerMinute = def.MaxActionsPerMinute
	}
	if c.MinQuoteLifetime <= 0 {
		c.MinQuoteLifetime = def.MinQuoteLifetime
	}
	if c.RepriceMinCents <= 0 {
		c.RepriceMinCents = def.RepriceMinCents
	}
	if c.ResizeMinAbs <= 0 {
		c.ResizeMinAbs = def.ResizeMinAbs
	}
	if c.ResizeMinRel <= 0 {
		c.ResizeMinRel = def.ResizeMinRel
	}
	if c.OpenRejectCooldown <= 0 {
		c.OpenRejectCooldown = def.OpenRejectCooldown
	}
	if c.CashBuffer <= 0 {
		c.CashBuffer = def.CashBuffer
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = def.MetricInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
