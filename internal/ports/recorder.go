package ports

import (
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
)

// Decision is one reconciliation outcome, for the decision-intent log.
type Decision struct {
	ID      string
	Time    time.Time
	Ticker  string
	State   domain.MarketState
	Kind    string // keep | cancel_all | quote | skip
	Reason  string // signal tag: no_edge, min_edge_fee_gate, ...
	Desired []domain.DesiredOrder
}

// Recorder collects the session's trade, order, and decision events.
// The engine and adapters are the sole writers; sinks are append-only.
type Recorder interface {
	RecordTrade(t domain.TradeRecord)
	RecordOrderEvent(e domain.OrderEvent)
	RecordDecision(d Decision)
}
