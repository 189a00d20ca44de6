package storage

// sqlite.go — histórico de sesión en SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `trades`: una fila por fill. Es la fuente de verdad del PnL.
//   - `order_events`: ciclo de vida de órdenes (accepted/resting/...).
//   - `decisions`: una fila por decisión de quote/cancel con su snapshot
//     de mercado y el set deseado serializado.
//   - `sessions`: resumen diario (UPSERT por fecha).
//   - Prune automático al arrancar: todo lo anterior a 30 días.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/afuentes7/kalshibot/internal/domain"
	"github.com/afuentes7/kalshibot/internal/ports"
)

const schema = `
-- Una fila por fill
CREATE TABLE IF NOT EXISTS trades (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    ts         DATETIME NOT NULL,
    action     TEXT     NOT NULL,
    ticker     TEXT     NOT NULL,
    price      INTEGER  NOT NULL,
    qty        INTEGER  NOT NULL,
    fee        REAL     NOT NULL DEFAULT 0,
    cost       REAL     NOT NULL DEFAULT 0,
    source     TEXT     NOT NULL,
    order_id   TEXT     NOT NULL,
    order_ts   DATETIME,
    fill_ts    DATETIME
);

-- Ciclo de vida de órdenes
CREATE TABLE IF NOT EXISTS order_events (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    ts       DATETIME NOT NULL,
    ticker   TEXT     NOT NULL,
    side     TEXT     NOT NULL,
    price    INTEGER  NOT NULL,
    qty      INTEGER  NOT NULL,
    status   TEXT     NOT NULL,
    filled   INTEGER  NOT NULL DEFAULT 0,
    order_id TEXT     NOT NULL
);

-- Una fila por decisión del engine
CREATE TABLE IF NOT EXISTS decisions (
    id       TEXT PRIMARY KEY,
    ts       DATETIME NOT NULL,
    ticker   TEXT     NOT NULL,
    yes_bid  INTEGER, yes_ask INTEGER, no_bid INTEGER, no_ask INTEGER,
    kind     TEXT NOT NULL,
    reason   TEXT,
    desired  TEXT
);

-- Resumen diario, una fila por fecha
CREATE TABLE IF NOT EXISTS sessions (
    day        TEXT PRIMARY KEY,
    trades     INTEGER NOT NULL DEFAULT 0,
    volume     INTEGER NOT NULL DEFAULT 0,
    fees       REAL    NOT NULL DEFAULT 0,
    end_cash   REAL    NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_ts     ON trades(ts DESC);
CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);
CREATE INDEX IF NOT EXISTS idx_events_ts     ON order_events(ts DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_ts  ON decisions(ts DESC);
`

const retention = 30 * 24 * time.Hour

// SessionStore implementa ports.Recorder sobre SQLite. Un fallo de
// escritura se loguea y se descarta: el histórico nunca tumba la sesión.
type SessionStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSessionStore abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia datos antiguos.
func NewSessionStore(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSessionStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSessionStore: apply schema: %w", err)
	}

	s := &SessionStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// RecordTrade persiste un fill.
func (s *SessionStore) RecordTrade(tr domain.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO trades (ts, action, ticker, price, qty, fee, cost, source, order_id, order_ts, fill_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.Time.UTC(), string(tr.Action), tr.Ticker, tr.Price, tr.Qty,
		tr.Fee, tr.Cost, tr.Source, tr.OrderID, tr.OrderTime.UTC(), tr.FillTime.UTC(),
	)
	if err != nil {
		slog.Warn("storage: insert trade", "ticker", tr.Ticker, "err", err)
	}
}

// RecordOrderEvent persiste un evento de ciclo de vida.
func (s *SessionStore) RecordOrderEvent(ev domain.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO order_events (ts, ticker, side, price, qty, status, filled, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.UTC(), ev.Ticker, string(ev.Side), ev.Price, ev.Qty,
		ev.Status, ev.Filled, ev.OrderID,
	)
	if err != nil {
		slog.Warn("storage: insert order event", "ticker", ev.Ticker, "err", err)
	}
}

// RecordDecision persiste la decisión con el set deseado como JSON.
func (s *SessionStore) RecordDecision(d ports.Decision) {
	desired, err := json.Marshal(d.Desired)
	if err != nil {
		desired = []byte("[]")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO decisions (id, ts, ticker, yes_bid, yes_ask, no_bid, no_ask, kind, reason, desired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time.UTC(), d.Ticker,
		d.State.YesBid, d.State.YesAsk, d.State.NoBid, d.State.NoAsk,
		d.Kind, d.Reason, string(desired),
	)
	if err != nil {
		slog.Warn("storage: insert decision", "ticker", d.Ticker, "err", err)
	}
}

// SaveDailySummary hace upsert del resumen del día a partir de los
// trades ya persistidos.
func (s *SessionStore) SaveDailySummary(ctx context.Context, day time.Time, endCash float64) error {
	dayKey := day.Format("2006-01-02")

	var trades, volume int
	var fees float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(qty), 0), COALESCE(SUM(fee), 0)
		FROM trades WHERE date(ts) = ?`, dayKey,
	).Scan(&trades, &volume, &fees)
	if err != nil {
		return fmt.Errorf("storage.SaveDailySummary: aggregate: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (day, trades, volume, fees, end_cash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			trades     = excluded.trades,
			volume     = excluded.volume,
			fees       = excluded.fees,
			end_cash   = excluded.end_cash,
			updated_at = excluded.updated_at`,
		dayKey, trades, volume, fees, endCash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDailySummary: upsert: %w", err)
	}
	return nil
}

// TradesSince devuelve los fills con ts >= from, más antiguos primero.
func (s *SessionStore) TradesSince(ctx context.Context, from time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, action, ticker, price, qty, fee, cost, source, order_id, order_ts, fill_ts
		FROM trades WHERE ts >= ? ORDER BY ts ASC, id ASC`, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.TradesSince: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var tr domain.TradeRecord
		var action string
		if err := rows.Scan(
			&tr.Time, &action, &tr.Ticker, &tr.Price, &tr.Qty,
			&tr.Fee, &tr.Cost, &tr.Source, &tr.OrderID, &tr.OrderTime, &tr.FillTime,
		); err != nil {
			return nil, fmt.Errorf("storage.TradesSince: scan row: %w", err)
		}
		tr.Action = domain.TradeAction(action)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SessionStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retention)
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE ts < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM order_events WHERE ts < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM decisions WHERE ts < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM sessions WHERE day < ?`, cutoff.Format("2006-01-02"))
}
