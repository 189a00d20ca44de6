package feed

// csv.go — tick source sobre logs CSV append-only.
//
// Layout de columnas: time,ticker,yes_bid,yes_ask,no_bid,no_ask[,seq].
// Celdas vacías o "null" significan lado desconocido. Los ficheros de un
// directorio se reproducen en orden lexicográfico; cada fichero viene
// ordenado por time.

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/afuentes7/kalshibot/internal/domain"
)

const tickTimeLayout = "2006-01-02 15:04:05"

// followPollInterval is how often a tailing source re-checks the file
// for appended rows.
const followPollInterval = 500 * time.Millisecond

// CSVConfig controla el replay.
type CSVConfig struct {
	Follow         bool          // tail the last file for appended rows
	HeartbeatEvery time.Duration // 0 = no heartbeats while waiting
	Start          time.Time     // zero = from the beginning
	End            time.Time     // zero = until EOF
}

// CSVSource implements ports.TickSource over one or more CSV files.
type CSVSource struct {
	cfg   CSVConfig
	files []string

	fileIdx    int
	file       *os.File
	reader     *csv.Reader
	cols       map[string]int
	row        int
	lastBeat   time.Time
	lastEmit   time.Time
	emittedAny bool
}

// NewCSVFile opens a single tick log.
func NewCSVFile(path string, cfg CSVConfig) (*CSVSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("feed.NewCSVFile: %w", err)
	}
	return &CSVSource{cfg: cfg, files: []string{path}}, nil
}

// NewCSVDir opens every *.csv under dir, replayed in name order.
func NewCSVDir(dir string, cfg CSVConfig) (*CSVSource, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("feed.NewCSVDir: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("feed.NewCSVDir: no CSV files in %s", dir)
	}
	sort.Strings(matches)
	return &CSVSource{cfg: cfg, files: matches}, nil
}

// Next devuelve el siguiente tick. io.EOF al agotar los datos; en modo
// follow solo retorna con el contexto cancelado.
func (s *CSVSource) Next(ctx context.Context) (domain.Tick, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Tick{}, err
		}

		if s.reader == nil {
			if err := s.openNext(); err != nil {
				if err == io.EOF && s.cfg.Follow {
					if werr := s.waitForData(ctx); werr != nil {
						return domain.Tick{}, werr
					}
					continue
				}
				return domain.Tick{}, err
			}
		}

		record, err := s.reader.Read()
		if err == io.EOF {
			if s.cfg.Follow && s.fileIdx >= len(s.files) {
				// Tail: stay on the open file, poll for appended rows.
				if werr := s.waitForData(ctx); werr != nil {
					return domain.Tick{}, werr
				}
				continue
			}
			s.closeCurrent()
			continue
		}
		if err != nil {
			slog.Warn("feed: skipping malformed row",
				"file", s.files[s.fileIdx-1], "row", s.row, "err", err)
			s.row++
			continue
		}
		s.row++

		tick, perr := s.parseRow(record)
		if perr != nil {
			return domain.Tick{}, perr
		}

		if !s.cfg.Start.IsZero() && tick.Time.Before(s.cfg.Start) {
			continue
		}
		if !s.cfg.End.IsZero() && tick.Time.After(s.cfg.End) {
			return domain.Tick{}, io.EOF
		}

		s.lastEmit = tick.Time
		s.emittedAny = true
		return tick, nil
	}
}

func (s *CSVSource) openNext() error {
	if s.fileIdx >= len(s.files) {
		return io.EOF
	}
	path := s.files[s.fileIdx]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("feed: open %s: %w", path, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // trailing optional columns vary

	header, err := r.Read()
	if err != nil {
		f.Close()
		return fmt.Errorf("feed: read header of %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"time", "ticker"} {
		if _, ok := cols[required]; !ok {
			f.Close()
			return fmt.Errorf("feed: %s missing column %q", path, required)
		}
	}

	s.file = f
	s.reader = r
	s.cols = cols
	s.row = 1 // next data row, 1-based; the header doesn't count
	s.fileIdx++
	slog.Debug("feed: opened tick log", "file", path)
	return nil
}

func (s *CSVSource) closeCurrent() {
	if s.file != nil {
		s.file.Close()
	}
	s.file = nil
	s.reader = nil
}

// waitForData sleeps one poll interval and emits a HEARTBEAT line when
// the configured silence threshold passes.
func (s *CSVSource) waitForData(ctx context.Context) error {
	now := time.Now()
	if s.cfg.HeartbeatEvery > 0 && now.Sub(s.lastBeat) >= s.cfg.HeartbeatEvery {
		s.lastBeat = now
		lastEmit := "never"
		if s.emittedAny {
			lastEmit = s.lastEmit.Format(tickTimeLayout)
		}
		slog.Info("HEARTBEAT", "event", "HEARTBEAT", "last_tick", lastEmit)
	}
	select {
	case <-time.After(followPollInterval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRow construye el tick. Un timestamp ilegible es fatal: el log está
// corrupto y seguir produciría un replay desordenado.
func (s *CSVSource) parseRow(record []string) (domain.Tick, error) {
	get := func(name string) string {
		idx, ok := s.cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	ts, err := time.ParseInLocation(tickTimeLayout, get("time"), time.Local)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("feed: row %d: bad timestamp %q: %w", s.row-1, get("time"), err)
	}

	tick := domain.Tick{
		Time:       ts,
		Ticker:     get("ticker"),
		SourceFile: s.files[s.fileIdx-1],
		SourceRow:  s.row - 1,
		State: domain.MarketState{
			YesBid: parseCents(get("yes_bid")),
			YesAsk: parseCents(get("yes_ask")),
			NoBid:  parseCents(get("no_bid")),
			NoAsk:  parseCents(get("no_ask")),
		},
	}
	if seq := get("seq"); seq != "" {
		if n, err := strconv.ParseInt(seq, 10, 64); err == nil {
			tick.Seq = n
		}
	}
	return tick, nil
}

// parseCents devuelve 0 (desconocido) para celdas vacías, "null" o basura.
func parseCents(s string) int {
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 100 {
		return 0
	}
	return n
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	s.closeCurrent()
	return nil
}
