package feed

// ws.go — live tick source over the exchange ticker websocket.
//
// The stream delivers per-market top-of-book updates; each one is
// normalized to the same tick record the CSV replay produces, so the
// engine cannot tell the two sources apart.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afuentes7/kalshibot/internal/domain"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsPongTimeout    = 30 * time.Second
	wsReconnectBase  = time.Second
	wsReconnectLimit = 30 * time.Second
)

// HeaderProvider supplies signed headers for the upgrade request.
type HeaderProvider interface {
	Headers(method, path string) (http.Header, error)
}

// WSConfig configura la conexión.
type WSConfig struct {
	URL            string   // wss endpoint, e.g. wss://api.elections.kalshi.com/trade-api/ws/v2
	Path           string   // signed path, e.g. /trade-api/ws/v2
	Tickers        []string // markets to subscribe
	HeartbeatEvery time.Duration
}

// WSSource implements ports.TickSource over a websocket subscription.
type WSSource struct {
	cfg    WSConfig
	auth   HeaderProvider
	ticks  chan domain.Tick
	cancel context.CancelFunc
	done   chan struct{}
	seq    int64
}

type wsCommand struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"`
	Params wsSubscribeBody `json:"params"`
}

type wsSubscribeBody struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type wsTickerMsg struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Ts           int64  `json:"ts"` // unix seconds
}

// NewWS arranca la goroutine de lectura; reconecta con backoff hasta que
// el contexto del Next muera.
func NewWS(ctx context.Context, cfg WSConfig, auth HeaderProvider) *WSSource {
	runCtx, cancel := context.WithCancel(ctx)
	s := &WSSource{
		cfg:    cfg,
		auth:   auth,
		ticks:  make(chan domain.Tick, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(runCtx)
	return s
}

// Next blocks for the next tick, emitting heartbeats while the stream is
// silent. io.EOF when the source has shut down.
func (s *WSSource) Next(ctx context.Context) (domain.Tick, error) {
	var beat <-chan time.Time
	if s.cfg.HeartbeatEvery > 0 {
		t := time.NewTicker(s.cfg.HeartbeatEvery)
		defer t.Stop()
		beat = t.C
	}
	for {
		select {
		case tick, ok := <-s.ticks:
			if !ok {
				return domain.Tick{}, io.EOF
			}
			return tick, nil
		case <-beat:
			slog.Info("HEARTBEAT", "event", "HEARTBEAT", "source", "ws")
		case <-ctx.Done():
			return domain.Tick{}, ctx.Err()
		}
	}
}

// Close stops the reader goroutine and drains the channel.
func (s *WSSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *WSSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ticks)

	attempt := 0
	for ctx.Err() == nil {
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			wait := time.Duration(math.Pow(2, float64(attempt))) * wsReconnectBase
			if wait > wsReconnectLimit {
				wait = wsReconnectLimit
			}
			slog.Warn("feed: websocket dropped", "err", err, "retry_in", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			attempt++
			continue
		}
		attempt = 0
	}
}

func (s *WSSource) connectAndRead(ctx context.Context) error {
	headers, err := s.auth.Headers(http.MethodGet, s.cfg.Path)
	if err != nil {
		return fmt.Errorf("feed: sign upgrade: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, headers)
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	sub := wsCommand{
		ID:  1,
		Cmd: "subscribe",
		Params: wsSubscribeBody{
			Channels:      []string{"ticker"},
			MarketTickers: s.cfg.Tickers,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	slog.Info("feed: websocket subscribed", "tickers", len(s.cfg.Tickers))

	go s.pingLoop(ctx, conn)

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		if env.Type != "ticker" {
			continue
		}
		var msg wsTickerMsg
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			slog.Warn("feed: bad ticker message", "err", err)
			continue
		}

		s.seq++
		tick := domain.Tick{
			Time:   time.Unix(msg.Ts, 0),
			Ticker: msg.MarketTicker,
			Seq:    s.seq,
			State:  stateFromTicker(msg),
		}
		select {
		case s.ticks <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *WSSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(wsPongTimeout / 3)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// stateFromTicker derives the NO side from the YES book: a YES ask at p
// is a NO bid at 100-p.
func stateFromTicker(msg wsTickerMsg) domain.MarketState {
	st := domain.MarketState{YesBid: msg.YesBid, YesAsk: msg.YesAsk}
	if msg.YesAsk > 0 {
		st.NoBid = 100 - msg.YesAsk
	}
	if msg.YesBid > 0 {
		st.NoAsk = 100 - msg.YesBid
	}
	return st
}
