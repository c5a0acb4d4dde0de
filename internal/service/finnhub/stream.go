package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
	"QuantWatch/pkg/logger"
	"QuantWatch/pkg/retry"

	"github.com/gorilla/websocket"
)

const DefaultStreamURL = "wss://ws.finnhub.io"

type tradeAgg struct {
	price  float64
	volume float64
	ts     time.Time
	fresh  bool
}

// Stream keeps the latest streamed trade per symbol, accumulating volume
// between two Take calls.
type Stream struct {
	apiKey       string
	url          string
	pingInterval time.Duration
	backoff      *retry.Backoff
	log          *logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	symbols map[string]models.Symbol
	trades  map[models.Symbol]*tradeAgg
}

func NewStream(apiKey, url string, pingInterval time.Duration, backoff *retry.Backoff, log *logger.Logger) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if backoff == nil {
		backoff = retry.New(time.Second, time.Minute, 0.2)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		apiKey:       apiKey,
		url:          url,
		pingInterval: pingInterval,
		backoff:      backoff,
		log:          log,
		symbols:      make(map[string]models.Symbol),
		trades:       make(map[models.Symbol]*tradeAgg),
	}
}

// Track subscribes symbol, now if connected or on the next connect.
func (s *Stream) Track(symbol models.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[symbol.Code()] = symbol
	if s.conn != nil {
		s.writeLocked("subscribe", symbol.Code())
	}
}

// Untrack unsubscribes symbol and forgets its trades.
func (s *Stream) Untrack(symbol models.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.symbols, symbol.Code())
	delete(s.trades, symbol)
	if s.conn != nil {
		s.writeLocked("unsubscribe", symbol.Code())
	}
}

// Take returns a sample built from trades since the previous Take.
func (s *Stream) Take(symbol models.Symbol) (models.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.trades[symbol]
	if !ok || !agg.fresh {
		return models.Sample{}, false
	}
	out := models.Sample{
		Symbol:    symbol,
		Timestamp: agg.ts,
		Price:     agg.price,
		Volume:    agg.volume,
		Source:    Name + "-stream",
	}
	agg.volume = 0
	agg.fresh = false
	return out, true
}

func (s *Stream) writeLocked(kind, code string) {
	msg := map[string]string{"type": kind, "symbol": code}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Warn("finnhub stream write failed", logger.String("type", kind), logger.String("symbol", code), logger.Error(err))
	}
}

// Run connects and reads until ctx is done, reconnecting with backoff.
func (s *Stream) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		s.log.Warn("finnhub stream disconnected", logger.Error(err), logger.Int("attempt", attempt))
		if s.backoff.Wait(ctx, attempt) != nil {
			return
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.url, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	for code := range s.symbols {
		s.writeLocked("subscribe", code)
	}
	s.mu.Unlock()
	s.log.Info("finnhub stream connected", logger.Int("symbols", len(s.symbols)))

	done := make(chan struct{})
	defer func() {
		close(done)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				s.mu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.mu.Unlock()
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		s.handle(b)
	}
}

type wireTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireTrade `json:"data"`
}

func (s *Stream) handle(b []byte) {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range m.Data {
		sym, ok := s.symbols[d.S]
		if !ok || d.P <= 0 {
			continue
		}
		ts := time.UnixMilli(d.T).UTC()
		agg, ok := s.trades[sym]
		if !ok {
			agg = &tradeAgg{}
			s.trades[sym] = agg
		}
		if ts.Before(agg.ts) {
			continue
		}
		agg.price = d.P
		agg.volume += d.V
		agg.ts = ts
		agg.fresh = true
	}
}
