package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	combinedStreamURL = "wss://stream.binance.com:9443/stream"
	readTimeout       = 3 * time.Minute
	reconnectMax      = 60 * time.Second
)

// TickerStream subscribes to the combined miniTicker stream for a fixed
// set of symbols and forwards last prices to a handler. It reconnects
// with exponential backoff until the context is cancelled.
type TickerStream struct {
	symbols []string
	handler TickHandler
	log     zerolog.Logger
}

// NewTickerStream builds a stream for the given symbols.
func NewTickerStream(symbols []string, handler TickHandler, log zerolog.Logger) *TickerStream {
	return &TickerStream{
		symbols: symbols,
		handler: handler,
		log:     log.With().Str("component", "ticker").Logger(),
	}
}

type combinedMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// Run blocks, consuming the stream until ctx is cancelled.
func (ts *TickerStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := ts.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		ts.log.Warn().Err(err).Dur("retry_in", backoff).Msg("ticker stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (ts *TickerStream) consume(ctx context.Context) error {
	streams := make([]string, len(ts.symbols))
	for i, s := range ts.symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	url := combinedStreamURL + "?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ts.log.Info().Int("symbols", len(ts.symbols)).Msg("ticker stream connected")

	// Unblock the read loop on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		symbol, price, ok := parseMiniTicker(payload)
		if !ok {
			continue
		}
		ts.handler(symbol, price)
	}
}

// parseMiniTicker extracts (symbol, lastPrice) from a combined-stream
// frame; ok is false for frames that are not usable ticks.
func parseMiniTicker(payload []byte) (string, float64, bool) {
	var msg combinedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", 0, false
	}
	if msg.Data.Symbol == "" || msg.Data.Close == "" {
		return "", 0, false
	}
	price, err := strconv.ParseFloat(msg.Data.Close, 64)
	if err != nil || price <= 0 {
		return "", 0, false
	}
	return msg.Data.Symbol, price, true
}
