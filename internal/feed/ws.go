package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meanrev-engine/internal/domain"
)

// WSConfig configures WebSocket feed behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// OnReconnect, when set, is invoked after every successful
	// reconnect-and-resubscribe. Callers use it to count reconnects.
	OnReconnect func()
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// tickMessage is the wire form of one price update.
type tickMessage struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	TimestampMs int64   `json:"ts"`
}

// subscribeRequest asks the server to stream ticks for one symbol.
type subscribeRequest struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

// WSFeed implements Feed over gorilla/websocket. One instance serves one
// instrument. It reconnects with exponential backoff and resubscribes after
// a drop; the consumer only observes a gap in samples.
type WSFeed struct {
	endpoint string
	symbol   string
	config   WSConfig
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out        chan domain.PriceSample
	subscribed atomic.Bool

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSFeed creates a feed and connects to the endpoint.
func NewWSFeed(ctx context.Context, endpoint, symbol string, config *WSConfig, log zerolog.Logger) (*WSFeed, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	f := &WSFeed{
		endpoint: endpoint,
		symbol:   symbol,
		config:   cfg,
		log:      log.With().Str("component", "ws_feed").Str("symbol", symbol).Logger(),
		out:      make(chan domain.PriceSample, 1024),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	return f, nil
}

// connect establishes the WebSocket connection.
func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// Subscribe requests the tick stream and starts the reader and ping loops.
// Safe to call once; subsequent calls return the same channel.
func (f *WSFeed) Subscribe(ctx context.Context) (<-chan domain.PriceSample, error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("feed closed")
	}

	if f.subscribed.Swap(true) {
		return f.out, nil
	}

	if err := f.sendSubscribe(); err != nil {
		f.subscribed.Store(false)
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f.out, nil
}

// sendSubscribe writes the subscription request on the current connection.
func (f *WSFeed) sendSubscribe() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("not connected")
	}

	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := f.conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbol: f.symbol}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the connection and the sample channel.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	close(f.out)
	return nil
}

// readLoop reads tick messages and pushes samples to the consumer.
func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// handleMessage decodes one wire message. Malformed or foreign-symbol
// messages are dropped; a feed never propagates parse errors downstream.
func (f *WSFeed) handleMessage(message []byte) {
	var tick tickMessage
	if err := json.Unmarshal(message, &tick); err != nil {
		f.log.Debug().Err(err).Msg("dropping unparseable message")
		return
	}
	if tick.Symbol != "" && tick.Symbol != f.symbol {
		return
	}

	sample, ok := decodeTick(tick)
	if !ok {
		return
	}

	select {
	case f.out <- sample:
	case <-f.done:
	}
}

// decodeTick converts a wire tick to a domain sample. Returns ok=false for
// ticks the tracker would reject anyway.
func decodeTick(tick tickMessage) (domain.PriceSample, bool) {
	if tick.Price <= 0 {
		return domain.PriceSample{}, false
	}
	ts := time.UnixMilli(tick.TimestampMs).UTC()
	if tick.TimestampMs == 0 {
		ts = time.Now().UTC()
	}
	return domain.PriceSample{
		Price:     tick.Price,
		Volume:    tick.Volume,
		Timestamp: ts,
	}, true
}

// reconnect attempts to reconnect and resubscribe.
func (f *WSFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	// Wait before reconnecting
	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		f.log.Warn().Err(err).Msg("reconnect failed, will retry on next read error")
		return
	}

	if err := f.sendSubscribe(); err != nil {
		f.log.Warn().Err(err).Msg("resubscribe failed")
		return
	}

	f.log.Info().Msg("reconnected and resubscribed")
	if f.config.OnReconnect != nil {
		f.config.OnReconnect()
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}

// Ensure WSFeed implements Feed
var _ Feed = (*WSFeed)(nil)
