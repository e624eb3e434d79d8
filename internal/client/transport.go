package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/protocol"
)

const (
	DefaultReconnectAttempts = 10
	DefaultReconnectBase     = time.Second
	DefaultReconnectMax      = 5 * time.Second

	transportWriteWait = 10 * time.Second
)

var (
	ErrNotConnected       = errors.New("transport not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Handler receives every frame the relay sends. *Client satisfies it.
type Handler interface {
	Handle(env protocol.Envelope) error
}

// Reconnector is implemented by handlers that hold per-connection state.
// Run calls Reconnected after every successful re-dial.
type Reconnector interface {
	Reconnected()
}

type TransportOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Header      http.Header
	Logger      *zap.Logger
}

func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		MaxAttempts: DefaultReconnectAttempts,
		BaseDelay:   DefaultReconnectBase,
		MaxDelay:    DefaultReconnectMax,
	}
}

// Transport is the websocket Conn used by a Client. A dropped connection is
// re-dialed with exponential backoff; the client's local canvas is left
// untouched and peers see it again on its next update.
type Transport struct {
	url    string
	opts   TransportOptions
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Dial connects to the relay at url, e.g. ws://host:8080/ws?room=team.
func Dial(ctx context.Context, url string, opts TransportOptions) (*Transport, error) {
	def := DefaultTransportOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	t := &Transport{
		url:    url,
		opts:   opts,
		dialer: websocket.DefaultDialer,
		logger: opts.Logger.With(zap.String("url", url)),
	}

	conn, _, err := t.dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	t.conn = conn
	return t, nil
}

// Emit encodes and writes one frame. Writes are serialized.
func (t *Transport) Emit(event protocol.Event, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return ErrNotConnected
	}
	t.conn.SetWriteDeadline(time.Now().Add(transportWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run reads frames into h until ctx is cancelled, Close is called, or
// reconnecting fails MaxAttempts times in a row.
func (t *Transport) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	for {
		conn := t.current()
		if conn == nil {
			if t.isClosed() {
				return nil
			}
			return ErrNotConnected
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if t.isClosed() {
				return nil
			}
			t.logger.Warn("connection lost", zap.Error(err))
			if err := t.reconnect(ctx); err != nil {
				return err
			}
			if r, ok := h.(Reconnector); ok && !t.isClosed() {
				r.Reconnected()
			}
			continue
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			t.logger.Debug("ignoring frame", zap.Error(err))
			continue
		}
		if err := h.Handle(env); err != nil {
			t.logger.Debug("handler rejected frame", zap.String("event", string(env.Event)), zap.Error(err))
		}
	}
}

func (t *Transport) reconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	for attempt := 0; attempt < t.opts.MaxAttempts; attempt++ {
		delay := backoff(attempt, t.opts.BaseDelay, t.opts.MaxDelay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		conn, _, err := t.dialer.DialContext(ctx, t.url, t.opts.Header)
		if err != nil {
			t.logger.Warn("reconnect failed",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return nil
		}
		t.conn = conn
		t.mu.Unlock()
		t.logger.Info("reconnected", zap.Int("attempt", attempt+1))
		return nil
	}
	return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, t.opts.MaxAttempts)
}

// Close shuts the connection and stops Run.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *Transport) current() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// backoff doubles base per attempt, capped at limit.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}
