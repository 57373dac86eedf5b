package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/basemap-orders/internal/model"
)

// Errors
var (
	ErrStaleConnection = errors.New("progress connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	URL          string        // e.g. ws://localhost:8081/ws
	PingInterval time.Duration // How often to ping the hub
	PingTimeout  time.Duration // Max time without a pong before the connection is stale
	WriteTimeout time.Duration // Write deadline for control frames
	BufferSize   int           // Update channel buffer size
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// Watcher follows a Hub over WebSocket and decodes its notifications.
type Watcher struct {
	cfg    WatcherConfig
	logger *slog.Logger

	conn *websocket.Conn

	updates chan model.Progress
	errors  chan error
	done    chan struct{}

	mu         sync.RWMutex
	connected  bool
	lastPongAt time.Time
	closed     bool
}

// NewWatcher creates a Watcher. Zero config fields take their defaults.
func NewWatcher(cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWatcherConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		updates: make(chan model.Progress, cfg.BufferSize),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect dials the hub and starts reading.
func (w *Watcher) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrAlreadyClosed
	}
	w.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.lastPongAt = time.Now()
	w.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		w.mu.Lock()
		w.lastPongAt = time.Now()
		w.mu.Unlock()
		return nil
	})

	go w.readLoop()
	go w.heartbeatLoop()

	w.logger.Debug("progress watcher connected", "url", w.cfg.URL)

	return nil
}

// Updates returns decoded notifications. It is closed when reading stops.
func (w *Watcher) Updates() <-chan model.Progress {
	return w.updates
}

// Errors returns connection errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsConnected returns the current connection state.
func (w *Watcher) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Close gracefully closes the connection.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.connected = false
	conn := w.conn
	w.mu.Unlock()

	close(w.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

func (w *Watcher) readLoop() {
	defer func() {
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
		close(w.updates)
	}()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
			default:
				select {
				case w.errors <- err:
				default:
				}
			}
			return
		}

		var p model.Progress
		if err := json.Unmarshal(data, &p); err != nil {
			w.logger.Warn("discarding malformed progress message", "error", err)
			continue
		}

		select {
		case w.updates <- p:
		case <-w.done:
			return
		default:
			w.logger.Warn("update buffer full, dropping notification", "order_id", p.OrderID)
		}
	}
}

func (w *Watcher) heartbeatLoop() {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			if err := w.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				w.logger.Debug("failed to send ping", "error", err)
			}

			w.mu.RLock()
			lastPong := w.lastPongAt
			w.mu.RUnlock()

			if time.Since(lastPong) > w.cfg.PingTimeout {
				w.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", w.cfg.PingTimeout,
				)
				select {
				case w.errors <- ErrStaleConnection:
				default:
				}
				w.conn.Close()
				return
			}
		}
	}
}
