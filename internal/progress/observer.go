package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
)

// LogObserver writes one structured log line per status query.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// ObserveProgress logs p. Terminal states are logged at Info, the rest at Debug.
func (o *LogObserver) ObserveProgress(p model.Progress) {
	level := slog.LevelDebug
	if p.State.IsTerminal() {
		level = slog.LevelInfo
	}
	o.logger.Log(context.Background(), level, "order status",
		"order_id", p.OrderID,
		"state", p.State,
		"attempt", p.Attempt,
		"elapsed", p.Elapsed.Round(time.Millisecond),
	)
}

// Multi forwards each notification to every observer in order.
type Multi []poller.ProgressObserver

// ObserveProgress implements poller.ProgressObserver.
func (m Multi) ObserveProgress(p model.Progress) {
	for _, o := range m {
		if o != nil {
			o.ObserveProgress(p)
		}
	}
}
