package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/basemap-orders/internal/model"
)

// ProgressRecorder writes every progress notification to the ledger.
// Write failures are logged; they never interrupt polling.
type ProgressRecorder struct {
	store   *Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewProgressRecorder creates a ProgressRecorder.
func NewProgressRecorder(store *Store, logger *slog.Logger) *ProgressRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressRecorder{store: store, timeout: 5 * time.Second, logger: logger}
}

// ObserveProgress records p.
func (r *ProgressRecorder) ObserveProgress(p model.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.RecordProgress(ctx, p); err != nil {
		r.logger.Warn("failed to record progress",
			"order_id", p.OrderID,
			"state", p.State,
			"err", err,
		)
	}
}
