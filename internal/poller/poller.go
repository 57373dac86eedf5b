package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/basemap-orders/internal/model"
)

// DefaultInterval is the fixed delay between status queries.
const DefaultInterval = 10 * time.Second

// OrderingService is the remote service that accepts and reports on orders.
type OrderingService interface {
	SubmitOrder(ctx context.Context, spec *model.OrderSpec) (model.OrderHandle, error)
	OrderStatus(ctx context.Context, handle model.OrderHandle) (model.OrderStatus, error)
}

// ProgressObserver receives one notification per status query.
type ProgressObserver interface {
	ObserveProgress(p model.Progress)
}

// ObserverFunc is a function adapter for ProgressObserver.
type ObserverFunc func(model.Progress)

func (f ObserverFunc) ObserveProgress(p model.Progress) {
	f(p)
}

// Config holds polling configuration.
type Config struct {
	Interval    time.Duration // Delay between queries (default: 10s)
	MaxAttempts int           // Max status queries; <= 0 polls until terminal or ctx is done
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
	}
}

// Result is the terminal outcome of an order.
type Result struct {
	Handle   model.OrderHandle
	State    model.OrderState
	Manifest model.ResultManifest // set for success and partial
	Attempts int
	Elapsed  time.Duration
}

// Poller drives an OrderSpec through submission and polling to a terminal state.
type Poller struct {
	cfg      Config
	service  OrderingService
	observer ProgressObserver
	logger   *slog.Logger

	mu        sync.Mutex
	submitted map[*model.OrderSpec]model.OrderHandle
}

// New creates a new Poller. observer may be nil.
func New(cfg Config, service OrderingService, observer ProgressObserver, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		cfg:       cfg,
		service:   service,
		observer:  observer,
		logger:    logger,
		submitted: make(map[*model.OrderSpec]model.OrderHandle),
	}
}

// SubmitOrder sends spec to the ordering service and returns the new order's handle.
// A spec is submitted at most once per Poller; a second call returns ErrAlreadySubmitted.
func (p *Poller) SubmitOrder(ctx context.Context, spec *model.OrderSpec) (model.OrderHandle, error) {
	if err := spec.Validate(); err != nil {
		return model.OrderHandle{}, err
	}

	// Reserve before the request so concurrent callers cannot both submit.
	p.mu.Lock()
	if h, ok := p.submitted[spec]; ok {
		p.mu.Unlock()
		if h.ID == "" {
			return model.OrderHandle{}, fmt.Errorf("%w (earlier attempt did not return an order)", ErrAlreadySubmitted)
		}
		return model.OrderHandle{}, fmt.Errorf("%w (order %s)", ErrAlreadySubmitted, h.ID)
	}
	p.submitted[spec] = model.OrderHandle{}
	p.mu.Unlock()

	handle, err := p.service.SubmitOrder(ctx, spec)
	if err == nil && handle.ID == "" {
		err = fmt.Errorf("service returned an empty order id")
	}
	if err != nil {
		p.logger.Warn("order submission failed", "name", spec.Name, "err", err)
		return model.OrderHandle{}, newSubmissionError(spec, err)
	}

	p.mu.Lock()
	p.submitted[spec] = handle
	p.mu.Unlock()

	p.logger.Info("order submitted",
		"name", spec.Name,
		"order_id", handle.ID,
		"products", len(spec.Products),
		"tools", len(spec.Tools),
	)
	return handle, nil
}

// AwaitCompletion polls handle until the order reaches a terminal state.
//
// Each iteration queries status exactly once and notifies the observer. A
// failed query returns *TransportError without retrying. With cfg.MaxAttempts
// > 0, exhausting the attempts returns *TimeoutError. Cancelling ctx stops the
// loop and returns ctx.Err().
func (p *Poller) AwaitCompletion(ctx context.Context, handle model.OrderHandle, cfg Config) (*Result, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()

	for attempt := 1; ; attempt++ {
		status, err := p.service.OrderStatus(ctx, handle)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &TransportError{Handle: handle, Attempt: attempt, Err: err}
		}

		elapsed := time.Since(start)
		p.notify(model.Progress{
			OrderID:    handle.ID,
			State:      status.State,
			Attempt:    attempt,
			Elapsed:    elapsed,
			ObservedAt: time.Now().UTC(),
		})

		if status.State.IsTerminal() {
			res := &Result{
				Handle:   handle,
				State:    status.State,
				Attempts: attempt,
				Elapsed:  elapsed,
			}
			if status.State.HasResults() {
				res.Manifest = status.Results
			}
			p.logger.Info("order reached terminal state",
				"order_id", handle.ID,
				"state", status.State,
				"attempts", attempt,
				"results", len(res.Manifest),
				"elapsed", elapsed,
			)
			return res, nil
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return nil, &TimeoutError{Handle: handle, Attempts: attempt, LastState: status.State}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Run submits spec and waits for it using the Poller's configuration.
func (p *Poller) Run(ctx context.Context, spec *model.OrderSpec) (*Result, error) {
	handle, err := p.SubmitOrder(ctx, spec)
	if err != nil {
		return nil, err
	}
	return p.AwaitCompletion(ctx, handle, p.cfg)
}

func (p *Poller) notify(pr model.Progress) {
	p.logger.Debug("order status", "order_id", pr.OrderID, "state", pr.State, "attempt", pr.Attempt)
	if p.observer != nil {
		p.observer.ObserveProgress(pr)
	}
}
