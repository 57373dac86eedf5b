package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
)

// Event types.
const (
	TypeStateChanged = "order.state_changed"
	TypeCompleted    = "order.completed"
)

const publishTimeout = 5 * time.Second

// Event is the JSON body of every published message.
type Event struct {
	Type       string               `json:"type"`
	OrderID    string               `json:"order_id"`
	State      model.OrderState     `json:"state"`
	Attempt    int                  `json:"attempt"`
	ElapsedMS  int64                `json:"elapsed_ms"`
	Results    model.ResultManifest `json:"results,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends order events to a queue through the default exchange.
type Publisher struct {
	ch     Channel
	conn   *amqp.Connection
	queue  string
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]model.OrderState
}

// NewPublisher wraps an open channel. The queue must already be declared.
func NewPublisher(ch Channel, queue string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		ch:     ch,
		queue:  queue,
		logger: logger,
		now:    time.Now,
		last:   make(map[string]model.OrderState),
	}
}

// Dial connects to the broker, opens a channel and declares a durable queue.
func Dial(url, queue string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	p := NewPublisher(ch, queue, logger)
	p.conn = conn
	return p, nil
}

// Close closes the channel and, when the publisher dialed it, the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ObserveProgress publishes a state_changed event when the observed state
// differs from the last one seen for the order. Publish failures are logged.
func (p *Publisher) ObserveProgress(pr model.Progress) {
	p.mu.Lock()
	prev, seen := p.last[pr.OrderID]
	p.last[pr.OrderID] = pr.State
	if pr.State.IsTerminal() {
		delete(p.last, pr.OrderID)
	}
	p.mu.Unlock()

	if seen && prev == pr.State {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := p.publish(ctx, Event{
		Type:       TypeStateChanged,
		OrderID:    pr.OrderID,
		State:      pr.State,
		Attempt:    pr.Attempt,
		ElapsedMS:  pr.Elapsed.Milliseconds(),
		OccurredAt: pr.ObservedAt,
	})
	if err != nil {
		p.logger.Warn("failed to publish state change", "order_id", pr.OrderID, "state", pr.State, "error", err)
	}
}

// PublishOutcome publishes a completed event for a finished order.
func (p *Publisher) PublishOutcome(ctx context.Context, res *poller.Result) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.publish(ctx, Event{
		Type:       TypeCompleted,
		OrderID:    res.Handle.ID,
		State:      res.State,
		Attempt:    res.Attempts,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Results:    res.Manifest,
		OccurredAt: p.now(),
	})
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    ev.OccurredAt,
			Type:         ev.Type,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}
