package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	if exchange != "" {
		return errors.New("unexpected exchange " + exchange)
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func decode(t *testing.T, msg amqp.Publishing) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestPublisher_ObserveProgress_StateChangesOnly(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "basemap-order-events", nil)

	states := []model.OrderState{
		model.StateQueued,
		model.StateQueued,
		model.StateRunning,
		model.StateRunning,
		model.StateRunning,
		model.StateSuccess,
	}
	start := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	for i, s := range states {
		p.ObserveProgress(model.Progress{
			OrderID:    "ord-1",
			State:      s,
			Attempt:    i + 1,
			Elapsed:    time.Duration(i) * 10 * time.Second,
			ObservedAt: start.Add(time.Duration(i) * 10 * time.Second),
		})
	}

	if len(ch.published) != 3 {
		t.Fatalf("published %d events, want 3", len(ch.published))
	}

	want := []struct {
		state   model.OrderState
		attempt int
	}{
		{model.StateQueued, 1},
		{model.StateRunning, 3},
		{model.StateSuccess, 6},
	}
	for i, w := range want {
		msg := ch.published[i]
		ev := decode(t, msg)
		if ev.Type != TypeStateChanged || ev.State != w.state || ev.Attempt != w.attempt {
			t.Errorf("event %d = %+v, want state %s attempt %d", i, ev, w.state, w.attempt)
		}
		if ch.keys[i] != "basemap-order-events" {
			t.Errorf("routing key = %q", ch.keys[i])
		}
		if msg.DeliveryMode != amqp.Persistent {
			t.Errorf("DeliveryMode = %d, want persistent", msg.DeliveryMode)
		}
		if msg.MessageId == "" {
			t.Error("MessageId is empty")
		}
		if msg.ContentType != "application/json" {
			t.Errorf("ContentType = %q", msg.ContentType)
		}
	}

	if got := decode(t, ch.published[2]); got.ElapsedMS != 50000 {
		t.Errorf("ElapsedMS = %d, want 50000", got.ElapsedMS)
	}
}

func TestPublisher_ObserveProgress_TracksOrdersSeparately(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "q", nil)

	p.ObserveProgress(model.Progress{OrderID: "a", State: model.StateRunning})
	p.ObserveProgress(model.Progress{OrderID: "b", State: model.StateRunning})
	p.ObserveProgress(model.Progress{OrderID: "a", State: model.StateRunning})

	if len(ch.published) != 2 {
		t.Fatalf("published %d events, want 2", len(ch.published))
	}
}

func TestPublisher_ObserveProgress_SwallowsErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := NewPublisher(ch, "q", nil)

	p.ObserveProgress(model.Progress{OrderID: "a", State: model.StateRunning})
}

func TestPublisher_PublishOutcome(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "q", nil)
	fixed := time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.PublishOutcome(context.Background(), &poller.Result{
		Handle:   model.OrderHandle{ID: "ord-1"},
		State:    model.StatePartial,
		Attempts: 7,
		Elapsed:  time.Minute,
		Manifest: model.ResultManifest{{Name: "a.tif", Location: "https://example.com/a"}},
	})
	if err != nil {
		t.Fatalf("PublishOutcome: %v", err)
	}

	ev := decode(t, ch.published[0])
	if ev.Type != TypeCompleted || ev.OrderID != "ord-1" || ev.State != model.StatePartial {
		t.Errorf("event = %+v", ev)
	}
	if ev.Attempt != 7 || ev.ElapsedMS != 60000 {
		t.Errorf("attempt/elapsed = %d/%d", ev.Attempt, ev.ElapsedMS)
	}
	if len(ev.Results) != 1 || ev.Results[0].Name != "a.tif" {
		t.Errorf("Results = %+v", ev.Results)
	}
	if !ch.published[0].Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", ch.published[0].Timestamp, fixed)
	}
}

func TestPublisher_PublishOutcome_Error(t *testing.T) {
	ch := &fakeChannel{err: errors.New("connection reset")}
	p := NewPublisher(ch, "q", nil)

	err := p.PublishOutcome(context.Background(), &poller.Result{Handle: model.OrderHandle{ID: "ord-1"}, State: model.StateFailed})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	if err := NewPublisher(ch, "q", nil).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Error("channel not closed")
	}
}
