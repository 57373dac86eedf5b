package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/basemap-orders/internal/api"
	"github.com/rickgao/basemap-orders/internal/model"
)

// scriptedService replays a fixed sequence of status responses.
type scriptedService struct {
	mu       sync.Mutex
	handle   model.OrderHandle
	submitFn func(*model.OrderSpec) (model.OrderHandle, error)
	statuses []model.OrderStatus
	errAt    map[int]error // 1-based query number -> error
	submits  int
	queries  int
}

func (s *scriptedService) SubmitOrder(ctx context.Context, spec *model.OrderSpec) (model.OrderHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.submitFn != nil {
		return s.submitFn(spec)
	}
	return s.handle, nil
}

func (s *scriptedService) OrderStatus(ctx context.Context, h model.OrderHandle) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if err := s.errAt[s.queries]; err != nil {
		return model.OrderStatus{}, err
	}
	if len(s.statuses) == 0 {
		return model.OrderStatus{State: model.StateRunning}, nil
	}
	idx := s.queries - 1
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	return s.statuses[idx], nil
}

func (s *scriptedService) counts() (submits, queries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits, s.queries
}

// recorder collects progress notifications.
type recorder struct {
	mu     sync.Mutex
	events []model.Progress
}

func (r *recorder) ObserveProgress(p model.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recorder) states() []model.OrderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OrderState, len(r.events))
	for i, e := range r.events {
		out[i] = e.State
	}
	return out
}

func fastConfig(maxAttempts int) Config {
	return Config{Interval: time.Millisecond, MaxAttempts: maxAttempts}
}

func validSpec() *model.OrderSpec {
	return &model.OrderSpec{
		Name:       "basemap-order",
		SourceType: model.SourceTypeBasemaps,
		Products: []model.Product{
			{MosaicName: "global_monthly_2022_01_mosaic", QuadIDs: []string{"1229-1000"}},
		},
		Delivery: model.Delivery{ArchiveType: "zip"},
	}
}

func status(s model.OrderState) model.OrderStatus {
	return model.OrderStatus{State: s}
}

func TestAwaitCompletion_ReachesSuccess(t *testing.T) {
	manifest := model.ResultManifest{{Name: "ord-1/quad.tif", Location: "https://example.com/q"}}
	svc := &scriptedService{
		statuses: []model.OrderStatus{
			status(model.StateQueued),
			status(model.StateRunning),
			{State: model.StateRunning, Results: model.ResultManifest{{Name: "stale"}}},
			{State: model.StateSuccess, Results: manifest},
		},
	}
	rec := &recorder{}
	p := New(DefaultConfig(), svc, rec, nil)

	res, err := p.AwaitCompletion(context.Background(), model.OrderHandle{ID: "ord-1"}, fastConfig(0))
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}

	if _, queries := svc.counts(); queries != 4 {
		t.Errorf("queries = %d, want 4", queries)
	}
	if res.State != model.StateSuccess {
		t.Errorf("State = %q, want success", res.State)
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", res.Attempts)
	}
	if len(res.Manifest) != 1 || res.Manifest[0].Name != "ord-1/quad.tif" {
		t.Errorf("Manifest = %+v, want manifest from 4th response", res.Manifest)
	}
}

func TestAwaitCompletion_NotificationsIncludeRepeats(t *testing.T) {
	var seq []model.OrderStatus
	for i := 0; i < 5; i++ {
		seq = append(seq, status(model.StateRunning))
	}
	seq = append(seq, status(model.StateSuccess))

	svc := &scriptedService{statuses: seq}
	rec := &recorder{}
	p := New(DefaultConfig(), svc, rec, nil)

	if _, err := p.AwaitCompletion(context.Background(), model.OrderHandle{ID: "ord-1"}, fastConfig(0)); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}

	got := rec.states()
	if len(got) != 6 {
		t.Fatalf("notifications = %d, want 6", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i] != model.StateRunning {
			t.Errorf("notification %d = %q, want running", i, got[i])
		}
	}
	if got[5] != model.StateSuccess {
		t.Errorf("last notification = %q, want success", got[5])
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, e := range rec.events {
		if e.Attempt != i+1 {
			t.Errorf("event %d Attempt = %d, want %d", i, e.Attempt, i+1)
		}
		if e.OrderID != "ord-1" {
			t.Errorf("event %d OrderID = %q", i, e.OrderID)
		}
		if i > 0 && e.Elapsed < rec.events[i-1].Elapsed {
			t.Errorf("event %d Elapsed went backwards", i)
		}
	}
}

func TestAwaitCompletion_TerminalStates(t *testing.T) {
	tests := []struct {
		state        model.OrderState
		wantManifest bool
	}{
		{model.StateSuccess, true},
		{model.StatePartial, true},
		{model.StateFailed, false},
		{model.StateCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			svc := &scriptedService{
				statuses: []model.OrderStatus{
					{State: tt.state, Results: model.ResultManifest{{Name: "a"}}},
				},
			}
			p := New(DefaultConfig(), svc, nil, nil)

			res, err := p.AwaitCompletion(context.Background(), model.OrderHandle{ID: "x"}, fastConfig(0))
			if err != nil {
				t.Fatalf("AwaitCompletion: %v", err)
			}
			if res.State != tt.state {
				t.Errorf("State = %q, want %q", res.State, tt.state)
			}
			if got := res.Manifest != nil; got != tt.wantManifest {
				t.Errorf("manifest present = %v, want %v", got, tt.wantManifest)
			}
		})
	}
}

func TestAwaitCompletion_Timeout(t *testing.T) {
	svc := &scriptedService{} // always running
	rec := &recorder{}
	p := New(DefaultConfig(), svc, rec, nil)

	_, err := p.AwaitCompletion(context.Background(), model.OrderHandle{ID: "ord-1"}, fastConfig(3))

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if te.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", te.Attempts)
	}
	if te.LastState != model.StateRunning {
		t.Errorf("LastState = %q, want running", te.LastState)
	}
	if _, queries := svc.counts(); queries != 3 {
		t.Errorf("queries = %d, want 3", queries)
	}
	if n := len(rec.states()); n != 3 {
		t.Errorf("notifications = %d, want 3", n)
	}
}

func TestAwaitCompletion_TransportErrorIsImmediate(t *testing.T) {
	boom := errors.New("connection reset")
	svc := &scriptedService{
		statuses: []model.OrderStatus{status(model.StateQueued)},
		errAt:    map[int]error{2: boom},
	}
	rec := &recorder{}
	p := New(DefaultConfig(), svc, rec, nil)

	_, err := p.AwaitCompletion(context.Background(), model.OrderHandle{ID: "ord-1"}, fastConfig(0))

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", te.Attempt)
	}
	if te.Handle.ID != "ord-1" {
		t.Errorf("Handle.ID = %q, want ord-1", te.Handle.ID)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error chain should include cause, got %v", err)
	}
	if _, queries := svc.counts(); queries != 2 {
		t.Errorf("queries = %d, want 2", queries)
	}
	if n := len(rec.states()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestAwaitCompletion_ContextCancel(t *testing.T) {
	svc := &scriptedService{} // never terminal
	var seen atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := ObserverFunc(func(model.Progress) {
		if seen.Add(1) == 3 {
			cancel()
		}
	})
	p := New(DefaultConfig(), svc, obs, nil)

	_, err := p.AwaitCompletion(ctx, model.OrderHandle{ID: "ord-1"}, Config{Interval: 50 * time.Millisecond})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, queries := svc.counts(); queries != 3 {
		t.Errorf("queries = %d, want 3", queries)
	}
}

func TestSubmitOrder(t *testing.T) {
	t.Run("returns handle", func(t *testing.T) {
		svc := &scriptedService{handle: model.OrderHandle{ID: "ord-1", Location: "https://example.com/ord-1"}}
		p := New(DefaultConfig(), svc, nil, nil)

		h, err := p.SubmitOrder(context.Background(), validSpec())
		if err != nil {
			t.Fatalf("SubmitOrder: %v", err)
		}
		if h.ID != "ord-1" {
			t.Errorf("ID = %q, want ord-1", h.ID)
		}
	})

	t.Run("invalid spec is not sent", func(t *testing.T) {
		svc := &scriptedService{handle: model.OrderHandle{ID: "ord-1"}}
		p := New(DefaultConfig(), svc, nil, nil)

		spec := validSpec()
		spec.Products = nil
		_, err := p.SubmitOrder(context.Background(), spec)
		if !errors.Is(err, model.ErrInvalidSpec) {
			t.Fatalf("err = %v, want ErrInvalidSpec", err)
		}
		if submits, _ := svc.counts(); submits != 0 {
			t.Errorf("submits = %d, want 0", submits)
		}
	})

	t.Run("same spec submitted once", func(t *testing.T) {
		svc := &scriptedService{handle: model.OrderHandle{ID: "ord-1"}}
		p := New(DefaultConfig(), svc, nil, nil)

		spec := validSpec()
		if _, err := p.SubmitOrder(context.Background(), spec); err != nil {
			t.Fatalf("first SubmitOrder: %v", err)
		}
		_, err := p.SubmitOrder(context.Background(), spec)
		if !errors.Is(err, ErrAlreadySubmitted) {
			t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
		}
		if submits, _ := svc.counts(); submits != 1 {
			t.Errorf("submits = %d, want 1", submits)
		}

		// An equal but distinct spec is a new order.
		if _, err := p.SubmitOrder(context.Background(), validSpec()); err != nil {
			t.Fatalf("distinct SubmitOrder: %v", err)
		}
	})

	t.Run("rejection carries body", func(t *testing.T) {
		svc := &scriptedService{
			submitFn: func(*model.OrderSpec) (model.OrderHandle, error) {
				return model.OrderHandle{}, fmt.Errorf("create order: %w", &api.APIError{
					StatusCode: 400,
					Message:    "Bad Request",
					Body:       []byte(`{"field":{"Details":[{"message":"no access to mosaic"}]}}`),
				})
			},
		}
		p := New(DefaultConfig(), svc, nil, nil)

		_, err := p.SubmitOrder(context.Background(), validSpec())
		var se *SubmissionError
		if !errors.As(err, &se) {
			t.Fatalf("expected *SubmissionError, got %v", err)
		}
		if se.StatusCode != 400 {
			t.Errorf("StatusCode = %d, want 400", se.StatusCode)
		}
		if string(se.Body) != `{"field":{"Details":[{"message":"no access to mosaic"}]}}` {
			t.Errorf("Body = %q", se.Body)
		}
		if se.OrderName != "basemap-order" {
			t.Errorf("OrderName = %q", se.OrderName)
		}
	})

	t.Run("empty id is a submission failure", func(t *testing.T) {
		svc := &scriptedService{handle: model.OrderHandle{}}
		p := New(DefaultConfig(), svc, nil, nil)

		_, err := p.SubmitOrder(context.Background(), validSpec())
		var se *SubmissionError
		if !errors.As(err, &se) {
			t.Fatalf("expected *SubmissionError, got %v", err)
		}
	})
}

// TestPoller_RunAgainstHTTP drives the poller through the real REST client.
func TestPoller_RunAgainstHTTP(t *testing.T) {
	var polls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/compute/ops/orders/v2":
			fmt.Fprintf(w, `{"id":"ord-9","state":"queued","_links":{"_self":"%s/compute/ops/orders/v2/ord-9"}}`, server.URL)
		case r.Method == http.MethodGet && r.URL.Path == "/compute/ops/orders/v2/ord-9":
			if polls.Add(1) < 3 {
				w.Write([]byte(`{"id":"ord-9","state":"running","_links":{}}`))
				return
			}
			w.Write([]byte(`{"id":"ord-9","state":"success","_links":{"results":[{"name":"ord-9/basemap.zip","location":"https://example.com/z"}]}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "key", api.WithTimeout(5*time.Second))
	rec := &recorder{}
	p := New(Config{Interval: time.Millisecond}, client, rec, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := p.Run(ctx, validSpec())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Handle.ID != "ord-9" {
		t.Errorf("Handle.ID = %q, want ord-9", res.Handle.ID)
	}
	if res.State != model.StateSuccess {
		t.Errorf("State = %q, want success", res.State)
	}
	if len(res.Manifest) != 1 || res.Manifest[0].Name != "ord-9/basemap.zip" {
		t.Errorf("Manifest = %+v", res.Manifest)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}
	if n := len(rec.states()); n != 3 {
		t.Errorf("notifications = %d, want 3", n)
	}
}

func TestPoller_ServerErrorWithRetriesDisabled(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "key", api.WithRetries(0, time.Millisecond))
	rec := &recorder{}
	p := New(fastConfig(0), client, rec, nil)

	_, err := p.AwaitCompletion(context.Background(), model.OrderHandle{ID: "ord-1"}, fastConfig(0))

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if transportErr.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", transportErr.Attempt)
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want wrapped 503 APIError", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("HTTP requests = %d, want 1", got)
	}
	if n := len(rec.states()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}
