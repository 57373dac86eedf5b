package poller

import (
	"errors"
	"fmt"

	"github.com/rickgao/basemap-orders/internal/api"
	"github.com/rickgao/basemap-orders/internal/model"
)

// ErrAlreadySubmitted is returned when the same OrderSpec is submitted twice.
var ErrAlreadySubmitted = errors.New("order spec already submitted")

// SubmissionError reports that the ordering service rejected an order.
// Resubmitting the same spec unchanged will not help.
type SubmissionError struct {
	OrderName  string
	StatusCode int    // 0 when no response was received
	Body       []byte // raw response body for diagnostics
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("submit order %q: status %d: %v", e.OrderName, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit order %q: %v", e.OrderName, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func newSubmissionError(spec *model.OrderSpec, err error) *SubmissionError {
	se := &SubmissionError{OrderName: spec.Name, Err: err}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		se.StatusCode = apiErr.StatusCode
		se.Body = apiErr.Body
	}
	return se
}

// TransportError reports a failed status query. It is not retried by the poller.
type TransportError struct {
	Handle  model.OrderHandle
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("poll order %s (attempt %d): %v", e.Handle.ID, e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that a bounded poll ran out of attempts.
type TimeoutError struct {
	Handle    model.OrderHandle
	Attempts  int
	LastState model.OrderState
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("order %s not terminal after %d attempts (last state %q)",
		e.Handle.ID, e.Attempts, e.LastState)
}
