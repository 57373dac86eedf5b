package model

// OrderState is the lifecycle state reported by the ordering service.
type OrderState string

const (
	StateQueued    OrderState = "queued"
	StateRunning   OrderState = "running"
	StateFinishing OrderState = "finishing"
	StateSuccess   OrderState = "success"
	StateFailed    OrderState = "failed"
	StatePartial   OrderState = "partial"
	StateCancelled OrderState = "cancelled"
)

// IsTerminal reports whether no further transitions follow s.
// States the service adds later are treated as non-terminal.
func (s OrderState) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailed, StatePartial, StateCancelled:
		return true
	}
	return false
}

// HasResults reports whether a manifest accompanies s.
func (s OrderState) HasResults() bool {
	return s == StateSuccess || s == StatePartial
}

func (s OrderState) String() string {
	return string(s)
}
