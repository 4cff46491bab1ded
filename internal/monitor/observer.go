package monitor

import (
	"context"

	"github.com/google/uuid"
	"github.com/otcheredev/cabinet-bootstrap/internal/failure"
)

// Event is a failure observed somewhere in the application
type Event struct {
	// Source names the reporting component, e.g. "tenant", "membership", "client".
	Source   string
	Strategy string
	UserID   uuid.UUID
	Email    string
	Err      error

	// Internal events come from server-side bootstrap steps. They are counted
	// and logged but never shown to users nor remediated.
	Internal bool
}

// Decision tells the caller how to react to an observed failure
type Decision struct {
	Kind       failure.Kind `json:"kind"`
	Signature  string       `json:"signature"`
	Notify     bool         `json:"notify"`
	Message    string       `json:"message,omitempty"`
	Action     string       `json:"action,omitempty"`
	Remediated bool         `json:"remediated"`
}

// Observer receives classified failures. It is registered once at startup.
type Observer interface {
	Observe(ctx context.Context, ev Event) Decision
}

// Nop is an Observer that only classifies
type Nop struct{}

// Observe classifies the event and does nothing else
func (Nop) Observe(ctx context.Context, ev Event) Decision {
	c := failure.Classify(ev.Err)
	return Decision{Kind: c.Kind, Signature: c.Signature}
}
