package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy is one way of producing a value. A Chain tries its strategies in order.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)

	// Eligible reports whether the strategy should run after the previous failed
	// attempt. A nil Eligible always runs.
	Eligible func(prev Attempt) bool
}

// Attempt records the outcome of a single strategy.
type Attempt struct {
	Strategy string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Result is returned by a successful Chain run.
type Result[T any] struct {
	Value    T
	Strategy string
	Attempts []Attempt
}

// ExhaustedError is returned when every strategy of a chain failed or was skipped.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Skipped {
			parts = append(parts, a.Strategy+": skipped")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return "all strategies failed (" + strings.Join(parts, "; ") + ")"
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// ErrNoStrategies is returned by Run on an empty chain.
var ErrNoStrategies = errors.New("no strategies configured")

// Chain runs strategies sequentially and stops at the first success.
// Strategies are never run concurrently.
type Chain[T any] struct {
	strategies []Strategy[T]
	timeout    time.Duration
	onFailure  func(Attempt)
}

// NewChain creates a chain from an ordered list of strategies.
func NewChain[T any](strategies ...Strategy[T]) *Chain[T] {
	return &Chain[T]{strategies: strategies}
}

// WithTimeout bounds every strategy run by d. Zero disables the bound.
func (c *Chain[T]) WithTimeout(d time.Duration) *Chain[T] {
	c.timeout = d
	return c
}

// OnFailure registers fn to be called after each failed or skipped attempt.
func (c *Chain[T]) OnFailure(fn func(Attempt)) *Chain[T] {
	c.onFailure = fn
	return c
}

// Run executes the chain. The parent context being done aborts the chain.
func (c *Chain[T]) Run(ctx context.Context) (Result[T], error) {
	var zero Result[T]
	if len(c.strategies) == 0 {
		return zero, ErrNoStrategies
	}

	attempts := make([]Attempt, 0, len(c.strategies))
	var prev Attempt
	for i, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if i > 0 && s.Eligible != nil && !s.Eligible(prev) {
			skipped := Attempt{Strategy: s.Name, Skipped: true}
			attempts = append(attempts, skipped)
			if c.onFailure != nil {
				c.onFailure(skipped)
			}
			continue
		}

		value, attempt := c.runOne(ctx, s)
		attempts = append(attempts, attempt)
		if attempt.Err == nil {
			return Result[T]{Value: value, Strategy: s.Name, Attempts: attempts}, nil
		}

		if c.onFailure != nil {
			c.onFailure(attempt)
		}
		prev = attempt
	}

	return zero, &ExhaustedError{Attempts: attempts}
}

func (c *Chain[T]) runOne(ctx context.Context, s Strategy[T]) (T, Attempt) {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	value, err := s.Run(runCtx)
	if err == nil && runCtx.Err() != nil && ctx.Err() == nil {
		// The strategy returned after its deadline; the result is not trusted.
		err = runCtx.Err()
	}

	return value, Attempt{
		Strategy: s.Name,
		Err:      err,
		Duration: time.Since(start),
	}
}
