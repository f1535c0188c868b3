// Package chain runs an ordered list of alternatives until one succeeds.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoAttempts = errors.New("no attempts configured")

type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// First runs attempts in order and returns the first successful value and the
// name of the attempt that produced it. Outcomes list every attempt that ran.
// When all attempts fail the returned error joins their errors.
func First[T any](ctx context.Context, attempts ...Attempt[T]) (T, string, []Outcome, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, "", nil, ErrNoAttempts
	}
	outcomes := make([]Outcome, 0, len(attempts))
	errs := make([]error, 0, len(attempts))
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		v, err := a.Run(ctx)
		outcomes = append(outcomes, Outcome{Name: a.Name, Err: err, Duration: time.Since(start)})
		if err == nil {
			return v, a.Name, outcomes, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
	}
	return zero, "", outcomes, errors.Join(errs...)
}
