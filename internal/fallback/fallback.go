// Package fallback evaluates ordered provider tiers until one succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

type Tier[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ExhaustedError reports that every tier failed. Errors holds one entry per tier, in order.
type ExhaustedError struct {
	Tiers  []string
	Errors []error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for i, err := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", e.Tiers[i], err))
	}
	return "all tiers failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	return e.Errors
}

// FirstSuccess runs each tier exactly once, in order, and returns the first
// successful result. log may be nil.
func FirstSuccess[T any](ctx context.Context, log *slog.Logger, tiers ...Tier[T]) (T, error) {
	var zero T
	if len(tiers) == 0 {
		return zero, errors.New("no tiers configured")
	}

	exhausted := &ExhaustedError{}
	for _, tier := range tiers {
		result, err := tier.Run(ctx)
		if err == nil {
			return result, nil
		}
		if log != nil {
			log.Warn("provider tier failed", "tier", tier.Name, "err", err)
		}
		exhausted.Tiers = append(exhausted.Tiers, tier.Name)
		exhausted.Errors = append(exhausted.Errors, err)
	}
	return zero, exhausted
}
