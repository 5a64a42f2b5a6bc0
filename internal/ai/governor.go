package ai

import (
	"context"

	"github.com/myrjola/lorebook/internal/errors"
)

// Governor caps the number of simultaneous outbound model calls across all
// components to avoid upstream rate-limit cascades. Saturated callers queue
// until a slot frees or their context is cancelled, they are never rejected.
type Governor struct {
	slots chan struct{}
}

func NewGovernor(limit int) *Governor {
	if limit < 1 {
		limit = 1
	}
	return &Governor{
		slots: make(chan struct{}, limit),
	}
}

// Acquire blocks until a slot is available and returns a release function.
// The release function must be called exactly once.
func (g *Governor) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.slots <- struct{}{}:
		return func() { <-g.slots }, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for model call slot")
	}
}
