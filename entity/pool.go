package entity

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of blocking reads in flight across all requests.
// A nil *Pool runs everything inline.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool running at most n tasks at once.
func NewPool(n int64) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(n)}
}

// Do waits for a free slot and runs fn in the calling goroutine. It gives up
// waiting when ctx is done.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if p == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
