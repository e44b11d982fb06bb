package entity

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Throttle returns a view of e whose streams are limited to the rate of l,
// counted in bytes. Reads are split so no single wait exceeds the burst.
func Throttle(e Entity, l *rate.Limiter) Entity {
	return &throttled{Entity: e, limiter: l}
}

type throttled struct {
	Entity
	limiter *rate.Limiter
}

func (t *throttled) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	rc, err := t.Entity.OpenRange(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	return &rateLimitedReader{ctx: ctx, rc: rc, limiter: t.limiter}, nil
}

type rateLimitedReader struct {
	ctx     context.Context
	rc      io.ReadCloser
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	n, err := r.rc.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *rateLimitedReader) Close() error {
	return r.rc.Close()
}
