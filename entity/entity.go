// Package entity defines the servable resource contract and a set of
// implementations backed by memory, files and external stores.
package entity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/always-cache/entityserve/rfc9110"
)

// Entity is a servable representation: its metadata plus lazy access to any
// byte span of its content.
//
// Implementations must allow OpenRange to be called concurrently from
// several requests. Callers never ask for a span past Len().
type Entity interface {
	// Len is the size of the (uncompressed) representation in bytes, or -1
	// when it is not known in advance.
	Len() int64
	ContentType() string
	// ETag is the current entity-tag, weak or strong. Zero means none.
	ETag() rfc9110.EntityTag
	// LastModified is the modification time. Zero means none.
	LastModified() time.Time
	// OpenRange returns a stream of exactly length bytes starting at offset.
	// It should not read any bytes before the first Read. Entities whose Len
	// is -1 are asked for length -1, meaning everything from offset on.
	OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

var (
	ErrNotFound          = errors.New("entity not found")
	ErrRangeNotSupported = errors.New("entity does not support this range")
	ErrClosed            = errors.New("read on closed entity stream")
)

// ReadError is returned from body reads when the backing store fails after
// streaming has started.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("entity read at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// CheckRange returns ErrRangeNotSupported if [offset, offset+length) is not
// within e.
func CheckRange(e Entity, offset, length int64) error {
	if offset < 0 || length < 0 || offset+length > e.Len() {
		return fmt.Errorf("%w: %d+%d of %d", ErrRangeNotSupported, offset, length, e.Len())
	}
	return nil
}

// Meta carries the metadata part of an Entity. Store implementations embed it
// and add OpenRange.
type Meta struct {
	Size     int64
	Type     string
	Tag      rfc9110.EntityTag
	Modified time.Time
}

func (m Meta) Len() int64              { return m.Size }
func (m Meta) ContentType() string     { return m.Type }
func (m Meta) ETag() rfc9110.EntityTag { return m.Tag }
func (m Meta) LastModified() time.Time { return m.Modified }

// NewRangeReader returns a reader for length bytes of e starting at offset.
// Nothing is opened until the first Read. A negative length means the rest of
// e: Len()-offset bytes when the length is known, otherwise OpenRange gets -1
// and the stream is read until it ends. A stream that ends before the
// expected length is reported as a *ReadError wrapping io.ErrUnexpectedEOF.
//
// Close cancels the context handed to OpenRange and closes the open stream,
// if any. Reads after Close fail with ErrClosed.
func NewRangeReader(ctx context.Context, e Entity, offset, length int64) io.ReadCloser {
	if length < 0 {
		if n := e.Len(); n >= 0 {
			length = max(0, n-offset)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	return &rangeReader{
		ctx:    ctx,
		cancel: cancel,
		e:      e,
		offset: offset,
		remain: length,
	}
}

type rangeReader struct {
	ctx    context.Context
	cancel context.CancelFunc
	e      Entity
	offset int64
	remain int64

	mu     sync.Mutex
	rc     io.ReadCloser
	closed bool
	err    error
}

func (r *rangeReader) open() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.rc != nil {
		return r.rc, nil
	}
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := r.e.OpenRange(r.ctx, r.offset, r.remain)
	if err != nil {
		return nil, &ReadError{Offset: r.offset, Err: err}
	}
	r.rc = rc
	return rc, nil
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.remain == 0 {
		return 0, io.EOF
	}
	if err := r.ctx.Err(); err != nil {
		if r.isClosed() {
			return 0, ErrClosed
		}
		return 0, err
	}
	rc, err := r.open()
	if err != nil {
		r.err = err
		return 0, err
	}
	if r.remain > 0 && int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	n, err := rc.Read(p)
	r.offset += int64(n)
	if r.remain > 0 {
		r.remain -= int64(n)
	}
	switch {
	case err == io.EOF && r.remain > 0:
		r.err = &ReadError{Offset: r.offset, Err: io.ErrUnexpectedEOF}
	case err == io.EOF:
		r.err = io.EOF
	case err != nil && r.isClosed():
		r.err = ErrClosed
	case err != nil:
		r.err = &ReadError{Offset: r.offset, Err: err}
	case r.remain == 0:
		r.err = io.EOF
	}
	if r.err == io.EOF && n > 0 {
		return n, nil
	}
	return n, r.err
}

func (r *rangeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *rangeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	if r.rc != nil {
		return r.rc.Close()
	}
	return nil
}
