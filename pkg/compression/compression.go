// Package compression wraps entities in an on-the-fly content-coding and
// negotiates which coding to use.
//
// A compressed view has no known length and cannot serve sub-ranges, since
// byte offsets into the coded stream do not correspond to offsets in the
// source.
package compression

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

// Entity is a compressed view of another entity.
type Entity struct {
	inner entity.Entity
	c     Compressor
}

// Wrap returns the view of e coded with c.
func Wrap(e entity.Entity, c Compressor) *Entity {
	return &Entity{inner: e, c: c}
}

// Len is always -1: the coded size is not known without coding.
func (e *Entity) Len() int64 { return -1 }

func (e *Entity) ContentType() string { return e.inner.ContentType() }

// ETag is the inner entity-tag made weak, since the coded bytes differ from
// the bytes the tag was computed over.
func (e *Entity) ETag() rfc9110.EntityTag {
	t := e.inner.ETag()
	if t.IsZero() || t.IsWeak() {
		return t
	}
	return rfc9110.WeakETag(t.Opaque())
}

func (e *Entity) LastModified() time.Time { return e.inner.LastModified() }

// ContentEncoding is the coding applied.
func (e *Entity) ContentEncoding() string { return e.c.ContentEncoding() }

// Unwrap returns the source entity.
func (e *Entity) Unwrap() entity.Entity { return e.inner }

// OpenRange only supports the whole source: offset 0 and a length of either
// -1 or the source length. The coded stream is produced by a goroutine that
// exits when the stream ends or is closed.
func (e *Entity) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset != 0 || (length != -1 && length != e.inner.Len()) {
		return nil, entity.ErrRangeNotSupported
	}
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	s := &stream{pr: pr, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		pw.CloseWithError(e.compress(ctx, pw))
	}()
	return s, nil
}

func (e *Entity) compress(ctx context.Context, w io.Writer) error {
	src := entity.NewRangeReader(ctx, e.inner, 0, e.inner.Len())
	defer src.Close()
	cw, err := e.c.CompressStream(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(cw, src); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

type stream struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *stream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the coding goroutine and waits for it to release the source
// stream.
func (s *stream) Close() error {
	s.cancel()
	s.pr.CloseWithError(entity.ErrClosed)
	<-s.done
	return nil
}

// Compressible reports whether content of the given media type is worth
// coding. Already-compressed formats are not.
func Compressible(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	switch {
	case mt == "":
		return false
	case strings.HasPrefix(mt, "text/"):
		return true
	case strings.HasSuffix(mt, "+json"), strings.HasSuffix(mt, "+xml"):
		return true
	}
	switch mt {
	case "application/json",
		"application/javascript",
		"application/xml",
		"application/wasm",
		"application/x-ndjson",
		"image/bmp",
		"font/ttf",
		"font/otf":
		return true
	}
	return false
}
