// Package byteranges composes multipart/byteranges bodies.
//
// Each part is framed as
//
//	--BOUNDARY CRLF
//	Content-Type: <type> CRLF
//	Content-Range: bytes <first>-<last>/<complete> CRLF
//	CRLF
//	<bytes> CRLF
//
// and the body ends with "--BOUNDARY--" CRLF. The Content-Type line is left
// out when the entity has no type. All framing is known up front, so the
// body length is computed without reading any entity bytes.
package byteranges

import (
	"context"
	"io"
	"sync"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

const crlf = "\r\n"

// Composer builds multipart bodies.
type Composer struct {
	// Boundary generates the boundary token. Nil means RandomBoundary(nil).
	Boundary BoundaryFunc
}

// Body is a composed multipart/byteranges body that has not been read yet.
type Body struct {
	Boundary string
	// Length is the exact number of bytes the body will produce.
	Length int64

	parts   []part
	trailer string
}

type part struct {
	header string
	r      rfc9110.ResolvedRange
}

// ContentType is the value for the response Content-Type field.
func (b *Body) ContentType() string {
	return "multipart/byteranges; boundary=" + b.Boundary
}

// Compose frames ranges of a representation with the given content type and
// complete length. Ranges are kept in the order given.
func (c Composer) Compose(ranges []rfc9110.ResolvedRange, contentType string, complete int64) (*Body, error) {
	next := c.Boundary
	if next == nil {
		next = RandomBoundary(nil)
	}
	boundary, err := next()
	if err != nil {
		return nil, err
	}
	b := &Body{
		Boundary: boundary,
		parts:    make([]part, 0, len(ranges)),
		trailer:  "--" + boundary + "--" + crlf,
	}
	for _, r := range ranges {
		h := "--" + boundary + crlf
		if contentType != "" {
			h += rfc9110.HeaderContentType + ": " + contentType + crlf
		}
		h += rfc9110.HeaderContentRange + ": " + r.ContentRange(complete) + crlf + crlf
		b.parts = append(b.parts, part{header: h, r: r})
		b.Length += int64(len(h)) + r.Length() + int64(len(crlf))
	}
	b.Length += int64(len(b.trailer))
	return b, nil
}

// Open returns a lazy reader over the body, taking part bytes from e. Only
// one part's range is open at a time, and Close releases it.
func (b *Body) Open(ctx context.Context, e entity.Entity) io.ReadCloser {
	return &bodyReader{ctx: ctx, e: e, b: b}
}

// bodyReader walks the segments of each part: header, range, CRLF. After the
// last part it emits the trailer. Close may be called while a Read is
// blocked on a part stream.
type bodyReader struct {
	ctx context.Context
	e   entity.Entity
	b   *Body

	mu     sync.Mutex
	idx    int // current part; len(parts) means trailer
	seg    int // 0 header, 1 range, 2 crlf
	static string
	rc     io.ReadCloser
	closed bool
}

func (r *bodyReader) Read(p []byte) (int, error) {
	for {
		rc, n, err := r.next(p)
		if rc == nil {
			return n, err
		}
		// the part stream is read without the lock so Close can interrupt it
		n, err = rc.Read(p)
		if err != io.EOF {
			return n, err
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return n, entity.ErrClosed
		}
		r.rc = nil
		r.seg = 2
		r.mu.Unlock()
		rc.Close()
		if n > 0 {
			return n, nil
		}
	}
}

// next hands out framing bytes into p, or returns the part stream to read
// from next.
func (r *bodyReader) next(p []byte) (io.ReadCloser, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.closed {
			return nil, 0, entity.ErrClosed
		}
		if len(r.static) > 0 {
			n := copy(p, r.static)
			r.static = r.static[n:]
			return nil, n, nil
		}
		if r.rc != nil {
			return r.rc, 0, nil
		}
		if !r.load() {
			return nil, 0, io.EOF
		}
	}
}

// load prepares the current segment. It returns false once the trailer has
// been handed out. r.mu must be held.
func (r *bodyReader) load() bool {
	if r.idx > len(r.b.parts) {
		return false
	}
	if r.idx == len(r.b.parts) {
		r.static = r.b.trailer
		r.idx++
		return true
	}
	pt := r.b.parts[r.idx]
	switch r.seg {
	case 0:
		r.static = pt.header
		r.seg = 1
	case 1:
		r.rc = entity.NewRangeReader(r.ctx, r.e, pt.r.Start, pt.r.Length())
	case 2:
		r.static = crlf
		r.idx++
		r.seg = 0
	}
	return true
}

func (r *bodyReader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rc := r.rc
	r.rc = nil
	r.mu.Unlock()
	if rc != nil {
		return rc.Close()
	}
	return nil
}
