// Package entityserve answers GET and HEAD requests for an entity: it
// evaluates conditional request fields, serves single and multiple byte
// ranges and streams the body lazily from the entity.
package entityserve

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/pkg/byteranges"
	"github.com/always-cache/entityserve/pkg/compression"
	"github.com/always-cache/entityserve/rfc9110"
)

// ErrMethodNotApplicable is returned by Serve for methods other than GET and
// HEAD. The caller decides the response.
var ErrMethodNotApplicable = errors.New("method not applicable")

type Config struct {
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Boundary generates multipart boundaries. Random if nil.
	Boundary byteranges.BoundaryFunc
	// Now is the clock for the Date field. time.Now if nil.
	Now func() time.Time
	// Compressors offered to clients by the HTTP handlers, in order of
	// preference. Serve itself only codes when a Request asks for it.
	Compressors []compression.Compressor
	// MaxRangeParts caps the number of parts in a multipart response. A
	// request resolving to more ranges gets the full representation.
	// Zero means no limit.
	MaxRangeParts int
}

type Server struct {
	log         zerolog.Logger
	composer    byteranges.Composer
	now         func() time.Time
	compressors []compression.Compressor
	maxParts    int
}

// Request is what Serve needs to know about an incoming request.
type Request struct {
	Method string
	Header http.Header
	// Compressor codes the body when set. Range fields are then ignored.
	Compressor compression.Compressor
}

// New creates a server from config.
func New(config Config) *Server {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("component", "entityserve").
		Logger()

	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		log:         logger,
		composer:    byteranges.Composer{Boundary: config.Boundary},
		now:         now,
		compressors: config.Compressors,
		maxParts:    config.MaxRangeParts,
	}
}

// Serve computes the response to req for e. Only the decision is made here:
// the returned body has not read anything yet, and reads from e happen as
// the caller reads the body. Closing the body releases the entity stream.
//
// Malformed request fields never cause an error; they are ignored as the
// HTTP semantics require. The only error is ErrMethodNotApplicable.
func (s *Server) Serve(ctx context.Context, e entity.Entity, req Request) (*Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, ErrMethodNotApplicable
	}
	conds, err := rfc9110.ParseConditions(req.Header)
	if err != nil {
		s.log.Debug().Err(err).Msg("Ignoring malformed request fields")
	}

	var served entity.Entity = e
	var coded *compression.Entity
	if req.Compressor != nil {
		coded = compression.Wrap(e, req.Compressor)
		served = coded
	}

	x := &exchange{
		s:      s,
		ctx:    ctx,
		e:      e,
		head:   req.Method == http.MethodHead,
		res:    &Response{ContentLength: 0, Body: http.NoBody},
		served: served,
	}
	v := x.validators(s.now())

	outcome := rfc9110.Evaluate(req.Method, conds, v)
	s.log.Trace().Str("outcome", outcome.String()).Msg("Evaluated preconditions")
	if status := outcome.Status(); status != 0 {
		x.res.Status = status
		if outcome == rfc9110.PreconditionFailed {
			x.res.Header.Set(rfc9110.HeaderContentLength, "0")
		}
		return x.res, nil
	}

	switch {
	case coded != nil:
		return x.coded(coded), nil
	case e.Len() < 0:
		return x.unknownLength(), nil
	case conds.Range == "" || outcome == rfc9110.RangeHeaderIgnored:
		return x.full(), nil
	}

	specs, err := rfc9110.ParseRange(conds.Range)
	if err != nil {
		s.log.Debug().Str("range", conds.Range).Msg("Ignoring unparseable Range")
		return x.full(), nil
	}
	ranges, err := rfc9110.ResolveRanges(specs, e.Len())
	if err != nil {
		s.log.Trace().Str("range", conds.Range).Int64("length", e.Len()).Msg("Range not satisfiable")
		return x.unsatisfiable(), nil
	}
	s.log.Trace().Int("ranges", len(ranges)).Msg("Resolved ranges")
	switch {
	case len(ranges) == 1:
		return x.single(ranges[0]), nil
	case s.maxParts > 0 && len(ranges) > s.maxParts:
		s.log.Debug().Int("ranges", len(ranges)).Int("max", s.maxParts).Msg("Too many ranges, sending full representation")
		return x.full(), nil
	}
	return x.multipart(ranges)
}

// exchange is the state of one Serve call.
type exchange struct {
	s      *Server
	ctx    context.Context
	e      entity.Entity
	served entity.Entity
	head   bool
	res    *Response
}

// validators stamps Date, Last-Modified and ETag on the response and
// returns the validators the conditional fields are checked against.
// Last-Modified never lies in the future of Date.
func (x *exchange) validators(now time.Time) rfc9110.Validators {
	now = now.UTC().Truncate(time.Second)
	x.res.Header.Set(rfc9110.HeaderDate, rfc9110.FormatHTTPDate(now))
	v := rfc9110.Validators{ETag: x.served.ETag()}
	if lm := x.served.LastModified(); !lm.IsZero() {
		if lm.After(now) {
			lm = now
		}
		v.LastModified = lm
		x.res.Header.Set(rfc9110.HeaderLastModified, rfc9110.FormatHTTPDate(lm))
	}
	if !v.ETag.IsZero() {
		x.res.Header.Set(rfc9110.HeaderETag, v.ETag.String())
	}
	return v
}

func (x *exchange) setLength(n int64) {
	x.res.ContentLength = n
	x.res.Header.Set(rfc9110.HeaderContentLength, strconv.FormatInt(n, 10))
}

func (x *exchange) setContentType(ct string) {
	if ct != "" {
		x.res.Header.Set(rfc9110.HeaderContentType, ct)
	}
}

// body attaches a lazy reader over [offset, offset+length) of the entity,
// unless this is a HEAD request.
func (x *exchange) body(offset, length int64) {
	if !x.head {
		x.res.Body = entity.NewRangeReader(x.ctx, x.served, offset, length)
	}
}

func (x *exchange) full() *Response {
	x.res.Status = http.StatusOK
	x.res.Header.Set(rfc9110.HeaderAcceptRanges, "bytes")
	x.setContentType(x.e.ContentType())
	x.setLength(x.e.Len())
	x.body(0, x.e.Len())
	return x.res
}

func (x *exchange) single(r rfc9110.ResolvedRange) *Response {
	x.res.Status = http.StatusPartialContent
	x.res.Header.Set(rfc9110.HeaderAcceptRanges, "bytes")
	x.res.Header.Set(rfc9110.HeaderContentRange, r.ContentRange(x.e.Len()))
	x.setContentType(x.e.ContentType())
	x.setLength(r.Length())
	x.body(r.Start, r.Length())
	return x.res
}

func (x *exchange) multipart(ranges []rfc9110.ResolvedRange) (*Response, error) {
	b, err := x.s.composer.Compose(ranges, x.e.ContentType(), x.e.Len())
	if err != nil {
		// no boundary; fall back to the whole representation
		x.s.log.Error().Err(err).Msg("Could not generate multipart boundary")
		return x.full(), nil
	}
	x.res.Status = http.StatusPartialContent
	x.res.Header.Set(rfc9110.HeaderAcceptRanges, "bytes")
	x.res.Header.Set(rfc9110.HeaderContentType, b.ContentType())
	x.setLength(b.Length)
	if !x.head {
		x.res.Body = b.Open(x.ctx, x.e)
	}
	return x.res, nil
}

func (x *exchange) unsatisfiable() *Response {
	x.res.Status = http.StatusRequestedRangeNotSatisfiable
	x.res.Header.Set(rfc9110.HeaderAcceptRanges, "bytes")
	x.res.Header.Set(rfc9110.HeaderContentRange, rfc9110.UnsatisfiedContentRange(x.e.Len()))
	x.setLength(0)
	return x.res
}

// coded serves the whole representation through a content-coding. Offsets
// into the coded stream mean nothing to the source, so ranges are off.
func (x *exchange) coded(c *compression.Entity) *Response {
	x.res.Status = http.StatusOK
	x.res.Header.Set(rfc9110.HeaderAcceptRanges, "none")
	x.setContentType(x.e.ContentType())
	x.res.Header.Set(rfc9110.HeaderContentEncoding, c.ContentEncoding())
	x.res.ContentLength = -1
	x.body(0, -1)
	return x.res
}

// unknownLength serves an entity that cannot say how long it is, such as an
// already coded one.
func (x *exchange) unknownLength() *Response {
	x.res.Status = http.StatusOK
	x.res.Header.Set(rfc9110.HeaderAcceptRanges, "none")
	x.setContentType(x.e.ContentType())
	x.res.ContentLength = -1
	x.body(0, -1)
	return x.res
}
