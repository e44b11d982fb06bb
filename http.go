package entityserve

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/pkg/compression"
	tee "github.com/always-cache/entityserve/pkg/response-writer-tee"
	"github.com/always-cache/entityserve/rfc9110"
)

// KeyFunc maps a request to a store key.
type KeyFunc func(r *http.Request) string

// PathKey uses the request path without its leading slash as the key.
func PathKey(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

// ServeEntity answers r with e. Methods other than GET and HEAD get 405.
func (s *Server) ServeEntity(w http.ResponseWriter, r *http.Request, e entity.Entity) {
	rec := tee.NewResponseRecorder(w)
	defer s.logRequest(r, rec)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(rec)
		return
	}

	req := Request{Method: r.Method, Header: r.Header}
	if len(s.compressors) > 0 && compression.Compressible(e.ContentType()) {
		// the representation depends on Accept-Encoding whether or not we code it
		rec.Header().Add("Vary", "Accept-Encoding")
		req.Compressor = compression.Negotiate(r.Header.Get("Accept-Encoding"), s.compressors)
	}

	res, err := s.Serve(r.Context(), e, req)
	if errors.Is(err, ErrMethodNotApplicable) {
		methodNotAllowed(rec)
		return
	}
	s.WriteResponse(rec, res)
}

// StoreHandler serves GET and HEAD requests from store. Missing and invalid
// keys get 404.
func (s *Server) StoreHandler(store entity.Store, key KeyFunc) http.Handler {
	if key == nil {
		key = PathKey
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			rec := tee.NewResponseRecorder(w)
			defer s.logRequest(r, rec)
			methodNotAllowed(rec)
			return
		}
		e, err := store.Get(r.Context(), key(r))
		switch {
		case errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrInvalidKey):
			http.NotFound(w, r)
			return
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			s.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not look up entity")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.ServeEntity(w, r, e)
	})
}

// WriteResponse writes res to w and closes its body. If the body fails after
// the header went out the connection is aborted, so the client cannot
// mistake a truncated body for a complete one.
func (s *Server) WriteResponse(w http.ResponseWriter, res *Response) {
	defer res.Body.Close()

	h := w.Header()
	res.Header.CopyTo(h)
	if res.ContentLength < 0 {
		h.Del(rfc9110.HeaderContentLength)
	}
	if !res.Header.Has(rfc9110.HeaderContentType) {
		// keep net/http from sniffing one
		h[rfc9110.HeaderContentType] = nil
	}
	w.WriteHeader(res.Status)

	n, err := io.Copy(w, res.Body)
	if err == nil {
		return
	}
	var re *entity.ReadError
	if errors.As(err, &re) {
		s.log.Error().Err(re.Err).Int64("offset", re.Offset).Int64("written", n).Msg("Entity read failed mid-response")
	} else {
		s.log.Debug().Err(err).Int64("written", n).Msg("Could not write response body")
	}
	panic(http.ErrAbortHandler)
}

func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set(rfc9110.HeaderAllow, "GET, HEAD")
	w.Header().Set(rfc9110.HeaderContentLength, "0")
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (s *Server) logRequest(r *http.Request, rec *tee.ResponseRecorder) {
	s.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("status", rec.StatusCode()).
		Str("range", r.Header.Get(rfc9110.HeaderRange)).
		Int64("bytes", rec.Written()).
		Dur("elapsed", rec.Elapsed()).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}
