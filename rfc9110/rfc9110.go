// Package rfc9110 implements the parts of HTTP Semantics (RFC 9110) needed to
// serve a representation conditionally and in byte ranges: entity-tags,
// HTTP-dates, the conditional request header fields and their precedence,
// and the Range / Content-Range fields.
//
// Files are named after the RFC section they implement, and quote the
// relevant text with a leading "§" marker.
//
// Nothing in this package performs I/O. Every function is a pure function of
// its inputs, so it is safe for concurrent use.
package rfc9110

import (
	"net/http"
	"strings"
)

// Field names used by this package and its callers.
const (
	HeaderAcceptRanges      = "Accept-Ranges"
	HeaderAllow             = "Allow"
	HeaderContentEncoding   = "Content-Encoding"
	HeaderContentLength     = "Content-Length"
	HeaderContentRange      = "Content-Range"
	HeaderContentType       = "Content-Type"
	HeaderDate              = "Date"
	HeaderETag              = "ETag"
	HeaderIfMatch           = "If-Match"
	HeaderIfModifiedSince   = "If-Modified-Since"
	HeaderIfNoneMatch       = "If-None-Match"
	HeaderIfRange           = "If-Range"
	HeaderIfUnmodifiedSince = "If-Unmodified-Since"
	HeaderLastModified      = "Last-Modified"
	HeaderRange             = "Range"
)

// isSafeRetrieval reports whether method is GET or HEAD, the only methods for
// which a failed If-None-Match or If-Modified-Since yields 304.
func isSafeRetrieval(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// fieldValue joins all field lines of name into a single comma-separated
// value, as permitted for list-based fields (Section 5.3).
func fieldValue(h http.Header, name string) (string, bool) {
	values := h.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}
