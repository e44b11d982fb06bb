package entityserve

import (
	"io"
	"net/http"
	"net/textproto"
)

// Response is the outcome of serving an entity. The caller owns it and must
// Close Body (which is never nil).
type Response struct {
	Status int
	Header Header
	// ContentLength is the exact body length, or -1 when the body is coded on
	// the fly and the length is unknown.
	ContentLength int64
	// Body produces the payload lazily. For HEAD, 304, 412 and 416 it is empty
	// and no entity bytes are ever read.
	Body io.ReadCloser
}

// Header is an ordered list of response header fields. Names are kept in
// canonical form and each name appears at most once.
type Header struct {
	fields []field
}

type field struct {
	name  string
	value string
}

// Set replaces the value of name, or appends it when not yet present.
func (h *Header) Set(name, value string) {
	name = textproto.CanonicalMIMEHeaderKey(name)
	for i := range h.fields {
		if h.fields[i].name == name {
			h.fields[i].value = value
			return
		}
	}
	h.fields = append(h.fields, field{name, value})
}

// Get returns the value of name, or "".
func (h Header) Get(name string) string {
	name = textproto.CanonicalMIMEHeaderKey(name)
	for _, f := range h.fields {
		if f.name == name {
			return f.value
		}
	}
	return ""
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	name = textproto.CanonicalMIMEHeaderKey(name)
	for _, f := range h.fields {
		if f.name == name {
			return true
		}
	}
	return false
}

// Names returns the field names in insertion order.
func (h Header) Names() []string {
	names := make([]string, len(h.fields))
	for i, f := range h.fields {
		names[i] = f.name
	}
	return names
}

// Len is the number of fields.
func (h Header) Len() int {
	return len(h.fields)
}

// CopyTo sets every field on dst, replacing existing values.
func (h Header) CopyTo(dst http.Header) {
	for _, f := range h.fields {
		dst.Set(f.name, f.value)
	}
}
