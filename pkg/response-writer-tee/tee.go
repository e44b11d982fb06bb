package tee

import (
	"net/http"
	"time"
)

// ResponseRecorder is a wrapper around http.ResponseWriter that passes
// everything through and remembers the status code and body size.
type ResponseRecorder struct {
	rw           http.ResponseWriter
	status       int
	written      int64
	wroteHeaders bool
	CreatedAt    time.Time
}

// Implementation of http.ResponseWriter
func (t *ResponseRecorder) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *ResponseRecorder) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseRecorder) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	t.written += int64(n)
	return n, err
}

// Flush sends buffered data to the client if the underlying writer can.
func (t *ResponseRecorder) Flush() {
	if f, ok := t.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap gives http.ResponseController access to the underlying writer.
func (t *ResponseRecorder) Unwrap() http.ResponseWriter {
	return t.rw
}

// StatusCode returns the status code of the response, or 0 if nothing has
// been written yet.
func (t *ResponseRecorder) StatusCode() int {
	return t.status
}

// Written returns the number of body bytes written so far.
func (t *ResponseRecorder) Written() int64 {
	return t.written
}

// Elapsed is the time since the recorder was created.
func (t *ResponseRecorder) Elapsed() time.Duration {
	return time.Since(t.CreatedAt)
}

// NewResponseRecorder returns a new ResponseRecorder writing to w.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		CreatedAt: time.Now(),
		rw:        w,
	}
}
