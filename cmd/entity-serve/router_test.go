package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/entityserve"
	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

func newTestServer(t *testing.T) (*httptest.Server, entity.Store) {
	t.Helper()
	logger := zerolog.Nop()
	store, closeStore, err := openStore(context.Background(), Config{Provider: "memory"}, &logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(closeStore)
	srv := entityserve.New(entityserve.Config{Logger: &logger})
	ts := httptest.NewServer(newRouter(srv, store, logger))
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, method, url, body string, header ...string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Error doing request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(data)
}

func TestPutThenGet(t *testing.T) {
	ts, _ := newTestServer(t)
	url := ts.URL + "/docs/readme.txt"

	res, _ := do(t, http.MethodPut, url, "Hello, world", "Content-Type", "text/plain", "If-None-Match", "*")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", res.StatusCode)
	}
	etag := res.Header.Get("ETag")
	if etag == "" || res.Header.Get("Last-Modified") == "" {
		t.Fatalf("Expected validators, got %v", res.Header)
	}

	res, body := do(t, http.MethodGet, url, "", "Range", "bytes=-5")
	if res.StatusCode != http.StatusPartialContent || body != "world" {
		t.Fatalf("Got %d %q", res.StatusCode, body)
	}
	if res.Header.Get("ETag") != etag || res.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("Header is %v", res.Header)
	}

	// create-only must not overwrite
	res, _ = do(t, http.MethodPut, url, "other", "If-None-Match", "*")
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("Expected 412, got %d", res.StatusCode)
	}

	// lost update
	res, _ = do(t, http.MethodPut, url, "other", "If-Match", `"stale"`)
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("Expected 412, got %d", res.StatusCode)
	}

	res, _ = do(t, http.MethodPut, url, "Goodbye", "If-Match", etag)
	if res.StatusCode != http.StatusNoContent || res.Header.Get("ETag") == etag {
		t.Fatalf("Got %d with ETag %s", res.StatusCode, res.Header.Get("ETag"))
	}
	newTag := res.Header.Get("ETag")

	res, body = do(t, http.MethodGet, url, "", "If-Range", etag, "Range", "bytes=0-3")
	if res.StatusCode != http.StatusOK || body != "Goodbye" {
		t.Fatalf("Expected full body for stale If-Range, got %d %q", res.StatusCode, body)
	}

	res, _ = do(t, http.MethodDelete, url, "", "If-Match", etag)
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("Expected 412, got %d", res.StatusCode)
	}
	res, _ = do(t, http.MethodDelete, url, "", "If-Match", newTag)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", res.StatusCode)
	}
	res, _ = do(t, http.MethodGet, url, "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", res.StatusCode)
	}
}

func TestPutIfMatchMissing(t *testing.T) {
	ts, _ := newTestServer(t)
	res, _ := do(t, http.MethodPut, ts.URL+"/a", "x", "If-Match", "*")
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("Expected 412, got %d", res.StatusCode)
	}
	res, _ = do(t, http.MethodDelete, ts.URL+"/a", "")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", res.StatusCode)
	}
}

func TestEvaluateUnsafe(t *testing.T) {
	current := entity.NewBytes([]byte("x"), "", `"a"`, time.Time{})
	tests := []struct {
		name    string
		header  http.Header
		current entity.Entity
		outcome rfc9110.Outcome
	}{
		{"no conditions on missing", http.Header{}, nil, rfc9110.Proceed},
		{"if-match star on missing", http.Header{"If-Match": {"*"}}, nil, rfc9110.PreconditionFailed},
		{"if-none-match star on missing", http.Header{"If-None-Match": {"*"}}, nil, rfc9110.Proceed},
		{"if-none-match star on existing", http.Header{"If-None-Match": {"*"}}, current, rfc9110.PreconditionFailed},
		{"if-match hit", http.Header{"If-Match": {`"a"`}}, current, rfc9110.Proceed},
		{"if-match miss", http.Header{"If-Match": {`"b"`}}, current, rfc9110.PreconditionFailed},
	}
	for _, tt := range tests {
		c, _ := rfc9110.ParseConditions(tt.header)
		if got := evaluate(http.MethodPut, c, tt.current); got != tt.outcome {
			t.Fatalf("%s: got %s, expected %s", tt.name, got, tt.outcome)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)
	res, _ := do(t, http.MethodPost, ts.URL+"/a", "x")
	if res.StatusCode != http.StatusMethodNotAllowed || res.Header.Get("Allow") == "" {
		t.Fatalf("Got %d Allow %q", res.StatusCode, res.Header.Get("Allow"))
	}
}

func TestThrottledStore(t *testing.T) {
	store := entity.NewMemStore()
	if _, err := store.Put(context.Background(), "k", "", strings.NewReader("abc")); err != nil {
		t.Fatal(err)
	}
	if _, ok := throttle(store, 0).(*throttledStore); ok {
		t.Fatalf("Expected no wrapper without a limit")
	}
	e, err := throttle(store, 1024).Get(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(entity.NewRangeReader(context.Background(), e, 0, e.Len()))
	if err != nil || string(data) != "abc" {
		t.Fatalf("Read %q, %v", data, err)
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	logger := zerolog.Nop()
	if _, _, err := openStore(context.Background(), Config{Provider: "floppy"}, &logger); err == nil {
		t.Fatalf("Expected error for unknown provider")
	}
}
