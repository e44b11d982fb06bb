package compression

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/always-cache/entityserve/entity"
)

var text = strings.Repeat("Hello, compressible world. ", 200)

func TestWrapRoundTrip(t *testing.T) {
	src := entity.NewBytes([]byte(text), "text/plain", `"abc"`, time.Unix(1700000000, 0))
	for _, c := range Default() {
		w := Wrap(src, c)
		if w.Len() != -1 {
			t.Fatalf("%s: length is %d", c.ContentEncoding(), w.Len())
		}
		if w.ETag() != `W/"abc"` {
			t.Fatalf("%s: etag is %s", c.ContentEncoding(), w.ETag())
		}
		rc, err := w.OpenRange(context.Background(), 0, src.Len())
		if err != nil {
			t.Fatalf("%s: error opening %v", c.ContentEncoding(), err)
		}
		coded, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("%s: error reading %v", c.ContentEncoding(), err)
		}
		if len(coded) >= len(text) {
			t.Fatalf("%s: coded %d bytes from %d", c.ContentEncoding(), len(coded), len(text))
		}
		dr, err := c.DecompressStream(bytes.NewReader(coded))
		if err != nil {
			t.Fatalf("%s: error decoding %v", c.ContentEncoding(), err)
		}
		plain, err := io.ReadAll(dr)
		dr.Close()
		if err != nil || string(plain) != text {
			t.Fatalf("%s: round trip failed (%v)", c.ContentEncoding(), err)
		}
	}
}

func TestWrapRejectsSubRanges(t *testing.T) {
	w := Wrap(entity.NewBytes([]byte(text), "text/plain", "", time.Time{}), Gzip{})
	for _, r := range [][2]int64{{1, 10}, {0, 10}} {
		if _, err := w.OpenRange(context.Background(), r[0], r[1]); !errors.Is(err, entity.ErrRangeNotSupported) {
			t.Fatalf("OpenRange(%v) error %v", r, err)
		}
	}
	rc, err := w.OpenRange(context.Background(), 0, -1)
	if err != nil {
		t.Fatalf("Error opening whole stream %v", err)
	}
	rc.Close()
}

// slow blocks reads until its context ends.
type slow struct {
	*entity.Bytes
	closed atomic.Bool
}

func (s *slow) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return &slowReader{ctx: ctx, s: s}, nil
}

type slowReader struct {
	ctx context.Context
	s   *slow
}

func (r *slowReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func (r *slowReader) Close() error {
	r.s.closed.Store(true)
	return nil
}

func TestWrapCloseReleasesSource(t *testing.T) {
	src := &slow{Bytes: entity.NewBytes([]byte(text), "text/plain", "", time.Time{})}
	rc, err := Wrap(src, Gzip{}).OpenRange(context.Background(), 0, -1)
	if err != nil {
		t.Fatalf("Error opening %v", err)
	}
	done := make(chan struct{})
	go func() {
		rc.Read(make([]byte, 10))
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	rc.Close()
	<-done
	if !src.closed.Load() {
		t.Fatal("Source stream not closed")
	}
}

func TestNegotiate(t *testing.T) {
	offered := Default()
	tests := []struct {
		accept string
		want   string
	}{
		{"", ""},
		{"gzip", "gzip"},
		{"gzip, zstd", "zstd"},
		{"zstd;q=0, gzip;q=0.5", "gzip"},
		{"*", "zstd"},
		{"*;q=0, deflate", "deflate"},
		{"identity", ""},
		{"br", ""},
		{"GZIP;Q=1", "gzip"},
		{"x-gzip", "gzip"},
		{"gzip;q=2", ""},
	}
	for _, tt := range tests {
		c := Negotiate(tt.accept, offered)
		got := ""
		if c != nil {
			got = c.ContentEncoding()
		}
		if got != tt.want {
			t.Fatalf("Negotiate(%q) = %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func TestCompressible(t *testing.T) {
	for ct, want := range map[string]bool{
		"text/html; charset=utf-8": true,
		"application/json":         true,
		"application/ld+json":      true,
		"image/svg+xml":            true,
		"image/png":                false,
		"application/gzip":         false,
		"":                         false,
	} {
		if got := Compressible(ct); got != want {
			t.Fatalf("Compressible(%q) = %v", ct, got)
		}
	}
}

func TestByName(t *testing.T) {
	if ByName("gzip").ContentEncoding() != "gzip" || ByName("br") != nil {
		t.Fatal("Unexpected compressor lookup")
	}
}
