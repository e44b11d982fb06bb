package entity

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func readRange(t *testing.T, e Entity, offset, length int64) string {
	t.Helper()
	rc, err := e.OpenRange(context.Background(), offset, length)
	if err != nil {
		t.Fatalf("Error opening range %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Error reading range %v", err)
	}
	return string(body)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing returned %v", err)
	}
	e, err := s.Put(ctx, "a/b.txt", "text/plain", strings.NewReader("Hello, world"))
	if err != nil {
		t.Fatalf("Error putting %v", err)
	}
	if e.Len() != 12 || e.ETag().IsZero() || e.ETag().IsWeak() || e.LastModified().IsZero() {
		t.Fatalf("Entity is %d %s %v", e.Len(), e.ETag(), e.LastModified())
	}
	got, err := s.Get(ctx, "a/b.txt")
	if err != nil {
		t.Fatalf("Error getting %v", err)
	}
	if got.ETag() != e.ETag() || !strings.HasPrefix(got.ContentType(), "text/plain") {
		t.Fatalf("Entity is %s %s", got.ETag(), got.ContentType())
	}
	if body := readRange(t, got, 7, 5); body != "world" {
		t.Fatalf("Body is %s", body)
	}
	if err := s.Delete(ctx, "a/b.txt"); err != nil {
		t.Fatalf("Error deleting %v", err)
	}
	if _, err := s.Get(ctx, "a/b.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get deleted returned %v", err)
	}
}

func TestMemStore(t *testing.T) {
	testStore(t, NewMemStore())
}

func TestDir(t *testing.T) {
	testStore(t, NewDir(t.TempDir(), NewPool(2)))
}

func TestDirInvalidKey(t *testing.T) {
	d := NewDir(t.TempDir(), nil)
	if _, err := d.Get(context.Background(), "/"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Error is %v", err)
	}
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "secret"), []byte("x"), 0o644)
	d = NewDir(filepath.Join(root, "pub"), nil)
	if _, err := d.Get(context.Background(), "../secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Escaped the root: %v", err)
	}
}

func TestFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "index.html")
	os.WriteFile(p, []byte("<p>hi</p>"), 0o644)
	f, err := OpenFile(p, NewPool(1))
	if err != nil {
		t.Fatalf("Error opening file %v", err)
	}
	if !strings.HasPrefix(f.ContentType(), "text/html") {
		t.Fatalf("Content type is %s", f.ContentType())
	}
	f.chunk = 2
	if body := readRange(t, f, 1, 7); body != "p>hi</p" {
		t.Fatalf("Body is %s", body)
	}
	if _, err := f.OpenRange(context.Background(), 5, 10); !errors.Is(err, ErrRangeNotSupported) {
		t.Fatalf("Error is %v", err)
	}
	if _, err := OpenFile(filepath.Dir(p), nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Directory opened: %v", err)
	}
}

func TestPoolCancelled(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go pool.Do(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func() error { return nil })
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Error is %v", err)
	}
}

func TestThrottle(t *testing.T) {
	b := NewBytes([]byte("Hello, world"), "text/plain", "", time.Time{})
	e := Throttle(b, rate.NewLimiter(rate.Inf, 4))
	if e.Len() != 12 {
		t.Fatalf("Length is %d", e.Len())
	}
	if body := readRange(t, e, 0, 12); body != "Hello, world" {
		t.Fatalf("Body is %s", body)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := Throttle(b, rate.NewLimiter(1, 4))
	rc, _ := slow.OpenRange(ctx, 0, 12)
	buf := make([]byte, 12)
	rc.Read(buf)
	if _, err := rc.Read(buf); err == nil {
		t.Fatal("Throttled read ignored cancellation")
	}
}
