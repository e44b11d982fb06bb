package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	_ "gocloud.dev/blob/memblob"

	"github.com/always-cache/entityserve/entity"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("Get missing returned %v", err)
	}
	put, err := s.Put(ctx, "dir/greeting.txt", "text/plain", strings.NewReader("Hello, world"))
	if err != nil {
		t.Fatalf("Error putting %v", err)
	}
	if put.ETag() != entity.ContentETag([]byte("Hello, world")) {
		t.Fatalf("ETag is %s", put.ETag())
	}
	e, err := s.Get(ctx, "dir/greeting.txt")
	if err != nil {
		t.Fatalf("Error getting %v", err)
	}
	if e.Len() != 12 || e.ETag() != put.ETag() || e.ContentType() != "text/plain" {
		t.Fatalf("Entity is %d %s %s", e.Len(), e.ETag(), e.ContentType())
	}
	if e.LastModified().IsZero() {
		t.Fatal("Last modified is zero")
	}
	rc, err := e.OpenRange(ctx, 7, 5)
	if err != nil {
		t.Fatalf("Error opening range %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "world" {
		t.Fatalf("Body is %s", body)
	}
	if err := s.Delete(ctx, "dir/greeting.txt"); err != nil {
		t.Fatalf("Error deleting %v", err)
	}
	if err := s.Delete(ctx, "dir/greeting.txt"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("Second delete returned %v", err)
	}
}
