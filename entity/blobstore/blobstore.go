// Package blobstore serves entities from a gocloud.dev bucket. Any driver
// registered with gocloud.dev/blob works: mem://, file://, s3://, gs://.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/always-cache/entityserve/entity"
)

// metaETag is the metadata key holding the content entity-tag written by Put.
const metaETag = "entity-etag"

// Store adapts a *blob.Bucket to entity.Store.
type Store struct {
	bucket *blob.Bucket
	now    func() time.Time
}

// New wraps an open bucket. The caller keeps ownership of it.
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket, now: time.Now}
}

// Open opens the bucket at url.
func Open(ctx context.Context, url string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open bucket: %w", err)
	}
	return New(bucket), nil
}

func (s *Store) Close() error {
	return s.bucket.Close()
}

func isNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

func (s *Store) Get(ctx context.Context, key string) (entity.Entity, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if isNotFound(err) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: attributes %s: %w", key, err)
	}
	etag := entity.StoredETag(attrs.Metadata[metaETag])
	if etag.IsZero() {
		etag = entity.StoredETag(attrs.ETag)
	}
	return &object{
		Meta: entity.Meta{
			Size:     attrs.Size,
			Type:     attrs.ContentType,
			Tag:      etag,
			Modified: attrs.ModTime,
		},
		key:    key,
		bucket: s.bucket,
	}, nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (entity.Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	etag := entity.ContentETag(data)
	err = s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: contentType,
		Metadata:    map[string]string{metaETag: string(etag)},
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: write %s: %w", key, err)
	}
	return s.Get(ctx, key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if isNotFound(err) {
		return entity.ErrNotFound
	}
	return err
}

type object struct {
	entity.Meta
	key    string
	bucket *blob.Bucket
}

func (o *object) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := entity.CheckRange(o, offset, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return entity.Empty(), nil
	}
	r, err := o.bucket.NewRangeReader(ctx, o.key, offset, length, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", o.key, err)
	}
	return r, nil
}
