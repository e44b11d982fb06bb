// Package s3store serves entities from an S3-compatible object store through
// the MinIO client.
package s3store

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/always-cache/entityserve/entity"
)

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// Store is an entity.Store over one bucket. Entity-tags are the ones S3
// assigns on upload, which change with every write.
type Store struct {
	cl     *minio.Client
	bucket string
}

func New(cfg Config) (*Store, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &Store{cl: cl, bucket: cfg.Bucket}, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *Store) Get(ctx context.Context, key string) (entity.Entity, error) {
	info, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if isNotFound(err) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3store: stat %s: %w", key, err)
	}
	return s.object(key, info), nil
}

func (s *Store) object(key string, info minio.ObjectInfo) *object {
	return &object{
		Meta: entity.Meta{
			Size:     info.Size,
			Type:     info.ContentType,
			Tag:      entity.StoredETag(info.ETag),
			Modified: info.LastModified,
		},
		key: key,
		s:   s,
	}
}

// Put streams r to the bucket without buffering it.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (entity.Entity, error) {
	_, err := s.cl.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: put %s: %w", key, err)
	}
	return s.Get(ctx, key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	return s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

type object struct {
	entity.Meta
	key string
	s   *Store
}

// OpenRange asks for the inclusive span [offset, offset+length-1], pinned to
// the entity-tag the entity was fetched with. The request is only sent on
// the first Read.
func (o *object) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := entity.CheckRange(o, offset, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return entity.Empty(), nil
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, err
	}
	if !o.Tag.IsZero() {
		if err := opts.SetMatchETag(o.Tag.Opaque()); err != nil {
			return nil, err
		}
	}
	obj, err := o.s.cl.GetObject(ctx, o.s.bucket, o.key, opts)
	if err != nil {
		return nil, fmt.Errorf("s3store: get %s: %w", o.key, err)
	}
	return obj, nil
}
