// Package redisstore keeps entities as Redis strings, with their metadata in
// a hash next to them.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

type Config struct {
	Addr     string
	DB       int
	Password string
	// Prefix is prepended to every key.
	Prefix string
}

// Store is an entity.Store on Redis. Content lives at <prefix><key>, metadata
// at <prefix><key>:meta. Range reads use GETRANGE one chunk at a time.
type Store struct {
	rdb    *redis.Client
	prefix string
	chunk  int64
	now    func() time.Time
}

func New(cfg Config) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &Store{rdb: rdb, prefix: cfg.Prefix, chunk: entity.DefaultChunkSize, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) dataKey(key string) string { return s.prefix + key }
func (s *Store) metaKey(key string) string { return s.prefix + key + ":meta" }

func (s *Store) Get(ctx context.Context, key string) (entity.Entity, error) {
	fields, err := s.rdb.HGetAll(ctx, s.metaKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: HGETALL %q: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, entity.ErrNotFound
	}
	size, err := strconv.ParseInt(fields["size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisstore: bad size for %q: %w", key, err)
	}
	modified, _ := strconv.ParseInt(fields["modified"], 10, 64)
	return &value{
		Meta: entity.Meta{
			Size:     size,
			Type:     fields["type"],
			Tag:      rfc9110.EntityTag(fields["etag"]),
			Modified: time.Unix(modified, 0).UTC(),
		},
		key: s.dataKey(key),
		s:   s,
	}, nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (entity.Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	meta := entity.Meta{
		Size:     int64(len(data)),
		Type:     contentType,
		Tag:      entity.ContentETag(data),
		Modified: s.now().UTC().Truncate(time.Second),
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.dataKey(key), data, 0)
		pipe.HSet(ctx, s.metaKey(key),
			"type", meta.Type,
			"etag", string(meta.Tag),
			"modified", meta.Modified.Unix(),
			"size", meta.Size,
		)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redisstore: put %q: %w", key, err)
	}
	return &value{Meta: meta, key: s.dataKey(key), s: s}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, s.dataKey(key), s.metaKey(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

type value struct {
	entity.Meta
	key string
	s   *Store
}

func (v *value) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := entity.CheckRange(v, offset, length); err != nil {
		return nil, err
	}
	return &rangeReader{ctx: ctx, v: v, offset: offset, remain: length}, nil
}

type rangeReader struct {
	ctx    context.Context
	v      *value
	offset int64
	remain int64
	buf    []byte
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if r.remain == 0 {
			return 0, io.EOF
		}
		n := min(r.remain, r.v.s.chunk)
		chunk, err := r.v.s.rdb.GetRange(r.ctx, r.v.key, r.offset, r.offset+n-1).Bytes()
		if errors.Is(err, redis.Nil) || err == nil && len(chunk) == 0 {
			return 0, entity.ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		if int64(len(chunk)) != n {
			return 0, io.ErrUnexpectedEOF
		}
		r.buf = chunk
		r.offset += n
		r.remain -= n
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *rangeReader) Close() error {
	r.buf = nil
	return nil
}
