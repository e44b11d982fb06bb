// Package sqlitestore keeps entities as blobs in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

// ErrChanged is returned from a read when the row was replaced after the
// entity was fetched.
var ErrChanged = errors.New("entity changed while reading")

// Store is an entity.Store on top of a single SQLite table. Range reads use
// substr() so only the requested bytes leave the database.
type Store struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	chunk      int64
	now        func() time.Time
}

// Open opens the database at filename, creating the table if needed.
// If filename is empty, a shared in-memory db is opened.
func Open(filename string) (*Store, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entities (
		key TEXT PRIMARY KEY,
		content_type TEXT,
		etag TEXT,
		modified INTEGER,
		size INTEGER,
		bytes BLOB
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:         db,
		writeMutex: &sync.Mutex{},
		chunk:      entity.DefaultChunkSize,
		now:        time.Now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (entity.Entity, error) {
	var (
		meta     entity.Meta
		etag     string
		modified int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT content_type, etag, modified, size FROM entities WHERE key = ?", key).
		Scan(&meta.Type, &etag, &modified, &meta.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	meta.Tag = rfc9110.EntityTag(etag)
	meta.Modified = time.Unix(modified, 0).UTC()
	return &blob{Meta: meta, key: key, s: s}, nil
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
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO entities (key, content_type, etag, modified, size, bytes) VALUES (?, ?, ?, ?, ?, ?)",
		key, meta.Type, string(meta.Tag), meta.Modified.Unix(), meta.Size, data)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	return &blob{Meta: meta, key: key, s: s}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE key = ?", key)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

type blob struct {
	entity.Meta
	key string
	s   *Store
}

func (b *blob) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := entity.CheckRange(b, offset, length); err != nil {
		return nil, err
	}
	return &blobReader{ctx: ctx, b: b, offset: offset, remain: length}, nil
}

// blobReader fetches one chunk per query.
type blobReader struct {
	ctx    context.Context
	b      *blob
	offset int64
	remain int64
	buf    []byte
}

func (r *blobReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if r.remain == 0 {
			return 0, io.EOF
		}
		n := min(r.remain, r.b.s.chunk)
		var chunk []byte
		// substr() is 1-indexed
		err := r.b.s.db.QueryRowContext(r.ctx,
			"SELECT substr(bytes, ?, ?) FROM entities WHERE key = ? AND etag = ?",
			r.offset+1, n, r.b.key, string(r.b.Tag)).Scan(&chunk)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrChanged
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

func (r *blobReader) Close() error {
	r.buf = nil
	return nil
}
