// Package pgstore keeps entities in a PostgreSQL bytea column. The schema is
// applied with embedded golang-migrate migrations on Open.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrChanged is returned from a read when the row was replaced after the
// entity was fetched.
var ErrChanged = errors.New("entity changed while reading")

// Store is an entity.Store on one table. Range reads use substring() so only
// the requested bytes leave the database.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	chunk  int64
	now    func() time.Time
}

func qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Open migrates the database at dsn and connects a pool to it. A nil logger
// discards migration progress.
func Open(ctx context.Context, dsn string, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("store", "postgres").Logger()
	if err := runMigrations(dsn, l); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return &Store{pool: pool, logger: l, chunk: entity.DefaultChunkSize, now: time.Now}, nil
}

func runMigrations(dsn string, logger zerolog.Logger) error {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open pgx: %w", err)
	}
	defer sqldb.Close()

	driver, err := postgres.WithInstance(sqldb, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug().Msg("No new migrations")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info().Msg("Migrations applied")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(ctx context.Context, key string) (entity.Entity, error) {
	sqlStr, args, err := qb().
		Select("content_type", "etag", "modified", "size").
		From("entities").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var (
		meta entity.Meta
		etag string
	)
	err = s.pool.QueryRow(ctx, sqlStr, args...).Scan(&meta.Type, &etag, &meta.Modified, &meta.Size)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	meta.Tag = rfc9110.EntityTag(etag)
	meta.Modified = meta.Modified.UTC()
	return &row{Meta: meta, key: key, s: s}, nil
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
	sqlStr, args, err := qb().
		Insert("entities").
		Columns("key", "content_type", "etag", "modified", "size", "body").
		Values(key, meta.Type, string(meta.Tag), meta.Modified, meta.Size, data).
		Suffix(`ON CONFLICT (key) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			etag = EXCLUDED.etag,
			modified = EXCLUDED.modified,
			size = EXCLUDED.size,
			body = EXCLUDED.body`).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Trace().Str("key", key).Int64("size", meta.Size).Msg("Stored entity")
	return &row{Meta: meta, key: key, s: s}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	sqlStr, args, err := qb().Delete("entities").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

type row struct {
	entity.Meta
	key string
	s   *Store
}

func (r *row) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := entity.CheckRange(r, offset, length); err != nil {
		return nil, err
	}
	return &rowReader{ctx: ctx, r: r, offset: offset, remain: length}, nil
}

// rowReader fetches one chunk per query.
type rowReader struct {
	ctx    context.Context
	r      *row
	offset int64
	remain int64
	buf    []byte
}

func (rr *rowReader) Read(p []byte) (int, error) {
	if len(rr.buf) == 0 {
		if rr.remain == 0 {
			return 0, io.EOF
		}
		n := min(rr.remain, rr.r.s.chunk)
		// substring() is 1-indexed
		sqlStr, args, err := qb().
			Select().
			Column(sq.Expr("substring(body FROM ? FOR ?)", rr.offset+1, n)).
			From("entities").
			Where(sq.Eq{"key": rr.r.key, "etag": string(rr.r.Tag)}).
			ToSql()
		if err != nil {
			return 0, err
		}
		var chunk []byte
		err = rr.r.s.pool.QueryRow(rr.ctx, sqlStr, args...).Scan(&chunk)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrChanged
		}
		if err != nil {
			return 0, err
		}
		if int64(len(chunk)) != n {
			return 0, io.ErrUnexpectedEOF
		}
		rr.buf = chunk
		rr.offset += n
		rr.remain -= n
	}
	n := copy(p, rr.buf)
	rr.buf = rr.buf[n:]
	return n, nil
}

func (rr *rowReader) Close() error {
	rr.buf = nil
	return nil
}
