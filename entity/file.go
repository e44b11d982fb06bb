package entity

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/always-cache/entityserve/rfc9110"
)

// DefaultChunkSize is the largest single read issued against a file.
const DefaultChunkSize = 64 * 1024

// File is an entity backed by a file on disk. Reads go through a Pool.
type File struct {
	Meta
	path  string
	pool  *Pool
	chunk int
}

// OpenFile stats the file at path and returns an entity for it. The content
// type is derived from the file extension. The entity-tag is strong and
// built from modification time and size.
func OpenFile(path string, pool *Pool) (*File, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, ErrNotFound
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &File{
		Meta: Meta{
			Size:     fi.Size(),
			Type:     contentType,
			Tag:      fileETag(fi),
			Modified: fi.ModTime(),
		},
		path:  path,
		pool:  pool,
		chunk: DefaultChunkSize,
	}, nil
}

func fileETag(fi os.FileInfo) rfc9110.EntityTag {
	return rfc9110.StrongETag(strconv.FormatInt(fi.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(fi.Size(), 36))
}

func (f *File) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := CheckRange(f, offset, length); err != nil {
		return nil, err
	}
	var file *os.File
	err := f.pool.Do(ctx, func() (err error) {
		file, err = os.Open(f.path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	return &fileReader{ctx: ctx, f: f, file: file, offset: offset, remain: length}, nil
}

type fileReader struct {
	ctx    context.Context
	f      *File
	file   *os.File
	offset int64
	remain int64
}

func (r *fileReader) Read(p []byte) (int, error) {
	if r.remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	if len(p) > r.f.chunk {
		p = p[:r.f.chunk]
	}
	var n int
	err := r.f.pool.Do(r.ctx, func() (err error) {
		n, err = r.file.ReadAt(p, r.offset)
		return err
	})
	r.offset += int64(n)
	r.remain -= int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (r *fileReader) Close() error {
	return r.file.Close()
}
