package entity

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/always-cache/entityserve/rfc9110"
)

// Bytes is an entity held entirely in memory.
type Bytes struct {
	Meta
	data []byte
}

// NewBytes returns an entity for data. The slice must not be modified
// afterwards.
func NewBytes(data []byte, contentType string, etag rfc9110.EntityTag, lastModified time.Time) *Bytes {
	return &Bytes{
		Meta: Meta{
			Size:     int64(len(data)),
			Type:     contentType,
			Tag:      etag,
			Modified: lastModified,
		},
		data: data,
	}
}

func (b *Bytes) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if err := CheckRange(b, offset, length); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b.data[offset : offset+length])), nil
}

// Empty returns a stream with no bytes, for zero-length spans.
func Empty() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(nil))
}
