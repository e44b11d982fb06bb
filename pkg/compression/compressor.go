package compression

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compressor is one content-coding.
type Compressor interface {
	// ContentEncoding is the value for the Content-Encoding field.
	ContentEncoding() string
	// CompressStream returns a writer compressing into w. Closing it flushes
	// the coding's trailer but does not close w.
	CompressStream(w io.Writer) (io.WriteCloser, error)
	// DecompressStream returns a reader decoding r.
	DecompressStream(r io.Reader) (io.ReadCloser, error)
}

// Gzip is the "gzip" coding. Level 0 means the default level.
type Gzip struct {
	Level int
}

func (Gzip) ContentEncoding() string { return "gzip" }

func (g Gzip) CompressStream(w io.Writer) (io.WriteCloser, error) {
	if g.Level == 0 {
		return gzip.NewWriter(w), nil
	}
	return gzip.NewWriterLevel(w, g.Level)
}

func (Gzip) DecompressStream(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// Deflate is the "deflate" coding, which is the zlib format.
type Deflate struct {
	Level int
}

func (Deflate) ContentEncoding() string { return "deflate" }

func (d Deflate) CompressStream(w io.Writer) (io.WriteCloser, error) {
	if d.Level == 0 {
		return zlib.NewWriter(w), nil
	}
	return zlib.NewWriterLevel(w, d.Level)
}

func (Deflate) DecompressStream(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}

// Zstd is the "zstd" coding.
type Zstd struct {
	Level zstd.EncoderLevel
}

func (Zstd) ContentEncoding() string { return "zstd" }

func (z Zstd) CompressStream(w io.Writer) (io.WriteCloser, error) {
	var opts []zstd.EOption
	if z.Level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(z.Level))
	}
	return zstd.NewWriter(w, opts...)
}

func (Zstd) DecompressStream(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// Default lists the codings offered when none are configured, in order of
// server preference.
func Default() []Compressor {
	return []Compressor{Zstd{}, Gzip{}, Deflate{}}
}

// ByName returns the compressor for a content-coding name, or nil.
func ByName(name string) Compressor {
	switch name {
	case "gzip", "x-gzip":
		return Gzip{}
	case "deflate":
		return Deflate{}
	case "zstd":
		return Zstd{}
	}
	return nil
}
