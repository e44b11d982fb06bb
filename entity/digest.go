package entity

import (
	"crypto/sha256"
	"encoding/base64"
	"hash"

	"github.com/always-cache/entityserve/rfc9110"
)

// Digest computes a strong entity-tag from content written to it. Stores use
// it on Put so the tag changes whenever the bytes do.
type Digest struct {
	h hash.Hash
	n int64
}

func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	d.n += int64(len(p))
	return d.h.Write(p)
}

// Size is the number of bytes written so far.
func (d *Digest) Size() int64 {
	return d.n
}

// ETag returns the strong entity-tag for the bytes written so far.
func (d *Digest) ETag() rfc9110.EntityTag {
	return rfc9110.StrongETag(base64.RawURLEncoding.EncodeToString(d.h.Sum(nil)))
}

// ContentETag returns the entity-tag Digest would produce for data.
func ContentETag(data []byte) rfc9110.EntityTag {
	d := NewDigest()
	d.Write(data)
	return d.ETag()
}

// StoredETag turns an entity-tag kept by an external store into wire form.
// Stores differ in whether they keep the quotes, so a bare value is taken as
// the opaque part of a strong tag.
func StoredETag(s string) rfc9110.EntityTag {
	if s == "" {
		return ""
	}
	if etag, err := rfc9110.ParseEntityTag(s); err == nil {
		return etag
	}
	return rfc9110.StrongETag(s)
}
