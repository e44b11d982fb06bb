package byteranges

import (
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BoundaryFunc returns a fresh multipart boundary token.
type BoundaryFunc func() (string, error)

// RandomBoundary draws boundaries from r, or from crypto/rand when r is nil.
// r is only read from one goroutine at a time.
func RandomBoundary(r io.Reader) BoundaryFunc {
	if r == nil {
		return func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return token(id), nil
		}
	}
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id, err := uuid.NewRandomFromReader(r)
		if err != nil {
			return "", err
		}
		return token(id), nil
	}
}

// SeededBoundary returns a deterministic sequence of boundaries. Two funcs
// with the same seed produce the same sequence.
func SeededBoundary(seed int64) BoundaryFunc {
	return RandomBoundary(rand.New(rand.NewSource(seed)))
}

func token(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
