package entity

import (
	"context"
	"io"
	"sync"
	"time"
)

// Store is a keyed collection of entities.
//
// Implementations must be safe for concurrent use. Get returns ErrNotFound
// for a missing key. Put gives the new entity a strong entity-tag that
// changes with its content, and a last-modified time of the write.
type Store interface {
	Get(ctx context.Context, key string) (Entity, error)
	Put(ctx context.Context, key, contentType string, r io.Reader) (Entity, error)
	Delete(ctx context.Context, key string) error
}

// MemStore keeps entities in memory.
type MemStore struct {
	mutex *sync.RWMutex
	db    map[string]*Bytes
	now   func() time.Time
}

func NewMemStore() MemStore {
	return MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]*Bytes),
		now:   time.Now,
	}
}

func (m MemStore) Get(ctx context.Context, key string) (Entity, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	b, ok := m.db[key]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m MemStore) Put(ctx context.Context, key, contentType string, r io.Reader) (Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b := NewBytes(data, contentType, ContentETag(data), m.now().UTC().Truncate(time.Second))
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = b
	return b, nil
}

func (m MemStore) Delete(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.db[key]; !ok {
		return ErrNotFound
	}
	delete(m.db, key)
	return nil
}
