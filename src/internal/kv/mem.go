package kv

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/jamestiotio/sapling/src/internal/stream"
)

var _ Store = &MemStore{}

// MemStore is an in-memory Store, for tests and single-process use.
// The zero value is ready to use.
type MemStore struct {
	objects sync.Map
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Get(ctx context.Context, key, buf []byte) (int, error) {
	v, exists := s.objects.Load(string(key))
	if !exists {
		return 0, NewNotExist(key)
	}
	value := v.([]byte)
	if len(buf) < len(value) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, value), nil
}

func (s *MemStore) Put(ctx context.Context, key, value []byte) error {
	s.objects.Store(string(key), append([]byte{}, value...))
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key []byte) error {
	s.objects.Delete(string(key))
	return nil
}

func (s *MemStore) Exists(ctx context.Context, key []byte) (bool, error) {
	_, exists := s.objects.Load(string(key))
	return exists, nil
}

func (s *MemStore) NewKeyIterator(span Span) stream.Iterator[[]byte] {
	// Snapshot the keys in span; iteration must not observe concurrent
	// writes partway through.
	var keys [][]byte
	s.objects.Range(func(k, _ interface{}) bool {
		key := []byte(k.(string))
		if span.Contains(key) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return stream.NewSlice(keys)
}
