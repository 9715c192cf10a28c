package kv

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/log"
	"github.com/jamestiotio/sapling/src/internal/stream"
	"go.uber.org/zap"
)

var _ Store = &FSStore{}

// FSStore stores each entry as a file whose name is the hex-encoded key.
// Writes go through a staging file and a rename, so a Get never observes a
// partial Put.
type FSStore struct {
	dir      string
	initOnce sync.Once
	initErr  error
}

func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

func (s *FSStore) Put(ctx context.Context, key, value []byte) (retErr error) {
	log.Debug(ctx, "put", zap.ByteString("key", key), zap.Int("value_len", len(value)))
	if err := s.ensureInit(); err != nil {
		return err
	}
	staging := s.stagingPathFor(key)
	final := s.finalPathFor(key)
	defer s.cleanupFile(ctx, &retErr, staging)
	if err := os.WriteFile(staging, value, 0o644); err != nil {
		return s.transformError(err, key)
	}
	return s.transformError(os.Rename(staging, final), key)
}

func (s *FSStore) Get(ctx context.Context, key, buf []byte) (_ int, retErr error) {
	f, err := os.Open(s.finalPathFor(key))
	if err != nil {
		return 0, s.transformError(err, key)
	}
	defer s.closeFile(ctx, &retErr, f)
	var n int
	for {
		n2, err := f.Read(buf[n:])
		n += n2
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, s.transformError(err, key)
		}
		if n == len(buf) {
			// Full buffer; only OK if the file ends here too.
			if _, err := f.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
				return 0, io.ErrShortBuffer
			}
			break
		}
	}
	return n, nil
}

func (s *FSStore) Exists(ctx context.Context, key []byte) (bool, error) {
	_, err := os.Stat(s.finalPathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, s.transformError(err, key)
	}
	return true, nil
}

func (s *FSStore) Delete(ctx context.Context, key []byte) error {
	err := os.Remove(s.finalPathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return s.transformError(err, key)
	}
	return nil
}

func (s *FSStore) NewKeyIterator(span Span) stream.Iterator[[]byte] {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stream.NewSlice[[]byte](nil)
		}
		return errIterator{err: errors.EnsureStack(err)}
	}
	var keys [][]byte
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, err := hex.DecodeString(e.Name())
		if err != nil {
			continue // not one of ours
		}
		if span.Contains(key) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return stream.NewSlice(keys)
}

func (s *FSStore) ensureInit() error {
	s.initOnce.Do(func() {
		for _, dir := range []string{s.dir, filepath.Join(s.dir, "staging")} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				s.initErr = errors.EnsureStack(err)
				return
			}
		}
	})
	return s.initErr
}

func (s *FSStore) finalPathFor(key []byte) string {
	return filepath.Join(s.dir, hex.EncodeToString(key))
}

func (s *FSStore) stagingPathFor(key []byte) string {
	return filepath.Join(s.dir, "staging", hex.EncodeToString(key)+"."+uuid.NewString())
}

func (s *FSStore) transformError(err error, key []byte) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return NewNotExist(key)
	}
	return errors.EnsureStack(err)
}

func (s *FSStore) cleanupFile(ctx context.Context, retErr *error, p string) {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		if *retErr == nil {
			*retErr = errors.EnsureStack(err)
			return
		}
		log.Error(ctx, "cleaning up staging file", zap.String("path", p), zap.Error(err))
	}
}

func (s *FSStore) closeFile(ctx context.Context, retErr *error, f *os.File) {
	if err := f.Close(); err != nil {
		if *retErr == nil {
			*retErr = errors.EnsureStack(err)
			return
		}
		log.Error(ctx, "closing file", zap.String("path", f.Name()), zap.Error(err))
	}
}

type errIterator struct{ err error }

func (it errIterator) Next(ctx context.Context, dst *[]byte) error { return it.err }
