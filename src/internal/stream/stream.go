// Package stream provides a generic iterator abstraction.
package stream

import (
	"context"

	"github.com/jamestiotio/sapling/src/internal/errors"
)

// Iterator is a stream of elements of type T.
type Iterator[T any] interface {
	// Next advances the iterator to the next element, writing it into dst.
	// It returns an error wrapping EOS when the stream has ended.
	Next(ctx context.Context, dst *T) error
}

type eosError struct{}

func (eosError) Error() string { return "end of stream" }

// EOS returns an end-of-stream error.  Detect it with IsEOS, not errors.Is.
func EOS() error {
	return errors.EnsureStack(eosError{})
}

// IsEOS returns true if err is an end-of-stream error.
func IsEOS(err error) bool {
	return errors.As(err, &eosError{})
}

// ForEach calls fn for each element of it.
func ForEach[T any](ctx context.Context, it Iterator[T], fn func(t T) error) error {
	var x T
	for {
		if err := it.Next(ctx, &x); err != nil {
			if IsEOS(err) {
				return nil
			}
			return err
		}
		if err := fn(x); err != nil {
			return err
		}
	}
}

// Collect reads at most max elements from it into a slice.
func Collect[T any](ctx context.Context, it Iterator[T], max int) (ret []T, _ error) {
	err := ForEach(ctx, it, func(x T) error {
		if len(ret) >= max {
			return errors.Errorf("stream has more than %d elements", max)
		}
		ret = append(ret, x)
		return nil
	})
	return ret, err
}

// NewSlice returns an iterator over a fixed slice.
func NewSlice[T any](xs []T) Iterator[T] {
	return &sliceIterator[T]{xs: xs}
}

type sliceIterator[T any] struct {
	xs  []T
	pos int
}

func (it *sliceIterator[T]) Next(ctx context.Context, dst *T) error {
	if err := ctx.Err(); err != nil {
		return errors.EnsureStack(err)
	}
	if it.pos >= len(it.xs) {
		return EOS()
	}
	*dst = it.xs[it.pos]
	it.pos++
	return nil
}
