package stream

import (
	"testing"

	"github.com/jamestiotio/sapling/src/internal/pctx"
	"github.com/jamestiotio/sapling/src/internal/require"
)

func TestIsEOS(t *testing.T) {
	require.True(t, IsEOS(EOS()))
}

func TestForEach(t *testing.T) {
	ctx := pctx.TestContext(t)
	it := NewSlice([]int{1, 2, 3})
	var got []int
	require.NoError(t, ForEach[int](ctx, it, func(x int) error {
		got = append(got, x)
		return nil
	}))
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestCollect(t *testing.T) {
	ctx := pctx.TestContext(t)
	xs, err := Collect[int](ctx, NewSlice([]int{1, 2, 3}), 10)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, xs)

	_, err = Collect[int](ctx, NewSlice([]int{1, 2, 3}), 2)
	require.YesError(t, err)
}

func TestSliceExhausted(t *testing.T) {
	ctx := pctx.TestContext(t)
	it := NewSlice([]int{1})
	var x int
	require.NoError(t, it.Next(ctx, &x))
	require.Equal(t, 1, x)
	require.True(t, IsEOS(it.Next(ctx, &x)))
}
