package commitgraph

import (
	"testing"
	"time"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/kv"
	"github.com/jamestiotio/sapling/src/internal/pctx"
	"github.com/jamestiotio/sapling/src/internal/require"
)

func makeChangeset(t testing.TB, parents []ID, message string) *Changeset {
	t.Helper()
	cs, err := NewChangeset(parents, "author <a@example.com>", "committer <c@example.com>", message,
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		[]FileChange{{Path: "foo.txt", Op: OpAdd, ContentHash: "abc123"}})
	require.NoError(t, err)
	return cs
}

func TestContentAddressing(t *testing.T) {
	a := makeChangeset(t, nil, "same message")
	b := makeChangeset(t, nil, "same message")
	require.Equal(t, a.ID, b.ID, "identical content must produce identical ids")

	c := makeChangeset(t, nil, "different message")
	require.NotEqual(t, a.ID, c.ID)

	child := makeChangeset(t, []ID{a.ID}, "same message")
	require.NotEqual(t, a.ID, child.ID, "parents are part of the hashed content")
}

func TestParseRoundTrip(t *testing.T) {
	orig := makeChangeset(t, nil, "round trip")
	parsed, err := ParseChangeset(orig.Content())
	require.NoError(t, err)
	require.Equal(t, orig.ID, parsed.ID)
	require.Equal(t, orig.Author, parsed.Author)
	require.Equal(t, orig.Message, parsed.Message)
	require.Equal(t, orig.FileChanges, parsed.FileChanges)
}

func TestIDHexRoundTrip(t *testing.T) {
	cs := makeChangeset(t, nil, "hex")
	id, err := ParseID(cs.ID.HexString())
	require.NoError(t, err)
	require.Equal(t, cs.ID, id)

	_, err = ParseID("not-hex")
	require.YesError(t, err)
}

func TestMemGraph(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := NewMemGraph()

	root := makeChangeset(t, nil, "root")
	require.NoError(t, g.Add(ctx, root))

	child := makeChangeset(t, []ID{root.ID}, "child")
	require.NoError(t, g.Add(ctx, child))

	got, err := g.Get(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, child.ID, got.ID)

	parents, err := g.Parents(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, []ID{root.ID}, parents)

	_, err = g.Get(ctx, ID{0xde, 0xad})
	require.True(t, IsUnknownChangeset(err))
}

func TestMemGraphRejectsDanglingParent(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := NewMemGraph()

	orphan := makeChangeset(t, []ID{{0x01}}, "orphan")
	err := g.Add(ctx, orphan)
	require.YesError(t, err)
	var ce *ConsistencyError
	require.True(t, errors.As(err, &ce))
}

func TestKVGraph(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := kv.NewMemStore()
	g := NewKVGraph(store)

	root := makeChangeset(t, nil, "root")
	require.NoError(t, WriteChangeset(ctx, store, root))
	child := makeChangeset(t, []ID{root.ID}, "child")
	require.NoError(t, WriteChangeset(ctx, store, child))

	got, err := g.Get(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, child.ID, got.ID)
	require.Equal(t, child.Content(), got.Content())

	parents, err := g.Parents(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, []ID{root.ID}, parents)

	_, err = g.Get(ctx, ID{0xaa})
	require.True(t, IsUnknownChangeset(err))
}
