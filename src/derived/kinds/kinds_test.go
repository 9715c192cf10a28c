package kinds

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived"
	"github.com/jamestiotio/sapling/src/internal/pctx"
	"github.com/jamestiotio/sapling/src/internal/require"
)

func testChangeset(t testing.TB, parents []commitgraph.ID) *commitgraph.Changeset {
	t.Helper()
	cs, err := commitgraph.NewChangeset(parents, "ada <ada@example.com>", "bob <bob@example.com>",
		"add lovelace module", time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC),
		[]commitgraph.FileChange{
			{Path: "lovelace/engine.go", Op: commitgraph.OpAdd, ContentHash: "c0ffee"},
			{Path: "old.go", Op: commitgraph.OpRemove},
		})
	require.NoError(t, err)
	return cs
}

func TestRegistryIsValid(t *testing.T) {
	r := Registry()
	for _, k := range All() {
		got, err := r.Get(k.Name)
		require.NoError(t, err)
		require.Equal(t, k.Name, got.Name)
	}
}

func TestChangesetInfoDeterministic(t *testing.T) {
	ctx := pctx.TestContext(t)
	cs := testChangeset(t, nil)
	input := derived.ComputeInput{Changeset: cs, Config: derived.DefaultConfig()}

	r := Registry()
	info, err := r.Get(ChangesetInfo)
	require.NoError(t, err)

	v1, err := info.Compute(ctx, input)
	require.NoError(t, err)
	v2, err := info.Compute(ctx, input)
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestHgChangesetDependsOnParents(t *testing.T) {
	ctx := pctx.TestContext(t)
	cs := testChangeset(t, nil)
	r := Registry()
	hg, err := r.Get(HgChangeset)
	require.NoError(t, err)

	info := derived.Value{ExternalID: "info-id", Payload: []byte("{}")}
	base := derived.ComputeInput{
		Changeset: cs,
		Deps:      map[string]derived.Value{ChangesetInfo: info},
		Config:    derived.DefaultConfig(),
	}
	root, err := hg.Compute(ctx, base)
	require.NoError(t, err)
	require.Len(t, root.ExternalID, 40)

	withParent := base
	withParent.Parents = []derived.Value{{ExternalID: root.ExternalID}}
	child, err := hg.Compute(ctx, withParent)
	require.NoError(t, err)
	require.NotEqual(t, root.ExternalID, child.ExternalID,
		"parent hg nodes must feed into the child's node")
}

func TestHgChangesetRequiresInfo(t *testing.T) {
	ctx := pctx.TestContext(t)
	cs := testChangeset(t, nil)
	r := Registry()
	hg, err := r.Get(HgChangeset)
	require.NoError(t, err)
	_, err = hg.Compute(ctx, derived.ComputeInput{Changeset: cs, Config: derived.DefaultConfig()})
	require.YesError(t, err)
}

func TestCommitterToggleChangesNode(t *testing.T) {
	ctx := pctx.TestContext(t)
	cs := testChangeset(t, nil)
	r := Registry()
	git, err := r.Get(GitCommit)
	require.NoError(t, err)

	on := derived.ComputeInput{Changeset: cs, Config: derived.Config{IncludeCommitterInHash: true}}
	off := derived.ComputeInput{Changeset: cs, Config: derived.Config{IncludeCommitterInHash: false}}

	vOn, err := git.Compute(ctx, on)
	require.NoError(t, err)
	vOff, err := git.Compute(ctx, off)
	require.NoError(t, err)
	require.NotEqual(t, vOn.ExternalID, vOff.ExternalID)
}

func TestFileCountPayload(t *testing.T) {
	ctx := pctx.TestContext(t)
	cs := testChangeset(t, nil)
	r := Registry()
	fc, err := r.Get(FileCount)
	require.NoError(t, err)
	v, err := fc.Compute(ctx, derived.ComputeInput{Changeset: cs, Config: derived.DefaultConfig()})
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v.Payload)
}

func TestBlameSkeletonSkipsRemoves(t *testing.T) {
	ctx := pctx.TestContext(t)
	cs := testChangeset(t, nil)
	r := Registry()
	blame, err := r.Get(BlameSkeleton)
	require.NoError(t, err)
	v, err := blame.Compute(ctx, derived.ComputeInput{
		Changeset: cs,
		Deps: map[string]derived.Value{
			HgChangeset:   {ExternalID: "node123"},
			ChangesetInfo: {ExternalID: "info"},
		},
		Config: derived.DefaultConfig(),
	})
	require.NoError(t, err)
	var got struct {
		Node   string   `json:"node"`
		Author string   `json:"author"`
		Paths  []string `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(v.Payload, &got))
	require.Equal(t, "node123", got.Node)
	require.Equal(t, "ada <ada@example.com>", got.Author)
	require.Equal(t, []string{"lovelace/engine.go"}, got.Paths)
}
