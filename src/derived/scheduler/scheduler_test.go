package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived"
	"github.com/jamestiotio/sapling/src/derived/kinds"
	"github.com/jamestiotio/sapling/src/derived/mapstore"
	"github.com/jamestiotio/sapling/src/internal/cshash"
	"github.com/jamestiotio/sapling/src/internal/dlock"
	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/kv"
	"github.com/jamestiotio/sapling/src/internal/pctx"
	"github.com/jamestiotio/sapling/src/internal/require"
)

func commit(t testing.TB, g *commitgraph.MemGraph, parents []commitgraph.ID, msg string) commitgraph.ID {
	t.Helper()
	cs, err := commitgraph.NewChangeset(parents, "ada <ada@example.com>", "ada <ada@example.com>",
		msg, time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC),
		[]commitgraph.FileChange{{Path: "f", Op: commitgraph.OpModify, ContentHash: "aa"}})
	require.NoError(t, err)
	require.NoError(t, g.Add(pctx.TODO(), cs))
	return cs.ID
}

// hashKind builds a deterministic recursive kind that folds the changeset id,
// the config salt and the parents' external ids.
func hashKind(name string, deps []string, recursive bool) derived.Kind {
	return derived.Kind{
		Name:      name,
		Deps:      deps,
		Recursive: recursive,
		ComputeFn: func(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
			h := cshash.New()
			h.Write([]byte(name))
			h.Write([]byte(input.Config.HashSalt))
			h.Write(input.Changeset.ID[:])
			for _, p := range input.Parents {
				h.Write([]byte(p.ExternalID))
			}
			for _, d := range deps {
				h.Write([]byte(input.Deps[d].ExternalID))
			}
			return derived.Value{ExternalID: cshash.EncodeHex(h.Sum(nil))}, nil
		},
	}
}

// countingStore counts the mapping writes that reach the underlying kv store.
type countingStore struct {
	kv.Store
	mu   sync.Mutex
	puts int
}

func (s *countingStore) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(ctx, key, value)
}

func (s *countingStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func newScheduler(t testing.TB, g commitgraph.Graph, underlying kv.Store, r *derived.Registry, cfg derived.Config, opts ...Option) (*Scheduler, *mapstore.Store) {
	t.Helper()
	ms := mapstore.New(underlying)
	return New(g, ms, r, dlock.NewLocalLeaser(), cfg, opts...), ms
}

func TestDeriveLinearChainCoversAncestors(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	b := commit(t, g, []commitgraph.ID{a}, "b")
	c := commit(t, g, []commitgraph.ID{b}, "c")

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, ms := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	v, err := s.Derive(ctx, c, "node", false)
	require.NoError(t, err)
	require.NotEqual(t, "", v.ExternalID)

	// Deriving a recursive kind for a changeset derives it for every
	// ancestor first.
	for _, id := range []commitgraph.ID{a, b} {
		_, err := ms.Lookup(ctx, id, "node")
		require.NoError(t, err)
	}
}

func TestDeriveIsIdempotent(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	b := commit(t, g, []commitgraph.ID{a}, "b")

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	counting := &countingStore{Store: kv.NewMemStore()}
	s, _ := newScheduler(t, g, counting, r, derived.DefaultConfig())

	first, err := s.Derive(ctx, b, "node", false)
	require.NoError(t, err)
	writes := counting.putCount()
	require.Equal(t, 2, writes)

	// A second derive finds the mapping and performs no writes at all.
	second, err := s.Derive(ctx, b, "node", false)
	require.NoError(t, err)
	require.Equal(t, first.ExternalID, second.ExternalID)
	require.Equal(t, writes, counting.putCount())
}

func TestForceRederivesOnlyTheTarget(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	b := commit(t, g, []commitgraph.ID{a}, "b")

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	counting := &countingStore{Store: kv.NewMemStore()}
	store := kv.Store(counting)
	cfg := derived.DefaultConfig()
	s, ms := newScheduler(t, g, store, r, cfg)

	_, err = s.Derive(ctx, b, "node", false)
	require.NoError(t, err)
	parentBefore, err := ms.LookupExternal(ctx, a, "node")
	require.NoError(t, err)
	childBefore, err := ms.LookupExternal(ctx, b, "node")
	require.NoError(t, err)

	// Rederive the child under drifted configuration.  Only the child's
	// mapping changes; the parent's stale mapping is read as-is.
	cfg.HashSalt = "drift"
	drifted, _ := newScheduler(t, g, store, r, cfg)
	writes := counting.putCount()
	v, err := drifted.Derive(ctx, b, "node", true)
	require.NoError(t, err)
	require.NotEqual(t, childBefore, v.ExternalID)
	require.Equal(t, writes+1, counting.putCount())

	parentAfter, err := ms.LookupExternal(ctx, a, "node")
	require.NoError(t, err)
	require.Equal(t, parentBefore, parentAfter)
}

func TestForceWithoutDriftIsByteStable(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	first, err := s.Derive(ctx, a, "node", false)
	require.NoError(t, err)
	second, err := s.Derive(ctx, a, "node", true)
	require.NoError(t, err)
	require.Equal(t, first.ExternalID, second.ExternalID)
}

func TestDeterministicAcrossStores(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	b := commit(t, g, []commitgraph.ID{a}, "b")

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s1, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())
	s2, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	v1, err := s1.Derive(ctx, b, "node", false)
	require.NoError(t, err)
	v2, err := s2.Derive(ctx, b, "node", false)
	require.NoError(t, err)
	require.Equal(t, v1.ExternalID, v2.ExternalID)
}

func TestMergeCommitDerivesBothParents(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	root := commit(t, g, nil, "root")
	left := commit(t, g, []commitgraph.ID{root}, "left")
	right := commit(t, g, []commitgraph.ID{root}, "right")
	merge := commit(t, g, []commitgraph.ID{left, right}, "merge")

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, ms := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	_, err = s.Derive(ctx, merge, "node", false)
	require.NoError(t, err)
	for _, id := range []commitgraph.ID{root, left, right, merge} {
		_, err := ms.Lookup(ctx, id, "node")
		require.NoError(t, err)
	}
}

func TestIntraChangesetDependencyOrder(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")

	var mu sync.Mutex
	var order []string
	record := func(name string, deps []string) derived.Kind {
		k := hashKind(name, deps, false)
		inner := k.ComputeFn
		k.ComputeFn = func(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return inner(ctx, input)
		}
		return k
	}
	r, err := derived.NewRegistry(record("base", nil), record("top", []string{"base"}))
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	_, err = s.Derive(ctx, a, "top", false)
	require.NoError(t, err)
	require.Equal(t, []string{"base", "top"}, order)
}

func TestFailureIsolation(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	root := commit(t, g, nil, "root")
	bad := commit(t, g, []commitgraph.ID{root}, "bad")
	afterBad := commit(t, g, []commitgraph.ID{bad}, "after bad")
	good := commit(t, g, []commitgraph.ID{root}, "good")

	k := hashKind("node", nil, true)
	inner := k.ComputeFn
	k.ComputeFn = func(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
		if input.Changeset.ID == bad {
			return derived.Value{}, errors.New("synthetic compute failure")
		}
		return inner(ctx, input)
	}
	r, err := derived.NewRegistry(k)
	require.NoError(t, err)
	s, ms := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	err = s.DeriveBatch(ctx, []commitgraph.ID{afterBad, good}, "node")
	require.YesError(t, err)
	var cf *ComputeFailureError
	require.True(t, errors.As(err, &cf))
	require.Equal(t, bad, cf.ChangesetID)
	require.Equal(t, "node", cf.Kind)

	// The branch not touching the failed pair still completed, and nothing
	// downstream of the failure was written.
	_, err = ms.Lookup(ctx, good, "node")
	require.NoError(t, err)
	_, err = ms.Lookup(ctx, afterBad, "node")
	require.True(t, mapstore.IsNotFound(err))
}

func TestFailedDependentReportsRootCause(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	root := commit(t, g, nil, "root")
	tip := commit(t, g, []commitgraph.ID{root}, "tip")

	k := hashKind("node", nil, true)
	k.ComputeFn = func(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
		return derived.Value{}, errors.New("always fails")
	}
	r, err := derived.NewRegistry(k)
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	_, err = s.Derive(ctx, tip, "node", false)
	require.True(t, IsComputeFailure(err))
	var cf *ComputeFailureError
	require.True(t, errors.As(err, &cf))
	// The root is the deepest failing pair, not the requested tip.
	require.Equal(t, root, cf.ChangesetID)
}

func TestDeepLinearHistory(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	var parents []commitgraph.ID
	var tip commitgraph.ID
	for i := 0; i < 10000; i++ {
		tip = commit(t, g, parents, "c"+strconv.Itoa(i))
		parents = []commitgraph.ID{tip}
	}

	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	_, err = s.Derive(ctx, tip, "node", false)
	require.NoError(t, err)
}

func TestConcurrentDeriveComputesEachPairOnce(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	b := commit(t, g, []commitgraph.ID{a}, "b")
	c := commit(t, g, []commitgraph.ID{b}, "c")

	var mu sync.Mutex
	computes := make(map[string]int)
	k := hashKind("node", nil, true)
	inner := k.ComputeFn
	k.ComputeFn = func(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
		mu.Lock()
		computes[input.Changeset.ID.HexString()]++
		mu.Unlock()
		return inner(ctx, input)
	}
	r, err := derived.NewRegistry(k)
	require.NoError(t, err)

	// Both schedulers share the store and the leaser, like two processes
	// sharing etcd and postgres.
	ms := mapstore.New(kv.NewMemStore())
	leaser := dlock.NewLocalLeaser()
	cfg := derived.DefaultConfig()
	s1 := New(g, ms, r, leaser, cfg)
	s2 := New(g, ms, r, leaser, cfg)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, s := range []*Scheduler{s1, s2} {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Derive(ctx, c, "node", false)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	for id, n := range computes {
		if n != 1 {
			t.Errorf("pair %s computed %d times", id, n)
		}
	}
	require.Len(t, computes, 3)
}

func TestDeriveBatchSharesAncestors(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	root := commit(t, g, nil, "root")
	left := commit(t, g, []commitgraph.ID{root}, "left")
	right := commit(t, g, []commitgraph.ID{root}, "right")

	var mu sync.Mutex
	computes := 0
	k := hashKind("node", nil, true)
	inner := k.ComputeFn
	k.ComputeFn = func(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
		mu.Lock()
		computes++
		mu.Unlock()
		return inner(ctx, input)
	}
	r, err := derived.NewRegistry(k)
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	require.NoError(t, s.DeriveBatch(ctx, []commitgraph.ID{left, right}, "node"))
	require.Equal(t, 3, computes)
}

func TestDeriveUnknownChangeset(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	var missing commitgraph.ID
	missing[0] = 0xff
	_, err = s.Derive(ctx, missing, "node", false)
	require.True(t, commitgraph.IsUnknownChangeset(err))
}

func TestDeriveUnknownKind(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, _ := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig())

	_, err = s.Derive(ctx, a, "no_such_kind", false)
	var uk *derived.UnknownKindError
	require.True(t, errors.As(err, &uk))
	require.Equal(t, "no_such_kind", uk.Name)
}

func TestSourceNativeIsNotDerivable(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	s, _ := newScheduler(t, g, kv.NewMemStore(), kinds.Registry(), derived.DefaultConfig())

	_, err := s.Derive(ctx, a, kinds.SourceNative, false)
	var uk *derived.UnknownKindError
	require.True(t, errors.As(err, &uk))
}

func TestBuiltinKindsEndToEnd(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	a := commit(t, g, nil, "a")
	b := commit(t, g, []commitgraph.ID{a}, "b")
	s, ms := newScheduler(t, g, kv.NewMemStore(), kinds.Registry(), derived.DefaultConfig())

	v, err := s.Derive(ctx, b, kinds.BlameSkeleton, false)
	require.NoError(t, err)
	require.NotEqual(t, "", v.ExternalID)

	// blame needed hg_changeset, which needed changeset_info for the whole
	// chain.
	for _, id := range []commitgraph.ID{a, b} {
		for _, kind := range []string{kinds.ChangesetInfo, kinds.HgChangeset} {
			_, err := ms.Lookup(ctx, id, kind)
			require.NoError(t, err)
		}
	}
	// git_commit was not requested and was not derived.
	_, err = ms.Lookup(ctx, b, kinds.GitCommit)
	require.True(t, mapstore.IsNotFound(err))
}

func TestParallelismOption(t *testing.T) {
	ctx := pctx.TestContext(t)
	g := commitgraph.NewMemGraph()
	var heads []commitgraph.ID
	for i := 0; i < 20; i++ {
		heads = append(heads, commit(t, g, nil, fmt.Sprintf("h%d", i)))
	}
	r, err := derived.NewRegistry(hashKind("node", nil, true))
	require.NoError(t, err)
	s, ms := newScheduler(t, g, kv.NewMemStore(), r, derived.DefaultConfig(), WithParallelism(2))

	require.NoError(t, s.DeriveBatch(ctx, heads, "node"))
	for _, id := range heads {
		_, err := ms.Lookup(ctx, id, "node")
		require.NoError(t, err)
	}
}
