// Package scheduler derives data in dependency order.
//
// A derivation target (changeset, kind) is expanded into a plan: the minimal
// set of underived pairs the target transitively needs, with edges for
// intra-changeset kind dependencies and, for recursive kinds, parent
// changesets.  The plan is then executed by a bounded worker pool; each pair
// is computed under a lease so concurrent schedulers never duplicate work,
// and its mapping is written only after the compute succeeds, so a mapping's
// presence always witnesses a completed derivation.
package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived"
	"github.com/jamestiotio/sapling/src/derived/mapstore"
	"github.com/jamestiotio/sapling/src/internal/dlock"
	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/log"
)

const defaultParallelism = 8

// Scheduler owns derivation for one repository.
type Scheduler struct {
	graph       commitgraph.Graph
	store       *mapstore.Store
	registry    *derived.Registry
	leaser      dlock.Leaser
	config      derived.Config
	parallelism int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithParallelism bounds the number of pairs computed at once.
func WithParallelism(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// New creates a Scheduler.  The config is captured as an immutable snapshot:
// everything derived through this Scheduler sees the same configuration, even
// if the caller later builds another Scheduler with different settings.
func New(graph commitgraph.Graph, store *mapstore.Store, registry *derived.Registry, leaser dlock.Leaser, config derived.Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:       graph,
		store:       store,
		registry:    registry,
		leaser:      leaser,
		config:      config,
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Derive ensures kind is derived for csid and returns its value.  When the
// mapping already exists the stored value is returned without any compute.
// With force, csid itself is recomputed and its mapping overwritten, but
// ancestors and dependencies keep their existing mappings.
func (s *Scheduler) Derive(ctx context.Context, csid commitgraph.ID, kind string, force bool) (_ derived.Value, retErr error) {
	ctx, end := log.SpanContext(ctx, "derive",
		zap.String("changeset", csid.HexString()),
		zap.String("kind", kind),
		zap.Bool("force", force))
	defer end(log.Errorp(&retErr))
	if _, err := s.registry.Get(kind); err != nil {
		return derived.Value{}, err
	}
	target := nodeKey{id: csid, kind: kind}
	p, err := s.buildPlan(ctx, []nodeKey{target}, force)
	if err != nil {
		return derived.Value{}, err
	}
	if err := s.run(ctx, p); err != nil {
		return derived.Value{}, err
	}
	if n, ok := p.nodes[target]; ok && n.err != nil {
		return derived.Value{}, n.err
	}
	d, err := s.store.Lookup(ctx, csid, kind)
	if err != nil {
		return derived.Value{}, err
	}
	return derived.Value{ExternalID: d.ExternalID, Payload: d.Payload}, nil
}

// DeriveBatch derives kind for every given changeset, sharing one plan so
// common ancestors are computed once.  A compute failure under one target
// does not stop work for targets that do not depend on it; the first failure
// is returned after all independent work finishes.
func (s *Scheduler) DeriveBatch(ctx context.Context, csids []commitgraph.ID, kind string) (retErr error) {
	ctx, end := log.SpanContext(ctx, "deriveBatch",
		zap.String("kind", kind),
		zap.Int("targets", len(csids)))
	defer end(log.Errorp(&retErr))
	if _, err := s.registry.Get(kind); err != nil {
		return err
	}
	targets := make([]nodeKey, len(csids))
	for i, csid := range csids {
		targets[i] = nodeKey{id: csid, kind: kind}
	}
	p, err := s.buildPlan(ctx, targets, false)
	if err != nil {
		return err
	}
	if err := s.run(ctx, p); err != nil {
		return err
	}
	for _, t := range targets {
		if n, ok := p.nodes[t]; ok && n.err != nil {
			return n.err
		}
	}
	return nil
}

// run executes the plan with a bounded worker pool.  A node's failure marks
// every transitive dependent with the same root error; nodes that do not
// depend on it still run to completion.
func (s *Scheduler) run(ctx context.Context, p *plan) error {
	total := len(p.nodes)
	if total == 0 {
		return nil
	}
	var (
		mu        sync.Mutex
		completed int
	)
	ready := make(chan *node, total)
	// finish is called under mu.  On failure, every transitive dependent is
	// marked with the same root error and counted as completed; such nodes
	// keep a positive indegree and are never queued.
	finish := func(n *node, err error) {
		n.err = err
		completed++
		if err != nil {
			stack := append([]nodeKey{}, p.dependents[n.key]...)
			for len(stack) > 0 {
				key := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				dep := p.nodes[key]
				if dep.err != nil {
					continue
				}
				dep.err = err
				completed++
				stack = append(stack, p.dependents[key]...)
			}
		} else {
			for _, key := range p.dependents[n.key] {
				dep := p.nodes[key]
				if dep.err != nil {
					continue
				}
				dep.indegree--
				if dep.indegree == 0 {
					ready <- dep
				}
			}
		}
		if completed == total {
			close(ready)
		}
	}
	for _, n := range p.nodes {
		if n.indegree == 0 {
			ready <- n
		}
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.parallelism; i++ {
		eg.Go(func() error {
			for {
				select {
				case n, ok := <-ready:
					if !ok {
						return nil
					}
					err := s.computeNode(egCtx, n)
					mu.Lock()
					finish(n, err)
					mu.Unlock()
				case <-egCtx.Done():
					return errors.EnsureStack(context.Cause(egCtx))
				}
			}
		})
	}
	return errors.EnsureStack(eg.Wait())
}

// computeNode derives one (changeset, kind) pair under its lease.
func (s *Scheduler) computeNode(ctx context.Context, n *node) (retErr error) {
	lock := s.leaser.Lease("derive/" + n.key.kind + "/" + n.key.id.HexString())
	lockCtx, err := lock.Lock(ctx)
	if err != nil {
		return errors.Wrapf(err, "lease %s", n.key)
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil && retErr == nil {
			retErr = errors.Wrapf(err, "unlease %s", n.key)
		}
	}()
	// Another scheduler may have derived this pair while we waited on the
	// lease; the mapping write is the last step of a derivation, so its
	// presence means there is nothing left to do.  Forced targets skip the
	// re-check: force exists to replace the mapping.
	if !n.forced {
		_, err := s.store.LookupExternal(lockCtx, n.key.id, n.key.kind)
		if err == nil {
			log.Debug(lockCtx, "pair derived concurrently, skipping", zap.String("pair", n.key.String()))
			return nil
		}
		if !mapstore.IsNotFound(err) {
			return err
		}
	}
	input, err := s.gatherInput(lockCtx, n)
	if err != nil {
		return err
	}
	v, err := n.kind.Compute(lockCtx, input)
	if err != nil {
		return errors.EnsureStack(&ComputeFailureError{
			ChangesetID: n.key.id,
			Kind:        n.key.kind,
			Err:         err,
		})
	}
	return s.store.Put(lockCtx, mapstore.Derivation{
		ChangesetID: n.key.id,
		Kind:        n.key.kind,
		ExternalID:  v.ExternalID,
		Payload:     v.Payload,
	}, n.forced)
}

// gatherInput reads the node's dependency and parent values back out of the
// mapping store.  The plan guarantees they were derived first, so a missing
// value here is a hard error, not something to derive on the fly.
func (s *Scheduler) gatherInput(ctx context.Context, n *node) (derived.ComputeInput, error) {
	input := derived.ComputeInput{
		Changeset: n.cs,
		Config:    s.config,
	}
	if len(n.kind.Deps) > 0 {
		input.Deps = make(map[string]derived.Value, len(n.kind.Deps))
		for _, dep := range n.kind.Deps {
			d, err := s.store.Lookup(ctx, n.key.id, dep)
			if err != nil {
				return derived.ComputeInput{}, errors.Wrapf(err, "dependency %s of %s", dep, n.key)
			}
			input.Deps[dep] = derived.Value{ExternalID: d.ExternalID, Payload: d.Payload}
		}
	}
	if n.kind.Recursive {
		input.Parents = make([]derived.Value, len(n.cs.Parents))
		for i, parent := range n.cs.Parents {
			d, err := s.store.Lookup(ctx, parent, n.key.kind)
			if err != nil {
				return derived.ComputeInput{}, errors.Wrapf(err, "parent %s of %s", parent.HexString(), n.key)
			}
			input.Parents[i] = derived.Value{ExternalID: d.ExternalID, Payload: d.Payload}
		}
	}
	return input, nil
}
