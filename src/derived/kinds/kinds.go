// Package kinds declares the built-in derived-data kinds.
//
// Kind names appear in mapping-store keys; they must never change for
// existing repositories.
package kinds

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived"
	"github.com/jamestiotio/sapling/src/internal/cshash"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

const (
	// ChangesetInfo is a small, cheap summary of a changeset's metadata.
	ChangesetInfo = "changeset_info"
	// HgChangeset is the Mercurial changeset representation; its external
	// id is the hg node hash.
	HgChangeset = "hg_changeset"
	// GitCommit is the Git commit representation; its external id is the
	// git commit hash.
	GitCommit = "git_commit"
	// FileCount counts the file changes in a changeset.
	FileCount = "file_count"
	// BlameSkeleton is the per-file blame index scaffold.
	BlameSkeleton = "blame_skeleton"
	// SourceNative is reserved for the ingestion collaborator: it records
	// the source system's native id for a changeset, making "convert from
	// the source format" an ordinary conversion.  It has no compute
	// function; the scheduler refuses to derive it.
	SourceNative = "source_native"
)

// All returns the built-in kinds.
func All() []derived.Kind {
	return []derived.Kind{
		{Name: ChangesetInfo, ComputeFn: computeChangesetInfo},
		{Name: HgChangeset, Deps: []string{ChangesetInfo}, Recursive: true, ComputeFn: computeHgChangeset},
		{Name: GitCommit, Recursive: true, ComputeFn: computeGitCommit},
		{Name: FileCount, ComputeFn: computeFileCount},
		{Name: BlameSkeleton, Deps: []string{HgChangeset, ChangesetInfo}, ComputeFn: computeBlameSkeleton},
	}
}

// Registry returns a registry of the built-in kinds.  The built-in catalogue
// is validated by tests, so a failure here is a programmer error.
func Registry() *derived.Registry {
	r, err := derived.NewRegistry(All()...)
	if err != nil {
		panic(err)
	}
	return r
}

// externalID hashes the given parts into an external id in kind's namespace.
func externalID(kind string, cfg derived.Config, parts ...[]byte) string {
	h := cshash.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(cfg.HashSalt))
	h.Write([]byte{0})
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return cshash.EncodeHex(h.Sum(nil))
}

// nodeID is externalID truncated to the 20-byte node length that hg and git
// use.
func nodeID(kind string, cfg derived.Config, parts ...[]byte) string {
	return externalID(kind, cfg, parts...)[:40]
}

type changesetInfoPayload struct {
	Author      string `json:"author"`
	Committer   string `json:"committer"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	ParentCount int    `json:"parent_count"`
}

func computeChangesetInfo(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
	cs := input.Changeset
	payload, err := json.Marshal(changesetInfoPayload{
		Author:      cs.Author,
		Committer:   cs.Committer,
		Message:     cs.Message,
		Timestamp:   cs.Timestamp.UTC().Format(time.RFC3339Nano),
		ParentCount: len(cs.Parents),
	})
	if err != nil {
		return derived.Value{}, errors.Wrap(err, "marshal changeset info")
	}
	return derived.Value{
		ExternalID: externalID(ChangesetInfo, input.Config, payload),
		Payload:    payload,
	}, nil
}

type commitPayload struct {
	Node    string   `json:"node"`
	Parents []string `json:"parents"`
}

// computeCommitNode derives a VCS node hash over the changeset content and
// the parents' node hashes in this kind's namespace.  The parent hashes are
// what make the kind recursive: a node cannot be computed before its
// parents'.
func computeCommitNode(kind string, input derived.ComputeInput) (derived.Value, error) {
	cs := input.Changeset
	parts := [][]byte{cs.Content()}
	parents := make([]string, 0, len(input.Parents))
	for _, p := range input.Parents {
		parts = append(parts, []byte(p.ExternalID))
		parents = append(parents, p.ExternalID)
	}
	if input.Config.IncludeCommitterInHash {
		parts = append(parts, []byte(cs.Committer))
	}
	node := nodeID(kind, input.Config, parts...)
	payload, err := json.Marshal(commitPayload{Node: node, Parents: parents})
	if err != nil {
		return derived.Value{}, errors.Wrapf(err, "marshal %s", kind)
	}
	return derived.Value{ExternalID: node, Payload: payload}, nil
}

func computeHgChangeset(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
	if _, ok := input.Deps[ChangesetInfo]; !ok {
		return derived.Value{}, errors.New("hg_changeset requires changeset_info")
	}
	return computeCommitNode(HgChangeset, input)
}

func computeGitCommit(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
	return computeCommitNode(GitCommit, input)
}

func computeFileCount(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
	payload := []byte(strconv.Itoa(len(input.Changeset.FileChanges)))
	return derived.Value{
		ExternalID: externalID(FileCount, input.Config, input.Changeset.ID[:], payload),
		Payload:    payload,
	}, nil
}

type blameSkeletonPayload struct {
	Node   string   `json:"node"`
	Author string   `json:"author"`
	Paths  []string `json:"paths"`
}

func computeBlameSkeleton(ctx context.Context, input derived.ComputeInput) (derived.Value, error) {
	cs := input.Changeset
	hg, ok := input.Deps[HgChangeset]
	if !ok {
		return derived.Value{}, errors.New("blame_skeleton requires hg_changeset")
	}
	paths := make([]string, 0, len(cs.FileChanges))
	for _, fc := range cs.FileChanges {
		if fc.Op != commitgraph.OpRemove {
			paths = append(paths, fc.Path)
		}
	}
	payload, err := json.Marshal(blameSkeletonPayload{
		Node:   hg.ExternalID,
		Author: cs.Author,
		Paths:  paths,
	})
	if err != nil {
		return derived.Value{}, errors.Wrap(err, "marshal blame skeleton")
	}
	return derived.Value{
		ExternalID: externalID(BlameSkeleton, input.Config, payload),
		Payload:    payload,
	}, nil
}
