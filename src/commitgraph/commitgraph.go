// Package commitgraph models the canonical commit graph: immutable,
// content-addressed changesets with ordered parent references.
//
// The graph is append-only.  Changesets are created by the ingestion
// collaborator and never mutated or deleted afterwards; everything else in
// the system only reads.
package commitgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamestiotio/sapling/src/internal/cshash"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

// ID is a content-addressed changeset id: the hash of the changeset's
// canonical serialization.
type ID [cshash.OutputSize]byte

// HexString returns the lowercase hex encoding of id.
func (id ID) HexString() string {
	return cshash.EncodeHex(id[:])
}

func (id ID) String() string { return id.HexString() }

// MarshalText implements encoding.TextMarshaler, so ids serialize as hex in
// JSON.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.HexString()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	out, err := cshash.DecodeHex(string(text))
	if err != nil {
		return errors.Wrap(err, "parse changeset id")
	}
	*id = ID(out)
	return nil
}

// ParseID parses the hex encoding of an ID.
func ParseID(s string) (ID, error) {
	var id ID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return ID{}, err
	}
	return id, nil
}

// ChangeOp is the type of a file change within a changeset.
type ChangeOp string

const (
	OpAdd    ChangeOp = "add"
	OpModify ChangeOp = "modify"
	OpRemove ChangeOp = "remove"
)

// FileChange is one file-level change carried by a changeset.
type FileChange struct {
	Path string   `json:"path"`
	Op   ChangeOp `json:"op"`
	// ContentHash addresses the file content in the blob store; empty for
	// removes.
	ContentHash string `json:"content_hash,omitempty"`
}

// changesetRecord is the canonical serialization of a changeset.  The id is
// the hash of exactly these bytes, so the field set and order must never
// change for existing data.
type changesetRecord struct {
	Parents     []ID         `json:"parents"`
	Author      string       `json:"author"`
	Committer   string       `json:"committer"`
	Message     string       `json:"message"`
	Timestamp   time.Time    `json:"timestamp"`
	FileChanges []FileChange `json:"file_changes"`
}

// Changeset is an immutable commit node.  Do not modify any field or slice
// element after creation; Changesets are shared freely across goroutines.
type Changeset struct {
	ID          ID
	Parents     []ID
	Author      string
	Committer   string
	Message     string
	Timestamp   time.Time
	FileChanges []FileChange

	content []byte
}

// NewChangeset builds a content-addressed changeset.  The returned value is
// immutable; the caller must not retain the slices it passed in.
func NewChangeset(parents []ID, author, committer, message string, ts time.Time, changes []FileChange) (*Changeset, error) {
	rec := changesetRecord{
		Parents:     parents,
		Author:      author,
		Committer:   committer,
		Message:     message,
		Timestamp:   ts.UTC(),
		FileChanges: changes,
	}
	content, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "marshal changeset")
	}
	return changesetFromRecord(rec, content), nil
}

// ParseChangeset decodes a canonical serialization, recomputing the id.
func ParseChangeset(content []byte) (*Changeset, error) {
	var rec changesetRecord
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal changeset")
	}
	return changesetFromRecord(rec, append([]byte{}, content...)), nil
}

func changesetFromRecord(rec changesetRecord, content []byte) *Changeset {
	return &Changeset{
		ID:          ID(cshash.Sum(content)),
		Parents:     rec.Parents,
		Author:      rec.Author,
		Committer:   rec.Committer,
		Message:     rec.Message,
		Timestamp:   rec.Timestamp,
		FileChanges: rec.FileChanges,
		content:     content,
	}
}

// Content returns the canonical serialization the id was computed over.
// Callers must not modify the returned slice.
func (c *Changeset) Content() []byte { return c.content }

// Graph is the read contract the derivation engine consumes.  Results are
// immutable once returned.  Parent ids always resolve to existing changesets;
// that referential integrity is enforced at ingestion and is not re-validated
// here beyond the scheduler's fatal cycle check.
type Graph interface {
	// Get returns the changeset with the given id, or an
	// UnknownChangesetError.
	Get(ctx context.Context, id ID) (*Changeset, error)
	// Parents returns the ordered parent ids of the given changeset.
	Parents(ctx context.Context, id ID) ([]ID, error)
}

// UnknownChangesetError indicates the requested id is absent from the graph.
type UnknownChangesetError struct {
	ID ID
}

func (e *UnknownChangesetError) Error() string {
	return fmt.Sprintf("changeset %s is not in the commit graph", e.ID.HexString())
}

// IsUnknownChangeset returns true if err indicates a changeset absent from
// the graph.
func IsUnknownChangeset(err error) bool {
	var target *UnknownChangesetError
	return errors.As(err, &target)
}

/// ConsistencyError indicates corruption upstream of this subsystem: a cycle
// or a dangling parent reference.  It is fatal and never retried.
type ConsistencyError struct {
	ID     ID
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("commit graph consistency violation at %s: %s", e.ID.HexString(), e.Reason)
}
