package derived

import (
	"bytes"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config is a read-only snapshot of the configuration that compute functions
// may consult.  It is passed explicitly into every compute invocation rather
// than read from process-wide state, so the determinism contract stays
// auditable.
//
// Config may change over the system's lifetime; the engine offers no
// staleness detection.  After changing a value that affects a kind's output,
// an operator must rederive each affected changeset explicitly.
type Config struct {
	// IncludeCommitterInHash embeds committer metadata in the external ids
	// of the hg_changeset and git_commit kinds.
	IncludeCommitterInHash bool `yaml:"include_committer_in_hash"`
	// HashSalt is mixed into every external id; changing it invalidates
	// everything (after explicit rederivation).
	HashSalt string `yaml:"hash_salt"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		IncludeCommitterInHash: true,
	}
}

// ParseConfig decodes a YAML config snapshot, rejecting unknown fields.
func ParseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse derivation config")
	}
	return cfg, nil
}
