// Package fixctx stores per-finding remediation context under short-lived
// keys. The store is a pure cache: records expire at their TTL and are
// never a system of record.
package fixctx

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultTTL matches the launch-token lifetime so a valid token pointing
// at an expired record is the rare case, not the common one.
const DefaultTTL = 7 * 24 * time.Hour

// ErrNotFound indicates the record does not exist or has expired.
// This is an expected condition at the consumer: launch links may be
// clicked long after the PR was merged.
var ErrNotFound = errors.New("fix context not found")

// RepoContext pins a record to the repository state it was produced from.
type RepoContext struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"`
}

// Record is one stored fix context. Finding carries the reviewer's
// finding verbatim; this package does not interpret it.
type Record struct {
	ID        string          `json:"id"`
	Finding   json.RawMessage `json:"finding"`
	Repo      RepoContext     `json:"repo"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a write-once key-value store with per-key TTL.
// Put generates a fresh random id; existing ids are never overwritten.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, finding json.RawMessage, repo RepoContext) (string, error)
	Get(ctx context.Context, id string) (*Record, error)
}
