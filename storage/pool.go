// Package storage provides the validated-artifact pool: the storage
// capability the dissemination senders read from.
//
// The pool is written by the validation pipeline (Put/Remove) and read
// concurrently by broadcast tasks. This subsystem never mutates the pool
// through the read surface.
package storage

import (
	"errors"

	"github.com/thrylos-labs/go-gossip/core/artifact"
)

// ErrNotFound is returned when an artifact is not in the validated pool.
var ErrNotFound = errors.New("artifact not found in validated pool")

// ValidatedPool is the read surface handed to senders. Implementations
// must be safe for concurrent readers.
type ValidatedPool interface {
	// GetAllValidated returns a snapshot of every validated artifact of
	// the pool's kind. No ordering is guaranteed beyond iteration order
	// of the snapshot.
	GetAllValidated() ([]*artifact.Artifact, error)

	// GetValidated returns one validated artifact by identity, or
	// ErrNotFound.
	GetValidated(id artifact.ID) (*artifact.Artifact, error)
}
