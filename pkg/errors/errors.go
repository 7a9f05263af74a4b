// Package errors defines the sentinel error taxonomy shared by the builder
// and the searcher (spec §7), plus a typed wrapper that carries enough
// context for a CLI to report a useful exit message.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus is returned by Build when every line in the corpus was
	// rejected (malformed or missing required fields).
	ErrEmptyCorpus = errors.New("corpus produced zero accepted documents")
	// ErrBadRequest is returned by Search for an empty or blank query.
	ErrBadRequest = errors.New("bad request")
	// ErrIndexMissing is returned by Search when no index has been built yet.
	ErrIndexMissing = errors.New("index not built")
	// ErrInternal covers I/O and serialization failures that are not more
	// specifically classified.
	ErrInternal = errors.New("internal error")
)

// BuildAborted wraps a worker-fatal error with the block that triggered it
// (spec §7). The Scheduler returns this from Build when a worker fails;
// outstanding tasks are cancelled and scratch directories are discarded
// unless INDEX_KEEP_BLOCKS is set.
type BuildAborted struct {
	BlockID int
	Cause   error
}

func (e *BuildAborted) Error() string {
	return fmt.Sprintf("build aborted at block %d: %v", e.BlockID, e.Cause)
}

func (e *BuildAborted) Unwrap() error {
	return e.Cause
}

// NewBuildAborted wraps cause as a BuildAborted for the given block.
func NewBuildAborted(blockID int, cause error) *BuildAborted {
	return &BuildAborted{BlockID: blockID, Cause: cause}
}
