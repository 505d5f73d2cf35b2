package processor

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned, together with the partial result, when the
// caller cancels between chunks.
var ErrCancelled = errors.New("processing cancelled")

// ChunkRequestError reports a failed completion request. Partial holds the
// results of every chunk before Index, so the caller can resume from Index.
type ChunkRequestError struct {
	Index   int
	Total   int
	Partial []ChunkResult
	Err     error
}

func (e *ChunkRequestError) Error() string {
	return fmt.Sprintf("chunk %d/%d failed after %d completed: %v", e.Index+1, e.Total, len(e.Partial), e.Err)
}

func (e *ChunkRequestError) Unwrap() error {
	return e.Err
}
