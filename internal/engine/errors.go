package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/petadopt/internal/ir"
)

// ErrStopped is returned by Submit once the environment stopped accepting
// requests, and completes any handle that was queued but never applied.
var ErrStopped = errors.New("environment stopped")

// rejected reports a request the environment declined before it was
// queued. The reason from the underlying registry error is carried up so
// callers can show it verbatim.
func rejected(message string, err error) *ir.Error {
	return &ir.Error{
		Code:    ir.ErrCodeEnvironmentRejected,
		Message: message,
		Reason:  ir.ReasonOf(err),
		Err:     err,
	}
}

// DivergenceError is returned by Open when re-applying the journal does not
// reproduce a recorded receipt.
//
// A divergence means the journal was written by an incompatible registry
// version or was edited by hand. The environment refuses to start rather
// than serve state that disagrees with its own history.
type DivergenceError struct {
	// RequestID identifies the first journal entry that did not reproduce.
	RequestID string

	// Seq is the entry's position in the journal.
	Seq int64

	// Recorded is the receipt read from the journal.
	Recorded ir.Receipt

	// Replayed is the receipt produced by re-applying the request.
	Replayed ir.Receipt
}

// Error implements the error interface.
func (e *DivergenceError) Error() string {
	return fmt.Sprintf("journal diverged at seq %d (request=%s): recorded %s/%s, replayed %s/%s",
		e.Seq, e.RequestID,
		e.Recorded.Status, e.Recorded.Code,
		e.Replayed.Status, e.Replayed.Code,
	)
}

// IsDivergence returns true if err is a journal divergence.
// Uses errors.As to handle wrapped errors.
func IsDivergence(err error) bool {
	var de *DivergenceError
	return errors.As(err, &de)
}
