package cluster

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cluster-specific failure modes that have no
// counterpart in errdefs. Absence, duplicate-create, and invalid
// argument conditions wrap the errdefs sentinels directly at the call
// sites instead.
var (
	// ErrBlocklisted is returned when the calling client session has
	// been administratively fenced. It is checked before any lock is
	// taken and is always fatal to the operation.
	ErrBlocklisted = errors.New("client is blocklisted")

	// ErrSnapshotReadOnly is returned when a mutating operation arrives
	// on a handle pinned to a historical snapshot view.
	ErrSnapshotReadOnly = errors.New("snapshot handle is read-only")

	// ErrNoData is returned when an attribute predicate targets an
	// absent attribute or an object with no attribute set.
	ErrNoData = errors.New("no data available")

	// ErrPredicateFalse is the soft outcome of a comparison predicate
	// that evaluated false. It is the mechanism by which conditional
	// operations short-circuit, not a system fault.
	ErrPredicateFalse = errors.New("comparison predicate evaluated false")

	// ErrVersionTooLow and ErrVersionTooHigh distinguish the two sides
	// of a failed optimistic version assertion.
	ErrVersionTooLow  = errors.New("asserted version below object version")
	ErrVersionTooHigh = errors.New("asserted version above object version")
)

// ExtentMismatchError reports the first differing byte position found
// by a CompareExtent operation.
type ExtentMismatchError struct {
	// Offset is the index within the compared buffer of the first
	// mismatching byte.
	Offset uint64
}

func (e *ExtentMismatchError) Error() string {
	return fmt.Sprintf("extent compare mismatch at offset %d", e.Offset)
}

// MismatchOffset extracts the mismatch position from a CompareExtent
// error. The second return is false if err is not a mismatch.
func MismatchOffset(err error) (uint64, bool) {
	var e *ExtentMismatchError
	if errors.As(err, &e) {
		return e.Offset, true
	}
	return 0, false
}
