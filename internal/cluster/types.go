package cluster

import (
	"fmt"
	"math"
	"time"

	"github.com/containerd/errdefs"

	"github.com/spin-stack/radosmem/internal/interval"
)

// NoSnap is the sentinel snapshot id meaning "no snapshot": the live
// HEAD state when reading, and the HEAD position marker on a chain.
const NoSnap uint64 = math.MaxUint64 - 1

// SnapHead is the clone id reported for the live HEAD descriptor by
// ListSnaps.
const SnapHead = NoSnap

// Locator identifies one logical object within a pool. Both fields are
// opaque, case-sensitive strings; the pair is stable for the object's
// lifetime.
type Locator struct {
	Namespace string
	ObjectID  string
}

func (l Locator) String() string {
	if l.Namespace == "" {
		return l.ObjectID
	}
	return l.Namespace + "/" + l.ObjectID
}

// SnapContext is the writer-supplied snapshot context driving
// copy-on-write: the sequence number plus the ids of snapshots the
// writer believes are pending, ordered descending.
type SnapContext struct {
	Seq   uint64
	Snaps []uint64
}

// Validate rejects a context whose ids are not strictly decreasing,
// exceed the sequence, or contain the NoSnap sentinel.
func (sc SnapContext) Validate() error {
	if sc.Seq == NoSnap {
		return fmt.Errorf("snap context sequence is the no-snapshot sentinel: %w", errdefs.ErrInvalidArgument)
	}
	for i, id := range sc.Snaps {
		switch {
		case id == NoSnap:
			return fmt.Errorf("snap context contains the no-snapshot sentinel: %w", errdefs.ErrInvalidArgument)
		case id > sc.Seq:
			return fmt.Errorf("snap id %d exceeds sequence %d: %w", id, sc.Seq, errdefs.ErrInvalidArgument)
		case i > 0 && id >= sc.Snaps[i-1]:
			return fmt.Errorf("snap ids not strictly decreasing at %d: %w", id, errdefs.ErrInvalidArgument)
		}
	}
	return nil
}

// Stat is the result of a stat operation on the live object.
type Stat struct {
	Size    uint64
	ModTime time.Time
}

// CloneInfo describes one retired version in a ListSnaps result.
type CloneInfo struct {
	// ID is the clone's snapshot id, or SnapHead for the live HEAD
	// descriptor.
	ID uint64
	// Snaps are the snapshot ids for which this clone is the answer.
	Snaps []uint64
	// Overlap are the byte ranges shared bit-identically with the next
	// version in the chain.
	Overlap []interval.Extent
	// Size is the clone's data length in bytes.
	Size uint64
}

// SnapSet is the result of enumerating an object's clones.
type SnapSet struct {
	Seq    uint64
	Clones []CloneInfo
}

// OmapEntry is one key/value pair of an ordered OMAP page.
type OmapEntry struct {
	Key   string
	Value []byte
}

// CompareOp selects the comparison applied by xattr predicates. The
// predicate evaluates "operand OP stored-value".
type CompareOp uint8

const (
	CompareEq CompareOp = iota + 1
	CompareNe
	CompareGt
	CompareGte
	CompareLt
	CompareLte
)

func (op CompareOp) String() string {
	switch op {
	case CompareEq:
		return "eq"
	case CompareNe:
		return "ne"
	case CompareGt:
		return "gt"
	case CompareGte:
		return "gte"
	case CompareLt:
		return "lt"
	case CompareLte:
		return "lte"
	default:
		return "unknown"
	}
}

// evaluate applies op to a three-way comparison result (as returned by
// bytes.Compare or equivalent): negative for operand < stored, zero for
// equal, positive for operand > stored.
func (op CompareOp) evaluate(cmp int) (bool, error) {
	switch op {
	case CompareEq:
		return cmp == 0, nil
	case CompareNe:
		return cmp != 0, nil
	case CompareGt:
		return cmp > 0, nil
	case CompareGte:
		return cmp >= 0, nil
	case CompareLt:
		return cmp < 0, nil
	case CompareLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %d: %w", op, errdefs.ErrInvalidArgument)
	}
}
