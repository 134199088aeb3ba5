/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package rados

import (
	"github.com/spin-stack/radosmem/internal/cluster"
)

// Cluster-specific sentinels. Absence, duplicate-create, and
// invalid-argument failures wrap the containerd errdefs sentinels
// instead; classify those with errdefs.IsNotFound, IsAlreadyExists and
// IsInvalidArgument.
var (
	// ErrBlocklisted: the calling client session has been
	// administratively fenced. Checked before any lock acquisition.
	ErrBlocklisted = cluster.ErrBlocklisted

	// ErrSnapshotReadOnly: a mutating operation arrived on a handle
	// pinned to a historical snapshot view.
	ErrSnapshotReadOnly = cluster.ErrSnapshotReadOnly

	// ErrNoData: an attribute predicate targeted an absent attribute.
	ErrNoData = cluster.ErrNoData

	// ErrPredicateFalse: a comparison predicate evaluated false. A soft
	// outcome for conditional operations, not a system fault.
	ErrPredicateFalse = cluster.ErrPredicateFalse

	// ErrVersionTooLow / ErrVersionTooHigh: the two sides of a failed
	// AssertVersion.
	ErrVersionTooLow  = cluster.ErrVersionTooLow
	ErrVersionTooHigh = cluster.ErrVersionTooHigh
)

// ExtentMismatchError reports the first differing byte position found
// by CompareExtent.
type ExtentMismatchError = cluster.ExtentMismatchError

// MismatchOffset extracts the mismatch position from a CompareExtent
// error; the second return is false if err is not a mismatch.
func MismatchOffset(err error) (uint64, bool) {
	return cluster.MismatchOffset(err)
}
