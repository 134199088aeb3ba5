// Package cluster implements the in-memory pool state backing the
// radosmem object store: per-pool object version chains, copy-on-write
// snapshot handling, OMAP and xattr side tables, and the pool-wide
// epoch counter.
//
// # Version Chains
//
// Each locator (namespace, object id) maps to an ordered chain of
// versions. The last chain element is HEAD, the live state; earlier
// elements are retired clones frozen at a snapshot id. Chains are
// strictly ascending by snapshot id. A write arriving under a
// SnapContext whose sequence exceeds HEAD's snapshot id retires HEAD
// and clones it copy-on-write; the new HEAD starts with its full data
// length marked as overlapping the retired version.
//
// # Lock Discipline
//
// Two tiers, always acquired directory lock first:
//
//   - The pool directory lock guards the locator map and all structural
//     mutation: chain growth, entry erasure, the snapshot id set, and
//     the epoch counter. Shared for lookups, exclusive for writes.
//   - Each version carries its own lock guarding only that version's
//     data, existence flag, modify time, and epoch stamp.
//
// Mutable HEAD versions can only be resolved through a writeGuard, the
// capability handed out while the directory lock is held exclusively.
// Read paths resolve their target under the shared directory lock,
// release it, then take the version lock shared. Operations on
// different locators therefore only contend for the brief directory
// hold.
//
// # Epochs and Object Versions
//
// The pool epoch strictly increases with every mutating operation and
// is stamped onto the mutated version; callers see it as an opaque
// ordering token. Independently, each object carries a monotonic
// per-object version counter bumped on every write resolution, used by
// the optimistic AssertVersion predicate.
//
// Side tables (OMAP stores, extended attributes, removal watchers) are
// keyed by locator and are not snapshotted; only byte data and overlap
// bookkeeping participate in copy-on-write.
package cluster
