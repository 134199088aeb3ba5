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
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spin-stack/radosmem/internal/cluster"
)

// IoCtx is an I/O handle bound to one pool: it carries the target
// namespace, the read-snapshot pin, and the write SnapContext. Issue
// operations concurrently if you like, but reconfigure (SetNamespace,
// SetReadSnap, SetWriteContext) only before sharing; Dup gives each
// goroutine an independent handle.
type IoCtx struct {
	client    *Client
	pool      *cluster.Pool
	namespace string

	// readSnap pins reads to a snapshot; NoSnap reads the live state.
	// A pinned handle rejects every mutation.
	readSnap uint64
	snapc    SnapContext
}

// Dup returns an independent copy of the handle sharing the same pool
// and client.
func (io *IoCtx) Dup() *IoCtx {
	dup := *io
	dup.snapc.Snaps = append([]uint64(nil), io.snapc.Snaps...)
	return &dup
}

// Pool returns the pool name.
func (io *IoCtx) Pool() string { return io.pool.Name() }

// PoolID returns the pool id.
func (io *IoCtx) PoolID() int64 { return io.pool.ID() }

// Epoch returns the pool's current epoch, the opaque token that
// strictly increases with every mutating operation.
func (io *IoCtx) Epoch() uint64 { return io.pool.Epoch() }

// Namespace returns the handle's object namespace.
func (io *IoCtx) Namespace() string { return io.namespace }

// SetNamespace switches the handle's object namespace.
func (io *IoCtx) SetNamespace(ns string) { io.namespace = ns }

// ReadSnap returns the read-snapshot pin, NoSnap when live.
func (io *IoCtx) ReadSnap() uint64 { return io.readSnap }

// SetReadSnap pins reads to a snapshot id; NoSnap restores live reads.
func (io *IoCtx) SetReadSnap(id uint64) { io.readSnap = id }

// WriteContext returns the SnapContext applied to writes.
func (io *IoCtx) WriteContext() SnapContext { return io.snapc }

// SetWriteContext installs the SnapContext applied to writes. The
// context is validated before any of it becomes visible.
func (io *IoCtx) SetWriteContext(snapc SnapContext) error {
	if err := snapc.Validate(); err != nil {
		return err
	}
	io.snapc = SnapContext{Seq: snapc.Seq, Snaps: append([]uint64(nil), snapc.Snaps...)}
	return nil
}

func (io *IoCtx) locator(oid string) Locator {
	return Locator{Namespace: io.namespace, ObjectID: oid}
}

// check runs the preconditions every entry point applies before taking
// any lock: the fencing check, and for mutations the read-only pin.
func (io *IoCtx) check(write bool) error {
	if write && io.readSnap != NoSnap {
		return fmt.Errorf("handle pinned to snapshot %d: %w", io.readSnap, ErrSnapshotReadOnly)
	}
	if io.client.Blocklisted() {
		return fmt.Errorf("client %s: %w", io.client.id, ErrBlocklisted)
	}
	return nil
}

// Create makes the object exist; with exclusive set it fails on a live
// object with an already-exists error.
func (io *IoCtx) Create(ctx context.Context, oid string, exclusive bool) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.Create(ctx, io.locator(oid), exclusive, io.snapc)
}

// Write overwrites [off, off+len(data)), zero-extending the object.
func (io *IoCtx) Write(ctx context.Context, oid string, data []byte, off uint64) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.Write(ctx, io.locator(oid), data, off, io.snapc)
}

// WriteFull replaces the object data wholesale.
func (io *IoCtx) WriteFull(ctx context.Context, oid string, data []byte) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.WriteFull(ctx, io.locator(oid), data, io.snapc)
}

// Append writes data at the current end of the object.
func (io *IoCtx) Append(ctx context.Context, oid string, data []byte) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.Append(ctx, io.locator(oid), data, io.snapc)
}

// WriteSame tiles data across [off, off+writeLen); writeLen must be a
// positive multiple of len(data).
func (io *IoCtx) WriteSame(ctx context.Context, oid string, data []byte, writeLen, off uint64) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.WriteSame(ctx, io.locator(oid), data, writeLen, off, io.snapc)
}

// Truncate resizes the object, zero-filling growth.
func (io *IoCtx) Truncate(ctx context.Context, oid string, size uint64) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.Truncate(ctx, io.locator(oid), size, io.snapc)
}

// Zero clears [off, off+n), truncating when the range reaches the end.
func (io *IoCtx) Zero(ctx context.Context, oid string, off, n uint64) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.Zero(ctx, io.locator(oid), off, n, io.snapc)
}

// Remove deletes the live object.
func (io *IoCtx) Remove(ctx context.Context, oid string) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.Remove(ctx, io.locator(oid), io.snapc)
}

// Read returns a copy of [off, off+n) at the handle's read snapshot,
// plus the object version counter. n == 0 reads to the end.
func (io *IoCtx) Read(ctx context.Context, oid string, off, n uint64) ([]byte, uint64, error) {
	if err := io.check(false); err != nil {
		return nil, 0, err
	}
	return io.pool.Read(ctx, io.locator(oid), off, n, io.readSnap)
}

// SparseRead reads like Read and reports the extents holding the
// returned bytes.
func (io *IoCtx) SparseRead(ctx context.Context, oid string, off, n uint64) ([]Extent, []byte, error) {
	if err := io.check(false); err != nil {
		return nil, nil, err
	}
	return io.pool.SparseRead(ctx, io.locator(oid), off, n, io.readSnap)
}

// CompareExtent compares cmp to the stored bytes at off; the first
// difference comes back as an ExtentMismatchError.
func (io *IoCtx) CompareExtent(ctx context.Context, oid string, off uint64, cmp []byte) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.CompareExtent(ctx, io.locator(oid), off, cmp, io.readSnap)
}

// Stat returns the live object's size and modify time.
func (io *IoCtx) Stat(ctx context.Context, oid string) (ObjectStat, error) {
	if err := io.check(false); err != nil {
		return ObjectStat{}, err
	}
	return io.pool.Stat(ctx, io.locator(oid))
}

// SetModTime overwrites the live object's modify time.
func (io *IoCtx) SetModTime(ctx context.Context, oid string, t time.Time) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.SetModTime(ctx, io.locator(oid), t, io.snapc)
}

// SetAllocHint passes size hints through; the object springs into
// existence but nothing else changes.
func (io *IoCtx) SetAllocHint(ctx context.Context, oid string, expectedObjectSize, expectedWriteSize uint64) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.SetAllocHint(ctx, io.locator(oid), expectedObjectSize, expectedWriteSize, io.snapc)
}

// AssertExists fails with a not-found error unless the object is
// present at the handle's read snapshot.
func (io *IoCtx) AssertExists(ctx context.Context, oid string) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.AssertExists(ctx, io.locator(oid), io.readSnap)
}

// AssertVersion fails unless ver matches the live object version
// counter, with ErrVersionTooLow / ErrVersionTooHigh telling the sides
// apart.
func (io *IoCtx) AssertVersion(ctx context.Context, oid string, ver uint64) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.AssertVersion(ctx, io.locator(oid), ver)
}

// CurrentVersion returns the epoch stamped by the object's last
// mutation.
func (io *IoCtx) CurrentVersion(ctx context.Context, oid string) (uint64, error) {
	if err := io.check(false); err != nil {
		return 0, err
	}
	return io.pool.CurrentVersion(ctx, io.locator(oid))
}

// ObjectVersion returns the live object's per-object version counter.
func (io *IoCtx) ObjectVersion(ctx context.Context, oid string) (uint64, error) {
	if err := io.check(false); err != nil {
		return 0, err
	}
	return io.pool.ObjectVersion(ctx, io.locator(oid))
}

// OmapSet merges entries into the object's OMAP.
func (io *IoCtx) OmapSet(ctx context.Context, oid string, entries map[string][]byte) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.OmapSet(ctx, io.locator(oid), entries, io.snapc)
}

// OmapGetByKeys returns the present subset of the requested keys.
func (io *IoCtx) OmapGetByKeys(ctx context.Context, oid string, keys []string) (map[string][]byte, error) {
	if err := io.check(false); err != nil {
		return nil, err
	}
	return io.pool.OmapGetByKeys(ctx, io.locator(oid), keys)
}

// OmapGetRange pages through the OMAP in key order starting strictly
// after startAfter, filtered by prefix, up to maxReturn entries; more
// reports whether entries remain.
func (io *IoCtx) OmapGetRange(ctx context.Context, oid, startAfter, prefix string, maxReturn uint64) ([]OmapEntry, bool, error) {
	if err := io.check(false); err != nil {
		return nil, false, err
	}
	return io.pool.OmapGetRange(ctx, io.locator(oid), startAfter, prefix, maxReturn)
}

// OmapRemoveKeys deletes the given keys.
func (io *IoCtx) OmapRemoveKeys(ctx context.Context, oid string, keys []string) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.OmapRemoveKeys(ctx, io.locator(oid), keys, io.snapc)
}

// OmapRemoveRange deletes keys in [begin, end).
func (io *IoCtx) OmapRemoveRange(ctx context.Context, oid, begin, end string) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.OmapRemoveRange(ctx, io.locator(oid), begin, end, io.snapc)
}

// OmapClear erases all OMAP entries.
func (io *IoCtx) OmapClear(ctx context.Context, oid string) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.OmapClear(ctx, io.locator(oid), io.snapc)
}

// OmapSetHeader replaces the OMAP header blob.
func (io *IoCtx) OmapSetHeader(ctx context.Context, oid string, header []byte) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.OmapSetHeader(ctx, io.locator(oid), header, io.snapc)
}

// OmapGetHeader returns a copy of the OMAP header blob.
func (io *IoCtx) OmapGetHeader(ctx context.Context, oid string) ([]byte, error) {
	if err := io.check(false); err != nil {
		return nil, err
	}
	return io.pool.OmapGetHeader(ctx, io.locator(oid))
}

// GetXattrs returns a copy of the object's attribute set.
func (io *IoCtx) GetXattrs(ctx context.Context, oid string) (map[string][]byte, error) {
	if err := io.check(false); err != nil {
		return nil, err
	}
	return io.pool.XattrGetAll(ctx, io.locator(oid))
}

// SetXattr stores one attribute.
func (io *IoCtx) SetXattr(ctx context.Context, oid, name string, value []byte) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.XattrSet(ctx, io.locator(oid), name, value)
}

// RemoveXattr deletes one attribute.
func (io *IoCtx) RemoveXattr(ctx context.Context, oid, name string) error {
	if err := io.check(true); err != nil {
		return err
	}
	return io.pool.XattrRemove(ctx, io.locator(oid), name)
}

// CompareXattr evaluates "operand op stored" on raw bytes; a false
// predicate returns ErrPredicateFalse.
func (io *IoCtx) CompareXattr(ctx context.Context, oid, name string, op CompareOp, operand []byte) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.CompareXattrBytes(ctx, io.locator(oid), name, op, operand)
}

// CompareXattrUint evaluates "operand op stored" with the stored value
// parsed as a base-10 integer.
func (io *IoCtx) CompareXattrUint(ctx context.Context, oid, name string, op CompareOp, operand uint64) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.CompareXattrUint(ctx, io.locator(oid), name, op, operand)
}

// CreateSnapshot mints the next pool-wide snapshot id.
func (io *IoCtx) CreateSnapshot(ctx context.Context) (uint64, error) {
	if err := io.check(false); err != nil {
		return 0, err
	}
	return io.pool.CreateSnapshot(ctx)
}

// RemoveSnapshot retires a snapshot id.
func (io *IoCtx) RemoveSnapshot(ctx context.Context, id uint64) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.RemoveSnapshot(ctx, id)
}

// RollbackSnapshot restores the object to the newest version predating
// the snapshot id.
func (io *IoCtx) RollbackSnapshot(ctx context.Context, oid string, id uint64) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.Rollback(ctx, io.locator(oid), id)
}

// ListSnaps enumerates the object's clones plus the HEAD descriptor.
func (io *IoCtx) ListSnaps(ctx context.Context, oid string) (SnapSet, error) {
	if err := io.check(false); err != nil {
		return SnapSet{}, err
	}
	return io.pool.ListSnaps(ctx, io.locator(oid))
}

// WatchRemoval registers a watcher fired when the live object is
// removed, returning the handle for UnwatchRemoval.
func (io *IoCtx) WatchRemoval(ctx context.Context, oid string, w RemovalWatcher) (uuid.UUID, error) {
	if err := io.check(false); err != nil {
		return uuid.Nil, err
	}
	return io.pool.WatchRemoval(ctx, io.locator(oid), w)
}

// UnwatchRemoval removes a previously registered watcher.
func (io *IoCtx) UnwatchRemoval(ctx context.Context, oid string, handle uuid.UUID) error {
	if err := io.check(false); err != nil {
		return err
	}
	return io.pool.UnwatchRemoval(ctx, io.locator(oid), handle)
}
