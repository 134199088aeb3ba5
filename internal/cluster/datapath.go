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

package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/spin-stack/radosmem/internal/cleanup"
	"github.com/spin-stack/radosmem/internal/interval"
)

// Create makes the object exist at HEAD. With exclusive set it fails
// when a live object is already present; otherwise an existing object
// is left untouched.
func (p *Pool) Create(ctx context.Context, loc Locator, exclusive bool, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("create exclusive=%v snapc=%v", exclusive, snapc)

	g := p.lockWrite()
	defer g.unlock()

	if head := g.lookup(loc, NoSnap); head != nil {
		if exclusive {
			return fmt.Errorf("object %q: %w", loc, errdefs.ErrAlreadyExists)
		}
		return nil
	}

	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()

	file.mu.Lock()
	file.epoch = epoch
	file.mu.Unlock()
	return nil
}

// Write overwrites [off, off+len(data)) of the live object,
// zero-extending it as needed. The written range is no longer counted
// as overlapping the prior snapshot.
func (p *Pool) Write(ctx context.Context, loc Locator, data []byte, off uint64, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("write extent=%d~%d snapc=%v", off, len(data), snapc)

	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	defer file.mu.Unlock()

	n := uint64(len(data))
	if n > 0 {
		file.snapOverlap.SubtractRange(off, n)
	}
	file.data = ensureLen(file.data, off+n)
	copy(file.data[off:], data)
	file.epoch = epoch
	return nil
}

// WriteFull replaces the object data wholesale.
func (p *Pool) WriteFull(ctx context.Context, loc Locator, data []byte, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("write-full length=%d snapc=%v", len(data), snapc)

	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	defer file.mu.Unlock()

	// Wholesale replacement shares nothing with the prior version, even
	// when the new data is shorter.
	file.snapOverlap = interval.Set{}
	file.data = append(file.data[:0:0], data...)
	file.epoch = epoch
	return nil
}

// Append writes data at the current end of the object.
func (p *Pool) Append(ctx context.Context, loc Locator, data []byte, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("append length=%d snapc=%v", len(data), snapc)

	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	defer file.mu.Unlock()

	file.data = append(file.data, data...)
	file.epoch = epoch
	return nil
}

// WriteSame tiles data across [off, off+writeLen). writeLen must be a
// positive multiple of len(data).
func (p *Pool) WriteSame(ctx context.Context, loc Locator, data []byte, writeLen, off uint64, snapc SnapContext) error {
	if len(data) == 0 || writeLen == 0 || writeLen%uint64(len(data)) != 0 {
		return fmt.Errorf("write-same length %d does not tile %d bytes: %w", writeLen, len(data), errdefs.ErrInvalidArgument)
	}

	log.G(ctx).WithField("object", loc.String()).Debugf("write-same extent=%d~%d snapc=%v", off, writeLen, snapc)

	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	defer file.mu.Unlock()

	file.snapOverlap.SubtractRange(off, writeLen)
	file.data = ensureLen(file.data, off+writeLen)
	for n := writeLen; n > 0; n -= uint64(len(data)) {
		copy(file.data[off:], data)
		off += uint64(len(data))
	}
	file.epoch = epoch
	return nil
}

// Truncate resizes the object. Shrinking drops trailing bytes; growing
// zero-fills the tail. Either way the changed range stops counting as
// overlapping the prior snapshot.
func (p *Pool) Truncate(ctx context.Context, loc Locator, size uint64, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("truncate size=%d snapc=%v", size, snapc)

	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	defer file.mu.Unlock()

	switch cur := file.size(); {
	case cur > size:
		file.data = file.data[:size:size]
		file.snapOverlap.SubtractRange(size, cur-size)
	case cur < size:
		file.data = ensureLen(file.data, size)
		file.snapOverlap.SubtractRange(cur, size-cur)
	}
	file.epoch = epoch
	return nil
}

// Zero clears [off, off+n). When the range reaches the current end of
// the object it is equivalent to truncation, mirroring the OSD rule;
// zeroing a missing object is a no-op.
func (p *Pool) Zero(ctx context.Context, loc Locator, off, n uint64, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("zero extent=%d~%d snapc=%v", off, n, snapc)

	truncateRedirect := false
	g := p.lockWrite()
	if g.lookup(loc, NoSnap) == nil {
		g.unlock()
		return nil
	}
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()

	file.mu.Lock()
	if n > 0 && off+n >= file.size() {
		truncateRedirect = true
	}
	file.epoch = epoch
	file.mu.Unlock()
	g.unlock()

	if truncateRedirect {
		return p.Truncate(ctx, loc, off, snapc)
	}
	return p.Write(ctx, loc, make([]byte, n), off, snapc)
}

// Remove deletes the live object. Removing the sole version erases the
// directory entry together with the object's OMAP store and attribute
// set; otherwise a non-existent HEAD tombstone remains for snapshot
// readers. Removal watchers registered on the locator fire once the
// directory lock is released.
func (p *Pool) Remove(ctx context.Context, loc Locator, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("remove snapc=%v", snapc)

	var notify []RemovalWatcher

	g := p.lockWrite()
	if g.lookup(loc, NoSnap) == nil {
		g.unlock()
		return fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}
	file := g.resolveWrite(loc, snapc)

	file.mu.Lock()
	file.exists = false
	file.mu.Unlock()

	chain := p.files[loc]
	if chain[len(chain)-1] == file {
		for _, w := range p.watchers[loc] {
			notify = append(notify, w)
		}
		delete(p.watchers, loc)
	}
	if len(chain) == 1 {
		delete(p.files, loc)
		delete(p.omaps, loc)
		delete(p.xattrs, loc)
	}
	g.bumpEpoch()
	g.unlock()

	if len(notify) > 0 {
		cleanup.Do(ctx, func(ctx context.Context) {
			for _, w := range notify {
				w.HandleRemoved(ctx, loc)
			}
		})
	}
	return nil
}

// Read returns an independent copy of [off, off+n) of the version
// answering snapID, along with the object version counter. n == 0 means
// read to the end; ranges past the end clip to zero bytes.
func (p *Pool) Read(ctx context.Context, loc Locator, off, n uint64, snapID uint64) ([]byte, uint64, error) {
	g := p.lockRead()
	file := g.resolve(loc, snapID)
	g.unlock()
	if file == nil {
		return nil, 0, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	file.mu.RLock()
	defer file.mu.RUnlock()

	if n == 0 {
		n = file.size()
	}
	n = clipRange(off, n, file.size())
	buf := make([]byte, n)
	if n > 0 {
		copy(buf, file.data[off:off+n])
	}
	return buf, file.objVer.Load(), nil
}

// SparseRead reads like Read but also reports the extents holding the
// returned bytes. No true sparse tracking exists: any non-empty result
// is a single contiguous extent.
func (p *Pool) SparseRead(ctx context.Context, loc Locator, off, n uint64, snapID uint64) ([]interval.Extent, []byte, error) {
	g := p.lockRead()
	file := g.resolve(loc, snapID)
	g.unlock()
	if file == nil {
		return nil, nil, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	file.mu.RLock()
	defer file.mu.RUnlock()

	n = clipRange(off, n, file.size())
	if n == 0 {
		return nil, nil, nil
	}
	buf := make([]byte, n)
	copy(buf, file.data[off:off+n])
	return []interval.Extent{{Off: off, Len: n}}, buf, nil
}

// CompareExtent compares cmp against the stored bytes at off for the
// version answering snapID. A missing object compares as all zeroes, as
// do stored bytes past the end of the object. The first difference is
// reported as an ExtentMismatchError carrying its index.
func (p *Pool) CompareExtent(ctx context.Context, loc Locator, off uint64, cmp []byte, snapID uint64) error {
	g := p.lockRead()
	file := g.resolve(loc, snapID)
	g.unlock()

	var stored []byte
	if file != nil {
		file.mu.RLock()
		if n := clipRange(off, uint64(len(cmp)), file.size()); n > 0 {
			stored = make([]byte, n)
			copy(stored, file.data[off:off+n])
		}
		file.mu.RUnlock()
	}

	for i := range cmp {
		var b byte
		if i < len(stored) {
			b = stored[i]
		}
		if cmp[i] != b {
			return &ExtentMismatchError{Offset: uint64(i)}
		}
	}
	return nil
}

// Stat returns the live object's size and modify time.
func (p *Pool) Stat(ctx context.Context, loc Locator) (Stat, error) {
	g := p.lockRead()
	file := g.resolve(loc, NoSnap)
	g.unlock()
	if file == nil {
		return Stat{}, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	file.mu.RLock()
	defer file.mu.RUnlock()
	return Stat{Size: file.size(), ModTime: file.mtime}, nil
}

// SetModTime overwrites the live object's modify time, resolving for
// write first so the usual copy-on-write rules apply.
func (p *Pool) SetModTime(ctx context.Context, loc Locator, t time.Time, snapc SnapContext) error {
	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	defer file.mu.Unlock()
	file.mtime = t
	file.epoch = epoch
	return nil
}

// SetAllocHint resolves the write version so the object springs into
// existence, but hints change nothing: no epoch is consumed.
func (p *Pool) SetAllocHint(ctx context.Context, loc Locator, expectedObjectSize, expectedWriteSize uint64, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("alloc hint object=%d write=%d", expectedObjectSize, expectedWriteSize)

	g := p.lockWrite()
	g.resolveWrite(loc, snapc)
	g.unlock()
	return nil
}

// AssertExists fails with not-found unless the object is present at
// the given snapshot.
func (p *Pool) AssertExists(ctx context.Context, loc Locator, snapID uint64) error {
	g := p.lockRead()
	file := g.resolve(loc, snapID)
	g.unlock()
	if file == nil {
		return fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}
	return nil
}

// AssertVersion fails unless ver equals the live object's version
// counter, distinguishing "too low" from "too high".
func (p *Pool) AssertVersion(ctx context.Context, loc Locator, ver uint64) error {
	g := p.lockRead()
	file := g.resolve(loc, NoSnap)
	g.unlock()
	if file == nil {
		return fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	cur := file.objVer.Load()
	switch {
	case ver < cur:
		return fmt.Errorf("object %q at version %d, asserted %d: %w", loc, cur, ver, ErrVersionTooLow)
	case ver > cur:
		return fmt.Errorf("object %q at version %d, asserted %d: %w", loc, cur, ver, ErrVersionTooHigh)
	}
	return nil
}

// CurrentVersion returns the epoch stamped by the live object's last
// mutation, the opaque token callers use for optimistic ordering.
func (p *Pool) CurrentVersion(ctx context.Context, loc Locator) (uint64, error) {
	g := p.lockRead()
	file := g.resolve(loc, NoSnap)
	g.unlock()
	if file == nil {
		return 0, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.epoch, nil
}

// ObjectVersion returns the live object's per-object version counter.
func (p *Pool) ObjectVersion(ctx context.Context, loc Locator) (uint64, error) {
	g := p.lockRead()
	file := g.resolve(loc, NoSnap)
	g.unlock()
	if file == nil {
		return 0, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}
	return file.objVer.Load(), nil
}
