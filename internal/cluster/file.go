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
	"sync"
	"sync/atomic"
	"time"

	"github.com/spin-stack/radosmem/internal/interval"
)

// File is one point-in-time version of an object. A File is mutable
// only while it is the chain's HEAD; once superseded by a copy-on-write
// clone it is logically frozen.
type File struct {
	// mu is the version lock. It guards data, exists, mtime and the
	// epoch stamp. It is always taken after the pool directory lock,
	// never before.
	mu sync.RWMutex

	data   []byte
	exists bool
	mtime  time.Time
	// epoch is the pool epoch stamped by the last mutation of this
	// version.
	epoch uint64

	// snapID is NoSnap while this version is the live HEAD of an
	// unsnapshotted object, otherwise the snapshot sequence it was
	// written under. Guarded by the directory lock.
	snapID uint64
	// snaps are the snapshot ids for which this version is the answer,
	// recorded when the version is retired. Guarded by the directory
	// lock.
	snaps []uint64
	// snapOverlap tracks the byte ranges still bit-identical to the
	// previous version. Guarded by mu.
	snapOverlap interval.Set

	// objVer is the per-object monotonic version counter. Written under
	// the exclusive directory lock, read under the version lock, hence
	// atomic.
	objVer atomic.Uint64
}

func newFile(seq uint64) *File {
	return &File{
		exists: true,
		snapID: seq,
		mtime:  time.Now(),
	}
}

// cloneForWrite deep-copies the version into a fresh HEAD stamped with
// the given snapshot sequence. The clone starts with its whole data
// length marked as overlapping the retired version and answers no
// snapshot ids yet. Requires the exclusive directory lock.
func (f *File) cloneForWrite(seq uint64) *File {
	n := &File{
		data:   append([]byte(nil), f.data...),
		exists: f.exists,
		mtime:  time.Now(),
		snapID: seq,
	}
	if len(f.data) > 0 {
		n.snapOverlap.Insert(0, uint64(len(f.data)))
	}
	n.objVer.Store(f.objVer.Load())
	return n
}

// size returns the data length. Callers hold f.mu.
func (f *File) size() uint64 {
	return uint64(len(f.data))
}

// ensureLen zero-extends buf to at least n bytes.
func ensureLen(buf []byte, n uint64) []byte {
	if uint64(len(buf)) >= n {
		return buf
	}
	return append(buf, make([]byte, n-uint64(len(buf)))...)
}

// clipRange clips [off, off+n) to a buffer of size total. Reading past
// the end yields zero bytes, never an error.
func clipRange(off, n, total uint64) uint64 {
	if off >= total {
		return 0
	}
	if off+n > total {
		return total - off
	}
	return n
}
