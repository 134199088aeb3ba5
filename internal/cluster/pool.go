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

	"github.com/google/uuid"
)

// Pool owns the directory mapping locators to version chains, the
// pool-wide epoch counter, the live snapshot id set, and the per-locator
// side tables. All chains are owned exclusively by the pool; handles
// returned to operations are borrowed references scoped to the call.
type Pool struct {
	id   int64
	name string

	// mu is the directory lock. See the package documentation for the
	// two-tier discipline.
	mu sync.RWMutex

	files    map[Locator][]*File
	omaps    map[Locator]*omapStore
	xattrs   map[Locator]map[string][]byte
	watchers map[Locator]map[uuid.UUID]RemovalWatcher

	snapSeqs map[uint64]struct{}
	// snapSeq is the last minted snapshot id.
	snapSeq uint64
	epoch   uint64
}

// NewPool returns an empty pool.
func NewPool(id int64, name string) *Pool {
	return &Pool{
		id:       id,
		name:     name,
		files:    make(map[Locator][]*File),
		omaps:    make(map[Locator]*omapStore),
		xattrs:   make(map[Locator]map[string][]byte),
		watchers: make(map[Locator]map[uuid.UUID]RemovalWatcher),
		snapSeqs: make(map[uint64]struct{}),
	}
}

// ID returns the pool id.
func (p *Pool) ID() int64 { return p.id }

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Epoch returns the current pool epoch.
func (p *Pool) Epoch() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.epoch
}

// writeGuard is the capability handed out while the directory lock is
// held exclusively. It is the only way to resolve a mutable HEAD
// version, bump the epoch, or change pool structure, which keeps the
// directory-then-version lock order impossible to invert.
type writeGuard struct {
	p *Pool
}

func (p *Pool) lockWrite() writeGuard {
	p.mu.Lock()
	return writeGuard{p: p}
}

func (g writeGuard) unlock() {
	g.p.mu.Unlock()
}

// bumpEpoch advances the pool epoch and returns the new value for
// stamping onto the mutated version.
func (g writeGuard) bumpEpoch() uint64 {
	g.p.epoch++
	return g.p.epoch
}

// lookup resolves a version read-style while the exclusive lock is
// held, for write paths that need an existence check before resolving
// for write.
func (g writeGuard) lookup(loc Locator, snapID uint64) *File {
	return g.p.resolveRead(loc, snapID)
}

// resolveWrite returns the mutable HEAD for the locator, creating a
// fresh version or performing the copy-on-write clone as dictated by
// the snap context. It never returns nil. The per-object version
// counter is bumped on every resolution.
func (g writeGuard) resolveWrite(loc Locator, snapc SnapContext) *File {
	p := g.p

	chain := p.files[loc]
	var head *File
	if len(chain) > 0 {
		head = chain[len(chain)-1]
	}

	switch {
	case head == nil || !head.exists:
		head = newFile(snapc.Seq)
		p.files[loc] = append(p.files[loc], head)
	case len(snapc.Snaps) > 0 && head.snapID < snapc.Seq:
		// Record every pending snapshot id in (head.snapID, snapc.Seq]
		// against the about-to-be-retired HEAD, oldest first.
		for i := len(snapc.Snaps) - 1; i >= 0; i-- {
			if id := snapc.Snaps[i]; id > head.snapID && id <= snapc.Seq {
				head.snaps = append(head.snaps, id)
			}
		}
		head = head.cloneForWrite(snapc.Seq)
		p.files[loc] = append(p.files[loc], head)
	}

	head.objVer.Add(1)
	return head
}

// readGuard scopes a shared directory-lock hold to version lookup.
type readGuard struct {
	p *Pool
}

func (p *Pool) lockRead() readGuard {
	p.mu.RLock()
	return readGuard{p: p}
}

func (g readGuard) unlock() {
	g.p.mu.RUnlock()
}

// resolve returns the version answering snapID, or nil when the object
// is absent at that point in history.
func (g readGuard) resolve(loc Locator, snapID uint64) *File {
	return g.p.resolveRead(loc, snapID)
}

// resolveRead requires the directory lock in either mode.
func (p *Pool) resolveRead(loc Locator, snapID uint64) *File {
	chain, ok := p.files[loc]
	if !ok {
		return nil
	}
	head := chain[len(chain)-1]

	if snapID == NoSnap {
		if !head.exists {
			return nil
		}
		return head
	}

	// Newest to oldest: the first version written before the requested
	// snapshot is the answer.
	for i := len(chain) - 1; i >= 0; i-- {
		f := chain[i]
		if f.snapID < snapID {
			if !f.exists {
				return nil
			}
			return f
		}
	}
	return nil
}
