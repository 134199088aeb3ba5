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

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// CreateSnapshot mints the next pool-wide snapshot id and records it in
// the live set.
func (p *Pool) CreateSnapshot(ctx context.Context) (uint64, error) {
	g := p.lockWrite()
	defer g.unlock()

	p.snapSeq++
	id := p.snapSeq
	p.snapSeqs[id] = struct{}{}
	g.bumpEpoch()

	log.G(ctx).WithField("pool", p.name).Debugf("created snapshot %d", id)
	return id, nil
}

// RemoveSnapshot retires a snapshot id. Clone entries frozen at the id
// are not rewritten; they remain until naturally superseded.
func (p *Pool) RemoveSnapshot(ctx context.Context, id uint64) error {
	g := p.lockWrite()
	defer g.unlock()

	if _, ok := p.snapSeqs[id]; !ok {
		return fmt.Errorf("snapshot %d: %w", id, errdefs.ErrNotFound)
	}
	delete(p.snapSeqs, id)
	g.bumpEpoch()

	log.G(ctx).WithField("pool", p.name).Debugf("removed snapshot %d", id)
	return nil
}

// SnapshotExists reports whether id is in the live snapshot set.
func (p *Pool) SnapshotExists(id uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.snapSeqs[id]
	return ok
}

// Rollback restores the object to the newest version predating snapID.
// The target already being HEAD is a no-op; HEAD exactly one version
// above the target is dropped so the target becomes HEAD again; any
// further distance clones the target's state into a replacement HEAD.
func (p *Pool) Rollback(ctx context.Context, loc Locator, snapID uint64) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("rollback to snapshot %d", snapID)

	g := p.lockWrite()
	defer g.unlock()

	chain, ok := p.files[loc]
	if !ok {
		return nil
	}

	steps := 0
	for i := len(chain) - 1; i >= 0; i-- {
		f := chain[i]
		if f.snapID >= snapID {
			steps++
			continue
		}

		// f is the rollback target.
		switch {
		case steps == 0:
			// Already at the target version.
			return nil
		case steps == 1:
			p.files[loc] = chain[:len(chain)-1]
		default:
			// The replacement HEAD is stamped with the pool's current
			// snapshot sequence so later writes under a newer sequence
			// still trigger copy-on-write. A HEAD already at that
			// sequence answers no snapshot ids yet and is overwritten
			// in place to keep the chain strictly ascending.
			clone := f.cloneForWrite(p.snapSeq)
			if head := chain[len(chain)-1]; head.snapID >= clone.snapID {
				chain[len(chain)-1] = clone
			} else {
				p.files[loc] = append(chain, clone)
			}
		}
		g.bumpEpoch()
		return nil
	}
	return nil
}

// ListSnaps enumerates the object's clones oldest to newest, each with
// the snapshot ids it answers, its size, and the ranges the next
// version still shares with it. A HEAD descriptor is appended when the
// live state is visible: either the chain is a sole version holding
// data, or unsnapshotted history trails the last clone.
func (p *Pool) ListSnaps(ctx context.Context, loc Locator) (SnapSet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	chain, ok := p.files[loc]
	if !ok {
		return SnapSet{}, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	var out SnapSet
	includeHead := false
	if len(chain) > 1 {
		for i, f := range chain {
			out.Seq = f.snapID
			if i == len(chain)-1 {
				includeHead = true
				break
			}
			out.Seq++
			if !f.exists {
				continue
			}

			f.mu.RLock()
			clone := CloneInfo{
				// The clone id is the newest snapshot this version
				// answers; a retired version that answers none reports
				// the sequence it was written under.
				ID:    f.snapID,
				Snaps: append([]uint64(nil), f.snaps...),
				Size:  f.size(),
			}
			if len(f.snaps) > 0 {
				clone.ID = f.snaps[len(f.snaps)-1]
			}
			f.mu.RUnlock()

			// A clone's reported overlap is the next version's overlap
			// bookkeeping: what the successor still shares with it.
			next := chain[i+1]
			next.mu.RLock()
			if next.exists {
				clone.Overlap = next.snapOverlap.Extents()
			}
			next.mu.RUnlock()

			out.Clones = append(out.Clones, clone)
		}
	}

	head := chain[len(chain)-1]
	head.mu.RLock()
	if (len(chain) == 1 && head.size() > 0) || includeHead {
		if head.exists {
			if out.Seq == 0 && !includeHead {
				out.Seq = head.snapID
			}
			out.Clones = append(out.Clones, CloneInfo{ID: SnapHead, Size: head.size()})
		}
	}
	head.mu.RUnlock()
	return out, nil
}
