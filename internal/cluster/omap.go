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
	"sort"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// omapStore is one locator's ordered key-value side map plus its header
// blob. Keys are kept sorted; values are stored as independent copies.
// The store is keyed by locator, not by version, so it is guarded by
// the pool directory lock: a concurrent copy-on-write must not leave
// two writers mutating it behind different version locks.
type omapStore struct {
	header  []byte
	entries map[string][]byte
	keys    []string
}

func newOmapStore() *omapStore {
	return &omapStore{entries: make(map[string][]byte)}
}

func (o *omapStore) set(key string, value []byte) {
	if _, ok := o.entries[key]; !ok {
		i := sort.SearchStrings(o.keys, key)
		o.keys = append(o.keys, "")
		copy(o.keys[i+1:], o.keys[i:])
		o.keys[i] = key
	}
	o.entries[key] = append([]byte(nil), value...)
}

func (o *omapStore) remove(key string) {
	if _, ok := o.entries[key]; !ok {
		return
	}
	delete(o.entries, key)
	i := sort.SearchStrings(o.keys, key)
	o.keys = append(o.keys[:i], o.keys[i+1:]...)
}

// removeRange erases keys in [lowerBound(begin), lowerBound(end)).
func (o *omapStore) removeRange(begin, end string) {
	i := sort.SearchStrings(o.keys, begin)
	j := sort.SearchStrings(o.keys, end)
	if i >= j {
		return
	}
	for _, k := range o.keys[i:j] {
		delete(o.entries, k)
	}
	o.keys = append(o.keys[:i], o.keys[j:]...)
}

func (o *omapStore) clear() {
	o.entries = make(map[string][]byte)
	o.keys = nil
}

// ensureOmap returns the locator's store, creating it if needed.
// Requires the exclusive directory lock.
func (p *Pool) ensureOmap(loc Locator) *omapStore {
	o, ok := p.omaps[loc]
	if !ok {
		o = newOmapStore()
		p.omaps[loc] = o
	}
	return o
}

// mutateOmap runs fn against the locator's store under the exclusive
// directory lock, resolving the write version first so the object
// springs into existence and the usual copy-on-write rules apply. The
// epoch stamp lands on the resolved version afterward.
func (p *Pool) mutateOmap(loc Locator, snapc SnapContext, fn func(*omapStore)) {
	g := p.lockWrite()
	file := g.resolveWrite(loc, snapc)
	fn(p.ensureOmap(loc))
	epoch := g.bumpEpoch()
	g.unlock()

	file.mu.Lock()
	file.epoch = epoch
	file.mu.Unlock()
}

// OmapSet merges entries into the object's OMAP, overwriting existing
// keys. The object springs into existence if absent.
func (p *Pool) OmapSet(ctx context.Context, loc Locator, entries map[string][]byte, snapc SnapContext) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("omap set %d entries", len(entries))

	p.mutateOmap(loc, snapc, func(store *omapStore) {
		for k, v := range entries {
			store.set(k, v)
		}
	})
	return nil
}

// OmapGetByKeys returns the present subset of the requested keys.
func (p *Pool) OmapGetByKeys(ctx context.Context, loc Locator, keys []string) (map[string][]byte, error) {
	g := p.lockRead()
	defer g.unlock()

	if g.resolve(loc, NoSnap) == nil {
		return nil, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}

	out := make(map[string][]byte)
	store := p.omaps[loc]
	if store == nil {
		return out, nil
	}
	for _, k := range keys {
		if v, ok := store.entries[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// OmapGetRange pages through the OMAP in key order, starting strictly
// after startAfter (or from the beginning when empty), returning up to
// maxReturn entries whose key carries prefix. more reports whether any
// entries remain beyond the point iteration stopped.
func (p *Pool) OmapGetRange(ctx context.Context, loc Locator, startAfter, prefix string, maxReturn uint64) ([]OmapEntry, bool, error) {
	g := p.lockRead()
	defer g.unlock()

	if g.resolve(loc, NoSnap) == nil {
		return nil, false, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}
	store := p.omaps[loc]
	if store == nil {
		return nil, false, nil
	}

	// First key strictly after the cursor.
	i := 0
	if startAfter != "" {
		i = sort.Search(len(store.keys), func(i int) bool {
			return store.keys[i] > startAfter
		})
	}

	var out []OmapEntry
	for ; i < len(store.keys) && maxReturn > 0; i++ {
		k := store.keys[i]
		if prefix == "" || strings.HasPrefix(k, prefix) {
			out = append(out, OmapEntry{Key: k, Value: append([]byte(nil), store.entries[k]...)})
			maxReturn--
		}
	}
	return out, i < len(store.keys), nil
}

// OmapRemoveKeys deletes the given keys.
func (p *Pool) OmapRemoveKeys(ctx context.Context, loc Locator, keys []string, snapc SnapContext) error {
	p.mutateOmap(loc, snapc, func(store *omapStore) {
		for _, k := range keys {
			store.remove(k)
		}
	})
	return nil
}

// OmapRemoveRange deletes keys in [begin, end).
func (p *Pool) OmapRemoveRange(ctx context.Context, loc Locator, begin, end string, snapc SnapContext) error {
	p.mutateOmap(loc, snapc, func(store *omapStore) {
		store.removeRange(begin, end)
	})
	return nil
}

// OmapClear erases all entries, leaving the header in place.
func (p *Pool) OmapClear(ctx context.Context, loc Locator, snapc SnapContext) error {
	p.mutateOmap(loc, snapc, func(store *omapStore) {
		store.clear()
	})
	return nil
}

// OmapSetHeader replaces the OMAP header blob.
func (p *Pool) OmapSetHeader(ctx context.Context, loc Locator, header []byte, snapc SnapContext) error {
	p.mutateOmap(loc, snapc, func(store *omapStore) {
		store.header = append([]byte(nil), header...)
	})
	return nil
}

// OmapGetHeader returns a copy of the OMAP header blob, empty when no
// store exists yet.
func (p *Pool) OmapGetHeader(ctx context.Context, loc Locator) ([]byte, error) {
	g := p.lockRead()
	defer g.unlock()

	if g.resolve(loc, NoSnap) == nil {
		return nil, fmt.Errorf("object %q: %w", loc, errdefs.ErrNotFound)
	}
	store := p.omaps[loc]
	if store == nil {
		return nil, nil
	}
	return append([]byte(nil), store.header...), nil
}
