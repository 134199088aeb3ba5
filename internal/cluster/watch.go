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
	"github.com/google/uuid"
)

// RemovalWatcher is notified when the live object it is registered on
// is removed. Callbacks run outside the pool's locks on a detached,
// time-bounded context.
type RemovalWatcher interface {
	HandleRemoved(ctx context.Context, loc Locator)
}

// RemovalWatcherFunc adapts a function to the RemovalWatcher interface.
type RemovalWatcherFunc func(ctx context.Context, loc Locator)

func (f RemovalWatcherFunc) HandleRemoved(ctx context.Context, loc Locator) {
	f(ctx, loc)
}

// WatchRemoval registers w against the locator and returns the handle
// used to unregister it. Watchers are erased in bulk when the object is
// removed.
func (p *Pool) WatchRemoval(ctx context.Context, loc Locator, w RemovalWatcher) (uuid.UUID, error) {
	if w == nil {
		return uuid.Nil, fmt.Errorf("nil removal watcher: %w", errdefs.ErrInvalidArgument)
	}

	g := p.lockWrite()
	defer g.unlock()

	handle := uuid.New()
	ws, ok := p.watchers[loc]
	if !ok {
		ws = make(map[uuid.UUID]RemovalWatcher)
		p.watchers[loc] = ws
	}
	ws[handle] = w
	return handle, nil
}

// UnwatchRemoval removes a previously registered watcher.
func (p *Pool) UnwatchRemoval(ctx context.Context, loc Locator, handle uuid.UUID) error {
	g := p.lockWrite()
	defer g.unlock()

	ws := p.watchers[loc]
	if _, ok := ws[handle]; !ok {
		return fmt.Errorf("watch %s on %q: %w", handle, loc, errdefs.ErrNotFound)
	}
	delete(ws, handle)
	if len(ws) == 0 {
		delete(p.watchers, loc)
	}
	return nil
}
