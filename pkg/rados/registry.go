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
	"sync"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// MethodFlags declares what a class method is allowed to do.
type MethodFlags uint8

const (
	// MethodRead marks a handler that only reads object state.
	MethodRead MethodFlags = 1 << iota
	// MethodWrite marks a handler that mutates object state; it is
	// rejected on handles pinned to a snapshot.
	MethodWrite
)

// MethodContext hands a class method the same primitives native
// operations use: the issuing handle plus the snapshot state captured
// at call time.
type MethodContext struct {
	IoCtx *IoCtx
	OID   string
	// SnapID is the handle's read pin at call time.
	SnapID uint64
	// SnapContext is the handle's write context at call time.
	SnapContext SnapContext
}

// MethodFunc is a registered class method. Input and output buffers are
// owned by the caller.
type MethodFunc func(ctx context.Context, mc *MethodContext, in []byte) ([]byte, error)

type method struct {
	flags MethodFlags
	fn    MethodFunc
}

// MethodRegistry resolves named (class, method) pairs to handlers. It
// replaces runtime plugin loading: handlers are registered once at
// startup from a fixed table.
type MethodRegistry struct {
	mu      sync.RWMutex
	classes map[string]map[string]method
}

// NewMethodRegistry returns an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{classes: make(map[string]map[string]method)}
}

// Register adds a handler. A handler must declare at least one flag;
// duplicate registration is an error.
func (r *MethodRegistry) Register(class, name string, flags MethodFlags, fn MethodFunc) error {
	if fn == nil {
		return fmt.Errorf("nil handler for %s.%s: %w", class, name, errdefs.ErrInvalidArgument)
	}
	if flags == 0 {
		return fmt.Errorf("handler %s.%s declares no flags: %w", class, name, errdefs.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	methods, ok := r.classes[class]
	if !ok {
		methods = make(map[string]method)
		r.classes[class] = methods
	}
	if _, ok := methods[name]; ok {
		return fmt.Errorf("method %s.%s: %w", class, name, errdefs.ErrAlreadyExists)
	}
	methods[name] = method{flags: flags, fn: fn}
	return nil
}

func (r *MethodRegistry) lookup(class, name string) (method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.classes[class][name]
	if !ok {
		return method{}, fmt.Errorf("method %s.%s: %w", class, name, errdefs.ErrNotFound)
	}
	return m, nil
}

// Exec invokes a registered class method against an object. Write
// methods run through the same preconditions as native mutations.
func (io *IoCtx) Exec(ctx context.Context, oid, class, name string, in []byte) ([]byte, error) {
	m, err := io.client.cluster.registry.lookup(class, name)
	if err != nil {
		return nil, err
	}
	if err := io.check(m.flags&MethodWrite != 0); err != nil {
		return nil, err
	}

	log.G(ctx).WithField("object", io.locator(oid).String()).Debugf("exec %s.%s len=%d", class, name, len(in))

	mc := &MethodContext{
		IoCtx:       io,
		OID:         oid,
		SnapID:      io.readSnap,
		SnapContext: io.snapc,
	}
	return m.fn(ctx, mc, in)
}
