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
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/google/uuid"

	"github.com/spin-stack/radosmem/internal/cluster"
	"github.com/spin-stack/radosmem/internal/interval"
)

// Re-exported core types so callers never import internal packages.
type (
	// SnapContext is the writer-supplied snapshot context driving
	// copy-on-write.
	SnapContext = cluster.SnapContext
	// SnapSet enumerates an object's clones.
	SnapSet = cluster.SnapSet
	// CloneInfo describes one clone in a SnapSet.
	CloneInfo = cluster.CloneInfo
	// ObjectStat carries size and modify time.
	ObjectStat = cluster.Stat
	// OmapEntry is one key/value pair of an ordered OMAP page.
	OmapEntry = cluster.OmapEntry
	// Extent is a half-open byte range.
	Extent = interval.Extent
	// CompareOp selects an xattr predicate comparison.
	CompareOp = cluster.CompareOp
	// RemovalWatcher is notified when a watched object is removed.
	RemovalWatcher = cluster.RemovalWatcher
	// RemovalWatcherFunc adapts a function to RemovalWatcher.
	RemovalWatcherFunc = cluster.RemovalWatcherFunc
	// Locator identifies one logical object within a pool.
	Locator = cluster.Locator
)

// NoSnap is the sentinel meaning "no snapshot": the live state.
const NoSnap = cluster.NoSnap

// SnapHead is the clone id ListSnaps reports for the live HEAD.
const SnapHead = cluster.SnapHead

// Comparison operators for CompareXattr and CompareXattrUint.
const (
	CompareEq  = cluster.CompareEq
	CompareNe  = cluster.CompareNe
	CompareGt  = cluster.CompareGt
	CompareGte = cluster.CompareGte
	CompareLt  = cluster.CompareLt
	CompareLte = cluster.CompareLte
)

// Cluster is the top-level in-memory store: a set of named pools, the
// client blocklist, and the class-method registry.
type Cluster struct {
	mu         sync.RWMutex
	pools      map[string]*cluster.Pool
	nextPoolID int64
	blocklist  map[uuid.UUID]struct{}

	registry *MethodRegistry
	logger   *log.Entry
}

// ClusterOpt configures a Cluster.
type ClusterOpt func(*Cluster)

// WithLogger sets the logger used for operations issued without a
// log-carrying context. Defaults to the package-level entry.
func WithLogger(logger *log.Entry) ClusterOpt {
	return func(c *Cluster) {
		c.logger = logger
	}
}

// NewCluster returns an empty cluster.
func NewCluster(opts ...ClusterOpt) *Cluster {
	c := &Cluster{
		pools:     make(map[string]*cluster.Pool),
		blocklist: make(map[uuid.UUID]struct{}),
		registry:  NewMethodRegistry(),
		logger:    log.L,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the cluster's class-method registry. Handlers are
// expected to be registered once at startup, before clients run.
func (c *Cluster) Registry() *MethodRegistry {
	return c.registry
}

// CreatePool adds an empty pool.
func (c *Cluster) CreatePool(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pools[name]; ok {
		return fmt.Errorf("pool %q: %w", name, errdefs.ErrAlreadyExists)
	}
	c.nextPoolID++
	c.pools[name] = cluster.NewPool(c.nextPoolID, name)
	c.logger.WithField("pool", name).Debug("created pool")
	return nil
}

// DeletePool drops a pool and everything in it.
func (c *Cluster) DeletePool(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pools[name]; !ok {
		return fmt.Errorf("pool %q: %w", name, errdefs.ErrNotFound)
	}
	delete(c.pools, name)
	return nil
}

// PoolNames lists the pools in no particular order.
func (c *Cluster) PoolNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.pools))
	for name := range c.pools {
		names = append(names, name)
	}
	return names
}

func (c *Cluster) lookupPool(name string) (*cluster.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool %q: %w", name, errdefs.ErrNotFound)
	}
	return p, nil
}

// Connect mints a new client session.
func (c *Cluster) Connect() *Client {
	return &Client{cluster: c, id: uuid.New()}
}

// Blocklist fences a client session. Every subsequent operation issued
// through that client fails with ErrBlocklisted.
func (c *Cluster) Blocklist(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocklist[id] = struct{}{}
	c.logger.WithField("client", id).Info("blocklisted client")
}

func (c *Cluster) blocklisted(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocklist[id]
	return ok
}
