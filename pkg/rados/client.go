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
	"github.com/google/uuid"
)

// Client is one session against the cluster and the unit of fencing.
type Client struct {
	cluster *Cluster
	id      uuid.UUID
}

// ID returns the session identity used for blocklisting.
func (cl *Client) ID() uuid.UUID {
	return cl.id
}

// Blocklisted reports whether this session has been fenced.
func (cl *Client) Blocklisted() bool {
	return cl.cluster.blocklisted(cl.id)
}

// OpenIoCtx opens an I/O handle on a pool. The namespace may be empty.
func (cl *Client) OpenIoCtx(pool, namespace string) (*IoCtx, error) {
	p, err := cl.cluster.lookupPool(pool)
	if err != nil {
		return nil, err
	}
	return &IoCtx{
		client:    cl,
		pool:      p,
		namespace: namespace,
		readSnap:  NoSnap,
	}, nil
}
