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
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/spin-stack/radosmem/internal/stringutil"
)

// Extended attributes are keyed by locator and are not snapshotted.
// Unlike the data path they do not require the object to exist: setting
// an attribute on an absent object simply creates its attribute set.

// XattrGetAll returns a copy of the object's attribute set, empty when
// none exists.
func (p *Pool) XattrGetAll(ctx context.Context, loc Locator) (map[string][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string][]byte, len(p.xattrs[loc]))
	for k, v := range p.xattrs[loc] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// XattrSet stores one attribute.
func (p *Pool) XattrSet(ctx context.Context, loc Locator, name string, value []byte) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("setxattr %s=%s", stringutil.TruncateID(name, 64), stringutil.TruncateOutput(value, 64))

	g := p.lockWrite()
	defer g.unlock()

	attrs, ok := p.xattrs[loc]
	if !ok {
		attrs = make(map[string][]byte)
		p.xattrs[loc] = attrs
	}
	attrs[name] = append([]byte(nil), value...)
	g.bumpEpoch()
	return nil
}

// XattrRemove deletes one attribute.
func (p *Pool) XattrRemove(ctx context.Context, loc Locator, name string) error {
	log.G(ctx).WithField("object", loc.String()).Debugf("rmxattr %s", name)

	g := p.lockWrite()
	defer g.unlock()

	delete(p.xattrs[loc], name)
	g.bumpEpoch()
	return nil
}

// lookupXattr fetches one attribute value under the shared directory
// lock, distinguishing a missing attribute set from a missing key only
// in the error message.
func (p *Pool) lookupXattr(loc Locator, name string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	attrs, ok := p.xattrs[loc]
	if !ok {
		return nil, fmt.Errorf("object %q has no attributes: %w", loc, ErrNoData)
	}
	value, ok := attrs[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q of %q: %w", name, loc, ErrNoData)
	}
	return value, nil
}

// CompareXattrBytes evaluates "operand op stored" as byte strings. A
// false predicate returns ErrPredicateFalse so conditional operations
// can short-circuit without treating it as a hard failure.
func (p *Pool) CompareXattrBytes(ctx context.Context, loc Locator, name string, op CompareOp, operand []byte) error {
	stored, err := p.lookupXattr(loc, name)
	if err != nil {
		return err
	}

	ok, err := op.evaluate(bytes.Compare(operand, stored))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("xattr %q %s: %w", name, op, ErrPredicateFalse)
	}
	return nil
}

// CompareXattrUint evaluates "operand op stored" with the stored value
// parsed as a base-10 integer. An empty stored value counts as zero; an
// unparseable one is an invalid-argument failure.
func (p *Pool) CompareXattrUint(ctx context.Context, loc Locator, name string, op CompareOp, operand uint64) error {
	stored, err := p.lookupXattr(loc, name)
	if err != nil {
		return err
	}

	var storedVal uint64
	if len(stored) > 0 {
		n, err := strconv.ParseInt(string(stored), 10, 64)
		if err != nil {
			return fmt.Errorf("attribute %q is not numeric: %w", name, errdefs.ErrInvalidArgument)
		}
		storedVal = uint64(n)
	}

	cmp := 0
	switch {
	case operand < storedVal:
		cmp = -1
	case operand > storedVal:
		cmp = 1
	}
	ok, err := op.evaluate(cmp)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("xattr %q %s: %w", name, op, ErrPredicateFalse)
	}
	return nil
}
