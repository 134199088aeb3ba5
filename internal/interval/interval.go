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

// Package interval tracks sets of non-overlapping byte ranges.
//
// A Set records which ranges of an object version are still bit-identical
// to the immediately preceding snapshot version. Writes subtract the
// written range; the complement is what a clone owns uniquely.
package interval

import "sort"

// Extent is a half-open byte range [Off, Off+Len).
type Extent struct {
	Off uint64
	Len uint64
}

func (e Extent) end() uint64 {
	return e.Off + e.Len
}

// Set is an ordered collection of non-overlapping, non-adjacent extents.
// Adjacent or overlapping inserts are coalesced. The zero value is an
// empty set ready for use. A Set is not safe for concurrent mutation;
// callers synchronize through the owning version's lock.
type Set struct {
	extents []Extent
}

// Insert adds [off, off+n) to the set, merging with any extents it
// touches. Inserting an empty range is a no-op.
func (s *Set) Insert(off, n uint64) {
	if n == 0 {
		return
	}
	start, end := off, off+n

	// First extent whose end reaches the new range.
	i := sort.Search(len(s.extents), func(i int) bool {
		return s.extents[i].end() >= start
	})
	// Last extent that still touches the new range.
	j := i
	for j < len(s.extents) && s.extents[j].Off <= end {
		if s.extents[j].Off < start {
			start = s.extents[j].Off
		}
		if s.extents[j].end() > end {
			end = s.extents[j].end()
		}
		j++
	}

	merged := make([]Extent, 0, len(s.extents)-(j-i)+1)
	merged = append(merged, s.extents[:i]...)
	merged = append(merged, Extent{Off: start, Len: end - start})
	merged = append(merged, s.extents[j:]...)
	s.extents = merged
}

// SubtractRange removes any part of the set covered by [off, off+n).
// Ranges partially covered are split or trimmed.
func (s *Set) SubtractRange(off, n uint64) {
	if n == 0 || len(s.extents) == 0 {
		return
	}
	start, end := off, off+n

	out := s.extents[:0:0]
	for _, e := range s.extents {
		if e.end() <= start || e.Off >= end {
			out = append(out, e)
			continue
		}
		if e.Off < start {
			out = append(out, Extent{Off: e.Off, Len: start - e.Off})
		}
		if e.end() > end {
			out = append(out, Extent{Off: end, Len: e.end() - end})
		}
	}
	s.extents = out
}

// Contains reports whether [off, off+n) lies entirely within the set.
func (s *Set) Contains(off, n uint64) bool {
	if n == 0 {
		return true
	}
	end := off + n
	for _, e := range s.extents {
		if e.Off > off {
			return false
		}
		if e.end() >= end {
			return true
		}
		if e.end() > off {
			off = e.end()
		}
	}
	return false
}

// Empty reports whether the set contains no bytes.
func (s *Set) Empty() bool {
	return len(s.extents) == 0
}

// Size returns the total number of bytes covered by the set.
func (s *Set) Size() uint64 {
	var total uint64
	for _, e := range s.extents {
		total += e.Len
	}
	return total
}

// Extents returns a copy of the set's extents in ascending offset order.
func (s *Set) Extents() []Extent {
	if len(s.extents) == 0 {
		return nil
	}
	out := make([]Extent, len(s.extents))
	copy(out, s.extents)
	return out
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() Set {
	return Set{extents: s.Extents()}
}
