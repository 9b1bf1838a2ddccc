// Copyright 2025 The Mageos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pubgrub

import (
	"strings"

	"deps.dev/util/semver"
)

// A Range is a set of versions, represented as a sorted list of disjoint,
// non-adjacent spans. The zero value is the empty set. Ranges are immutable;
// all operations return new values.
//
// The representation is canonical: two ranges denoting the same version set
// compare Equal. Versions are *semver.Version values compared with Compare,
// so a Range never needs to re-parse version strings.
type Range struct {
	spans []span
}

// span is a contiguous interval. A nil version in lo means unbounded below,
// a nil version in hi means unbounded above.
type span struct {
	lo, hi bound
}

type bound struct {
	version   *semver.Version // nil means infinite in the bound's direction
	inclusive bool
}

// Empty returns the range containing no versions.
func Empty() Range { return Range{} }

// Full returns the range containing every version.
func Full() Range {
	return Range{spans: []span{{lo: bound{}, hi: bound{}}}}
}

// Singleton returns the range containing exactly v.
func Singleton(v *semver.Version) Range {
	return Range{spans: []span{{
		lo: bound{version: v, inclusive: true},
		hi: bound{version: v, inclusive: true},
	}}}
}

// AtLeast returns the range of versions greater than or equal to v.
func AtLeast(v *semver.Version) Range {
	return Range{spans: []span{{lo: bound{version: v, inclusive: true}, hi: bound{}}}}
}

// Greater returns the range of versions strictly greater than v.
func Greater(v *semver.Version) Range {
	return Range{spans: []span{{lo: bound{version: v}, hi: bound{}}}}
}

// AtMost returns the range of versions less than or equal to v.
func AtMost(v *semver.Version) Range {
	return Range{spans: []span{{lo: bound{}, hi: bound{version: v, inclusive: true}}}}
}

// Less returns the range of versions strictly less than v.
func Less(v *semver.Version) Range {
	return Range{spans: []span{{lo: bound{}, hi: bound{version: v}}}}
}

// Between returns the half-open range [lo, hi). It is empty if hi <= lo.
func Between(lo, hi *semver.Version) Range {
	s := span{
		lo: bound{version: lo, inclusive: true},
		hi: bound{version: hi},
	}
	if !s.valid() {
		return Range{}
	}
	return Range{spans: []span{s}}
}

// compareLo orders two lower bounds. An infinite bound is lowest; at equal
// versions an inclusive bound admits more, so it is lower.
func compareLo(a, b bound) int {
	switch {
	case a.version == nil && b.version == nil:
		return 0
	case a.version == nil:
		return -1
	case b.version == nil:
		return 1
	}
	if c := a.version.Compare(b.version); c != 0 {
		return c
	}
	switch {
	case a.inclusive == b.inclusive:
		return 0
	case a.inclusive:
		return -1
	default:
		return 1
	}
}

// compareHi orders two upper bounds. An infinite bound is highest; at equal
// versions an exclusive bound admits less, so it is lower.
func compareHi(a, b bound) int {
	switch {
	case a.version == nil && b.version == nil:
		return 0
	case a.version == nil:
		return 1
	case b.version == nil:
		return -1
	}
	if c := a.version.Compare(b.version); c != 0 {
		return c
	}
	switch {
	case a.inclusive == b.inclusive:
		return 0
	case a.inclusive:
		return 1
	default:
		return -1
	}
}

// valid reports whether the span contains at least one point.
func (s span) valid() bool {
	if s.lo.version == nil || s.hi.version == nil {
		return true
	}
	c := s.lo.version.Compare(s.hi.version)
	if c != 0 {
		return c < 0
	}
	return s.lo.inclusive && s.hi.inclusive
}

func (s span) contains(v *semver.Version) bool {
	if s.lo.version != nil {
		c := v.Compare(s.lo.version)
		if c < 0 || (c == 0 && !s.lo.inclusive) {
			return false
		}
	}
	if s.hi.version != nil {
		c := v.Compare(s.hi.version)
		if c > 0 || (c == 0 && !s.hi.inclusive) {
			return false
		}
	}
	return true
}

// Contains reports whether v is in the range.
func (r Range) Contains(v *semver.Version) bool {
	for _, s := range r.spans {
		if s.contains(v) {
			return true
		}
	}
	return false
}

// Empty reports whether the range contains no versions.
func (r Range) Empty() bool { return len(r.spans) == 0 }

// Full reports whether the range contains every version.
func (r Range) Full() bool {
	return len(r.spans) == 1 && r.spans[0].lo.version == nil && r.spans[0].hi.version == nil
}

// AsSingleton returns the single version the range contains, if it is an
// exact pin, and reports whether it is one.
func (r Range) AsSingleton() (*semver.Version, bool) {
	if len(r.spans) != 1 {
		return nil, false
	}
	s := r.spans[0]
	if s.lo.version == nil || s.hi.version == nil {
		return nil, false
	}
	if !s.lo.inclusive || !s.hi.inclusive || s.lo.version.Compare(s.hi.version) != 0 {
		return nil, false
	}
	return s.lo.version, true
}

// Intersect returns the set of versions in both r and o.
func (r Range) Intersect(o Range) Range {
	var out []span
	i, j := 0, 0
	for i < len(r.spans) && j < len(o.spans) {
		a, b := r.spans[i], o.spans[j]
		lo := a.lo
		if compareLo(b.lo, lo) > 0 {
			lo = b.lo
		}
		hi := a.hi
		if compareHi(b.hi, hi) < 0 {
			hi = b.hi
		}
		if s := (span{lo: lo, hi: hi}); s.valid() {
			out = append(out, s)
		}
		if compareHi(a.hi, b.hi) <= 0 {
			i++
		} else {
			j++
		}
	}
	return Range{spans: out}
}

// Complement returns the set of versions not in r.
func (r Range) Complement() Range {
	if len(r.spans) == 0 {
		return Full()
	}
	var out []span
	if first := r.spans[0]; first.lo.version != nil {
		out = append(out, span{
			lo: bound{},
			hi: bound{version: first.lo.version, inclusive: !first.lo.inclusive},
		})
	}
	for i, s := range r.spans {
		if s.hi.version == nil {
			return Range{spans: out}
		}
		lo := bound{version: s.hi.version, inclusive: !s.hi.inclusive}
		if i+1 < len(r.spans) {
			next := r.spans[i+1]
			out = append(out, span{
				lo: lo,
				hi: bound{version: next.lo.version, inclusive: !next.lo.inclusive},
			})
		} else {
			out = append(out, span{lo: lo, hi: bound{}})
		}
	}
	return Range{spans: out}
}

// Union returns the set of versions in either r or o.
func (r Range) Union(o Range) Range {
	// De Morgan keeps the representation canonical: the complement walk
	// merges adjacent and overlapping spans for free.
	return r.Complement().Intersect(o.Complement()).Complement()
}

// SubsetOf reports whether every version in r is also in o.
func (r Range) SubsetOf(o Range) bool {
	return r.Intersect(o).Equal(r)
}

// DisjointWith reports whether r and o share no versions.
func (r Range) DisjointWith(o Range) bool {
	return r.Intersect(o).Empty()
}

func boundEqual(a, b bound) bool {
	if (a.version == nil) != (b.version == nil) {
		return false
	}
	if a.version != nil && a.version.Compare(b.version) != 0 {
		return false
	}
	return a.inclusive == b.inclusive
}

// Equal reports whether r and o contain exactly the same versions.
func (r Range) Equal(o Range) bool {
	if len(r.spans) != len(o.spans) {
		return false
	}
	for i := range r.spans {
		if !boundEqual(r.spans[i].lo, o.spans[i].lo) || !boundEqual(r.spans[i].hi, o.spans[i].hi) {
			return false
		}
	}
	return true
}

// String renders the range in specifier-like form: "" would be ambiguous so
// the full range is "*", the empty range is "∅", an exact pin is "==v" and
// spans join with " | ".
func (r Range) String() string {
	if len(r.spans) == 0 {
		return "∅"
	}
	if r.Full() {
		return "*"
	}
	parts := make([]string, 0, len(r.spans))
	for _, s := range r.spans {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " | ")
}

func (s span) String() string {
	if s.lo.version != nil && s.hi.version != nil &&
		s.lo.inclusive && s.hi.inclusive &&
		s.lo.version.Compare(s.hi.version) == 0 {
		return "==" + s.lo.version.String()
	}
	var parts []string
	if s.lo.version != nil {
		op := ">"
		if s.lo.inclusive {
			op = ">="
		}
		parts = append(parts, op+s.lo.version.String())
	}
	if s.hi.version != nil {
		op := "<"
		if s.hi.inclusive {
			op = "<="
		}
		parts = append(parts, op+s.hi.version.String())
	}
	return strings.Join(parts, ",")
}
