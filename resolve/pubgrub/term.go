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

// A Term is a statement about a package: a positive term asserts the selected
// version is within the range, a negative term asserts it is not (which also
// holds when no version is selected at all). Positive(full) and
// Negative(empty) are deliberately distinct: the former still requires a
// selection.
type Term struct {
	positive bool
	versions Range
}

// Positive returns the term asserting a version in r is selected.
func Positive(r Range) Term { return Term{positive: true, versions: r} }

// Negative returns the term asserting no version in r is selected.
func Negative(r Range) Term { return Term{versions: r} }

// Positive reports whether the term is a positive assertion.
func (t Term) Positive() bool { return t.positive }

// Versions returns the term's version range.
func (t Term) Versions() Range { return t.versions }

// Negate returns the term asserting the opposite of t.
func (t Term) Negate() Term {
	return Term{positive: !t.positive, versions: t.versions}
}

// Intersect returns the strongest term implied by both t and o.
func (t Term) Intersect(o Term) Term {
	switch {
	case t.positive && o.positive:
		return Positive(t.versions.Intersect(o.versions))
	case t.positive:
		return Positive(t.versions.Intersect(o.versions.Complement()))
	case o.positive:
		return Positive(o.versions.Intersect(t.versions.Complement()))
	default:
		return Negative(t.versions.Union(o.versions))
	}
}

// Union returns the weakest term implied by either t or o.
func (t Term) Union(o Term) Term {
	return t.Negate().Intersect(o.Negate()).Negate()
}

// SubsetOf reports whether t implies o: every state satisfying t also
// satisfies o.
func (t Term) SubsetOf(o Term) bool {
	return t.Intersect(o).Equal(t)
}

// Equal reports whether the terms are the same assertion.
func (t Term) Equal(o Term) bool {
	return t.positive == o.positive && t.versions.Equal(o.versions)
}

// unsatisfiable reports whether no state can satisfy the term.
func (t Term) unsatisfiable() bool {
	return t.positive && t.versions.Empty()
}

// relation describes how a package's accumulated assignments relate to an
// incompatibility's term for that package.
type relation int

const (
	relationInconclusive relation = iota
	relationSatisfied
	relationAlmostSatisfied
	relationContradicted
)

// relationWith treats t as the accumulated assignment intersection and
// reports whether it satisfies, contradicts or is inconclusive about other.
func (t Term) relationWith(other Term) relation {
	full := t.Intersect(other)
	switch {
	case full.Equal(t):
		return relationSatisfied
	case full.unsatisfiable():
		return relationContradicted
	default:
		return relationInconclusive
	}
}

func (t Term) String() string {
	if t.positive {
		return t.versions.String()
	}
	return "not " + t.versions.String()
}
