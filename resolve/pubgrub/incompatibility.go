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
	"fmt"
	"sort"
	"strings"
)

// IncompatibilityKind records why an incompatibility exists.
type IncompatibilityKind int

const (
	// KindNotRoot is the bootstrap fact that the root package must be
	// selected at its synthetic version.
	KindNotRoot IncompatibilityKind = iota

	// KindNoVersions records that no candidate exists within a range.
	KindNoVersions

	// KindFromDependency records a dependency edge: a package at some
	// versions requires another package within a range.
	KindFromDependency

	// KindDerived marks an incompatibility learned during conflict
	// resolution from two causes.
	KindDerived
)

// PackageTerm pairs a package with a term about it.
type PackageTerm struct {
	Package Package
	Term    Term
}

// An Incompatibility is a set of terms that cannot all be satisfied at once.
// External incompatibilities (every kind but KindDerived) are facts about the
// world; derived ones carry the two causes they were learned from, forming
// the proof tree reported when solving fails.
type Incompatibility struct {
	kind  IncompatibilityKind
	terms []PackageTerm // sorted by package, at most one term per package

	// For KindFromDependency: the depender, its versions and the target.
	depender        Package
	dependerRange   Range
	dependency      Package
	dependencyRange Range

	// For KindDerived.
	cause1, cause2 *Incompatibility
}

// Kind returns why the incompatibility exists.
func (in *Incompatibility) Kind() IncompatibilityKind { return in.kind }

// Terms returns the incompatibility's terms in package order. The slice must
// not be modified.
func (in *Incompatibility) Terms() []PackageTerm { return in.terms }

// NotRoot returns the bootstrap incompatibility forbidding any state in
// which root is not selected at rootVersion.
func NotRoot(root Package, rootVersion Range) *Incompatibility {
	return &Incompatibility{
		kind:  KindNotRoot,
		terms: []PackageTerm{{Package: root, Term: Negative(rootVersion)}},
	}
}

// NoVersions returns the incompatibility recording that no candidate of pkg
// exists within versions.
func NoVersions(pkg Package, versions Range) *Incompatibility {
	return &Incompatibility{
		kind:  KindNoVersions,
		terms: []PackageTerm{{Package: pkg, Term: Positive(versions)}},
	}
}

// FromDependency returns the incompatibility recording that pkg within
// pkgRange depends on dep within depRange: pkg in pkgRange cannot be
// selected together with dep outside depRange.
func FromDependency(pkg Package, pkgRange Range, dep Package, depRange Range) *Incompatibility {
	in := &Incompatibility{
		kind:            KindFromDependency,
		depender:        pkg,
		dependerRange:   pkgRange,
		dependency:      dep,
		dependencyRange: depRange,
	}
	in.terms = sortTerms([]PackageTerm{
		{Package: pkg, Term: Positive(pkgRange)},
		{Package: dep, Term: Negative(depRange)},
	})
	return in
}

// Dependency returns the edge recorded by a KindFromDependency
// incompatibility.
func (in *Incompatibility) Dependency() (pkg Package, pkgRange Range, dep Package, depRange Range) {
	return in.depender, in.dependerRange, in.dependency, in.dependencyRange
}

// Causes returns the two incompatibilities a derived one was learned from.
func (in *Incompatibility) Causes() (*Incompatibility, *Incompatibility) {
	return in.cause1, in.cause2
}

// termFor returns the incompatibility's term for pkg, if any.
func (in *Incompatibility) termFor(pkg Package) (Term, bool) {
	for _, pt := range in.terms {
		if pt.Package == pkg {
			return pt.Term, true
		}
	}
	return Term{}, false
}

// isTerminal reports whether the incompatibility proves the whole resolution
// impossible: it has no terms, or its only term is a positive one about root.
func (in *Incompatibility) isTerminal(root Package) bool {
	switch len(in.terms) {
	case 0:
		return true
	case 1:
		pt := in.terms[0]
		return pt.Package == root && pt.Term.Positive()
	}
	return false
}

// priorCause builds the incompatibility learned by resolving the current
// conflict against the satisfier's cause on pkg: the conflict's and cause's
// terms for pkg are replaced by their union (dropped entirely when the union
// says nothing), while terms the two share for other packages are
// intersected.
func priorCause(conflict, cause *Incompatibility, pkg Package) *Incompatibility {
	merged := make(map[Package]Term)
	var t1, t2 Term
	add := func(pts []PackageTerm, pkgTerm *Term) {
		for _, pt := range pts {
			if pt.Package == pkg {
				*pkgTerm = pt.Term
				continue
			}
			if prev, ok := merged[pt.Package]; ok {
				merged[pt.Package] = prev.Intersect(pt.Term)
			} else {
				merged[pt.Package] = pt.Term
			}
		}
	}
	add(conflict.terms, &t1)
	add(cause.terms, &t2)
	if u := t1.Union(t2); !u.Equal(Negative(Range{})) {
		merged[pkg] = u
	}
	terms := make([]PackageTerm, 0, len(merged))
	for p, t := range merged {
		terms = append(terms, PackageTerm{Package: p, Term: t})
	}
	return &Incompatibility{
		kind:   KindDerived,
		terms:  sortTerms(terms),
		cause1: conflict,
		cause2: cause,
	}
}

func sortTerms(terms []PackageTerm) []PackageTerm {
	sort.Slice(terms, func(i, j int) bool {
		return terms[i].Package.Compare(terms[j].Package) < 0
	})
	return terms
}

func (in *Incompatibility) String() string {
	parts := make([]string, len(in.terms))
	for i, pt := range in.terms {
		parts[i] = fmt.Sprintf("%s %s", pt.Package, pt.Term)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
