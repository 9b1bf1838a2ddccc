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
	"deps.dev/util/semver"
)

// An assignment is one entry in the partial solution's chronological log:
// either a decision (a concrete version selected for a package) or a
// derivation (a term forced by an incompatibility during unit propagation).
type assignment struct {
	pkg      Package
	term     Term
	decision *semver.Version  // non-nil for decisions
	cause    *Incompatibility // non-nil for derivations
	level    int              // decision level at the time of the assignment

	// accumulated is the intersection of all terms assigned to pkg up to
	// and including this assignment, memoized for satisfier search.
	accumulated Term
}

// pkgState is the per-package digest of the assignment log.
type pkgState struct {
	decision    *semver.Version
	accumulated Term
	hasTerm     bool
}

// partialSolution is the ordered list of assignments the solver has made,
// with decision levels assigned in nondecreasing order.
type partialSolution struct {
	assignments []assignment
	level       int
	pkgs        map[Package]*pkgState
	order       []Package // packages in first-assignment order
}

func newPartialSolution() *partialSolution {
	return &partialSolution{pkgs: make(map[Package]*pkgState)}
}

func (ps *partialSolution) stateFor(pkg Package) *pkgState {
	st, ok := ps.pkgs[pkg]
	if !ok {
		st = &pkgState{}
		ps.pkgs[pkg] = st
		ps.order = append(ps.order, pkg)
	}
	return st
}

// derive appends a derivation of term for pkg caused by cause.
func (ps *partialSolution) derive(pkg Package, term Term, cause *Incompatibility) {
	st := ps.stateFor(pkg)
	acc := term
	if st.hasTerm {
		acc = st.accumulated.Intersect(term)
	}
	st.accumulated = acc
	st.hasTerm = true
	ps.assignments = append(ps.assignments, assignment{
		pkg:         pkg,
		term:        term,
		cause:       cause,
		level:       ps.level,
		accumulated: acc,
	})
}

// decide appends a decision selecting version for pkg, opening a new
// decision level.
func (ps *partialSolution) decide(pkg Package, version *semver.Version) {
	ps.level++
	st := ps.stateFor(pkg)
	st.decision = version
	term := Positive(Singleton(version))
	acc := term
	if st.hasTerm {
		acc = st.accumulated.Intersect(term)
	}
	st.accumulated = acc
	st.hasTerm = true
	ps.assignments = append(ps.assignments, assignment{
		pkg:         pkg,
		term:        term,
		decision:    version,
		level:       ps.level,
		accumulated: acc,
	})
}

// undoDecision removes the most recent assignment, which must be a decision.
// Used to roll back a tentative decision that turned out to conflict.
func (ps *partialSolution) undoDecision() {
	last := ps.assignments[len(ps.assignments)-1]
	ps.assignments = ps.assignments[:len(ps.assignments)-1]
	ps.level--
	ps.rebuildPackage(last.pkg)
}

// backtrack discards every assignment above the given decision level.
func (ps *partialSolution) backtrack(level int) {
	i := len(ps.assignments)
	touched := make(map[Package]bool)
	for i > 0 && ps.assignments[i-1].level > level {
		i--
		touched[ps.assignments[i].pkg] = true
	}
	ps.assignments = ps.assignments[:i]
	ps.level = level
	for pkg := range touched {
		ps.rebuildPackage(pkg)
	}
}

// rebuildPackage recomputes a package's digest from the retained log. The
// last retained assignment already memoizes the accumulated term.
func (ps *partialSolution) rebuildPackage(pkg Package) {
	var st *pkgState
	for i := len(ps.assignments) - 1; i >= 0; i-- {
		a := ps.assignments[i]
		if a.pkg != pkg {
			continue
		}
		if st == nil {
			st = &pkgState{accumulated: a.accumulated, hasTerm: true}
		}
		if a.decision != nil {
			st.decision = a.decision
			break
		}
	}
	if st == nil {
		delete(ps.pkgs, pkg)
		for i, p := range ps.order {
			if p == pkg {
				ps.order = append(ps.order[:i], ps.order[i+1:]...)
				break
			}
		}
		return
	}
	ps.pkgs[pkg] = st
}

// decisionFor returns pkg's decided version, if any.
func (ps *partialSolution) decisionFor(pkg Package) (*semver.Version, bool) {
	st, ok := ps.pkgs[pkg]
	if !ok || st.decision == nil {
		return nil, false
	}
	return st.decision, true
}

// relation reports how the partial solution relates to the incompatibility.
// When exactly one term is not yet satisfied the result is
// relationAlmostSatisfied and that term's package is returned for
// propagation.
func (ps *partialSolution) relation(in *Incompatibility) (relation, Package) {
	result := relationSatisfied
	var unsatisfied Package
	for _, pt := range in.terms {
		rel := relationInconclusive
		if st, ok := ps.pkgs[pt.Package]; ok && st.hasTerm {
			rel = st.accumulated.relationWith(pt.Term)
		}
		switch rel {
		case relationContradicted:
			return relationContradicted, pt.Package
		case relationInconclusive:
			if result != relationSatisfied {
				return relationInconclusive, Package{}
			}
			result = relationAlmostSatisfied
			unsatisfied = pt.Package
		}
	}
	if result == relationAlmostSatisfied {
		return relationAlmostSatisfied, unsatisfied
	}
	return relationSatisfied, Package{}
}

// satisfierIndex returns the index of the earliest assignment such that the
// log up to and including it satisfies the incompatibility, or -1.
func (ps *partialSolution) satisfierIndex(in *Incompatibility) int {
	acc := make(map[Package]Term)
	satisfied := 0
	done := make(map[Package]bool)
	for i, a := range ps.assignments {
		t, ok := in.termFor(a.pkg)
		if !ok {
			continue
		}
		cur, has := acc[a.pkg]
		if has {
			cur = cur.Intersect(a.term)
		} else {
			cur = a.term
		}
		acc[a.pkg] = cur
		if !done[a.pkg] && cur.SubsetOf(t) {
			done[a.pkg] = true
			satisfied++
			if satisfied == len(in.terms) {
				return i
			}
		}
	}
	return -1
}

// previousSatisfierLevel returns the decision level of the latest assignment
// before satIdx such that the log up to it, plus the satisfier assignment
// alone, satisfies the incompatibility. Level 1 if the satisfier needs no
// earlier help.
func (ps *partialSolution) previousSatisfierLevel(in *Incompatibility, satIdx int) int {
	sat := ps.assignments[satIdx]
	acc := map[Package]Term{sat.pkg: sat.term}
	check := func() bool {
		for _, pt := range in.terms {
			cur, ok := acc[pt.Package]
			if !ok || !cur.SubsetOf(pt.Term) {
				return false
			}
		}
		return true
	}
	if check() {
		return 1
	}
	for i := 0; i < satIdx; i++ {
		a := ps.assignments[i]
		if _, ok := in.termFor(a.pkg); !ok {
			continue
		}
		if cur, ok := acc[a.pkg]; ok {
			acc[a.pkg] = cur.Intersect(a.term)
		} else {
			acc[a.pkg] = a.term
		}
		if check() {
			if a.level < 1 {
				return 1
			}
			return a.level
		}
	}
	return 1
}

// undecided returns, in first-assignment order, each package that has a
// positive accumulated term but no decision yet, along with the term's range.
func (ps *partialSolution) undecided() []PackageRange {
	var out []PackageRange
	for _, pkg := range ps.order {
		st := ps.pkgs[pkg]
		if st.decision != nil || !st.hasTerm || !st.accumulated.Positive() {
			continue
		}
		out = append(out, PackageRange{Package: pkg, Versions: st.accumulated.Versions()})
	}
	return out
}

// decisions returns every decided package and version in decision order.
func (ps *partialSolution) decisions() []Decision {
	var out []Decision
	for _, a := range ps.assignments {
		if a.decision != nil {
			out = append(out, Decision{Package: a.pkg, Version: a.decision})
		}
	}
	return out
}
