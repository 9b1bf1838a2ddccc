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
	"io"
	"log/slog"

	"deps.dev/util/semver"
)

// PackageRange pairs a package with a range of acceptable versions.
type PackageRange struct {
	Package  Package
	Versions Range
}

// Decision is a selected package version.
type Decision struct {
	Package Package
	Version *semver.Version
}

// Dependency is one requirement edge used with State.AddDependencies.
type Dependency struct {
	Package  Package
	Versions Range
}

// State is the core solver state: the incompatibility store and the partial
// solution. The caller drives the solve loop, alternating UnitPropagation
// with decisions; State never fetches anything.
type State struct {
	root        Package
	rootVersion *semver.Version
	partial     *partialSolution

	incompats []*Incompatibility
	// byPackage indexes incompatibility store positions by the packages
	// their terms mention, in insertion order.
	byPackage map[Package][]int

	log *slog.Logger
}

// NewState returns a solver state for the given root package and its
// synthetic version, seeded with the bootstrap incompatibility that forces
// root to be selected.
func NewState(root Package, rootVersion *semver.Version, log *slog.Logger) *State {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &State{
		root:        root,
		rootVersion: rootVersion,
		partial:     newPartialSolution(),
		byPackage:   make(map[Package][]int),
		log:         log,
	}
	s.AddIncompatibility(NotRoot(root, Singleton(rootVersion)))
	return s
}

// Root returns the root package.
func (s *State) Root() Package { return s.root }

// RootVersion returns the root package's synthetic version.
func (s *State) RootVersion() *semver.Version { return s.rootVersion }

// AddIncompatibility records an incompatibility and indexes it by package.
func (s *State) AddIncompatibility(in *Incompatibility) {
	idx := len(s.incompats)
	s.incompats = append(s.incompats, in)
	for _, pt := range in.terms {
		s.byPackage[pt.Package] = append(s.byPackage[pt.Package], idx)
	}
	s.log.Debug("pubgrub: added incompatibility", "incompatibility", in.String())
}

// AddDependencies records one FromDependency incompatibility per edge for
// pkg at version and returns them in order. Self-edges must be filtered by
// the caller first.
func (s *State) AddDependencies(pkg Package, version *semver.Version, deps []Dependency) []*Incompatibility {
	pkgRange := Singleton(version)
	out := make([]*Incompatibility, 0, len(deps))
	for _, d := range deps {
		in := FromDependency(pkg, pkgRange, d.Package, d.Versions)
		s.AddIncompatibility(in)
		out = append(out, in)
	}
	return out
}

// Decide tentatively selects version for pkg and checks it against the given
// incompatibilities (typically the ones just added for the version's
// dependencies). If any would be satisfied outright the decision is rolled
// back and Decide reports false; unit propagation will then exclude the
// version through those incompatibilities instead.
func (s *State) Decide(pkg Package, version *semver.Version, fresh []*Incompatibility) bool {
	s.partial.decide(pkg, version)
	for _, in := range fresh {
		if rel, _ := s.partial.relation(in); rel == relationSatisfied {
			s.partial.undoDecision()
			s.log.Debug("pubgrub: decision rejected", "package", pkg.String(), "version", version.String(), "cause", in.String())
			return false
		}
	}
	s.log.Debug("pubgrub: decided", "package", pkg.String(), "version", version.String(), "level", s.partial.level)
	return true
}

// DecisionFor returns the version decided for pkg, if any.
func (s *State) DecisionFor(pkg Package) (*semver.Version, bool) {
	return s.partial.decisionFor(pkg)
}

// UndecidedPackages returns every package that has a positive constraint but
// no decision yet, with the currently allowed range for each, in
// first-assignment order.
func (s *State) UndecidedPackages() []PackageRange {
	return s.partial.undecided()
}

// Solution returns the decided package versions in decision order.
func (s *State) Solution() []Decision {
	return s.partial.decisions()
}

// UnitPropagation derives every forced consequence of the incompatibilities
// mentioning start, transitively. If a conflict proves the resolution
// impossible it returns the derivation tree; a non-nil error reports an
// internal invariant violation.
func (s *State) UnitPropagation(start Package) (*DerivationTree, error) {
	changed := []Package{start}
	for len(changed) > 0 {
		pkg := changed[0]
		changed = changed[1:]
		// Iterate newest-first so that freshly learned clauses are
		// applied before older ones.
		idxs := s.byPackage[pkg]
	scan:
		for i := len(idxs) - 1; i >= 0; i-- {
			in := s.incompats[idxs[i]]
			rel, unsat := s.partial.relation(in)
			switch rel {
			case relationSatisfied:
				rootCause, tree, err := s.conflictResolution(in)
				if err != nil {
					return nil, err
				}
				if tree != nil {
					return tree, nil
				}
				// After backjumping the root cause is almost
				// satisfied; derive from it and restart
				// propagation from that package alone.
				rel2, unsat2 := s.partial.relation(rootCause)
				if rel2 != relationAlmostSatisfied {
					return nil, fmt.Errorf("pubgrub: root cause %s not almost satisfied after backtracking", rootCause)
				}
				t, _ := rootCause.termFor(unsat2)
				s.partial.derive(unsat2, t.Negate(), rootCause)
				changed = []Package{unsat2}
				break scan
			case relationAlmostSatisfied:
				t, _ := in.termFor(unsat)
				s.partial.derive(unsat, t.Negate(), in)
				changed = append(changed, unsat)
			}
		}
	}
	return nil, nil
}

// conflictResolution learns the root cause of a satisfied incompatibility
// and backjumps, or returns the derivation tree when the conflict is
// terminal.
func (s *State) conflictResolution(conflict *Incompatibility) (*Incompatibility, *DerivationTree, error) {
	current := conflict
	for {
		if current.isTerminal(s.root) {
			s.log.Debug("pubgrub: terminal conflict", "incompatibility", current.String())
			return nil, newDerivationTree(current), nil
		}
		satIdx := s.partial.satisfierIndex(current)
		if satIdx < 0 {
			return nil, nil, fmt.Errorf("pubgrub: conflict %s has no satisfier", current)
		}
		sat := s.partial.assignments[satIdx]
		if _, ok := current.termFor(sat.pkg); !ok {
			return nil, nil, fmt.Errorf("pubgrub: satisfier package %s not in conflict %s", sat.pkg, current)
		}
		prevLevel := s.partial.previousSatisfierLevel(current, satIdx)
		if sat.decision != nil || prevLevel != sat.level {
			s.partial.backtrack(prevLevel)
			s.log.Debug("pubgrub: backtracked", "level", prevLevel, "cause", current.String())
			if current != conflict {
				s.AddIncompatibility(current)
			}
			return current, nil, nil
		}
		current = priorCause(current, sat.cause, sat.pkg)
		s.log.Debug("pubgrub: derived prior cause", "incompatibility", current.String())
	}
}
