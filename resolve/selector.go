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

package resolve

import (
	"deps.dev/util/semver"

	"github.com/mageos/uv/resolve/pubgrub"
)

// ResolutionDirection selects which end of a version range the resolver
// prefers.
type ResolutionDirection int

const (
	// Highest picks the newest acceptable version, the default.
	Highest ResolutionDirection = iota
	// Lowest picks the oldest acceptable version, useful for testing a
	// project against its declared minimums.
	Lowest
)

// PrereleaseMode controls when pre-release versions may be selected.
type PrereleaseMode int

const (
	// PrereleaseExplicit allows pre-releases only for packages whose
	// direct requirements mention one in a specifier. The default.
	PrereleaseExplicit PrereleaseMode = iota
	// PrereleaseAllow allows pre-releases everywhere.
	PrereleaseAllow
	// PrereleaseIfNecessary behaves like PrereleaseExplicit but falls
	// back to pre-releases for a package with no final releases in the
	// allowed range.
	PrereleaseIfNecessary
)

// A CandidateSelector chooses one candidate from a version map given the
// currently allowed range. It is pure and immutable: policy state (the
// pre-release opt-ins) is derived from the direct requirements once, at
// construction, so the same inputs always select the same candidate no
// matter when or in what order the solver asks.
type CandidateSelector struct {
	direction   ResolutionDirection
	mode        PrereleaseMode
	preferences map[PackageName]*semver.Version
	allowPre    map[PackageName]bool
}

// NewCandidateSelector builds a selector. Preferences are version pins from
// an existing lockfile or environment, tried first when still in range.
// Direct requirements whose specifiers mention a pre-release opt their
// package into pre-release candidates.
func NewCandidateSelector(direction ResolutionDirection, mode PrereleaseMode, preferences map[PackageName]string, direct []Requirement) *CandidateSelector {
	s := &CandidateSelector{
		direction:   direction,
		mode:        mode,
		preferences: make(map[PackageName]*semver.Version),
		allowPre:    make(map[PackageName]bool),
	}
	for name, ver := range preferences {
		if v, err := semver.PyPI.Parse(ver); err == nil {
			s.preferences[name] = v
		}
	}
	for _, req := range direct {
		if req.Specifiers == "" {
			continue
		}
		if c, err := semver.PyPI.ParseConstraint(req.Specifiers); err == nil && c.HasPrerelease() {
			s.allowPre[req.Name] = true
		}
	}
	return s
}

// Direction returns the configured resolution direction.
func (s *CandidateSelector) Direction() ResolutionDirection { return s.direction }

// Mode returns the configured pre-release mode.
func (s *CandidateSelector) Mode() PrereleaseMode { return s.mode }

// PrereleaseAllowed reports whether pre-releases of name may be selected
// without the if-necessary fallback.
func (s *CandidateSelector) PrereleaseAllowed(name PackageName) bool {
	return s.mode == PrereleaseAllow || s.allowPre[name]
}

// Select returns the best candidate of vm within allowed, applying the
// preference pin, pre-release policy, yanked policy and direction. It
// reports false when nothing is eligible.
func (s *CandidateSelector) Select(name PackageName, allowed pubgrub.Range, vm *VersionMap) (Candidate, *semver.Version, bool) {
	pin, _ := allowed.AsSingleton()

	if pref, ok := s.preferences[name]; ok && allowed.Contains(pref) {
		if c, found := vm.Find(pref); found {
			if s.eligible(name, c, pref, pin, false) {
				return c, pref, true
			}
		}
	}

	if c, v, ok := s.scan(name, allowed, vm, pin, false); ok {
		return c, v, true
	}
	if s.mode == PrereleaseIfNecessary && !s.anyFinalRelease(allowed, vm) {
		return s.scan(name, allowed, vm, pin, true)
	}
	return Candidate{}, nil, false
}

// PrereleaseBlocked reports whether a selection that failed for name would
// have succeeded had pre-releases been eligible, meaning the pre-release
// policy was the only obstacle.
func (s *CandidateSelector) PrereleaseBlocked(name PackageName, allowed pubgrub.Range, vm *VersionMap) bool {
	pin, _ := allowed.AsSingleton()
	_, _, ok := s.scan(name, allowed, vm, pin, true)
	return ok
}

func (s *CandidateSelector) scan(name PackageName, allowed pubgrub.Range, vm *VersionMap, pin *semver.Version, forcePre bool) (Candidate, *semver.Version, bool) {
	n := vm.Len()
	for i := 0; i < n; i++ {
		j := i
		if s.direction == Highest {
			j = n - 1 - i
		}
		c, v := vm.At(j)
		if !allowed.Contains(v) {
			continue
		}
		if s.eligible(name, c, v, pin, forcePre) {
			return c, v, true
		}
	}
	return Candidate{}, nil, false
}

func (s *CandidateSelector) eligible(name PackageName, c Candidate, v *semver.Version, pin *semver.Version, forcePre bool) bool {
	if v.IsPrerelease() && !forcePre && !s.PrereleaseAllowed(name) {
		return false
	}
	if c.Yanked && (pin == nil || pin.Compare(v) != 0) {
		return false
	}
	return true
}

// anyFinalRelease reports whether any non-pre-release, non-yanked candidate
// exists within allowed.
func (s *CandidateSelector) anyFinalRelease(allowed pubgrub.Range, vm *VersionMap) bool {
	for i := 0; i < vm.Len(); i++ {
		c, v := vm.At(i)
		if !v.IsPrerelease() && !c.Yanked && allowed.Contains(v) {
			return true
		}
	}
	return false
}
