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
	"deps.dev/util/pypi"
	"deps.dev/util/semver"
)

// DistKind distinguishes built from source distributions, which matters for
// how a failed fetch is described: a wheel only downloads, an sdist
// downloads and builds.
type DistKind int

const (
	DistWheel DistKind = iota
	DistSdist
)

func (k DistKind) String() string {
	if k == DistWheel {
		return "wheel"
	}
	return "sdist"
}

// Dist identifies the distribution artifact a candidate resolves to.
type Dist struct {
	Kind     DistKind
	Filename string
	URL      string
}

// DistForFilename classifies an artifact by filename: anything that parses
// as a wheel name is a wheel, everything else is treated as a source
// distribution.
func DistForFilename(filename, url string) Dist {
	kind := DistSdist
	if _, err := pypi.ParseWheelName(filename); err == nil {
		kind = DistWheel
	}
	return Dist{Kind: kind, Filename: filename, URL: url}
}

// Candidate is one installable version of a package.
type Candidate struct {
	Name    PackageName
	Version string
	Dist    Dist

	// Yanked versions are skipped unless explicitly pinned.
	Yanked bool

	// RequiresPython is the candidate's interpreter constraint, as a raw
	// PEP 440 specifier list; empty means unconstrained.
	RequiresPython string
}

// A VersionMap is the ordered set of candidates for one package, the unit
// the metadata index hands out. Versions are parsed once at construction and
// held ascending; candidates whose version fails to parse are dropped.
type VersionMap struct {
	name       PackageName // declared metadata name, canonicalized
	candidates []Candidate
	versions   []*semver.Version // parallel to candidates
}

// NewVersionMap builds a VersionMap from the metadata-declared name and the
// available candidates.
func NewVersionMap(name PackageName, candidates []Candidate) *VersionMap {
	vm := &VersionMap{name: name}
	for _, c := range candidates {
		v, err := semver.PyPI.Parse(c.Version)
		if err != nil {
			continue
		}
		// Insertion sort keeps construction simple; upstream indexes
		// serve versions nearly sorted already.
		i := len(vm.versions)
		for i > 0 && vm.versions[i-1].Compare(v) > 0 {
			i--
		}
		vm.versions = append(vm.versions, nil)
		copy(vm.versions[i+1:], vm.versions[i:])
		vm.versions[i] = v
		vm.candidates = append(vm.candidates, Candidate{})
		copy(vm.candidates[i+1:], vm.candidates[i:])
		vm.candidates[i] = c
	}
	return vm
}

// Name returns the canonical name the metadata declared, which the index
// compares against the requested name.
func (vm *VersionMap) Name() PackageName { return vm.name }

// Len returns the number of candidates.
func (vm *VersionMap) Len() int { return len(vm.candidates) }

// At returns the i-th candidate and its parsed version, ascending.
func (vm *VersionMap) At(i int) (Candidate, *semver.Version) {
	return vm.candidates[i], vm.versions[i]
}

// Find returns the candidate for an exact version.
func (vm *VersionMap) Find(v *semver.Version) (Candidate, bool) {
	for i, have := range vm.versions {
		if have.Compare(v) == 0 {
			return vm.candidates[i], true
		}
	}
	return Candidate{}, false
}

// Versions returns the parsed versions, ascending. The slice must not be
// modified.
func (vm *VersionMap) Versions() []*semver.Version { return vm.versions }
