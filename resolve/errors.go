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
	"errors"
	"fmt"

	"deps.dev/util/semver"

	"github.com/mageos/uv/resolve/internal/oncemap"
	"github.com/mageos/uv/resolve/pubgrub"
)

// ErrUnregistered reports a wait on a metadata key no fetch was ever started
// for. It indicates a bug in the solve loop, not bad user input.
var ErrUnregistered = oncemap.ErrUnregistered

// ErrStreamTermination reports that the fetch side shut down while the
// solver still had metadata requests outstanding.
var ErrStreamTermination = errors.New("resolve: metadata stream terminated early")

// NotFoundError reports a direct requirement that matched no selectable
// version: the package has no versions at all, or the only versions in the
// requirement's range are pre-releases the selection policy hides.
type NotFoundError struct {
	Requirement Requirement
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package not found: no versions of %s are available", e.Requirement)
}

// NameMismatchError reports metadata that declares a different package name
// than the one requested.
type NameMismatchError struct {
	Requested PackageName
	Metadata  PackageName
}

func (e *NameMismatchError) Error() string {
	return fmt.Sprintf("metadata for %s declares a different name: %s", e.Requested, e.Metadata)
}

// InvalidTildeEqualsError reports a ~= specifier with fewer than two release
// segments, which has no defined meaning.
type InvalidTildeEqualsError struct {
	Specifier string
}

func (e *InvalidTildeEqualsError) Error() string {
	return fmt.Sprintf("invalid specifier %q: ~= requires at least two release segments", e.Specifier)
}

// ConflictingURLsError reports two direct requirements pinning one package
// to different URLs.
type ConflictingURLsError struct {
	Name       PackageName
	URL1, URL2 string
}

func (e *ConflictingURLsError) Error() string {
	return fmt.Sprintf("requirements contain conflicting URLs for %s: %s vs %s", e.Name, e.URL1, e.URL2)
}

// ConflictingVersionsError reports a package resolved to two different
// versions, which can only happen if an internal invariant broke (extras
// must resolve with their base package).
type ConflictingVersionsError struct {
	Name               PackageName
	Version1, Version2 string
}

func (e *ConflictingVersionsError) Error() string {
	return fmt.Sprintf("%s was resolved to both %s and %s", e.Name, e.Version1, e.Version2)
}

// DisallowedURLError reports a URL requirement reached transitively without
// a matching direct requirement or constraint to sanction it.
type DisallowedURLError struct {
	Name PackageName
	URL  string
}

func (e *DisallowedURLError) Error() string {
	return fmt.Sprintf("%s was requested from %s, but URL dependencies must be declared directly; add %s @ %s to your requirements or constraints",
		e.Name, e.URL, e.Name, e.URL)
}

// SelfDependencyError reports a package version that depends on its own
// package while excluding its own version, which no assignment can satisfy.
type SelfDependencyError struct {
	Name    PackageName
	Version string
}

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("%s %s depends on itself with an incompatible requirement", e.Name, e.Version)
}

// FetchError wraps a failure to obtain a distribution or its metadata. The
// message distinguishes wheels, which only download, from source
// distributions, which download and build.
type FetchError struct {
	Dist Dist
	Err  error
}

func (e *FetchError) Error() string {
	if e.Dist.Kind == DistSdist {
		return fmt.Sprintf("failed to download and build %s: %v", e.Dist.Filename, e.Err)
	}
	return fmt.Sprintf("failed to download %s: %v", e.Dist.Filename, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NoSolutionError reports that the requirements admit no consistent version
// assignment. It carries the derivation tree proving it; the solver enriches
// the error with the version maps it actually consulted, the selector and
// the interpreter requirement before returning, so the rendered report can
// say what was available without claiming knowledge it never had.
type NoSolutionError struct {
	tree     *pubgrub.DerivationTree
	index    *Index
	selector *CandidateSelector
	python   *PythonRequirement
}

// DerivationTree returns the proof of unsatisfiability.
func (e *NoSolutionError) DerivationTree() *pubgrub.DerivationTree { return e.tree }

// AvailableVersions returns the versions of name the resolver actually saw,
// or nil if name was never consulted.
func (e *NoSolutionError) AvailableVersions(name PackageName) []*semver.Version {
	if e.index == nil {
		return nil
	}
	vm, ok := e.index.VersionsIfVisited(name)
	if !ok {
		return nil
	}
	return vm.Versions()
}

func (e *NoSolutionError) Error() string {
	return renderNoSolution(e)
}
