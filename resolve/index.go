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
	"context"

	"github.com/mageos/uv/resolve/internal/oncemap"
)

// distKey identifies one candidate's dependency metadata.
type distKey struct {
	Name    PackageName
	Version string
	URL     string
}

// An Index memoizes fetched package metadata for the lifetime of a Resolver:
// version maps per package and dependency lists per candidate, each fetched
// at most once no matter how many solver steps ask for it concurrently. It
// also records which packages were actually consulted, so failure reports
// only cite version lists the resolver really saw.
//
// The index itself never fetches; the solver's worker pool registers keys
// and fills them in.
type Index struct {
	versions *oncemap.Map[PackageName, *VersionMap]
	deps     *oncemap.Map[distKey, []Requirement]
	visited  *oncemap.Set[PackageName]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		versions: oncemap.New[PackageName, *VersionMap](),
		deps:     oncemap.New[distKey, []Requirement](),
		visited:  oncemap.NewSet[PackageName](),
	}
}

// RegisterVersions claims the version-map fetch for name, reporting whether
// the caller should perform it.
func (ix *Index) RegisterVersions(name PackageName) bool {
	return ix.versions.Register(name)
}

// FillVersions completes the version-map fetch for name.
func (ix *Index) FillVersions(name PackageName, vm *VersionMap) {
	ix.versions.Fill(name, vm)
}

// FailVersions reports a failed version-map fetch to waiters. Transient
// failures are forgotten so a later resolution may retry.
func (ix *Index) FailVersions(name PackageName, err error, fatal bool) {
	ix.versions.Fail(name, err, fatal)
}

// WaitVersions blocks until name's version map is available, marking the
// package visited.
func (ix *Index) WaitVersions(ctx context.Context, name PackageName) (*VersionMap, error) {
	ix.visited.Add(name)
	return ix.versions.Wait(ctx, name)
}

// VersionsIfVisited returns name's version map only if the resolver both
// consulted and received it, which is the honesty bar for failure reports.
func (ix *Index) VersionsIfVisited(name PackageName) (*VersionMap, bool) {
	if !ix.visited.Contains(name) {
		return nil, false
	}
	return ix.versions.Get(name)
}

// RegisterDeps claims the dependency fetch for a candidate.
func (ix *Index) RegisterDeps(c Candidate) bool {
	return ix.deps.Register(distKey{Name: c.Name, Version: c.Version, URL: c.Dist.URL})
}

// FillDeps completes a candidate's dependency fetch.
func (ix *Index) FillDeps(c Candidate, reqs []Requirement) {
	ix.deps.Fill(distKey{Name: c.Name, Version: c.Version, URL: c.Dist.URL}, reqs)
}

// FailDeps reports a failed dependency fetch to waiters.
func (ix *Index) FailDeps(c Candidate, err error, fatal bool) {
	ix.deps.Fail(distKey{Name: c.Name, Version: c.Version, URL: c.Dist.URL}, err, fatal)
}

// WaitDeps blocks until a candidate's dependency list is available.
func (ix *Index) WaitDeps(ctx context.Context, c Candidate) ([]Requirement, error) {
	return ix.deps.Wait(ctx, distKey{Name: c.Name, Version: c.Version, URL: c.Dist.URL})
}
