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
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Client implementations when a package does not
// exist at all.
var ErrNotFound = errors.New("not found")

// Client provides package metadata to a Resolver. Implementations must be
// safe for concurrent use; the solver's worker pool issues calls for
// distinct packages in parallel. Errors from Requirements should be wrapped
// in a FetchError so failure messages can distinguish a download from a
// download-and-build.
type Client interface {
	// Versions returns every known candidate of the package.
	Versions(ctx context.Context, name PackageName) (*VersionMap, error)

	// Requirements returns the parsed dependencies of one candidate.
	Requirements(ctx context.Context, c Candidate) ([]Requirement, error)

	// URLCandidate returns the candidate behind a direct artifact URL.
	URLCandidate(ctx context.Context, name PackageName, url string) (Candidate, error)
}

// LocalClient is an in-memory Client for tests and hermetic resolutions.
// The zero value is not usable; create one with NewLocalClient.
type LocalClient struct {
	mu       sync.Mutex
	packages map[PackageName][]Candidate
	names    map[PackageName]PackageName // declared metadata name, if different
	reqs     map[distKey][]Requirement
	urls     map[string]Candidate
	calls    map[PackageName]int

	// Delay, if set, runs at the start of every Versions call. Tests use
	// it to reorder fetch completions.
	Delay func(name PackageName)
}

// NewLocalClient returns an empty in-memory client.
func NewLocalClient() *LocalClient {
	return &LocalClient{
		packages: make(map[PackageName][]Candidate),
		names:    make(map[PackageName]PackageName),
		reqs:     make(map[distKey][]Requirement),
		urls:     make(map[string]Candidate),
		calls:    make(map[PackageName]int),
	}
}

// AddVersion registers a wheel candidate of a package along with its
// requirement strings, which are parsed immediately.
func (c *LocalClient) AddVersion(name, version string, requirements ...string) {
	canon := NewPackageName(name)
	filename := fmt.Sprintf("%s-%s-py3-none-any.whl", canon, version)
	c.add(Candidate{
		Name:    canon,
		Version: version,
		Dist:    DistForFilename(filename, "https://files.example.test/"+filename),
	}, requirements)
}

// AddSdist registers a source-distribution candidate.
func (c *LocalClient) AddSdist(name, version string, requirements ...string) {
	canon := NewPackageName(name)
	filename := fmt.Sprintf("%s-%s.tar.gz", canon, version)
	c.add(Candidate{
		Name:    canon,
		Version: version,
		Dist:    Dist{Kind: DistSdist, Filename: filename, URL: "https://files.example.test/" + filename},
	}, requirements)
}

// SetYanked marks an already-added version as yanked.
func (c *LocalClient) SetYanked(name, version string) {
	c.mutate(NewPackageName(name), version, func(cand *Candidate) { cand.Yanked = true })
}

// SetRequiresPython sets an already-added version's interpreter constraint.
func (c *LocalClient) SetRequiresPython(name, version, spec string) {
	c.mutate(NewPackageName(name), version, func(cand *Candidate) { cand.RequiresPython = spec })
}

func (c *LocalClient) mutate(name PackageName, version string, f func(*Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cands := c.packages[name]
	for i := range cands {
		if cands[i].Version == version {
			f(&cands[i])
			return
		}
	}
	panic(fmt.Sprintf("LocalClient: no candidate %s %s", name, version))
}

func (c *LocalClient) add(cand Candidate, requirements []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packages[cand.Name] = append(c.packages[cand.Name], cand)
	var reqs []Requirement
	for _, r := range requirements {
		req, err := ParseRequirement(r)
		if err != nil {
			panic(fmt.Sprintf("LocalClient: bad requirement %q: %v", r, err))
		}
		reqs = append(reqs, req)
	}
	c.reqs[distKey{Name: cand.Name, Version: cand.Version, URL: cand.Dist.URL}] = reqs
}

// AddURL registers the candidate served from a direct artifact URL.
func (c *LocalClient) AddURL(url string, cand Candidate, requirements ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls[url] = cand
	var reqs []Requirement
	for _, r := range requirements {
		req, err := ParseRequirement(r)
		if err != nil {
			panic(fmt.Sprintf("LocalClient: bad requirement %q: %v", r, err))
		}
		reqs = append(reqs, req)
	}
	c.reqs[distKey{Name: cand.Name, Version: cand.Version, URL: cand.Dist.URL}] = reqs
}

// SetMetadataName makes the client declare a different name in the metadata
// it serves for name, to exercise mismatch detection.
func (c *LocalClient) SetMetadataName(name, declared string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[NewPackageName(name)] = NewPackageName(declared)
}

// VersionCalls reports how many Versions fetches ran for name.
func (c *LocalClient) VersionCalls(name PackageName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Versions implements Client.
func (c *LocalClient) Versions(ctx context.Context, name PackageName) (*VersionMap, error) {
	if delay := c.Delay; delay != nil {
		delay(name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
	cands, ok := c.packages[name]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", name, ErrNotFound)
	}
	declared := name
	if d, ok := c.names[name]; ok {
		declared = d
	}
	return NewVersionMap(declared, cands), nil
}

// Requirements implements Client.
func (c *LocalClient) Requirements(ctx context.Context, cand Candidate) ([]Requirement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	reqs, ok := c.reqs[distKey{Name: cand.Name, Version: cand.Version, URL: cand.Dist.URL}]
	if !ok {
		return nil, &FetchError{Dist: cand.Dist, Err: ErrNotFound}
	}
	return reqs, nil
}

// URLCandidate implements Client.
func (c *LocalClient) URLCandidate(ctx context.Context, name PackageName, url string) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cand, ok := c.urls[url]
	if !ok {
		return Candidate{}, fmt.Errorf("url %s: %w", url, ErrNotFound)
	}
	return cand, nil
}
