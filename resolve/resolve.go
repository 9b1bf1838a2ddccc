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

/*
Package resolve implements dependency version resolution for Python
packages.

A Resolver turns a set of PEP 508 requirements into a complete, consistent
assignment of one version per package, or into a proof that none exists. The
solving core is the PubGrub algorithm (package pubgrub); this package
supplies everything around it: parsing requirements and PEP 440 specifiers,
fetching and memoizing package metadata through a Client, selecting
candidates under pre-release and yanked policies, modeling interpreter
compatibility, and rendering failures as human-readable explanations.

Metadata is fetched concurrently by a worker pool while the solve loop runs;
results are memoized in an Index shared across calls to Resolve, and the
outcome of a resolution is independent of the order fetches complete in.
*/
package resolve

import (
	"io"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mageos/uv/resolve/pubgrub"
)

// defaultParallelism is the number of metadata fetches in flight at once
// when WithParallelism is not given.
const defaultParallelism = 8

// specCacheSize bounds the memoized specifier→range conversions. Constraint
// strings repeat heavily across a dependency tree.
const specCacheSize = 4096

// A MarkerEvaluator decides whether a requirement guarded by a PEP 508
// environment marker applies, given the extras enabled on the depending
// package. Marker strings are passed through as written.
type MarkerEvaluator interface {
	Evaluate(marker string, extras []string) (bool, error)
}

// extraMarkers is the default MarkerEvaluator. It understands the one
// marker shape the resolver itself depends on, the extra gate
// `extra == "name"`, and treats every other marker as applicable, leaving
// real environment evaluation to an injected implementation.
type extraMarkers struct{}

func (extraMarkers) Evaluate(marker string, extras []string) (bool, error) {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return true, nil
	}
	name, ok := extraGate(marker)
	if !ok {
		return true, nil
	}
	for _, e := range extras {
		if NewPackageName(e) == name {
			return true, nil
		}
	}
	return false, nil
}

// extraGate matches `extra == "name"` (single or double quotes).
func extraGate(marker string) (PackageName, bool) {
	rest, ok := strings.CutPrefix(marker, "extra")
	if !ok {
		return "", false
	}
	rest = strings.TrimLeft(rest, " \t")
	rest, ok = strings.CutPrefix(rest, "==")
	if !ok {
		return "", false
	}
	rest = strings.Trim(rest, " \t")
	if len(rest) < 2 {
		return "", false
	}
	q := rest[0]
	if (q != '"' && q != '\'') || rest[len(rest)-1] != q {
		return "", false
	}
	return NewPackageName(rest[1 : len(rest)-1]), true
}

// A Manifest is the input to a resolution: the requirements to satisfy and
// optional constraints, which narrow versions without pulling anything in.
type Manifest struct {
	Requirements []Requirement
	Constraints  []Requirement
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger; solver decisions, conflicts and fetches are
// logged at Debug. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithPreferences supplies version pins (from a lockfile or an installed
// environment) to prefer when they still satisfy the requirements.
func WithPreferences(prefs map[PackageName]string) Option {
	return func(r *Resolver) { r.preferences = prefs }
}

// WithPrereleaseMode sets the pre-release selection policy.
func WithPrereleaseMode(mode PrereleaseMode) Option {
	return func(r *Resolver) { r.mode = mode }
}

// WithResolutionDirection sets whether the newest or oldest acceptable
// versions are preferred.
func WithResolutionDirection(d ResolutionDirection) Option {
	return func(r *Resolver) { r.direction = d }
}

// WithMarkerEvaluator injects environment-marker evaluation.
func WithMarkerEvaluator(m MarkerEvaluator) Option {
	return func(r *Resolver) { r.markers = m }
}

// WithParallelism bounds the number of concurrent metadata fetches.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// A Resolver resolves manifests against one metadata source. It may be used
// for several resolutions; fetched metadata is cached for its lifetime. It
// is not safe for concurrent Resolve calls.
type Resolver struct {
	client Client
	python *PythonRequirement
	index  *Index
	log    *slog.Logger

	markers     MarkerEvaluator
	direction   ResolutionDirection
	mode        PrereleaseMode
	preferences map[PackageName]string
	parallelism int

	specCache *lru.Cache[string, pubgrub.Range]
}

// NewResolver returns a Resolver fetching metadata from client and solving
// for the given interpreter context.
func NewResolver(client Client, python *PythonRequirement, opts ...Option) *Resolver {
	r := &Resolver{
		client:      client,
		python:      python,
		index:       NewIndex(),
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		markers:     extraMarkers{},
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	// The size is a positive constant, so construction cannot fail.
	r.specCache, _ = lru.New[string, pubgrub.Range](specCacheSize)
	return r
}

// specRange converts a specifier list to a range, memoized.
func (r *Resolver) specRange(spec string) (pubgrub.Range, error) {
	if rng, ok := r.specCache.Get(spec); ok {
		return rng, nil
	}
	rng, err := ParseSpecifiers(spec)
	if err != nil {
		return pubgrub.Range{}, err
	}
	r.specCache.Add(spec, rng)
	return rng, nil
}
