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
	"sort"

	"deps.dev/util/semver"
	"golang.org/x/sync/errgroup"

	"github.com/mageos/uv/resolve/pubgrub"
)

type requestKind int

const (
	reqVersions requestKind = iota
	reqURL
	reqDeps
)

// request is one unit of work for the fetch pool.
type request struct {
	kind requestKind
	name PackageName
	url  string
	cand Candidate
}

// depRecord remembers a dependency edge as written, for the result graph.
type depRecord struct {
	req    Requirement
	target pubgrub.Package
	rng    pubgrub.Range
}

// solveSession is the state of one Resolve call.
type solveSession struct {
	r        *Resolver
	manifest Manifest
	selector *CandidateSelector

	// allowedURLs maps names pinned by direct requirements or constraints
	// to their sanctioned artifact URL.
	allowedURLs map[PackageName]string

	// direct indexes the manifest's requirements by canonical name.
	direct map[PackageName]Requirement

	requests chan request

	// Per-(package, version) memo of the dependency incompatibilities
	// added to the solver, so revisiting a version after backtracking
	// does not duplicate them.
	depsAdded  map[string][]*pubgrub.Incompatibility
	depRecords map[string][]depRecord

	// chosen remembers the candidate behind each decided package.
	chosen map[pubgrub.Package]Candidate
}

// Resolve resolves the manifest into a complete version assignment. On
// failure the error is one of the taxonomy in this package; only
// NoSolutionError means the requirements themselves are unsatisfiable.
func (r *Resolver) Resolve(ctx context.Context, m Manifest) (*Resolution, error) {
	sv, err := r.newSession(m)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.parallelism; i++ {
		g.Go(func() error { return sv.worker(gctx) })
	}
	var res *Resolution
	g.Go(func() error {
		defer close(sv.requests)
		var err error
		res, err = sv.run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) newSession(m Manifest) (*solveSession, error) {
	sv := &solveSession{
		r:           r,
		manifest:    m,
		allowedURLs: make(map[PackageName]string),
		direct:      make(map[PackageName]Requirement),
		requests:    make(chan request, 256),
		depsAdded:   make(map[string][]*pubgrub.Incompatibility),
		depRecords:  make(map[string][]depRecord),
		chosen:      make(map[pubgrub.Package]Candidate),
	}
	all := make([]Requirement, 0, len(m.Requirements)+len(m.Constraints))
	all = append(all, m.Requirements...)
	all = append(all, m.Constraints...)
	for _, req := range all {
		if req.URL == "" {
			continue
		}
		if existing, ok := sv.allowedURLs[req.Name]; ok && existing != req.URL {
			return nil, &ConflictingURLsError{Name: req.Name, URL1: existing, URL2: req.URL}
		}
		sv.allowedURLs[req.Name] = req.URL
	}
	for _, req := range m.Requirements {
		sv.direct[req.Name] = req
	}
	sv.selector = NewCandidateSelector(r.direction, r.mode, r.preferences, all)
	return sv, nil
}

// worker serves metadata requests until the solve loop closes the channel.
func (sv *solveSession) worker(ctx context.Context) error {
	for req := range sv.requests {
		if ctx.Err() != nil {
			continue // keep draining so the loop never blocks on send
		}
		var err error
		switch req.kind {
		case reqVersions:
			err = sv.fetchVersions(ctx, req.name)
		case reqURL:
			err = sv.fetchURL(ctx, req.name, req.url)
		case reqDeps:
			err = sv.fetchDeps(ctx, req.cand)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (sv *solveSession) fetchVersions(ctx context.Context, name PackageName) error {
	ix := sv.r.index
	sv.r.log.Debug("resolve: fetching versions", "package", name.String())
	vm, err := sv.r.client.Versions(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		// A package with no versions at all; let selection find the
		// hole so the failure carries solver context.
		ix.FillVersions(name, NewVersionMap(name, nil))
		return nil
	case err != nil:
		ix.FailVersions(name, err, false)
		return fmt.Errorf("fetching versions of %s: %w", name, err)
	}
	if vm.Name() != "" && vm.Name() != name {
		err := &NameMismatchError{Requested: name, Metadata: vm.Name()}
		ix.FailVersions(name, err, true)
		return err
	}
	ix.FillVersions(name, vm)
	return nil
}

func (sv *solveSession) fetchURL(ctx context.Context, name PackageName, url string) error {
	ix := sv.r.index
	key := urlVersionsKey(name, url)
	sv.r.log.Debug("resolve: fetching URL candidate", "package", name.String(), "url", url)
	cand, err := sv.r.client.URLCandidate(ctx, name, url)
	if err != nil {
		ix.FailVersions(key, err, false)
		return fmt.Errorf("fetching %s from %s: %w", name, url, err)
	}
	if declared := NewPackageName(string(cand.Name)); declared != name {
		err := &NameMismatchError{Requested: name, Metadata: declared}
		ix.FailVersions(key, err, true)
		return err
	}
	ix.FillVersions(key, NewVersionMap(name, []Candidate{cand}))
	return nil
}

func (sv *solveSession) fetchDeps(ctx context.Context, cand Candidate) error {
	ix := sv.r.index
	sv.r.log.Debug("resolve: fetching requirements", "package", cand.Name.String(), "version", cand.Version)
	reqs, err := sv.r.client.Requirements(ctx, cand)
	if err != nil {
		ix.FailDeps(cand, err, false)
		var fe *FetchError
		if errors.As(err, &fe) {
			return err
		}
		return &FetchError{Dist: cand.Dist, Err: err}
	}
	ix.FillDeps(cand, reqs)
	return nil
}

func urlVersionsKey(name PackageName, url string) PackageName {
	return PackageName(string(name) + " @ " + url)
}

// send queues a fetch, failing with ErrStreamTermination if the pool is
// already shutting down.
func (sv *solveSession) send(ctx context.Context, req request) error {
	select {
	case sv.requests <- req:
		return nil
	case <-ctx.Done():
		return ErrStreamTermination
	}
}

// ensureVersionsRequested queues the version-map fetch for a package the
// first time it is needed.
func (sv *solveSession) ensureVersionsRequested(ctx context.Context, pkg pubgrub.Package) error {
	if pkg.Virtual() {
		return nil
	}
	name := PackageName(pkg.Name)
	if pkg.URL != "" {
		if sv.r.index.RegisterVersions(urlVersionsKey(name, pkg.URL)) {
			return sv.send(ctx, request{kind: reqURL, name: name, url: pkg.URL})
		}
		return nil
	}
	if sv.r.index.RegisterVersions(name) {
		return sv.send(ctx, request{kind: reqVersions, name: name})
	}
	return nil
}

func (sv *solveSession) waitVersions(ctx context.Context, pkg pubgrub.Package) (*VersionMap, error) {
	name := PackageName(pkg.Name)
	if pkg.URL != "" {
		return sv.r.index.WaitVersions(ctx, urlVersionsKey(name, pkg.URL))
	}
	return sv.r.index.WaitVersions(ctx, name)
}

// run is the solve loop. It alternates unit propagation with decisions,
// queueing metadata fetches as new packages come into view and blocking only
// on metadata the next step actually needs.
func (sv *solveSession) run(ctx context.Context) (*Resolution, error) {
	rootPkg := pubgrub.RootPackage()
	rootVersion, err := semver.PyPI.Parse("0")
	if err != nil {
		return nil, err
	}
	st := pubgrub.NewState(rootPkg, rootVersion, sv.r.log)

	rootDeps, rootRecs, err := sv.rootDependencies(ctx)
	if err != nil {
		return nil, err
	}
	if err := sv.addConstraints(st); err != nil {
		return nil, err
	}
	fresh := st.AddDependencies(rootPkg, rootVersion, rootDeps)
	rootKey := depsKey(rootPkg, rootVersion)
	sv.depsAdded[rootKey] = fresh
	sv.depRecords[rootKey] = rootRecs
	if !st.Decide(rootPkg, rootVersion, fresh) {
		return nil, fmt.Errorf("resolve: root requirements conflict outright")
	}

	next := rootPkg
	for {
		tree, err := st.UnitPropagation(next)
		if err != nil {
			return nil, err
		}
		if tree != nil {
			return nil, &NoSolutionError{
				tree:     tree,
				index:    sv.r.index,
				selector: sv.selector,
				python:   sv.r.python,
			}
		}
		und := st.UndecidedPackages()
		if len(und) == 0 {
			return sv.buildResolution(st)
		}
		for _, pr := range und {
			if err := sv.ensureVersionsRequested(ctx, pr.Package); err != nil {
				return nil, err
			}
		}

		// Await every undecided package's version map before choosing
		// which to decide: the most-constrained-first priority must see
		// the same candidate counts no matter how fetches interleave.
		type choice struct {
			pr    pubgrub.PackageRange
			vm    *VersionMap
			count int
		}
		choices := make([]choice, 0, len(und))
		for _, pr := range und {
			c := choice{pr: pr, count: 1}
			if !pr.Package.Virtual() {
				vm, err := sv.waitVersions(ctx, pr.Package)
				if err != nil {
					return nil, err
				}
				c.vm = vm
				c.count = 0
				for _, v := range vm.Versions() {
					if pr.Versions.Contains(v) {
						c.count++
					}
				}
			}
			choices = append(choices, c)
		}
		sort.SliceStable(choices, func(i, j int) bool {
			pi, pj := choices[i].pr.Package, choices[j].pr.Package
			if (pi.Kind == pubgrub.KindNamed) != (pj.Kind == pubgrub.KindNamed) {
				return pi.Kind != pubgrub.KindNamed
			}
			if choices[i].count != choices[j].count {
				return choices[i].count < choices[j].count
			}
			return pi.Compare(pj) < 0
		})
		pick := choices[0]
		pkg := pick.pr.Package
		next = pkg

		if pkg.Virtual() {
			sv.decidePython(st, pkg, pick.pr.Versions)
			continue
		}

		cand, ver, ok := sv.selectCandidate(pkg, pick.pr.Versions, pick.vm)
		if !ok {
			// A direct requirement that matches nothing selectable on
			// its own terms is a missing package, not a solver
			// conflict. Failures caused by other packages narrowing the
			// range go through conflict reporting so the proof can
			// explain them.
			if req, isDirect := sv.direct[PackageName(pkg.Name)]; isDirect && pkg.Extra == "" {
				miss, err := sv.requirementUnmatched(req, pick.vm)
				if err != nil {
					return nil, err
				}
				if miss {
					return nil, &NotFoundError{Requirement: req}
				}
			}
			st.AddIncompatibility(pubgrub.NoVersions(pkg, pick.pr.Versions))
			continue
		}

		deps, recs, err := sv.dependenciesFor(ctx, pkg, cand, ver)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if err := sv.ensureVersionsRequested(ctx, d.Package); err != nil {
				return nil, err
			}
		}
		key := depsKey(pkg, ver)
		fresh, added := sv.depsAdded[key]
		if !added {
			fresh = st.AddDependencies(pkg, ver, deps)
			sv.depsAdded[key] = fresh
			sv.depRecords[key] = recs
		}
		if st.Decide(pkg, ver, fresh) {
			sv.chosen[pkg] = cand
		}
	}
}

// requirementUnmatched reports whether a direct requirement matches no
// selectable version on its own terms: the package has no versions at all,
// or every version within the requirement's range is a pre-release the
// policy hides. It evaluates the requirement's own range rather than the
// solver's narrowed one, so a conflict with other packages never reads as a
// missing package.
func (sv *solveSession) requirementUnmatched(req Requirement, vm *VersionMap) (bool, error) {
	if vm.Len() == 0 {
		return true, nil
	}
	if req.URL != "" {
		// The pinned artifact exists; any miss is a range conflict.
		return false, nil
	}
	rng, err := sv.r.specRange(req.Specifiers)
	if err != nil {
		return false, err
	}
	if _, _, ok := sv.selector.Select(req.Name, rng, vm); ok {
		return false, nil
	}
	return sv.selector.PrereleaseBlocked(req.Name, rng, vm), nil
}

func depsKey(pkg pubgrub.Package, v *semver.Version) string {
	return pkg.String() + " " + v.String()
}

// decidePython decides a virtual interpreter package, or records the
// impossibility when the required range excludes the environment.
func (sv *solveSession) decidePython(st *pubgrub.State, pkg pubgrub.Package, allowed pubgrub.Range) {
	v := sv.r.python.Installed()
	if pkg.Kind == pubgrub.KindPythonTarget {
		v = sv.r.python.Target()
	}
	if allowed.Contains(v) {
		st.Decide(pkg, v, nil)
		return
	}
	st.AddIncompatibility(pubgrub.NoVersions(pkg, allowed))
}

// selectCandidate applies the selector; a URL pin bypasses the pre-release
// and yanked policies, since the user named the artifact explicitly.
func (sv *solveSession) selectCandidate(pkg pubgrub.Package, allowed pubgrub.Range, vm *VersionMap) (Candidate, *semver.Version, bool) {
	if pkg.URL != "" {
		for i := 0; i < vm.Len(); i++ {
			c, v := vm.At(i)
			if allowed.Contains(v) {
				return c, v, true
			}
		}
		return Candidate{}, nil, false
	}
	return sv.selector.Select(PackageName(pkg.Name), allowed, vm)
}

// rootDependencies converts the manifest's requirements into solver edges.
func (sv *solveSession) rootDependencies(ctx context.Context) ([]pubgrub.Dependency, []depRecord, error) {
	var deps []pubgrub.Dependency
	var recs []depRecord
	for _, req := range sv.manifest.Requirements {
		applies, err := sv.r.markers.Evaluate(req.Marker, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluating marker of %s: %w", req, err)
		}
		if !applies {
			continue
		}
		targets, rng, err := sv.requirementTargets(req)
		if err != nil {
			return nil, nil, err
		}
		for _, target := range targets {
			deps = append(deps, pubgrub.Dependency{Package: target, Versions: rng})
			recs = append(recs, depRecord{req: req, target: target, rng: rng})
			if err := sv.ensureVersionsRequested(ctx, target); err != nil {
				return nil, nil, err
			}
		}
	}
	return deps, recs, nil
}

// addConstraints narrows constrained packages without requiring them: a
// version outside a constraint's range is forbidden, but nothing forces the
// package to be selected at all.
func (sv *solveSession) addConstraints(st *pubgrub.State) error {
	for _, req := range sv.manifest.Constraints {
		applies, err := sv.r.markers.Evaluate(req.Marker, nil)
		if err != nil {
			return fmt.Errorf("evaluating marker of constraint %s: %w", req, err)
		}
		if !applies {
			continue
		}
		rng, err := sv.r.specRange(req.Specifiers)
		if err != nil {
			return err
		}
		outside := rng.Complement()
		if outside.Empty() {
			continue
		}
		target := sv.identityFor(req.Name, sv.allowedURLs[req.Name])
		st.AddIncompatibility(pubgrub.NoVersions(target, outside))
	}
	return nil
}

func (sv *solveSession) identityFor(name PackageName, url string) pubgrub.Package {
	if url != "" {
		return pubgrub.URLPackage(string(name), url)
	}
	return pubgrub.NamedPackage(string(name))
}

// requirementTargets resolves a requirement to its solver identities and
// allowed range, enforcing the URL rules: a URL requirement must match the
// directly declared URL for that name, and a plain requirement on a
// URL-pinned name is canonicalized to the pinned identity.
func (sv *solveSession) requirementTargets(req Requirement) ([]pubgrub.Package, pubgrub.Range, error) {
	url := req.URL
	if url == "" {
		url = sv.allowedURLs[req.Name]
	} else {
		allowed, ok := sv.allowedURLs[req.Name]
		if !ok {
			return nil, pubgrub.Range{}, &DisallowedURLError{Name: req.Name, URL: url}
		}
		if allowed != url {
			return nil, pubgrub.Range{}, &ConflictingURLsError{Name: req.Name, URL1: allowed, URL2: url}
		}
	}
	rng := pubgrub.Full()
	if req.Specifiers != "" {
		var err error
		rng, err = sv.r.specRange(req.Specifiers)
		if err != nil {
			return nil, pubgrub.Range{}, err
		}
	}
	base := sv.identityFor(req.Name, url)
	targets := []pubgrub.Package{base}
	for _, extra := range req.Extras {
		p := base
		p.Extra = extra
		targets = append(targets, p)
	}
	return targets, rng, nil
}

// dependenciesFor assembles the solver edges for one candidate: its
// interpreter constraint, the base-package edge for an extra, and its
// marker-filtered requirements.
func (sv *solveSession) dependenciesFor(ctx context.Context, pkg pubgrub.Package, cand Candidate, ver *semver.Version) ([]pubgrub.Dependency, []depRecord, error) {
	if sv.r.index.RegisterDeps(cand) {
		if err := sv.send(ctx, request{kind: reqDeps, cand: cand}); err != nil {
			return nil, nil, err
		}
	}
	reqs, err := sv.r.index.WaitDeps(ctx, cand)
	if err != nil {
		return nil, nil, err
	}

	var deps []pubgrub.Dependency
	var recs []depRecord

	if cand.RequiresPython != "" {
		rng, err := sv.r.specRange(cand.RequiresPython)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid requires-python of %s %s: %w", cand.Name, cand.Version, err)
		}
		deps = append(deps,
			pubgrub.Dependency{Package: pubgrub.PythonInstalledPackage(), Versions: rng},
			pubgrub.Dependency{Package: pubgrub.PythonTargetPackage(), Versions: rng},
		)
	}

	var enabledExtras []string
	if pkg.Extra != "" {
		base := pkg
		base.Extra = ""
		deps = append(deps, pubgrub.Dependency{Package: base, Versions: pubgrub.Singleton(ver)})
		enabledExtras = []string{pkg.Extra}
	}

	for _, req := range reqs {
		applies, err := sv.r.markers.Evaluate(req.Marker, enabledExtras)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluating marker of %s: %w", req, err)
		}
		if !applies {
			continue
		}
		targets, rng, err := sv.requirementTargets(req)
		if err != nil {
			return nil, nil, err
		}
		for _, target := range targets {
			if target == pkg {
				// A version may name its own package only if it
				// admits itself; anything else is unsatisfiable by
				// construction and aborts with a dedicated error
				// rather than a conflict report.
				if rng.Contains(ver) {
					continue
				}
				return nil, nil, &SelfDependencyError{Name: cand.Name, Version: cand.Version}
			}
			deps = append(deps, pubgrub.Dependency{Package: target, Versions: rng})
			recs = append(recs, depRecord{req: req, target: target, rng: rng})
		}
	}
	return deps, recs, nil
}

// buildResolution converts the final decisions into the result, merging
// extra packages into their base and verifying the merge is consistent.
func (sv *solveSession) buildResolution(st *pubgrub.State) (*Resolution, error) {
	decisions := st.Solution()
	packages := make(map[PackageName]ResolvedPackage)
	versions := make(map[PackageName]*semver.Version)
	for _, d := range decisions {
		if d.Package.Kind != pubgrub.KindNamed {
			continue
		}
		name := PackageName(d.Package.Name)
		cand, ok := sv.chosen[d.Package]
		if !ok {
			return nil, fmt.Errorf("resolve: no candidate recorded for %s", d.Package)
		}
		if have, ok := versions[name]; ok {
			if have.Compare(d.Version) != 0 {
				existing := packages[name]
				return nil, &ConflictingVersionsError{
					Name:     name,
					Version1: existing.Version,
					Version2: cand.Version,
				}
			}
			if d.Package.Extra != "" {
				p := packages[name]
				p.Extras = append(p.Extras, d.Package.Extra)
				sort.Strings(p.Extras)
				packages[name] = p
			}
			continue
		}
		versions[name] = d.Version
		rp := ResolvedPackage{Name: name, Version: cand.Version, Dist: cand.Dist}
		if d.Package.Extra != "" {
			rp.Extras = []string{d.Package.Extra}
		}
		packages[name] = rp
	}

	graph, err := sv.buildGraph(decisions, packages, versions)
	if err != nil {
		return nil, err
	}
	return &Resolution{packages: packages, graph: graph}, nil
}

func (sv *solveSession) buildGraph(decisions []pubgrub.Decision, packages map[PackageName]ResolvedPackage, versions map[PackageName]*semver.Version) (*Graph, error) {
	g := &Graph{}
	rootID := g.AddNode(Node{Name: "root", Version: ""})
	ids := make(map[PackageName]NodeID, len(packages))
	names := make([]PackageName, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		p := packages[name]
		ids[name] = g.AddNode(Node{Name: name, Version: p.Version, Extras: p.Extras})
	}

	type edgeKey struct {
		from, to NodeID
		req      string
	}
	seen := make(map[edgeKey]bool)
	addEdge := func(from NodeID, rec depRecord) error {
		if rec.target.Kind != pubgrub.KindNamed {
			return nil
		}
		toName := PackageName(rec.target.Name)
		to, ok := ids[toName]
		if !ok {
			return nil
		}
		if v, ok := versions[toName]; !ok || !rec.rng.Contains(v) {
			return nil
		}
		k := edgeKey{from: from, to: to, req: rec.req.String()}
		if seen[k] {
			return nil
		}
		seen[k] = true
		return g.AddEdge(from, to, rec.req.String())
	}

	for _, d := range decisions {
		recs := sv.depRecords[depsKey(d.Package, d.Version)]
		if len(recs) == 0 {
			continue
		}
		from := rootID
		if d.Package.Kind == pubgrub.KindNamed {
			id, ok := ids[PackageName(d.Package.Name)]
			if !ok {
				continue
			}
			from = id
		}
		for _, rec := range recs {
			if err := addEdge(from, rec); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
