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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testPython(t *testing.T, version string) *PythonRequirement {
	t.Helper()
	py, err := NewPythonRequirement(version, "")
	if err != nil {
		t.Fatal(err)
	}
	return py
}

func testManifest(t *testing.T, reqs ...string) Manifest {
	t.Helper()
	var m Manifest
	for _, s := range reqs {
		m.Requirements = append(m.Requirements, mustRequirement(t, s))
	}
	return m
}

func mustResolve(t *testing.T, r *Resolver, m Manifest) *Resolution {
	t.Helper()
	res, err := r.Resolve(context.Background(), m)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

func TestResolveSimple(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("a", "1.0", "b>=1")
	client.AddVersion("b", "1.0")
	client.AddVersion("b", "2.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "a"))
	if got, want := res.String(), "a==1.0\nb==2.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveBacktracking(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.AddVersion("foo", "2.0", "bar>=2")
	client.AddVersion("bar", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo>=1"))
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveNoSolution(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0", "bar>=2")
	client.AddVersion("bar", "1.0")
	client.AddVersion("bar", "2.0")

	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo>=1", "bar<2"))
	var ns *NoSolutionError
	if !errors.As(err, &ns) {
		t.Fatalf("Resolve error = %v, want NoSolutionError", err)
	}
	msg := err.Error()
	for _, want := range []string{"foo", "bar", "unsatisfiable"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report does not mention %q:\n%s", want, msg)
		}
	}
	if ns.DerivationTree() == nil {
		t.Error("DerivationTree() = nil")
	}
}

func TestResolveNotFound(t *testing.T) {
	client := NewLocalClient()
	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "nosuch>=1"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve error = %v, want NotFoundError", err)
	}
	if nf.Requirement.Name != "nosuch" {
		t.Errorf("NotFoundError.Requirement.Name = %s, want nosuch", nf.Requirement.Name)
	}
}

func TestResolveTransitiveMissingPackage(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0", "ghost>=1")

	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo"))
	var ns *NoSolutionError
	if !errors.As(err, &ns) {
		t.Fatalf("Resolve error = %v, want NoSolutionError", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "ghost") {
		t.Errorf("report does not mention the missing package:\n%s", msg)
	}
}

func TestResolvePrereleaseDefaultHidden(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0a1")

	// With only a hidden pre-release available, the direct requirement
	// matches nothing that exists: a missing package, not a conflict.
	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve error = %v, want NotFoundError", err)
	}
	if nf.Requirement.Name != "foo" {
		t.Errorf("NotFoundError.Requirement.Name = %s, want foo", nf.Requirement.Name)
	}
}

func TestResolvePrereleaseTransitiveHint(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0", "bar>=1.0a1")
	client.AddVersion("bar", "1.0a1")

	// Only direct requirements opt a package into pre-releases, so the
	// transitive pin on bar fails; the report suggests the remedy.
	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo"))
	var ns *NoSolutionError
	if !errors.As(err, &ns) {
		t.Fatalf("Resolve error = %v, want NoSolutionError", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "hint:") || !strings.Contains(msg, "pre-release") {
		t.Errorf("report lacks a pre-release hint:\n%s", msg)
	}
}

func TestResolveNoMatchingFinalVersion(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")

	// Final releases exist, just none in range: that is a conflict with
	// evidence, not a missing package.
	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo>=2"))
	var ns *NoSolutionError
	if !errors.As(err, &ns) {
		t.Fatalf("Resolve error = %v, want NoSolutionError", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "1.0") {
		t.Errorf("report does not cite the available version:\n%s", msg)
	}
}

func TestResolvePrereleaseOptIn(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0a1")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo>=1.0a1"))
	if got, want := res.String(), "foo==1.0a1\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveSelfDependency(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0", "foo>=2")

	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo"))
	var sd *SelfDependencyError
	if !errors.As(err, &sd) {
		t.Fatalf("Resolve error = %v, want SelfDependencyError", err)
	}
	if sd.Name != "foo" || sd.Version != "1.0" {
		t.Errorf("SelfDependencyError = %+v, want foo 1.0", sd)
	}
}

func TestResolveSelfDependencyCompatible(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0", "foo>=1")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo"))
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveURLPin(t *testing.T) {
	const url = "https://files.example.test/foo-1.2-py3-none-any.whl"
	client := NewLocalClient()
	client.AddURL(url, Candidate{
		Name:    "foo",
		Version: "1.2",
		Dist:    DistForFilename("foo-1.2-py3-none-any.whl", url),
	}, "bar>=1")
	client.AddVersion("bar", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo @ "+url))
	p, ok := res.Get("foo")
	if !ok || p.Version != "1.2" {
		t.Fatalf("Get(foo) = %+v, %v; want version 1.2", p, ok)
	}
	if p.Dist.URL != url {
		t.Errorf("Dist.URL = %s, want %s", p.Dist.URL, url)
	}
	if _, ok := res.Get("bar"); !ok {
		t.Error("URL pin's dependency bar missing from resolution")
	}
}

func TestResolveDisallowedURL(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("bar", "1.0", "foo @ https://files.example.test/foo-1.0-py3-none-any.whl")

	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "bar"))
	var du *DisallowedURLError
	if !errors.As(err, &du) {
		t.Fatalf("Resolve error = %v, want DisallowedURLError", err)
	}
	if du.Name != "foo" {
		t.Errorf("DisallowedURLError.Name = %s, want foo", du.Name)
	}
}

func TestResolveConflictingURLs(t *testing.T) {
	client := NewLocalClient()
	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t,
		"foo @ https://files.example.test/foo-1.0-py3-none-any.whl",
		"foo @ https://files.example.test/foo-2.0-py3-none-any.whl",
	))
	var cu *ConflictingURLsError
	if !errors.As(err, &cu) {
		t.Fatalf("Resolve error = %v, want ConflictingURLsError", err)
	}
}

func TestResolveYanked(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.AddVersion("foo", "2.0")
	client.SetYanked("foo", "2.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo"))
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}

	// An exact pin may still reach the yanked version.
	r = NewResolver(client, testPython(t, "3.12"))
	res = mustResolve(t, r, testManifest(t, "foo==2.0"))
	if got, want := res.String(), "foo==2.0\n"; got != want {
		t.Errorf("pinned resolve:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveRequiresPythonBacktrack(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.SetRequiresPython("foo", "1.0", ">=3.6")
	client.AddVersion("foo", "2.0")
	client.SetRequiresPython("foo", "2.0", ">=3.10")

	r := NewResolver(client, testPython(t, "3.8"))
	res := mustResolve(t, r, testManifest(t, "foo"))
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveRequiresPythonHint(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "2.0")
	client.SetRequiresPython("foo", "2.0", ">=3.10")

	r := NewResolver(client, testPython(t, "3.8"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo"))
	var ns *NoSolutionError
	if !errors.As(err, &ns) {
		t.Fatalf("Resolve error = %v, want NoSolutionError", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "hint:") || !strings.Contains(msg, "Python") {
		t.Errorf("report lacks a Python version hint:\n%s", msg)
	}
}

func TestResolveExtras(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0",
		`bar>=1 ; extra == "extra1"`,
		"baz>=1",
	)
	client.AddVersion("bar", "1.0")
	client.AddVersion("baz", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo[extra1]"))
	want := "bar==1.0\nbaz==1.0\nfoo[extra1]==1.0\n"
	if got := res.String(); got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
	p, _ := res.Get("foo")
	if diff := cmp.Diff([]string{"extra1"}, p.Extras); diff != "" {
		t.Errorf("foo extras: (-want +got):\n%s", diff)
	}
}

func TestResolveExtrasNotEnabled(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0", `bar>=1 ; extra == "extra1"`)
	client.AddVersion("bar", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "foo"))
	if _, ok := res.Get("bar"); ok {
		t.Error("bar resolved without its gating extra")
	}
}

func TestResolveConstraints(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.AddVersion("foo", "2.0")
	client.AddVersion("unrelated", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	m := testManifest(t, "foo")
	m.Constraints = []Requirement{
		mustRequirement(t, "foo<2"),
		mustRequirement(t, "unrelated<5"),
	}
	res := mustResolve(t, r, m)
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveLowestDirection(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.AddVersion("foo", "2.0")

	r := NewResolver(client, testPython(t, "3.12"), WithResolutionDirection(Lowest))
	res := mustResolve(t, r, testManifest(t, "foo>=1"))
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolvePreferences(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.AddVersion("foo", "2.0")

	r := NewResolver(client, testPython(t, "3.12"),
		WithPreferences(map[PackageName]string{"foo": "1.0"}))
	res := mustResolve(t, r, testManifest(t, "foo"))
	if got, want := res.String(), "foo==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveNameMismatch(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")
	client.SetMetadataName("foo", "totally-different")

	r := NewResolver(client, testPython(t, "3.12"))
	_, err := r.Resolve(context.Background(), testManifest(t, "foo"))
	var nm *NameMismatchError
	if !errors.As(err, &nm) {
		t.Fatalf("Resolve error = %v, want NameMismatchError", err)
	}
	if nm.Requested != "foo" || nm.Metadata != "totally-different" {
		t.Errorf("NameMismatchError = %+v", nm)
	}
}

func TestResolveSingleFlight(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("a", "1.0", "shared>=1")
	client.AddVersion("b", "1.0", "shared>=1")
	client.AddVersion("shared", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	mustResolve(t, r, testManifest(t, "a", "b", "shared"))
	if calls := client.VersionCalls("shared"); calls != 1 {
		t.Errorf("Versions(shared) ran %d times, want 1", calls)
	}
}

func TestResolveDeterministicUnderReordering(t *testing.T) {
	build := func(delayed PackageName) *Resolution {
		client := NewLocalClient()
		client.AddVersion("a", "1.0", "c<2")
		client.AddVersion("b", "1.0", "c>=1")
		client.AddVersion("c", "1.0")
		client.AddVersion("c", "2.0")
		client.Delay = func(name PackageName) {
			if name == delayed {
				time.Sleep(20 * time.Millisecond)
			}
		}
		r := NewResolver(client, testPython(t, "3.12"))
		return mustResolve(t, r, testManifest(t, "a", "b"))
	}
	first := build("a")
	second := build("b")
	if first.String() != second.String() {
		t.Errorf("fetch order changed the outcome:\n%s\nvs:\n%s", first, second)
	}
	if got, want := first.String(), "a==1.0\nb==1.0\nc==1.0\n"; got != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveGraph(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("a", "1.0", "b>=1")
	client.AddVersion("b", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	res := mustResolve(t, r, testManifest(t, "a"))
	g := res.Graph()
	g.Canon()

	var names []string
	for _, n := range g.Nodes {
		names = append(names, string(n.Name))
	}
	if diff := cmp.Diff([]string{"root", "a", "b"}, names); diff != "" {
		t.Fatalf("graph nodes: (-want +got):\n%s", diff)
	}
	wantEdges := []Edge{
		{From: 0, To: 1, Requirement: "a"},
		{From: 1, To: 2, Requirement: "b>=1"},
	}
	if diff := cmp.Diff(wantEdges, g.Edges); diff != "" {
		t.Errorf("graph edges: (-want +got):\n%s", diff)
	}
}

func TestResolverReusesMetadataAcrossCalls(t *testing.T) {
	client := NewLocalClient()
	client.AddVersion("foo", "1.0")

	r := NewResolver(client, testPython(t, "3.12"))
	mustResolve(t, r, testManifest(t, "foo"))
	mustResolve(t, r, testManifest(t, "foo"))
	if calls := client.VersionCalls("foo"); calls != 1 {
		t.Errorf("Versions(foo) ran %d times across two resolutions, want 1", calls)
	}
}
