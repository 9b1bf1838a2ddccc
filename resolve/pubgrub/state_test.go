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
	"testing"

	"deps.dev/util/semver"
	"github.com/google/go-cmp/cmp"
)

// world is a static dependency universe for driving the solver in tests.
type world struct {
	// versions available per package, ascending.
	versions map[Package][]*semver.Version
	// deps lists the dependencies of pkg.String()+" "+version.String().
	deps map[string][]Dependency
}

func (w *world) dependencies(pkg Package, ver *semver.Version) []Dependency {
	return w.deps[pkg.String()+" "+ver.String()]
}

// solve runs the full solve loop against a static world, selecting the
// highest available version each time, the way the production driver does
// once fetching is taken out of the picture.
func solve(t *testing.T, w *world, rootDeps []Dependency) (map[string]string, *DerivationTree) {
	t.Helper()
	root := RootPackage()
	rootVersion, err := semver.PyPI.Parse("0")
	if err != nil {
		t.Fatal(err)
	}
	w.versions[root] = []*semver.Version{rootVersion}
	w.deps[root.String()+" "+rootVersion.String()] = rootDeps

	st := NewState(root, rootVersion, nil)
	next := root
	for steps := 0; ; steps++ {
		if steps > 1000 {
			t.Fatal("solver did not terminate")
		}
		tree, err := st.UnitPropagation(next)
		if err != nil {
			t.Fatalf("UnitPropagation: %v", err)
		}
		if tree != nil {
			return nil, tree
		}
		und := st.UndecidedPackages()
		if len(und) == 0 {
			out := make(map[string]string)
			for _, d := range st.Solution() {
				if d.Package != root {
					out[d.Package.String()] = d.Version.String()
				}
			}
			return out, nil
		}
		pr := und[0]
		next = pr.Package
		var chosen *semver.Version
		avail := w.versions[pr.Package]
		for i := len(avail) - 1; i >= 0; i-- {
			if pr.Versions.Contains(avail[i]) {
				chosen = avail[i]
				break
			}
		}
		if chosen == nil {
			st.AddIncompatibility(NoVersions(pr.Package, pr.Versions))
			continue
		}
		fresh := st.AddDependencies(pr.Package, chosen, w.dependencies(pr.Package, chosen))
		st.Decide(pr.Package, chosen, fresh)
	}
}

func dep(t *testing.T, name string, r Range) Dependency {
	t.Helper()
	return Dependency{Package: NamedPackage(name), Versions: r}
}

func TestSolveNoConflicts(t *testing.T) {
	w := &world{
		versions: map[Package][]*semver.Version{
			NamedPackage("foo"): {v(t, "1.0")},
			NamedPackage("bar"): {v(t, "1.0"), v(t, "2.0")},
		},
		deps: map[string][]Dependency{
			"foo 1.0": {dep(t, "bar", Between(v(t, "1.0"), v(t, "2.0")))},
			"bar 1.0": nil,
			"bar 2.0": nil,
		},
	}
	got, tree := solve(t, w, []Dependency{dep(t, "foo", Between(v(t, "1.0"), v(t, "2.0")))})
	if tree != nil {
		t.Fatalf("solve failed:\n%s", Report(tree, plainFormatter{}))
	}
	want := map[string]string{"foo": "1.0", "bar": "1.0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("solution mismatch (-want +got):\n%s", diff)
	}
}

func TestSolveAvoidingConflictDuringDecisionMaking(t *testing.T) {
	// foo 1.1 needs bar 2.x, but root restricts bar below 2, so the
	// solver must settle for foo 1.0 without reporting a failure.
	w := &world{
		versions: map[Package][]*semver.Version{
			NamedPackage("foo"): {v(t, "1.0"), v(t, "1.1")},
			NamedPackage("bar"): {v(t, "1.0"), v(t, "1.1"), v(t, "2.0")},
		},
		deps: map[string][]Dependency{
			"foo 1.0": nil,
			"foo 1.1": {dep(t, "bar", Between(v(t, "2.0"), v(t, "3.0")))},
			"bar 1.0": nil,
			"bar 1.1": nil,
			"bar 2.0": nil,
		},
	}
	got, tree := solve(t, w, []Dependency{
		dep(t, "foo", AtLeast(v(t, "1.0"))),
		dep(t, "bar", Between(v(t, "1.0"), v(t, "2.0"))),
	})
	if tree != nil {
		t.Fatalf("solve failed:\n%s", Report(tree, plainFormatter{}))
	}
	want := map[string]string{"foo": "1.0", "bar": "1.1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("solution mismatch (-want +got):\n%s", diff)
	}
}

func TestSolveConflictResolution(t *testing.T) {
	// foo's only version needs a bar that does not exist, so solving
	// must fail with a proof mentioning both facts.
	w := &world{
		versions: map[Package][]*semver.Version{
			NamedPackage("foo"): {v(t, "1.0")},
			NamedPackage("bar"): {v(t, "1.0")},
		},
		deps: map[string][]Dependency{
			"foo 1.0": {dep(t, "bar", Between(v(t, "2.0"), v(t, "3.0")))},
			"bar 1.0": nil,
		},
	}
	got, tree := solve(t, w, []Dependency{dep(t, "foo", Between(v(t, "1.0"), v(t, "2.0")))})
	if tree == nil {
		t.Fatalf("solve succeeded with %v, want failure", got)
	}
	pkgs := tree.Packages()
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.String()
	}
	want := []string{"root", "bar", "foo"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tree packages mismatch (-want +got):\n%s", diff)
	}
}

func TestSolveBacktracksAfterPartialSatisfier(t *testing.T) {
	// The example from the conflict resolution section of the solver
	// documentation: resolving needs a learned clause to step back past
	// an intermediate decision without bisecting the whole history.
	w := &world{
		versions: map[Package][]*semver.Version{
			NamedPackage("foo"):  {v(t, "1.0"), v(t, "1.1")},
			NamedPackage("bar"):  {v(t, "1.0"), v(t, "2.0")},
			NamedPackage("baz"):  {v(t, "1.0")},
			NamedPackage("quux"): {v(t, "1.0"), v(t, "2.0")},
		},
		deps: map[string][]Dependency{
			"foo 1.1":  {dep(t, "bar", Between(v(t, "2.0"), v(t, "3.0")))},
			"foo 1.0":  nil,
			"bar 2.0":  {dep(t, "baz", Between(v(t, "3.0"), v(t, "4.0")))},
			"bar 1.0":  nil,
			"baz 1.0":  nil,
			"quux 1.0": nil,
			"quux 2.0": nil,
		},
	}
	got, tree := solve(t, w, []Dependency{
		dep(t, "foo", AtLeast(v(t, "1.0"))),
		dep(t, "quux", AtLeast(v(t, "1.0"))),
	})
	if tree != nil {
		t.Fatalf("solve failed:\n%s", Report(tree, plainFormatter{}))
	}
	want := map[string]string{"foo": "1.0", "quux": "2.0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("solution mismatch (-want +got):\n%s", diff)
	}
}

func TestDecideRejectsConflictingVersion(t *testing.T) {
	st := NewState(RootPackage(), v(t, "0"), nil)
	if tree, err := st.UnitPropagation(RootPackage()); err != nil || tree != nil {
		t.Fatalf("UnitPropagation = %v, %v", tree, err)
	}
	root := RootPackage()
	fresh := st.AddDependencies(root, v(t, "0"), []Dependency{
		dep(t, "a", Between(v(t, "1.0"), v(t, "2.0"))),
	})
	if !st.Decide(root, v(t, "0"), fresh) {
		t.Fatal("root decision rejected")
	}
	if tree, err := st.UnitPropagation(root); err != nil || tree != nil {
		t.Fatalf("UnitPropagation = %v, %v", tree, err)
	}
	// a is now constrained to [1.0, 2.0); deciding a version whose own
	// dependencies immediately contradict the partial solution must be
	// rejected and rolled back.
	a := NamedPackage("a")
	bad := st.AddDependencies(a, v(t, "1.5"), []Dependency{
		{Package: root, Versions: Singleton(v(t, "99"))},
	})
	if st.Decide(a, v(t, "1.5"), bad) {
		t.Error("conflicting decision accepted")
	}
	if _, ok := st.DecisionFor(a); ok {
		t.Error("rejected decision left in the partial solution")
	}
}
