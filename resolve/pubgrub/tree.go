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

import "sort"

// External is a leaf of a DerivationTree: a fact about the world rather than
// a derived conclusion. Which fields are meaningful depends on Kind:
// KindNoVersions uses Package/Versions, KindFromDependency additionally uses
// Dependency/DependencyVersions, KindNotRoot uses Package only.
type External struct {
	Kind               IncompatibilityKind
	Package            Package
	Versions           Range
	Dependency         Package
	DependencyVersions Range
}

// A DerivationTree is the proof that a resolution is impossible: a binary
// tree whose leaves are external incompatibilities and whose inner nodes are
// derived ones. Shared subproofs are shared nodes, which the reporter uses
// to number repeated conclusions instead of re-deriving them.
type DerivationTree struct {
	// External is non-nil for leaves.
	External *External

	// Terms is the derived incompatibility's terms, for inner nodes.
	Terms []PackageTerm

	Cause1, Cause2 *DerivationTree
}

// newDerivationTree converts an incompatibility and its causes into a tree,
// preserving sharing: an incompatibility reached through several paths maps
// to a single node.
func newDerivationTree(in *Incompatibility) *DerivationTree {
	memo := make(map[*Incompatibility]*DerivationTree)
	var build func(*Incompatibility) *DerivationTree
	build = func(in *Incompatibility) *DerivationTree {
		if t, ok := memo[in]; ok {
			return t
		}
		t := &DerivationTree{}
		memo[in] = t
		if in.kind == KindDerived {
			t.Terms = in.terms
			t.Cause1 = build(in.cause1)
			t.Cause2 = build(in.cause2)
			return t
		}
		ext := &External{Kind: in.kind}
		switch in.kind {
		case KindFromDependency:
			ext.Package = in.depender
			ext.Versions = in.dependerRange
			ext.Dependency = in.dependency
			ext.DependencyVersions = in.dependencyRange
		default:
			pt := in.terms[0]
			ext.Package = pt.Package
			ext.Versions = pt.Term.Versions()
		}
		t.External = ext
		return t
	}
	return build(in)
}

// Packages returns every package mentioned anywhere in the tree, sorted.
func (t *DerivationTree) Packages() []Package {
	seen := make(map[Package]bool)
	visited := make(map[*DerivationTree]bool)
	var walk func(*DerivationTree)
	walk = func(n *DerivationTree) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		if n.External != nil {
			seen[n.External.Package] = true
			if n.External.Kind == KindFromDependency {
				seen[n.External.Dependency] = true
			}
			return
		}
		for _, pt := range n.Terms {
			seen[pt.Package] = true
		}
		walk(n.Cause1)
		walk(n.Cause2)
	}
	walk(t)
	out := make([]Package, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Externals calls f for each distinct external leaf in the tree.
func (t *DerivationTree) Externals(f func(*External)) {
	visited := make(map[*DerivationTree]bool)
	var walk func(*DerivationTree)
	walk = func(n *DerivationTree) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		if n.External != nil {
			f(n.External)
			return
		}
		walk(n.Cause1)
		walk(n.Cause2)
	}
	walk(t)
}
