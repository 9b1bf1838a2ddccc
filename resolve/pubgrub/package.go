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
Package pubgrub implements conflict-driven dependency version solving.

The algorithm is PubGrub, as described by the pub package manager's
documentation:
https://github.com/dart-lang/pub/blob/master/doc/solver.md

The solver state is an accumulating set of incompatibilities (sets of
package terms that cannot all hold) plus a partial solution. Unit
propagation derives forced assignments from incompatibilities; when a
conflict is found the solver learns a new incompatibility from the
conflict's causes and backjumps. When the root package itself is proven
unsatisfiable the chain of causes forms a DerivationTree, a proof that no
solution exists.

The package is deliberately unopinionated about what is being solved: a
Package is an opaque identity and versions are deps.dev/util/semver
versions. Callers drive the loop themselves, alternating UnitPropagation
with decisions, which keeps dependency retrieval (and its concurrency)
outside the solver core.
*/
package pubgrub

import (
	"fmt"
	"strings"
)

// PackageKind discriminates the closed set of package identities the solver
// works with.
type PackageKind byte

const (
	// KindRoot is the synthetic package representing the top-level
	// requirement set. There is exactly one per resolution and it has a
	// single synthetic version.
	KindRoot PackageKind = iota

	// KindPythonInstalled is a virtual package whose only version is the
	// interpreter version of the current environment.
	KindPythonInstalled

	// KindPythonTarget is a virtual package whose only version is the
	// declared minimum/target interpreter version.
	KindPythonTarget

	// KindNamed is a real package, optionally qualified by an extra or
	// pinned to a direct artifact URL.
	KindNamed
)

// Package identifies what is being solved for. It is a small comparable
// value; identity equality is (Kind, Name, Extra, URL). Two identities with
// the same name but different URLs are distinct packages, which the resolver
// layer treats as a fatal conflict rather than a range problem.
type Package struct {
	Kind  PackageKind
	Name  string
	Extra string
	URL   string
}

// RootPackage returns the synthetic root package.
func RootPackage() Package { return Package{Kind: KindRoot} }

// PythonInstalledPackage returns the virtual package for the installed
// interpreter version.
func PythonInstalledPackage() Package { return Package{Kind: KindPythonInstalled} }

// PythonTargetPackage returns the virtual package for the target interpreter
// version.
func PythonTargetPackage() Package { return Package{Kind: KindPythonTarget} }

// NamedPackage returns the package identity for a plain named package.
func NamedPackage(name string) Package { return Package{Kind: KindNamed, Name: name} }

// ExtraPackage returns the identity of a named package qualified with an
// extra. It is a distinct solver node that depends on its base package at an
// identical version.
func ExtraPackage(name, extra string) Package {
	return Package{Kind: KindNamed, Name: name, Extra: extra}
}

// URLPackage returns the identity of a named package pinned to a direct
// artifact URL.
func URLPackage(name, url string) Package {
	return Package{Kind: KindNamed, Name: name, URL: url}
}

// Virtual reports whether the package is one of the synthetic solver nodes
// (root or interpreter) rather than a real named package.
func (p Package) Virtual() bool { return p.Kind != KindNamed }

func (p Package) String() string {
	switch p.Kind {
	case KindRoot:
		return "root"
	case KindPythonInstalled:
		return "the current Python"
	case KindPythonTarget:
		return "the requested Python"
	}
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Extra != "" {
		fmt.Fprintf(&b, "[%s]", p.Extra)
	}
	if p.URL != "" {
		fmt.Fprintf(&b, " @ %s", p.URL)
	}
	return b.String()
}

// Compare reports whether p1 is less than, equal to or greater than p2,
// returning -1, 0 or 1 respectively. Virtual packages order before named
// ones; named packages order by name, extra and then URL. It provides the
// deterministic ordering used for incompatibility terms and reports.
func (p1 Package) Compare(p2 Package) int {
	if p1.Kind != p2.Kind {
		if p1.Kind < p2.Kind {
			return -1
		}
		return 1
	}
	if c := strings.Compare(p1.Name, p2.Name); c != 0 {
		return c
	}
	if c := strings.Compare(p1.Extra, p2.Extra); c != 0 {
		return c
	}
	return strings.Compare(p1.URL, p2.URL)
}
