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
	"fmt"
	"strings"

	"github.com/mageos/uv/resolve/pubgrub"
)

// maxListedVersions caps how many available versions a report line cites.
const maxListedVersions = 8

// reportFormatter phrases derivation-tree facts using only information the
// resolver actually gathered: version lists come from visited version maps
// and interpreter versions from the environment requirement.
type reportFormatter struct {
	err *NoSolutionError
}

func (f *reportFormatter) packageRange(pkg pubgrub.Package, r pubgrub.Range) string {
	switch pkg.Kind {
	case pubgrub.KindRoot:
		return "your requirements"
	case pubgrub.KindPythonInstalled:
		return "the current Python version" + rangeSuffix(r)
	case pubgrub.KindPythonTarget:
		return "the target Python version" + rangeSuffix(r)
	}
	var b strings.Builder
	b.WriteString(pkg.Name)
	if pkg.Extra != "" {
		fmt.Fprintf(&b, "[%s]", pkg.Extra)
	}
	b.WriteString(rangeSuffix(r))
	if pkg.URL != "" {
		fmt.Fprintf(&b, " @ %s", pkg.URL)
	}
	return b.String()
}

func rangeSuffix(r pubgrub.Range) string {
	if r.Full() {
		return ""
	}
	return r.String()
}

func (f *reportFormatter) External(e *pubgrub.External) string {
	switch e.Kind {
	case pubgrub.KindNotRoot:
		return "your requirements cannot be satisfied"
	case pubgrub.KindNoVersions:
		base := fmt.Sprintf("there is no version of %s", f.packageRange(e.Package, e.Versions))
		if avail := f.err.AvailableVersions(PackageName(e.Package.Name)); len(avail) > 0 {
			names := make([]string, 0, maxListedVersions)
			for _, v := range avail {
				if len(names) == maxListedVersions {
					names = append(names, "...")
					break
				}
				names = append(names, v.String())
			}
			return fmt.Sprintf("%s (available: %s)", base, strings.Join(names, ", "))
		}
		return base
	case pubgrub.KindFromDependency:
		target := f.packageRange(e.Dependency, e.DependencyVersions)
		if e.Dependency.Kind == pubgrub.KindPythonInstalled || e.Dependency.Kind == pubgrub.KindPythonTarget {
			target = "Python" + rangeSuffix(e.DependencyVersions)
		}
		if e.Package.Kind == pubgrub.KindRoot {
			return fmt.Sprintf("you require %s", target)
		}
		return fmt.Sprintf("%s depends on %s", f.packageRange(e.Package, e.Versions), target)
	}
	return "an unknown fact holds"
}

func (f *reportFormatter) Terms(terms []pubgrub.PackageTerm) string {
	if len(terms) == 0 {
		return "your requirements are unsatisfiable"
	}
	if len(terms) == 1 {
		pt := terms[0]
		if pt.Package.Kind == pubgrub.KindRoot {
			return "your requirements are unsatisfiable"
		}
		if pt.Term.Positive() {
			return fmt.Sprintf("%s cannot be used", f.packageRange(pt.Package, pt.Term.Versions()))
		}
		return fmt.Sprintf("%s must be used", f.packageRange(pt.Package, pt.Term.Versions()))
	}
	if len(terms) == 2 {
		t1, t2 := terms[0], terms[1]
		if t1.Term.Positive() && !t2.Term.Positive() {
			return fmt.Sprintf("%s depends on %s",
				f.packageRange(t1.Package, t1.Term.Versions()),
				f.packageRange(t2.Package, t2.Term.Versions()))
		}
		if !t1.Term.Positive() && t2.Term.Positive() {
			return fmt.Sprintf("%s depends on %s",
				f.packageRange(t2.Package, t2.Term.Versions()),
				f.packageRange(t1.Package, t1.Term.Versions()))
		}
		return fmt.Sprintf("%s is incompatible with %s",
			f.packageRange(t1.Package, t1.Term.Versions()),
			f.packageRange(t2.Package, t2.Term.Versions()))
	}
	parts := make([]string, len(terms))
	for i, pt := range terms {
		if pt.Term.Positive() {
			parts[i] = f.packageRange(pt.Package, pt.Term.Versions())
		} else {
			parts[i] = "not " + f.packageRange(pt.Package, pt.Term.Versions())
		}
	}
	return strings.Join(parts, " and ") + " are incompatible"
}

// renderNoSolution renders the full failure message: the derivation-tree
// report followed by any applicable hints.
func renderNoSolution(e *NoSolutionError) string {
	f := &reportFormatter{err: e}
	msg := pubgrub.Report(e.tree, f)
	for _, hint := range collectHints(e) {
		msg += "\n\nhint: " + hint
	}
	return msg
}

// collectHints scans the proof's leaves for failure shapes with a known
// remedy: pre-releases excluded by policy and interpreter mismatches.
func collectHints(e *NoSolutionError) []string {
	var hints []string
	seen := make(map[string]bool)
	add := func(h string) {
		if !seen[h] {
			seen[h] = true
			hints = append(hints, h)
		}
	}
	e.tree.Externals(func(ext *pubgrub.External) {
		switch ext.Kind {
		case pubgrub.KindNoVersions:
			if ext.Package.Kind != pubgrub.KindNamed || e.selector == nil {
				return
			}
			name := PackageName(ext.Package.Name)
			if e.selector.PrereleaseAllowed(name) {
				return
			}
			for _, v := range e.AvailableVersions(name) {
				if v.IsPrerelease() && ext.Versions.Contains(v) {
					add(fmt.Sprintf("%s was requested with a range that can only be satisfied by a pre-release (e.g. %s), but pre-releases of %s are not enabled; add an explicit pre-release specifier to allow them",
						name, v, name))
					return
				}
			}
		case pubgrub.KindFromDependency:
			if e.python == nil {
				return
			}
			switch ext.Dependency.Kind {
			case pubgrub.KindPythonTarget:
				if !ext.DependencyVersions.Contains(e.python.Target()) {
					add(fmt.Sprintf("the target Python version (%s) does not satisfy Python%s; consider raising it",
						e.python.Target(), rangeSuffix(ext.DependencyVersions)))
				}
			case pubgrub.KindPythonInstalled:
				if !ext.DependencyVersions.Contains(e.python.Installed()) {
					add(fmt.Sprintf("the current Python version (%s) does not satisfy Python%s",
						e.python.Installed(), rangeSuffix(ext.DependencyVersions)))
				}
			}
		}
	})
	return hints
}
