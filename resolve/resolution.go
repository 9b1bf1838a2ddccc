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
	"sort"
	"strings"
)

// ResolvedPackage is one entry of a successful resolution: the chosen
// version, the artifact it came from and the extras enabled on it.
type ResolvedPackage struct {
	Name    PackageName
	Version string
	Dist    Dist
	Extras  []string
}

// A Resolution is the all-or-nothing result of a solve: every package
// reachable from the requirements mapped to exactly one version, plus the
// dependency graph connecting them.
type Resolution struct {
	packages map[PackageName]ResolvedPackage
	graph    *Graph
}

// Packages returns the resolved set sorted by name.
func (r *Resolution) Packages() []ResolvedPackage {
	out := make([]ResolvedPackage, 0, len(r.packages))
	for _, p := range r.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the resolved entry for name.
func (r *Resolution) Get(name PackageName) (ResolvedPackage, bool) {
	p, ok := r.packages[name]
	return p, ok
}

// Len returns the number of resolved packages.
func (r *Resolution) Len() int { return len(r.packages) }

// Graph returns the dependency graph. The root node's edges are the direct
// requirements.
func (r *Resolution) Graph() *Graph { return r.graph }

// String lists the resolved packages in requirements-file form.
func (r *Resolution) String() string {
	var b strings.Builder
	for _, p := range r.Packages() {
		b.WriteString(string(p.Name))
		if len(p.Extras) > 0 {
			b.WriteString("[" + strings.Join(p.Extras, ",") + "]")
		}
		b.WriteString("==" + p.Version + "\n")
	}
	return b.String()
}
