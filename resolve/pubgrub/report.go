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
	"fmt"
	"strings"
)

// A Formatter renders the atoms of a failure report. Reports are assembled
// here; phrasing of facts and conclusions is delegated so that callers can
// substitute richer context (known available versions, environment names).
type Formatter interface {
	// External phrases a leaf fact, e.g. "spam==2.0.0 depends on eggs>=2".
	External(e *External) string

	// Terms phrases a derived conclusion from its terms, e.g.
	// "spam>=2 cannot be used". An empty or root-only term list is the
	// final conclusion that solving failed.
	Terms(terms []PackageTerm) string
}

// Report renders a derivation tree as prose, one deduction per line.
// Conclusions needed more than once are numbered and referenced instead of
// being restated. The walk is deterministic.
func Report(tree *DerivationTree, f Formatter) string {
	if tree.External != nil {
		return f.External(tree.External)
	}
	r := &reporter{
		f:        f,
		refCount: make(map[*DerivationTree]int),
		lineNum:  make(map[*DerivationTree]int),
	}
	r.countRefs(tree)
	r.visit(tree)
	return strings.Join(r.lines, "\n")
}

type reporter struct {
	f        Formatter
	lines    []string
	refCount map[*DerivationTree]int
	lineNum  map[*DerivationTree]int
	nextNum  int
}

func (r *reporter) countRefs(t *DerivationTree) {
	if t == nil || t.External != nil {
		return
	}
	r.refCount[t]++
	if r.refCount[t] > 1 {
		return
	}
	r.countRefs(t.Cause1)
	r.countRefs(t.Cause2)
}

// addLine records a line for node t, numbering it if numbered or if the node
// is shared.
func (r *reporter) addLine(t *DerivationTree, line string, forceNumber bool) {
	if forceNumber || r.refCount[t] > 1 {
		r.nextNum++
		r.lineNum[t] = r.nextNum
		line = fmt.Sprintf("%s (%d)", line, r.nextNum)
	}
	r.lines = append(r.lines, line)
}

func (r *reporter) conclusion(t *DerivationTree) string {
	return r.f.Terms(t.Terms)
}

// visit writes the deduction lines for a derived node, assuming its causes
// are either leaves, already numbered, or rendered first.
func (r *reporter) visit(t *DerivationTree) {
	c1, c2 := t.Cause1, t.Cause2
	e1, e2 := c1.External, c2.External
	switch {
	case e1 != nil && e2 != nil:
		r.addLine(t, fmt.Sprintf("Because %s and %s, %s.",
			r.f.External(e1), r.f.External(e2), r.conclusion(t)), false)
	case e1 == nil && e2 != nil:
		r.visitMixed(t, c1, e2)
	case e1 != nil && e2 == nil:
		r.visitMixed(t, c2, e1)
	default:
		n1, ok1 := r.lineNum[c1]
		n2, ok2 := r.lineNum[c2]
		switch {
		case ok1 && ok2:
			r.addLine(t, fmt.Sprintf("Because %s (%d) and %s (%d), %s.",
				r.conclusion(c1), n1, r.conclusion(c2), n2, r.conclusion(t)), false)
		case ok1:
			r.visit(c2)
			r.addLine(t, fmt.Sprintf("And because %s (%d), %s.",
				r.conclusion(c1), n1, r.conclusion(t)), false)
		case ok2:
			r.visit(c1)
			r.addLine(t, fmt.Sprintf("And because %s (%d), %s.",
				r.conclusion(c2), n2, r.conclusion(t)), false)
		default:
			// Both causes are unrendered derivations. Render the
			// first in full with a forced line number, then the
			// second, then combine.
			r.visit(c1)
			if _, ok := r.lineNum[c1]; !ok {
				// Number the line just written for c1.
				r.nextNum++
				r.lineNum[c1] = r.nextNum
				r.lines[len(r.lines)-1] = fmt.Sprintf("%s (%d)", r.lines[len(r.lines)-1], r.nextNum)
			}
			r.lines = append(r.lines, "")
			r.visit(c2)
			r.addLine(t, fmt.Sprintf("And because %s (%d), %s.",
				r.conclusion(c1), r.lineNum[c1], r.conclusion(t)), false)
		}
	}
}

// visitMixed writes the lines for a node with one derived and one external
// cause.
func (r *reporter) visitMixed(t, derived *DerivationTree, ext *External) {
	if n, ok := r.lineNum[derived]; ok {
		r.addLine(t, fmt.Sprintf("Because %s and %s (%d), %s.",
			r.f.External(ext), r.conclusion(derived), n, r.conclusion(t)), false)
		return
	}
	d1, d2 := derived.Cause1, derived.Cause2
	if d1.External != nil && d2.External != nil && r.refCount[derived] <= 1 {
		// Collapse a simple derivation into a two-line deduction.
		r.lines = append(r.lines, fmt.Sprintf("Because %s and %s, %s.",
			r.f.External(d1.External), r.f.External(d2.External), r.conclusion(derived)))
		r.addLine(t, fmt.Sprintf("And because %s, %s.",
			r.f.External(ext), r.conclusion(t)), false)
		return
	}
	r.visit(derived)
	r.addLine(t, fmt.Sprintf("And because %s, %s.",
		r.f.External(ext), r.conclusion(t)), false)
}
