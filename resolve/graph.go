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
	"sort"
	"strings"
)

// NodeID identifies a node in a Graph. It is scoped to one Graph and indexes
// its Nodes slice.
type NodeID int

// Node is one resolved package version in a dependency Graph.
type Node struct {
	Name    PackageName
	Version string
	Extras  []string
}

// Edge records that the resolved version at From required the one at To,
// with the requirement as written.
type Edge struct {
	From        NodeID
	To          NodeID
	Requirement string
}

// Graph is the dependency structure of a successful resolution. The first
// node is the root.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// AddNode inserts a node, not connected to anything.
func (g *Graph) AddNode(n Node) NodeID {
	g.Nodes = append(g.Nodes, n)
	return NodeID(len(g.Nodes) - 1)
}

// AddEdge inserts an edge between two existing nodes.
func (g *Graph) AddEdge(from, to NodeID, req string) error {
	if !g.contains(from) {
		return fmt.Errorf("node not in graph: %v", from)
	}
	if !g.contains(to) {
		return fmt.Errorf("node not in graph: %v", to)
	}
	g.Edges = append(g.Edges, Edge{From: from, To: to, Requirement: req})
	return nil
}

func (g *Graph) contains(n NodeID) bool {
	return n >= 0 && int(n) < len(g.Nodes)
}

// Canon sorts the graph into a canonical form suitable for comparison:
// nodes ordered by name and version with the root kept first, edges ordered
// by endpoints and requirement.
func (g *Graph) Canon() {
	order := make([]int, len(g.Nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a == 0 || b == 0 {
			return a == 0
		}
		na, nb := g.Nodes[a], g.Nodes[b]
		if na.Name != nb.Name {
			return na.Name < nb.Name
		}
		if na.Version != nb.Version {
			return na.Version < nb.Version
		}
		return strings.Join(na.Extras, ",") < strings.Join(nb.Extras, ",")
	})
	oldToNew := make([]int, len(order))
	nodes := make([]Node, len(order))
	for newID, oldID := range order {
		oldToNew[oldID] = newID
		nodes[newID] = g.Nodes[oldID]
	}
	g.Nodes = nodes
	for i, e := range g.Edges {
		g.Edges[i].From = NodeID(oldToNew[e.From])
		g.Edges[i].To = NodeID(oldToNew[e.To])
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		ei, ej := g.Edges[i], g.Edges[j]
		if ei.From != ej.From {
			return ei.From < ej.From
		}
		if ei.To != ej.To {
			return ei.To < ej.To
		}
		return ei.Requirement < ej.Requirement
	})
}

// String renders the graph as a spanning tree using each node's first
// incoming edge as its creator; other edges are shown as labeled references.
func (g *Graph) String() string {
	if len(g.Nodes) == 0 {
		return ""
	}
	creator := make(map[NodeID]NodeID, len(g.Nodes))
	dependents := make([]int, len(g.Nodes))
	creator[0] = 0
	dependents[0] = 1
	for _, e := range g.Edges {
		dependents[e.To]++
		if _, ok := creator[e.To]; !ok && e.To != e.From {
			creator[e.To] = e.From
		}
	}

	type treeNode struct {
		label    int
		nid      NodeID
		n        *Node
		req      string
		children []*treeNode
	}
	nodes := make([]*treeNode, len(g.Nodes))
	label := 0
	for i := range g.Nodes {
		nodes[i] = &treeNode{nid: NodeID(i), n: &g.Nodes[i]}
		if dependents[i] > 1 {
			label++
			nodes[i].label = label
		}
	}
	created := make([]bool, len(g.Nodes))
	for _, e := range g.Edges {
		nf, nt := nodes[e.From], nodes[e.To]
		if e.From != creator[e.To] || created[e.To] || e.From == e.To {
			nt = &treeNode{label: nt.label}
		}
		if e.From == creator[e.To] {
			created[e.To] = true
		}
		nt.req = e.Requirement
		nf.children = append(nf.children, nt)
	}

	var b strings.Builder
	var walk func(n *treeNode, prefix1, prefix2 string)
	walk = func(n *treeNode, prefix1, prefix2 string) {
		b.WriteString(prefix1)
		if n.n == nil {
			fmt.Fprintf(&b, "$%d@%s\n", n.label, n.req)
			return
		}
		if n.label > 0 {
			fmt.Fprintf(&b, "%d: ", n.label)
		}
		name := string(n.n.Name)
		if len(n.n.Extras) > 0 {
			name = fmt.Sprintf("%s[%s]", name, strings.Join(n.n.Extras, ","))
		}
		if prefix1 == "" {
			fmt.Fprintf(&b, "%s %s\n", name, n.n.Version)
		} else {
			fmt.Fprintf(&b, "%s@%s %s\n", name, n.req, n.n.Version)
		}
		for i, c := range n.children {
			p1, p2 := "├─ ", "│  "
			if i == len(n.children)-1 {
				p1, p2 = "└─ ", "   "
			}
			walk(c, prefix2+p1, prefix2+p2)
		}
	}
	walk(nodes[0], "", "")
	return b.String()
}
