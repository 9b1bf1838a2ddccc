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

	"deps.dev/util/pypi"
)

// PackageName is a canonicalized PyPI package name (PEP 503 normalization:
// runs of [-_.] collapse to "-", everything lowercased).
type PackageName string

// NewPackageName canonicalizes name.
func NewPackageName(name string) PackageName {
	return PackageName(pypi.CanonPackageName(name))
}

func (n PackageName) String() string { return string(n) }

// A Requirement is a parsed PEP 508 dependency: a canonical name with
// optional extras, an optional PEP 440 specifier list, an optional
// environment marker and an optional direct artifact URL. Specifiers and
// markers stay as written; conversion to ranges and marker evaluation happen
// at resolution time.
type Requirement struct {
	Name       PackageName
	Extras     []string
	Specifiers string
	Marker     string
	URL        string
}

func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(string(r.Name))
	if len(r.Extras) > 0 {
		fmt.Fprintf(&b, "[%s]", strings.Join(r.Extras, ","))
	}
	if r.URL != "" {
		fmt.Fprintf(&b, " @ %s", r.URL)
	} else if r.Specifiers != "" {
		b.WriteString(r.Specifiers)
	}
	if r.Marker != "" {
		fmt.Fprintf(&b, " ; %s", r.Marker)
	}
	return b.String()
}

// ParseRequirement parses a PEP 508 requirement string, including the direct
// URL form "name [extras] @ url ; marker" that plain dependency parsing
// rejects.
func ParseRequirement(s string) (Requirement, error) {
	trimmed := strings.Trim(s, " \t")
	if name, rest, ok := splitURLRequirement(trimmed); ok {
		req, err := parsePlainRequirement(name)
		if err != nil {
			return Requirement{}, err
		}
		url := rest
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			url = rest[:i]
			req.Marker = strings.Trim(rest[i+1:], " \t")
		}
		req.URL = strings.Trim(url, " \t")
		if req.URL == "" {
			return Requirement{}, fmt.Errorf("invalid requirement %q: empty URL", s)
		}
		return req, nil
	}
	return parsePlainRequirement(trimmed)
}

// splitURLRequirement splits "name[extras] @ url..." at the URL marker. The
// "@" must be surrounded by whitespace to be a URL reference rather than
// part of a constraint.
func splitURLRequirement(s string) (name, rest string, ok bool) {
	i := strings.Index(s, " @ ")
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+3:], true
}

func parsePlainRequirement(s string) (Requirement, error) {
	d, err := pypi.ParseDependency(s)
	if err != nil {
		return Requirement{}, err
	}
	return fromDependency(d), nil
}

// fromDependency converts a parsed PEP 508 dependency. ParseDependency
// canonicalizes the name but leaves extras as written.
func fromDependency(d pypi.Dependency) Requirement {
	req := Requirement{
		Name:       PackageName(d.Name),
		Specifiers: d.Constraint,
		Marker:     d.Environment,
	}
	if d.Extras != "" {
		for _, e := range strings.Split(d.Extras, ",") {
			e = strings.Trim(e, " \t")
			if e != "" {
				req.Extras = append(req.Extras, string(NewPackageName(e)))
			}
		}
	}
	return req
}
