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
	"testing"

	"github.com/mageos/uv/resolve/pubgrub"
)

func mustRange(t *testing.T, spec string) pubgrub.Range {
	t.Helper()
	r, err := ParseSpecifiers(spec)
	if err != nil {
		t.Fatalf("ParseSpecifiers(%q): %v", spec, err)
	}
	return r
}

func mustRequirement(t *testing.T, s string) Requirement {
	t.Helper()
	req, err := ParseRequirement(s)
	if err != nil {
		t.Fatalf("ParseRequirement(%q): %v", s, err)
	}
	return req
}

func selectorVersionMap(versions ...string) *VersionMap {
	cands := make([]Candidate, len(versions))
	for i, v := range versions {
		cands[i] = candidate("pkg", v)
	}
	return NewVersionMap("pkg", cands)
}

func TestSelectDirection(t *testing.T) {
	vm := selectorVersionMap("1.0", "1.5", "2.0")
	allowed := mustRange(t, ">=1.0,<3.0")

	s := NewCandidateSelector(Highest, PrereleaseExplicit, nil, nil)
	if c, _, ok := s.Select("pkg", allowed, vm); !ok || c.Version != "2.0" {
		t.Errorf("Highest: got %v, %v; want 2.0", c.Version, ok)
	}

	s = NewCandidateSelector(Lowest, PrereleaseExplicit, nil, nil)
	if c, _, ok := s.Select("pkg", allowed, vm); !ok || c.Version != "1.0" {
		t.Errorf("Lowest: got %v, %v; want 1.0", c.Version, ok)
	}
}

func TestSelectPrereleasePolicy(t *testing.T) {
	vm := selectorVersionMap("1.0", "2.0a1")
	full := mustRange(t, "")

	// By default the pre-release is invisible.
	s := NewCandidateSelector(Highest, PrereleaseExplicit, nil, nil)
	if c, _, ok := s.Select("pkg", full, vm); !ok || c.Version != "1.0" {
		t.Errorf("explicit, no opt-in: got %v, %v; want 1.0", c.Version, ok)
	}

	// A direct requirement mentioning a pre-release opts the package in.
	direct := []Requirement{mustRequirement(t, "pkg>=2.0a1")}
	s = NewCandidateSelector(Highest, PrereleaseExplicit, nil, direct)
	if !s.PrereleaseAllowed("pkg") {
		t.Fatal("PrereleaseAllowed(pkg) = false after pre-release specifier")
	}
	if c, _, ok := s.Select("pkg", full, vm); !ok || c.Version != "2.0a1" {
		t.Errorf("explicit, opted in: got %v, %v; want 2.0a1", c.Version, ok)
	}

	// Allow mode needs no opt-in.
	s = NewCandidateSelector(Highest, PrereleaseAllow, nil, nil)
	if c, _, ok := s.Select("pkg", full, vm); !ok || c.Version != "2.0a1" {
		t.Errorf("allow: got %v, %v; want 2.0a1", c.Version, ok)
	}
}

func TestSelectPrereleaseIfNecessary(t *testing.T) {
	s := NewCandidateSelector(Highest, PrereleaseIfNecessary, nil, nil)

	// With a final release in range, pre-releases stay hidden.
	vm := selectorVersionMap("1.0", "2.0a1")
	if c, _, ok := s.Select("pkg", mustRange(t, ""), vm); !ok || c.Version != "1.0" {
		t.Errorf("final release present: got %v, %v; want 1.0", c.Version, ok)
	}

	// With only pre-releases in range, they become eligible.
	vm = selectorVersionMap("2.0a1", "2.0b1")
	if c, _, ok := s.Select("pkg", mustRange(t, ""), vm); !ok || c.Version != "2.0b1" {
		t.Errorf("only pre-releases: got %v, %v; want 2.0b1", c.Version, ok)
	}
}

func TestSelectYanked(t *testing.T) {
	yanked := candidate("pkg", "2.0")
	yanked.Yanked = true
	vm := NewVersionMap("pkg", []Candidate{candidate("pkg", "1.0"), yanked})
	s := NewCandidateSelector(Highest, PrereleaseExplicit, nil, nil)

	// Yanked versions are skipped over...
	if c, _, ok := s.Select("pkg", mustRange(t, ""), vm); !ok || c.Version != "1.0" {
		t.Errorf("yanked skipped: got %v, %v; want 1.0", c.Version, ok)
	}
	// ...unless the range is an exact pin on them.
	if c, _, ok := s.Select("pkg", mustRange(t, "==2.0"), vm); !ok || c.Version != "2.0" {
		t.Errorf("yanked pinned: got %v, %v; want 2.0", c.Version, ok)
	}
}

func TestSelectPreference(t *testing.T) {
	vm := selectorVersionMap("1.0", "1.5", "2.0")
	prefs := map[PackageName]string{"pkg": "1.5"}
	s := NewCandidateSelector(Highest, PrereleaseExplicit, prefs, nil)

	// A pinned version in range wins over the direction.
	if c, _, ok := s.Select("pkg", mustRange(t, ">=1.0"), vm); !ok || c.Version != "1.5" {
		t.Errorf("preference in range: got %v, %v; want 1.5", c.Version, ok)
	}
	// Out of range, the pin is ignored.
	if c, _, ok := s.Select("pkg", mustRange(t, ">=1.6"), vm); !ok || c.Version != "2.0" {
		t.Errorf("preference out of range: got %v, %v; want 2.0", c.Version, ok)
	}
}

func TestSelectNothingEligible(t *testing.T) {
	vm := selectorVersionMap("1.0")
	s := NewCandidateSelector(Highest, PrereleaseExplicit, nil, nil)
	if c, _, ok := s.Select("pkg", mustRange(t, ">=2.0"), vm); ok {
		t.Errorf("Select out of range = %v, want miss", c.Version)
	}
}
