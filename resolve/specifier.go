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
	"strconv"
	"strings"

	"deps.dev/util/semver"

	"github.com/mageos/uv/resolve/pubgrub"
)

// ParseSpecifiers converts a PEP 440 specifier list such as
// ">=1.2,<2.0,!=1.5" into a version range. An empty list is the full range.
func ParseSpecifiers(spec string) (pubgrub.Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return pubgrub.Full(), nil
	}
	r := pubgrub.Full()
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return pubgrub.Range{}, fmt.Errorf("invalid specifier list %q: empty clause", spec)
		}
		sr, err := specifierRange(part)
		if err != nil {
			return pubgrub.Range{}, err
		}
		r = r.Intersect(sr)
	}
	return r, nil
}

var specifierOps = []string{"===", "==", "!=", "~=", ">=", "<=", ">", "<"}

func specifierRange(s string) (pubgrub.Range, error) {
	var op string
	for _, cand := range specifierOps {
		if strings.HasPrefix(s, cand) {
			op = cand
			break
		}
	}
	if op == "" {
		return pubgrub.Range{}, fmt.Errorf("invalid specifier %q: no operator", s)
	}
	lit := strings.TrimSpace(s[len(op):])
	if lit == "" {
		return pubgrub.Range{}, fmt.Errorf("invalid specifier %q: no version", s)
	}

	if wild := strings.HasSuffix(lit, ".*"); wild && (op == "==" || op == "!=") {
		r, err := wildcardRange(lit[:len(lit)-2])
		if err != nil {
			return pubgrub.Range{}, fmt.Errorf("invalid specifier %q: %w", s, err)
		}
		if op == "!=" {
			r = r.Complement()
		}
		return r, nil
	}

	if op == "~=" {
		return tildeRange(lit)
	}

	v, err := semver.PyPI.Parse(lit)
	if err != nil {
		return pubgrub.Range{}, fmt.Errorf("invalid specifier %q: %w", s, err)
	}
	switch op {
	case "==", "===":
		return pubgrub.Singleton(v), nil
	case "!=":
		return pubgrub.Singleton(v).Complement(), nil
	case ">=":
		return pubgrub.AtLeast(v), nil
	case ">":
		return pubgrub.Greater(v), nil
	case "<=":
		return pubgrub.AtMost(v), nil
	case "<":
		return pubgrub.Less(v), nil
	}
	return pubgrub.Range{}, fmt.Errorf("invalid specifier %q", s)
}

// tildeRange converts a compatible-release clause: ~=X.Y[.Z...] means
// >=X.Y[.Z...],<X.(Y+1).dev0 with the bump applied to the second-to-last
// release segment. The .dev0 upper bound keeps pre-release and dev versions
// of the bumped release out, since their release segments no longer share
// the held prefix. A single release segment has nothing to hold fixed, which
// PEP 440 rejects.
func tildeRange(lit string) (pubgrub.Range, error) {
	epoch, release := splitEpochRelease(lit)
	segments := strings.Split(release, ".")
	if len(segments) < 2 {
		return pubgrub.Range{}, &InvalidTildeEqualsError{Specifier: "~=" + lit}
	}
	upperLit, err := bumpLast(epoch, segments[:len(segments)-1])
	if err != nil {
		return pubgrub.Range{}, &InvalidTildeEqualsError{Specifier: "~=" + lit}
	}
	lower, err := semver.PyPI.Parse(lit)
	if err != nil {
		return pubgrub.Range{}, fmt.Errorf("invalid specifier %q: %w", "~="+lit, err)
	}
	upper, err := semver.PyPI.Parse(upperLit + ".dev0")
	if err != nil {
		return pubgrub.Range{}, fmt.Errorf("invalid specifier %q: %w", "~="+lit, err)
	}
	return pubgrub.AtLeast(lower).Intersect(pubgrub.Less(upper)), nil
}

// wildcardRange converts the base of a ==X.Y.* clause to
// [X.Y.dev0, X.(Y+1).dev0): prefix matching admits every version whose
// release segments start with X.Y, including its own pre-releases, and
// nothing of the next release, including its pre-releases.
func wildcardRange(base string) (pubgrub.Range, error) {
	epoch, release := splitEpochRelease(base)
	if release != base[len(epoch):] {
		return pubgrub.Range{}, fmt.Errorf("wildcard after non-release segment in %q", base)
	}
	segments := strings.Split(release, ".")
	upperLit, err := bumpLast(epoch, segments)
	if err != nil {
		return pubgrub.Range{}, err
	}
	lower, err := semver.PyPI.Parse(base + ".dev0")
	if err != nil {
		return pubgrub.Range{}, err
	}
	upper, err := semver.PyPI.Parse(upperLit + ".dev0")
	if err != nil {
		return pubgrub.Range{}, err
	}
	return pubgrub.AtLeast(lower).Intersect(pubgrub.Less(upper)), nil
}

// splitEpochRelease splits a version literal into its epoch prefix
// (including the "!", possibly empty) and the leading dotted release
// segments, dropping any pre/post/dev/local suffix.
func splitEpochRelease(lit string) (epoch, release string) {
	rest := lit
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		epoch = rest[:i+1]
		rest = rest[i+1:]
	}
	end := len(rest)
	for i := 0; i < len(rest); i++ {
		if c := rest[i]; (c < '0' || c > '9') && c != '.' {
			end = i
			break
		}
	}
	return epoch, strings.TrimRight(rest[:end], ".")
}

// bumpLast increments the final segment, returning the bumped literal.
func bumpLast(epoch string, segments []string) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("no release segments")
	}
	last := segments[len(segments)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return "", fmt.Errorf("non-numeric release segment %q", last)
	}
	bumped := make([]string, len(segments))
	copy(bumped, segments)
	bumped[len(bumped)-1] = strconv.Itoa(n + 1)
	return epoch + strings.Join(bumped, "."), nil
}
