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

	"deps.dev/util/semver"
)

// A PythonRequirement is the interpreter context a resolution runs against:
// the version installed in the current environment and the version the
// resolution targets (the minimum the resolved set must support). They
// coincide unless resolving for a different deployment target.
//
// Each is exposed to the solver as a virtual single-version package, so a
// candidate's requires-python constraint is an ordinary dependency edge and
// propagates like any other range.
type PythonRequirement struct {
	installed *semver.Version
	target    *semver.Version
}

// NewPythonRequirement parses the installed and target interpreter versions.
// An empty target defaults to the installed version.
func NewPythonRequirement(installed, target string) (*PythonRequirement, error) {
	iv, err := semver.PyPI.Parse(installed)
	if err != nil {
		return nil, fmt.Errorf("invalid installed Python version %q: %w", installed, err)
	}
	if target == "" {
		return &PythonRequirement{installed: iv, target: iv}, nil
	}
	tv, err := semver.PyPI.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target Python version %q: %w", target, err)
	}
	return &PythonRequirement{installed: iv, target: tv}, nil
}

// Installed returns the current environment's interpreter version.
func (p *PythonRequirement) Installed() *semver.Version { return p.installed }

// Target returns the interpreter version the resolution targets.
func (p *PythonRequirement) Target() *semver.Version { return p.target }

func (p *PythonRequirement) String() string {
	if p.installed.Compare(p.target) == 0 {
		return p.installed.String()
	}
	return fmt.Sprintf("%s (targeting %s)", p.installed, p.target)
}
