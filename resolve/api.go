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
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "deps.dev/api/v3"
	"deps.dev/util/pypi"
)

// A Repository supplies the artifact-level data the Insights API does not
// carry: which distribution serves each version, whether it is yanked, its
// interpreter constraint, and its raw core metadata. Implementations back
// onto a package index such as the PyPI simple API. They must be safe for
// concurrent use.
type Repository interface {
	// Candidate returns the installable distribution of one version.
	// It returns an error wrapping ErrNotFound if the version has no
	// usable artifact.
	Candidate(ctx context.Context, name PackageName, version string) (Candidate, error)

	// URLCandidate returns the candidate behind a direct artifact URL.
	URLCandidate(ctx context.Context, name PackageName, url string) (Candidate, error)

	// Metadata returns the distribution's core metadata file contents.
	Metadata(ctx context.Context, dist Dist) (string, error)
}

// APIClient is a Client that enumerates versions through the deps.dev
// Insights service and completes them with artifact data from a Repository.
// It performs no caching of its own; the Resolver's index memoizes every
// fetch. It is safe for concurrent use.
type APIClient struct {
	c    pb.InsightsClient
	repo Repository
}

// NewAPIClient creates an APIClient using the provided gRPC client to call
// the deps.dev Insights service and repo to reach the distributions
// themselves.
func NewAPIClient(c pb.InsightsClient, repo Repository) *APIClient {
	return &APIClient{c: c, repo: repo}
}

// Versions implements Client. Versions known to the API but lacking an
// installable artifact are dropped rather than reported as errors, matching
// how installers treat releases with no usable files.
func (a *APIClient) Versions(ctx context.Context, name PackageName) (*VersionMap, error) {
	resp, err := a.c.GetPackage(ctx, &pb.GetPackageRequest{
		PackageKey: &pb.PackageKey{
			System: pb.System_PYPI,
			Name:   string(name),
		},
	})
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("package %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	cands := make([]Candidate, 0, len(resp.Versions))
	for _, v := range resp.Versions {
		cand, err := a.repo.Candidate(ctx, name, v.VersionKey.Version)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cands = append(cands, cand)
	}
	return NewVersionMap(name, cands), nil
}

// Requirements implements Client by downloading and parsing the candidate's
// core metadata. A metadata file declaring a different package name is
// reported as a NameMismatchError.
func (a *APIClient) Requirements(ctx context.Context, c Candidate) ([]Requirement, error) {
	data, err := a.repo.Metadata(ctx, c.Dist)
	if err != nil {
		return nil, &FetchError{Dist: c.Dist, Err: err}
	}
	md, err := pypi.ParseMetadata(ctx, data)
	if err != nil {
		return nil, &FetchError{Dist: c.Dist, Err: err}
	}
	if md.Name != "" {
		if declared := NewPackageName(md.Name); declared != c.Name {
			return nil, &NameMismatchError{Requested: c.Name, Metadata: declared}
		}
	}
	reqs := make([]Requirement, 0, len(md.Dependencies))
	for _, d := range md.Dependencies {
		reqs = append(reqs, fromDependency(d))
	}
	return reqs, nil
}

// URLCandidate implements Client.
func (a *APIClient) URLCandidate(ctx context.Context, name PackageName, url string) (Candidate, error) {
	return a.repo.URLCandidate(ctx, name, url)
}
