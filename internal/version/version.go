// Package version reports the dapctl version and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Version is the current version of dapctl.
	Version = "0.2.0"

	// GitHubRepo is the repository releases are published from.
	GitHubRepo = "ctagard/dapctl"

	releaseURL   = "https://api.github.com/repos/%s/releases/latest"
	checkTimeout = 5 * time.Second
)

// Release describes the latest published release.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
	Newer   bool   `json:"newer"`
}

// String is the line printed by `dapctl version --check`.
func (r *Release) String() string {
	if !r.Newer {
		return fmt.Sprintf("dapctl v%s is up to date", Version)
	}
	return fmt.Sprintf("dapctl v%s is available (current: v%s): %s", r.Version, Version, r.URL)
}

// Checker fetches the latest release. The zero value queries GitHub.
type Checker struct {
	// URL overrides the release endpoint.
	URL    string
	Client *http.Client
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Latest returns the latest release and whether it is newer than Version.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	url := c.URL
	if url == "" {
		url = fmt.Sprintf(releaseURL, GitHubRepo)
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: checkTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "dapctl/"+Version)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release check returned status %d", resp.StatusCode)
	}

	var gr githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	latest := strings.TrimPrefix(gr.TagName, "v")
	return &Release{
		Version: latest,
		URL:     gr.HTMLURL,
		Newer:   Compare(Version, latest) < 0,
	}, nil
}

// Compare orders two major.minor.patch versions. Pre-release suffixes are
// ignored.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	var out [3]int
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	for i, part := range strings.SplitN(v, ".", 3) {
		n, _ := strconv.Atoi(part)
		out[i] = n
	}
	return out
}
