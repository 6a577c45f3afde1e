package cargo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	depshttp "github.com/haldor-dev/rtv/pkg/http"
	"github.com/haldor-dev/rtv/pkg/types"
)

// sparseIndexEntry is one line of a crates.io sparse-index document: one
// JSON object per published version, newline-delimited (not a JSON array).
type sparseIndexEntry struct {
	Vers string `json:"vers"`
	Yanked bool `json:"yanked"`
}

// sparseIndexURL builds the crates.io sparse index path for a crate name,
// which buckets by name length/prefix per the documented layout.
func sparseIndexURL(crate string) string {
	lower := strings.ToLower(crate)
	switch len(lower) {
	case 1:
		return fmt.Sprintf("https://index.crates.io/1/%s", lower)
	case 2:
		return fmt.Sprintf("https://index.crates.io/2/%s", lower)
	case 3:
		return fmt.Sprintf("https://index.crates.io/3/%s/%s", lower[:1], lower)
	default:
		return fmt.Sprintf("https://index.crates.io/%s/%s/%s", lower[:2], lower[2:4], lower)
	}
}

func fetchSparseIndexVersions(ctx context.Context, crate string, limit int) ([]types.Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sparseIndexURL(crate), nil)
	if err != nil {
		return nil, err
	}

	resp, err := depshttp.GetHttpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching crates.io sparse index for %s: %w", crate, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crates.io sparse index returned status %d for %s", resp.StatusCode, crate)
	}

	var versions []types.Version
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry sparseIndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Yanked {
			continue
		}
		v, err := semver.NewVersion(entry.Vers)
		if err != nil {
			continue
		}
		versions = append(versions, types.Version{Version: v.String(), Tag: entry.Vers})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading crates.io sparse index for %s: %w", crate, err)
	}

	sort.Slice(versions, func(i, j int) bool {
		vi, _ := semver.NewVersion(versions[i].Version)
		vj, _ := semver.NewVersion(versions[j].Version)
		return vi.GreaterThan(vj)
	})

	if limit > 0 && limit < len(versions) {
		versions = versions[:limit]
	}
	return versions, nil
}
