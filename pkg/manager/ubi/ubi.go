// Package ubi implements a generic GitHub-release backend that needs no
// per-package asset_patterns configuration: it lists a release's assets and
// picks the best one with pkg/matcher's weighted scorer, the same approach
// ubi (https://github.com/houseabsolute/ubi) uses to install "almost any"
// single-binary GitHub release.
package ubi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	depshttp "github.com/haldor-dev/rtv/pkg/http"
	"github.com/haldor-dev/rtv/pkg/manager"
	"github.com/haldor-dev/rtv/pkg/matcher"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Manager implements the PackageManager interface for the ubi-style
// pattern-free GitHub asset picker.
type Manager struct {
	client *http.Client
	token  string
}

type release struct {
	TagName    string  `json:"tag_name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// NewManager creates a new ubi-style manager, authenticating with
// GITHUB_TOKEN/GH_TOKEN if set to avoid unauthenticated rate limits.
func NewManager() *Manager {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	return &Manager{client: depshttp.GetHttpClient(), token: token}
}

func (m *Manager) Name() string { return "ubi" }

func (m *Manager) do(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("github rate limited while fetching %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github returned status %d for %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m *Manager) fetchReleases(ctx context.Context, repo string) ([]release, error) {
	var releases []release
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases?per_page=100", repo)
	if err := m.do(ctx, url, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

func (m *Manager) DiscoverVersions(ctx context.Context, pkg types.Package, plat platform.Platform, limit int) ([]types.Version, error) {
	if pkg.Repo == "" {
		return nil, fmt.Errorf("package %s has no repository specified", pkg.Name)
	}
	releases, err := m.fetchReleases(ctx, pkg.Repo)
	if err != nil {
		return nil, err
	}

	versions := make([]types.Version, 0, len(releases))
	for _, r := range releases {
		if r.Draft || r.TagName == "" {
			continue
		}
		v, err := semver.NewVersion(r.TagName)
		if err != nil {
			continue
		}
		versions = append(versions, types.Version{Version: v.String(), Tag: r.TagName, Prerelease: r.Prerelease})
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

func (m *Manager) Resolve(ctx context.Context, pkg types.Package, versionStr string, plat platform.Platform) (*types.Resolution, error) {
	releases, err := m.fetchReleases(ctx, pkg.Repo)
	if err != nil {
		return nil, err
	}

	var target *release
	for i := range releases {
		r := &releases[i]
		if r.TagName == versionStr || r.TagName == "v"+versionStr || strings.TrimPrefix(r.TagName, "v") == versionStr {
			target = r
			break
		}
	}
	if target == nil {
		return nil, &manager.ErrVersionNotFound{Package: pkg.Name, Version: versionStr}
	}

	names := make([]string, len(target.Assets))
	byName := make(map[string]asset, len(target.Assets))
	for i, a := range target.Assets {
		names[i] = a.Name
		byName[a.Name] = a
	}

	noApp := false
	if pkg.Extra != nil {
		if v, ok := pkg.Extra["no_app"]; ok {
			if b, ok := v.(bool); ok {
				noApp = b
			}
		}
	}

	best, ok, candidates := matcher.Best(names, plat, matcher.Options{NoApp: noApp})
	if !ok {
		return nil, &manager.ErrPlatformNotSupported{
			Package:            pkg.Name,
			Platform:           plat.String(),
			AvailablePlatforms: names,
		}
	}
	_ = candidates

	chosen := byName[best]

	resolution := &types.Resolution{
		Package:     pkg,
		Version:     target.TagName,
		Platform:    plat,
		DownloadURL: chosen.BrowserDownloadURL,
		Size:        chosen.Size,
		IsArchive:   isArchiveName(chosen.Name),
		BinaryPath:  pkg.BinaryPath,
		GitHubAsset: &types.GitHubAsset{
			Repo:        pkg.Repo,
			Tag:         target.TagName,
			AssetName:   chosen.Name,
			DownloadURL: chosen.BrowserDownloadURL,
		},
	}

	if checksumName, ok := matcher.FindChecksumFile(chosen.Name, names); ok {
		resolution.ChecksumURL = byName[checksumName].BrowserDownloadURL
	}

	return resolution, nil
}

func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.xz", ".txz", ".tar.bz2", ".tar.zst", ".tar", ".zip", ".7z"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (m *Manager) Install(ctx context.Context, resolution *types.Resolution, opts types.InstallOptions) error {
	return fmt.Errorf("install method not yet implemented - use the store package")
}

func (m *Manager) GetChecksums(ctx context.Context, pkg types.Package, versionStr string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *Manager) Verify(ctx context.Context, binaryPath string, pkg types.Package) (*types.InstalledInfo, error) {
	return nil, fmt.Errorf("verify not implemented for ubi manager")
}
