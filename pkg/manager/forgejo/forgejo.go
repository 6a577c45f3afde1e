// Package forgejo implements the PackageManager interface for releases
// hosted on Forgejo/Gitea-compatible instances (codeberg.org by default,
// any self-hosted instance via the package's "host" extra).
package forgejo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	depshttp "github.com/haldor-dev/rtv/pkg/http"
	"github.com/haldor-dev/rtv/pkg/manager"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/extract"
	depstemplate "github.com/haldor-dev/rtv/pkg/template"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/haldor-dev/rtv/pkg/version"
)

const defaultHost = "codeberg.org"

// ReleaseManager implements the PackageManager interface for Forgejo releases.
type ReleaseManager struct {
	client *http.Client
	token  string
}

// Release mirrors the subset of the Forgejo/Gitea releases API response used here.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset mirrors a single release attachment.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// NewReleaseManager creates a new Forgejo release manager, optionally
// authenticated via token (the forgejo backend passes FORGEJO_TOKEN).
func NewReleaseManager(token string) *ReleaseManager {
	return &ReleaseManager{client: depshttp.GetHttpClient(), token: token}
}

func (m *ReleaseManager) Name() string { return "forgejo" }

func (m *ReleaseManager) host(pkg types.Package) string {
	if pkg.Extra != nil {
		if h, ok := pkg.Extra["host"]; ok {
			return fmt.Sprintf("%v", h)
		}
	}
	return defaultHost
}

func (m *ReleaseManager) releasesURL(pkg types.Package) string {
	return fmt.Sprintf("https://%s/api/v1/repos/%s/releases", m.host(pkg), pkg.Repo)
}

func (m *ReleaseManager) fetchReleases(ctx context.Context, pkg types.Package) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.releasesURL(pkg), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "token "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching forgejo releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forgejo API returned status %d for %s", resp.StatusCode, pkg.Repo)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decoding forgejo releases: %w", err)
	}
	return releases, nil
}

func (m *ReleaseManager) DiscoverVersions(ctx context.Context, pkg types.Package, plat platform.Platform, limit int) ([]types.Version, error) {
	if pkg.Repo == "" {
		return nil, fmt.Errorf("package %s has no repository specified", pkg.Name)
	}

	releases, err := m.fetchReleases(ctx, pkg)
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
		versions = append(versions, types.Version{
			Version:    v.String(),
			Tag:        r.TagName,
			Prerelease: r.Prerelease,
		})
	}

	if pkg.VersionExpr != "" {
		filtered, err := version.ApplyVersionExpr(versions, pkg.VersionExpr)
		if err != nil {
			return nil, fmt.Errorf("failed to apply version_expr for %s: %w", pkg.Name, err)
		}
		versions = filtered
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

func (m *ReleaseManager) Resolve(ctx context.Context, pkg types.Package, versionStr string, plat platform.Platform) (*types.Resolution, error) {
	releases, err := m.fetchReleases(ctx, pkg)
	if err != nil {
		return nil, err
	}

	var target *Release
	for i := range releases {
		r := &releases[i]
		if r.TagName == versionStr || r.TagName == "v"+versionStr {
			target = r
			break
		}
		if v, parseErr := semver.NewVersion(r.TagName); parseErr == nil {
			if version.Normalize(v.String()) == version.Normalize(versionStr) {
				target = r
				break
			}
		}
	}
	if target == nil {
		return nil, &manager.ErrVersionNotFound{Package: pkg.Name, Version: versionStr}
	}

	pattern, exists := pkg.AssetPatterns[plat.String()]
	if !exists {
		for key, p := range pkg.AssetPatterns {
			if strings.HasPrefix(key, plat.OS+"-") {
				pattern, exists = p, true
				break
			}
		}
	}

	assetNames := make([]string, len(target.Assets))
	for i, a := range target.Assets {
		assetNames[i] = a.Name
	}

	var assetName string
	if exists {
		assetName, err = depstemplate.TemplateString(pattern, map[string]string{
			"version": depstemplate.NormalizeVersion(target.TagName),
			"tag":     target.TagName,
			"os":      plat.OS,
			"arch":    plat.Arch,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to template asset pattern: %w", err)
		}
	}

	var matched *Asset
	for i := range target.Assets {
		if target.Assets[i].Name == assetName {
			matched = &target.Assets[i]
			break
		}
	}
	if matched == nil {
		filterAssets := make([]manager.AssetInfo, len(target.Assets))
		for i, a := range target.Assets {
			filterAssets[i] = manager.AssetInfo{Name: a.Name, DownloadURL: a.BrowserDownloadURL}
		}
		filtered, filterErr := manager.FilterAssetsByPlatform(filterAssets, plat.OS, plat.Arch)
		if filterErr == nil && len(filtered) == 1 {
			for i := range target.Assets {
				if target.Assets[i].Name == filtered[0].Name {
					matched = &target.Assets[i]
					break
				}
			}
		}
	}
	if matched == nil {
		assetErr := &manager.ErrAssetNotFound{
			Package:         pkg.Name,
			AssetPattern:    assetName,
			Platform:        plat.String(),
			AvailableAssets: assetNames,
		}
		return nil, manager.EnhanceAssetNotFoundError(pkg.Name, assetName, plat.String(), assetNames, assetErr)
	}

	isArchive := extract.IsArchive(matched.Name)

	return &types.Resolution{
		Package:     pkg,
		Version:     target.TagName,
		Platform:    plat,
		DownloadURL: matched.BrowserDownloadURL,
		Size:        matched.Size,
		IsArchive:   isArchive,
		BinaryPath:  pkg.BinaryPath,
	}, nil
}

func (m *ReleaseManager) Install(ctx context.Context, resolution *types.Resolution, opts types.InstallOptions) error {
	return fmt.Errorf("install method not yet implemented - use the store package")
}

func (m *ReleaseManager) GetChecksums(ctx context.Context, pkg types.Package, versionStr string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *ReleaseManager) Verify(ctx context.Context, binaryPath string, pkg types.Package) (*types.InstalledInfo, error) {
	return nil, fmt.Errorf("verify not implemented for forgejo manager")
}
