// Package aqua implements the PackageManager interface for packages
// described the way aquaproj/aqua-registry entries describe them: a
// GitHub repo plus templated asset/checksum name patterns and optional
// minisign/slsa verification metadata, rather than the fixed
// per-platform asset_patterns map the github backend expects. Cosign
// metadata is not read: verifyMeta fills only the minisign and slsa keys.
package aqua

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
	depstemplate "github.com/haldor-dev/rtv/pkg/template"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Manager implements the PackageManager interface for aqua-style packages.
type Manager struct {
	client *http.Client
	token  string
}

type release struct {
	TagName string  `json:"tag_name"`
	Draft   bool    `json:"draft"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// NewManager creates a new aqua-style manager.
func NewManager() *Manager {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	return &Manager{client: depshttp.GetHttpClient(), token: token}
}

func (m *Manager) Name() string { return "aqua" }

func (m *Manager) fetchReleases(ctx context.Context, repo string) ([]release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("https://api.github.com/repos/%s/releases?per_page=100", repo), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github returned status %d for %s", resp.StatusCode, repo)
	}
	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
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
		versions = append(versions, types.Version{Version: v.String(), Tag: r.TagName})
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

// Resolve templates the configured asset pattern the way an aqua-registry
// entry would ({{.version}}/{{.tag}}/{{.os}}/{{.arch}} via the shared gomplate
// templater), falling back to the weighted matcher when no pattern is set
// or the templated name isn't present in the release.
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

	assetName := m.templatedAssetName(pkg, target.TagName, plat)
	chosen, ok := byName[assetName]
	if !ok {
		best, found, _ := matcher.Best(names, plat, matcher.Options{})
		if !found {
			return nil, &manager.ErrPlatformNotSupported{Package: pkg.Name, Platform: plat.String(), AvailablePlatforms: names}
		}
		chosen = byName[best]
	}

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

	if checksumPattern := m.extraString(pkg, "checksum_asset"); checksumPattern != "" {
		checksumName, terr := depstemplate.TemplateString(checksumPattern, map[string]string{
			"version": depstemplate.NormalizeVersion(target.TagName),
			"tag":     target.TagName,
			"os":      plat.OS,
			"arch":    plat.Arch,
		})
		if terr == nil {
			if a, ok := byName[checksumName]; ok {
				resolution.ChecksumURL = a.BrowserDownloadURL
			}
		}
	} else if checksumName, ok := matcher.FindChecksumFile(chosen.Name, names); ok {
		resolution.ChecksumURL = byName[checksumName].BrowserDownloadURL
	}

	resolution.VerifyMeta = m.verifyMeta(pkg)

	return resolution, nil
}

// templatedAssetName renders pkg.Extra["asset"] (an aqua-registry-style
// asset name template) the same way a "linux-x64" entry in AssetPatterns
// would be rendered.
func (m *Manager) templatedAssetName(pkg types.Package, tag string, plat platform.Platform) string {
	pattern := m.extraString(pkg, "asset")
	if pattern == "" {
		if p, ok := pkg.AssetPatterns[plat.String()]; ok {
			pattern = p
		}
	}
	if pattern == "" {
		return ""
	}
	name, err := depstemplate.TemplateString(pattern, map[string]string{
		"version": depstemplate.NormalizeVersion(tag),
		"tag":     tag,
		"os":      plat.OS,
		"arch":    plat.Arch,
	})
	if err != nil {
		return ""
	}
	return name
}

func (m *Manager) verifyMeta(pkg types.Package) map[string]string {
	meta := map[string]string{}
	if key := m.extraString(pkg, "minisign_public_key"); key != "" {
		meta["minisign.pubkey"] = key
	}
	if uri := m.extraString(pkg, "slsa_source_uri"); uri != "" {
		meta["slsa.source_uri"] = uri
	}
	if tag := m.extraString(pkg, "slsa_source_tag"); tag != "" {
		meta["slsa.source_tag"] = tag
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func (m *Manager) extraString(pkg types.Package, key string) string {
	if pkg.Extra == nil {
		return ""
	}
	if v, ok := pkg.Extra[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
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
	return nil, fmt.Errorf("verify not implemented for aqua manager")
}
