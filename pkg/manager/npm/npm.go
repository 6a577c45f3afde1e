// Package npm implements the PackageManager interface for npm registry
// packages installed globally via `npm install -g`, modeled on
// pkg/manager/golang's subprocess-invoke pattern.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	depshttp "github.com/haldor-dev/rtv/pkg/http"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/types"
)

// registryPackage mirrors the subset of the npm registry package document
// used here: `GET /:pkg` returns dist-tags and a versions map.
type registryPackage struct {
	DistTags map[string]string        `json:"dist-tags"`
	Versions map[string]registryEntry `json:"versions"`
}

type registryEntry struct {
	Version string `json:"version"`
}

// NpmManager implements the PackageManager interface for npm packages.
type NpmManager struct{}

// NewNpmManager creates a new npm manager.
func NewNpmManager() *NpmManager {
	return &NpmManager{}
}

func (m *NpmManager) Name() string { return "npm" }

func (m *NpmManager) packageName(pkg types.Package) string {
	if pkg.Extra != nil {
		if v, ok := pkg.Extra["package"]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return pkg.Name
}

func (m *NpmManager) fetchRegistryDoc(ctx context.Context, name string) (*registryPackage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://registry.npmjs.org/"+name, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json")

	resp, err := depshttp.GetHttpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching npm registry entry for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("npm registry returned status %d for %s", resp.StatusCode, name)
	}

	var doc registryPackage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding npm registry entry for %s: %w", name, err)
	}
	return &doc, nil
}

func (m *NpmManager) DiscoverVersions(ctx context.Context, pkg types.Package, plat platform.Platform, limit int) ([]types.Version, error) {
	doc, err := m.fetchRegistryDoc(ctx, m.packageName(pkg))
	if err != nil {
		return nil, err
	}

	versions := versionsFromDoc(doc)
	if limit > 0 && limit < len(versions) {
		versions = versions[:limit]
	}
	return versions, nil
}

// versionsFromDoc converts a registry document's version map into a
// newest-first list of parsed semver versions.
func versionsFromDoc(doc *registryPackage) []types.Version {
	versions := make([]types.Version, 0, len(doc.Versions))
	for raw := range doc.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		versions = append(versions, types.Version{Version: v.String(), Tag: raw})
	}

	sort.Slice(versions, func(i, j int) bool {
		vi, _ := semver.NewVersion(versions[i].Version)
		vj, _ := semver.NewVersion(versions[j].Version)
		return vi.GreaterThan(vj)
	})
	return versions
}

// LatestTag returns the registry's "latest" dist-tag, used to resolve a
// bare `latest` request without walking the full version list.
func (m *NpmManager) LatestTag(ctx context.Context, pkg types.Package) (string, error) {
	doc, err := m.fetchRegistryDoc(ctx, m.packageName(pkg))
	if err != nil {
		return "", err
	}
	if v, ok := doc.DistTags["latest"]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no latest dist-tag for %s", m.packageName(pkg))
}

func (m *NpmManager) Resolve(ctx context.Context, pkg types.Package, version string, plat platform.Platform) (*types.Resolution, error) {
	return &types.Resolution{
		Package:  pkg,
		Version:  version,
		Platform: plat,
	}, nil
}

// Install runs `npm install -g` with a prefix pointed at the install
// directory so the package's bin shims land under opts.BinDir/bin.
func (m *NpmManager) Install(ctx context.Context, resolution *types.Resolution, opts types.InstallOptions) error {
	pkg := resolution.Package
	prefix := opts.BinDir
	if prefix == "" {
		return fmt.Errorf("bin_dir is required for npm package installation")
	}
	if err := os.MkdirAll(prefix, 0755); err != nil {
		return fmt.Errorf("failed to create install prefix: %w", err)
	}

	target := m.packageName(pkg)
	if resolution.Version != "" && resolution.Version != "latest" {
		target = fmt.Sprintf("%s@%s", target, resolution.Version)
	}

	cmd := exec.CommandContext(ctx, "npm", "install", "-g", "--prefix", prefix, target)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("npm install failed: %w", err)
	}
	return nil
}

func (m *NpmManager) GetChecksums(ctx context.Context, pkg types.Package, version string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *NpmManager) Verify(ctx context.Context, binaryPath string, pkg types.Package) (*types.InstalledInfo, error) {
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("binary not found: %s", binaryPath)
	}

	version := "unknown"
	if pkg.VersionCommand != "" {
		cmd := exec.CommandContext(ctx, binaryPath, strings.Split(pkg.VersionCommand, " ")...)
		if out, err := cmd.CombinedOutput(); err == nil {
			version = strings.TrimSpace(string(out))
		}
	}

	return &types.InstalledInfo{Version: version, Path: binaryPath}, nil
}
