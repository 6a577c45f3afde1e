// Package cargo implements the PackageManager interface for Rust crates
// installed via `cargo install`, modeled on pkg/manager/golang's
// subprocess-invoke pattern.
package cargo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/types"
)

// CargoManager implements the PackageManager interface for crates.io
// packages installed via `cargo install`.
type CargoManager struct{}

// NewCargoManager creates a new Cargo manager.
func NewCargoManager() *CargoManager {
	return &CargoManager{}
}

func (m *CargoManager) Name() string { return "cargo" }

// DiscoverVersions queries the crates.io sparse index, a newline-delimited
// JSON document with one object per published version.
func (m *CargoManager) DiscoverVersions(ctx context.Context, pkg types.Package, plat platform.Platform, limit int) ([]types.Version, error) {
	crate := m.crateName(pkg)
	return fetchSparseIndexVersions(ctx, crate, limit)
}

func (m *CargoManager) Resolve(ctx context.Context, pkg types.Package, version string, plat platform.Platform) (*types.Resolution, error) {
	return &types.Resolution{
		Package:     pkg,
		Version:     version,
		Platform:    plat,
		DownloadURL: "",
		IsArchive:   false,
	}, nil
}

// Install runs `cargo install`, honoring binstall/locked/features/bin/registry
// options declared in pkg.Extra.
func (m *CargoManager) Install(ctx context.Context, resolution *types.Resolution, opts types.InstallOptions) error {
	pkg := resolution.Package
	root := opts.BinDir
	if root == "" {
		return fmt.Errorf("bin_dir is required for cargo package installation")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	crate := m.crateName(pkg)
	useBinstall := m.extraBool(pkg, "binstall", false) && commandExists("cargo-binstall")
	locked := m.extraBool(pkg, "locked", true)

	var args []string
	if strings.Contains(crate, "/") || strings.HasPrefix(crate, "http://") || strings.HasPrefix(crate, "https://") {
		args = []string{"install", "--git", crate}
		if resolution.Version != "" && resolution.Version != "latest" {
			args = append(args, "--tag", resolution.Version)
		}
	} else {
		pin := crate
		if resolution.Version != "" && resolution.Version != "latest" {
			pin = fmt.Sprintf("%s@%s", crate, resolution.Version)
		}
		cmd := "install"
		if useBinstall {
			cmd = "binstall"
		}
		args = []string{cmd, pin, "--no-confirm"}
	}

	args = append(args, "--root", root)

	if locked && !useBinstall {
		args = append(args, "--locked")
	}
	if features := m.extraString(pkg, "features"); features != "" {
		args = append(args, "--features", features)
	}
	if !m.extraBool(pkg, "default-features", true) {
		args = append(args, "--no-default-features")
	}
	if bin := m.extraString(pkg, "bin"); bin != "" {
		args = append(args, "--bin", bin)
	}
	if registry := m.extraString(pkg, "registry"); registry != "" {
		args = append(args, "--registry", registry)
	}

	binary := "cargo"
	if useBinstall {
		binary = "cargo"
		args = append([]string{"binstall"}, args[1:]...)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cargo install failed: %w", err)
	}
	return nil
}

func (m *CargoManager) GetChecksums(ctx context.Context, pkg types.Package, version string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *CargoManager) Verify(ctx context.Context, binaryPath string, pkg types.Package) (*types.InstalledInfo, error) {
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

func (m *CargoManager) crateName(pkg types.Package) string {
	if crate := m.extraString(pkg, "crate"); crate != "" {
		return crate
	}
	return pkg.Name
}

func (m *CargoManager) extraString(pkg types.Package, key string) string {
	if pkg.Extra == nil {
		return ""
	}
	if v, ok := pkg.Extra[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func (m *CargoManager) extraBool(pkg types.Package, key string, def bool) bool {
	if pkg.Extra == nil {
		return def
	}
	v, ok := pkg.Extra[key]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
