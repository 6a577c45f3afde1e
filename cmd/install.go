package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/clicky"
	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/config"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/store"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/haldor-dev/rtv/pkg/verify"
	"github.com/haldor-dev/rtv/pkg/version"
	"github.com/spf13/cobra"
)

var (
	installCheck bool
)

var installCmd = &cobra.Command{
	Use:          "install [tool[@version]...]",
	Short:        "Install one or more dependencies",
	SilenceUsage: true,
	Long: `Install one or more dependencies with optional version specification.

If no arguments are provided, installs all dependencies from deps.yaml.

Examples:
  rtv install                       # Install all dependencies from deps.yaml
  rtv install jq                    # Install jq with default version
  rtv install kubectl@v1.28.0       # Install kubectl version v1.28.0
  rtv install jq yq@v4.16.2 kind    # Install multiple tools
  rtv install --check jq            # Install jq and verify the installation`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolVar(&installCheck, "check", false, "Verify installation by checking version after install")
}

// runInstall is the primary entry point into §4.4's install engine
// (pkg/store): it resolves every requested tool through the same
// dependency-DAG scheduler, per-install fslock, and incomplete-marker state
// machine `rtv use` drives, then — since cmd/check.go and cmd/update.go
// still read tools out of a single flat --bin-dir rather than
// the content-addressed store — symlinks each resolved tool's primary
// binary into --bin-dir so those commands keep working unmodified.
func runInstall(cmd *cobra.Command, args []string) error {
	depsConfig := GetDepsConfig()
	if depsConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	names := args
	if len(names) == 0 {
		for name := range depsConfig.Dependencies {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no dependencies to install: no arguments given and deps.yaml has none configured")
	}

	entries, err := installViaStore(context.Background(), depsConfig, binDir, names, force)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.TV.IsSystem() {
			fmt.Printf("%s: using host installation (%s)\n", e.TV.BA.Short, e.TV.HostPath)
		} else {
			fmt.Printf("%s@%s -> %s\n", e.TV.BA.Short, e.TV.Version, e.TV.InstallPath)
		}
	}

	// Perform post-install check if requested
	if installCheck {
		fmt.Println("\n🔍 Verifying installations...")
		if err := runPostInstallCheck(args); err != nil {
			fmt.Printf("⚠️  Installation verification failed: %v\n", err)
			// Don't return error as installation succeeded, just verification failed
		}
	}

	return nil
}

// installViaStore resolves each "tool" or "tool@constraint" entry against
// the registry and routes it through §4.4's install engine (pkg/store): the
// same dependency-DAG scheduler, per-install fslock, and incomplete-marker
// state machine `rtv use` drives. It is the one place cmd/install.go and
// cmd/check.go's auto-update path call into the orchestrator, so both
// commands exercise identical install semantics. Resolved tools are
// symlinked into binDir afterward so cmd/check.go's
// flat-bin-dir version lookups keep working against the content-addressed
// store.
func installViaStore(ctx context.Context, depsConfig *types.DepsConfig, binDir string, names []string, force bool) ([]store.ToolsetEntry, error) {
	plat := platform.Current()
	dataDir := store.DefaultDataDir()

	lockFile, err := config.LoadLockFile("")
	if err != nil {
		lockFile = nil
	}

	entries := make([]store.ToolsetEntry, 0, len(names))
	jobs := make([]store.Job, 0, len(names))

	for _, arg := range names {
		short, constraint, hasConstraint := strings.Cut(arg, "@")
		if !hasConstraint {
			constraint = depsConfig.Dependencies[short]
		}

		pkg, ok := depsConfig.Registry[short]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q: not found in registry", short)
		}

		be, ok := backend.GetGlobalRegistry().Get(pkg.Manager)
		if !ok {
			return nil, &backend.ErrBackendNotFound{Backend: pkg.Manager}
		}

		ba := store.NewBA(short, pkg.Manager, dataDir)
		req := store.Request{BA: ba, Constraint: constraint, Source: "config", LockFile: lockFile}

		resolved, err := store.ResolveRequest(ctx, be, pkg, req, plat)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}

		tv := store.NewTV(ba, resolved, req)
		jobs = append(jobs, store.Job{
			Package: pkg,
			Backend: be,
			TV:      tv,
			Options: types.InstallOptions{
				BinDir:       binDir,
				Platform:     plat,
				Force:        force,
				SkipChecksum: skipChecksum,
			},
			Platform: plat.String(),
		})
		entries = append(entries, store.ToolsetEntry{TV: tv, Backend: be, Package: pkg})
	}

	st := store.New(4)
	if err := st.InstallAll(ctx, jobs); err != nil {
		return nil, err
	}
	clicky.WaitForGlobalCompletion()

	if err := linkToolsIntoBinDir(entries, binDir); err != nil {
		return nil, err
	}
	return entries, nil
}

// linkToolsIntoBinDir finds each installed TV's primary binary via its
// backend's ListBinPaths (or, for a "system" TV, the host directory
// Detect already found) and symlinks it into binDir under the tool's short
// name, overwriting any existing entry. This is what keeps cmd/check.go's
// flat-bin-dir version checks working against tools
// installed through the content-addressed store.
func linkToolsIntoBinDir(entries []store.ToolsetEntry, binDir string) error {
	if binDir == "" {
		return nil
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin dir: %w", err)
	}

	for _, e := range entries {
		if !e.TV.IsInstalled() {
			continue
		}

		var dirs []string
		if e.TV.IsSystem() {
			dirs = []string{e.TV.HostPath}
		} else {
			dirs = e.Backend.ListBinPaths(e.TV.InstallPath, e.Package)
		}

		binaryName := e.Package.BinaryName
		if binaryName == "" {
			binaryName = e.TV.BA.Short
		}

		var src string
		for _, dir := range dirs {
			candidate := filepath.Join(dir, binaryName)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				src = candidate
				break
			}
		}
		if src == "" {
			// No exact name match in any bin dir; leave PATH-based
			// activation (rtv use/--print-env) as the only way to reach it.
			continue
		}

		dst := filepath.Join(binDir, e.TV.BA.Short+plat0Ext())
		_ = os.Remove(dst)
		if err := os.Symlink(src, dst); err != nil {
			return fmt.Errorf("linking %s into bin dir: %w", e.TV.BA.Short, err)
		}
	}
	return nil
}

// plat0Ext returns the current platform's executable extension (".exe" on
// Windows, "" elsewhere) so linked bin-dir entries are runnable as-is.
func plat0Ext() string {
	return platform.Current().BinaryExtension()
}

// runPostInstallCheck performs version checks on installed tools
func runPostInstallCheck(args []string) error {
	// Use global depsConfig
	depsConfig := GetDepsConfig()
	if depsConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	binDir := depsConfig.Settings.BinDir
	if binDir == "" {
		binDir = "./bin"
	}

	// Determine which tools to check
	var toolsToCheck []string
	if len(args) == 0 {
		// If installing from config, check all configured tools
		for tool := range depsConfig.Registry {
			toolsToCheck = append(toolsToCheck, tool)
		}
	} else {
		// Check only the tools that were installed
		for _, arg := range args {
			name, _, _ := strings.Cut(arg, "@")
			toolsToCheck = append(toolsToCheck, name)
		}
	}

	// Load lock file for checksum verification
	var lockFile *types.LockFile
	var lockErr error
	if lockFile, lockErr = config.LoadLockFile(""); lockErr != nil {
		// Lock file is optional, continue without it
		lockFile = nil
	}

	// Check each tool
	var results []types.CheckResult
	var hasErrors bool
	var checksumIssues bool

	for _, tool := range toolsToCheck {
		pkg, exists := depsConfig.Registry[tool]
		if !exists {
			continue
		}

		// Get requested version from deps.yaml
		var requestedVersion string
		if constraint, exists := depsConfig.Dependencies[tool]; exists {
			requestedVersion = constraint
		}

		result := version.CheckBinaryVersion(nil, tool, pkg, binDir, "", requestedVersion)

		// Perform checksum verification
		if result.Status != types.CheckStatusMissing && result.Status != types.CheckStatusError {
			checksumResult := verify.VerifyBinaryChecksum(tool, pkg, binDir, lockFile, depsConfig.Settings.Platform)
			result.ChecksumStatus = checksumResult.ChecksumStatus
			result.ExpectedChecksum = checksumResult.ExpectedChecksum
			result.ActualChecksum = checksumResult.ActualChecksum
			result.ChecksumType = checksumResult.ChecksumType
			result.ChecksumError = checksumResult.ChecksumError
			result.ChecksumSource = checksumResult.ChecksumSource
		}

		results = append(results, result)

		// Show results with both version and checksum status
		versionOK := result.Status == types.CheckStatusOK

		if result.Status == types.CheckStatusError || result.Status == types.CheckStatusMissing {
			hasErrors = true
			status := formatCheckStatus(result.Status)
			fmt.Printf("  %s: %s\n", tool, status)
			if result.Error != "" {
				fmt.Printf("    Error: %s\n", result.Error)
			}
		} else if result.ChecksumStatus == types.ChecksumStatusMismatch || result.ChecksumStatus == types.ChecksumStatusError {
			checksumIssues = true
			checksumStatus := verify.FormatChecksumStatus(result.ChecksumStatus)
			if versionOK {
				fmt.Printf("  %s: ✅ OK (%s) | Checksum: %s\n", tool, result.InstalledVersion, checksumStatus)
			} else {
				fmt.Printf("  %s: %s (%s) | Checksum: %s\n", tool, formatCheckStatus(result.Status), result.InstalledVersion, checksumStatus)
			}
			if result.ChecksumError != "" {
				fmt.Printf("    Checksum error: %s\n", result.ChecksumError)
			}
		} else if result.Status == types.CheckStatusNewer {
			checksumInfo := ""
			if result.ChecksumStatus == types.ChecksumStatusOK {
				checksumInfo = " | Checksum: ✅ VERIFIED"
			} else if result.ChecksumStatus != types.ChecksumStatusSkipped && result.ChecksumStatus != "" {
				checksumInfo = fmt.Sprintf(" | Checksum: %s", verify.FormatChecksumStatus(result.ChecksumStatus))
			}
			fmt.Printf("  %s: ⬆️ NEWER (%s, expected %s)%s\n", tool, result.InstalledVersion, result.ExpectedVersion, checksumInfo)
		} else if result.Status == types.CheckStatusOutdated {
			checksumInfo := ""
			if result.ChecksumStatus == types.ChecksumStatusOK {
				checksumInfo = " | Checksum: ✅ VERIFIED"
			} else if result.ChecksumStatus != types.ChecksumStatusSkipped && result.ChecksumStatus != "" {
				checksumInfo = fmt.Sprintf(" | Checksum: %s", verify.FormatChecksumStatus(result.ChecksumStatus))
			}
			fmt.Printf("  %s: ⚠️ OUTDATED (%s, expected %s)%s\n", tool, result.InstalledVersion, result.ExpectedVersion, checksumInfo)
		} else {
			checksumInfo := ""
			if result.ChecksumStatus == types.ChecksumStatusOK {
				checksumInfo = " | Checksum: ✅ VERIFIED"
			} else if result.ChecksumStatus != types.ChecksumStatusSkipped && result.ChecksumStatus != "" {
				checksumInfo = fmt.Sprintf(" | Checksum: %s", verify.FormatChecksumStatus(result.ChecksumStatus))
			}
			fmt.Printf("  %s: ✅ OK (%s)%s\n", tool, result.InstalledVersion, checksumInfo)
		}
	}

	if hasErrors {
		fmt.Println("\n💡 Run 'rtv check --verbose' for detailed diagnostics")
	} else if checksumIssues {
		fmt.Println("\n⚠️ Installations have checksum verification issues!")
		fmt.Println("💡 Run 'rtv check --verify --verbose' for detailed checksum diagnostics")
	} else {
		fmt.Println("✅ All installations verified successfully!")
	}

	return nil
}

func formatCheckStatus(status types.CheckStatus) string {
	switch status {
	case types.CheckStatusOK:
		return "✅ OK"
	case types.CheckStatusOutdated:
		return "⚠️  OUTDATED"
	case types.CheckStatusNewer:
		return "⬆️ NEWER"
	case types.CheckStatusMissing:
		return "❌ MISSING"
	case types.CheckStatusError:
		return "🚫 ERROR"
	case types.CheckStatusUnknown:
		return "❓ UNKNOWN"
	default:
		return string(status)
	}
}
