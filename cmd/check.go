package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/flanksource/clicky/task"
	flanksourceContext "github.com/flanksource/commons/context"
	"github.com/haldor-dev/rtv/pkg/config"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/haldor-dev/rtv/pkg/verify"
	"github.com/haldor-dev/rtv/pkg/version"
	"github.com/spf13/cobra"
)

var (
	checkAll     bool
	checkVerbose bool
	checkUpdate  bool
	checkVerify  bool
)

var checkCmd = &cobra.Command{
	Use:   "check [tool...]",
	Short: "Check versions of installed tools",
	Long: `Check the versions of installed tools in the bin directory.

Compares installed versions against:
- Expected versions from deps-lock.yaml (if exists)
- Requested versions from deps.yaml

When --verify is used, also verifies checksums:
- From deps-lock.yaml platform entries (if exists)
- Downloaded from source using checksum discovery strategies

Examples:
  rtv check                    # Check all installed tools
  rtv check kubectl helm      # Check specific tools
  rtv check --verbose         # Show detailed information
  rtv check --all             # Force check all configured tools
  rtv check --verify          # Check versions and verify checksums
  rtv check --verify kubectl  # Verify specific tool checksum`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkAll, "all", false, "Check all configured tools, not just installed ones")
	checkCmd.Flags().BoolVar(&checkVerbose, "verbose", false, "Show verbose output including commands and errors")
	checkCmd.Flags().BoolVar(&checkUpdate, "update", false, "Install the expected version of any outdated or missing tools found")
	checkCmd.Flags().BoolVar(&checkVerify, "verify", false, "Verify checksums of installed binaries against expected values")
}

func runCheck(cmd *cobra.Command, args []string) error {
	var checkErr error
	task.StartTask("check-dependencies", func(ctx flanksourceContext.Context, task *task.Task) (interface{}, error) {
		checkErr = runCheckWithTask(args, task)
		return nil, checkErr
	})
	return checkErr
}

func runCheckWithTask(args []string, t *task.Task) error {
	// Load global configuration (defaults + user)
	depsConfig := config.GetGlobalRegistry()

	// Load lock file if it exists
	var lockFile *types.LockFile
	var err error
	if lockFile, err = config.LoadLockFile(""); err != nil {
		// Lock file is optional
		if checkVerbose {
			fmt.Printf("No lock file found: %v\n\n", err)
		}
	}

	binDir := depsConfig.Settings.BinDir
	if binDir == "" {
		binDir = "./bin"
	}

	// Ensure bin directory exists
	if _, err := os.Stat(binDir); os.IsNotExist(err) {
		return fmt.Errorf("bin directory does not exist: %s", binDir)
	}

	// Determine which tools to check
	var toolsToCheck []string

	if len(args) > 0 {
		// Check specific tools provided as arguments
		toolsToCheck = args
	} else if checkAll {
		// Check all configured tools
		for tool := range depsConfig.Registry {
			toolsToCheck = append(toolsToCheck, tool)
		}
	} else {
		// Check installed tools only
		installedTools, err := version.ScanBinDirectory(binDir)
		if err != nil {
			return fmt.Errorf("failed to scan bin directory: %w", err)
		}

		// Filter to only include tools that are in our registry
		for _, tool := range installedTools {
			if _, exists := depsConfig.Registry[tool]; exists {
				toolsToCheck = append(toolsToCheck, tool)
			}
		}
	}

	if len(toolsToCheck) == 0 {
		fmt.Println("No tools to check. Use 'rtv install' to install tools or 'rtv check --all' to check all configured tools.")
		return nil
	}

	sort.Strings(toolsToCheck)

	// Check each tool
	var results []types.CheckResult
	var summary types.CheckSummary
	var outdatedTools []string

	for _, tool := range toolsToCheck {
		pkg, exists := depsConfig.Registry[tool]
		if !exists {
			result := types.CheckResult{
				Tool:   tool,
				Status: types.CheckStatusError,
				Error:  "Tool not found in registry",
			}
			results = append(results, result)
			summary.AddResult(result)
			continue
		}

		// Get expected version from lock file
		var expectedVersion, requestedVersion string
		if lockFile != nil {
			if lockEntry, exists := lockFile.Dependencies[tool]; exists {
				expectedVersion = lockEntry.Version
			}
		}

		// Get requested version from deps.yaml
		if constraint, exists := depsConfig.Dependencies[tool]; exists {
			requestedVersion = constraint
		}

		if checkVerbose {
			fmt.Printf("Checking %s...\n", tool)
			if pkg.VersionCommand != "" {
				fmt.Printf("  Version command: %s\n", pkg.VersionCommand)
			}
			if pkg.VersionPattern != "" {
				fmt.Printf("  Version pattern: %s\n", pkg.VersionPattern)
			}
		}

		result := version.CheckBinaryVersion(t, tool, pkg, binDir, expectedVersion, requestedVersion)

		// Perform checksum verification if requested and binary is available
		if checkVerify && result.Status != types.CheckStatusMissing && result.Status != types.CheckStatusError {
			checksumResult := verify.VerifyBinaryChecksum(tool, pkg, binDir, lockFile, depsConfig.Settings.Platform)
			result.ChecksumStatus = checksumResult.ChecksumStatus
			result.ExpectedChecksum = checksumResult.ExpectedChecksum
			result.ActualChecksum = checksumResult.ActualChecksum
			result.ChecksumType = checksumResult.ChecksumType
			result.ChecksumError = checksumResult.ChecksumError
			result.ChecksumSource = checksumResult.ChecksumSource

			if checkVerbose && checksumResult.ChecksumError != "" {
				fmt.Printf("  Checksum error: %s\n", checksumResult.ChecksumError)
			}
		} else if checkVerify {
			result.ChecksumStatus = types.ChecksumStatusSkipped
		}

		results = append(results, result)
		summary.AddResult(result)

		if result.Status == types.CheckStatusOutdated || result.Status == types.CheckStatusMissing {
			outdatedTools = append(outdatedTools, tool)
		}

		if checkVerbose && result.Error != "" {
			fmt.Printf("  Error: %s\n", result.Error)
		}
	}

	// Display results
	displayCheckResults(results, summary)

	if checkUpdate && len(outdatedTools) > 0 {
		if err := updateOutdatedTools(t, depsConfig, binDir, outdatedTools); err != nil {
			fmt.Printf("\nâš ï¸  Failed to update some tools: %v\n", err)
		}
	}

	// Exit with error code if there are serious issues (errors and missing tools)
	if summary.Errors > 0 || summary.Missing > 0 {
		return fmt.Errorf("found %d errors and %d missing tools", summary.Errors, summary.Missing)
	}

	// Provide helpful messages for different states
	if summary.Outdated > 0 {
		fmt.Printf("\nğŸ’¡ Run 'rtv install' to update outdated tools\n")
	}
	if summary.Newer > 0 {
		fmt.Printf("\nâ¬†ï¸ %d tools have newer versions than expected (usually OK)\n", summary.Newer)
	}

	return nil
}

// updateOutdatedTools installs the expected (lock/config-requested) version
// of every tool the scan above flagged as outdated or missing, reusing the
// same store-backed install engine the `install` command drives.
func updateOutdatedTools(t *task.Task, depsConfig *types.DepsConfig, binDir string, tools []string) error {
	fmt.Printf("\nUpdating %d outdated tool(s)...\n", len(tools))

	_, err := installViaStore(context.Background(), depsConfig, binDir, tools, true)
	return err
}

func displayCheckResults(results []types.CheckResult, summary types.CheckSummary) {
	hasChecksums := false
	for _, result := range results {
		if result.ChecksumStatus != "" {
			hasChecksums = true
			break
		}
	}

	if hasChecksums {
		fmt.Println("Tool Version and Checksum Check Results:")
	} else {
		fmt.Println("Tool Version Check Results:")
	}
	fmt.Println()

	// Create table writer
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	// Print header
	if hasChecksums {
		fmt.Fprintln(w, "Tool\tInstalled\tExpected\tStatus\tChecksum")
		fmt.Fprintln(w, "â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€â”€â”€")
	} else {
		fmt.Fprintln(w, "Tool\tInstalled\tExpected\tStatus")
		fmt.Fprintln(w, "â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€â”€â”€\tâ”€â”€â”€â”€â”€â”€")
	}

	// Print results
	for _, result := range results {
		status := formatStatus(result.Status)
		installed := result.InstalledVersion
		expected := result.ExpectedVersion

		// Use requested version if no expected version
		if expected == "" && result.RequestedVersion != "" {
			expected = result.RequestedVersion
		}

		// Handle missing/error cases
		if result.Status == types.CheckStatusMissing {
			installed = "âŒ missing"
		} else if result.Status == types.CheckStatusError {
			installed = "âŒ error"
		} else if installed == "" {
			installed = "â“ unknown"
		}

		if expected == "" {
			expected = "-"
		}

		if hasChecksums {
			checksumStatus := verify.FormatChecksumStatus(result.ChecksumStatus)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", result.Tool, installed, expected, status, checksumStatus)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", result.Tool, installed, expected, status)
		}
	}

	w.Flush()

	// Print summary
	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Total: %d\n", summary.Total)
	if summary.OK > 0 {
		fmt.Printf("  âœ… OK: %d\n", summary.OK)
	}
	if summary.Outdated > 0 {
		fmt.Printf("  âš ï¸  Outdated: %d\n", summary.Outdated)
	}
	if summary.Newer > 0 {
		fmt.Printf("  â¬†ï¸ Newer: %d\n", summary.Newer)
	}
	if summary.Missing > 0 {
		fmt.Printf("  âŒ Missing: %d\n", summary.Missing)
	}
	if summary.Errors > 0 {
		fmt.Printf("  ğŸš« Errors: %d\n", summary.Errors)
	}
	if summary.Unknown > 0 {
		fmt.Printf("  â“ Unknown: %d\n", summary.Unknown)
	}

	// Print checksum summary if verification was performed
	if hasChecksums {
		fmt.Printf("\nChecksum Verification:\n")
		if summary.ChecksumVerified > 0 {
			fmt.Printf("  âœ… Verified: %d\n", summary.ChecksumVerified)
		}
		if summary.ChecksumMismatch > 0 {
			fmt.Printf("  âŒ Mismatch: %d\n", summary.ChecksumMismatch)
		}
		if summary.ChecksumError > 0 {
			fmt.Printf("  ğŸš« Error: %d\n", summary.ChecksumError)
		}
		if summary.ChecksumSkipped > 0 {
			fmt.Printf("  â­ï¸  Skipped: %d\n", summary.ChecksumSkipped)
		}
	}
}

func formatStatus(status types.CheckStatus) string {
	switch status {
	case types.CheckStatusOK:
		return "âœ… OK"
	case types.CheckStatusOutdated:
		return "âš ï¸  OUTDATED"
	case types.CheckStatusNewer:
		return "â¬†ï¸ NEWER"
	case types.CheckStatusMissing:
		return "âŒ MISSING"
	case types.CheckStatusError:
		return "ğŸš« ERROR"
	case types.CheckStatusUnknown:
		return "â“ UNKNOWN"
	default:
		return string(status)
	}
}
