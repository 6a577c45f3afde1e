package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flanksource/clicky"
	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/config"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/store"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/spf13/cobra"
)

// useJobs caps concurrent installs for the `use` command, mirroring the
// orchestrator's default parallelism (§4.4, default 4 jobs).
var useJobs int

// usePrintEnv, when set, prints the resulting toolset overlay as
// KEY=VALUE lines (including a merged PATH) instead of a human summary,
// for `eval "$(rtv use --print-env jq)"`-style shell activation.
var usePrintEnv bool

// useLockPin enables §4.3 step 4: when a backend supplies no checksum for a
// download, generate a blake3 digest and record it into deps-lock.yaml for
// future pinning instead of leaving the install unverified.
var useLockPin bool

var useCmd = &cobra.Command{
	Use:   "use [tool[@version]...]",
	Short: "Resolve and install tools into the per-user content-addressed store",
	Long: `use resolves each tool request against its backend's remote version list
(supporting "latest", "lts", "lts-<name>", "sub-<n>-<base>", dotted prefixes,
and git ref/path/system passthrough), installs any that are missing through
the dependency-ordered, per-install-locked install orchestrator, and prints
the resulting PATH/env overlay for the installed toolset.

Examples:
  rtv use node@lts          # install node's current LTS line
  rtv use cargo:eza@latest
  rtv use --print-env jq yq@4.16.2`,
	SilenceUsage: true,
	RunE:         runUse,
}

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.Flags().IntVar(&useJobs, "jobs", 4, "Maximum concurrent installs")
	useCmd.Flags().BoolVar(&usePrintEnv, "print-env", false, "Print the resulting PATH/env overlay instead of a summary")
	useCmd.Flags().BoolVar(&useLockPin, "lock-pin", false, "Generate and record a blake3 checksum for downloads with none supplied")
}

func runUse(cmd *cobra.Command, args []string) error {
	depsConfig := GetDepsConfig()
	if depsConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if len(args) == 0 {
		return fmt.Errorf("use requires at least one tool[@version] argument")
	}

	ctx := context.Background()
	plat := platform.Current()
	dataDir := store.DefaultDataDir()

	// Lock file is optional: an exact-match entry for the requested
	// platform wins resolution outright, but its absence is not an error.
	lockFile, err := config.LoadLockFile("")
	if err != nil {
		lockFile = nil
	}

	entries := make([]store.ToolsetEntry, 0, len(args))
	jobs := make([]store.Job, 0, len(args))

	for _, arg := range args {
		short, constraint, _ := strings.Cut(arg, "@")

		pkg, ok := depsConfig.Registry[short]
		if !ok {
			return fmt.Errorf("unknown tool %q: not found in registry", short)
		}

		be, ok := backend.GetGlobalRegistry().Get(pkg.Manager)
		if !ok {
			return &backend.ErrBackendNotFound{Backend: pkg.Manager}
		}

		ba := store.NewBA(short, pkg.Manager, dataDir)
		req := store.Request{BA: ba, Constraint: constraint, Source: "cli", LockFile: lockFile}

		resolved, err := store.ResolveRequest(ctx, be, pkg, req, plat)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", arg, err)
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
				Slsa:         false,
				LockPin:      useLockPin,
			},
			Platform: plat.String(),
		})
		entries = append(entries, store.ToolsetEntry{TV: tv, Backend: be, Package: pkg})
	}

	st := store.New(useJobs)
	if err := st.InstallAll(ctx, jobs); err != nil {
		return err
	}
	clicky.WaitForGlobalCompletion()

	toolset := store.ProjectToolset(entries)

	if usePrintEnv {
		for k, v := range toolset.Env {
			fmt.Printf("%s=%s\n", k, v)
		}
		if len(toolset.BinPaths) > 0 {
			fmt.Printf("PATH=%s\n", strings.Join(toolset.BinPaths, string(os.PathListSeparator)))
		}
		return nil
	}

	for _, j := range jobs {
		fmt.Printf("%s@%s -> %s\n", j.TV.BA.Short, j.TV.Version, j.TV.InstallPath)
	}
	return nil
}
