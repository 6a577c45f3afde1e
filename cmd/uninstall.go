package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/store"
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall tool@version [tool@version...]",
	Short: "Remove an installed version from the per-user content-addressed store",
	Long: `uninstall removes a previously installed tool version: it takes the
per-install lock (so it cannot race an in-flight install of the same
backend/version), delegates to the owning backend's UninstallVersion, and
clears the install's cache directory.

An exact version is required; there is no "uninstall latest" symbolic
resolution, since the store may hold several installed versions of the
same tool side by side.

Example:
  rtv uninstall node@20.0.0 cargo:eza@0.18.0`,
	SilenceUsage: true,
	Args:         cobra.MinimumNArgs(1),
	RunE:         runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	depsConfig := GetDepsConfig()
	if depsConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	ctx := context.Background()
	dataDir := store.DefaultDataDir()

	var failures []string
	for _, arg := range args {
		short, version, ok := strings.Cut(arg, "@")
		if !ok || version == "" {
			failures = append(failures, fmt.Sprintf("%s: uninstall requires an exact version (tool@version)", arg))
			continue
		}

		pkg, ok := depsConfig.Registry[short]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: unknown tool, not found in registry", arg))
			continue
		}

		be, ok := backend.GetGlobalRegistry().Get(pkg.Manager)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: %v", arg, &backend.ErrBackendNotFound{Backend: pkg.Manager}))
			continue
		}

		ba := store.NewBA(short, pkg.Manager, dataDir)
		tv := store.NewTV(ba, version, store.Request{BA: ba, Constraint: version, Source: "cli"})

		if err := store.Uninstall(ctx, be, tv, pkg); err != nil {
			failures = append(failures, err.Error())
			continue
		}
		fmt.Printf("%s@%s: uninstalled\n", short, version)
	}

	if len(failures) > 0 {
		return fmt.Errorf("uninstall failed for %d tool(s):\n  %s", len(failures), strings.Join(failures, "\n  "))
	}
	return nil
}
