// Package fixup rewrites absolute build-time paths baked into
// precompiled binaries after extraction (§4.6): Mach-O load commands on
// macOS, ELF RPATH/interpreter on Linux. Neither platform's rewrite is
// attempted on the other; Windows binaries are never touched.
package fixup

import (
	"runtime"

	"github.com/flanksource/clicky/task"
)

// FixupInstall walks installPath and rewrites every binary that needs it
// for the current GOOS. It is a best-effort post-install step: a missing
// platform tool (install_name_tool, patchelf) is not fatal, matching how
// the orchestrator treats it (a warning, not a failed install).
func FixupInstall(installPath string, t *task.Task) error {
	switch runtime.GOOS {
	case "darwin":
		return fixupDarwin(installPath, t)
	case "linux":
		return fixupLinux(installPath, t)
	default:
		return nil
	}
}
