package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/clicky/task"
	"github.com/haldor-dev/rtv/pkg/system"
)

// systemInstallMarker records the binary path a system installer (.pkg,
// .msi) placed outside extractDir, since §4.6-style extraction has nothing
// to flatten or search for those formats.
const systemInstallMarker = ".rtv-system-install-binary"

// installPkg runs a macOS .pkg through the system installer and records
// where it landed, since the .pkg payload is installed system-wide rather
// than unpacked into extractDir.
func installPkg(archivePath, extractDir string, t *task.Task) error {
	toolName := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	if idx := strings.Index(toolName, "-"); idx > 0 {
		toolName = toolName[:idx]
	}

	result, err := system.InstallPkg(archivePath, extractDir, &system.SystemInstallOptions{
		ToolName: toolName,
		Silent:   true,
		Task:     t,
	})
	if err != nil {
		return fmt.Errorf("installing .pkg: %w", err)
	}

	if result.BinaryPath == "" {
		return fmt.Errorf("installed %s system-wide but could not locate its binary", toolName)
	}

	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(extractDir, systemInstallMarker), []byte(result.BinaryPath), 0o644)
}

// systemInstallBinary returns the binary path recorded by installPkg, if
// extractDir holds one.
func systemInstallBinary(extractDir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(extractDir, systemInstallMarker))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
