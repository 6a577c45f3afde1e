package store

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the root directory under which installs/,
// downloads/, cache/, and plugins/ live, per spec §6's filesystem layout
// table ("$XDG_DATA_HOME/mise" for the reference implementation, "rtv"
// here). RTV_DATA_DIR overrides it outright; otherwise XDG_DATA_HOME is
// honored before falling back to ~/.local/share/rtv.
func DefaultDataDir() string {
	if d := os.Getenv("RTV_DATA_DIR"); d != "" {
		return d
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "rtv")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rtv")
	}
	return filepath.Join(home, ".local", "share", "rtv")
}
