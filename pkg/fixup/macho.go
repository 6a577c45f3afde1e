package fixup

import (
	"debug/macho"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/flanksource/clicky/task"
)

// condaPathMarkers identify dependency paths baked in at a conda/feedstock
// build that need rewriting to point at the local install instead.
var condaPathMarkers = []string{"conda-bld", "feedstock_root", "_h_env_placehold", "_build_env", "/conda/"}

func fixupDarwin(installPath string, t *task.Task) error {
	removeQuarantine(installPath)

	return filepath.Walk(installPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !isMachO(path) {
			return nil
		}
		if err := fixupMachOFile(installPath, path, t); err != nil && t != nil {
			t.Debugf("fixup: %s: %v", path, err)
		}
		return nil
	})
}

// removeQuarantine strips the quarantine/provenance xattrs Gatekeeper
// attaches to anything downloaded over the network, which would otherwise
// block execution of an unsigned (or re-signed) binary.
func removeQuarantine(installPath string) {
	if _, err := exec.LookPath("xattr"); err != nil {
		return
	}
	_ = exec.Command("xattr", "-dr", "com.apple.quarantine", installPath).Run()
	_ = exec.Command("xattr", "-dr", "com.apple.provenance", installPath).Run()
}

func isMachO(path string) bool {
	if f, err := macho.Open(path); err == nil {
		f.Close()
		return true
	}
	if f, err := macho.OpenFat(path); err == nil {
		f.Close()
		return true
	}
	return false
}

// fixupMachOFile rewrites any dependency path that points at a conda build
// sandbox, fixes the dylib's own id if it lives under lib/, adds the rpaths
// a relocated install needs, and re-signs ad-hoc since every
// install_name_tool edit invalidates the existing signature. A binary that
// needs no edit is left byte-identical.
func fixupMachOFile(installPath, path string, t *task.Task) error {
	if _, err := exec.LookPath("install_name_tool"); err != nil {
		return fmt.Errorf("install_name_tool not found")
	}

	deps, err := otoolDeps(path)
	if err != nil {
		return err
	}

	libDir := filepath.Join(installPath, "lib")
	rel, _ := filepath.Rel(installPath, path)
	inBin := strings.HasPrefix(rel, "bin"+string(filepath.Separator)) || rel == "bin"
	inLib := strings.HasPrefix(rel, "lib"+string(filepath.Separator))

	edited := false
	for _, dep := range deps {
		if !needsRewrite(dep) {
			continue
		}
		newPath := filepath.Join(libDir, filepath.Base(dep))
		if err := exec.Command("install_name_tool", "-change", dep, newPath, path).Run(); err != nil {
			return fmt.Errorf("install_name_tool -change %s: %w", dep, err)
		}
		edited = true
	}

	if inLib {
		if err := exec.Command("install_name_tool", "-id", "@rpath/"+filepath.Base(path), path).Run(); err == nil {
			edited = true
		}
	}

	rpaths := []string{}
	switch {
	case inBin:
		rpaths = append(rpaths, "@executable_path/../lib")
	case inLib:
		rpaths = append(rpaths, "@loader_path")
	}
	rpaths = append(rpaths, libDir)

	for _, rp := range rpaths {
		if err := exec.Command("install_name_tool", "-add_rpath", rp, path).Run(); err == nil {
			edited = true
		}
	}

	if edited {
		if _, err := exec.LookPath("codesign"); err == nil {
			_ = exec.Command("codesign", "--force", "--sign", "-", path).Run()
		}
	}
	return nil
}

func needsRewrite(dep string) bool {
	for _, marker := range condaPathMarkers {
		if strings.Contains(dep, marker) {
			return true
		}
	}
	return false
}

// otoolDeps runs `otool -L` and returns the dependency paths listed,
// excluding the file's own id line.
func otoolDeps(path string) ([]string, error) {
	bin, err := exec.LookPath("otool")
	if err != nil {
		return nil, fmt.Errorf("otool not found")
	}
	out, err := exec.Command(bin, "-L", path).Output()
	if err != nil {
		return nil, fmt.Errorf("otool -L %s: %w", path, err)
	}

	var deps []string
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // first line echoes the file path itself
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		deps = append(deps, fields[0])
	}
	return deps, nil
}
