package fixup

import (
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/flanksource/clicky/task"
)

// fixupLinux rewrites RPATH (and, for executables, the interpreter) of
// every ELF file under installPath so a relocated install can find its own
// bundled shared libraries. A missing patchelf is a no-op, per §4.6.
func fixupLinux(installPath string, t *task.Task) error {
	patchelf, err := exec.LookPath("patchelf")
	if err != nil {
		if t != nil {
			t.Debugf("fixup: patchelf not found, skipping ELF rpath fixup")
		}
		return nil
	}

	libDirs, err := discoverLibDirs(installPath)
	if err != nil {
		return err
	}

	return filepath.Walk(installPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !isELF(path) {
			return nil
		}
		if err := fixupELFFile(patchelf, installPath, path, libDirs); err != nil && t != nil {
			t.Debugf("fixup: %s: %v", path, err)
		}
		return nil
	})
}

// discoverLibDirs finds every directory under installPath containing at
// least one *.so* file, excluding anything under a path component named
// "sysroot" (a cross-compilation sysroot bundled alongside the toolchain,
// not a runtime lib dir).
func discoverLibDirs(installPath string) ([]string, error) {
	seen := map[string]bool{}
	err := filepath.Walk(installPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		for _, part := range strings.Split(filepath.Dir(path), string(filepath.Separator)) {
			if part == "sysroot" {
				return nil
			}
		}
		if strings.Contains(filepath.Base(path), ".so") {
			seen[filepath.Dir(path)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	return dirs, nil
}

func isELF(path string) bool {
	f, err := elf.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// fixupELFFile sets RPATH to $ORIGIN plus every discovered lib dir
// expressed relative to the file, and rewrites the interpreter of
// bin/libexec binaries if it points at a conda build path.
func fixupELFFile(patchelf, installPath, path string, libDirs []string) error {
	rel, err := filepath.Rel(installPath, path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	inBinLikeDir := strings.HasPrefix(rel, "bin"+string(filepath.Separator)) ||
		strings.HasPrefix(rel, "libexec"+string(filepath.Separator))

	if inBinLikeDir {
		// A shared lib placed in bin/ has no PT_INTERP segment; patchelf
		// erroring on those is expected and silently ignored here.
		_ = rewriteInterpreter(patchelf, installPath, path)
	}

	rpaths := []string{"$ORIGIN"}
	for _, libDir := range libDirs {
		r, err := filepath.Rel(dir, libDir)
		if err != nil {
			continue
		}
		rpaths = append(rpaths, filepath.Join("$ORIGIN", r))
	}

	return exec.Command(patchelf, "--set-rpath", strings.Join(rpaths, ":"), path).Run()
}

func rewriteInterpreter(patchelf, installPath, path string) error {
	current, err := exec.Command(patchelf, "--print-interpreter", path).Output()
	if err != nil {
		return err
	}
	if !needsRewrite(strings.TrimSpace(string(current))) {
		return nil
	}
	candidates, err := filepath.Glob(filepath.Join(installPath, "lib", "ld-linux-*"))
	if err != nil || len(candidates) == 0 {
		for _, sysLinker := range []string{"/lib64/ld-linux-x86-64.so.2", "/lib/ld-linux-aarch64.so.1"} {
			if _, err := os.Stat(sysLinker); err == nil {
				candidates = []string{sysLinker}
				break
			}
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no replacement interpreter found")
	}
	return exec.Command(patchelf, "--set-interpreter", candidates[0], path).Run()
}
