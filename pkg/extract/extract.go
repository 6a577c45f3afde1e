package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/clicky/task"
	"github.com/flanksource/commons/files"
	"github.com/haldor-dev/rtv/pkg/system"
)

// ExtractArchive extracts an archive and finds the binary inside, with no
// strip_components. Kept for callers (and tests) that predate §4.4's
// strip_components/flattening support.
func ExtractArchive(archivePath, extractDir, binaryPath string, t *task.Task) (string, error) {
	return ExtractArchiveOpts(archivePath, extractDir, binaryPath, 0, t)
}

// ExtractArchiveOpts is ExtractArchive with strip_components support and
// single-root-directory flattening, per §4.4's extraction dispatch table.
func ExtractArchiveOpts(archivePath, extractDir, binaryPath string, stripComponents int, t *task.Task) (string, error) {
	// Convert to absolute paths for logging
	absArchivePath, _ := filepath.Abs(archivePath)
	absExtractDir, _ := filepath.Abs(extractDir)

	t.Debugf("Extract: starting extraction of %s to %s (binaryPath=%s)", absArchivePath, absExtractDir, binaryPath)

	// Ensure extract directory exists
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create extract directory: %w", err)
	}

	t.Debugf("Extract: detecting archive type for %s", absArchivePath)
	flattened, err := dispatchExtract(archivePath, extractDir, stripComponents, t)
	if err != nil {
		return "", err
	}
	if flattened && stripComponents == 0 {
		if err := flattenSingleRoot(extractDir); err != nil {
			t.Debugf("Extract: flatten failed for %s: %v", absExtractDir, err)
		}
	}

	if binPath, ok := systemInstallBinary(extractDir); ok {
		t.Debugf("Extract: %s was a system installer, binary lives at %s", absArchivePath, binPath)
		return binPath, nil
	}

	// Find the binary
	t.Debugf("Extract: searching for binary in %s (binaryPath=%s)", absExtractDir, binaryPath)
	return FindBinaryInDir(extractDir, binaryPath, t)
}

// dispatchExtract picks the right extraction strategy by extension. It
// returns whether the result is eligible for single-root flattening (tar
// archives only; zip archives already preserve their own top-level name
// handling via files.Unzip).
func dispatchExtract(archivePath, extractDir string, stripComponents int, t *task.Task) (bool, error) {
	lower := strings.ToLower(archivePath)
	absArchivePath, _ := filepath.Abs(archivePath)

	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		if stripComponents == 0 {
			t.Debugf("Extract: extracting tar.gz archive %s", absArchivePath)
			if err := files.Untar(archivePath, extractDir); err != nil {
				return false, fmt.Errorf("failed to extract tar.gz: %w", err)
			}
			return true, nil
		}
		return true, extractTar(archivePath, extractDir, gzipDecompressor, stripComponents)
	case strings.HasSuffix(lower, ".tar.xz"):
		return true, extractTar(archivePath, extractDir, xzDecompressor, stripComponents)
	case strings.HasSuffix(lower, ".tar.bz2") || strings.HasSuffix(lower, ".tbz2"):
		return true, extractTar(archivePath, extractDir, bzip2Decompressor, stripComponents)
	case strings.HasSuffix(lower, ".tar.zst"):
		return true, extractTar(archivePath, extractDir, zstdDecompressor, stripComponents)
	case strings.HasSuffix(lower, ".tar"):
		return true, extractTar(archivePath, extractDir, nil, stripComponents)
	case strings.HasSuffix(lower, ".zip"):
		t.Debugf("Extract: extracting zip archive %s", absArchivePath)
		if err := files.Unzip(archivePath, extractDir); err != nil {
			return false, fmt.Errorf("failed to extract zip: %w", err)
		}
		return false, nil
	case strings.HasSuffix(lower, ".gz"):
		return false, extractSingleFile(archivePath, extractDir, gzipDecompressor)
	case strings.HasSuffix(lower, ".xz"):
		return false, extractSingleFile(archivePath, extractDir, xzDecompressor)
	case strings.HasSuffix(lower, ".bz2"):
		return false, extractSingleFile(archivePath, extractDir, bzip2Decompressor)
	case strings.HasSuffix(lower, ".zst"):
		return false, extractSingleFile(archivePath, extractDir, zstdDecompressor)
	case strings.HasSuffix(lower, ".dmg"):
		return false, extractDmg(archivePath, extractDir)
	case strings.HasSuffix(lower, ".pkg"):
		return false, installPkg(archivePath, extractDir, t)
	case strings.HasSuffix(lower, ".7z"):
		return false, fmt.Errorf("7z extraction is not supported: no pure-Go 7z reader is in this module's dependency set")
	default:
		t.Debugf("Extract: no archive extension recognized for %s, treating as a raw binary", absArchivePath)
		return false, copyRawBinary(archivePath, extractDir)
	}
}

// extractSingleFile decompresses a single-file archive (e.g. foo.gz, not
// a tarball) to extractDir, stripping the compression suffix from the
// output filename.
func extractSingleFile(archivePath, extractDir string, decomp decompressor) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := decomp(f)
	if err != nil {
		return err
	}
	defer r.Close()

	base := filepath.Base(archivePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	out, err := os.OpenFile(filepath.Join(extractDir, base), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, r)
	return err
}

// copyRawBinary handles a download with no recognized archive extension:
// the file itself is the tool's binary, per §4.4's "raw binary" case.
func copyRawBinary(archivePath, extractDir string) error {
	dst := filepath.Join(extractDir, filepath.Base(archivePath))
	src, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}

// FindBinaryInDir searches for the binary in the extracted directory
func FindBinaryInDir(extractDir, binaryPath string, t *task.Task) (string, error) {
	absExtractDir, _ := filepath.Abs(extractDir)
	t.Debugf("Extract: findBinary starting search in %s for binaryPath=%s", absExtractDir, binaryPath)

	// If binary path is specified, try it first
	if binaryPath != "" {
		fullPath := filepath.Join(extractDir, binaryPath)
		absFullPath, _ := filepath.Abs(fullPath)
		t.Debugf("Extract: checking specified binary path %s", absFullPath)
		if fileExists(fullPath) {
			t.Debugf("Extract: found binary at specified path %s", absFullPath)
			return fullPath, nil
		}
		t.Debugf("Extract: specified binary path not found %s", absFullPath)

		// Try without directory structure (flat extraction)
		baseName := filepath.Base(binaryPath)
		flatPath := filepath.Join(extractDir, baseName)
		absFlatPath, _ := filepath.Abs(flatPath)
		t.Debugf("Extract: checking flat binary path %s", absFlatPath)
		if fileExists(flatPath) {
			t.Debugf("Extract: found binary at flat path %s", absFlatPath)
			return flatPath, nil
		}
		t.Debugf("Extract: flat binary path not found %s", absFlatPath)
	}

	// Search for executables in the directory
	t.Debugf("Extract: searching for executable files in %s", absExtractDir)
	var executables []string
	err := filepath.Walk(extractDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip directories and non-executable files
		if info.IsDir() || info.Mode()&0111 == 0 {
			return nil
		}

		// Found an executable file
		absPath, _ := filepath.Abs(path)
		executables = append(executables, path)
		t.Debugf("Extract: found executable %s", absPath)

		return nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to search for executables: %w", err)
	}

	t.Debugf("Extract: found %d executable files in %s", len(executables), absExtractDir)

	if len(executables) == 0 {
		t.Debugf("Extract: no executable files found in %s", absExtractDir)
		return "", fmt.Errorf("no executable files found in archive")
	}

	// If only one executable, use it
	if len(executables) == 1 {
		absExecPath, _ := filepath.Abs(executables[0])
		t.Debugf("Extract: single executable found, using %s", absExecPath)
		return executables[0], nil
	}

	// Multiple executables - try to find the best match
	t.Debugf("Extract: multiple executables found (%d), searching for best match", len(executables))
	if binaryPath != "" {
		baseName := filepath.Base(binaryPath)
		for _, exec := range executables {
			if filepath.Base(exec) == baseName {
				absExecPath, _ := filepath.Abs(exec)
				t.Debugf("Extract: found matching executable by name %s", absExecPath)
				return exec, nil
			}
		}
	}

	// Return the first executable found
	absExecPath, _ := filepath.Abs(executables[0])
	t.Debugf("Extract: using first executable found %s", absExecPath)
	return executables[0], nil
}

// ExtractFullArchive extracts the full archive to a destination directory
func ExtractFullArchive(archivePath, extractDir string, t *task.Task) error {
	// Convert to absolute paths for logging
	absArchivePath, _ := filepath.Abs(archivePath)
	absExtractDir, _ := filepath.Abs(extractDir)

	t.Debugf("ExtractFull: starting full extraction of %s to %s", absArchivePath, absExtractDir)

	// Ensure extract directory exists
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return fmt.Errorf("failed to create extract directory: %w", err)
	}

	// Detect archive type and extract
	lowerArchivePath := strings.ToLower(archivePath)
	t.Debugf("ExtractFull: detecting archive type for %s", absArchivePath)

	switch {
	case strings.HasSuffix(lowerArchivePath, ".tar.gz") || strings.HasSuffix(lowerArchivePath, ".tgz"):
		t.Debugf("ExtractFull: extracting tar.gz archive %s", absArchivePath)
		if err := files.Untar(archivePath, extractDir); err != nil {
			return fmt.Errorf("failed to extract tar.gz: %w", err)
		}
		t.Debugf("ExtractFull: tar.gz extraction completed for %s", absArchivePath)
	case strings.HasSuffix(lowerArchivePath, ".zip"):
		t.Debugf("ExtractFull: extracting zip archive %s", absArchivePath)
		if err := files.Unzip(archivePath, extractDir); err != nil {
			return fmt.Errorf("failed to extract zip: %w", err)
		}
		t.Debugf("ExtractFull: zip extraction completed for %s", absArchivePath)
	default:
		t.Debugf("ExtractFull: unsupported archive type detected for %s", absArchivePath)
		return fmt.Errorf("unsupported archive type: %s", archivePath)
	}

	t.Debugf("ExtractFull: full extraction completed for %s to %s", absArchivePath, absExtractDir)
	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
