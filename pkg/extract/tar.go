package extract

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// decompressor wraps an archive's outer compression layer before the tar
// reader sees it. A plain .tar has no decompressor (identity).
type decompressor func(io.Reader) (io.ReadCloser, error)

func gzipDecompressor(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }

func bzip2Decompressor(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(bzip2.NewReader(r)), nil
}

func xzDecompressor(r io.Reader) (io.ReadCloser, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(zr), nil
}

func zstdDecompressor(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// extractTar streams a (possibly compressed) tar archive into destDir,
// honoring stripComponents the way mise's own extraction does: the first
// N path segments of every entry are dropped, and entries that would
// become empty are skipped.
func extractTar(archivePath, destDir string, decomp decompressor, stripComponents int) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if decomp != nil {
		dr, err := decomp(f)
		if err != nil {
			return fmt.Errorf("decompressing archive: %w", err)
		}
		defer dr.Close()
		r = dr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name, ok := stripPathComponents(hdr.Name, stripComponents)
		if !ok {
			continue
		}
		target := filepath.Join(destDir, name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(filepath.Separator)) && target != filepath.Clean(destDir) {
			return fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777|0o600)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// stripPathComponents drops the first n path segments of name, returning
// ok=false when nothing remains (the entry should be skipped) per §4.4's
// strip_components handling.
func stripPathComponents(name string, n int) (string, bool) {
	if n <= 0 {
		return name, name != ""
	}
	parts := strings.Split(filepath.ToSlash(name), "/")
	if len(parts) <= n {
		return "", false
	}
	rest := parts[n:]
	if len(rest) == 0 {
		return "", false
	}
	return filepath.Join(rest...), true
}

// flattenSingleRoot implements "single-root-directory tarballs are
// flattened": if destDir contains exactly one entry and it is a
// directory, its contents are moved up one level and the now-empty
// directory is removed.
func flattenSingleRoot(destDir string) error {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	root := filepath.Join(destDir, entries[0].Name())
	children, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, child := range children {
		src := filepath.Join(root, child.Name())
		dst := filepath.Join(destDir, child.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("flattening %s: %w", src, err)
		}
	}
	return os.Remove(root)
}
