package cache

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultCacheDir returns the envelope cache root used when a caller has
// no explicit Settings.CacheDir to hand down, following the same
// per-user cache directory every other Go CLI in this ecosystem defaults
// to.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rtv")
	}
	return filepath.Join(dir, "rtv")
}

// Manager persists a single value of type T to disk as a zlib-wrapped
// msgpack envelope, re-fetching only when the cache file is missing or
// older than FreshFor. It backs version-list and release-metadata lookups
// (GitHub refs, checksum files) that are expensive to refetch on every
// invocation but must not go stale silently.
type Manager[T any] struct {
	path       string
	freshFor   time.Duration
	freshFiles []string

	mu    sync.Mutex
	value *T
}

// NewManager returns a Manager backed by path. A zero FreshFor (the
// default) means "fresh forever once written"; call WithFreshFor to add
// a freshness window.
func NewManager[T any](path string) *Manager[T] {
	return &Manager[T]{path: path}
}

// WithFreshFor sets how long a cache entry is trusted before GetOrFetch
// re-fetches it, mirroring the teacher's own fresh_duration knob.
func (m *Manager[T]) WithFreshFor(d time.Duration) *Manager[T] {
	m.freshFor = d
	return m
}

// WithFreshFile ties this entry's freshness to another file's mtime in
// addition to FreshFor (e.g. invalidate a tool's version-list cache
// whenever its config file changes) — the entry is stale as soon as any
// tracked file was modified after the cache file was written.
func (m *Manager[T]) WithFreshFile(path string) *Manager[T] {
	m.freshFiles = append(m.freshFiles, path)
	return m
}

// GetOrFetch returns the cached value if present and fresh, otherwise
// calls fetch, persists the result, and returns it. A fetch error is
// returned as-is; a failure to persist is logged by the caller's choice
// (the stale-but-valid value is still usable on the next read).
func (m *Manager[T]) GetOrFetch(fetch func() (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.value != nil {
		return *m.value, nil
	}

	if m.isFresh() {
		if v, err := m.read(); err == nil {
			m.value = &v
			return v, nil
		}
	}

	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	m.value = &v
	if err := m.write(v); err != nil {
		return v, fmt.Errorf("caching result: %w", err)
	}
	return v, nil
}

// Clear removes the on-disk cache entry and the in-memory value.
func (m *Manager[T]) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = nil
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *Manager[T]) read() (T, error) {
	var zero T
	f, err := os.Open(m.path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return zero, fmt.Errorf("opening zlib envelope: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return zero, fmt.Errorf("reading cache envelope: %w", err)
	}

	var v T
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("decoding msgpack envelope: %w", err)
	}
	return v, nil
}

func (m *Manager[T]) write(v T) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding msgpack envelope: %w", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	return os.WriteFile(m.path, buf.Bytes(), 0o644)
}

// isFresh reports whether the cache file exists and, if FreshFor or any
// tracked fresh file is set, is recent enough to trust without a
// re-fetch. The freshness window is the minimum across FreshFor and
// every tracked file's age, matching the "freshest wins" rule the
// teacher's own cache manager uses.
func (m *Manager[T]) isFresh() bool {
	info, err := os.Stat(m.path)
	if err != nil {
		return false
	}

	window := m.freshFor
	for _, fp := range m.freshFiles {
		if fi, err := os.Stat(fp); err == nil {
			age := time.Since(fi.ModTime())
			if window == 0 || age < window {
				window = age
			}
		}
	}
	if window == 0 {
		return true
	}
	return time.Since(info.ModTime()) < window
}
