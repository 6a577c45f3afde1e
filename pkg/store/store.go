package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flanksource/clicky/task"
	flanksourceContext "github.com/flanksource/commons/context"
	"github.com/flanksource/commons/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/checksum"
	"github.com/haldor-dev/rtv/pkg/config"
	"github.com/haldor-dev/rtv/pkg/download"
	"github.com/haldor-dev/rtv/pkg/extract"
	"github.com/haldor-dev/rtv/pkg/fixup"
	"github.com/haldor-dev/rtv/pkg/pipeline"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/runtime"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/haldor-dev/rtv/pkg/verify"
	"github.com/haldor-dev/rtv/pkg/version"
)

// Job is a single install request the scheduler routes through the state
// machine: a package definition, the backend that owns it, and the TV it
// resolves to for this platform.
type Job struct {
	Package  types.Package
	Backend  backend.Backend
	TV       *TV
	Options  types.InstallOptions
	Platform string // platform key used only for resolution, e.g. "linux-x64"
}

// Store drives the per-TV state machine and the dependency-ordered,
// bounded-concurrency scheduler across a batch of jobs.
type Store struct {
	// Jobs is the maximum number of concurrent installs, independent of how
	// many dependency waves the batch resolves into.
	Jobs int
}

// New creates a Store with the given worker-pool size (0 uses the default
// of 4, matching the teacher's default parallelism elsewhere).
func New(jobs int) *Store {
	if jobs <= 0 {
		jobs = 4
	}
	return &Store{Jobs: jobs}
}

// InstallAll resolves the dependency DAG over the batch's backends and
// installs every job, honoring topological order between jobs whose
// backends declare a dependency on each other while running disjoint
// branches concurrently up to Jobs.
func (s *Store) InstallAll(ctx context.Context, jobs []Job) error {
	tvs := make([]*TV, len(jobs))
	byShort := make(map[string]Job, len(jobs))
	for i, j := range jobs {
		tvs[i] = j.TV
		byShort[j.TV.BA.Short] = j
	}

	waves, err := buildWaves(tvs, func(tv *TV) []string {
		return byShort[tv.BA.Short].Backend.GetDependencies()
	})
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(int64(s.Jobs))

	for _, wave := range waves {
		g, gctx := errgroup.WithContext(ctx)
		for _, tv := range wave {
			j := byShort[tv.BA.Short]
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				return s.installOne(gctx, j)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	return nil
}

// installOne drives a single TV through Pending -> Complete (or Failed),
// wrapped in a progress-tracked task the way the teacher's installer tracks
// every tool it installs.
func (s *Store) installOne(ctx context.Context, j Job) error {
	taskName := fmt.Sprintf("%s@%s", j.TV.BA.Full, j.TV.Version)
	var installErr error
	task.StartTask(taskName, func(fctx flanksourceContext.Context, t *task.Task) (interface{}, error) {
		installErr = s.runStateMachine(fctx, t, j)
		return nil, installErr
	})
	return installErr
}

func (s *Store) runStateMachine(ctx flanksourceContext.Context, t *task.Task, j Job) error {
	tv := j.TV

	state := StatePending
	t.Debugf("%s: %s", tv.BA.Full, state.Pretty())

	if tv.IsSystem() {
		return s.resolveSystem(t, j)
	}

	lock, err := acquireInstallLock(ctx.Context, tv.InstallPath)
	if err != nil {
		return s.fail(tv, j.Options, fmt.Errorf("locking %s: %w", tv.BA.Full, err))
	}
	defer lock.Release()
	state = StateLocked

	if !j.Options.Force && tv.IsInstalled() {
		t.Infof("%s@%s already installed, skipping", tv.BA.Short, tv.Version)
		return nil
	}

	if err := createInstallDirs(tv); err != nil {
		return s.fail(tv, j.Options, fmt.Errorf("preparing install dirs: %w", err))
	}

	resolution, err := j.Backend.Resolve(ctx.Context, j.Package, tv.Version, j.Options.Platform)
	if err != nil {
		return s.fail(tv, j.Options, fmt.Errorf("resolving %s@%s: %w", tv.BA.Short, tv.Version, err))
	}

	state = StateDownloading
	t.Debugf("%s: %s", tv.BA.Full, state.Pretty())
	downloadPath := filepath.Join(tv.DownloadPath, filepath.Base(resolution.DownloadURL))
	if resolution.DownloadURL != "" {
		opts := []download.DownloadOption{}
		if resolution.Checksum != "" {
			opts = append(opts, download.WithChecksum(resolution.Checksum))
		}
		if resolution.ChecksumURL != "" {
			opts = append(opts, download.WithChecksumURL(resolution.ChecksumURL))
		}
		if err := download.Download(resolution.DownloadURL, downloadPath, t, opts...); err != nil {
			return s.fail(tv, j.Options, fmt.Errorf("downloading %s: %w", tv.BA.Short, err))
		}
	}

	state = StateVerifying
	t.Debugf("%s: %s", tv.BA.Full, state.Pretty())
	if resolution.Checksum != "" {
		tv.Checksums[filepath.Base(downloadPath)] = resolution.Checksum
	} else if j.Options.LockPin && resolution.DownloadURL != "" {
		if pin, err := checksum.GenerateBlake3Pin(downloadPath); err != nil {
			t.Infof("warning: could not generate blake3 pin for %s: %v", tv.BA.Short, err)
		} else {
			tv.Checksums[filepath.Base(downloadPath)] = pin
			if err := recordLockPin(tv.BA, tv.Version, j.Options.Platform, pin); err != nil {
				t.Infof("warning: could not record blake3 pin in lock file for %s: %v", tv.BA.Short, err)
			}
		}
	}
	if resolution.DownloadURL != "" {
		pipeline := verify.Pipeline{SlsaEnabled: j.Options.Slsa}
		if err := pipeline.Run(ctx.Context, t, downloadPath, resolution); err != nil {
			return s.fail(tv, j.Options, fmt.Errorf("verifying %s: %w", tv.BA.Short, err))
		}
	}

	state = StateExtracting
	t.Debugf("%s: %s", tv.BA.Full, state.Pretty())
	if resolution.IsArchive && resolution.DownloadURL != "" {
		if _, err := extract.ExtractArchive(downloadPath, tv.InstallPath, resolution.BinaryPath, t); err != nil {
			return s.fail(tv, j.Options, fmt.Errorf("extracting %s: %w", tv.BA.Short, err))
		}
	} else if resolution.DownloadURL != "" {
		if err := os.MkdirAll(tv.InstallPath, 0o755); err != nil {
			return s.fail(tv, j.Options, err)
		}
		finalPath := filepath.Join(tv.InstallPath, filepath.Base(downloadPath))
		if err := os.Rename(downloadPath, finalPath); err != nil {
			return s.fail(tv, j.Options, err)
		}
		if err := os.Chmod(finalPath, 0o755); err != nil {
			return s.fail(tv, j.Options, err)
		}
	} else {
		// Subprocess-install backends (cargo, npm, go) write straight into
		// InstallPath via Backend.Install; there is nothing to extract.
		if err := j.Backend.Install(ctx.Context, resolution, j.Options); err != nil {
			return s.fail(tv, j.Options, fmt.Errorf("installing %s: %w", tv.BA.Short, err))
		}
	}

	state = StatePostInstall
	t.Debugf("%s: %s", tv.BA.Full, state.Pretty())
	if len(j.Package.PostProcess) > 0 {
		if err := runPostProcessPipeline(tv, j.Package, t); err != nil {
			return s.fail(tv, j.Options, fmt.Errorf("post-process pipeline for %s@%s: %w", tv.BA.Short, tv.Version, err))
		}
	}
	if err := fixup.FixupInstall(tv.InstallPath, t); err != nil {
		t.Infof("warning: binary fixup failed for %s@%s: %v", tv.BA.Short, tv.Version, err)
	}
	if !j.Options.SkipVerify {
		result := version.CheckBinaryVersion(t, tv.BA.Short, j.Package, tv.InstallPath, tv.Version, tv.Version)
		switch result.Status {
		case types.CheckStatusOK:
			t.Debugf("%s: installed binary reports version %s", tv.BA.Short, result.InstalledVersion)
		case types.CheckStatusMissing, types.CheckStatusError:
			return s.fail(tv, j.Options, fmt.Errorf("post-install version check for %s@%s: %s", tv.BA.Short, tv.Version, result.Error))
		default:
			t.Infof("warning: %s reports version %s, expected %s", tv.BA.Short, result.InstalledVersion, tv.Version)
		}
	}
	if err := writeBackendMeta(tv); err != nil {
		return s.fail(tv, j.Options, err)
	}

	if err := removeIncompleteMarker(tv.CachePath); err != nil {
		return s.fail(tv, j.Options, err)
	}
	if !j.Options.AlwaysKeepDownload {
		_ = os.RemoveAll(tv.DownloadPath)
	}
	state = StateComplete
	t.Infof("%s@%s: %s", tv.BA.Short, tv.Version, state.Pretty())
	return nil
}

// runPostProcessPipeline runs a package's PostProcess CEL expressions
// in-place over InstallPath: the teacher's installer runs these between a
// separate extraction workDir and a flat bin_dir, but the store's layout
// has no such split, so workDir and the pipeline's "binDir" destination are
// both tv.InstallPath and the evaluator's copy/move round-trips through a
// sandbox under CachePath.
func runPostProcessPipeline(tv *TV, pkg types.Package, t *task.Task) error {
	celPipeline := pipeline.NewCELPipeline(pkg.PostProcess)
	if celPipeline == nil {
		return fmt.Errorf("failed to create CEL pipeline from expressions: %v", pkg.PostProcess)
	}

	sandboxParent := filepath.Join(tv.CachePath, "pipeline-tmp")
	if err := os.MkdirAll(sandboxParent, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(sandboxParent)

	evaluator := pipeline.NewCELPipelineEvaluator(tv.InstallPath, tv.InstallPath, sandboxParent, t, false)
	return evaluator.Execute(celPipeline)
}

// resolveSystem implements §4.4's "system bypasses install entirely": no
// lock, no install/download/cache directories, no state-machine transitions
// past Pending. It only searches PATH via pkg/runtime and records where it
// found the tool, so the toolset projector can expose the host binary's
// directory instead of anything under installs_dir.
func (s *Store) resolveSystem(t *task.Task, j Job) error {
	tv := j.TV
	found, err := runtime.DetectCached(t, tv.BA.Short, j.Package, tv.BA.CacheDir)
	if err != nil {
		return fmt.Errorf("system constraint for %s: %w", tv.BA.Short, err)
	}
	tv.HostPath = filepath.Dir(found.Path)
	t.Infof("%s: using host installation at %s (version %s)", tv.BA.Short, found.Path, found.Version)
	return nil
}

// recordLockPin persists a generated blake3 pin into the lock file's
// platform entry for ba@version, creating the lock file if none exists yet.
// This is §4.3 step 4's "record for future pinning" fallback, not a
// verification step: the pin is never checked against anything here.
func recordLockPin(ba BA, version string, plat platform.Platform, pin string) error {
	lockFile, err := config.LoadLockFile("")
	if err != nil || lockFile == nil {
		lockFile = &types.LockFile{
			Version:         "1.0",
			Dependencies:    make(map[string]types.LockEntry),
			CurrentPlatform: plat,
		}
	}
	if lockFile.Dependencies == nil {
		lockFile.Dependencies = make(map[string]types.LockEntry)
	}

	entry, ok := lockFile.Dependencies[ba.Short]
	if !ok {
		entry = types.LockEntry{Version: version, Platforms: make(map[string]types.PlatformEntry)}
	}
	if entry.Platforms == nil {
		entry.Platforms = make(map[string]types.PlatformEntry)
	}

	platEntry := entry.Platforms[plat.String()]
	platEntry.Checksum = pin
	entry.Platforms[plat.String()] = platEntry
	lockFile.Dependencies[ba.Short] = entry

	return config.SaveLockFile(lockFile, "")
}

// fail implements the any-error->Failed transition: unless the caller opted
// into keeping partial installs, install_path and download_path are removed.
func (s *Store) fail(tv *TV, opts types.InstallOptions, cause error) error {
	if !opts.AlwaysKeepInstall {
		_ = os.RemoveAll(tv.InstallPath)
		_ = os.RemoveAll(tv.DownloadPath)
	}
	logger.Debugf("install failed for %s@%s: %v", tv.BA.Full, tv.Version, cause)
	return cause
}
