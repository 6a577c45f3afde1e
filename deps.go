package deps

import (
	"context"
	"fmt"
	"time"

	"github.com/flanksource/clicky"
	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/config"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/store"
	"github.com/haldor-dev/rtv/pkg/types"
)

// Re-export commonly used types for public API
type (
	InstallResult = types.InstallResult
	InstallStatus = types.InstallStatus
	VerifyStatus  = types.VerifyStatus
	VersionStatus = types.VersionStatus
	Package       = types.Package
)

// Re-export status constants
const (
	InstallStatusInstalled        = types.InstallStatusInstalled
	InstallStatusForcedInstalled  = types.InstallStatusForcedInstalled
	InstallStatusAlreadyInstalled = types.InstallStatusAlreadyInstalled
	InstallStatusFailed           = types.InstallStatusFailed

	VerifyStatusChecksumMatch    = types.VerifyStatusChecksumMatch
	VerifyStatusChecksumMismatch = types.VerifyStatusChecksumMismatch
	VerifyStatusSkipped          = types.VerifyStatusSkipped

	VersionStatusValid               = types.VersionStatusValid
	VersionStatusInvalid             = types.VersionStatusInvalid
	VersionStatusUnsupportedPlatform = types.VersionStatusUnsupportedPlatform
)

// installSettings collects the knobs InstallOption mutates before a request
// is routed through pkg/store, the same §4.4 install engine `rtv install`
// and `rtv use` drive.
type installSettings struct {
	binDir       string
	appDir       string
	force        bool
	skipChecksum bool
	osOverride   string
	archOverride string
	timeout      time.Duration
}

// InstallOption configures a programmatic Install/InstallWithContext call.
type InstallOption func(*installSettings)

// WithBinDir sets the directory installed binaries are symlinked into.
func WithBinDir(dir string) InstallOption {
	return func(s *installSettings) { s.binDir = dir }
}

// WithAppDir records an alternate app directory in the returned
// InstallResult; the store always owns the real install path, and
// InstallResult.AppDir reports this directory in its place when it is set,
// so this only affects result reporting for callers that key off a custom
// directory convention.
func WithAppDir(dir string) InstallOption {
	return func(s *installSettings) { s.appDir = dir }
}

// WithForce reinstalls even if the package is already present in the store.
func WithForce(force bool) InstallOption {
	return func(s *installSettings) { s.force = force }
}

// WithSkipChecksum disables checksum verification during download.
func WithSkipChecksum(skip bool) InstallOption {
	return func(s *installSettings) { s.skipChecksum = skip }
}

// WithOS overrides the target OS and architecture instead of using the host's.
func WithOS(os, arch string) InstallOption {
	return func(s *installSettings) { s.osOverride, s.archOverride = os, arch }
}

// WithTimeout bounds how long Install will wait for the install to complete.
func WithTimeout(timeout time.Duration) InstallOption {
	return func(s *installSettings) { s.timeout = timeout }
}

// Install installs a package and returns detailed installation result.
// This is the main public API for programmatic package installation.
//
// Example:
//
//	result, err := deps.Install("jq", "latest",
//	    deps.WithBinDir("/usr/local/bin"),
//	    deps.WithForce(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
func Install(packageName, version string, opts ...InstallOption) (*InstallResult, error) {
	return InstallWithContext(context.Background(), packageName, version, opts...)
}

// InstallWithContext installs a package with a context and returns detailed
// installation result. This variant allows passing a context for
// cancellation and timeout control.
func InstallWithContext(ctx context.Context, packageName, version string, opts ...InstallOption) (*InstallResult, error) {
	settings := &installSettings{}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	depsConfig := config.GetGlobalRegistry()
	pkg, ok := depsConfig.Registry[packageName]
	if !ok {
		return nil, fmt.Errorf("package %q not found in registry", packageName)
	}

	be, ok := backend.GetGlobalRegistry().Get(pkg.Manager)
	if !ok {
		return nil, &backend.ErrBackendNotFound{Backend: pkg.Manager}
	}

	if settings.osOverride != "" || settings.archOverride != "" {
		platform.SetGlobalOverrides(settings.osOverride, settings.archOverride)
	}
	plat := platform.Current()
	dataDir := store.DefaultDataDir()

	ba := store.NewBA(packageName, pkg.Manager, dataDir)
	req := store.Request{BA: ba, Constraint: version, Source: "deps.Install"}

	resolved, err := store.ResolveRequest(ctx, be, pkg, req, plat)
	if err != nil {
		return nil, fmt.Errorf("resolving %s@%s: %w", packageName, version, err)
	}

	tv := store.NewTV(ba, resolved, req)
	opts2 := types.InstallOptions{
		BinDir:       settings.binDir,
		Platform:     plat,
		Force:        settings.force,
		SkipChecksum: settings.skipChecksum,
	}

	alreadyInstalled := tv.IsInstalled() && !settings.force

	st := store.New(1)
	if err := st.InstallAll(ctx, []store.Job{{Package: pkg, Backend: be, TV: tv, Options: opts2, Platform: plat.String()}}); err != nil {
		return &InstallResult{Package: pkg, Options: opts2, Platform: plat, Status: InstallStatusFailed}, err
	}
	clicky.WaitForGlobalCompletion()

	status := InstallStatusInstalled
	switch {
	case alreadyInstalled:
		status = InstallStatusAlreadyInstalled
	case settings.force:
		status = InstallStatusForcedInstalled
	}

	result := &InstallResult{
		Package:  pkg,
		Options:  opts2,
		Version:  types.Version{Version: tv.Version},
		Platform: plat,
		BinDir:   settings.binDir,
		Status:   status,
	}
	if !tv.IsSystem() {
		result.AppDir = tv.InstallPath
		if settings.appDir != "" {
			result.AppDir = settings.appDir
		}
	}
	return result, nil
}
