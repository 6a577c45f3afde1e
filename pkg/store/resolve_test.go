package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal Backend stub exposing only a fixed version list;
// every other PackageManager method is unused by ResolveRequest.
type fakeBackend struct {
	Base
	versions []types.Version
	ltsNames map[string]string
}

func newFakeBackend(tags ...string) *fakeBackend {
	versions := make([]types.Version, 0, len(tags))
	for _, tag := range tags {
		versions = append(versions, types.Version{
			Tag:        tag,
			Version:    tag,
			Prerelease: false,
			Published:  time.Now(),
		})
	}
	return &fakeBackend{versions: versions}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) DiscoverVersions(ctx context.Context, pkg types.Package, plat platform.Platform, limit int) ([]types.Version, error) {
	return f.versions, nil
}

func (f *fakeBackend) LTSAlias(name string) (string, bool) {
	prefix, ok := f.ltsNames[name]
	return prefix, ok
}

func reqFor(short, constraint string) Request {
	return Request{BA: BA{Short: short, Full: "fake:" + short}, Constraint: constraint}
}

func TestResolveRequest_Latest_ExcludesPrerelease(t *testing.T) {
	be := newFakeBackend("20.0.0", "21.0.0", "22.0.0-rc.1")
	got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("node", "latest"), platform.Platform{OS: "linux", Arch: "x64"})
	require.NoError(t, err)
	assert.Equal(t, "21.0.0", got)
}

func TestResolveRequest_EmptyConstraintDefaultsToLatest(t *testing.T) {
	be := newFakeBackend("1.0.0", "2.0.0")
	got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", ""), platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got)
}

func TestResolveRequest_DottedPrefix(t *testing.T) {
	be := newFakeBackend("1.1.0", "1.2.0", "1.2.5", "2.0.0")
	got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", "1.2"), platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "1.2.5", got)
}

func TestResolveRequest_ExactVersionWins(t *testing.T) {
	be := newFakeBackend("1.2.0", "1.2.0-beta.1")
	// An exact tag match short-circuits the fuzzy anchor even though the
	// beta tag would also satisfy it.
	got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", "1.2.0"), platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", got)
}

func TestResolveRequest_FuzzyFilter_NoMatchIsResolutionError(t *testing.T) {
	be := newFakeBackend("1.0.0", "2.0.0")
	_, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", "9.9.9"), platform.Platform{})
	require.Error(t, err)
	var resErr *types.ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestResolveRequest_Sub_PicksNthOlderVersion(t *testing.T) {
	be := newFakeBackend("1.3.0", "1.2.0", "1.1.0", "1.0.0")
	got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", "sub-1-1.3.0"), platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", got)
}

func TestResolveRequest_Sub_BaseNotFound(t *testing.T) {
	be := newFakeBackend("1.3.0", "1.2.0")
	_, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", "sub-1-9.9.9"), platform.Platform{})
	require.Error(t, err)
}

func TestResolveRequest_LTS_UsesAliasProvider(t *testing.T) {
	be := newFakeBackend("18.0.0", "20.0.0", "21.0.0")
	be.ltsNames = map[string]string{"hydrogen": "18"}
	got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("node", "lts-hydrogen"), platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "18.0.0", got)
}

func TestResolveRequest_LTS_UnknownAliasErrors(t *testing.T) {
	be := newFakeBackend("18.0.0", "20.0.0")
	be.ltsNames = map[string]string{"hydrogen": "18"}
	_, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("node", "lts/gallium"), platform.Platform{})
	require.Error(t, err)
}

func TestResolveRequest_PassthroughConstraints(t *testing.T) {
	be := newFakeBackend("1.0.0")
	for _, c := range []string{"system", "path:/opt/tool", "ref:abc123", "branch:main", "tag:v1"} {
		got, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", c), platform.Platform{})
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestResolveRequest_NoBackendVersions(t *testing.T) {
	be := newFakeBackend()
	_, err := ResolveRequest(context.Background(), be, types.Package{}, reqFor("tool", "latest"), platform.Platform{})
	require.Error(t, err)
}

func TestResolveRequest_LockfileWinsOverRemote(t *testing.T) {
	be := newFakeBackend("1.0.0", "2.0.0")
	plat := platform.Platform{OS: "linux", Arch: "x64"}
	req := reqFor("tool", "latest")
	req.LockFile = &types.LockFile{
		Dependencies: map[string]types.LockEntry{
			"tool": {
				Version:   "1.5.0",
				Platforms: map[string]types.PlatformEntry{plat.String(): {URL: "https://example.test/tool"}},
			},
		},
	}
	got, err := ResolveRequest(context.Background(), be, types.Package{}, req, plat)
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", got)
}

func TestResolveRequest_LockfileMissingPlatformFallsThrough(t *testing.T) {
	be := newFakeBackend("1.0.0", "2.0.0")
	req := reqFor("tool", "latest")
	req.LockFile = &types.LockFile{
		Dependencies: map[string]types.LockEntry{
			"tool": {
				Version:   "1.5.0",
				Platforms: map[string]types.PlatformEntry{"darwin-arm64": {URL: "https://example.test/tool"}},
			},
		},
	}
	got, err := ResolveRequest(context.Background(), be, types.Package{}, req, platform.Platform{OS: "linux", Arch: "x64"})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got)
}

func TestResolveRequest_InstalledSymlinkWinsOverRemote(t *testing.T) {
	be := newFakeBackend("1.0.0", "2.0.0")
	dir := t.TempDir()
	ba := NewBA("tool", "fake", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(ba.InstallsDir, "1.0.0"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(ba.InstallsDir, "1.0.0"), filepath.Join(ba.InstallsDir, "latest")))

	req := Request{BA: ba, Constraint: "latest"}
	got, err := ResolveRequest(context.Background(), be, types.Package{}, req, platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got)
}

func TestResolveRequest_DanglingSymlinkFallsThroughToRemote(t *testing.T) {
	be := newFakeBackend("1.0.0", "2.0.0")
	dir := t.TempDir()
	ba := NewBA("tool", "fake", dir)
	require.NoError(t, os.MkdirAll(ba.InstallsDir, 0o755))
	require.NoError(t, os.Symlink(filepath.Join(ba.InstallsDir, "9.9.9"), filepath.Join(ba.InstallsDir, "latest")))

	req := Request{BA: ba, Constraint: "latest"}
	got, err := ResolveRequest(context.Background(), be, types.Package{}, req, platform.Platform{})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got)
}
