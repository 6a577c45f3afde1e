package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/haldor-dev/rtv/pkg/backend"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/types"
	"github.com/haldor-dev/rtv/pkg/version"
)

// LTSAliasProvider is an optional Backend hook: ecosystems with a named LTS
// release schedule (e.g. node's "hydrogen"/"gallium" codenames) resolve
// "lts", "lts-<name>", and "lts/<name>" through a backend-owned alias map
// instead of a generic numeric rule. LTSAlias("") means "the current/most
// recent LTS line"; ok is false when name is not a recognized codename.
type LTSAliasProvider interface {
	LTSAlias(name string) (prefix string, ok bool)
}

var prereleaseTagPattern = regexp.MustCompile(`(?i)beta|rc|alpha|nightly`)

// dottedPrefixPattern matches bare dotted-numeric constraints like "1.2" or
// "v20.11" that should select the highest release under that prefix,
// distinguishing them from free-form fuzzy queries.
var dottedPrefixPattern = regexp.MustCompile(`^v?[0-9]+(\.[0-9]+)*$`)

// ResolveRequest implements spec §4.4's resolver: given a request, it
// consults in order (a) the lockfile, (b) version-specific symlinks under
// the BA's installs dir, then (c) the backend's remote version list, and
// returns the first hit. ref:/branch:/tag:/path:/system constraints pass
// through unchanged at the very top since they bypass all three lookups
// entirely (git-ref and filesystem installs, or "use whatever is already on
// the host"). Remote-list resolution, newest-first and semver-filtered,
// supports:
//
//   - "latest"/"stable": highest version that isn't a pre-release.
//   - "nightly": the newest entry regardless of pre-release status.
//   - "lts", "lts-<name>", "lts/<name>": backend-provided alias map.
//   - "sub-<n>-<base>": the n-th older version before base.
//   - a bare dotted prefix ("1.2"): the highest release under that prefix.
//   - anything else: a fuzzy anchor, ^query([-.].+)?$ after escaping regex
//     metacharacters, with an exact tag/version match short-circuiting it.
func ResolveRequest(ctx context.Context, be backend.Backend, pkg types.Package, req Request, plat platform.Platform) (string, error) {
	constraint := strings.TrimSpace(req.Constraint)
	if constraint == "" {
		constraint = "latest"
	}

	switch {
	case constraint == "system":
		return "system", nil
	case strings.HasPrefix(constraint, "path:"):
		return constraint, nil
	case strings.HasPrefix(constraint, "ref:"),
		strings.HasPrefix(constraint, "branch:"),
		strings.HasPrefix(constraint, "tag:"):
		return constraint, nil
	}

	if v, ok := lockedVersion(req, plat); ok {
		return v, nil
	}

	if v, ok := installedSymlinkVersion(req.BA, constraint); ok {
		return v, nil
	}

	versions, err := be.DiscoverVersions(ctx, pkg, plat, 0)
	if err != nil {
		return "", fmt.Errorf("discovering versions for %s: %w", req.BA.Short, err)
	}
	if len(versions) == 0 {
		return "", &types.ResolutionError{Tool: req.BA.Short, Constraint: constraint}
	}
	versions = version.FilterToValidSemver(versions)
	version.SortVersions(versions)
	if len(versions) == 0 {
		return "", &types.ResolutionError{Tool: req.BA.Short, Constraint: constraint}
	}

	if rest, ok := cutLTSPrefix(constraint); ok {
		provider, providerOK := be.(LTSAliasProvider)
		if !providerOK {
			return "", fmt.Errorf("backend %s has no lts alias map", req.BA.BackendType)
		}
		prefix, found := provider.LTSAlias(rest)
		if !found {
			return "", &types.ResolutionError{Tool: req.BA.Short, Constraint: constraint}
		}
		return highestWithPrefix(versions, prefix, req)
	}

	if rest, ok := strings.CutPrefix(constraint, "sub-"); ok {
		return resolveSub(versions, rest, req)
	}

	switch constraint {
	case "latest", "stable":
		return highestStable(versions, req)
	case "nightly":
		return versions[0].Tag, nil
	}

	if dottedPrefixPattern.MatchString(constraint) {
		return highestWithPrefix(versions, constraint, req)
	}

	return fuzzyFilter(versions, constraint, req)
}

// lockedVersion implements resolver step (a): an exact lockfile match wins
// outright over any symlink or remote lookup, provided the entry carries a
// platform-specific record for the platform being resolved. A lockfile
// entry with no matching platform is treated as a miss rather than an
// error, since the lock may simply not have been generated for this host
// yet.
func lockedVersion(req Request, plat platform.Platform) (string, bool) {
	if req.LockFile == nil {
		return "", false
	}
	entry, ok := req.LockFile.Dependencies[req.BA.Short]
	if !ok || entry.Version == "" {
		return "", false
	}
	if _, ok := entry.Platforms[plat.String()]; !ok {
		return "", false
	}
	return entry.Version, true
}

// installedSymlinkVersion implements resolver step (b): a symbolic
// constraint (e.g. "latest", "lts/hydrogen") may already have a standing
// symlink under installs_dir(ba) from a previous install, pointing at the
// concrete version directory it was last resolved to. Following it avoids a
// remote round-trip entirely. Dangling symlinks and anything resolving
// outside InstallsDir are treated as a miss, mirroring TV.IsInstalled's
// caution around stale or tampered links.
func installedSymlinkVersion(ba BA, constraint string) (string, bool) {
	link := filepath.Join(ba.InstallsDir, kebab(constraint))
	info, err := os.Lstat(link)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return "", false
	}
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(ba.InstallsDir, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.Base(target), true
}

// cutLTSPrefix recognizes "lts", "lts-<name>", and "lts/<name>", returning
// the codename (empty for bare "lts").
func cutLTSPrefix(constraint string) (name string, ok bool) {
	rest, ok := strings.CutPrefix(constraint, "lts")
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if rest[0] != '-' && rest[0] != '/' {
		return "", false
	}
	return rest[1:], true
}

// resolveSub implements "sub-<n>-<base>": versions is sorted newest-first,
// so the n-th older version before base sits n slots further into the
// slice than base's own index.
func resolveSub(versions []types.Version, rest string, req Request) (string, error) {
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid sub constraint %q", "sub-"+rest)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid sub constraint %q", "sub-"+rest)
	}
	base := parts[1]
	normBase := version.Normalize(base)

	idx := -1
	for i, v := range versions {
		if v.Tag == base || v.Version == normBase {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", &types.ResolutionError{Tool: req.BA.Short, Constraint: "sub-" + rest}
	}

	target := idx + n
	if target >= len(versions) {
		return "", fmt.Errorf("not enough older versions before %q for sub-%d", base, n)
	}
	return versions[target].Tag, nil
}

func highestStable(versions []types.Version, req Request) (string, error) {
	for _, v := range versions {
		if !v.Prerelease && !prereleaseTagPattern.MatchString(v.Tag) {
			return v.Tag, nil
		}
	}
	// No stable release exists at all; §4.4 only excludes pre-releases when
	// a stable candidate is available, so fall back to the newest overall.
	return versions[0].Tag, nil
}

func highestWithPrefix(versions []types.Version, prefix string, req Request) (string, error) {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "v")
	for _, v := range versions {
		norm := strings.TrimPrefix(v.Version, "v")
		if norm == prefix || strings.HasPrefix(norm, prefix+".") {
			return v.Tag, nil
		}
	}
	return "", &types.ResolutionError{Tool: req.BA.Short, Constraint: prefix}
}

func fuzzyFilter(versions []types.Version, query string, req Request) (string, error) {
	for _, v := range versions {
		if v.Tag == query || v.Version == query {
			return v.Tag, nil
		}
	}

	pattern := "^" + regexp.QuoteMeta(query) + `([-.].+)?$`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid version query %q: %w", query, err)
	}
	for _, v := range versions {
		if re.MatchString(v.Version) || re.MatchString(v.Tag) {
			return v.Tag, nil
		}
	}

	candidates := make([]string, 0, min(5, len(versions)))
	for i := 0; i < len(versions) && i < 5; i++ {
		candidates = append(candidates, versions[i].Tag)
	}
	return "", &types.ResolutionError{Tool: req.BA.Short, Constraint: query, Candidates: candidates}
}
