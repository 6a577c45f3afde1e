// Package matcher scores release assets against a target platform.
//
// It generalizes the binary keep/drop filtering in pkg/manager/asset_filter.go
// into the weighted scoring scheme backends need when a release has several
// plausible candidates (e.g. a gnu and a musl build for the same arch): every
// asset gets a score, the highest wins, and a non-positive score means "no
// match" rather than "worst match".
package matcher

import (
	"regexp"
	"strings"

	"github.com/haldor-dev/rtv/pkg/platform"
)

// Options tunes the matcher for a specific backend.
type Options struct {
	// NoApp disqualifies ".app." bundle assets even on macOS (aqua's no_app option).
	NoApp bool
}

// Candidate is a scored asset name.
type Candidate struct {
	Name  string
	Score int
}

// osPatterns are ordered so longer/more specific tokens are tried before
// their substrings (x86_64 before x86, aarch64/arm64 before bare arm).
var osPatterns = []struct {
	os  string
	re  *regexp.Regexp
	neg *regexp.Regexp
}{
	{"linux", mustWordRe(`linux`), mustWordRe(`darwin|osx|macos|windows|win(?:32|64)?|freebsd`)},
	{"macos", mustWordRe(`darwin|osx|macos|mac`), mustWordRe(`linux|windows|win(?:32|64)?|freebsd`)},
	{"windows", mustWordRe(`windows|win(?:32|64)?|win`), mustWordRe(`linux|darwin|osx|macos|freebsd`)},
	{"freebsd", mustWordRe(`freebsd`), mustWordRe(`linux|darwin|osx|macos|windows`)},
}

var archPatterns = []struct {
	arch string
	re   *regexp.Regexp
	neg  *regexp.Regexp
}{
	{"x64", mustWordRe(`x86_64|amd64|x64`), mustWordRe(`x86(?:\b|_)|i386|i686|arm64|aarch64|armv?7|riscv64`)},
	{"arm64", mustWordRe(`aarch64|arm64`), mustWordRe(`x86_64|amd64|x64|x86|i386|i686|armv?7|riscv64`)},
	{"x86", mustWordRe(`x86|i386|i686`), mustWordRe(`x86_64|amd64|x64|aarch64|arm64|armv?7|riscv64`)},
	{"arm", mustWordRe(`armv?7|\barm\b`), mustWordRe(`aarch64|arm64|x86_64|amd64|x64|x86|i386|i686|riscv64`)},
	{"riscv64", mustWordRe(`riscv64`), mustWordRe(`x86_64|amd64|x64|aarch64|arm64|x86|i386|i686|armv?7`)},
}

var libcPatterns = []struct {
	libc string
	re   *regexp.Regexp
}{
	{"gnu", mustWordRe(`gnu|glibc`)},
	{"musl", mustWordRe(`musl`)},
	{"msvc", mustWordRe(`msvc`)},
}

func mustWordRe(body string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:\b|_)(?:` + body + `)(?:\b|_)`)
}

var (
	debugTestRe  = regexp.MustCompile(`(?i)(?:\b|_)(?:debug|test|tests)(?:\b|_)`)
	releaseInfoRe = regexp.MustCompile(`(?i)release-info|changelog`)

	// metadataExt are suffixes that can never be the actual asset even if
	// they otherwise score well on OS/arch (signatures, checksums, docs).
	metadataExt = []string{
		".asc", ".sig", ".sha256", ".sha512", ".md5", ".json", ".txt", ".pem",
		".sbom", ".intoto.jsonl", ".intoto", ".spdx", ".cdx", ".minisig",
	}
	archiveExt = []string{".tar.gz", ".tgz", ".tar.xz", ".txz", ".tar.bz2", ".tar.zst", ".tar", ".7z", ".gz", ".xz", ".bz2"}
)

// Score computes the match score of a single asset name against a target platform.
func Score(name string, target platform.Platform, opts Options) int {
	lower := strings.ToLower(name)
	score := 0

	score += scoreOS(lower, target.OS)
	score += scoreArch(lower, target.Arch)
	score += scoreLibc(lower, target)
	score += scoreFormat(lower, target)
	score += scorePenalties(lower, target, opts)

	return score
}

func scoreOS(lower, targetOS string) int {
	if targetOS != "windows" && (strings.HasSuffix(lower, ".msi") || strings.HasSuffix(lower, ".exe")) {
		return -100
	}

	for _, p := range osPatterns {
		if p.os == targetOS {
			if p.re.MatchString(lower) {
				return 100
			}
			continue
		}
		if p.re.MatchString(lower) {
			return -100
		}
	}
	return 0
}

func scoreArch(lower, targetArch string) int {
	for _, p := range archPatterns {
		if p.arch == targetArch {
			if p.re.MatchString(lower) {
				return 50
			}
			continue
		}
		if p.re.MatchString(lower) {
			return -150
		}
	}
	return 0
}

func scoreLibc(lower string, target platform.Platform) int {
	if target.OS != "linux" && target.OS != "windows" {
		return 0
	}
	if target.Libc == "" || target.Libc == "none" {
		return 0
	}
	for _, p := range libcPatterns {
		if strings.Contains(lower, p.libc) {
			if p.libc == target.Libc {
				return 25
			}
			return -10
		}
	}
	return -10
}

func scoreFormat(lower string, target platform.Platform) int {
	if strings.HasSuffix(lower, ".zip") {
		if target.OS == "windows" {
			return 15
		}
		return 5
	}
	for _, ext := range archiveExt {
		if strings.HasSuffix(lower, ext) {
			return 10
		}
	}
	return 0
}

func scorePenalties(lower string, target platform.Platform, opts Options) int {
	penalty := 0

	if debugTestRe.MatchString(lower) {
		penalty -= 20
	}
	if strings.Contains(lower, ".artifactbundle") {
		penalty -= 30
	}
	if strings.Contains(lower, ".app.") || strings.HasSuffix(lower, ".app") {
		if target.OS != "macos" {
			penalty -= 100
		} else if opts.NoApp {
			penalty -= 50
		}
	}
	if strings.HasSuffix(lower, ".vsix") {
		penalty -= 100
	}
	for _, ext := range metadataExt {
		if strings.HasSuffix(lower, ext) {
			penalty -= 100
			break
		}
	}
	if releaseInfoRe.MatchString(lower) {
		penalty -= 50
	}

	return penalty
}

// Best scores every candidate and returns the highest-scoring name. Ties are
// broken by first occurrence in the input slice (stable sort is not needed
// because we scan left to right and only replace on strictly-greater score).
// A nil result (ok=false) means every asset scored <= 0: no match.
func Best(names []string, target platform.Platform, opts Options) (best string, ok bool, candidates []Candidate) {
	candidates = make([]Candidate, 0, len(names))
	bestScore := 0
	for _, name := range names {
		s := Score(name, target, opts)
		candidates = append(candidates, Candidate{Name: name, Score: s})
		if s > 0 && (!ok || s > bestScore) {
			best = name
			bestScore = s
			ok = true
		}
	}
	return best, ok, candidates
}

// checksumSuffixes is the ordered set of filename suffixes tried when
// discovering a checksum file for a selected asset (spec §4.2 "Checksum
// discovery", step 1).
var checksumSuffixes = []string{
	".sha256", ".sha512", ".md5", ".sha256sum", ".sha512sum",
	".SHA256SUMS", ".SHA512SUMS", ".sha256.txt", ".sha512.txt",
}

// globalChecksumPatterns are filenames considered regardless of the asset
// name (spec §4.2 "Checksum discovery", step 3).
var globalChecksumPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^sha256sums?\.txt$`),
	regexp.MustCompile(`(?i)^sha(256|512)?sums`),
	regexp.MustCompile(`(?i)^checksums?\.txt$`),
}

// stripArchiveExt removes a recognized archive extension from a name, used
// for checksum-discovery step 2 ("<asset-stripped-of-archive-ext>" + suffix).
func stripArchiveExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range archiveExt {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// FindChecksumFile picks the checksum asset that corresponds to the selected
// download asset out of a release's full file list, per spec §4.2.
func FindChecksumFile(assetName string, allNames []string) (string, bool) {
	candidates := append([]string{assetName}, stripArchiveExt(assetName))
	for _, base := range candidates {
		for _, suffix := range checksumSuffixes {
			want := base + suffix
			for _, name := range allNames {
				if strings.EqualFold(name, want) {
					return name, true
				}
			}
		}
	}

	for _, name := range allNames {
		for _, re := range globalChecksumPatterns {
			if re.MatchString(name) {
				return name, true
			}
		}
	}

	return "", false
}

// BestProvenance scores *.intoto.jsonl / *.provenance.json assets restricted
// to OS/arch components (spec §4.2 "Provenance picking"); format and debug
// penalties don't apply to provenance files. A single provenance file wins
// even when its name carries no platform hint.
func BestProvenance(names []string, target platform.Platform) (string, bool) {
	var provenance []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".intoto.jsonl") || strings.HasSuffix(lower, ".provenance.json") ||
			strings.HasSuffix(lower, ".intoto") {
			provenance = append(provenance, name)
		}
	}
	if len(provenance) == 0 {
		return "", false
	}
	if len(provenance) == 1 {
		return provenance[0], true
	}

	best := ""
	bestScore := 0
	found := false
	for _, name := range provenance {
		lower := strings.ToLower(name)
		s := scoreOS(lower, target.OS) + scoreArch(lower, target.Arch)
		if s > 0 && (!found || s > bestScore) {
			best, bestScore, found = name, s, true
		}
	}
	if !found {
		return provenance[0], true
	}
	return best, true
}
