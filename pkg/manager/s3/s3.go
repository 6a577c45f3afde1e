// Package s3 implements the PackageManager interface for artifacts stored
// in S3-compatible object storage. Same shape as the http backend, but
// downloads and version discovery go through the AWS SDK instead of plain
// HTTP GETs, and errors are classified into the standard S3 failure modes.
package s3

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	depshttp "github.com/haldor-dev/rtv/pkg/http"
	"github.com/haldor-dev/rtv/pkg/platform"
	"github.com/haldor-dev/rtv/pkg/types"
)

// S3Manager implements the PackageManager interface for S3-hosted releases.
type S3Manager struct {
	client *s3.Client
}

// NewS3Manager creates a new S3 manager using the default AWS credential
// chain (environment, shared config, instance/task role).
func NewS3Manager(ctx context.Context) (*S3Manager, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithHTTPClient(depshttp.GetHttpClient()))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Manager{client: s3.NewFromConfig(cfg)}, nil
}

func (m *S3Manager) Name() string { return "s3" }

// objectLocation is a parsed s3://<bucket>/<key> URL.
type objectLocation struct {
	Bucket string
	Key    string
}

// parseS3URL parses "s3://bucket/key/with/slashes" into its parts.
func parseS3URL(raw string) (objectLocation, error) {
	const prefix = "s3://"
	if !strings.HasPrefix(raw, prefix) {
		return objectLocation{}, fmt.Errorf("not an s3:// url: %s", raw)
	}
	rest := strings.TrimPrefix(raw, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return objectLocation{}, fmt.Errorf("invalid s3 url, expected s3://bucket/key: %s", raw)
	}
	return objectLocation{Bucket: parts[0], Key: parts[1]}, nil
}

// DiscoverVersions lists objects under a version_prefix and extracts
// versions with version_regex, since S3 has no release/tag API of its own.
func (m *S3Manager) DiscoverVersions(ctx context.Context, pkg types.Package, plat platform.Platform, limit int) ([]types.Version, error) {
	if pkg.Extra == nil {
		return nil, fmt.Errorf("s3 package %s requires 'extra' configuration", pkg.Name)
	}

	bucket, _ := pkg.Extra["bucket"].(string)
	prefix, _ := pkg.Extra["version_prefix"].(string)
	pattern, _ := pkg.Extra["version_regex"].(string)
	if bucket == "" {
		loc, err := urlFromTemplate(pkg)
		if err == nil {
			bucket = loc.Bucket
		}
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 package %s requires 'bucket' (or a url_template) in extra", pkg.Name)
	}
	if pattern == "" {
		pattern = `(\d+\.\d+\.\d+)`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid version_regex %q: %w", pattern, err)
	}

	out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, classifyError(err)
	}

	seen := map[string]bool{}
	var versions []types.Version
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		match := re.FindStringSubmatch(key)
		if len(match) < 2 {
			continue
		}
		raw := match[1]
		if seen[raw] {
			continue
		}
		seen[raw] = true

		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		versions = append(versions, types.Version{Version: v.String(), Tag: raw})
	}

	sort.Slice(versions, func(i, j int) bool {
		vi, _ := semver.NewVersion(versions[i].Version)
		vj, _ := semver.NewVersion(versions[j].Version)
		return vi.GreaterThan(vj)
	})

	if limit > 0 && limit < len(versions) {
		versions = versions[:limit]
	}
	return versions, nil
}

func urlFromTemplate(pkg types.Package) (objectLocation, error) {
	return parseS3URL(pkg.URLTemplate)
}

func (m *S3Manager) Resolve(ctx context.Context, pkg types.Package, version string, plat platform.Platform) (*types.Resolution, error) {
	url, err := pkg.TemplateURL(plat, version)
	if err != nil {
		return nil, fmt.Errorf("templating s3 url: %w", err)
	}
	loc, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}

	head, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, classifyError(err)
	}

	return &types.Resolution{
		Package:     pkg,
		Version:     version,
		Platform:    plat,
		DownloadURL: url,
		Size:        aws.ToInt64(head.ContentLength),
		IsArchive:   hasArchiveSuffix(loc.Key),
		BinaryPath:  pkg.BinaryPath,
	}, nil
}

func hasArchiveSuffix(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.xz", ".zip", ".tar.bz2", ".tar.zst"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (m *S3Manager) Install(ctx context.Context, resolution *types.Resolution, opts types.InstallOptions) error {
	return fmt.Errorf("install method not yet implemented - use the store package")
}

func (m *S3Manager) GetChecksums(ctx context.Context, pkg types.Package, version string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *S3Manager) Verify(ctx context.Context, binaryPath string, pkg types.Package) (*types.InstalledInfo, error) {
	return nil, fmt.Errorf("verify not implemented for s3 manager")
}

// classifyError maps AWS API errors to the specific, user-facing messages
// spec'd for the S3 backend instead of surfacing raw SDK error strings.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey":
			return fmt.Errorf("s3 object not found: %s", apiErr.ErrorMessage())
		case "NoSuchBucket":
			return fmt.Errorf("s3 bucket not found: %s", apiErr.ErrorMessage())
		case "AccessDenied":
			return fmt.Errorf("s3 access denied (check credentials/policy): %s", apiErr.ErrorMessage())
		case "InvalidAccessKeyId":
			return fmt.Errorf("s3 invalid access key id: %s", apiErr.ErrorMessage())
		case "SignatureDoesNotMatch":
			return fmt.Errorf("s3 request signature mismatch (check secret key/clock skew): %s", apiErr.ErrorMessage())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("s3 request timed out: %w", err)
	}
	return fmt.Errorf("s3 request failed: %w", err)
}
