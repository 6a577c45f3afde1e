package http

import (
	"net/http"
	"os"
	"time"

	commonshttp "github.com/flanksource/commons/http"
	"github.com/flanksource/commons/logger"
	"github.com/haldor-dev/rtv/pkg/types"
)

// OfflineEnvVar gates all network I/O: any component that would otherwise
// dial out must go through GetHttpClient so this check is never bypassed
// per-backend (spec's offline-mode open question).
const OfflineEnvVar = "RTV_OFFLINE"

// IsOffline reports whether offline mode is enabled for this process.
func IsOffline() bool {
	v := os.Getenv(OfflineEnvVar)
	return v != "" && v != "0" && v != "false"
}

// offlineRoundTripper fails every request before it reaches the network,
// so enabling offline mode mid-process takes effect immediately even for
// clients already constructed.
type offlineRoundTripper struct{}

func (offlineRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return nil, &types.NetworkError{
		Op:    req.Method,
		URL:   req.URL.String(),
		Cause: errOffline,
	}
}

var errOffline = &offlineError{}

type offlineError struct{}

func (*offlineError) Error() string {
	return OfflineEnvVar + " is set; refusing to make network requests"
}

// ClientOption configures the HTTP client
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout      time.Duration
	headerLevel  logger.LogLevel
	bodyLevel    logger.LogLevel
	enableLogger bool
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithHttpLogging enables HTTP logging with specified levels
func WithHttpLogging(headerLevel, bodyLevel logger.LogLevel) ClientOption {
	return func(c *clientConfig) {
		c.headerLevel = headerLevel
		c.bodyLevel = bodyLevel
		c.enableLogger = true
	}
}

// GetHttpClient returns a configured HTTP client suitable for general use.
// It uses flanksource/commons/http for consistent logging and middleware support.
// By default, logging is enabled only when trace logging is on, at Trace1 level for
// headers and Trace2 level for bodies.
func GetHttpClient(opts ...ClientOption) *http.Client {
	cfg := &clientConfig{
		timeout:      30 * time.Second,
		headerLevel:  logger.Trace1,
		bodyLevel:    logger.Trace2,
		enableLogger: logger.IsTraceEnabled(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if IsOffline() {
		return &http.Client{Transport: offlineRoundTripper{}, Timeout: cfg.timeout}
	}

	client := commonshttp.NewClient().
		Timeout(cfg.timeout)

	if cfg.enableLogger {
		client = client.WithHttpLogging(cfg.headerLevel, cfg.bodyLevel)
	}

	// Convert to standard http.Client by using the RoundTripper
	return &http.Client{
		Transport: client,
		Timeout:   cfg.timeout,
	}
}
