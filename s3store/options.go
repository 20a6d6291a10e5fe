// Package s3store implements the upload backend on Amazon S3 using the
// AWS SDK for Go v2.
package s3store

import (
	"log/slog"
	"net/http"
)

// config holds the Store configuration set through functional options.
type config struct {
	region       string
	endpoint     string
	usePathStyle bool
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Store.
type Option func(*config)

// defaultConfig returns the configuration used when no options are given.
func defaultConfig() config {
	return config{}
}

// WithRegion sets the AWS region, overriding whatever the default
// credential chain resolves.
func WithRegion(region string) Option {
	return func(c *config) {
		c.region = region
	}
}

// WithEndpoint points the store at a custom S3 endpoint, such as
// LocalStack or another S3-compatible service.
func WithEndpoint(endpoint string) Option {
	return func(c *config) {
		c.endpoint = endpoint
	}
}

// WithPathStyle forces path-style addressing (endpoint/bucket/key instead
// of bucket.endpoint/key). Most S3-compatible services require it.
func WithPathStyle() Option {
	return func(c *config) {
		c.usePathStyle = true
	}
}

// WithHTTPClient sets a custom HTTP client, typically to control
// timeouts or transport settings.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithLogger enables structured logging of store operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
