// Package miniostore implements the upload backend on MinIO and other
// S3-compatible services using the MinIO Go client.
package miniostore

import "log/slog"

// config holds the Store configuration set through functional options.
type config struct {
	secure bool
	region string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*config)

// defaultConfig returns the configuration used when no options are given.
func defaultConfig() config {
	return config{}
}

// WithSecure enables TLS for the endpoint connection.
func WithSecure() Option {
	return func(c *config) {
		c.secure = true
	}
}

// WithRegion sets the region sent with bucket-level operations.
func WithRegion(region string) Option {
	return func(c *config) {
		c.region = region
	}
}

// WithLogger enables structured logging of store operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
