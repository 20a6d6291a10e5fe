// Package brokerhttp implements a credential broker that fetches scoped,
// short-lived storage credentials from an HTTP endpoint.
package brokerhttp

import (
	"log/slog"
	"time"
)

// DefaultPath is the endpoint path credentials are requested from.
const DefaultPath = "/auth/scopeds3access"

// config holds the Broker configuration set through functional options.
type config struct {
	path      string
	authToken string
	body      any
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Broker.
type Option func(*config)

// defaultConfig returns the configuration used when no options are given.
func defaultConfig() config {
	return config{
		path: DefaultPath,
	}
}

// WithPath overrides the endpoint path credentials are requested from.
func WithPath(path string) Option {
	return func(c *config) {
		if path != "" {
			c.path = path
		}
	}
}

// WithAuthToken sends the given bearer token with every request.
func WithAuthToken(token string) Option {
	return func(c *config) {
		c.authToken = token
	}
}

// WithRequestBody sets the JSON body sent with every credential request,
// typically the asset identifiers the broker scopes access to.
func WithRequestBody(body any) Option {
	return func(c *config) {
		c.body = body
	}
}

// WithTimeout bounds each credential request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithLogger enables structured logging of broker requests.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
