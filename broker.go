package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// CredentialMargin is the safety margin applied to credential expiry:
// cached credentials within this margin of expiring are refreshed rather
// than reused.
const CredentialMargin = 60 * time.Second

// CredentialBroker supplies time-scoped storage credentials. Tasks hold a
// broker, never raw credentials, and request fresh ones before every
// remote operation. Broker failures surface to listeners as
// ErrCredentialsUnavailable: fatal to the in-flight operation, but the
// task stays resumable.
type CredentialBroker interface {
	Credentials(ctx context.Context) (uploadtypes.Credentials, error)
}

// BrokerFunc adapts a plain function to the CredentialBroker interface.
type BrokerFunc func(ctx context.Context) (uploadtypes.Credentials, error)

// Credentials calls f.
func (f BrokerFunc) Credentials(ctx context.Context) (uploadtypes.Credentials, error) {
	return f(ctx)
}

// CachingBroker wraps another broker with the caching policy every broker
// implementation must honor: a cached credential is reused if and only if
// it is marked authenticated and its expiration is more than
// CredentialMargin in the future. Otherwise a fresh fetch replaces the
// cache. Concurrent callers share a single in-flight fetch.
type CachingBroker struct {
	inner  CredentialBroker
	logger *slog.Logger

	mu     sync.Mutex
	cached uploadtypes.Credentials
	valid  bool
	now    func() time.Time
}

// BrokerOption configures a CachingBroker.
type BrokerOption func(*CachingBroker)

// WithBrokerLogger sets an optional structured logger for cache activity.
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *CachingBroker) {
		b.logger = logger
	}
}

// NewCachingBroker wraps inner with the expiry-margin cache.
func NewCachingBroker(inner CredentialBroker, opts ...BrokerOption) *CachingBroker {
	broker := &CachingBroker{
		inner: inner,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(broker)
	}
	return broker
}

// Credentials returns the cached credentials when still safely valid, or
// fetches fresh ones from the wrapped broker.
func (b *CachingBroker) Credentials(ctx context.Context) (uploadtypes.Credentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.valid && b.usable(b.cached) {
		if b.logger != nil {
			b.logger.DebugContext(ctx, "using cached credentials",
				"expiration", b.cached.Expiration)
		}
		return b.cached, nil
	}

	creds, err := b.inner.Credentials(ctx)
	if err != nil {
		b.valid = false
		return uploadtypes.Credentials{}, err
	}

	b.cached = creds
	b.valid = true
	if b.logger != nil {
		b.logger.DebugContext(ctx, "fetched fresh credentials",
			"expiration", creds.Expiration,
			"authenticated", creds.Authenticated)
	}
	return creds, nil
}

// usable reports whether cached credentials may be reused.
func (b *CachingBroker) usable(creds uploadtypes.Credentials) bool {
	return creds.Authenticated && creds.Expiration.After(b.now().Add(CredentialMargin))
}

// Compile-time interface checks.
var (
	_ CredentialBroker = (BrokerFunc)(nil)
	_ CredentialBroker = (*CachingBroker)(nil)
)
