package brokerhttp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	upload "github.com/awslabs/visual-asset-management-system-sub005"
	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// expirationLayouts covers RFC 3339 plus the stringified datetime format
// some brokers emit for STS expirations.
var expirationLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
}

// scopedAccessResponse is the wire shape of a credential grant.
type scopedAccessResponse struct {
	Credentials struct {
		AccessKeyID     string `json:"AccessKeyId"`
		SecretAccessKey string `json:"SecretAccessKey"`
		SessionToken    string `json:"SessionToken"`
		Expiration      string `json:"Expiration"`
	} `json:"Credentials"`
	Bucket     string `json:"bucket"`
	Region     string `json:"region"`
	IdentityID string `json:"IdentityId"`
}

// Broker requests scoped storage credentials over HTTP. Pair it with
// upload.NewCachingBroker so a grant is reused until it nears expiry.
//
// Thread Safety: Broker is safe for concurrent use.
type Broker struct {
	client *resty.Client
	cfg    config

	mu     sync.Mutex
	bucket string
	region string
	scoped bool
}

// Compile-time check that Broker satisfies the broker contract.
var _ upload.CredentialBroker = (*Broker)(nil)

// New creates a Broker for the given base URL.
func New(baseURL string, opts ...Option) *Broker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	client := resty.New().SetBaseURL(baseURL)
	if cfg.timeout > 0 {
		client.SetTimeout(cfg.timeout)
	}
	if cfg.authToken != "" {
		client.SetAuthToken(cfg.authToken)
	}

	return &Broker{client: client, cfg: cfg}
}

// Credentials requests a fresh credential grant. Every failure mode
// except context cancellation reports as credentials-unavailable.
func (b *Broker) Credentials(ctx context.Context) (uploadtypes.Credentials, error) {
	var out scopedAccessResponse

	req := b.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&out)
	if b.cfg.body != nil {
		req.SetBody(b.cfg.body)
	}

	resp, err := req.Post(b.cfg.path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return uploadtypes.Credentials{}, fmt.Errorf("%w: %w", uploaderrors.ErrCancelled, err)
		}
		return uploadtypes.Credentials{}, b.unavailable(err)
	}
	if resp.IsError() {
		return uploadtypes.Credentials{}, b.unavailable(fmt.Errorf("broker returned %s", resp.Status()))
	}
	if out.Credentials.AccessKeyID == "" || out.Credentials.SecretAccessKey == "" {
		return uploadtypes.Credentials{}, b.unavailable(errors.New("broker response missing credentials"))
	}

	expiration, err := parseExpiration(out.Credentials.Expiration)
	if err != nil {
		return uploadtypes.Credentials{}, b.unavailable(err)
	}

	b.mu.Lock()
	b.bucket = out.Bucket
	b.region = out.Region
	b.scoped = true
	b.mu.Unlock()

	if b.cfg.logger != nil {
		b.cfg.logger.DebugContext(ctx, "fetched scoped credentials",
			"accessKeyId", out.Credentials.AccessKeyID,
			"expiration", expiration)
	}

	return uploadtypes.Credentials{
		AccessKeyID:     out.Credentials.AccessKeyID,
		SecretAccessKey: out.Credentials.SecretAccessKey,
		SessionToken:    out.Credentials.SessionToken,
		Expiration:      expiration,
		Authenticated:   true,
		IdentityID:      out.IdentityID,
	}, nil
}

// Scope returns the bucket and region named in the most recent grant,
// which callers can use to build their upload destination. ok is false
// until the first successful request.
func (b *Broker) Scope() (bucket, region string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bucket, b.region, b.scoped
}

// unavailable tags a failure with the credentials-unavailable sentinel.
func (b *Broker) unavailable(err error) error {
	if b.cfg.logger != nil {
		b.cfg.logger.Error("credential request failed", "error", err)
	}
	return uploaderrors.NewError("scopedAccess",
		fmt.Errorf("%w: %w", uploaderrors.ErrCredentialsUnavailable, err))
}

// parseExpiration accepts the expiration formats brokers emit.
func parseExpiration(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("broker response missing expiration")
	}
	for _, layout := range expirationLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiration %q", raw)
}
