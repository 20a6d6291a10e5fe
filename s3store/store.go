package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	upload "github.com/awslabs/visual-asset-management-system-sub005"
	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
	"github.com/awslabs/visual-asset-management-system-sub005/internal/s3api"
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// AWS error code constants
const (
	codeNoSuchUpload = "NoSuchUpload"
	codeNoSuchKey    = "NoSuchKey"
	codeNotFound     = "NotFound"
	codeAccessDenied = "AccessDenied"
)

// Store issues S3 calls with the credentials each operation supplies.
// Because upload tasks fetch short-lived scoped credentials per
// operation, the Store rebuilds its SDK client whenever the credentials
// change and reuses it while they stay the same.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	cfg config

	mu        sync.Mutex
	client    s3api.S3API
	clientKey string

	// fixed bypasses credential-based construction; used for testing.
	fixed s3api.S3API
}

// Compile-time check that Store satisfies the backend contract.
var _ upload.Backend = (*Store)(nil)

// New creates a Store with the provided options.
func New(opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{cfg: cfg}
}

// NewWithClient creates a Store backed by a fixed S3 client, ignoring
// per-operation credentials. This is primarily used for testing with
// mocked clients.
func NewWithClient(client s3api.S3API) *Store {
	return &Store{fixed: client}
}

// Initiate opens a multipart upload session and returns its ID.
func (s *Store) Initiate(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
	contentType string,
) (string, error) {
	client, err := s.clientFor(ctx, creds)
	if err != nil {
		return "", s.wrap("initiate", dest, err)
	}

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(dest.Container),
		Key:    aws.String(dest.Key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", s.wrap("initiate", dest, err)
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart sends one part and returns its receipt.
func (s *Store) UploadPart(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
	sessionID string,
	partNumber int32,
	body io.Reader,
	size int64,
) (uploadtypes.CompletedPart, error) {
	client, err := s.clientFor(ctx, creds)
	if err != nil {
		return uploadtypes.CompletedPart{}, s.wrap("uploadPart", dest, err)
	}

	out, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(dest.Container),
		Key:           aws.String(dest.Key),
		UploadId:      aws.String(sessionID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return uploadtypes.CompletedPart{}, s.wrap("uploadPart", dest, err)
	}
	return uploadtypes.CompletedPart{
		PartNumber: partNumber,
		ETag:       aws.ToString(out.ETag),
	}, nil
}

// ListParts returns every part the backend has stored for the session,
// following pagination markers until the listing is complete.
func (s *Store) ListParts(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
	sessionID string,
) ([]uploadtypes.PartSummary, error) {
	client, err := s.clientFor(ctx, creds)
	if err != nil {
		return nil, s.wrap("listParts", dest, err)
	}

	var summaries []uploadtypes.PartSummary
	var marker *string
	for {
		out, err := client.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(dest.Container),
			Key:              aws.String(dest.Key),
			UploadId:         aws.String(sessionID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, s.wrap("listParts", dest, err)
		}
		for _, part := range out.Parts {
			summaries = append(summaries, uploadtypes.PartSummary{
				PartNumber: aws.ToInt32(part.PartNumber),
				ETag:       aws.ToString(part.ETag),
				Size:       aws.ToInt64(part.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			return summaries, nil
		}
		marker = out.NextPartNumberMarker
	}
}

// Complete assembles the uploaded parts into the final object. The parts
// slice must already be sorted by part number.
func (s *Store) Complete(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
	sessionID string,
	parts []uploadtypes.CompletedPart,
) error {
	client, err := s.clientFor(ctx, creds)
	if err != nil {
		return s.wrap("complete", dest, err)
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, part := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.PartNumber),
		}
	}

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(dest.Container),
		Key:             aws.String(dest.Key),
		UploadId:        aws.String(sessionID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return s.wrap("complete", dest, err)
	}
	return nil
}

// Put stores an object in a single call. Zero-byte uploads use this
// instead of a multipart session.
func (s *Store) Put(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
	body io.Reader,
	size int64,
	contentType string,
) error {
	client, err := s.clientFor(ctx, creds)
	if err != nil {
		return s.wrap("put", dest, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(dest.Container),
		Key:           aws.String(dest.Key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		return s.wrap("put", dest, err)
	}
	return nil
}

// ObjectSize reports the stored size of the destination object via a
// listing, so it works with credentials scoped to list-only access. A
// missing object returns found=false with a nil error.
func (s *Store) ObjectSize(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
) (int64, bool, error) {
	client, err := s.clientFor(ctx, creds)
	if err != nil {
		return 0, false, s.wrap("objectSize", dest, err)
	}

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(dest.Container),
		Prefix: aws.String(dest.Key),
	})
	if err != nil {
		return 0, false, s.wrap("objectSize", dest, err)
	}

	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == dest.Key {
			return aws.ToInt64(obj.Size), true, nil
		}
	}
	return 0, false, nil
}

// clientFor returns an SDK client bound to the given credentials,
// rebuilding the cached client only when the credentials change.
func (s *Store) clientFor(ctx context.Context, creds uploadtypes.Credentials) (s3api.S3API, error) {
	if s.fixed != nil {
		return s.fixed, nil
	}

	key := creds.AccessKeyID + "|" + creds.SessionToken

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.clientKey == key {
		return s.client, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, err
	}
	if s.cfg.region != "" {
		cfg.Region = s.cfg.region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1" // AWS default region
	}
	if s.cfg.httpClient != nil {
		cfg.HTTPClient = s.cfg.httpClient
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.endpoint != "" {
		endpoint := s.cfg.endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if s.cfg.usePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	s.client = client
	s.clientKey = key

	if s.cfg.logger != nil {
		s.cfg.logger.DebugContext(ctx, "built S3 client",
			"region", cfg.Region,
			"accessKeyId", creds.AccessKeyID)
	}
	return client, nil
}

// wrap attaches operation and object context and maps SDK failures onto
// the package error taxonomy.
func (s *Store) wrap(op string, dest uploadtypes.Destination, err error) error {
	return uploaderrors.NewObjectError(op, dest.Container, dest.Key, translate(err))
}

// translate converts AWS SDK errors to our error types.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", uploaderrors.ErrCancelled, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case codeNoSuchUpload:
			return fmt.Errorf("%w: %s", uploaderrors.ErrSessionNotFound, apiErr.ErrorMessage())
		case codeNoSuchKey, codeNotFound:
			return fmt.Errorf("%w: %s", uploaderrors.ErrObjectNotFound, apiErr.ErrorMessage())
		case codeAccessDenied:
			return fmt.Errorf("%w: %s", uploaderrors.ErrAccessDenied, apiErr.ErrorMessage())
		}
	}

	return fmt.Errorf("%w: %w", uploaderrors.ErrTransport, err)
}
