package miniostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	upload "github.com/awslabs/visual-asset-management-system-sub005"
	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// MinIO error code constants
const (
	codeNoSuchUpload = "NoSuchUpload"
	codeNoSuchKey    = "NoSuchKey"
	codeAccessDenied = "AccessDenied"
)

// listPartsPageSize bounds each ListObjectParts page.
const listPartsPageSize = 1000

// CoreAPI is the slice of the MinIO client surface the store uses.
// *minio.Core satisfies it; tests substitute fakes.
type CoreAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	ListObjectParts(ctx context.Context, bucket, object, uploadID string, partNumberMarker, maxParts int) (minio.ListObjectPartsResult, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, objectSize int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Verify that the MinIO core client implements our interface
var _ CoreAPI = (*minio.Core)(nil)

// Store issues MinIO calls with the credentials each operation supplies,
// rebuilding its client whenever the credentials change and reusing it
// while they stay the same.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	endpoint string
	cfg      config

	mu        sync.Mutex
	client    CoreAPI
	clientKey string

	// fixed bypasses credential-based construction; used for testing.
	fixed CoreAPI
}

// Compile-time check that Store satisfies the backend contract.
var _ upload.Backend = (*Store)(nil)

// New creates a Store for the given endpoint (host[:port], no scheme).
func New(endpoint string, opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{endpoint: endpoint, cfg: cfg}
}

// NewWithClient creates a Store backed by a fixed client, ignoring
// per-operation credentials. This is primarily used for testing.
func NewWithClient(client CoreAPI) *Store {
	return &Store{fixed: client}
}

// Initiate opens a multipart upload session and returns its ID.
func (s *Store) Initiate(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
	contentType string,
) (string, error) {
	client, err := s.clientFor(creds)
	if err != nil {
		return "", s.wrap("initiate", dest, err)
	}

	uploadID, err := client.NewMultipartUpload(ctx, dest.Container, dest.Key,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", s.wrap("initiate", dest, err)
	}
	return uploadID, nil
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
	client, err := s.clientFor(creds)
	if err != nil {
		return uploadtypes.CompletedPart{}, s.wrap("uploadPart", dest, err)
	}

	part, err := client.PutObjectPart(ctx, dest.Container, dest.Key, sessionID,
		int(partNumber), body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return uploadtypes.CompletedPart{}, s.wrap("uploadPart", dest, err)
	}
	return uploadtypes.CompletedPart{
		PartNumber: partNumber,
		ETag:       part.ETag,
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
	client, err := s.clientFor(creds)
	if err != nil {
		return nil, s.wrap("listParts", dest, err)
	}

	var summaries []uploadtypes.PartSummary
	marker := 0
	for {
		result, err := client.ListObjectParts(ctx, dest.Container, dest.Key,
			sessionID, marker, listPartsPageSize)
		if err != nil {
			return nil, s.wrap("listParts", dest, err)
		}
		for _, part := range result.ObjectParts {
			summaries = append(summaries, uploadtypes.PartSummary{
				PartNumber: int32(part.PartNumber),
				ETag:       part.ETag,
				Size:       part.Size,
			})
		}
		if !result.IsTruncated {
			return summaries, nil
		}
		marker = result.NextPartNumberMarker
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
	client, err := s.clientFor(creds)
	if err != nil {
		return s.wrap("complete", dest, err)
	}

	completed := make([]minio.CompletePart, len(parts))
	for i, part := range parts {
		completed[i] = minio.CompletePart{
			PartNumber: int(part.PartNumber),
			ETag:       part.ETag,
		}
	}

	_, err = client.CompleteMultipartUpload(ctx, dest.Container, dest.Key,
		sessionID, completed, minio.PutObjectOptions{})
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
	client, err := s.clientFor(creds)
	if err != nil {
		return s.wrap("put", dest, err)
	}

	_, err = client.PutObject(ctx, dest.Container, dest.Key, body, size, "", "",
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return s.wrap("put", dest, err)
	}
	return nil
}

// ObjectSize reports the stored size of the destination object. A missing
// object returns found=false with a nil error.
func (s *Store) ObjectSize(
	ctx context.Context,
	creds uploadtypes.Credentials,
	dest uploadtypes.Destination,
) (int64, bool, error) {
	client, err := s.clientFor(creds)
	if err != nil {
		return 0, false, s.wrap("objectSize", dest, err)
	}

	info, err := client.StatObject(ctx, dest.Container, dest.Key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == codeNoSuchKey || resp.StatusCode == http.StatusNotFound {
			return 0, false, nil
		}
		return 0, false, s.wrap("objectSize", dest, err)
	}
	return info.Size, true, nil
}

// clientFor returns a client bound to the given credentials, rebuilding
// the cached client only when the credentials change.
func (s *Store) clientFor(creds uploadtypes.Credentials) (CoreAPI, error) {
	if s.fixed != nil {
		return s.fixed, nil
	}

	key := creds.AccessKeyID + "|" + creds.SessionToken

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.clientKey == key {
		return s.client, nil
	}

	core, err := minio.NewCore(s.endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		Secure: s.cfg.secure,
		Region: s.cfg.region,
	})
	if err != nil {
		return nil, err
	}
	s.client = core
	s.clientKey = key

	if s.cfg.logger != nil {
		s.cfg.logger.Debug("built MinIO client",
			"endpoint", s.endpoint,
			"accessKeyId", creds.AccessKeyID)
	}
	return core, nil
}

// wrap attaches operation and object context and maps client failures
// onto the package error taxonomy.
func (s *Store) wrap(op string, dest uploadtypes.Destination, err error) error {
	return uploaderrors.NewObjectError(op, dest.Container, dest.Key, translate(err))
}

// translate converts MinIO client errors to our error types.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", uploaderrors.ErrCancelled, err)
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case codeNoSuchUpload:
		return fmt.Errorf("%w: %s", uploaderrors.ErrSessionNotFound, resp.Message)
	case codeNoSuchKey:
		return fmt.Errorf("%w: %s", uploaderrors.ErrObjectNotFound, resp.Message)
	case codeAccessDenied:
		return fmt.Errorf("%w: %s", uploaderrors.ErrAccessDenied, resp.Message)
	}

	return fmt.Errorf("%w: %w", uploaderrors.ErrTransport, err)
}
