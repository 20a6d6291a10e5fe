package upload

import (
	"context"
	"io"

	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// Backend issues the actual wire calls of the three-phase multipart
// protocol (initiate, upload parts, complete). The task drives credential
// fetching, so every method receives the credentials to use for that one
// call.
//
// Implementations must wrap protocol failures in ErrTransport-tagged
// errors and tag aborts caused by context cancellation with ErrCancelled,
// so the task can tell user-initiated unwinding apart from real failures.
// The s3store and miniostore packages provide implementations.
type Backend interface {
	// Initiate opens a new multipart upload session and returns its
	// backend-assigned session id.
	Initiate(ctx context.Context, creds uploadtypes.Credentials, dest uploadtypes.Destination, contentType string) (string, error)

	// UploadPart uploads one part and returns its receipt. body reads
	// exactly size bytes of the source.
	UploadPart(ctx context.Context, creds uploadtypes.Credentials, dest uploadtypes.Destination, sessionID string, partNumber int32, body io.Reader, size int64) (uploadtypes.CompletedPart, error)

	// ListParts returns every part the backend already stores for the
	// session, across all listing pages.
	ListParts(ctx context.Context, creds uploadtypes.Credentials, dest uploadtypes.Destination, sessionID string) ([]uploadtypes.PartSummary, error)

	// Complete finalizes the session, combining the uploaded parts into
	// one stored object. parts must be sorted ascending by part number.
	Complete(ctx context.Context, creds uploadtypes.Credentials, dest uploadtypes.Destination, sessionID string, parts []uploadtypes.CompletedPart) error

	// Put stores an object in a single call, bypassing the multipart
	// protocol. The task uses it for zero-byte sources, which plan zero
	// parts.
	Put(ctx context.Context, creds uploadtypes.Credentials, dest uploadtypes.Destination, body io.Reader, size int64, contentType string) error

	// ObjectSize probes the stored object's size for post-completion
	// verification. found is false when the object does not exist; an
	// error means the probe itself failed and the result is
	// inconclusive.
	ObjectSize(ctx context.Context, creds uploadtypes.Credentials, dest uploadtypes.Destination) (size int64, found bool, err error)
}
