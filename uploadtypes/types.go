// Package uploadtypes defines shared types for the upload module.
// It exists as a separate package so the root package, the part planner,
// and the storage backends can share these definitions without circular
// imports.
package uploadtypes

import (
	"fmt"
	"time"
)

// Destination identifies where an object is stored: a container (bucket)
// and an object key within it.
type Destination struct {
	// Container is the storage container (S3 bucket) name
	Container string

	// Key is the object key within the container
	Key string
}

// String returns the destination in "container/key" form.
func (d Destination) String() string {
	return fmt.Sprintf("%s/%s", d.Container, d.Key)
}

// Credentials holds time-scoped storage credentials produced by a
// credential broker. Tasks never hold these directly; they request them
// from the broker before each remote operation.
type Credentials struct {
	// AccessKeyID is the access key identifier
	AccessKeyID string

	// SecretAccessKey is the secret signing key
	SecretAccessKey string

	// SessionToken is the session token for temporary credentials
	SessionToken string

	// Expiration is the instant the credentials stop being valid
	Expiration time.Time

	// Authenticated reports whether the credentials belong to an
	// authenticated principal. Unauthenticated credentials are never
	// reused from a cache.
	Authenticated bool

	// IdentityID is an opaque marker for the principal the credentials
	// were issued to (empty when the broker does not supply one)
	IdentityID string
}

// PartDescriptor describes one planned part of a multipart upload: a
// contiguous byte range of the source, numbered from 1 with no gaps.
// Descriptors are immutable once enqueued.
type PartDescriptor struct {
	// PartNumber is the 1-based part number
	PartNumber int32

	// Offset is the byte offset of the part within the source
	Offset int64

	// Size is the part length in bytes (the final part may be shorter
	// than the planned part size)
	Size int64

	// SessionID is the remote upload session the part belongs to
	SessionID string
}

// CompletedPart is the receipt a backend returns for a successfully
// uploaded part. Receipts must be sorted by part number before the
// finalize call because network completion order is arbitrary.
type CompletedPart struct {
	// PartNumber is the 1-based part number
	PartNumber int32

	// ETag is the opaque integrity token the backend issued for the part
	ETag string
}

// PartSummary describes a part the backend already stores for an upload
// session, as reported by a part listing. Size is used to restore the
// bytes-uploaded accounting when a task resumes a cached session.
type PartSummary struct {
	// PartNumber is the 1-based part number
	PartNumber int32

	// ETag is the opaque integrity token the backend issued for the part
	ETag string

	// Size is the stored part size in bytes
	Size int64
}
