// Package errors provides error types and handling for upload operations.
// It wraps backend and broker failures with operation context and defines
// the error taxonomy callers can test with errors.Is().
package errors

import (
	"errors"
	"fmt"
)

// Error represents an upload operation error with context about the
// operation that failed. It wraps the underlying backend or broker error
// with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "initiate", "uploadPart", "complete")
	Op string

	// Container is the destination container (bucket) name (if applicable)
	Container string

	// Key is the destination object key (if applicable)
	Key string

	// Err is the underlying error from the backend, broker, or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Container != "" && e.Key != "" {
		return fmt.Sprintf("upload.%s %s/%s: %v", e.Op, e.Container, e.Key, e.Err)
	}
	if e.Container != "" {
		return fmt.Sprintf("upload.%s container %s: %v", e.Op, e.Container, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("upload.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("upload.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithContainer adds container context to an existing error.
func (e *Error) WithContainer(container string) *Error {
	e.Container = container
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with container and key context.
func NewObjectError(op, container, key string, err error) *Error {
	return &Error{
		Op:        op,
		Container: container,
		Key:       key,
		Err:       err,
	}
}

// Sentinel errors for the upload error taxonomy.
// These can be used with errors.Is() for error checking.
var (
	// ErrCredentialsUnavailable indicates the credential broker could not
	// produce usable credentials. Fatal to the in-flight operation; the
	// task pauses and stays resumable.
	ErrCredentialsUnavailable = errors.New("upload: credentials unavailable")

	// ErrTransport indicates a part upload, session open, listing, or
	// finalize call failed at the network or protocol layer.
	ErrTransport = errors.New("upload: transport error")

	// ErrSizeVerification indicates the finalize call succeeded but the
	// stored object's size does not match the local source size.
	ErrSizeVerification = errors.New("upload: size verification failed")

	// ErrCancelled marks an operation aborted by an explicit pause or
	// cancel. It is control flow, not a failure, and is never surfaced
	// through the error event channel.
	ErrCancelled = errors.New("upload: operation cancelled")

	// ErrSessionNotFound indicates the remote upload session no longer
	// exists (expired or reaped by a backend lifecycle policy).
	ErrSessionNotFound = errors.New("upload: upload session not found")

	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("upload: object not found")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("upload: access denied")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("upload: invalid input")
)

// IsCredentialsUnavailable checks if an error indicates the broker failed.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsCredentialsUnavailable(err error) bool {
	return errors.Is(err, ErrCredentialsUnavailable)
}

// IsTransport checks if an error indicates a network or protocol failure.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsSizeVerification checks if an error indicates a post-finalize size mismatch.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsSizeVerification(err error) bool {
	return errors.Is(err, ErrSizeVerification)
}

// IsCancelled checks if an error marks a caller-initiated abort. Errors
// from contexts cancelled by pause or cancel also satisfy this check once
// a backend has tagged them.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsSessionNotFound checks if an error indicates a missing upload session.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsObjectNotFound checks if an error indicates that an object was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsAccessDenied checks if an error indicates denied access to a resource.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidInput checks if an error indicates invalid input.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
