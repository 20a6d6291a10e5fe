package upload

import (
	"bytes"
	"context"
	"fmt"

	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
)

// finalize runs the completion phase once the queue has settled: the
// backend finalize call (or the single put for a zero-byte source),
// post-hoc size verification, ledger cleanup, and the completion event.
//
// A transport failure here pauses the task; because the queue is already
// empty, a later resume goes straight back to finalize. A verification
// mismatch is reported but leaves the task running and the ledger entry
// in place, since the backend has already confirmed completion and
// retrying the finalize call cannot change the stored object.
func (t *Task) finalize(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateInProgress || t.finalizing {
		t.mu.Unlock()
		return
	}
	t.finalizing = true
	receipts := t.queue.receipts()
	sessionID := t.sessionID
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.finalizing = false
		t.mu.Unlock()
	}()

	creds, err := t.broker.Credentials(ctx)
	if err != nil {
		if isAbort(err) {
			t.parkIfRunning()
			return
		}
		t.pauseWithError(ctx, t.credentialsError(err))
		return
	}

	if t.src.Size() == 0 {
		err = t.backend.Put(ctx, creds, t.dest, bytes.NewReader(nil), 0, t.src.ContentType())
	} else {
		err = t.backend.Complete(ctx, creds, t.dest, sessionID, receipts)
	}
	if err != nil {
		if isAbort(err) {
			t.parkIfRunning()
			return
		}
		t.pauseWithError(ctx, err)
		return
	}

	if t.logger != nil {
		t.logger.DebugContext(ctx, "finalized upload",
			"destination", t.dest.String(),
			"parts", len(receipts))
	}

	// Post-hoc size check. A probe failure is inconclusive and never
	// blocks a backend-confirmed completion.
	size, found, err := t.backend.ObjectSize(ctx, creds, t.dest)
	switch {
	case err != nil:
		if t.logger != nil {
			t.logger.WarnContext(ctx, "size verification inconclusive",
				"destination", t.dest.String(),
				"error", err)
		}
	case !found:
		t.failVerification(ctx, fmt.Errorf("%w: object missing after finalize",
			uploaderrors.ErrSizeVerification))
		return
	case size != t.src.Size():
		t.failVerification(ctx, fmt.Errorf("%w: stored %d bytes, expected %d",
			uploaderrors.ErrSizeVerification, size, t.src.Size()))
		return
	}

	// The backend has confirmed the object; only a cancel (or an earlier
	// completion) blocks the terminal transition. A pause that raced the
	// finalize call changes nothing remotely, so the task completes.
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = StateCompleted
	hasEntry := t.hasLedgerEntry
	t.mu.Unlock()

	if hasEntry {
		if err := t.ledger.Remove(t.fingerprint); err != nil && t.logger != nil {
			t.logger.WarnContext(ctx, "failed to remove upload record", "error", err)
		}
	}

	if t.logger != nil {
		t.logger.InfoContext(ctx, "upload complete",
			"destination", t.dest.String(),
			"bytes", t.src.Size())
	}
	t.events.emit(CompleteEvent{Key: t.dest.Key})
	t.markDone()
}

// failVerification reports a size-verification failure without changing
// task state.
func (t *Task) failVerification(ctx context.Context, err error) {
	wrapped := uploaderrors.NewObjectError("verify", t.dest.Container, t.dest.Key, err)
	if t.logger != nil {
		t.logger.ErrorContext(ctx, "size verification failed",
			"destination", t.dest.String(),
			"error", wrapped)
	}
	t.events.emit(ErrorEvent{Cause: wrapped})
}
