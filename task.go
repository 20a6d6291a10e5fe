package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
	"github.com/awslabs/visual-asset-management-system-sub005/internal/planner"
	"github.com/awslabs/visual-asset-management-system-sub005/kvstore"
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// Task owns a single file's transfer lifecycle: it discovers or creates
// the remote upload session, plans parts, drives the bounded-concurrency
// transfer queue, accumulates completed-part receipts, and finalizes.
//
// Exactly one Task instance should be active per fingerprint at a time
// within a process. State transitions are serialized under an internal
// mutex; Resume, Pause, and Cancel are synchronous triggers over
// asynchronous work and may be called from any goroutine.
type Task struct {
	src     Source
	dest    uploadtypes.Destination
	broker  CredentialBroker
	backend Backend
	ledger  *Ledger
	events  *emitter
	logger  *slog.Logger

	concurrency int
	partSize    int64
	displayName string
	fingerprint string

	mu             sync.Mutex
	state          State
	queue          *transferQueue
	sessionID      string
	initialized    bool
	hasLedgerEntry bool
	finalizing     bool
	runCtx         context.Context
	runCancel      context.CancelFunc

	// progressMu orders progress emission so Loaded never appears to
	// move backwards when parts complete concurrently. It is never held
	// together with mu.
	progressMu   sync.Mutex
	progressHigh int64

	done     chan struct{}
	doneOnce sync.Once
}

// NewTask builds a task transferring src to dest. The broker supplies
// per-operation credentials and the backend issues the wire calls; both
// are required. Options override the concurrency limit, part-size floor,
// part-count bound, ledger store, display name, and logger.
func NewTask(
	src Source,
	dest uploadtypes.Destination,
	broker CredentialBroker,
	backend Backend,
	opts ...Option,
) (*Task, error) {
	if src == nil {
		return nil, uploaderrors.NewError("newTask", uploaderrors.ErrInvalidInput).
			WithMessage("source is required")
	}
	if src.Size() < 0 {
		return nil, uploaderrors.NewError("newTask", uploaderrors.ErrInvalidInput).
			WithMessage("source size must be non-negative")
	}
	if dest.Container == "" {
		return nil, uploaderrors.NewError("newTask", uploaderrors.ErrInvalidInput).
			WithMessage("destination container is required")
	}
	if dest.Key == "" {
		return nil, uploaderrors.NewError("newTask", uploaderrors.ErrInvalidInput).
			WithMessage("destination key is required")
	}
	if broker == nil {
		return nil, uploaderrors.NewError("newTask", uploaderrors.ErrInvalidInput).
			WithMessage("credential broker is required")
	}
	if backend == nil {
		return nil, uploaderrors.NewError("newTask", uploaderrors.ErrInvalidInput).
			WithMessage("backend is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = kvstore.NewMemStore()
	}
	ledger := cfg.ledger
	if ledger == nil {
		ledger = NewLedger(cfg.store, cfg.storageKey)
	}

	displayName := cfg.displayName
	if displayName == "" {
		if named, ok := src.(Named); ok && named.Name() != "" {
			displayName = named.Name()
		} else {
			displayName = path.Base(dest.Key)
		}
	}

	return &Task{
		src:         src,
		dest:        dest,
		broker:      broker,
		backend:     backend,
		ledger:      ledger,
		events:      newEmitter(),
		logger:      cfg.logger,
		concurrency: cfg.concurrency,
		partSize:    planner.PartSize(src.Size(), cfg.partSize, cfg.maxParts),
		displayName: displayName,
		fingerprint: Fingerprint(src, dest),
		state:       StateInit,
		queue:       newTransferQueue(src.Size()),
		done:        make(chan struct{}),
	}, nil
}

// On registers a handler for one event kind and returns a subscription
// token for Off.
func (t *Task) On(kind EventKind, handler EventHandler) Subscription {
	return t.events.on(kind, handler)
}

// Off removes a previously registered handler.
func (t *Task) Off(sub Subscription) {
	t.events.off(sub)
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns the cumulative bytes uploaded and the total source
// size. Loaded is monotonically non-decreasing.
func (t *Task) Progress() (loaded, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.loaded, t.queue.total
}

// Fingerprint returns the derived identity string of this transfer.
func (t *Task) Fingerprint() string {
	return t.fingerprint
}

// Done returns a channel that is closed once the task reaches a terminal
// state (COMPLETED or CANCELLED). Paused tasks keep the channel open.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Resume starts or restarts the transfer. The first resume discovers a
// cached remote session through the ledger or opens a new one, plans the
// part list, and starts the transfer queue; later resumes restart the
// queue from its current collections without re-contacting the backend
// for a session. Resuming a terminal or already-running task is a no-op
// with no network calls.
//
// ctx bounds the whole run: cancelling it unwinds in-flight parts and
// parks the task in PAUSED, exactly like Pause.
func (t *Task) Resume(ctx context.Context) {
	t.mu.Lock()
	if t.state.Terminal() || t.state == StateInProgress {
		t.mu.Unlock()
		return
	}
	t.state = StateInProgress
	runCtx, cancel := context.WithCancel(ctx)
	t.runCtx = runCtx
	t.runCancel = cancel
	needsInit := !t.initialized
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.DebugContext(ctx, "resuming upload",
			"destination", t.dest.String(),
			"displayName", t.displayName)
	}

	go func() {
		if needsInit {
			if err := t.initialize(runCtx); err != nil {
				if isAbort(err) {
					t.parkIfRunning()
				} else {
					t.pauseWithError(runCtx, err)
				}
				return
			}
		}
		t.pump(runCtx)
	}()
}

// Pause stops launching new parts and aborts every in-flight part's
// network operation, moving the aborted descriptors back to the front of
// the queue so they are retried first on resume. An operation whose
// network call already returned before the abort is observed still
// records its part. Pausing a task that is not running is a no-op.
func (t *Task) Pause() {
	t.mu.Lock()
	if t.state != StateInProgress {
		t.mu.Unlock()
		return
	}
	t.state = StatePaused
	t.queue.requeueFront(t.queue.drainInFlight())
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug("upload paused", "destination", t.dest.String())
	}
}

// Cancel aborts all in-flight operations and permanently stops the task.
// The remote upload session is not cleaned up (backend lifecycle policies
// own that) and the ledger entry is left in place, so a later task with
// the same fingerprint can still find the session. Cancelling a terminal
// task is a no-op.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = StateCancelled
	if t.runCancel != nil {
		t.runCancel()
	}
	t.queue.drainInFlight()
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Info("upload cancelled", "destination", t.dest.String())
	}
	t.markDone()
}

// initialize performs first-resume session discovery: consult the ledger,
// then adopt the recorded session or open a fresh one. Zero-byte sources
// plan zero parts and skip the session entirely; their completion goes
// through the single-call put path.
func (t *Task) initialize(ctx context.Context) error {
	if t.src.Size() == 0 {
		t.mu.Lock()
		t.initialized = true
		t.mu.Unlock()
		return nil
	}

	record, found, err := t.ledger.Get(t.fingerprint)
	if err != nil {
		return uploaderrors.NewObjectError("ledger", t.dest.Container, t.dest.Key,
			fmt.Errorf("%w: %w", uploaderrors.ErrTransport, err))
	}

	creds, err := t.broker.Credentials(ctx)
	if err != nil {
		if isAbort(err) {
			return err
		}
		return t.credentialsError(err)
	}

	if found {
		return t.adoptSession(ctx, creds, record)
	}
	return t.openSession(ctx, creds)
}

// openSession initiates a new remote multipart session, records it in the
// ledger, and enqueues the full part plan.
func (t *Task) openSession(ctx context.Context, creds uploadtypes.Credentials) error {
	sessionID, err := t.backend.Initiate(ctx, creds, t.dest, t.src.ContentType())
	if err != nil {
		return err
	}

	parts := planner.Plan(t.src.Size(), t.partSize, sessionID)

	t.mu.Lock()
	t.sessionID = sessionID
	t.hasLedgerEntry = true
	t.queue.enqueue(parts...)
	t.initialized = true
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.InfoContext(ctx, "opened upload session",
			"destination", t.dest.String(),
			"session", sessionID,
			"parts", len(parts),
			"partSize", t.partSize)
	}

	err = t.ledger.Put(t.fingerprint, Record{
		Container:   t.dest.Container,
		Key:         t.dest.Key,
		DisplayName: t.displayName,
		SessionID:   sessionID,
	})
	if err != nil && t.logger != nil {
		// The upload still works without the record; it just cannot be
		// resumed by a later process.
		t.logger.WarnContext(ctx, "failed to record upload session", "error", err)
	}
	return nil
}

// adoptSession resumes the session recorded in the ledger: list the parts
// the backend already stores, pre-seed the completed set and the
// bytes-uploaded accounting from them, and enqueue only the remainder.
func (t *Task) adoptSession(ctx context.Context, creds uploadtypes.Credentials, record Record) error {
	summaries, err := t.backend.ListParts(ctx, creds, t.dest, record.SessionID)
	if err != nil {
		return err
	}

	stored := make(map[int32]uploadtypes.PartSummary, len(summaries))
	for _, summary := range summaries {
		stored[summary.PartNumber] = summary
	}

	parts := planner.Plan(t.src.Size(), t.partSize, record.SessionID)

	t.mu.Lock()
	t.sessionID = record.SessionID
	t.hasLedgerEntry = true
	restored := 0
	for _, desc := range parts {
		if summary, ok := stored[desc.PartNumber]; ok {
			t.queue.complete(uploadtypes.CompletedPart{
				PartNumber: summary.PartNumber,
				ETag:       summary.ETag,
			}, summary.Size)
			restored++
			continue
		}
		t.queue.enqueue(desc)
	}
	loaded, total := t.queue.loaded, t.queue.total
	t.initialized = true
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.InfoContext(ctx, "resumed upload session",
			"destination", t.dest.String(),
			"session", record.SessionID,
			"restoredParts", restored,
			"remainingParts", len(parts)-restored)
	}

	if err := t.ledger.Put(t.fingerprint, record); err != nil && t.logger != nil {
		t.logger.WarnContext(ctx, "failed to touch upload record", "error", err)
	}

	if restored > 0 {
		t.emitProgress(loaded, total)
	}
	return nil
}

// emitProgress publishes a progress event, clamping Loaded to the highest
// value already published so listeners observe a monotonically
// non-decreasing sequence even when part completions race.
func (t *Task) emitProgress(loaded, total int64) {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()
	if loaded < t.progressHigh {
		loaded = t.progressHigh
	} else {
		t.progressHigh = loaded
	}
	t.events.emit(ProgressEvent{Loaded: loaded, Total: total})
}

// pump launches queued parts while capacity remains under the concurrency
// limit and the task is running, then triggers finalization once every
// planned part is accounted for and the byte accounting closes.
func (t *Task) pump(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateInProgress {
		t.mu.Unlock()
		return
	}
	for len(t.queue.queued) > 0 && t.queue.capacity(t.concurrency) > 0 {
		desc, _ := t.queue.next()
		partCtx, cancel := context.WithCancel(t.runCtx)
		entry := &inflightPart{desc: desc, cancel: cancel}
		t.queue.track(entry)
		go t.uploadPart(partCtx, entry)
	}
	ready := t.queue.settled() && t.queue.loaded == t.queue.total
	t.mu.Unlock()

	if ready {
		t.finalize(ctx)
	}
}

// uploadPart fetches fresh credentials, uploads one part, and hands the
// outcome to handlePartResult. It runs on its own goroutine with an
// independently cancellable context.
func (t *Task) uploadPart(ctx context.Context, entry *inflightPart) {
	desc := entry.desc

	creds, err := t.broker.Credentials(ctx)
	if err != nil {
		if !isAbort(err) {
			err = t.credentialsError(err)
		}
		t.handlePartResult(ctx, entry, uploadtypes.CompletedPart{}, err)
		return
	}

	body := io.NewSectionReader(t.src, desc.Offset, desc.Size)
	receipt, err := t.backend.UploadPart(ctx, creds, t.dest, desc.SessionID, desc.PartNumber, body, desc.Size)
	t.handlePartResult(ctx, entry, receipt, err)
}

// handlePartResult is the single completion point for part uploads. It
// records successes (including late successes that raced a pause),
// silently unwinds pause/cancel aborts, and converts the first real
// failure of a burst into a pause plus one error event.
func (t *Task) handlePartResult(ctx context.Context, entry *inflightPart, receipt uploadtypes.CompletedPart, err error) {
	desc := entry.desc
	defer entry.cancel()

	t.mu.Lock()
	tracked := t.queue.untrack(entry)

	if err == nil {
		// A call that returned before an abort was observed still counts;
		// pull the part back out of the requeued set.
		if !tracked {
			t.queue.removeQueued(desc.PartNumber)
		}
		var progress bool
		var loaded, total int64
		if !t.queue.isCompleted(desc.PartNumber) {
			t.queue.complete(receipt, desc.Size)
			if t.state != StateCancelled {
				progress = true
				loaded, total = t.queue.loaded, t.queue.total
			}
		}
		running := t.state == StateInProgress
		runCtx := t.runCtx
		t.mu.Unlock()

		if t.logger != nil {
			t.logger.DebugContext(ctx, "part uploaded",
				"destination", t.dest.String(),
				"part", desc.PartNumber,
				"size", desc.Size)
		}
		if progress {
			t.emitProgress(loaded, total)
		}
		if running {
			t.pump(runCtx)
		}
		return
	}

	if isAbort(err) {
		if tracked && t.state == StateInProgress && t.runCtx.Err() != nil {
			// The context passed to Resume was cancelled without an
			// explicit pause; park the task exactly like Pause would.
			t.state = StatePaused
			drained := t.queue.drainInFlight()
			t.queue.requeueFront(append(drained, desc))
		} else if tracked {
			t.queue.requeueFront([]uploadtypes.PartDescriptor{desc})
		}
		t.mu.Unlock()
		return
	}

	if !tracked {
		// A pause or an earlier failure already unwound this part.
		t.mu.Unlock()
		return
	}

	// First real failure of the burst: pause, requeue this part and its
	// aborted siblings at the queue front, report once. No automatic
	// retry; resuming is an explicit caller action.
	t.state = StatePaused
	drained := t.queue.drainInFlight()
	t.queue.requeueFront(append(drained, desc))
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.ErrorContext(ctx, "part upload failed",
			"destination", t.dest.String(),
			"part", desc.PartNumber,
			"error", err)
	}
	t.events.emit(ErrorEvent{Cause: err})
}

// parkIfRunning moves a running task to PAUSED without reporting, for
// runs whose context died under an in-flight setup or finalize call.
func (t *Task) parkIfRunning() {
	t.mu.Lock()
	if t.state == StateInProgress {
		t.state = StatePaused
		t.queue.requeueFront(t.queue.drainInFlight())
	}
	t.mu.Unlock()
}

// pauseWithError lands a running task in PAUSED, unwinding any in-flight
// parts, and reports the failure through the error event channel.
// Cancellation markers are control flow and are filtered out before
// reaching listeners.
func (t *Task) pauseWithError(ctx context.Context, err error) {
	if err == nil || isAbort(err) {
		return
	}

	t.mu.Lock()
	if t.state == StateInProgress {
		t.state = StatePaused
		t.queue.requeueFront(t.queue.drainInFlight())
	}
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.ErrorContext(ctx, "upload failed",
			"destination", t.dest.String(),
			"error", err)
	}
	t.events.emit(ErrorEvent{Cause: err})
}

// credentialsError tags broker failures with the taxonomy sentinel unless
// the broker already did.
func (t *Task) credentialsError(err error) error {
	if uploaderrors.IsCredentialsUnavailable(err) {
		return err
	}
	return uploaderrors.NewObjectError("credentials", t.dest.Container, t.dest.Key,
		fmt.Errorf("%w: %w", uploaderrors.ErrCredentialsUnavailable, err))
}

// markDone closes the terminal-state channel exactly once.
func (t *Task) markDone() {
	t.doneOnce.Do(func() {
		close(t.done)
	})
}

// isAbort reports whether err marks pause/cancel control flow rather than
// a real failure.
func isAbort(err error) bool {
	return uploaderrors.IsCancelled(err) || errors.Is(err, context.Canceled)
}
