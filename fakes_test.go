package upload

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// fakeBroker hands out static long-lived credentials. When err is set it
// fails every call numbered failFrom or later (1-based; 0 fails all).
type fakeBroker struct {
	mu       sync.Mutex
	calls    int
	err      error
	failFrom int
}

func (b *fakeBroker) Credentials(_ context.Context) (uploadtypes.Credentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil && b.calls >= b.failFrom {
		return uploadtypes.Credentials{}, b.err
	}
	return uploadtypes.Credentials{
		AccessKeyID:     "AKIDFAKE",
		SecretAccessKey: "fake-secret",
		SessionToken:    "fake-token",
		Expiration:      time.Now().Add(time.Hour),
		Authenticated:   true,
	}, nil
}

func (b *fakeBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type storedPart struct {
	summary uploadtypes.PartSummary
	data    []byte
}

// fakeBackend is an in-memory Backend. Hooks customize individual
// operations; unset hooks fall through to working in-memory behavior.
// The gate channel, when set, blocks gated part uploads until it is
// closed or the part's context is cancelled.
type fakeBackend struct {
	mu          sync.Mutex
	sessions    map[string]map[int32]storedPart
	objects     map[string]int64
	receipts    []uploadtypes.CompletedPart
	attempts    map[int32]int
	lastSession string

	initiateErr error
	listErr     error
	uploadErr   func(partNumber int32) error
	completeErr error
	probeHook   func() (int64, bool, error)
	gate        chan struct{}
	gated       func(partNumber int32) bool
	partDelay   time.Duration

	initiateCalls atomic.Int32
	uploadCalls   atomic.Int32
	listCalls     atomic.Int32
	completeCalls atomic.Int32
	putCalls      atomic.Int32
	probeCalls    atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string]map[int32]storedPart),
		objects:  make(map[string]int64),
		attempts: make(map[int32]int),
	}
}

// seedSession installs a session with pre-stored parts, as if an earlier
// process had uploaded them.
func (f *fakeBackend) seedSession(sessionID string, parts ...uploadtypes.PartSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := make(map[int32]storedPart, len(parts))
	for _, part := range parts {
		stored[part.PartNumber] = storedPart{summary: part}
	}
	f.sessions[sessionID] = stored
	f.lastSession = sessionID
}

func (f *fakeBackend) Initiate(
	_ context.Context,
	_ uploadtypes.Credentials,
	_ uploadtypes.Destination,
	_ string,
) (string, error) {
	f.initiateCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initiateErr != nil {
		return "", f.initiateErr
	}
	sessionID := uuid.NewString()
	f.sessions[sessionID] = make(map[int32]storedPart)
	f.lastSession = sessionID
	return sessionID, nil
}

func (f *fakeBackend) UploadPart(
	ctx context.Context,
	_ uploadtypes.Credentials,
	_ uploadtypes.Destination,
	sessionID string,
	partNumber int32,
	body io.Reader,
	_ int64,
) (uploadtypes.CompletedPart, error) {
	f.uploadCalls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if cur <= peak || f.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	f.mu.Lock()
	f.attempts[partNumber]++
	gate, gated := f.gate, f.gated
	uploadErr := f.uploadErr
	delay := f.partDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil && (gated == nil || gated(partNumber)) {
		select {
		case <-gate:
		case <-ctx.Done():
			return uploadtypes.CompletedPart{}, fmt.Errorf("%w: %w", uploaderrors.ErrCancelled, ctx.Err())
		}
	}
	if uploadErr != nil {
		if err := uploadErr(partNumber); err != nil {
			return uploadtypes.CompletedPart{}, err
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return uploadtypes.CompletedPart{}, fmt.Errorf("%w: %w", uploaderrors.ErrTransport, err)
	}

	receipt := uploadtypes.CompletedPart{
		PartNumber: partNumber,
		ETag:       fmt.Sprintf("etag-%d", partNumber),
	}

	f.mu.Lock()
	if parts, ok := f.sessions[sessionID]; ok {
		parts[partNumber] = storedPart{
			summary: uploadtypes.PartSummary{
				PartNumber: partNumber,
				ETag:       receipt.ETag,
				Size:       int64(len(data)),
			},
			data: data,
		}
	}
	f.mu.Unlock()

	return receipt, nil
}

func (f *fakeBackend) ListParts(
	_ context.Context,
	_ uploadtypes.Credentials,
	_ uploadtypes.Destination,
	sessionID string,
) ([]uploadtypes.PartSummary, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	parts, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", uploaderrors.ErrSessionNotFound, sessionID)
	}
	summaries := make([]uploadtypes.PartSummary, 0, len(parts))
	for _, part := range parts {
		summaries = append(summaries, part.summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].PartNumber < summaries[j].PartNumber
	})
	return summaries, nil
}

func (f *fakeBackend) Complete(
	_ context.Context,
	_ uploadtypes.Credentials,
	dest uploadtypes.Destination,
	sessionID string,
	parts []uploadtypes.CompletedPart,
) error {
	f.completeCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	stored, ok := f.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", uploaderrors.ErrSessionNotFound, sessionID)
	}
	f.receipts = append([]uploadtypes.CompletedPart(nil), parts...)
	var total int64
	for _, part := range parts {
		sp, ok := stored[part.PartNumber]
		if !ok || sp.summary.ETag != part.ETag {
			return fmt.Errorf("%w: part %d receipt mismatch", uploaderrors.ErrTransport, part.PartNumber)
		}
		total += sp.summary.Size
	}
	f.objects[dest.String()] = total
	return nil
}

func (f *fakeBackend) Put(
	_ context.Context,
	_ uploadtypes.Credentials,
	dest uploadtypes.Destination,
	body io.Reader,
	_ int64,
	_ string,
) error {
	f.putCalls.Add(1)
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: %w", uploaderrors.ErrTransport, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[dest.String()] = int64(len(data))
	return nil
}

func (f *fakeBackend) ObjectSize(
	_ context.Context,
	_ uploadtypes.Credentials,
	dest uploadtypes.Destination,
) (int64, bool, error) {
	f.probeCalls.Add(1)
	f.mu.Lock()
	hook := f.probeHook
	f.mu.Unlock()
	if hook != nil {
		return hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.objects[dest.String()]
	return size, ok, nil
}

func (f *fakeBackend) setUploadErr(fn func(partNumber int32) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErr = fn
}

func (f *fakeBackend) setCompleteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeErr = err
}

func (f *fakeBackend) attemptCount(partNumber int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[partNumber]
}

func (f *fakeBackend) lastReceipts() []uploadtypes.CompletedPart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadtypes.CompletedPart(nil), f.receipts...)
}

func (f *fakeBackend) objectSize(dest uploadtypes.Destination) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.objects[dest.String()]
	return size, ok
}

func (f *fakeBackend) hasSession(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[sessionID]
	return ok
}

func (f *fakeBackend) lastSessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSession
}

// sessionData assembles the stored part payloads in part-number order.
func (f *fakeBackend) sessionData(sessionID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := f.sessions[sessionID]
	numbers := make([]int32, 0, len(parts))
	for n := range parts {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	var data []byte
	for _, n := range numbers {
		data = append(data, parts[n].data...)
	}
	return data
}

// eventRecorder captures every event a task emits, by kind.
type eventRecorder struct {
	mu        sync.Mutex
	progress  []ProgressEvent
	completes []CompleteEvent
	failures  []ErrorEvent
}

func recordEvents(task *Task) *eventRecorder {
	r := &eventRecorder{}
	task.On(EventProgress, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.progress = append(r.progress, e.(ProgressEvent))
	})
	task.On(EventComplete, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.completes = append(r.completes, e.(CompleteEvent))
	})
	task.On(EventError, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.failures = append(r.failures, e.(ErrorEvent))
	})
	return r
}

func (r *eventRecorder) progressEvents() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.progress...)
}

func (r *eventRecorder) completeEvents() []CompleteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CompleteEvent(nil), r.completes...)
}

func (r *eventRecorder) errorEvents() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEvent(nil), r.failures...)
}

// awaitDone fails the test if the task does not reach a terminal state.
func awaitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for task, state %s", task.State())
	}
}

// testData returns n bytes of deterministic content.
func testData(n int64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
