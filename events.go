package upload

import "sync"

// EventKind identifies one of the notification channels a task publishes on.
type EventKind string

const (
	// EventProgress fires after every part completes, including parts
	// restored from a cached session.
	EventProgress EventKind = "progress"

	// EventComplete fires once, after finalization and verification,
	// carrying the stored object key.
	EventComplete EventKind = "complete"

	// EventError fires when an operation fails. Aborts caused by an
	// explicit pause or cancel are filtered out and never appear here.
	EventError EventKind = "error"
)

// Event is the interface implemented by all event payloads.
type Event interface {
	Kind() EventKind
}

// ProgressEvent reports cumulative transfer progress in bytes. Loaded is
// monotonically non-decreasing across the lifetime of a task.
type ProgressEvent struct {
	Loaded int64
	Total  int64
}

// Kind returns EventProgress.
func (ProgressEvent) Kind() EventKind { return EventProgress }

// CompleteEvent reports a finished upload.
type CompleteEvent struct {
	// Key is the object key the upload was stored under
	Key string
}

// Kind returns EventComplete.
func (CompleteEvent) Kind() EventKind { return EventComplete }

// ErrorEvent reports an operation failure. The task has already landed in
// a well-defined state (usually PAUSED) by the time listeners see it.
type ErrorEvent struct {
	Cause error
}

// Kind returns EventError.
func (ErrorEvent) Kind() EventKind { return EventError }

// EventHandler receives events for the kind it was registered under.
// Handlers run synchronously on the goroutine that produced the event and
// must not block.
type EventHandler func(Event)

// Subscription identifies a registered handler so it can be removed with Off.
type Subscription struct {
	kind EventKind
	id   uint64
}

// emitter is a small multi-subscriber publish mechanism. It is agnostic to
// listener count and identity and is not part of the task state machine.
type emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventKind]map[uint64]EventHandler
}

func newEmitter() *emitter {
	return &emitter{
		handlers: make(map[EventKind]map[uint64]EventHandler),
	}
}

func (e *emitter) on(kind EventKind, handler EventHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[uint64]EventHandler)
	}
	e.handlers[kind][e.nextID] = handler
	return Subscription{kind: kind, id: e.nextID}
}

func (e *emitter) off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.handlers[sub.kind], sub.id)
}

func (e *emitter) emit(event Event) {
	e.mu.RLock()
	registered := e.handlers[event.Kind()]
	handlers := make([]EventHandler, 0, len(registered))
	for _, handler := range registered {
		handlers = append(handlers, handler)
	}
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
