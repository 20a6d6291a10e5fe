package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_RoutesByKind(t *testing.T) {
	e := newEmitter()

	var progress, complete []Event
	e.on(EventProgress, func(ev Event) { progress = append(progress, ev) })
	e.on(EventComplete, func(ev Event) { complete = append(complete, ev) })

	e.emit(ProgressEvent{Loaded: 5, Total: 10})
	e.emit(CompleteEvent{Key: "media/render.bin"})
	e.emit(ProgressEvent{Loaded: 10, Total: 10})

	assert.Equal(t, []Event{
		ProgressEvent{Loaded: 5, Total: 10},
		ProgressEvent{Loaded: 10, Total: 10},
	}, progress)
	assert.Equal(t, []Event{CompleteEvent{Key: "media/render.bin"}}, complete)
}

func TestEmitter_MultipleHandlersPerKind(t *testing.T) {
	e := newEmitter()

	first, second := 0, 0
	e.on(EventError, func(Event) { first++ })
	e.on(EventError, func(Event) { second++ })

	e.emit(ErrorEvent{Cause: assert.AnError})

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestEmitter_Off(t *testing.T) {
	e := newEmitter()

	kept, removed := 0, 0
	e.on(EventProgress, func(Event) { kept++ })
	sub := e.on(EventProgress, func(Event) { removed++ })

	e.emit(ProgressEvent{Loaded: 1, Total: 2})
	e.off(sub)
	e.emit(ProgressEvent{Loaded: 2, Total: 2})
	e.off(sub) // removing twice is harmless

	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, removed)
}

func TestEmitter_EmitWithoutHandlers(t *testing.T) {
	e := newEmitter()

	assert.NotPanics(t, func() {
		e.emit(ProgressEvent{Loaded: 1, Total: 2})
		e.emit(ErrorEvent{Cause: assert.AnError})
	})
}
