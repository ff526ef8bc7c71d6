package syncer

import "time"

type EventType string

const (
	EventStarted   EventType = "sync_started"
	EventCompleted EventType = "sync_completed"
	EventError     EventType = "sync_error"
)

// Event is a sync lifecycle notification. Err is set for EventError only.
type Event struct {
	Type   EventType
	Report Report
	Err    error
	At     time.Time
}

// Subscribe registers fn for lifecycle events. Listeners run synchronously
// on the syncing goroutine. The returned func removes the subscription.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.listeners))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
