package session

import "sync"

// ConnectionEvent describes the authentication state after a transition.
// Observers may receive the same state more than once.
type ConnectionEvent struct {
	Authenticated bool
	Email         string
	UserID        string
}

// Events fans connection changes out to subscribers. One Events value can be
// shared by several sessions so a single status indicator observes them all.
type Events struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(ConnectionEvent)
}

// NewEvents returns an empty event bus.
func NewEvents() *Events {
	return &Events{subs: make(map[int]func(ConnectionEvent))}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Events) Subscribe(fn func(ConnectionEvent)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Publish delivers evt to every subscriber. Subscribers run on the caller's
// goroutine, outside the bus lock.
func (e *Events) Publish(evt ConnectionEvent) {
	e.mu.Lock()
	subs := make([]func(ConnectionEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(evt)
	}
}
