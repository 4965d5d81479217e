// Package notifier broadcasts session change events to subscribers.
package notifier

import (
	"sync"
	"time"
)

// EventType names a change to the session namespace.
type EventType string

// Event types.
const (
	WorkspaceLoaded EventType = "workspace.loaded"
	WorkspaceSaved  EventType = "workspace.saved"
	WorkspaceClosed EventType = "workspace.closed"
	// WorkspaceModified reports that the current image changed on disk.
	WorkspaceModified EventType = "workspace.modified"
	ImportCompleted   EventType = "import.completed"
	ImportFailed      EventType = "import.failed"
)

// Event describes one change. Subscribers re-query the bridge for details.
type Event struct {
	Type   EventType `json:"type"`
	Target string    `json:"target,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// bufferSize bounds how far a slow listener may fall behind before events are dropped.
const bufferSize = 16

// Notifier broadcasts events to all subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives events.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, bufferSize)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast sends ev to all listeners.
// Non-blocking: if a listener's channel is full, the event is dropped for it.
func (n *Notifier) Broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}
