package session

import "sync"

// Listener receives VIP entitlement transitions. It is called with the new
// and previous values of the active predicate, after the causing mutation
// has been fully committed.
type Listener func(newActive, oldActive bool)

// notifier is the in-process observer registry for entitlement transitions.
type notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[int]Listener)}
}

// add registers fn and returns its unsubscribe function. Unsubscribe is
// idempotent.
func (n *notifier) add(fn Listener) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// notify invokes every registered listener synchronously. The registry is
// copied first so listeners may unsubscribe from within their callback.
func (n *notifier) notify(newActive, oldActive bool) {
	n.mu.Lock()
	fns := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(newActive, oldActive)
	}
}

// count returns the number of registered listeners.
func (n *notifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
