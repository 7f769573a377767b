package engine

import "sync"

type eventKind int

const (
	listChanged eventKind = iota
	viewportChanged
	// pageChanged is any change on the page; the loop only checks whether
	// the observed containers are still attached.
	pageChanged
	reloadRequested
)

// eventQueue keeps observer notifications in delivery order. push never
// blocks, so it is safe to call from inside a render.
type eventQueue struct {
	mu      sync.Mutex
	pending []eventKind
	ready   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(kind eventKind) {
	q.mu.Lock()
	q.pending = append(q.pending, kind)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []eventKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}
