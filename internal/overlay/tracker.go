package overlay

import (
	"sync"

	"golang.org/x/net/html"
)

// Tracker remembers the last list overlay rendered per phone number. The
// engine only asks whether a phone has one.
type Tracker struct {
	mu       sync.Mutex
	overlays map[string]*html.Node
}

func NewTracker() *Tracker {
	return &Tracker{overlays: make(map[string]*html.Node)}
}

func (t *Tracker) Has(phone string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.overlays[phone]
	return ok
}

func (t *Tracker) Get(phone string) (*html.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.overlays[phone]
	return n, ok
}

func (t *Tracker) Set(phone string, n *html.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overlays[phone] = n
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.overlays)
}

// Prune forgets overlays for which attached reports false and returns how
// many were dropped.
func (t *Tracker) Prune(attached func(*html.Node) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for phone, n := range t.overlays {
		if !attached(n) {
			delete(t.overlays, phone)
			dropped++
		}
	}
	return dropped
}
