// Package cache memoises contact lookups per phone number, including misses.
package cache

import (
	"context"
	"sync"

	"whatsapp-crm-lookup/internal/crm"
	"whatsapp-crm-lookup/internal/metrics"
)

// Finder performs one remote lookup. A nil result means not found.
type Finder interface {
	Lookup(ctx context.Context, phone string) *crm.Contact
}

// Cache has no eviction or expiry; it lives as long as its engine instance.
// The lock covers the map only. Two callers missing on the same phone at the
// same time will both call the Finder.
type Cache struct {
	finder Finder

	mu      sync.Mutex
	entries map[string]*crm.Contact
}

func New(finder Finder) *Cache {
	return &Cache{
		finder:  finder,
		entries: make(map[string]*crm.Contact),
	}
}

// Resolve returns the cached entry for phone, calling the Finder once on a miss.
func (c *Cache) Resolve(ctx context.Context, phone string) *crm.Contact {
	if contact, ok := c.Peek(phone); ok {
		metrics.CacheResolvesTotal.WithLabelValues("hit").Inc()
		return contact
	}
	metrics.CacheResolvesTotal.WithLabelValues("miss").Inc()

	contact := c.finder.Lookup(ctx, phone)

	c.mu.Lock()
	c.entries[phone] = contact
	c.mu.Unlock()
	return contact
}

// Peek reports the cached entry without looking anything up.
func (c *Cache) Peek(phone string) (*crm.Contact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	contact, ok := c.entries[phone]
	return contact, ok
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
