package device

import "sync"

// Cache is a per-device memo of raw command output keyed by command identity.
//
// It is filled lazily during an extraction pass and cleared at the end of
// the pass unless the caller keeps it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns the cached output for a command key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.entries[key]
	return text, ok
}

// Put stores the output for a command key.
func (c *Cache) Put(key, text string) {
	c.mu.Lock()
	c.entries[key] = text
	c.mu.Unlock()
}

// Clear discards all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of cached commands.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
