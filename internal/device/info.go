package device

import (
	"fmt"
	"sync"
)

// Info is the device information record: canonical field key to value.
//
// Values are scalars (string, int, float64, bool) or lists ([]any of
// scalars). An absent key means the fact is unknown.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Apply commits a batch of
//     updates atomically, so readers never observe half of a command's
//     fields.
type Info struct {
	schema *Schema
	mu     sync.RWMutex
	values map[string]any
}

// NewInfo creates an empty record bound to schema.
func NewInfo(schema *Schema) *Info {
	return &Info{
		schema: schema,
		values: make(map[string]any),
	}
}

// Schema returns the schema the record is bound to.
func (i *Info) Schema() *Schema {
	return i.schema
}

// Get returns the value stored for key.
func (i *Info) Get(key string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.values[key]
	return CopyValue(v), ok
}

// Set stores a single value. A nil value removes the key.
func (i *Info) Set(key string, value any) error {
	return i.Apply(map[string]any{key: value})
}

// Apply stores a batch of values atomically. It fails without changing
// anything if any key is not in the schema.
func (i *Info) Apply(updates map[string]any) error {
	for k := range updates {
		if !i.schema.Has(k) {
			return fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for k, v := range updates {
		if v == nil {
			delete(i.values, k)
			continue
		}
		i.values[k] = CopyValue(v)
	}
	return nil
}

// Snapshot returns a deep copy of all known values.
func (i *Info) Snapshot() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = CopyValue(v)
	}
	return out
}

// Len returns the number of known fields.
func (i *Info) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.values)
}

// CopyValue deep-copies a field value so list backing arrays are not shared.
func CopyValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	for i, e := range list {
		out[i] = CopyValue(e)
	}
	return out
}
