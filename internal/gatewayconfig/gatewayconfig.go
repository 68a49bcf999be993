// Package gatewayconfig implements the mergeable, append-only mapping from
// gateway id to an ordered list of JSON configuration fragments that the
// capability store and the agent's per-container configuration phase build
// up before gateway activation.
package gatewayconfig

import (
	"encoding/json"
	"fmt"
)

// Configuration is a mapping from gateway-id to an ordered sequence of
// opaque JSON fragments. Append is transactional per id: a failed append
// leaves the destination bucket exactly as it was.
type Configuration struct {
	buckets map[string][]json.RawMessage
}

// New creates an empty Configuration.
func New() *Configuration {
	return &Configuration{buckets: make(map[string][]json.RawMessage)}
}

// Append adds a single fragment to id's bucket.
func (c *Configuration) Append(id string, fragment json.RawMessage) error {
	return c.AppendArray(id, []json.RawMessage{fragment})
}

// AppendArray adds each element of fragments, in order, to id's bucket.
// On failure (currently only a nil *Configuration receiver) the bucket is
// left untouched — the copy happens into a fresh slice which only replaces
// the bucket once every element has been copied successfully.
func (c *Configuration) AppendArray(id string, fragments []json.RawMessage) error {
	if c == nil {
		return fmt.Errorf("gatewayconfig: append to nil configuration")
	}

	merged := append([]json.RawMessage(nil), c.buckets[id]...)
	for _, f := range fragments {
		merged = append(merged, append(json.RawMessage(nil), f...))
	}

	c.buckets[id] = merged
	return nil
}

// Merge appends other into c: every id in other's bucket is appended to the
// corresponding bucket in c, preserving insertion order. Transactional per id.
func (c *Configuration) Merge(other *Configuration) error {
	if other == nil {
		return nil
	}
	for _, id := range other.Ids() {
		if err := c.AppendArray(id, other.buckets[id]); err != nil {
			return fmt.Errorf("append gateway %q config: %w", id, err)
		}
	}
	return nil
}

// Get returns a deep copy of id's fragment list, or nil if id has never
// been appended to.
func (c *Configuration) Get(id string) []json.RawMessage {
	if c == nil {
		return nil
	}
	existing, ok := c.buckets[id]
	if !ok {
		return nil
	}
	out := make([]json.RawMessage, len(existing))
	for i, f := range existing {
		out[i] = append(json.RawMessage(nil), f...)
	}
	return out
}

// Ids returns the set of gateway ids with at least one fragment appended.
func (c *Configuration) Ids() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.buckets))
	for id := range c.buckets {
		ids = append(ids, id)
	}
	return ids
}

// Empty reports whether no gateway has any configuration fragments.
func (c *Configuration) Empty() bool {
	return c == nil || len(c.buckets) == 0
}

// Clone returns an independent deep copy, built by appending into a
// fresh Configuration rather than aliasing the backing arrays.
func (c *Configuration) Clone() *Configuration {
	clone := New()
	if c == nil {
		return clone
	}
	// Merge cannot fail here: cloning never mutates bucket identity in a
	// way that could trigger the nil-receiver error path.
	_ = clone.Merge(c)
	return clone
}
