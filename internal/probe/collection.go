package probe

// Collection is an ordered, growable set of in-flight probes.
type Collection struct {
	items []*Probe
}

// NewCollection returns an empty collection with room for n probes.
func NewCollection(n int) *Collection {
	return &Collection{items: make([]*Probe, 0, n)}
}

// Add appends p.
func (c *Collection) Add(p *Probe) {
	c.items = append(c.items, p)
}

// Len returns the number of probes.
func (c *Collection) Len() int {
	return len(c.items)
}

// Remove deletes p, preserving the order of the others. It returns false
// when p is not present.
func (c *Collection) Remove(p *Probe) bool {
	return len(c.RemoveFunc(func(q *Probe) bool { return q == p })) > 0
}

// RemoveFunc deletes every probe for which pred returns true and returns
// them in insertion order. The order of the remaining probes is kept.
func (c *Collection) RemoveFunc(pred func(*Probe) bool) []*Probe {
	var removed []*Probe
	kept := c.items[:0]
	for _, p := range c.items {
		if pred(p) {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	clear(c.items[len(kept):])
	c.items = kept
	return removed
}

// Clear removes every probe.
func (c *Collection) Clear() {
	clear(c.items)
	c.items = c.items[:0]
}

// Probes returns a copy of the probes in insertion order.
func (c *Collection) Probes() []*Probe {
	out := make([]*Probe, len(c.items))
	copy(out, c.items)
	return out
}
