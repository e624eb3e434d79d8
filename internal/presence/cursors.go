package presence

// Entry is the last known cursor of a remote participant
type Entry struct {
	X     float64
	Y     float64
	Color string
	Name  string
}

// Cursors holds the presence entries a client has seen, keyed by connection
// id. The owner serializes access.
type Cursors struct {
	entries map[string]Entry
}

func NewCursors() *Cursors {
	return &Cursors{entries: make(map[string]Entry)}
}

// Upsert creates the entry on the first cursor from id and overwrites it after.
func (c *Cursors) Upsert(id string, e Entry) {
	c.entries[id] = e
}

func (c *Cursors) Remove(id string) {
	delete(c.entries, id)
}

func (c *Cursors) Get(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

func (c *Cursors) Len() int { return len(c.entries) }

// All returns a copy safe to hand to a renderer.
func (c *Cursors) All() map[string]Entry {
	out := make(map[string]Entry, len(c.entries))
	for id, e := range c.entries {
		out[id] = e
	}
	return out
}
