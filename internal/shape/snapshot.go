package shape

// Snapshot is the full canvas in z-order. It is always exchanged whole.
type Snapshot []Shape

// Clone returns a deep copy that shares no point storage with s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, sh := range s {
		out[i] = sh.clone()
	}
	return out
}

// IndexOf returns the position of the shape with the given id, or -1.
func (s Snapshot) IndexOf(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

// Without returns a new snapshot lacking the shape with the given id.
func (s Snapshot) Without(id string) Snapshot {
	out := make(Snapshot, 0, len(s))
	for _, sh := range s {
		if sh.ID != id {
			out = append(out, sh)
		}
	}
	return out
}

// Replace returns a new snapshot with position i set to sh.
func (s Snapshot) Replace(i int, sh Shape) Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	out[i] = sh
	return out
}
