package client

import "github.com/manpreetbhatti/inkboard/internal/shape"

// History is the per-client undo stack. Entry 0 is always the empty canvas
// and step always points at a valid entry.
type History struct {
	entries []shape.Snapshot
	step    int
}

func NewHistory() *History {
	return &History{entries: []shape.Snapshot{{}}}
}

// Commit drops any redo tail and appends snap as the new current entry.
func (h *History) Commit(snap shape.Snapshot) {
	h.entries = append(h.entries[:h.step+1], snap.Clone())
	h.step = len(h.entries) - 1
}

// Undo moves back one entry. ok is false at the first entry.
func (h *History) Undo() (snap shape.Snapshot, ok bool) {
	if h.step == 0 {
		return nil, false
	}
	h.step--
	return h.entries[h.step].Clone(), true
}

// Redo moves forward one entry. ok is false at the last entry.
func (h *History) Redo() (snap shape.Snapshot, ok bool) {
	if h.step >= len(h.entries)-1 {
		return nil, false
	}
	h.step++
	return h.entries[h.step].Clone(), true
}

func (h *History) Len() int      { return len(h.entries) }
func (h *History) Step() int     { return h.step }
func (h *History) CanUndo() bool { return h.step > 0 }
func (h *History) CanRedo() bool { return h.step < len(h.entries)-1 }

// At returns a copy of entry i.
func (h *History) At(i int) shape.Snapshot {
	return h.entries[i].Clone()
}
