package editor

import "pixelstack/core"

// History provides linear undo/redo over whole-stack snapshots. Present is
// always the last committed stack; Future is non-empty only immediately
// after an undo and any new commit discards it (no redo after branching).
//
// Snapshots instead of diffs is a deliberate tradeoff: it makes the
// round-trip and jump idempotence properties trivial to uphold.
type History struct {
	past    [][]core.Layer
	present []core.Layer
	future  [][]core.Layer
}

// NewHistory creates a history whose present is the empty stack (base
// image only).
func NewHistory() *History {
	return &History{present: []core.Layer{}}
}

// Present returns a deep copy of the current snapshot so callers cannot
// mutate committed history in place.
func (h *History) Present() []core.Layer { return cloneSnapshot(h.present) }

// Commit records a new present, pushing the old one onto past and
// discarding any redo branch. The only transition invoked by ordinary
// edits.
func (h *History) Commit(snapshot []core.Layer) {
	h.past = append(h.past, h.present)
	h.present = cloneSnapshot(snapshot)
	h.future = nil
}

// Undo moves one step back. Returns false (and changes nothing) if there
// is no past.
func (h *History) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	h.future = append([][]core.Layer{h.present}, h.future...)
	h.present = h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	return true
}

// Redo moves one step forward. Returns false (and changes nothing) if
// there is no future.
func (h *History) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	h.past = append(h.past, h.present)
	h.present = h.future[0]
	h.future = h.future[1:]
	return true
}

// Len returns the number of states in the flattened view
// [...past, present, ...future].
func (h *History) Len() int {
	return len(h.past) + 1 + len(h.future)
}

// Index returns the position of present within the flattened view.
func (h *History) Index() int { return len(h.past) }

// JumpTo moves directly to the given index of the flattened view,
// reclassifying everything before it as past and everything after as
// future. Equivalent to calling Undo/Redo repeatedly until the target is
// reached; jumping to the current index is a no-op.
func (h *History) JumpTo(index int) bool {
	if index < 0 || index >= h.Len() {
		return false
	}
	for index < h.Index() {
		h.Undo()
	}
	for index > h.Index() {
		h.Redo()
	}
	return true
}

// CanUndo reports whether there is a past state.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether there is a future state.
func (h *History) CanRedo() bool { return len(h.future) > 0 }

// State exports the buckets for persistence.
func (h *History) State() core.HistoryState {
	return core.HistoryState{
		Past:    cloneSnapshots(h.past),
		Present: cloneSnapshot(h.present),
		Future:  cloneSnapshots(h.future),
	}
}

// RestoreHistory rebuilds a history from a persisted state. A nil present
// loads as the empty stack.
func RestoreHistory(state core.HistoryState) *History {
	h := &History{
		past:    cloneSnapshots(state.Past),
		present: cloneSnapshot(state.Present),
		future:  cloneSnapshots(state.Future),
	}
	if h.present == nil {
		h.present = []core.Layer{}
	}
	return h
}

func cloneSnapshot(snapshot []core.Layer) []core.Layer {
	if snapshot == nil {
		return nil
	}
	out := make([]core.Layer, len(snapshot))
	for i, l := range snapshot {
		out[i] = l.Clone()
	}
	return out
}

func cloneSnapshots(snapshots [][]core.Layer) [][]core.Layer {
	if snapshots == nil {
		return nil
	}
	out := make([][]core.Layer, len(snapshots))
	for i, s := range snapshots {
		out[i] = cloneSnapshot(s)
	}
	return out
}
