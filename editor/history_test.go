package editor

import (
	"fmt"
	"testing"

	"pixelstack/core"
)

func snapshotOf(ids ...string) []core.Layer {
	layers := make([]core.Layer, len(ids))
	for i, id := range ids {
		layers[i] = core.Layer{
			ID:      id,
			Name:    "layer " + id,
			Tool:    core.ToolInpaint,
			Params:  &core.InpaintParams{Prompt: "p-" + id},
			Visible: true,
		}
	}
	return layers
}

func idsOf(snapshot []core.Layer) string {
	s := ""
	for _, l := range snapshot {
		s += l.ID + ","
	}
	return s
}

func TestHistory_InitialState(t *testing.T) {
	h := NewHistory()

	if h.CanUndo() {
		t.Error("new history should not allow undo")
	}
	if h.CanRedo() {
		t.Error("new history should not allow redo")
	}
	if len(h.Present()) != 0 {
		t.Errorf("new history present should be empty, got %d layers", len(h.Present()))
	}
	if h.Len() != 1 || h.Index() != 0 {
		t.Errorf("new history should have length 1 and index 0, got %d/%d", h.Len(), h.Index())
	}
}

func TestHistory_UndoRedoRoundTrip(t *testing.T) {
	h := NewHistory()
	h.Commit(snapshotOf("a"))
	h.Commit(snapshotOf("a", "b"))

	before := idsOf(h.Present())

	if !h.Undo() {
		t.Fatal("undo should succeed")
	}
	if got := idsOf(h.Present()); got != "a," {
		t.Errorf("after undo, present = %q, want %q", got, "a,")
	}
	if !h.Redo() {
		t.Fatal("redo should succeed")
	}

	if got := idsOf(h.Present()); got != before {
		t.Errorf("undo then redo changed present: got %q, want %q", got, before)
	}
}

func TestHistory_UndoOnEmptyPastIsNoop(t *testing.T) {
	h := NewHistory()

	if h.Undo() {
		t.Error("undo with empty past should be a no-op")
	}
	if h.Redo() {
		t.Error("redo with empty future should be a no-op")
	}
}

func TestHistory_CommitDiscardsFuture(t *testing.T) {
	h := NewHistory()
	h.Commit(snapshotOf("a"))
	h.Commit(snapshotOf("a", "b"))
	h.Undo()

	if !h.CanRedo() {
		t.Fatal("redo branch should exist after undo")
	}

	h.Commit(snapshotOf("a", "c"))

	if h.CanRedo() {
		t.Error("commit after undo must discard the redo branch")
	}
	if got := idsOf(h.Present()); got != "a,c," {
		t.Errorf("present = %q, want %q", got, "a,c,")
	}
}

func TestHistory_JumpToMatchesSteppedNavigation(t *testing.T) {
	build := func() *History {
		h := NewHistory()
		h.Commit(snapshotOf("a"))
		h.Commit(snapshotOf("a", "b"))
		h.Commit(snapshotOf("a", "b", "c"))
		return h
	}

	for target := 0; target < 4; target++ {
		t.Run(fmt.Sprintf("target_%d", target), func(t *testing.T) {
			jumped := build()
			if !jumped.JumpTo(target) {
				t.Fatalf("JumpTo(%d) failed", target)
			}

			stepped := build()
			for stepped.Index() > target {
				stepped.Undo()
			}
			for stepped.Index() < target {
				stepped.Redo()
			}

			if jumped.Index() != stepped.Index() {
				t.Errorf("index = %d, stepped index = %d", jumped.Index(), stepped.Index())
			}
			if idsOf(jumped.Present()) != idsOf(stepped.Present()) {
				t.Errorf("present = %q, stepped present = %q", idsOf(jumped.Present()), idsOf(stepped.Present()))
			}
		})
	}
}

func TestHistory_JumpToIsIdempotent(t *testing.T) {
	h := NewHistory()
	h.Commit(snapshotOf("a"))
	h.Commit(snapshotOf("a", "b"))
	h.Commit(snapshotOf("a", "b", "c"))

	if !h.JumpTo(1) {
		t.Fatal("JumpTo(1) failed")
	}
	index, length, present := h.Index(), h.Len(), idsOf(h.Present())

	if !h.JumpTo(1) {
		t.Fatal("second JumpTo(1) failed")
	}
	if h.Index() != index || h.Len() != length || idsOf(h.Present()) != present {
		t.Errorf("JumpTo is not idempotent: got %d/%d/%q, want %d/%d/%q",
			h.Index(), h.Len(), idsOf(h.Present()), index, length, present)
	}
}

func TestHistory_JumpToOutOfRange(t *testing.T) {
	h := NewHistory()
	h.Commit(snapshotOf("a"))

	if h.JumpTo(-1) {
		t.Error("JumpTo(-1) should fail")
	}
	if h.JumpTo(2) {
		t.Error("JumpTo past the end should fail")
	}
	if got := idsOf(h.Present()); got != "a," {
		t.Errorf("failed jumps must not move present, got %q", got)
	}
}

func TestHistory_SnapshotsAreIsolated(t *testing.T) {
	h := NewHistory()
	snap := snapshotOf("a")
	h.Commit(snap)

	// Mutating the committed snapshot must not reach the history.
	snap[0].Visible = false
	snap[0].Result = &core.RenderResult{Image: "tampered", Fingerprint: "x"}

	h.Undo()
	h.Redo()
	got := h.Present()
	if len(got) != 1 {
		t.Fatalf("present has %d layers, want 1", len(got))
	}
	if got[0].Result != nil {
		t.Error("history snapshot leaked a caller mutation")
	}

	// Mutating the returned present must not reach the history either.
	got[0].Visible = false
	if !h.Present()[0].Visible {
		t.Error("Present must return an isolated copy")
	}
}

func TestHistory_StateRoundTrip(t *testing.T) {
	h := NewHistory()
	h.Commit(snapshotOf("a"))
	h.Commit(snapshotOf("a", "b"))
	h.Undo()

	restored := RestoreHistory(h.State())

	if restored.Index() != h.Index() || restored.Len() != h.Len() {
		t.Errorf("restored index/len = %d/%d, want %d/%d", restored.Index(), restored.Len(), h.Index(), h.Len())
	}
	if idsOf(restored.Present()) != idsOf(h.Present()) {
		t.Errorf("restored present = %q, want %q", idsOf(restored.Present()), idsOf(h.Present()))
	}
	if !restored.CanRedo() {
		t.Error("restored history lost its redo branch")
	}
}
