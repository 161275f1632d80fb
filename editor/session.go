package editor

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelstack/core"
	"pixelstack/mask"
	"pixelstack/renderer"
)

// Session owns one editing session: the base image, the layer stack, the
// undo/redo history, and the transient mask selection. All mutation goes
// through its methods; each edit commits a whole-stack snapshot to the
// history. The engine itself is sequential; the mutex only serializes the
// concurrent callers of the HTTP surface.
type Session struct {
	mu sync.Mutex

	id       string
	stack    *Stack
	history  *History
	renderer renderer.Renderer

	// selectedMasks is UI-session-scoped selection state, intentionally
	// excluded from undo/redo.
	selectedMasks []mask.Source
	combinedMask  core.ImageRef

	customStyles []core.CustomStyle
	version      int
}

// NewSession creates a session over a base image with an empty stack and
// empty history.
func NewSession(base core.ImageRef, r renderer.Renderer) *Session {
	return &Session{
		id:       ulid.Make().String(),
		stack:    NewStack(base),
		history:  NewHistory(),
		renderer: r,
	}
}

// SessionFromProject rebuilds a session from a saved project, restoring
// the full history. The restored present becomes the live stack.
func SessionFromProject(p *core.Project, r renderer.Renderer) *Session {
	s := &Session{
		id:           ulid.Make().String(),
		stack:        NewStack(p.BaseImage),
		history:      RestoreHistory(p.History),
		renderer:     r,
		customStyles: append([]core.CustomStyle(nil), p.CustomStyles...),
	}
	s.stack.Restore(s.history.Present())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Version returns a counter incremented on every committed edit, used by
// the live event channel to tell viewers to refresh.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// State is a read-only view of the session for API responses.
type State struct {
	ID        string        `json:"id"`
	BaseImage core.ImageRef `json:"baseImage"`
	Layers    []core.Layer  `json:"layers"`
	CanUndo   bool          `json:"canUndo"`
	CanRedo   bool          `json:"canRedo"`
	Index     int           `json:"historyIndex"`
	Length    int           `json:"historyLength"`
	Version   int           `json:"version"`
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:        s.id,
		BaseImage: s.stack.Base(),
		Layers:    s.stack.Layers(),
		CanUndo:   s.history.CanUndo(),
		CanRedo:   s.history.CanRedo(),
		Index:     s.history.Index(),
		Length:    s.history.Len(),
		Version:   s.version,
	}
}

// commit snapshots the stack into the history after a successful edit.
func (s *Session) commit() {
	s.history.Commit(s.stack.Layers())
	s.version++
}

// AppendLayer validates and appends a layer, committing the result.
func (s *Session) AppendLayer(req core.LayerRequest) (core.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.stack.Append(req)
	if err != nil {
		return core.Layer{}, err
	}
	s.commit()
	logrus.WithFields(logrus.Fields{
		"session_id": s.id,
		"layer_id":   l.ID,
		"tool":       l.Tool,
	}).Info("Layer appended")
	return l, nil
}

// RemoveLayer deletes a layer and commits.
func (s *Session) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stack.Remove(id); err != nil {
		return err
	}
	s.commit()
	return nil
}

// ReorderLayers replaces the stack order and commits.
func (s *Session) ReorderLayers(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stack.Reorder(ids); err != nil {
		return err
	}
	s.commit()
	return nil
}

// ToggleVisibility flips a layer's visibility and commits.
func (s *Session) ToggleVisibility(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stack.ToggleVisibility(id); err != nil {
		return err
	}
	s.commit()
	return nil
}

// ClearCache drops all cached results for visible layers. Not an edit:
// the stack configuration is unchanged, so nothing is committed.
func (s *Session) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack.ClearCache()
}

// RevertAll removes every layer, committing the empty stack as a new edit
// so the revert itself is undoable.
func (s *Session) RevertAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack.Restore(nil)
	s.commit()
}

// Undo steps the history back and restores that snapshot as the live
// stack. No-op when there is nothing to undo.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.history.Undo() {
		return false
	}
	s.stack.Restore(s.history.Present())
	s.version++
	return true
}

// Redo steps the history forward. No-op when there is no redo branch.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.history.Redo() {
		return false
	}
	s.stack.Restore(s.history.Present())
	s.version++
	return true
}

// JumpTo moves directly to a point in the flattened history view.
func (s *Session) JumpTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.history.JumpTo(index) {
		return false
	}
	s.stack.Restore(s.history.Present())
	s.version++
	return true
}

// SetBaseImage loads a brand-new base image, resetting the stack, the
// history, and the mask selection.
func (s *Session) SetBaseImage(base core.ImageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stack = NewStack(base)
	s.history = NewHistory()
	s.selectedMasks = nil
	s.combinedMask = ""
	s.version++
}

// SelectMasks replaces the selected object masks and recomposites the
// combined mask from scratch. Selection is not an edit and is not
// recorded in history.
func (s *Session) SelectMasks(sources []mask.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedMasks = append([]mask.Source(nil), sources...)

	combined := mask.Combine(s.selectedMasks)
	if combined == nil {
		s.combinedMask = ""
		return nil
	}
	ref, err := mask.EncodeRef(combined)
	if err != nil {
		return err
	}
	s.combinedMask = ref
	return nil
}

// SelectedMasks returns the current selection.
func (s *Session) SelectedMasks() []mask.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mask.Source(nil), s.selectedMasks...)
}

// CustomStyles returns the styles saved with the session's project.
func (s *Session) CustomStyles() []core.CustomStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CustomStyle(nil), s.customStyles...)
}

// SaveCustomStyle adds or replaces a named style.
func (s *Session) SaveCustomStyle(style core.CustomStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.customStyles {
		if s.customStyles[i].Name == style.Name {
			s.customStyles[i] = style
			return
		}
	}
	s.customStyles = append(s.customStyles, style)
}

// RenderStale recomputes every visible stale layer in stack order and
// returns the number of external render calls made. Each result is
// written back by fingerprint, not position: if the stack was edited while
// the render was in flight, the arriving result is discarded as stale. A
// render failure marks the layer and stops the pass; later layers would
// have composited over the failed output.
func (s *Session) RenderStale(ctx context.Context) (int, error) {
	renders := 0
	for {
		req, layerID, fp, ok := s.nextStale()
		if !ok {
			return renders, nil
		}

		res, err := s.renderer.Render(ctx, req)
		renders++
		if err != nil {
			s.mu.Lock()
			s.stack.SetRenderError(layerID, err.Error())
			s.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"session_id": s.id,
				"layer_id":   layerID,
			}).WithError(err).Error("Render failed, layer left stale")
			return renders, fmt.Errorf("rendering layer %s: %w", layerID, err)
		}

		s.mu.Lock()
		s.stack.SetResult(layerID, fp, res.Image)
		s.mu.Unlock()
	}
}

// nextStale picks the first visible stale layer whose input composite is
// ready, capturing its render request and fingerprint under the lock.
func (s *Session) nextStale() (renderer.Request, string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.stack.Stale() {
		input, ready, err := s.stack.CompositeInput(l.ID)
		if err != nil || !ready {
			continue
		}
		fp, err := s.stack.Fingerprint(l.ID)
		if err != nil {
			continue
		}
		req := renderer.Request{
			Tool:      l.Tool,
			Params:    l.Params,
			Transform: l.Transform,
			Input:     input,
			Mask:      s.combinedMask,
		}
		return req, l.ID, fp, true
	}
	return renderer.Request{}, "", "", false
}

// Project exports the session for persistence.
func (s *Session) Project() *core.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &core.Project{
		BaseImage:    s.stack.Base(),
		History:      s.history.State(),
		CustomStyles: append([]core.CustomStyle(nil), s.customStyles...),
	}
}
