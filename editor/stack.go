// Package editor implements the layer composition and history engine: an
// ordered, mutable stack of edit operations over a base image, a result
// cache keyed by stack fingerprints, and linear undo/redo over whole-stack
// snapshots.
package editor

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelstack/core"
)

// Stack is the ordered collection of layers over one base image.
// Insertion order is application order: later layers composite on top of
// earlier ones. The base image sits beneath index 0 and is never itself a
// layer.
type Stack struct {
	base   core.ImageRef
	layers []core.Layer
}

// NewStack creates an empty stack over the given base image.
func NewStack(base core.ImageRef) *Stack {
	return &Stack{base: base}
}

// Base returns the base image reference.
func (s *Stack) Base() core.ImageRef { return s.base }

// Len returns the number of layers.
func (s *Stack) Len() int { return len(s.layers) }

// Layers returns a deep copy of the current layer sequence, usable as a
// history snapshot.
func (s *Stack) Layers() []core.Layer {
	out := make([]core.Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Clone()
	}
	return out
}

// Restore replaces the layer sequence with a snapshot, cloning it so the
// snapshot stays immutable.
func (s *Stack) Restore(snapshot []core.Layer) {
	s.layers = make([]core.Layer, len(snapshot))
	for i, l := range snapshot {
		s.layers[i] = l.Clone()
	}
	s.Invalidate()
}

// Get returns a copy of the layer with the given id.
func (s *Stack) Get(id string) (core.Layer, error) {
	for _, l := range s.layers {
		if l.ID == id {
			return l.Clone(), nil
		}
	}
	return core.Layer{}, fmt.Errorf("layer %s: %w", id, core.ErrNotFound)
}

// Append validates the request, assigns a fresh id, and adds the layer at
// the top of the stack. Nothing downstream exists, so no cache is touched.
func (s *Stack) Append(req core.LayerRequest) (core.Layer, error) {
	if err := req.Validate(); err != nil {
		return core.Layer{}, err
	}

	l := core.Layer{
		ID:        ulid.Make().String(),
		Name:      req.Name,
		Tool:      req.Tool,
		Params:    req.Params,
		Visible:   true,
		Transform: req.Transform,
	}
	for _, existing := range s.layers {
		if existing.ID == l.ID {
			panic(fmt.Sprintf("duplicate layer id %s", l.ID))
		}
	}
	s.layers = append(s.layers, l)
	s.Invalidate()
	return l.Clone(), nil
}

// Remove deletes the layer with the given id. Cached results of later
// layers depended on the composite beneath them and are invalidated.
func (s *Stack) Remove(id string) error {
	for i, l := range s.layers {
		if l.ID == id {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			s.Invalidate()
			return nil
		}
	}
	return fmt.Errorf("layer %s: %w", id, core.ErrNotFound)
}

// Reorder replaces the stack order. The ids must be a permutation of the
// current stack. Every layer at or after the earliest diverging position
// sees a different predecessor set and is invalidated.
func (s *Stack) Reorder(ids []string) error {
	if len(ids) != len(s.layers) {
		return fmt.Errorf("%w: reorder expects %d ids, got %d", core.ErrValidation, len(s.layers), len(ids))
	}

	byID := make(map[string]int, len(s.layers))
	for i, l := range s.layers {
		byID[l.ID] = i
	}

	reordered := make([]core.Layer, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		idx, ok := byID[id]
		if !ok {
			return fmt.Errorf("layer %s: %w", id, core.ErrNotFound)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %s in reorder", core.ErrValidation, id)
		}
		seen[id] = true
		reordered = append(reordered, s.layers[idx])
	}

	s.layers = reordered
	s.Invalidate()
	return nil
}

// ToggleVisibility flips a layer's visibility. Later layers composite over
// a changed image and are invalidated; the toggled layer's own cached
// result stays valid for when it is shown again.
func (s *Stack) ToggleVisibility(id string) error {
	for i := range s.layers {
		if s.layers[i].ID == id {
			s.layers[i].Visible = !s.layers[i].Visible
			s.Invalidate()
			return nil
		}
	}
	return fmt.Errorf("layer %s: %w", id, core.ErrNotFound)
}

// ClearCache drops all cached results for visible layers, forcing full
// recomputation. Explicit user escape hatch.
func (s *Stack) ClearCache() {
	for i := range s.layers {
		if s.layers[i].Visible {
			s.layers[i].Result = nil
		}
	}
}

// Invalidate recomputes fingerprints front to back and clears any visible
// layer's cached result whose stored fingerprint no longer matches.
// Hidden layers keep their stored result; it is checked the moment they
// become visible again. Running the pass twice without an intervening edit
// is a no-op.
func (s *Stack) Invalidate() {
	fps := fingerprints(s.base, s.layers)
	for i := range s.layers {
		l := &s.layers[i]
		if !l.Visible || l.Result == nil {
			continue
		}
		if l.Result.Fingerprint != fps[i] {
			logrus.WithFields(logrus.Fields{
				"layer_id": l.ID,
				"tool":     l.Tool,
			}).Debug("Cached result stale, clearing")
			l.Result = nil
		}
	}
}

// Stale returns copies of the visible layers that need recomputation, in
// stack order. Recomputation must follow stack order because each layer's
// rendering input includes the composited output of all prior visible
// layers.
func (s *Stack) Stale() []core.Layer {
	s.Invalidate()
	var stale []core.Layer
	for _, l := range s.layers {
		if l.Visible && l.Result == nil {
			stale = append(stale, l.Clone())
		}
	}
	return stale
}

// Fingerprint returns the current fingerprint of the layer with the given
// id. Render results are written back only when this still matches the
// fingerprint captured at request time.
func (s *Stack) Fingerprint(id string) (string, error) {
	fps := fingerprints(s.base, s.layers)
	for i, l := range s.layers {
		if l.ID == id {
			return fps[i], nil
		}
	}
	return "", fmt.Errorf("layer %s: %w", id, core.ErrNotFound)
}

// CompositeInput returns the rendering input for the layer with the given
// id: the cached result of the nearest visible predecessor, or the base
// image if there is none. The second return reports whether every visible
// predecessor has a valid result (if not, the layer cannot be rendered
// yet).
func (s *Stack) CompositeInput(id string) (core.ImageRef, bool, error) {
	input := s.base
	ready := true
	for _, l := range s.layers {
		if l.ID == id {
			return input, ready, nil
		}
		if !l.Visible {
			continue
		}
		if l.Result == nil {
			ready = false
			continue
		}
		input = l.Result.Image
	}
	return "", false, fmt.Errorf("layer %s: %w", id, core.ErrNotFound)
}

// SetResult writes a completed render back into the layer with the given
// id, but only if the layer still exists and its current fingerprint
// matches the one the render was requested under. A mismatch means the
// stack was edited while the render was in flight; the result is discarded
// as stale rather than mis-applied.
func (s *Stack) SetResult(id, requestFP string, image core.ImageRef) bool {
	fps := fingerprints(s.base, s.layers)
	for i := range s.layers {
		l := &s.layers[i]
		if l.ID != id {
			continue
		}
		if fps[i] != requestFP {
			logrus.WithField("layer_id", id).Info("Discarding stale render result")
			return false
		}
		l.Result = &core.RenderResult{Image: image, Fingerprint: requestFP}
		l.RenderError = ""
		return true
	}
	logrus.WithField("layer_id", id).Info("Discarding render result for removed layer")
	return false
}

// SetRenderError marks a layer as failed. The layer stays in the stack and
// stays stale so the user can retry.
func (s *Stack) SetRenderError(id, message string) {
	for i := range s.layers {
		if s.layers[i].ID == id {
			s.layers[i].RenderError = message
			return
		}
	}
}
