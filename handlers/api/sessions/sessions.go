// Package sessions exposes the editing engine over HTTP: one route per
// layer-stack operation plus history navigation and render triggering.
package sessions

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"pixelstack/core"
	"pixelstack/editor"
	"pixelstack/mask"
	"pixelstack/stores"
)

// Notifier is called after every committed edit so the live event channel
// can tell viewers to refresh. A nil notifier is a no-op.
type Notifier func(sessionID string, version int)

func notify(n Notifier, s *editor.Session) {
	if n != nil {
		n(s.ID(), s.Version())
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		render.Status(r, http.StatusNotFound)
	case errors.Is(err, core.ErrValidation):
		render.Status(r, http.StatusBadRequest)
	default:
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

func getSession(manager *editor.Manager, w http.ResponseWriter, r *http.Request) *editor.Session {
	s, err := manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return nil
	}
	return s
}

// HandleCreate starts a session, either over a fresh base image or from a
// saved project.
func HandleCreate(manager *editor.Manager, store stores.Store, userID func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BaseImage core.ImageRef `json:"baseImage"`
			ProjectID string        `json:"projectId"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		var s *editor.Session
		switch {
		case req.ProjectID != "":
			project, err := store.Get(r.Context(), userID(r), req.ProjectID)
			if err != nil {
				renderError(w, r, err)
				return
			}
			s = manager.Open(project)
		case req.BaseImage != "":
			s = manager.Create(req.BaseImage)
		default:
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Either baseImage or projectId is required"})
			return
		}

		logrus.WithField("session_id", s.ID()).Info("Session created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, s.State())
	}
}

// HandleGet returns the current session state.
func HandleGet(manager *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s := getSession(manager, w, r); s != nil {
			render.JSON(w, r, s.State())
		}
	}
}

// HandleClose drops a session.
func HandleClose(manager *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Close(chi.URLParam(r, "id")); err != nil {
			renderError(w, r, err)
			return
		}
		render.NoContent(w, r)
	}
}

// HandleAppendLayer appends a layer from a tool panel request.
func HandleAppendLayer(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}

		var req core.LayerRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid layer request"})
			return
		}

		l, err := s.AppendLayer(req)
		if err != nil {
			renderError(w, r, err)
			return
		}
		notify(n, s)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, l)
	}
}

// HandleRemoveLayer deletes a layer.
func HandleRemoveLayer(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}
		if err := s.RemoveLayer(chi.URLParam(r, "layerID")); err != nil {
			renderError(w, r, err)
			return
		}
		notify(n, s)
		render.NoContent(w, r)
	}
}

// HandleReorderLayers replaces the stack order.
func HandleReorderLayers(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}

		var req struct {
			IDs []string `json:"ids"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		if err := s.ReorderLayers(req.IDs); err != nil {
			renderError(w, r, err)
			return
		}
		notify(n, s)
		render.JSON(w, r, s.State())
	}
}

// HandleToggleVisibility flips a layer's visibility.
func HandleToggleVisibility(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}
		if err := s.ToggleVisibility(chi.URLParam(r, "layerID")); err != nil {
			renderError(w, r, err)
			return
		}
		notify(n, s)
		render.JSON(w, r, s.State())
	}
}

// HandleUndo steps the history back.
func HandleUndo(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}
		if s.Undo() {
			notify(n, s)
		}
		render.JSON(w, r, s.State())
	}
}

// HandleRedo steps the history forward.
func HandleRedo(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}
		if s.Redo() {
			notify(n, s)
		}
		render.JSON(w, r, s.State())
	}
}

// HandleJump moves directly to a point in the flattened history view.
func HandleJump(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}

		var req struct {
			Index int `json:"index"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		if !s.JumpTo(req.Index) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "History index out of range"})
			return
		}
		notify(n, s)
		render.JSON(w, r, s.State())
	}
}

// HandleRevert removes every layer as one undoable edit.
func HandleRevert(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}
		s.RevertAll()
		notify(n, s)
		render.JSON(w, r, s.State())
	}
}

// HandleClearCache drops all cached results for visible layers.
func HandleClearCache(manager *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}
		s.ClearCache()
		render.JSON(w, r, s.State())
	}
}

// HandleSelectMasks replaces the selected object masks. Selection is
// transient and not part of undo/redo.
func HandleSelectMasks(manager *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}

		var req struct {
			Masks []mask.Source `json:"masks"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		if err := s.SelectMasks(req.Masks); err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]int{"selected": len(s.SelectedMasks())})
	}
}

// HandleRender recomputes all stale visible layers.
func HandleRender(manager *editor.Manager, n Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}

		renders, err := s.RenderStale(r.Context())
		if err != nil {
			logrus.WithField("session_id", s.ID()).WithError(err).Error("Render pass failed")
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, map[string]interface{}{
				"error":   err.Error(),
				"renders": renders,
				"state":   s.State(),
			})
			return
		}
		notify(n, s)
		render.JSON(w, r, map[string]interface{}{
			"renders": renders,
			"state":   s.State(),
		})
	}
}

// HandleSaveStyle adds or replaces a named custom style.
func HandleSaveStyle(manager *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := getSession(manager, w, r)
		if s == nil {
			return
		}

		var style core.CustomStyle
		if err := render.DecodeJSON(r.Body, &style); err != nil || style.Name == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Style requires a name"})
			return
		}

		s.SaveCustomStyle(style)
		render.JSON(w, r, s.CustomStyles())
	}
}
