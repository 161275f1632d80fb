// Package projects exposes project persistence: listing, loading, saving a
// live session as a project, and deletion. All routes are JWT-protected
// and scoped to the authenticated user.
package projects

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelstack/core"
	"pixelstack/editor"
	"pixelstack/handlers/auth"
	"pixelstack/middleware"
	"pixelstack/stores"
)

// UserID extracts the authenticated user's subject from the request
// context, or "" when unauthenticated.
func UserID(r *http.Request) string {
	claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
	if !ok {
		return ""
	}
	return claims.Subject
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := UserID(r)
	if userID == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "User claims not found"})
		return "", false
	}
	return userID, true
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrNotFound) {
		render.Status(r, http.StatusNotFound)
	} else {
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

// HandleList returns metadata of the user's projects.
func HandleList(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		projects, err := store.List(r.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "userID": userID}).Error("Failed to list projects")
			renderError(w, r, err)
			return
		}
		if projects == nil {
			projects = []*core.Project{}
		}
		render.JSON(w, r, projects)
	}
}

// HandleGet returns one project including its full history.
func HandleGet(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		project, err := store.Get(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, project)
	}
}

// HandleSave persists a live session as a project. A missing project id
// creates a new one.
func HandleSave(store stores.Store, manager *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			SessionID string `json:"sessionId"`
			ProjectID string `json:"projectId,omitempty"`
			Name      string `json:"name"`
			Thumbnail string `json:"thumbnail,omitempty"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil || req.SessionID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "sessionId is required"})
			return
		}

		session, err := manager.Get(req.SessionID)
		if err != nil {
			renderError(w, r, err)
			return
		}

		project := session.Project()
		project.ID = req.ProjectID
		if project.ID == "" {
			project.ID = ulid.Make().String()
		}
		project.UserID = userID
		project.Name = req.Name
		project.Thumbnail = req.Thumbnail

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "userID": userID}).Error("Failed to save project")
			renderError(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, project)
	}
}

// HandleDelete removes a project.
func HandleDelete(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		if err := store.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
			renderError(w, r, err)
			return
		}
		render.NoContent(w, r)
	}
}
