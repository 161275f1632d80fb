package core

import (
	"context"
	"encoding/json"
	"time"
)

type (
	// HistoryState is the persisted undo/redo state: whole layer-stack
	// snapshots. Present is the committed stack; Future is only non-empty
	// after an undo.
	HistoryState struct {
		Past    [][]Layer `json:"past"`
		Present []Layer   `json:"present"`
		Future  [][]Layer `json:"future"`
	}

	// CustomStyle is a named prompt preset a user saved for the
	// style-transfer tool.
	CustomStyle struct {
		Name   string `json:"name"`
		Prompt string `json:"prompt"`
	}

	// Project represents a user-saved editing project: the base image, the
	// full edit history, and any custom styles.
	Project struct {
		ID           string        `json:"id"`
		UserID       string        `json:"-"` // Not exposed in JSON responses, used internally.
		Name         string        `json:"name"`
		Thumbnail    string        `json:"thumbnail,omitempty"`
		BaseImage    ImageRef      `json:"baseImage"`
		History      HistoryState  `json:"history"`
		CustomStyles []CustomStyle `json:"customStyles,omitempty"`
		CreatedAt    time.Time     `json:"createdAt"`
		UpdatedAt    time.Time     `json:"updatedAt"`
	}

	// ProjectStore defines the persistence layer for user-owned projects.
	// All operations are scoped to a specific user.
	ProjectStore interface {
		// List returns metadata for all projects owned by a user. The
		// returned Project objects should not contain History to keep the
		// response light.
		List(ctx context.Context, userID string) ([]*Project, error)

		// Get returns a single project by its ID, ensuring it belongs to
		// the user.
		Get(ctx context.Context, userID, id string) (*Project, error)

		// Save creates or updates a project for a user.
		Save(ctx context.Context, project *Project) error

		// Delete removes a project, ensuring it belongs to the user.
		Delete(ctx context.Context, userID, id string) error
	}
)

// UnmarshalJSON accepts both the current shape and the legacy one, where a
// project held only a flat top-level "layers" array instead of a history
// object. A legacy project loads as a present stack with empty past/future.
func (p *Project) UnmarshalJSON(data []byte) error {
	type alias Project // drop methods to avoid recursion
	var raw struct {
		alias
		Layers []Layer `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Project(raw.alias)
	if p.History.Present == nil && raw.Layers != nil {
		p.History = HistoryState{Present: raw.Layers}
	}
	return nil
}
