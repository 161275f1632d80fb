package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pixelstack/core"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store. Each project is one JSON
// file under <basePath>/<userID>/<projectID>.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) userPath(userID string) string {
	return filepath.Join(s.basePath, userID)
}

// projectPath joins and verifies the path so a crafted id cannot escape
// the user's directory.
func (s *fsStore) projectPath(userID, id string) (string, error) {
	userPath, err := filepath.Abs(s.userPath(userID))
	if err != nil {
		return "", err
	}
	filePath, err := filepath.Abs(filepath.Join(userPath, id))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(filePath, userPath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid project id: access denied")
	}
	return filePath, nil
}

// List returns metadata for all projects owned by a user.
func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	userPath := s.userPath(userID)
	log := logrus.WithField("user_id", userID).WithField("path", userPath)

	files, err := os.ReadDir(userPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("User directory does not exist, returning empty list.")
			return []*core.Project{}, nil
		}
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	projects := make([]*core.Project, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(userPath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read project file %s, skipping", file.Name())
			continue
		}

		var project core.Project
		if err := json.Unmarshal(data, &project); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal project file %s, skipping", file.Name())
			continue
		}

		info, err := file.Info()
		if err == nil {
			project.UpdatedAt = info.ModTime()
		}

		// List view drops the heavy history payload.
		project.History = core.HistoryState{}
		project.UserID = userID
		projects = append(projects, &project)
	}

	log.Infof("Listed %d projects", len(projects))
	return projects, nil
}

// Get returns a single project by its ID, ensuring it belongs to the user.
func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	filePath, err := s.projectPath(userID, id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id, "path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Project file not found")
			return nil, fmt.Errorf("project %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read project file")
		return nil, err
	}

	var project core.Project
	if err := json.Unmarshal(data, &project); err != nil {
		log.WithError(err).Error("Failed to unmarshal project data")
		return nil, err
	}
	project.UserID = userID

	log.Info("Project retrieved successfully")
	return &project, nil
}

// Save creates or updates a project for a user.
func (s *fsStore) Save(ctx context.Context, project *core.Project) error {
	filePath, err := s.projectPath(project.UserID, project.ID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID, "path": filePath})

	if err := os.MkdirAll(s.userPath(project.UserID), 0755); err != nil {
		log.WithError(err).Error("Failed to create user directory")
		return err
	}

	// Preserve CreatedAt on update
	if project.CreatedAt.IsZero() {
		existing, err := s.Get(ctx, project.UserID, project.ID)
		if err == nil && existing != nil {
			project.CreatedAt = existing.CreatedAt
		} else {
			project.CreatedAt = time.Now()
		}
	}
	project.UpdatedAt = time.Now()

	data, err := json.Marshal(project)
	if err != nil {
		log.WithError(err).Error("Failed to marshal project for saving")
		return err
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write project file")
		return err
	}

	log.Info("Project saved")
	return nil
}

// Delete removes a project, ensuring it belongs to the user.
func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	filePath, err := s.projectPath(userID, id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Project file not found for deletion, considered successful.")
			return nil // If it doesn't exist, the goal is achieved.
		}
		log.WithError(err).Error("Failed to delete project file")
		return err
	}

	log.Info("Project deleted successfully")
	return nil
}
