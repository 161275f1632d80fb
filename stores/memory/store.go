package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pixelstack/core"
)

// memStore implements ProjectStore for in-memory storage. Projects are
// keyed by userID, then by project ID.
type memStore struct {
	mu       sync.RWMutex
	projects map[string]map[string]*core.Project
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{projects: make(map[string]map[string]*core.Project)}
}

// List returns metadata for all projects owned by a user.
func (s *memStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userProjects, ok := s.projects[userID]
	if !ok {
		return []*core.Project{}, nil // No projects for this user, return empty slice
	}

	projects := make([]*core.Project, 0, len(userProjects))
	for _, p := range userProjects {
		// Copy without the heavy History field for the list view.
		projects = append(projects, &core.Project{
			ID:        p.ID,
			UserID:    p.UserID,
			Name:      p.Name,
			Thumbnail: p.Thumbnail,
			BaseImage: p.BaseImage,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}

	logrus.WithField("user_id", userID).Infof("Listed %d projects", len(projects))
	return projects, nil
}

// Get returns a single project by its ID, ensuring it belongs to the user.
func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id})

	userProjects, ok := s.projects[userID]
	if !ok {
		log.Warn("User has no projects")
		return nil, fmt.Errorf("project with id %s not found for user %s: %w", id, userID, core.ErrNotFound)
	}

	p, ok := userProjects[id]
	if !ok {
		log.Warn("Project not found for user")
		return nil, fmt.Errorf("project with id %s not found for user %s: %w", id, userID, core.ErrNotFound)
	}

	log.Info("Project retrieved successfully")
	return p, nil
}

// Save creates or updates a project for a user.
func (s *memStore) Save(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.UserID == "" {
		return fmt.Errorf("%w: project user id cannot be empty", core.ErrValidation)
	}
	if project.ID == "" {
		return fmt.Errorf("%w: project id cannot be empty", core.ErrValidation)
	}

	userProjects, ok := s.projects[project.UserID]
	if !ok {
		userProjects = make(map[string]*core.Project)
		s.projects[project.UserID] = userProjects
	}

	now := time.Now()
	if existing, exists := userProjects[project.ID]; exists {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	userProjects[project.ID] = project
	logrus.WithFields(logrus.Fields{"user_id": project.UserID, "project_id": project.ID}).Info("Project saved successfully")
	return nil
}

// Delete removes a project, ensuring it belongs to the user.
func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id})

	userProjects, ok := s.projects[userID]
	if !ok {
		log.Warn("User has no projects to delete from")
		return fmt.Errorf("user %s has no projects: %w", userID, core.ErrNotFound)
	}

	if _, ok := userProjects[id]; !ok {
		log.Warn("Project not found for deletion")
		return fmt.Errorf("project with id %s not found for user %s: %w", id, userID, core.ErrNotFound)
	}

	delete(userProjects, id)
	log.Info("Project deleted successfully")
	return nil
}
