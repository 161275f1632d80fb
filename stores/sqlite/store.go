package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"pixelstack/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	stmt := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT,
		thumbnail TEXT,
		base_image TEXT,
		data BLOB,
		created_at DATETIME,
		updated_at DATETIME,
		PRIMARY KEY (user_id, id)
	);`
	if _, err = db.Exec(stmt); err != nil {
		log.Fatalf("failed to create projects table: %v", err)
	}

	return &sqliteStore{db}
}

// List returns metadata for all projects owned by a user. The data blob
// (history and styles) is left out of list views.
func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, thumbnail, base_image, created_at, updated_at FROM projects WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []*core.Project{}
	for rows.Next() {
		var p core.Project
		p.UserID = userID
		if err := rows.Scan(&p.ID, &p.Name, &p.Thumbnail, &p.BaseImage, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// Get returns a single project by its ID, ensuring it belongs to the user.
func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM projects WHERE user_id = ? AND id = ?", userID, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}

	var project core.Project
	if err := json.Unmarshal(data, &project); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": id}).
			WithError(err).Error("Failed to unmarshal project data")
		return nil, err
	}
	project.UserID = userID
	project.ID = id
	return &project, nil
}

// Save creates or updates a project for a user. The whole project is
// stored as a JSON blob alongside the columns used by list views.
func (s *sqliteStore) Save(ctx context.Context, project *core.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Rollback on any error

	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT created_at FROM projects WHERE user_id = ? AND id = ?",
		project.UserID, project.ID).Scan(&createdAt)

	now := time.Now()
	switch {
	case err == sql.ErrNoRows:
		project.CreatedAt = now
	case err != nil:
		return err
	default:
		project.CreatedAt = createdAt
	}
	project.UpdatedAt = now

	data, err := json.Marshal(project)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, thumbnail, base_image, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = excluded.name,
			thumbnail = excluded.thumbnail,
			base_image = excluded.base_image,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		project.ID, project.UserID, project.Name, project.Thumbnail,
		string(project.BaseImage), data, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes a project, ensuring it belongs to the user.
func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE user_id = ? AND id = ?", userID, id)
	return err
}
