package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pixelstack/core"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

// projectKey builds the object key, rejecting ids that would escape the
// user's prefix.
func (s *s3Store) projectKey(userID, projectID string) (string, error) {
	if path.Base(projectID) != projectID {
		return "", fmt.Errorf("invalid project id: must not be a path")
	}
	if projectID == "" || projectID == "." || projectID == ".." {
		return "", fmt.Errorf("invalid project id: must not be empty or a dot directory")
	}
	return path.Join(userID, projectID), nil
}

// List returns metadata for all projects owned by a user.
func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Project, error) {
	prefix := userID + "/"
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects for user %s: %v", userID, err)
	}

	projects := make([]*core.Project, 0, len(output.Contents))
	for _, object := range output.Contents {
		resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    object.Key,
		})
		if err != nil {
			log.Printf("warn: failed to get object %s: %v", *object.Key, err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("warn: failed to read object body %s: %v", *object.Key, err)
			continue
		}

		var project core.Project
		if err := json.Unmarshal(data, &project); err != nil {
			log.Printf("warn: failed to unmarshal project %s: %v", *object.Key, err)
			continue
		}

		// List view drops the heavy history payload.
		project.History = core.HistoryState{}
		project.UserID = userID
		projects = append(projects, &project)
	}

	return projects, nil
}

// Get returns a single project by its ID, ensuring it belongs to the user.
func (s *s3Store) Get(ctx context.Context, userID, id string) (*core.Project, error) {
	key, err := s.projectKey(userID, id)
	if err != nil {
		return nil, err
	}
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("project %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project %s: %v", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read project data: %v", err)
	}

	var project core.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project data: %v", err)
	}
	project.UserID = userID

	return &project, nil
}

// Save creates or updates a project for a user.
func (s *s3Store) Save(ctx context.Context, project *core.Project) error {
	key, err := s.projectKey(project.UserID, project.ID)
	if err != nil {
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
		return fmt.Errorf("failed to marshal project: %v", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to save project %s: %v", project.ID, err)
	}
	return nil
}

// Delete removes a project, ensuring it belongs to the user.
func (s *s3Store) Delete(ctx context.Context, userID, id string) error {
	key, err := s.projectKey(userID, id)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %v", id, err)
	}
	return nil
}
