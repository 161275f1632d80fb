package memory

import (
	"context"
	"errors"
	"testing"

	"pixelstack/core"
)

func sampleProject(userID, id string) *core.Project {
	return &core.Project{
		ID:        id,
		UserID:    userID,
		Name:      "Project " + id,
		BaseImage: "data:image/png;base64,abc",
		History: core.HistoryState{
			Present: []core.Layer{{
				ID:      "l1",
				Tool:    core.ToolInpaint,
				Params:  &core.InpaintParams{Prompt: "clean up"},
				Visible: true,
			}},
		},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, sampleProject("user1", "p1")); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "user1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Project p1" {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.History.Present) != 1 {
		t.Error("history not persisted")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on save")
	}
}

func TestStore_SavePreservesCreatedAt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	p := sampleProject("user1", "p1")
	if err := store.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	created := p.CreatedAt

	update := sampleProject("user1", "p1")
	update.Name = "Renamed"
	if err := store.Save(ctx, update); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "user1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("update must not change CreatedAt")
	}
}

func TestStore_SaveRejectsMissingIDs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, p := range []*core.Project{
		{ID: "p1"},
		{UserID: "user1"},
	} {
		if err := store.Save(ctx, p); !errors.Is(err, core.ErrValidation) {
			t.Errorf("Save(%+v) error = %v, want ErrValidation", p, err)
		}
	}
}

func TestStore_ListOmitsHistory(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, sampleProject("user1", "p1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sampleProject("user1", "p2")); err != nil {
		t.Fatal(err)
	}

	projects, err := store.List(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	for _, p := range projects {
		if len(p.History.Present) != 0 || len(p.History.Past) != 0 {
			t.Errorf("project %s list entry carries history", p.ID)
		}
	}
}

func TestStore_ListUnknownUserIsEmpty(t *testing.T) {
	store := NewStore()
	projects, err := store.List(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Errorf("got %d projects, want 0", len(projects))
	}
}

func TestStore_ScopedToUser(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, sampleProject("user1", "p1")); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, "user2", "p1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-user Get error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "user2", "p1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-user Delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, sampleProject("user1", "p1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "user1", "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "user1", "p1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
}
