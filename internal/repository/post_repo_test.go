package repository

import (
	"context"
	"testing"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
	"github.com/oklog/ulid/v2"
)

func newTestPost(guid, hash string) *models.Post {
	return &models.Post{
		ID:           ulid.Make().String(),
		GUID:         guid,
		DiscourseURL: "https://forum.example.com/t/topic/42",
		Author:       "alice",
		Title:        "A topic",
		BodyHTML:     "<p>hello</p>",
		ContentHash:  hash,
	}
}

func TestPostRepository_Upsert(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	post := newTestPost("guid-1", "hash-v1")
	changed, err := repos.Posts.Upsert(ctx, post)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !changed {
		t.Error("first Upsert should report changed")
	}

	// Same content hash: no-op.
	changed, err = repos.Posts.Upsert(ctx, newTestPost("guid-1", "hash-v1"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if changed {
		t.Error("unchanged post should not report changed")
	}

	// Mark processed, then simulate an edit: the post re-enters the queue.
	if err := repos.Posts.MarkProcessed(ctx, post.ID, time.Now()); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	edited := newTestPost("guid-1", "hash-v2")
	edited.BodyHTML = "<p>hello, edited</p>"
	changed, err = repos.Posts.Upsert(ctx, edited)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !changed {
		t.Error("edited post should report changed")
	}
	if edited.ID != post.ID {
		t.Errorf("edit should keep the stored id %s, got %s", post.ID, edited.ID)
	}

	got, err := repos.Posts.GetByGUID(ctx, "guid-1")
	if err != nil {
		t.Fatalf("GetByGUID() error = %v", err)
	}
	if got.ContentHash != "hash-v2" {
		t.Errorf("ContentHash = %q, want hash-v2", got.ContentHash)
	}
	if got.ProcessedAt != nil {
		t.Error("edit should clear ProcessedAt")
	}
}

func TestPostRepository_ListUnprocessed(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	a := newTestPost("guid-a", "ha")
	b := newTestPost("guid-b", "hb")
	for _, p := range []*models.Post{a, b} {
		if _, err := repos.Posts.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if err := repos.Posts.MarkProcessed(ctx, a.ID, time.Now()); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	got, err := repos.Posts.ListUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnprocessed() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("ListUnprocessed() = %v, want only %s", got, b.ID)
	}
}
