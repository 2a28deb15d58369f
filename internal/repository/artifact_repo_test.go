package repository

import (
	"context"
	"testing"

	"github.com/XertroV/linkarchive/internal/models"
)

func TestArtifactRepository_FindOriginalBySHA256(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	a := createTestArchive(t, repos, "https://example.com/art1")
	b := createTestArchive(t, repos, "https://example.com/art2")

	original := &models.Artifact{
		ArchiveID: a.ID,
		Kind:      models.ArtifactKindImage,
		S3Key:     "archives/1/image/cat.jpg",
		SHA256:    "deadbeef",
	}
	if err := repos.Artifacts.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if original.ID == 0 {
		t.Fatal("Create() did not set artifact ID")
	}

	// Lookup from another archive finds the original.
	found, err := repos.Artifacts.FindOriginalBySHA256(ctx, "deadbeef", b.ID)
	if err != nil {
		t.Fatalf("FindOriginalBySHA256() error = %v", err)
	}
	if found == nil || found.ID != original.ID {
		t.Errorf("FindOriginalBySHA256() = %v, want artifact %d", found, original.ID)
	}

	// Lookup excludes the owning archive itself.
	found, err = repos.Artifacts.FindOriginalBySHA256(ctx, "deadbeef", a.ID)
	if err != nil {
		t.Fatalf("FindOriginalBySHA256() error = %v", err)
	}
	if found != nil {
		t.Errorf("lookup should exclude artifacts of the same archive, got %d", found.ID)
	}

	// Duplicate rows are never returned as originals.
	dup := &models.Artifact{
		ArchiveID:             b.ID,
		Kind:                  models.ArtifactKindImage,
		S3Key:                 original.S3Key,
		SHA256:                "deadbeef",
		DuplicateOfArtifactID: &original.ID,
	}
	if err := repos.Artifacts.Create(ctx, dup); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	c := createTestArchive(t, repos, "https://example.com/art3")
	found, err = repos.Artifacts.FindOriginalBySHA256(ctx, "deadbeef", c.ID)
	if err != nil {
		t.Fatalf("FindOriginalBySHA256() error = %v", err)
	}
	if found == nil || found.ID != original.ID {
		t.Errorf("FindOriginalBySHA256() = %v, want the original %d, never the duplicate", found, original.ID)
	}
}

func TestArtifactRepository_FindOriginalByPerceptualHash(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	a := createTestArchive(t, repos, "https://example.com/ph1")
	b := createTestArchive(t, repos, "https://example.com/ph2")

	original := &models.Artifact{
		ArchiveID:      a.ID,
		Kind:           models.ArtifactKindImage,
		S3Key:          "archives/1/image/meme.png",
		SHA256:         "1111",
		PerceptualHash: "00ff00ff00ff00ff",
	}
	if err := repos.Artifacts.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := repos.Artifacts.FindOriginalByPerceptualHash(ctx, "00ff00ff00ff00ff", b.ID)
	if err != nil {
		t.Fatalf("FindOriginalByPerceptualHash() error = %v", err)
	}
	if found == nil || found.ID != original.ID {
		t.Errorf("FindOriginalByPerceptualHash() = %v, want artifact %d", found, original.ID)
	}

	found, err = repos.Artifacts.FindOriginalByPerceptualHash(ctx, "ffffffffffffffff", b.ID)
	if err != nil {
		t.Fatalf("FindOriginalByPerceptualHash() error = %v", err)
	}
	if found != nil {
		t.Errorf("lookup for unknown hash should return nil, got %d", found.ID)
	}
}

func TestArtifactRepository_HasDuplicateRefs(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	a := createTestArchive(t, repos, "https://example.com/refs1")
	b := createTestArchive(t, repos, "https://example.com/refs2")

	original := &models.Artifact{
		ArchiveID: a.ID,
		Kind:      models.ArtifactKindScreenshot,
		S3Key:     "archives/1/screenshot/page.png",
		SHA256:    "2222",
	}
	if err := repos.Artifacts.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	has, err := repos.Artifacts.HasDuplicateRefs(ctx, original.ID)
	if err != nil {
		t.Fatalf("HasDuplicateRefs() error = %v", err)
	}
	if has {
		t.Error("artifact without duplicates reported as referenced")
	}

	dup := &models.Artifact{
		ArchiveID:             b.ID,
		Kind:                  models.ArtifactKindScreenshot,
		S3Key:                 original.S3Key,
		SHA256:                "2222",
		DuplicateOfArtifactID: &original.ID,
	}
	if err := repos.Artifacts.Create(ctx, dup); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	has, err = repos.Artifacts.HasDuplicateRefs(ctx, original.ID)
	if err != nil {
		t.Fatalf("HasDuplicateRefs() error = %v", err)
	}
	if !has {
		t.Error("artifact with an inbound duplicate reference reported as unreferenced")
	}
}

func TestArtifactRepository_GetByArchiveID(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	a := createTestArchive(t, repos, "https://example.com/list")
	for _, art := range []*models.Artifact{
		{ArchiveID: a.ID, Kind: models.ArtifactKindRawHTML, S3Key: "k1", SHA256: "a1"},
		{ArchiveID: a.ID, Kind: models.ArtifactKindMetadata, S3Key: "k2", SHA256: "a2"},
	} {
		if err := repos.Artifacts.Create(ctx, art); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repos.Artifacts.GetByArchiveID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByArchiveID() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetByArchiveID() returned %d artifacts, want 2", len(got))
	}
}
