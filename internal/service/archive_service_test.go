package service

import (
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/XertroV/linkarchive/internal/archiver"
	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/database/migrations"
	"github.com/XertroV/linkarchive/internal/models"
	"github.com/XertroV/linkarchive/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

// fakeStore is an in-memory ObjectStore recording every upload.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, puts: map[string]int{}}
}

// failNextPut makes the next upload fail with err.
func (f *fakeStore) failNextPut(err error) {
	f.mu.Lock()
	f.putErr = err
	f.mu.Unlock()
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		err := f.putErr
		f.putErr = nil
		return err
	}
	f.objects[key] = data
	f.puts[key]++
	return nil
}

func (f *fakeStore) PutFile(ctx context.Context, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return f.Put(ctx, key, data, contentType)
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeStore) putCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts[key]
}

// stubHandler is a scriptable handler matching every URL.
type stubHandler struct {
	id string
	fn func(ctx context.Context, rawURL, workDir string, opts archiver.Options) (*archiver.Result, error)
}

func (h *stubHandler) SiteID() string                  { return h.id }
func (h *stubHandler) Matches(string) bool             { return true }
func (h *stubHandler) NormalizeURL(rawURL string) string { return rawURL }
func (h *stubHandler) Archive(ctx context.Context, rawURL, workDir string, opts archiver.Options) (*archiver.Result, error) {
	return h.fn(ctx, rawURL, workDir, opts)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkDir:              t.TempDir(),
		MaxRetries:           4,
		RetryBaseDelay:       5 * time.Minute,
		FetchTimeout:         10 * time.Second,
		SubmissionRateLimit:  60,
		SubmissionDedupeTTL:  time.Hour,
		SubmissionPollPeriod: time.Second,
	}
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	// One connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupService wires a service over an in-memory database, a fake store and
// the given handler.
func setupService(t *testing.T, cfg *config.Config, h archiver.Handler) (*ArchiveService, *repository.Repositories, *fakeStore) {
	t.Helper()
	repos := repository.NewRepositories(setupTestDB(t))
	store := newFakeStore()
	svc := NewArchiveService(cfg, repos, archiver.NewRegistryWith(h), store, testLogger())
	return svc, repos, store
}

// textHandler writes one HTML page and reports the given title.
func textHandler(title string) *stubHandler {
	return &stubHandler{id: "stub", fn: func(_ context.Context, _, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "page.html")
		if err := os.WriteFile(path, []byte("<html><body>"+title+"</body></html>"), 0o644); err != nil {
			return nil, err
		}
		return &archiver.Result{
			ContentType: models.ContentTypeText,
			Title:       title,
			Text:        "body of " + title,
			HTTPStatus:  200,
			PrimaryFile: &archiver.OutputFile{
				Path:        path,
				Kind:        models.ArtifactKindRawHTML,
				ContentType: "text/html",
			},
		}, nil
	}}
}

func TestEnsureArchive_Idempotent(t *testing.T) {
	svc, _, _ := setupService(t, testConfig(t), textHandler("x"))
	ctx := context.Background()

	link1, archive1, err := svc.EnsureArchive(ctx, "https://example.com/article?utm_source=feed")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	// Different spelling of the same URL maps to the same rows.
	link2, archive2, err := svc.EnsureArchive(ctx, "HTTPS://EXAMPLE.COM/article#section")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if link2.ID != link1.ID {
		t.Errorf("link ids differ: %d vs %d", link1.ID, link2.ID)
	}
	if archive2.ID != archive1.ID {
		t.Errorf("archive ids differ: %d vs %d", archive1.ID, archive2.ID)
	}
}

func TestEnsureArchive_ExcludedDomain(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExcludedDomains = []string{"spam.example"}
	svc, _, _ := setupService(t, cfg, textHandler("x"))

	_, _, err := svc.EnsureArchive(context.Background(), "https://spam.example/offer")
	if !errors.Is(err, ErrDomainExcluded) {
		t.Errorf("EnsureArchive() error = %v, want ErrDomainExcluded", err)
	}
	// Subdomains are excluded too.
	_, _, err = svc.EnsureArchive(context.Background(), "https://cdn.spam.example/offer")
	if !errors.Is(err, ErrDomainExcluded) {
		t.Errorf("EnsureArchive() subdomain error = %v, want ErrDomainExcluded", err)
	}
}

func TestProcessOne_HappyPath(t *testing.T) {
	svc, repos, store := setupService(t, testConfig(t), textHandler("Hello"))
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/hello")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}

	processed, err := svc.ProcessOne(ctx, archive.ID)
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if !processed {
		t.Fatal("ProcessOne() did not claim a pending archive")
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusComplete {
		t.Fatalf("Status = %s, want complete (error: %s)", got.Status, got.ErrorMessage)
	}
	if got.ContentTitle != "Hello" {
		t.Errorf("ContentTitle = %q", got.ContentTitle)
	}
	if got.S3KeyPrimary == "" || !store.has(got.S3KeyPrimary) {
		t.Errorf("primary object %q not uploaded", got.S3KeyPrimary)
	}

	jobs, err := repos.ArchiveJobs.GetByArchiveID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByArchiveID() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != models.ArchiveJobStatusCompleted {
		t.Errorf("jobs = %+v, want one complete fetch job", jobs)
	}

	// Completed archives are out of rotation.
	again, err := svc.ProcessOne(ctx, archive.ID)
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if again {
		t.Error("ProcessOne() claimed a completed archive")
	}
}

func TestProcessOne_FailureLadder(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetryBaseDelay = -time.Minute // keep retries immediately due
	failing := &stubHandler{id: "stub", fn: func(context.Context, string, string, archiver.Options) (*archiver.Result, error) {
		return nil, archiver.HTTPError(404, "GET /missing")
	}}
	svc, repos, _ := setupService(t, cfg, failing)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/missing")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		processed, err := svc.ProcessOne(ctx, archive.ID)
		if err != nil {
			t.Fatalf("ProcessOne() attempt %d error = %v", attempt, err)
		}
		if !processed {
			t.Fatalf("ProcessOne() attempt %d did not claim", attempt)
		}
		got, err := repos.Archives.GetByID(ctx, archive.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Status != models.ArchiveStatusFailed {
			t.Fatalf("attempt %d: Status = %s, want failed", attempt, got.Status)
		}
		if got.RetryCount != attempt {
			t.Errorf("attempt %d: RetryCount = %d", attempt, got.RetryCount)
		}
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.NextRetryAt != nil {
		t.Errorf("NextRetryAt = %v, want nil after the retry ceiling", got.NextRetryAt)
	}
	if got.HTTPStatusCode != 404 {
		t.Errorf("HTTPStatusCode = %d, want 404", got.HTTPStatusCode)
	}
	if !got.IsTerminal() {
		t.Error("exhausted archive should be terminal")
	}

	processed, err := svc.ProcessOne(ctx, archive.ID)
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if processed {
		t.Error("ProcessOne() claimed a parked archive")
	}
}

func TestProcessOne_HandlerPanic(t *testing.T) {
	h := &stubHandler{id: "stub", fn: func(context.Context, string, string, archiver.Options) (*archiver.Result, error) {
		panic("nil dereference in page parser")
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/crashy")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}

	processed, err := svc.ProcessOne(ctx, archive.ID)
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if !processed {
		t.Fatal("ProcessOne() did not claim the archive")
	}

	// The panic lands as an ordinary transient failure with a retry scheduled.
	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.NextRetryAt == nil {
		t.Error("NextRetryAt not scheduled after first failure")
	}
	if !strings.Contains(got.ErrorMessage, "handler panic") {
		t.Errorf("ErrorMessage = %q, want the panic recorded", got.ErrorMessage)
	}

	jobs, err := repos.ArchiveJobs.GetByArchiveID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByArchiveID() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != models.ArchiveJobStatusFailed {
		t.Errorf("jobs = %+v, want one failed fetch job", jobs)
	}
}

func TestProcessOne_AuthRequired(t *testing.T) {
	h := &stubHandler{id: "stub", fn: func(context.Context, string, string, archiver.Options) (*archiver.Result, error) {
		return nil, archiver.AuthRequired("login wall")
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/walled")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusAuthRequired {
		t.Errorf("Status = %s, want auth_required", got.Status)
	}
	if !got.IsTerminal() {
		t.Error("auth_required should be terminal")
	}

	processed, err := svc.ProcessOne(ctx, archive.ID)
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if processed {
		t.Error("ProcessOne() claimed an auth_required archive")
	}
}

func TestProcessOne_Skipped(t *testing.T) {
	h := &stubHandler{id: "stub", fn: func(context.Context, string, string, archiver.Options) (*archiver.Result, error) {
		return nil, archiver.Skip("live streams are not archivable")
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/live")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusSkipped {
		t.Errorf("Status = %s, want skipped", got.Status)
	}
}

func TestProcessOne_VideoDedup(t *testing.T) {
	// Both URLs resolve to the same platform video.
	h := &stubHandler{id: "stub", fn: func(_ context.Context, rawURL, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "media.mp4")
		if err := os.WriteFile(path, []byte("fake mp4 payload "+rawURL), 0o644); err != nil {
			return nil, err
		}
		return &archiver.Result{
			ContentType: models.ContentTypeVideo,
			Title:       "Shared Video",
			PrimaryFile: &archiver.OutputFile{
				Path:        path,
				Kind:        models.ArtifactKindVideo,
				ContentType: "video/mp4",
				Platform:    "stubtube",
				VideoID:     "abc123",
			},
		}, nil
	}}
	svc, repos, store := setupService(t, testConfig(t), h)
	ctx := context.Background()

	urls := []string{"https://example.com/v/1", "https://example.com/v/2"}
	var archiveIDs []int64
	for _, u := range urls {
		_, archive, err := svc.EnsureArchive(ctx, u)
		if err != nil {
			t.Fatalf("EnsureArchive(%s) error = %v", u, err)
		}
		if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
			t.Fatalf("ProcessOne(%s) error = %v", u, err)
		}
		archiveIDs = append(archiveIDs, archive.ID)
	}

	const videoKey = "video/stubtube/abc123.mp4"
	if store.putCount(videoKey) != 1 {
		t.Errorf("video uploaded %d times, want 1", store.putCount(videoKey))
	}

	for _, id := range archiveIDs {
		got, err := repos.Archives.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Status != models.ArchiveStatusComplete {
			t.Errorf("archive %d Status = %s, want complete", id, got.Status)
		}
		if got.S3KeyPrimary != videoKey {
			t.Errorf("archive %d S3KeyPrimary = %q, want %q", id, got.S3KeyPrimary, videoKey)
		}
		artifacts, err := repos.Artifacts.GetByArchiveID(ctx, id)
		if err != nil {
			t.Fatalf("GetByArchiveID() error = %v", err)
		}
		if len(artifacts) != 1 || artifacts[0].VideoFileID == nil {
			t.Errorf("archive %d artifacts = %+v, want one video-indexed artifact", id, artifacts)
		}
	}
}

func TestProcessOne_SHA256Dedup(t *testing.T) {
	// Two URLs serve byte-identical content.
	h := &stubHandler{id: "stub", fn: func(_ context.Context, _, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "page.html")
		if err := os.WriteFile(path, []byte("<html>identical</html>"), 0o644); err != nil {
			return nil, err
		}
		return &archiver.Result{
			ContentType: models.ContentTypeText,
			PrimaryFile: &archiver.OutputFile{Path: path, Kind: models.ArtifactKindRawHTML, ContentType: "text/html"},
		}, nil
	}}
	svc, repos, store := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, first, err := svc.EnsureArchive(ctx, "https://example.com/mirror-a")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, first.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	_, second, err := svc.EnsureArchive(ctx, "https://example.com/mirror-b")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, second.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	firstArtifacts, err := repos.Artifacts.GetByArchiveID(ctx, first.ID)
	if err != nil || len(firstArtifacts) != 1 {
		t.Fatalf("first artifacts = %v (err %v)", firstArtifacts, err)
	}
	secondArtifacts, err := repos.Artifacts.GetByArchiveID(ctx, second.ID)
	if err != nil || len(secondArtifacts) != 1 {
		t.Fatalf("second artifacts = %v (err %v)", secondArtifacts, err)
	}

	dup := secondArtifacts[0]
	if dup.DuplicateOfArtifactID == nil || *dup.DuplicateOfArtifactID != firstArtifacts[0].ID {
		t.Errorf("second artifact not deduplicated against first: %+v", dup)
	}
	if dup.S3Key != firstArtifacts[0].S3Key {
		t.Errorf("duplicate S3Key = %q, want original's %q", dup.S3Key, firstArtifacts[0].S3Key)
	}
	if store.putCount(firstArtifacts[0].S3Key) != 1 {
		t.Errorf("object uploaded %d times, want 1", store.putCount(firstArtifacts[0].S3Key))
	}
}

func TestProcessOne_PerceptualDedup(t *testing.T) {
	// Flat-color images share a perceptual hash while differing
	// byte-for-byte across colors.
	colors := map[string]color.Color{
		"https://example.com/img/red":  color.RGBA{R: 255, A: 255},
		"https://example.com/img/blue": color.RGBA{B: 255, A: 255},
	}
	h := &stubHandler{id: "stub", fn: func(_ context.Context, rawURL, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "image.png")
		img := image.NewRGBA(image.Rect(0, 0, 64, 64))
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				img.Set(x, y, colors[rawURL])
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
		return &archiver.Result{
			ContentType: models.ContentTypeImage,
			PrimaryFile: &archiver.OutputFile{Path: path, Kind: models.ArtifactKindImage, ContentType: "image/png"},
		}, nil
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	var ids []int64
	for u := range colors {
		_, archive, err := svc.EnsureArchive(ctx, u)
		if err != nil {
			t.Fatalf("EnsureArchive() error = %v", err)
		}
		if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
			t.Fatalf("ProcessOne() error = %v", err)
		}
		ids = append(ids, archive.ID)
	}

	var originals, duplicates int
	for _, id := range ids {
		artifacts, err := repos.Artifacts.GetByArchiveID(ctx, id)
		if err != nil || len(artifacts) != 1 {
			t.Fatalf("artifacts for %d = %v (err %v)", id, artifacts, err)
		}
		a := artifacts[0]
		if a.PerceptualHash == "" {
			t.Errorf("artifact %d has no perceptual hash", a.ID)
		}
		if a.DuplicateOfArtifactID != nil {
			duplicates++
		} else {
			originals++
		}
	}
	if originals != 1 || duplicates != 1 {
		t.Errorf("originals = %d duplicates = %d, want 1 and 1", originals, duplicates)
	}
}

func TestProcessOne_ThreadRefs(t *testing.T) {
	h := &stubHandler{id: "stub", fn: func(_ context.Context, rawURL, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "tweet.json")
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, err
		}
		result := &archiver.Result{
			ContentType: models.ContentTypeThread,
			PrimaryFile: &archiver.OutputFile{Path: path, Kind: models.ArtifactKindMetadata, ContentType: "application/json"},
		}
		if rawURL == "https://example.com/reply" {
			result.ReplyToURL = "https://example.com/parent"
		}
		return result, nil
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/reply")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ReplyToArchiveID == nil {
		t.Fatal("ReplyToArchiveID not set")
	}

	// The referenced archive exists and is pending in the normal rotation.
	parent, err := repos.Archives.GetByID(ctx, *got.ReplyToArchiveID)
	if err != nil {
		t.Fatalf("GetByID(parent) error = %v", err)
	}
	if parent == nil || parent.Status != models.ArchiveStatusPending {
		t.Errorf("parent archive = %+v, want a pending archive", parent)
	}
}

func TestProcessOne_ConcurrentClaim(t *testing.T) {
	svc, repos, _ := setupService(t, testConfig(t), textHandler("once"))
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/contested")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			processed, err := svc.ProcessOne(ctx, archive.ID)
			if err != nil {
				t.Errorf("ProcessOne() error = %v", err)
				return
			}
			results[i] = processed
		}(i)
	}
	wg.Wait()

	var winners int
	for _, r := range results {
		if r {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d workers processed the archive, want exactly 1", winners)
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusComplete {
		t.Errorf("Status = %s, want complete", got.Status)
	}
}

func TestDelete_RemovesOwnedObjects(t *testing.T) {
	svc, repos, store := setupService(t, testConfig(t), textHandler("gone"))
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/doomed")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	key := got.S3KeyPrimary

	if err := svc.Delete(ctx, archive.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.has(key) {
		t.Errorf("object %q survived Delete", key)
	}
	remaining, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if remaining != nil {
		t.Error("archive row survived Delete")
	}
}

func TestDelete_KeepsSharedObjects(t *testing.T) {
	// Two archives share one deduplicated object; deleting the original
	// keeps the object because the duplicate still references it.
	h := &stubHandler{id: "stub", fn: func(_ context.Context, _, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "page.html")
		if err := os.WriteFile(path, []byte("<html>shared</html>"), 0o644); err != nil {
			return nil, err
		}
		return &archiver.Result{
			ContentType: models.ContentTypeText,
			PrimaryFile: &archiver.OutputFile{Path: path, Kind: models.ArtifactKindRawHTML, ContentType: "text/html"},
		}, nil
	}}
	svc, repos, store := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, first, err := svc.EnsureArchive(ctx, "https://example.com/shared-a")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, first.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	_, second, err := svc.EnsureArchive(ctx, "https://example.com/shared-b")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, second.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	got, err := repos.Archives.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	key := got.S3KeyPrimary

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !store.has(key) {
		t.Error("shared object deleted while still referenced by a duplicate")
	}
}

func TestRearchive_PreservesMetadata(t *testing.T) {
	// The handler's extraction drifts between runs; preserved metadata must
	// survive a full reprocess untouched.
	title := "Original Title"
	nsfw := true
	h := &stubHandler{id: "stub", fn: func(_ context.Context, _, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "page.html")
		if err := os.WriteFile(path, []byte("<html>"+title+"</html>"), 0o644); err != nil {
			return nil, err
		}
		return &archiver.Result{
			ContentType: models.ContentTypeText,
			Title:       title,
			IsNSFW:      nsfw,
			NSFWSource:  models.NSFWSourceDetected,
			PrimaryFile: &archiver.OutputFile{Path: path, Kind: models.ArtifactKindRawHTML, ContentType: "text/html"},
		}, nil
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/drifting")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	title = "Changed Title"
	nsfw = false
	if err := svc.Rearchive(ctx, archive.ID, true); err != nil {
		t.Fatalf("Rearchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusComplete {
		t.Fatalf("Status = %s, want complete (error: %s)", got.Status, got.ErrorMessage)
	}
	if got.ContentTitle != "Original Title" {
		t.Errorf("ContentTitle = %q, want the preserved title", got.ContentTitle)
	}
	if !got.IsNSFW || got.NSFWSource != models.NSFWSourceDetected {
		t.Errorf("NSFW flags = %v/%s, want preserved true/detected", got.IsNSFW, got.NSFWSource)
	}
	if got.S3KeyPrimary == "" {
		t.Error("reprocessed archive has no primary object")
	}

	// Without preservation the new extraction wins.
	if err := svc.Rearchive(ctx, archive.ID, false); err != nil {
		t.Fatalf("Rearchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	got, err = repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ContentTitle != "Changed Title" {
		t.Errorf("ContentTitle = %q, want the fresh title", got.ContentTitle)
	}
	if got.IsNSFW {
		t.Error("IsNSFW survived a non-preserving rearchive")
	}
}

func TestProcessOne_VideoUploadFailureRetries(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetryBaseDelay = -time.Minute // keep the retry immediately due
	h := &stubHandler{id: "stub", fn: func(_ context.Context, _, workDir string, _ archiver.Options) (*archiver.Result, error) {
		path := filepath.Join(workDir, "media.mp4")
		if err := os.WriteFile(path, []byte("fake mp4 payload"), 0o644); err != nil {
			return nil, err
		}
		return &archiver.Result{
			ContentType: models.ContentTypeVideo,
			PrimaryFile: &archiver.OutputFile{
				Path:        path,
				Kind:        models.ArtifactKindVideo,
				ContentType: "video/mp4",
				Platform:    "stubtube",
				VideoID:     "abc123",
			},
		}, nil
	}}
	svc, repos, store := setupService(t, cfg, h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/v/flaky")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}

	store.failNextPut(errors.New("upload refused"))
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusFailed {
		t.Fatalf("Status = %s, want failed after upload error", got.Status)
	}
	// The failed upload must not leave an index row claiming the object.
	vf, err := repos.VideoFiles.GetByPlatformVideoID(ctx, "stubtube", "abc123")
	if err != nil {
		t.Fatalf("GetByPlatformVideoID() error = %v", err)
	}
	if vf != nil {
		t.Fatalf("video file row survived a failed upload: %+v", vf)
	}

	// The retry re-uploads and completes.
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() retry error = %v", err)
	}
	got, err = repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusComplete {
		t.Fatalf("Status = %s, want complete (error: %s)", got.Status, got.ErrorMessage)
	}
	const videoKey = "video/stubtube/abc123.mp4"
	if !store.has(videoKey) {
		t.Error("video object missing after successful retry")
	}
	if store.putCount(videoKey) != 1 {
		t.Errorf("video uploaded %d times, want 1", store.putCount(videoKey))
	}
}

func TestRetry_ResetsArchive(t *testing.T) {
	h := &stubHandler{id: "stub", fn: func(context.Context, string, string, archiver.Options) (*archiver.Result, error) {
		return nil, archiver.AuthRequired("login wall")
	}}
	svc, repos, _ := setupService(t, testConfig(t), h)
	ctx := context.Background()

	_, archive, err := svc.EnsureArchive(ctx, "https://example.com/retryable")
	if err != nil {
		t.Fatalf("EnsureArchive() error = %v", err)
	}
	if _, err := svc.ProcessOne(ctx, archive.ID); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}

	if err := svc.Retry(ctx, archive.ID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	got, err := repos.Archives.GetByID(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.ArchiveStatusPending || got.RetryCount != 0 {
		t.Errorf("after Retry: status = %s retry_count = %d, want pending/0", got.Status, got.RetryCount)
	}
}
