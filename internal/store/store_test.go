package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"genzweekly/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	dbPath := filepath.Join(tmpDir, DefaultDatabase)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should be created")
	}
	if store.Path() != dbPath {
		t.Errorf("Expected path %s, got %s", dbPath, store.Path())
	}
}

func TestNewStore_InvalidDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	invalidPath := filepath.Join(tmpDir, "file.txt")
	_ = os.WriteFile(invalidPath, []byte("test"), 0644)

	if _, err := NewStore(invalidPath); err == nil {
		t.Error("Expected error when creating store in invalid directory")
	}
}

func TestSaveRawLoadRaw(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	published := time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)

	articles := []core.Article{
		core.Article{Title: "Second", URL: "https://b.example.com", Category: "Sports", Source: "ESPN", PublishDate: published}.WithRelevance(0.8),
		{Title: "First", URL: "https://a.example.com", Category: "Sports", ImageURL: "https://img"},
	}
	if err := store.SaveRaw(ctx, "Sports", day, articles); err != nil {
		t.Fatalf("SaveRaw failed: %v", err)
	}

	got, err := store.LoadRaw(ctx, "Sports", day)
	if err != nil {
		t.Fatalf("LoadRaw failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(got))
	}
	if got[0].Title != "Second" || got[1].Title != "First" {
		t.Errorf("Expected scrape order to be kept, got %s, %s", got[0].Title, got[1].Title)
	}
	if got[0].Relevance(-1) != 0.8 || got[1].RelevanceScore != nil {
		t.Errorf("Unexpected relevance scores: %v, %v", got[0].RelevanceScore, got[1].RelevanceScore)
	}
	if !got[0].PublishDate.Equal(published) {
		t.Errorf("Expected publish date %v, got %v", published, got[0].PublishDate)
	}
	if !got[1].PublishDate.IsZero() || got[1].ImageURL != "https://img" {
		t.Errorf("Unexpected second article: %+v", got[1])
	}

	// Saving again replaces the day's list
	if err := store.SaveRaw(ctx, "Sports", day, articles[:1]); err != nil {
		t.Fatalf("SaveRaw failed: %v", err)
	}
	got, _ = store.LoadRaw(ctx, "Sports", day)
	if len(got) != 1 {
		t.Errorf("Expected replacement to leave 1 article, got %d", len(got))
	}
}

func TestLoadWeeklyRaw(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	monday := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	saves := []struct {
		category string
		day      time.Time
		url      string
	}{
		{"Sports", monday, "https://s1"},
		{"Sports", monday.AddDate(0, 0, 2), "https://s2"},
		{"Tech", monday.AddDate(0, 0, 4), "https://t1"},
		{"Tech", monday.AddDate(0, 0, 5), "https://saturday"},
		{"Tech", monday.AddDate(0, 0, -1), "https://sunday"},
	}
	for _, s := range saves {
		if err := store.SaveRaw(ctx, s.category, s.day, []core.Article{{Title: s.url, URL: s.url, Category: s.category}}); err != nil {
			t.Fatalf("SaveRaw failed: %v", err)
		}
	}

	week := core.WeekOf(monday.AddDate(0, 0, 3))
	grouped, err := store.LoadWeeklyRaw(ctx, week.Start, week.End)
	if err != nil {
		t.Fatalf("LoadWeeklyRaw failed: %v", err)
	}
	if len(grouped["Sports"]) != 2 {
		t.Errorf("Expected 2 sports articles, got %d", len(grouped["Sports"]))
	}
	if len(grouped["Tech"]) != 1 || grouped["Tech"][0].URL != "https://t1" {
		t.Errorf("Expected only the Friday tech article, got %+v", grouped["Tech"])
	}
}

func TestProcessedWeekAndApproval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	week := core.WeekOf(time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))

	if _, err := store.LoadProcessed(ctx, week.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if err := store.SetApproval(ctx, week.ID, StatusApproved, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for unknown week, got %v", err)
	}

	processed := ProcessedWeek{
		Week: week,
		Stories: []core.RankedItem{
			{Article: core.Article{Title: "Top", URL: "https://top", Category: "Sports"}, Rank: 1, CategoryRank: 1, ImportanceScore: 0.9, SelectionReason: "Top story in Sports"},
		},
		Confidence: 0.7,
		Iterations: 3,
	}
	if err := store.SaveProcessed(ctx, processed); err != nil {
		t.Fatalf("SaveProcessed failed: %v", err)
	}

	got, err := store.LoadProcessed(ctx, week.ID)
	if err != nil {
		t.Fatalf("LoadProcessed failed: %v", err)
	}
	if got.Status != StatusPending || len(got.Stories) != 1 || got.Stories[0].SelectionReason != "Top story in Sports" {
		t.Errorf("Unexpected processed week: %+v", got)
	}
	if got.Week.ID != week.ID || !got.Week.Start.Equal(week.Start) {
		t.Errorf("Expected week %s, got %+v", week.ID, got.Week)
	}

	if err := store.SetApproval(ctx, week.ID, StatusRejected, "too much sports"); err != nil {
		t.Fatalf("SetApproval failed: %v", err)
	}
	got, _ = store.LoadProcessed(ctx, week.ID)
	if got.Status != StatusRejected || got.Note != "too much sports" || got.DecidedAt.IsZero() {
		t.Errorf("Expected rejection to be recorded, got %+v", got)
	}

	if err := store.SetApproval(ctx, week.ID, Status("maybe"), ""); err == nil {
		t.Error("Expected error for unknown status")
	}

	latest, err := store.LatestWeek(ctx)
	if err != nil || latest != week.ID {
		t.Errorf("Expected latest week %s, got %s (%v)", week.ID, latest, err)
	}
}

func TestArtifactsAndArchive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadArtifact(ctx, "2025-W24", "newsletter"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	first, err := store.SaveArtifact(ctx, "2025-W24", "newsletter", "html", []byte("<p>v1</p>"))
	if err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}
	if first.ID == "" {
		t.Error("Expected artifact id")
	}
	if _, err := store.SaveArtifact(ctx, "2025-W24", "newsletter", "html", []byte("<p>v2</p>")); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}
	if _, err := store.SaveArtifact(ctx, "2025-W24", "podcast", "mp3", []byte{0x49, 0x44, 0x33}); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}
	if _, err := store.SaveArtifact(ctx, "2025-W23", "twitter_thread", "json", []byte("[]")); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	got, err := store.LoadArtifact(ctx, "2025-W24", "newsletter")
	if err != nil {
		t.Fatalf("LoadArtifact failed: %v", err)
	}
	if string(got.Content) != "<p>v2</p>" || got.Extension != "html" {
		t.Errorf("Expected replaced newsletter, got %q", got.Content)
	}

	index, err := store.ArchiveIndex(ctx)
	if err != nil {
		t.Fatalf("ArchiveIndex failed: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("Expected 2 archived weeks, got %d", len(index))
	}
	if index[0].WeekID != "2025-W24" || len(index[0].Formats) != 2 || index[0].Formats[0] != "newsletter" {
		t.Errorf("Unexpected newest entry: %+v", index[0])
	}
	if index[1].WeekID != "2025-W23" {
		t.Errorf("Expected older week second, got %+v", index[1])
	}
}

func TestImportRawDir(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rawDir := t.TempDir()
	dayDir := filepath.Join(rawDir, "2025-06-17")
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `[
	  {"title": "Climate march draws thousands", "summary": "Students rallied downtown.", "url": "https://c1", "publish_date": "2025-06-17 08:15:00", "source": "BBC", "category": "Climate Change", "image_url": null, "raw_content": null, "relevance_score": 0.72},
	  {"title": "Heat record broken", "summary": "Hottest June day.", "url": "https://c2", "publish_date": "2025-06-16T22:00:00+00:00", "source": "AP News", "category": "Climate Change", "image_url": "https://img", "raw_content": "full", "relevance_score": null}
	]`
	if err := os.WriteFile(filepath.Join(dayDir, "Climate_Change.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(rawDir, ".gitkeep"), nil, 0644)

	n, err := store.ImportRawDir(ctx, rawDir)
	if err != nil {
		t.Fatalf("ImportRawDir failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 imported articles, got %d", n)
	}

	got, err := store.LoadRaw(ctx, "Climate Change", time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LoadRaw failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(got))
	}
	if got[0].Relevance(0) != 0.72 || got[0].PublishDate.IsZero() {
		t.Errorf("Expected score and parsed date, got %+v", got[0])
	}
	want := time.Date(2025, 6, 16, 22, 0, 0, 0, time.UTC)
	if !got[1].PublishDate.Equal(want) || got[1].ImageURL != "https://img" {
		t.Errorf("Unexpected second article: %+v", got[1])
	}
}
