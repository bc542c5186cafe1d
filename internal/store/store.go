package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"genzweekly/internal/core"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDatabase is the file name used by NewStore.
const DefaultDatabase = "genzweekly.db"

const dayLayout = "2006-01-02"

// ErrNotFound is returned when a week or artifact does not exist.
var ErrNotFound = errors.New("not found")

// Approval states of a processed week.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ProcessedWeek is the ranked selection produced by weekly consolidation.
type ProcessedWeek struct {
	Week        core.Week         `json:"week"`
	Stories     []core.RankedItem `json:"stories"`
	Confidence  float64           `json:"confidence"`
	Iterations  int               `json:"iterations"`
	Converged   bool              `json:"converged"`
	Status      Status            `json:"status"`
	Note        string            `json:"note,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	DecidedAt   time.Time         `json:"decided_at,omitempty"`
	TotalInputs int               `json:"total_inputs"`
}

// Artifact is an approved output (newsletter, thread, script, audio) of a week.
type Artifact struct {
	ID        string
	WeekID    string
	Format    string // e.g. "newsletter", "twitter_thread", "podcast"
	Extension string // "html", "json", "txt", "md", "mp3"
	Content   []byte
	CreatedAt time.Time
}

// ArchiveEntry summarizes a published week.
type ArchiveEntry struct {
	WeekID  string
	Status  Status
	Formats []string
}

// Store represents the SQLite-backed pipeline archive
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, DefaultDatabase))
}

// Open opens (and migrates) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	// Daily scrape output, one row per article per category per day
	rawTable := `
	CREATE TABLE IF NOT EXISTS raw_articles (
		scrape_date TEXT NOT NULL,
		category TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		summary TEXT,
		publish_date TEXT,
		source TEXT,
		image_url TEXT,
		raw_content TEXT,
		relevance_score REAL,
		position INTEGER,
		PRIMARY KEY (scrape_date, category, url)
	);`

	weeksTable := `
	CREATE TABLE IF NOT EXISTS weeks (
		week_id TEXT PRIMARY KEY,
		selection TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL,
		decided_at TEXT
	);`

	artifactsTable := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		week_id TEXT NOT NULL,
		format TEXT NOT NULL,
		extension TEXT NOT NULL,
		content BLOB,
		created_at TEXT NOT NULL,
		UNIQUE (week_id, format)
	);`

	tables := []string{rawTable, weeksTable, artifactsTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// SaveRaw replaces the scraped articles stored for category on day.
func (s *Store) SaveRaw(ctx context.Context, category string, day time.Time, articles []core.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	date := day.Format(dayLayout)
	if _, err := tx.ExecContext(ctx, "DELETE FROM raw_articles WHERE scrape_date = ? AND category = ?", date, category); err != nil {
		return fmt.Errorf("failed to clear raw articles: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO raw_articles
	(scrape_date, category, url, title, summary, publish_date, source, image_url, raw_content, relevance_score, position)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i, a := range articles {
		var relevance sql.NullFloat64
		if a.RelevanceScore != nil {
			relevance = sql.NullFloat64{Float64: *a.RelevanceScore, Valid: true}
		}
		var published string
		if !a.PublishDate.IsZero() {
			published = a.PublishDate.Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx, query,
			date, category, a.URL, a.Title, a.Summary, published,
			a.Source, a.ImageURL, a.RawContent, relevance, i,
		); err != nil {
			return fmt.Errorf("failed to save article %s: %w", a.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit raw articles: %w", err)
	}
	return nil
}

// LoadRaw returns the articles scraped for category on day, in scrape order.
func (s *Store) LoadRaw(ctx context.Context, category string, day time.Time) ([]core.Article, error) {
	grouped, err := s.loadRaw(ctx, "scrape_date = ? AND category = ?", day.Format(dayLayout), category)
	if err != nil {
		return nil, err
	}
	return grouped[category], nil
}

// LoadWeeklyRaw returns every article scraped between start and end
// (inclusive, by day) grouped by category.
func (s *Store) LoadWeeklyRaw(ctx context.Context, start, end time.Time) (map[string][]core.Article, error) {
	return s.loadRaw(ctx, "scrape_date >= ? AND scrape_date <= ?", start.Format(dayLayout), end.Format(dayLayout))
}

func (s *Store) loadRaw(ctx context.Context, where string, args ...any) (map[string][]core.Article, error) {
	query := `
	SELECT category, url, title, summary, publish_date, source, image_url, raw_content, relevance_score
	FROM raw_articles
	WHERE ` + where + `
	ORDER BY scrape_date, category, position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw articles: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]core.Article)
	for rows.Next() {
		var a core.Article
		var published string
		var relevance sql.NullFloat64
		if err := rows.Scan(&a.Category, &a.URL, &a.Title, &a.Summary, &published,
			&a.Source, &a.ImageURL, &a.RawContent, &relevance); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.PublishDate = parseDate(published)
		if relevance.Valid {
			a = a.WithRelevance(relevance.Float64)
		}
		grouped[a.Category] = append(grouped[a.Category], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw articles: %w", err)
	}
	return grouped, nil
}

// SaveProcessed stores a week's selection. Saving a week again resets its
// approval to pending.
func (s *Store) SaveProcessed(ctx context.Context, week ProcessedWeek) error {
	if week.Week.ID == "" {
		return fmt.Errorf("week id is required")
	}
	if week.CreatedAt.IsZero() {
		week.CreatedAt = s.now().UTC()
	}
	week.Status = StatusPending
	week.Note = ""
	week.DecidedAt = time.Time{}

	selection, err := json.Marshal(week)
	if err != nil {
		return fmt.Errorf("failed to encode selection: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO weeks (week_id, selection, status, note, created_at, decided_at)
	VALUES (?, ?, ?, '', ?, NULL)`
	if _, err := s.db.ExecContext(ctx, query, week.Week.ID, string(selection), string(StatusPending),
		week.CreatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save week %s: %w", week.Week.ID, err)
	}
	return nil
}

// LoadProcessed returns a stored week with its current approval state.
func (s *Store) LoadProcessed(ctx context.Context, weekID string) (*ProcessedWeek, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT selection, status, note, decided_at FROM weeks WHERE week_id = ?", weekID)

	var selection, status string
	var note, decidedAt sql.NullString
	err := row.Scan(&selection, &status, &note, &decidedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("week %s: %w", weekID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan week: %w", err)
	}

	var week ProcessedWeek
	if err := json.Unmarshal([]byte(selection), &week); err != nil {
		return nil, fmt.Errorf("failed to decode week %s: %w", weekID, err)
	}
	week.Status = Status(status)
	week.Note = note.String
	if decidedAt.Valid {
		week.DecidedAt = parseDate(decidedAt.String)
	}
	return &week, nil
}

// LatestWeek returns the most recent processed week id.
func (s *Store) LatestWeek(ctx context.Context) (string, error) {
	var weekID string
	err := s.db.QueryRowContext(ctx, "SELECT week_id FROM weeks ORDER BY week_id DESC LIMIT 1").Scan(&weekID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no processed weeks: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query weeks: %w", err)
	}
	return weekID, nil
}

// SetApproval records the editor's decision on a week.
func (s *Store) SetApproval(ctx context.Context, weekID string, status Status, note string) error {
	switch status {
	case StatusApproved, StatusRejected, StatusPending:
	default:
		return fmt.Errorf("unknown approval status %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE weeks SET status = ?, note = ?, decided_at = ? WHERE week_id = ?",
		string(status), note, s.now().UTC().Format(time.RFC3339), weekID)
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("week %s: %w", weekID, ErrNotFound)
	}
	return nil
}

// SaveArtifact stores (or replaces) a week's output in the given format.
func (s *Store) SaveArtifact(ctx context.Context, weekID, format, extension string, content []byte) (Artifact, error) {
	artifact := Artifact{
		ID:        uuid.NewString(),
		WeekID:    weekID,
		Format:    format,
		Extension: extension,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}

	query := `
	INSERT OR REPLACE INTO artifacts (id, week_id, format, extension, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, artifact.ID, weekID, format, extension, content,
		artifact.CreatedAt.Format(time.RFC3339)); err != nil {
		return Artifact{}, fmt.Errorf("failed to save %s artifact: %w", format, err)
	}
	return artifact, nil
}

// LoadArtifact returns a week's output in the given format.
func (s *Store) LoadArtifact(ctx context.Context, weekID, format string) (Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, extension, content, created_at FROM artifacts WHERE week_id = ? AND format = ?", weekID, format)

	artifact := Artifact{WeekID: weekID, Format: format}
	var createdAt string
	err := row.Scan(&artifact.ID, &artifact.Extension, &artifact.Content, &createdAt)
	if err == sql.ErrNoRows {
		return Artifact{}, fmt.Errorf("%s artifact for week %s: %w", format, weekID, ErrNotFound)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to scan artifact: %w", err)
	}
	artifact.CreatedAt = parseDate(createdAt)
	return artifact, nil
}

// ArchiveIndex lists weeks that have stored artifacts, newest first.
func (s *Store) ArchiveIndex(ctx context.Context) ([]ArchiveEntry, error) {
	query := `
	SELECT a.week_id, a.format, COALESCE(w.status, '')
	FROM artifacts a LEFT JOIN weeks w ON w.week_id = a.week_id
	ORDER BY a.week_id DESC, a.format`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var entries []ArchiveEntry
	for rows.Next() {
		var weekID, format, status string
		if err := rows.Scan(&weekID, &format, &status); err != nil {
			return nil, fmt.Errorf("failed to scan archive entry: %w", err)
		}
		if n := len(entries); n == 0 || entries[n-1].WeekID != weekID {
			entries = append(entries, ArchiveEntry{WeekID: weekID, Status: Status(status)})
		}
		last := &entries[len(entries)-1]
		last.Formats = append(last.Formats, format)
	}
	return entries, rows.Err()
}

// legacyArticle is the JSON shape of daily scrape files written by earlier
// versions of the pipeline (data/raw/YYYY-MM-DD/<category>.json).
type legacyArticle struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	URL            string   `json:"url"`
	PublishDate    string   `json:"publish_date"`
	Source         string   `json:"source"`
	Category       string   `json:"category"`
	ImageURL       *string  `json:"image_url"`
	RawContent     *string  `json:"raw_content"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// ImportRawDir loads daily JSON scrape files from rawDir into the store and
// returns the number of imported articles.
func (s *Store) ImportRawDir(ctx context.Context, rawDir string) (int, error) {
	days, err := os.ReadDir(rawDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", rawDir, err)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Name() < days[j].Name() })

	imported := 0
	for _, dayDir := range days {
		if !dayDir.IsDir() {
			continue
		}
		day, err := time.Parse(dayLayout, dayDir.Name())
		if err != nil {
			continue
		}

		files, err := filepath.Glob(filepath.Join(rawDir, dayDir.Name(), "*.json"))
		if err != nil {
			return imported, err
		}
		sort.Strings(files)
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return imported, err
			}
			category := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(file), ".json"), "_", " ")
			articles, err := readLegacyFile(file, category)
			if err != nil {
				return imported, err
			}
			if err := s.SaveRaw(ctx, category, day, articles); err != nil {
				return imported, err
			}
			imported += len(articles)
		}
	}
	return imported, nil
}

func readLegacyFile(path, category string) ([]core.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var legacy []legacyArticle
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	articles := make([]core.Article, 0, len(legacy))
	for _, l := range legacy {
		a := core.Article{
			Title:       l.Title,
			Summary:     l.Summary,
			URL:         l.URL,
			PublishDate: parseDate(l.PublishDate),
			Source:      l.Source,
			Category:    category,
		}
		if l.ImageURL != nil {
			a.ImageURL = *l.ImageURL
		}
		if l.RawContent != nil {
			a.RawContent = *l.RawContent
		}
		if l.RelevanceScore != nil {
			a = a.WithRelevance(*l.RelevanceScore)
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// parseDate accepts RFC 3339 as well as the looser formats found in older
// scrape files; unparseable values yield the zero time.
func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}
	}
	return t
}
