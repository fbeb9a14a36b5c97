package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/feedscan/internal/feed"
)

// DBFileName is the name of the history database inside the data
// directory.
const DBFileName = "feedscan.db"

var (
	// ErrDatabaseNotFound is returned by Open when the database does not
	// exist and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("history database not found")

	// ErrNotEnoughRuns is returned by Diff when a site has fewer than two
	// stored runs.
	ErrNotEnoughRuns = errors.New("at least two runs are needed for a diff")
)

// HistoryDB stores discovery runs and the feeds each run found.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when
	// missing.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		strategies TEXT NOT NULL DEFAULT '',
		feed_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);

	CREATE TABLE IF NOT EXISTS run_feeds (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT,
		feed_title TEXT,
		PRIMARY KEY (run_id, url)
	);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one stored discovery run.
type Run struct {
	ID         int64
	Site       string
	StartedAt  time.Time
	Duration   time.Duration
	Strategies []string
	Feeds      []feed.Feed

	// Err is the message of the error that ended the run, or "".
	Err string
}

// RunSummary describes a run without its feeds.
type RunSummary struct {
	ID         int64         `json:"id"`
	Site       string        `json:"site"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"durationNs"`
	Strategies []string      `json:"strategies"`
	FeedCount  int           `json:"feedCount"`
	Err        string        `json:"error,omitempty"`
}

// SaveRun stores run and its feeds in one transaction and returns the new
// run ID.
func (h *HistoryDB) SaveRun(ctx context.Context, run *Run) (int64, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (site, started_at, duration_ms, strategies, feed_count, error)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.Site,
		startedAt.UTC().Format(time.RFC3339Nano),
		run.Duration.Milliseconds(),
		strings.Join(run.Strategies, ","),
		len(run.Feeds),
		run.Err,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO run_feeds (run_id, position, url, type, title, feed_title)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare feed insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range run.Feeds {
		if _, err := stmt.ExecContext(ctx, id, i, f.URL, string(f.Type), nullString(f.Title), nullString(f.FeedTitle)); err != nil {
			return 0, fmt.Errorf("failed to save feed %s: %w", f.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	run.ID = id
	return id, nil
}

// History returns the runs of site, newest first. limit <= 0 returns all.
func (h *HistoryDB) History(ctx context.Context, site string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, site, started_at, duration_ms, strategies, feed_count, error
	FROM runs
	WHERE site = ?
	ORDER BY id DESC
	`
	args := []any{site}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s          RunSummary
			startedAt  string
			durationMS int64
			strategies string
		)
		if err := rows.Scan(&s.ID, &s.Site, &startedAt, &durationMS, &strategies, &s.FeedCount, &s.Err); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(startedAt)
		s.Duration = time.Duration(durationMS) * time.Millisecond
		s.Strategies = splitStrategies(strategies)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRun returns the run with the given ID and its feeds, or nil when it
// does not exist.
func (h *HistoryDB) GetRun(ctx context.Context, id int64) (*Run, error) {
	var (
		run        Run
		startedAt  string
		durationMS int64
		strategies string
		feedCount  int
	)
	err := h.db.QueryRowContext(ctx, `
	SELECT id, site, started_at, duration_ms, strategies, feed_count, error
	FROM runs
	WHERE id = ?
	`, id).Scan(&run.ID, &run.Site, &startedAt, &durationMS, &strategies, &feedCount, &run.Err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.StartedAt = parseTimestamp(startedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.Strategies = splitStrategies(strategies)

	run.Feeds, err = h.runFeeds(ctx, id)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (h *HistoryDB) runFeeds(ctx context.Context, runID int64) ([]feed.Feed, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT url, type, title, feed_title
	FROM run_feeds
	WHERE run_id = ?
	ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds of run %d: %w", runID, err)
	}
	defer rows.Close()

	feeds := []feed.Feed{}
	for rows.Next() {
		var (
			f         feed.Feed
			typ       string
			title     sql.NullString
			feedTitle sql.NullString
		)
		if err := rows.Scan(&f.URL, &typ, &title, &feedTitle); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		f.Type = feed.Type(typ)
		f.Title = stringPtr(title)
		f.FeedTitle = stringPtr(feedTitle)
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// ListSites returns every site with at least one stored run, sorted.
func (h *HistoryDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT site FROM runs ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Diff is the change in discovered feeds between two runs of a site.
type Diff struct {
	Site    string      `json:"site"`
	From    RunSummary  `json:"from"`
	To      RunSummary  `json:"to"`
	Added   []feed.Feed `json:"added"`
	Removed []feed.Feed `json:"removed"`
}

// HasChanges reports whether any feed was added or removed.
func (d *Diff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// Diff compares the two latest runs of site. Feeds are matched by URL.
func (h *HistoryDB) Diff(ctx context.Context, site string) (*Diff, error) {
	runs, err := h.History(ctx, site, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("%w: %s has %d", ErrNotEnoughRuns, site, len(runs))
	}

	newer, err := h.runFeeds(ctx, runs[0].ID)
	if err != nil {
		return nil, err
	}
	older, err := h.runFeeds(ctx, runs[1].ID)
	if err != nil {
		return nil, err
	}

	return &Diff{
		Site:    site,
		From:    runs[1],
		To:      runs[0],
		Added:   missingFrom(newer, older),
		Removed: missingFrom(older, newer),
	}, nil
}

// missingFrom returns the feeds of a whose URL is not in b.
func missingFrom(a, b []feed.Feed) []feed.Feed {
	out := []feed.Feed{}
	for _, f := range a {
		if !slices.ContainsFunc(b, func(g feed.Feed) bool { return g.URL == f.URL }) {
			out = append(out, f)
		}
	}
	return out
}

func splitStrategies(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// timestampFormats are the layouts stored timestamps may use.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses s with the first matching layout, returning the
// zero time when none matches.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
