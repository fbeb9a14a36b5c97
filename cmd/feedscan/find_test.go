package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/search"
)

const testRSS = `<rss version="2.0"><channel><title>Example feed</title><description>d</description><item></item></channel></rss>`

// newFeedSite serves a page that announces /feed.xml in a <link> tag.
func newFeedSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" title="Posts" href="/feed.xml"></head><body></body></html>`)) //nolint:errcheck
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(testRSS)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// writeEmptyConfig writes a configuration file so that tests never pick up
// a .feedscan from the home directory.
func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".feedscan")
	if err := os.WriteFile(path, []byte("defaults:\n  depth: 2\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestNewFindCmd tests the find command creation.
func TestNewFindCmd(t *testing.T) {
	t.Parallel()

	cmd := NewFindCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "find [site-url...]" {
			t.Errorf("expected use 'find [site-url...]', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
	})

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "metasearch", defValue: "false"},
		{name: "anchorsonly", defValue: "false"},
		{name: "blindsearch", defValue: "false"},
		{name: "deepsearch", defValue: "false"},
		{name: "deepsearch-only", defValue: "false"},
		{name: "all", shorthand: "a", defValue: "false"},
		{name: "depth", shorthand: "d", defValue: "3"},
		{name: "max-links", shorthand: "l", defValue: "1000"},
		{name: "timeout", shorthand: "t", defValue: "5s"},
		{name: "max-errors", defValue: "5"},
		{name: "max-feeds", defValue: "0"},
		{name: "search-mode", defValue: "standard"},
		{name: "concurrency", defValue: "0"},
		{name: "request-delay", defValue: "0s"},
		{name: "batch", shorthand: "b", defValue: "3"},
		{name: "check-foreign-feeds", defValue: "false"},
		{name: "keep-query-params", defValue: "false"},
		{name: "show-errors", defValue: "false"},
		{name: "config", shorthand: "c", defValue: ""},
		{name: "proxy", defValue: ""},
		{name: "tor", defValue: "false"},
		{name: "tor-timeout", defValue: "3m0s"},
		{name: "user-agent", shorthand: "u", defValue: ""},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "text", defValue: "false"},
		{name: "output", shorthand: "o", defValue: ""},
		{name: "no-save", defValue: "false"},
		{name: "db-dir", defValue: ""},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestGetVerboseFlag tests the verbose flag retrieval.
func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("returns false when flag not set", func(t *testing.T) {
		t.Parallel()
		if getVerboseFlag(NewFindCmd()) {
			t.Error("expected false when flag not set")
		}
	})

	t.Run("returns value from parent verbose flag", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		_ = root.PersistentFlags().Set("verbose", "true") //nolint:errcheck

		findCmd, _, err := root.Find([]string{"find"})
		if err != nil {
			t.Fatalf("failed to find find command: %v", err)
		}
		if !getVerboseFlag(findCmd) {
			t.Error("expected true from parent verbose flag")
		}
	})
}

// TestBuildConfig tests configuration building from flags.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("builds config with default values", func(t *testing.T) {
		t.Parallel()
		cmd := NewFindCmd()
		_ = cmd.Flags().Set("config", writeEmptyConfig(t)) //nolint:errcheck

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "example.com" {
			t.Errorf("expected targets [example.com], got %v", cfg.Targets)
		}
		if cfg.Search.SearchMode != config.SearchModeStandard {
			t.Errorf("expected standard search mode, got %q", cfg.Search.SearchMode)
		}
		if cfg.Search.Timeout != config.DefaultSearchTimeout {
			t.Errorf("expected default timeout, got %v", cfg.Search.Timeout)
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
		if cfg.DBDir != config.XDGDataDir() {
			t.Errorf("expected XDG data dir, got %q", cfg.DBDir)
		}
		if cfg.SiteConfigs == nil || cfg.SiteConfigs.Defaults.Depth != 2 {
			t.Errorf("expected config file defaults to be loaded, got %+v", cfg.SiteConfigs)
		}
	})

	t.Run("maps every flag", func(t *testing.T) {
		t.Parallel()
		cmd := NewFindCmd()
		set := map[string]string{
			"config":              writeEmptyConfig(t),
			"deepsearch":          "true",
			"all":                 "true",
			"depth":               "7",
			"max-links":           "50",
			"timeout":             "10s",
			"max-errors":          "9",
			"max-feeds":           "4",
			"search-mode":         "Exhaustive",
			"concurrency":         "8",
			"request-delay":       "250ms",
			"batch":               "2",
			"check-foreign-feeds": "true",
			"keep-query-params":   "true",
			"show-errors":         "true",
			"proxy":               "127.0.0.1:9050",
			"user-agent":          "feedscan-test",
			"markdown":            "true",
			"output":              "out.md",
			"no-save":             "true",
			"db-dir":              "/tmp/feedscan-db",
		}
		for name, value := range set {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatalf("failed to set %s: %v", name, err)
			}
		}

		cfg, err := buildConfig(cmd, []string{"a.example", "b.example"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := cfg.Search
		if !cfg.Strategies.Deep || !s.All {
			t.Errorf("expected deep search and all, got %+v / all=%v", cfg.Strategies, s.All)
		}
		if s.MaxDepth != 7 || s.MaxLinks != 50 || s.MaxErrors != 9 || s.MaxFeeds != 4 || s.Concurrency != 8 {
			t.Errorf("unexpected limits: %+v", s)
		}
		if s.Timeout != 10*time.Second || s.RequestDelay != 250*time.Millisecond {
			t.Errorf("unexpected durations: timeout=%v delay=%v", s.Timeout, s.RequestDelay)
		}
		if s.SearchMode != config.SearchModeExhaustive {
			t.Errorf("expected exhaustive search mode, got %q", s.SearchMode)
		}
		if !s.CheckForeignFeeds || !s.KeepQueryParams || !s.ShowErrors {
			t.Errorf("expected behavior flags to be set: %+v", s)
		}
		if cfg.BatchSize != 2 {
			t.Errorf("expected batch size 2, got %d", cfg.BatchSize)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" || cfg.UserAgent != "feedscan-test" {
			t.Errorf("unexpected transport settings: proxy=%q ua=%q", cfg.ProxyAddress, cfg.UserAgent)
		}
		if !cfg.MarkdownReport || cfg.ReportFile != "out.md" {
			t.Errorf("unexpected report settings: markdown=%v file=%q", cfg.MarkdownReport, cfg.ReportFile)
		}
		if cfg.SaveToDB || cfg.DBDir != "/tmp/feedscan-db" {
			t.Errorf("unexpected storage settings: save=%v dir=%q", cfg.SaveToDB, cfg.DBDir)
		}
	})

	t.Run("rejects unknown search mode", func(t *testing.T) {
		t.Parallel()
		cmd := NewFindCmd()
		_ = cmd.Flags().Set("search-mode", "turbo") //nolint:errcheck

		_, err := buildConfig(cmd, []string{"example.com"})
		if !errors.Is(err, config.ErrInvalidSearchMode) {
			t.Errorf("expected ErrInvalidSearchMode, got %v", err)
		}
	})

	t.Run("fails on missing explicit config file", func(t *testing.T) {
		t.Parallel()
		cmd := NewFindCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")) //nolint:errcheck

		_, err := buildConfig(cmd, []string{"example.com"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("fails on invalid config file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ".feedscan")
		if err := os.WriteFile(path, []byte("defaults:\n  searchMode: turbo\n"), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		cmd := NewFindCmd()
		_ = cmd.Flags().Set("config", path) //nolint:errcheck

		_, err := buildConfig(cmd, []string{"example.com"})
		if !errors.Is(err, config.ErrInvalidSearchMode) {
			t.Errorf("expected ErrInvalidSearchMode, got %v", err)
		}
	})
}

// TestRunFindCmd tests the find command end to end against a local site.
func TestRunFindCmd(t *testing.T) {
	t.Parallel()

	server := newFeedSite(t)

	t.Run("writes feeds as JSON", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&stdout)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"find", "--no-save", "--config", writeEmptyConfig(t), server.URL})

		if err := root.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var feeds []feed.Feed
		if err := json.Unmarshal(stdout.Bytes(), &feeds); err != nil {
			t.Fatalf("output is not a JSON feed array: %v\n%s", err, stdout.String())
		}
		if len(feeds) != 1 || feeds[0].URL != server.URL+"/feed.xml" {
			t.Fatalf("expected only /feed.xml, got %+v", feeds)
		}
		if feeds[0].Type != feed.TypeRSS {
			t.Errorf("expected rss, got %q", feeds[0].Type)
		}
	})

	t.Run("writes batch report to file", func(t *testing.T) {
		t.Parallel()

		output := filepath.Join(t.TempDir(), "reports", "feeds.json")
		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{
			"find", "--no-save", "--metasearch", "--config", writeEmptyConfig(t),
			"-o", output, server.URL, server.URL + "/other",
		})

		if err := root.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var got map[string][]feed.Feed
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("report is not a JSON object: %v\n%s", err, data)
		}
		if len(got[server.URL]) != 1 {
			t.Errorf("expected one feed for %s, got %+v", server.URL, got[server.URL])
		}
		if feeds, ok := got[server.URL+"/other"]; !ok || len(feeds) != 0 {
			t.Errorf("expected an empty array for the page without feeds, got %+v (present=%v)", feeds, ok)
		}

		info, err := os.Stat(output)
		if err != nil {
			t.Fatalf("failed to stat report: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("expected report permissions 0600, got %o", perm)
		}
	})

	t.Run("writes text report", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&stdout)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"find", "--no-save", "--text", "--config", writeEmptyConfig(t), server.URL})

		if err := root.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), server.URL+"/feed.xml") {
			t.Errorf("expected feed URL in text output, got:\n%s", stdout.String())
		}
	})

	t.Run("stores runs in history", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"find", "--db-dir", dbDir, "--config", writeEmptyConfig(t), server.URL})

		if err := root.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := db.History(context.Background(), server.URL, 0)
		if err != nil {
			t.Fatalf("failed to read history: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(runs))
		}
		if runs[0].FeedCount != 1 {
			t.Errorf("expected 1 feed, got %d", runs[0].FeedCount)
		}
		if len(runs[0].Strategies) == 0 || runs[0].Strategies[0] != search.MetaModuleName {
			t.Errorf("expected strategies to start with %s, got %v", search.MetaModuleName, runs[0].Strategies)
		}
	})

	t.Run("rejects conflicting formats", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"find", "--json", "--text", "--no-save", "--config", writeEmptyConfig(t), server.URL})

		err := root.Execute()
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("requires a target", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"find", "--no-save", "--config", writeEmptyConfig(t)})

		err := root.Execute()
		if !errors.Is(err, config.ErrNoTarget) {
			t.Errorf("expected ErrNoTarget, got %v", err)
		}
	})
}

// TestRunFind tests runFind directly.
func TestRunFind(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	t.Run("rejects invalid site URL", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SaveToDB = false
		cfg.Targets = []string{"ftp://example.com"}

		err := runFind(context.Background(), cfg, logger, io.Discard)
		if !errors.Is(err, search.ErrInvalidSiteURL) {
			t.Errorf("expected ErrInvalidSiteURL, got %v", err)
		}
	})

	t.Run("reports site failures as error", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SaveToDB = false
		cfg.Targets = []string{"https://example.com"}
		cfg.ProxyAddress = "not-a-proxy"

		var stdout bytes.Buffer
		err := runFind(context.Background(), cfg, logger, &stdout)
		if err == nil {
			t.Fatal("expected error for a site whose client cannot be built")
		}
		if !strings.Contains(err.Error(), "https://example.com") {
			t.Errorf("expected error to name the site, got %v", err)
		}
		if strings.TrimSpace(stdout.String()) != "[]" {
			t.Errorf("expected empty feed array, got %q", stdout.String())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cfg := config.NewConfig()
		cfg.SaveToDB = false
		cfg.Targets = []string{"https://example.invalid"}

		err := runFind(ctx, cfg, logger, io.Discard)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestReportFormat tests output format selection.
func TestReportFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "default is json", cfg: config.Config{}, want: "json"},
		{name: "json", cfg: config.Config{JSONReport: true}, want: "json"},
		{name: "markdown", cfg: config.Config{MarkdownReport: true}, want: "markdown"},
		{name: "text", cfg: config.Config{TextReport: true}, want: "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := string(reportFormat(&tt.cfg)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestSaveRun tests storing a batch result.
func TestSaveRun(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	t.Run("nil database is a no-op", func(t *testing.T) {
		t.Parallel()
		if err := saveRun(context.Background(), nil, &search.SiteResult{Site: "https://example.com"}, logger); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("stores error message", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		result := &search.SiteResult{
			Site:       "https://example.com",
			Strategies: []string{"blindsearch"},
			Err:        errors.New("too many errors"),
			StartedAt:  time.Now(),
			Duration:   time.Second,
		}
		if err := saveRun(context.Background(), db, result, logger); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		runs, err := db.History(context.Background(), "https://example.com", 0)
		if err != nil {
			t.Fatalf("failed to read history: %v", err)
		}
		if len(runs) != 1 || runs[0].Err != "too many errors" {
			t.Errorf("expected stored error message, got %+v", runs)
		}
	})
}
