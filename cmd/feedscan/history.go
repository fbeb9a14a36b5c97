package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/report"
	"github.com/nao1215/feedscan/internal/search"
)

// defaultHistoryLimit is the number of runs listed when --limit is not
// given.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [site-url]",
		Short: "Show stored discovery runs and feed changes",
		Long: `History shows the discovery runs stored by "feedscan find".

Without flags it lists the latest runs of a site. --diff compares the two
latest runs and shows which feeds appeared or disappeared.

Examples:
  # List the latest runs of a site
  feedscan history example.com

  # Show feeds added or removed since the previous run
  feedscan history --diff example.com

  # List every site with stored runs
  feedscan history --list-sites

  # Output the run list as JSON
  feedscan history --json example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Bool("diff", false, "Compare the two latest runs of the site")
	cmd.Flags().BoolP("list-sites", "L", false, "List every site with stored runs")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to list (0 lists all)")

	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown")
	cmd.Flags().Bool("text", false, "Output plain text (default)")

	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listSites, err := flags.GetBool("list-sites")
	if err != nil {
		return err
	}
	diff, err := flags.GetBool("diff")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	format, err := historyFormat(cmd)
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	// Arguments are checked before the database is opened.
	var site string
	if !listSites {
		if len(args) == 0 {
			return errors.New("site URL is required (use --list-sites to see stored sites)")
		}
		site, err = search.NormalizeSiteURL(args[0])
		if err != nil {
			return fmt.Errorf("invalid site URL: %w", err)
		}
	}

	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			return errors.New(`no history stored yet: run "feedscan find" first`)
		}
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	w, err := report.New(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	switch {
	case listSites:
		sites, err := db.ListSites(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sites: %w", err)
		}
		_, err = w.WriteSites(sites)
		return err

	case diff:
		d, err := db.Diff(ctx, site)
		if errors.Is(err, database.ErrNotEnoughRuns) {
			return fmt.Errorf("cannot compare runs of %s: %w", site, err)
		}
		if err != nil {
			return fmt.Errorf("failed to compare runs: %w", err)
		}
		_, err = w.WriteDiff(d)
		return err

	default:
		runs, err := db.History(ctx, site, limit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		_, err = w.WriteHistory(site, runs)
		return err
	}
}

// historyFormat returns the selected output format, plain text by
// default.
func historyFormat(cmd *cobra.Command) (report.Format, error) {
	selected := make([]report.Format, 0, 1)
	for name, format := range map[string]report.Format{
		"json":     report.FormatJSON,
		"markdown": report.FormatMarkdown,
		"text":     report.FormatText,
	} {
		on, err := cmd.Flags().GetBool(name)
		if err != nil {
			return "", err
		}
		if on {
			selected = append(selected, format)
		}
	}

	switch len(selected) {
	case 0:
		return report.FormatText, nil
	case 1:
		return selected[0], nil
	default:
		return "", config.ErrConflictingReportFormats
	}
}
