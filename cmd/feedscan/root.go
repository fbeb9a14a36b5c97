package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for feedscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedscan",
		Short: "Discover RSS, Atom and JSON feeds of websites",
		Long: `feedscan finds the syndication feeds of a website when the feed URL is not known.

It reads <link rel="alternate"> tags and feed-like links on the site page,
probes well-known feed locations, and can crawl the site for feed links.
Every run is stored so that later runs can show which feeds appeared or
disappeared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewFindCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag reads the verbose flag from the command or the root.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
