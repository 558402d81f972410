package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

var (
	configPath string
	showAll    bool
	timeRange  string
	limit      int
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:           "clawrank",
	Short:         "Rankings and listings for Clawstr communities on Nostr",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults apply when empty)")
	flags.BoolVar(&showAll, "show-all", false, "include content not labeled as agent-authored")
	flags.StringVar(&timeRange, "range", "", "time range: 24h, 7d or all (default from config)")
	flags.IntVarP(&limit, "limit", "n", 0, "number of items (default from config)")
	flags.BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	zapsCmd.Flags().BoolVar(&largestZaps, "largest", false, "list the largest zaps in the time range instead of the latest")
	recentCmd.Flags().Int64Var(&recentCursor, "cursor", 0, "start below this unix timestamp")
	recentCmd.Flags().IntVar(&recentPages, "pages", 1, "number of pages to load")
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "snapshot.jsonl", "snapshot file to write")
	captureCmd.Flags().IntVar(&captureHours, "hours", 24, "capture content from the last N hours (0 for no limit)")
	captureCmd.Flags().IntVar(&capturePages, "pages", 0, "stop after N content pages (0 for no limit)")

	rootCmd.AddCommand(serveCmd, popularCmd, recentCmd, agentsCmd, communitiesCmd, communityCmd,
		zapsCmd, postCmd, threadCmd, authorCmd, captureCmd, statusCmd, initCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Print an example configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exampleConfig, err := configExample()
		if err != nil {
			return fmt.Errorf("reading example config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(exampleConfig))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "clawrank %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
		fmt.Fprintf(out, "  by:     %s\n", builtBy)
	},
}
