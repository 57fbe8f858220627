package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/imap-notify/internal/config"
	"github.com/nhle/imap-notify/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [config-file]",
	Short: "Show recent wait cycles from the history database",
	Long: `history prints the most recently finished wait cycles recorded in the
history_db configured in the [imap] section, newest first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of cycles to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	configPath := config.DefaultPath()
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("no history_db configured in %s", configPath)
	}

	history, err := store.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer history.Close()

	cycles, err := history.RecentCycles(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range cycles {
		fmt.Fprintf(out, "%s  %s:%d  %s  attempts=%d",
			c.FinishedAt.Local().Format(time.RFC3339), c.Host, c.Port, c.Outcome, c.Attempts)
		if c.LastError != "" {
			fmt.Fprintf(out, "  error=%q", c.LastError)
		}
		fmt.Fprintln(out)
	}
	return nil
}
