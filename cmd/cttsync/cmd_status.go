package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cttsync/internal/history"
)

// showStatus prints the newest stored run summaries.
func showStatus(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled; enable history in %s or set CTTSYNC_HISTORY_DB", configPath)
	}
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(cfg.History.Path, cfg.History.Keep)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}
	if limit == 1 {
		return printJSON(cmd.OutOrStdout(), runs[0])
	}
	return printJSON(cmd.OutOrStdout(), runs)
}
