package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cttsync/internal/browser"
	"cttsync/internal/layout"
	"cttsync/internal/status"
	"cttsync/internal/tracking"
)

// extractResult is printed by the extract command.
type extractResult struct {
	URL    string         `json:"url,omitempty"`
	Code   tracking.Code  `json:"code,omitempty"`
	Events []layout.Event `json:"events"`
	Status status.Record  `json:"status"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	snapshotPath, _ := cmd.Flags().GetString("snapshot")
	savePath, _ := cmd.Flags().GetString("save")

	var (
		snap *layout.Snapshot
		res  extractResult
		err  error
	)
	switch {
	case snapshotPath != "":
		snap, err = readSnapshot(snapshotPath)
		if err != nil {
			return err
		}
		res.URL = snap.URL
	case len(args) == 1:
		res.URL, res.Code, err = resolveTarget(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		r := browser.NewRenderer(cfg.Browser)
		defer r.Shutdown(context.Background())
		snap, err = r.Snapshot(ctx, res.URL)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("a tracking code, URL or --snapshot is required")
	}

	if savePath != "" {
		if err := writeSnapshot(savePath, snap); err != nil {
			return err
		}
	}

	res.Events = layout.Extract(snap)
	res.Status = status.Map(res.Events)
	return printJSON(cmd.OutOrStdout(), res)
}

// resolveTarget accepts a full URL or anything containing a tracking code.
func resolveTarget(arg string) (string, tracking.Code, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg, "", nil
	}
	resolver, err := tracking.NewResolver(cfg.Carrier.Prefixes, cfg.Carrier.Country)
	if err != nil {
		return "", "", err
	}
	code, ok := resolver.Find(arg)
	if !ok {
		return "", "", fmt.Errorf("no tracking code in %q", arg)
	}
	url, err := tracking.URLBuilder{Template: cfg.Carrier.URLTemplate}.Build(code)
	if err != nil {
		return "", "", err
	}
	return url, code, nil
}

func readSnapshot(path string) (*layout.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return layout.LoadSnapshot(f)
}

func writeSnapshot(path string, snap *layout.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := layout.SaveSnapshot(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
