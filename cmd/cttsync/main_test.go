package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cttsync/internal/config"
	"cttsync/internal/coordinator"
	"cttsync/internal/history"
	"cttsync/internal/layout"
)

func setup(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	timeout = time.Minute
}

// newTestCmd returns a fresh command so flag values never leak between tests.
func newTestCmd(addFlags func(*cobra.Command)) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	if addFlags != nil {
		addFlags(cmd)
	}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	return cmd, out
}

func pageSnapshot() *layout.Snapshot {
	return &layout.Snapshot{
		URL: "https://appserver.ctt.pt/x",
		Elements: []layout.Element{
			{Parent: -1, Text: "body", Box: layout.Rect{Right: 800, Bottom: 600}, FontWeight: "400"},
			{Parent: 0, Text: "3 Jan 10h30", Box: layout.Rect{Top: 100, Right: 90, Bottom: 120}, FontWeight: "400"},
			{Parent: 0, Text: "Aceite", Box: layout.Rect{Left: 100, Top: 100, Right: 200, Bottom: 120}, FontWeight: "700"},
		},
	}
}

func TestResolveTarget(t *testing.T) {
	setup(t)

	url, code, err := resolveTarget("ru 784-434-691 pt")
	require.NoError(t, err)
	assert.Equal(t, "RU784434691PT", string(code))
	assert.Contains(t, url, "ObjectCodeInput=RU784434691PT")

	url, code, err = resolveTarget("https://example.test/page")
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Equal(t, "https://example.test/page", url)

	_, _, err = resolveTarget("no code here")
	assert.Error(t, err)
}

func TestExtractFromSnapshot(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "page.json")
	saved := filepath.Join(dir, "copy.json")
	require.NoError(t, writeSnapshot(in, pageSnapshot()))

	cmd, out := newTestCmd(addExtractFlags)
	require.NoError(t, cmd.Flags().Set("snapshot", in))
	require.NoError(t, cmd.Flags().Set("save", saved))
	require.NoError(t, runExtract(cmd, nil))

	var res struct {
		URL    string `json:"url"`
		Events []struct {
			Label string `json:"label"`
			Date  string `json:"date"`
			Time  string `json:"time"`
		} `json:"events"`
		Status map[string]map[string]any `json:"status"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res), out.String())
	assert.Equal(t, "https://appserver.ctt.pt/x", res.URL)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Aceite", res.Events[0].Label)
	assert.Equal(t, "3 Jan", res.Events[0].Date)
	assert.Equal(t, "10:30", res.Events[0].Time)
	assert.Equal(t, true, res.Status["accepted"]["status"])
	assert.Equal(t, false, res.Status["delivered"]["status"])

	copied, err := readSnapshot(saved)
	require.NoError(t, err)
	assert.Len(t, copied.Elements, 3)
}

func TestExtractNeedsInput(t *testing.T) {
	setup(t)
	cmd, _ := newTestCmd(addExtractFlags)
	assert.Error(t, runExtract(cmd, nil))
}

func TestPatchNeedsFilter(t *testing.T) {
	setup(t)
	cmd, _ := newTestCmd(addPatchFlags)
	err := runPatch(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--order-id")
}

func TestRunBatchWithoutTrackingCodes(t *testing.T) {
	setup(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id":1,"note":"no code"},{"id":2,"tracking":"12345"}]`)
	}))
	defer srv.Close()
	cfg.Orders.BaseURL = srv.URL
	cfg.History.Enabled = true

	cmd, out := newTestCmd(nil)
	require.NoError(t, runBatch(cmd, nil))

	var summary coordinator.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary), out.String())
	assert.Equal(t, 2, summary.TotalOrders)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Patched)

	// The run landed in history and status shows it.
	cmd, out = newTestCmd(addStatusFlags)
	require.NoError(t, runStatusWithLimit(cmd, 1))
	var last coordinator.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &last), out.String())
	assert.Equal(t, summary.ID, last.ID)
}

func TestRunBatchFetchFailure(t *testing.T) {
	setup(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cfg.Orders.BaseURL = srv.URL

	cmd, out := newTestCmd(nil)
	err := runBatch(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, out.String(), `"error"`)
}

func TestStatusEmptyAndDisabled(t *testing.T) {
	setup(t)

	cmd, _ := newTestCmd(addStatusFlags)
	assert.Error(t, showStatus(cmd, nil))

	cfg.History.Enabled = true
	cmd, out := newTestCmd(addStatusFlags)
	require.NoError(t, showStatus(cmd, nil))
	assert.True(t, strings.Contains(out.String(), "No runs recorded yet."))
}

func TestStatusList(t *testing.T) {
	setup(t)
	cfg.History.Enabled = true

	store, err := history.Open(cfg.History.Path, 0)
	require.NoError(t, err)
	base := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		base = base.Add(time.Minute)
		require.NoError(t, store.Save(context.Background(), &coordinator.RunSummary{ID: id, StartedAt: base, FinishedAt: base}))
	}
	require.NoError(t, store.Close())

	cmd, out := newTestCmd(addStatusFlags)
	require.NoError(t, runStatusWithLimit(cmd, 2))
	var runs []coordinator.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs), out.String())
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func runStatusWithLimit(cmd *cobra.Command, limit int) error {
	if err := cmd.Flags().Set("limit", strconv.Itoa(limit)); err != nil {
		return err
	}
	return showStatus(cmd, nil)
}
