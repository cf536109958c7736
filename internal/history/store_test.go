package history

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cttsync/internal/coordinator"
	"cttsync/internal/reconcile"
	"cttsync/internal/status"
)

func setupTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(":memory:", keep)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func summaryAt(id string, start time.Time) *coordinator.RunSummary {
	return &coordinator.RunSummary{
		ID:          id,
		StartedAt:   start,
		FinishedAt:  start.Add(3 * time.Second),
		TotalOrders: 2,
		Processed:   2,
		Patched:     1,
		Failures:    []coordinator.Failure{{OrderID: "9", Message: "render timeout"}},
		Outcomes: []reconcile.Outcome{
			{OrderID: "8", Status: reconcile.ResultPatched, TrackingCode: "RT123456789PT",
				Record: status.Map(nil), Payload: json.RawMessage(`{"ok":true}`)},
			{OrderID: "9", Status: reconcile.ResultFailed, Reason: "render timeout"},
		},
	}
}

var base = time.Date(2025, 2, 5, 8, 0, 0, 0, time.UTC)

func TestSaveAndLast(t *testing.T) {
	s := setupTestStore(t, 0)
	ctx := context.Background()

	last, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	want := summaryAt("run-1", base)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.ID)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, want.Failures, got.Failures)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, want.Outcomes[0].TrackingCode, got.Outcomes[0].TrackingCode)
	assert.JSONEq(t, `{"ok":true}`, string(got.Outcomes[0].Payload))
	assert.Len(t, got.Outcomes[0].Record, len(status.Keys))
}

func TestListNewestFirst(t *testing.T) {
	s := setupTestStore(t, 0)
	ctx := context.Background()

	// Saved out of order on purpose.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.Save(ctx, summaryAt(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"run-2", "run-1", "run-0"}, ids)

	runs, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSaveReplacesSameID(t *testing.T) {
	s := setupTestStore(t, 0)
	ctx := context.Background()

	run := summaryAt("run-1", base)
	require.NoError(t, s.Save(ctx, run))
	run.Error = "fetch orders: boom"
	require.NoError(t, s.Save(ctx, run))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Failed())
}

func TestRetention(t *testing.T) {
	s := setupTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Save(ctx, summaryAt(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.Get(ctx, "run-0")
	assert.Error(t, err)
	last, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-5", last.ID)
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := setupTestStore(t, 0)
	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &coordinator.RunSummary{}))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), summaryAt("run-1", base)))
	require.NoError(t, s.Close())

	reopened, err := Open(path, 10)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, path, reopened.Path())

	last, err := reopened.Last(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.ID)
}

func TestStoreAsCoordinatorHistory(t *testing.T) {
	var _ coordinator.History = (*Store)(nil)
}
