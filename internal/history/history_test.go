package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.Record(ctx, Run{
			ModelID:    fmt.Sprintf("model-%d", i),
			Rows:       100 + i,
			Features:   []string{"a", "b"},
			Target:     "label",
			Accuracy:   0.5 + float64(i)/10,
			Precision:  0.4,
			Recall:     0.5 + float64(i)/10,
			F1Score:    0.45,
			DurationMs: 12,
			TrainedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	latest := runs[0]
	assert.Equal(t, "model-2", latest.ModelID)
	assert.Equal(t, 102, latest.Rows)
	assert.Equal(t, []string{"a", "b"}, latest.Features)
	assert.Equal(t, "label", latest.Target)
	assert.InDelta(t, 0.7, latest.Accuracy, 1e-9)
	assert.True(t, latest.TrainedAt.Equal(base.Add(2*time.Minute)), "trained_at = %v", latest.TrainedAt)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "model-1", limited[1].ModelID)
}

func TestStore_DuplicateModelID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	run := Run{ModelID: "same", Features: []string{}, Target: "y", TrainedAt: time.Now()}

	require.NoError(t, s.Record(ctx, run))
	assert.Error(t, s.Record(ctx, run))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Run{ModelID: "persisted", Features: []string{"x"}, Target: "y", TrainedAt: time.Now()}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].ModelID)
}

func TestStore_EmptyList(t *testing.T) {
	runs, err := newStore(t).List(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}
