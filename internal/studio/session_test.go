package studio

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scigo-studio/internal/history"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/pkg/log"
)

// blobsCSV returns n rows of two well separated classes with string labels.
func blobsCSV(n int) string {
	var b strings.Builder
	b.WriteString("width,height,flag,species\n")
	for i := 0; i < n; i++ {
		jitter := float64(i%7) / 10
		if i%2 == 0 {
			fmt.Fprintf(&b, "%.2f,%.2f,%t,setosa\n", 1+jitter, 2+jitter, i%3 == 0)
		} else {
			fmt.Fprintf(&b, "%.2f,%.2f,%t,virginica\n", 6+jitter, 7+jitter, i%3 == 0)
		}
	}
	return b.String()
}

func newTestSession(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	opts = append([]SessionOption{
		WithLogger(logger),
		WithDefaults(TrainOptions{NEstimators: 10, Seed: Seed(0)}),
	}, opts...)
	return NewSession(opts...)
}

func ingest(t *testing.T, s *Session, csv string) UploadStats {
	t.Helper()
	stats, err := s.Ingest(strings.NewReader(csv))
	require.NoError(t, err)
	return stats
}

func TestSession_EmptySlots(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Train(context.Background(), TrainOptions{})
	assert.True(t, errors.Is(err, ErrNoDataset), "err = %v", err)

	_, err = s.Export()
	assert.True(t, errors.Is(err, ErrNoModel), "err = %v", err)
}

func TestSession_Ingest(t *testing.T) {
	s := newTestSession(t)

	stats := ingest(t, s, "a,b,c\n1,x,\n2,,3.5\n3,z,4\n4,w,5\n5,v,6\n6,u,7\n")
	assert.Equal(t, 6, stats.Rows)
	assert.Equal(t, 3, stats.Columns)
	assert.Equal(t, 2, stats.MissingValues)
	require.Len(t, stats.Preview, PreviewRows)

	v, ok := stats.Preview[0].Get("c")
	require.True(t, ok)
	assert.Nil(t, v)
	v, _ = stats.Preview[1].Get("c")
	assert.Equal(t, 3.5, v)
}

func TestSession_IngestErrorKeepsDataset(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, "a,b\n1,2\n")

	_, err := s.Ingest(strings.NewReader(""))
	var pe *errors.ParseError
	require.True(t, errors.As(err, &pe), "err = %v", err)

	df, err := s.Dataset()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, df.Columns())
}

func TestSession_Train(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(60))

	m, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)

	for name, v := range map[string]float64{
		"accuracy": m.Accuracy, "precision": m.Precision, "recall": m.Recall, "f1": m.F1Score,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.GreaterOrEqual(t, m.Accuracy, 0.9)
	assert.InDelta(t, m.Accuracy, m.Recall, 1e-12, "weighted recall equals accuracy")

	tm, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, "species", tm.Target)
	assert.Equal(t, []string{"width", "height", "flag"}, tm.Features)
	assert.Equal(t, []string{"setosa", "virginica"}, tm.Classes())
	assert.Equal(t, 60, tm.DatasetRows)
	assert.NotEmpty(t, tm.ID)
	assert.Len(t, tm.Forest().Estimators(), 10)
}

func TestSession_TrainSeedIsReproducible(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(40))

	first, err := s.Train(context.Background(), TrainOptions{Seed: Seed(11)})
	require.NoError(t, err)
	second, err := s.Train(context.Background(), TrainOptions{Seed: Seed(11)})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSession_TrainTargetColumn(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, "label,x\nyes,1\nno,10\nyes,2\nno,11\nyes,3\nno,12\n")

	_, err := s.Train(context.Background(), TrainOptions{TargetColumn: "label"})
	require.NoError(t, err)
	tm, _ := s.Model()
	assert.Equal(t, []string{"x"}, tm.Features)
	assert.Equal(t, []string{"no", "yes"}, tm.Classes())

	_, err = s.Train(context.Background(), TrainOptions{TargetColumn: "absent"})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve), "err = %v", err)
}

func TestSession_TrainValueErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{name: "string feature", csv: "f,y\na,0\nb,1\nc,0\nd,1\n", want: "could not convert string to float"},
		{name: "missing feature", csv: "f,y\n1,0\n,1\n3,0\n4,1\n", want: "Input X contains NaN"},
		{name: "continuous target", csv: "f,y\n1,0.5\n2,1.5\n3,0.25\n4,1\n", want: "Unknown label type: continuous"},
		{name: "missing target", csv: "f,y\n1,a\n2,\n3,b\n4,a\n", want: "Input y contains NaN"},
		{name: "single column", csv: "y\n1\n2\n", want: "0 feature(s)"},
		{name: "header only", csv: "f,y\n", want: "0 sample(s)"},
		{name: "single row", csv: "f,y\n1,0\n", want: "the resulting train set will be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t)
			ingest(t, s, tt.csv)

			_, err := s.Train(context.Background(), TrainOptions{})
			var ve *errors.ValueError
			require.True(t, errors.As(err, &ve), "err = %v", err)
			assert.Contains(t, err.Error(), tt.want)

			_, err = s.Model()
			assert.True(t, errors.Is(err, ErrNoModel), "a failed run must not set a model")
		})
	}
}

func TestSession_TrainIntegralFloatTarget(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, "f,y\n1,0.0\n2,1.0\n3,0.0\n4,1.0\n5,0.0\n6,1.0\n")

	_, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	tm, _ := s.Model()
	assert.Equal(t, []string{"0", "1"}, tm.Classes())
}

func TestSession_TrainCancelledContext(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(20))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Train(ctx, TrainOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_UploadKeepsStaleModel(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(30))
	_, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	before, err := s.Export()
	require.NoError(t, err)

	ingest(t, s, "other,columns\n1,2\n")

	after, err := s.Export()
	require.NoError(t, err)
	assert.Equal(t, before.ModelID, after.ModelID)
}

func TestSession_ExportLoadPredict(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(40))
	_, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)

	artifact, err := s.Export()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(artifact.Data, []byte("SCGO")))

	loaded, err := LoadTrainedModel(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	assert.Equal(t, artifact.ModelID, loaded.ID)
	assert.Equal(t, []string{"width", "height", "flag"}, loaded.Features)

	labels, err := loaded.Predict([]map[string]float64{
		{"width": 1.1, "height": 2.1, "flag": 0},
		{"width": 6.2, "height": 7.2, "flag": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"setosa", "virginica"}, labels)

	_, err = loaded.Predict([]map[string]float64{{"width": 1}})
	assert.Error(t, err)

	_, err = LoadTrainedModel(strings.NewReader("not a model"))
	assert.Error(t, err)
}

func TestTrainedModel_Importances(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(40))
	_, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	tm, _ := s.Model()

	imps := tm.Importances()
	require.Len(t, imps, 3)
	sum := 0.0
	for i, imp := range imps {
		sum += imp.Importance
		if i > 0 {
			assert.GreaterOrEqual(t, imps[i-1].Importance, imp.Importance)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, "flag", imps[2].Name, "the noise feature ranks last")
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []history.Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run history.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

func TestSession_RecordsRuns(t *testing.T) {
	rec := &fakeRecorder{}
	s := newTestSession(t, WithRunRecorder(rec))
	ingest(t, s, blobsCSV(30))

	m, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	tm, _ := s.Model()

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, tm.ID, run.ModelID)
	assert.Equal(t, 30, run.Rows)
	assert.Equal(t, "species", run.Target)
	assert.Equal(t, m.Accuracy, run.Accuracy)
	assert.Equal(t, m.F1Score, run.F1Score)
}

func TestSession_RecorderFailureKeepsModel(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	s := newTestSession(t, WithRunRecorder(rec))
	ingest(t, s, blobsCSV(30))

	_, err := s.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	_, err = s.Model()
	assert.NoError(t, err)
}

func TestSession_ConcurrentUse(t *testing.T) {
	s := newTestSession(t)
	ingest(t, s, blobsCSV(30))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = s.Ingest(strings.NewReader(blobsCSV(30)))
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Train(context.Background(), TrainOptions{NJobs: 1})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Export()
		}()
	}
	wg.Wait()

	_, err := s.Model()
	assert.NoError(t, err)
}
