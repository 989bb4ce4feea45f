// Package studio holds the upload, train and download operations over the
// two process-wide slots: the current dataset and the current model.
package studio

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/YuminosukeSato/scigo-studio/frame"
	"github.com/YuminosukeSato/scigo-studio/internal/history"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/pkg/log"
)

var (
	// ErrNoDataset is returned by Train before any successful upload.
	ErrNoDataset = errors.New("No dataset uploaded")
	// ErrNoModel is returned by Export before any successful training run.
	ErrNoModel = errors.New("No trained model available")
)

// PreviewRows is the number of rows returned in UploadStats.Preview.
const PreviewRows = 5

// UploadStats summarizes an ingested dataset.
type UploadStats struct {
	Rows          int            `json:"rows"`
	Columns       int            `json:"columns"`
	MissingValues int            `json:"missingValues"`
	Preview       []frame.Record `json:"preview"`
}

// Metrics are the support-weighted scores of a model on its test split.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
}

// Artifact is a serialized model ready for download.
type Artifact struct {
	ModelID string
	Data    []byte
}

// RunRecorder receives one record per successful training run.
type RunRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Session owns the dataset and model slots. It is safe for concurrent use:
// datasets are immutable once parsed and both slots are swapped whole
// under one lock.
type Session struct {
	mu      sync.RWMutex
	dataset *frame.Frame
	model   *TrainedModel

	defaults TrainOptions
	recorder RunRecorder
	logger   log.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l log.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithRunRecorder records every successful training run.
func WithRunRecorder(r RunRecorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithDefaults sets the options used for fields left zero in Train calls.
func WithDefaults(opts TrainOptions) SessionOption {
	return func(s *Session) { s.defaults = opts.withDefaults(DefaultTrainOptions()) }
}

// NewSession returns a session with empty slots.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		defaults: DefaultTrainOptions(),
		logger:   log.GetLoggerWithName("studio"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest parses a CSV payload and replaces the current dataset. The current
// model is kept. On error the previous dataset is left in place.
func (s *Session) Ingest(r io.Reader) (UploadStats, error) {
	start := time.Now()
	df, err := frame.ReadCSV(r)
	if err != nil {
		return UploadStats{}, err
	}

	s.mu.Lock()
	s.dataset = df
	s.mu.Unlock()

	stats := UploadStats{
		Rows:          df.NRows(),
		Columns:       df.NCols(),
		MissingValues: df.MissingCount(),
		Preview:       df.Head(PreviewRows),
	}
	s.logger.Info("Dataset ingested",
		log.OperationKey, log.OperationIngest,
		log.SamplesKey, stats.Rows,
		log.FeaturesKey, stats.Columns,
		log.MissingKey, stats.MissingValues,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return stats, nil
}

// Dataset returns the current dataset.
func (s *Session) Dataset() (*frame.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dataset == nil {
		return nil, ErrNoDataset
	}
	return s.dataset, nil
}

// Model returns the current model.
func (s *Session) Model() (*TrainedModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, ErrNoModel
	}
	return s.model, nil
}

// Train fits a random forest on the current dataset, evaluates it on a held
// out split and replaces the current model. Zero fields of opts take the
// session defaults.
func (s *Session) Train(ctx context.Context, opts TrainOptions) (Metrics, error) {
	if err := ctx.Err(); err != nil {
		return Metrics{}, err
	}

	df, err := s.Dataset()
	if err != nil {
		return Metrics{}, err
	}
	opts = opts.withDefaults(s.defaults)

	start := time.Now()
	tm, metrics, err := train(df, opts)
	if err != nil {
		s.logger.Warn("Training failed",
			log.OperationKey, log.OperationFit,
			log.ErrAttrKey, err)
		return Metrics{}, err
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	s.model = tm
	s.mu.Unlock()

	logger := s.logger.With(log.ModelIDKey, tm.ID, log.ModelNameKey, ModelType)
	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, tm.DatasetRows,
		log.FeaturesKey, len(tm.Features),
		log.TargetKey, tm.Target,
		log.ClassesKey, len(tm.Classes()),
		log.AccuracyKey, metrics.Accuracy,
		log.F1ScoreKey, metrics.F1Score,
		log.DurationMsKey, elapsed.Milliseconds())

	if s.recorder != nil {
		run := history.Run{
			ModelID:    tm.ID,
			Rows:       tm.DatasetRows,
			Features:   tm.Features,
			Target:     tm.Target,
			Accuracy:   metrics.Accuracy,
			Precision:  metrics.Precision,
			Recall:     metrics.Recall,
			F1Score:    metrics.F1Score,
			DurationMs: elapsed.Milliseconds(),
			TrainedAt:  tm.TrainedAt,
		}
		// The run log is an audit trail; a failed write does not undo training.
		if err := s.recorder.Record(ctx, run); err != nil {
			logger.Error("Failed to record training run", err)
		}
	}
	return metrics, nil
}

// Export serializes the current model.
func (s *Session) Export() (Artifact, error) {
	tm, err := s.Model()
	if err != nil {
		return Artifact{}, err
	}

	var buf bytes.Buffer
	if err := tm.Save(&buf); err != nil {
		return Artifact{}, err
	}
	s.logger.Debug("Model exported",
		log.OperationKey, log.OperationExport,
		log.ModelIDKey, tm.ID,
		log.DataSizeKey, buf.Len())
	return Artifact{ModelID: tm.ID, Data: buf.Bytes()}, nil
}
