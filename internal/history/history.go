// Package history keeps an audit log of training runs in SQLite. Models
// themselves are never stored.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    model_id    TEXT NOT NULL UNIQUE,
    data_points INTEGER NOT NULL,
    features    TEXT NOT NULL,
    target      TEXT NOT NULL,
    accuracy    REAL,
    precision   REAL,
    recall      REAL,
    f1_score    REAL,
    duration_ms INTEGER,
    trained_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log (trained_at);
`

// Run is one training run.
type Run struct {
	ModelID    string    `json:"id"`
	Rows       int       `json:"rows"`
	Features   []string  `json:"features"`
	Target     string    `json:"target"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1Score    float64   `json:"f1Score"`
	DurationMs int64     `json:"durationMs"`
	TrainedAt  time.Time `json:"trainedAt"`
}

// Store is a SQLite backed run log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory log.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}
	// One connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create training_log")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a run.
func (s *Store) Record(ctx context.Context, run Run) error {
	features, err := json.Marshal(run.Features)
	if err != nil {
		return errors.Wrap(err, "encode features")
	}

	query, args, err := sq.Insert("training_log").
		Columns("model_id", "data_points", "features", "target",
			"accuracy", "precision", "recall", "f1_score", "duration_ms", "trained_at").
		Values(run.ModelID, run.Rows, string(features), run.Target,
			run.Accuracy, run.Precision, run.Recall, run.F1Score, run.DurationMs, run.TrainedAt.UTC()).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert")
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "insert training run")
	}
	return nil
}

// List returns the most recent runs first. limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	builder := sq.Select("model_id", "data_points", "features", "target",
		"accuracy", "precision", "recall", "f1_score", "duration_ms", "trained_at").
		From("training_log").
		OrderBy("trained_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query training runs")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run      Run
			features string
		)
		if err := rows.Scan(&run.ModelID, &run.Rows, &features, &run.Target,
			&run.Accuracy, &run.Precision, &run.Recall, &run.F1Score, &run.DurationMs, &run.TrainedAt); err != nil {
			return nil, errors.Wrap(err, "scan training run")
		}
		if err := json.Unmarshal([]byte(features), &run.Features); err != nil {
			return nil, errors.Wrap(err, "decode features")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate training runs")
	}
	return runs, nil
}
