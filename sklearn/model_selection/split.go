// Package model_selection provides dataset splitting compatible with
// sklearn.model_selection.
package model_selection

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

type splitConfig struct {
	testSize    float64
	randomState int64
	shuffle     bool
}

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

// WithTestSize sets the fraction of rows held out, in (0, 1).
func WithTestSize(size float64) SplitOption {
	return func(c *splitConfig) { c.testSize = size }
}

// WithRandomState fixes the shuffle. A negative seed uses the clock.
func WithRandomState(seed int64) SplitOption {
	return func(c *splitConfig) { c.randomState = seed }
}

// WithShuffle toggles shuffling. Without it the last rows form the test
// set.
func WithShuffle(shuffle bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = shuffle }
}

// TrainTestSplit splits X and y into random train and test subsets.
//
// The test set has ceil(testSize * n) rows and the train set the rest, as
// in scikit-learn. The default test size is 0.25; pass WithTestSize(0.2) for
// an 80/20 split. No stratification is done.
//
// Parameters:
//   - X: samples (n_samples x n_features)
//   - y: targets (n_samples x 1)
//
// Returns:
//   - XTrain, XTest, yTrain, yTest: copies of the selected rows
//   - error: ValueError when a partition would be empty
//
// Example:
//
//	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(X, y,
//	    model_selection.WithTestSize(0.2), model_selection.WithRandomState(42))
func TrainTestSplit(X, y mat.Matrix, opts ...SplitOption) (XTrain, XTest, yTrain, yTest *mat.Dense, err error) {
	cfg := splitConfig{testSize: 0.25, randomState: -1, shuffle: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, _ := X.Dims()
	if yRows, _ := y.Dims(); yRows != n {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainTestSplit", n, yRows, 0)
	}
	if cfg.testSize <= 0 || cfg.testSize >= 1 {
		return nil, nil, nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", cfg.testSize)
	}

	nTest := int(math.Ceil(cfg.testSize * float64(n)))
	nTrain := n - nTest
	if nTrain <= 0 || nTest <= 0 {
		return nil, nil, nil, nil, errors.NewValueErrorf("TrainTestSplit",
			"With n_samples=%d, test_size=%v and train_size=None, the resulting train set will be empty. Adjust any of the aforementioned parameters.",
			n, cfg.testSize)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if cfg.shuffle {
		seed := cfg.randomState
		if seed < 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	// Test rows come first in the permutation, as ShuffleSplit does.
	testIdx, trainIdx := order[:nTest], order[nTest:]
	if !cfg.shuffle {
		trainIdx, testIdx = order[:nTrain], order[nTrain:]
	}

	return takeRows(X, trainIdx), takeRows(X, testIdx), takeRows(y, trainIdx), takeRows(y, testIdx), nil
}

func takeRows(m mat.Matrix, rows []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		for j := 0; j < cols; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}
