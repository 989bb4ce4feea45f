package studio

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/frame"
	"github.com/YuminosukeSato/scigo-studio/metrics"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/preprocessing"
	"github.com/YuminosukeSato/scigo-studio/sklearn/ensemble"
	"github.com/YuminosukeSato/scigo-studio/sklearn/model_selection"
)

// TrainOptions controls one training run.
type TrainOptions struct {
	// TargetColumn names the label column. Empty selects the last column.
	TargetColumn string
	// TestSize is the held out fraction, in (0, 1).
	TestSize float64
	// Seed makes the split and the forest reproducible. Nil draws from the
	// clock.
	Seed *int64
	// NEstimators is the number of trees.
	NEstimators int
	// NJobs bounds the tree building workers. Zero or -1 uses every CPU.
	NJobs int
}

// DefaultTrainOptions returns an 80/20 split and a 100 tree forest.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{TestSize: 0.2, NEstimators: 100, NJobs: -1}
}

func (o TrainOptions) withDefaults(d TrainOptions) TrainOptions {
	if o.TargetColumn == "" {
		o.TargetColumn = d.TargetColumn
	}
	if o.TestSize == 0 {
		o.TestSize = d.TestSize
	}
	if o.Seed == nil {
		o.Seed = d.Seed
	}
	if o.NEstimators == 0 {
		o.NEstimators = d.NEstimators
	}
	if o.NJobs == 0 {
		o.NJobs = d.NJobs
	}
	return o
}

func (o TrainOptions) randomState() int64 {
	if o.Seed == nil {
		return -1
	}
	return *o.Seed
}

// Seed returns a pointer to seed, for TrainOptions literals.
func Seed(seed int64) *int64 {
	return &seed
}

func train(df *frame.Frame, opts TrainOptions) (*TrainedModel, Metrics, error) {
	if opts.Seed != nil && *opts.Seed < 0 {
		return nil, Metrics{}, errors.NewValidationError("seed", "must be non-negative", *opts.Seed)
	}

	target, features, err := selectColumns(df, opts.TargetColumn)
	if err != nil {
		return nil, Metrics{}, err
	}
	if df.NRows() == 0 {
		return nil, Metrics{}, errors.NewValueErrorf("Train",
			"Found array with 0 sample(s) (shape=(0, %d)) while a minimum of 1 is required.", len(features))
	}

	X, err := df.Matrix(features...)
	if err != nil {
		return nil, Metrics{}, err
	}
	if err := errors.CheckFinite("Train", X); err != nil {
		return nil, Metrics{}, err
	}

	labels, err := targetLabels(target)
	if err != nil {
		return nil, Metrics{}, err
	}
	encoder := preprocessing.NewLabelEncoder()
	codes, err := encoder.FitTransform(labels)
	if err != nil {
		return nil, Metrics{}, err
	}
	y := mat.NewDense(len(codes), 1, codes)

	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(X, y,
		model_selection.WithTestSize(opts.TestSize),
		model_selection.WithRandomState(opts.randomState()))
	if err != nil {
		return nil, Metrics{}, err
	}

	forest := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(opts.NEstimators),
		ensemble.WithRandomState(opts.randomState()),
		ensemble.WithNJobs(opts.NJobs),
	)
	if err := forest.Fit(XTrain, yTrain); err != nil {
		return nil, Metrics{}, err
	}

	pred, err := forest.Predict(XTest)
	if err != nil {
		return nil, Metrics{}, err
	}
	report, err := metrics.NewClassificationReport(yTest, pred)
	if err != nil {
		return nil, Metrics{}, err
	}

	tm := &TrainedModel{
		ID:          uuid.NewString(),
		Features:    features,
		Target:      target.Name(),
		TrainedAt:   time.Now().UTC(),
		DatasetRows: df.NRows(),
		forest:      forest,
		encoder:     encoder,
	}
	return tm, Metrics{
		Accuracy:  report.Accuracy,
		Precision: report.Precision,
		Recall:    report.Recall,
		F1Score:   report.F1,
	}, nil
}

// selectColumns returns the target column and the remaining column names in
// frame order.
func selectColumns(df *frame.Frame, name string) (*frame.Column, []string, error) {
	var target *frame.Column
	if name == "" {
		target = df.ColumnAt(df.NCols() - 1)
	} else {
		c, ok := df.Column(name)
		if !ok {
			return nil, nil, errors.NewValidationError("target", "unknown column", name)
		}
		target = c
	}

	features := make([]string, 0, df.NCols()-1)
	for _, n := range df.Columns() {
		if n != target.Name() {
			features = append(features, n)
		}
	}
	if len(features) == 0 {
		return nil, nil, errors.NewValueErrorf("Train",
			"Found array with 0 feature(s) (shape=(%d, 0)) while a minimum of 1 is required.", df.NRows())
	}
	return target, features, nil
}

// targetLabels turns the target column into class labels. Float columns are
// accepted only when every value is integral.
func targetLabels(c *frame.Column) ([]string, error) {
	if c.MissingCount() > 0 {
		return nil, errors.NewValueError("Train", "Input y contains NaN.")
	}
	if c.Kind() == frame.KindFloat {
		for i := 0; i < c.Len(); i++ {
			v, _ := c.Float(i)
			if math.IsInf(v, 0) || v != math.Trunc(v) {
				return nil, errors.NewValueError("Train",
					"Unknown label type: continuous. Maybe you are trying to fit a classifier, which expects discrete classes on a regression target with continuous values.")
			}
		}
	}

	labels := make([]string, c.Len())
	for i := range labels {
		labels[i] = c.Text(i)
	}
	return labels, nil
}
