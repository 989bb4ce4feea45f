// Package ensemble implements tree ensembles compatible with
// sklearn.ensemble.
package ensemble

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/core/model"
	"github.com/YuminosukeSato/scigo-studio/core/parallel"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/pkg/log"
	"github.com/YuminosukeSato/scigo-studio/sklearn/tree"
)

// RandomForestClassifier averages the class probabilities of decision
// trees fitted on bootstrap draws, like sklearn.ensemble.RandomForestClassifier.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int // -1 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     int64 // -1 means seeded from the clock
	nJobs           int   // -1 means one worker per CPU

	// Fitted attributes
	estimators_         []*tree.DecisionTreeClassifier
	classes_            []float64
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64

	mu sync.RWMutex
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree.
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits the depth of every tree. -1 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets min_samples_split of every tree.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the features tried per split: "sqrt", "log2" or ""
// for all.
func WithMaxFeatures(mode string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = mode }
}

// WithBootstrap toggles bootstrap draws. Without it every tree sees all
// rows and only the feature permutation differs.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithRandomState makes the draws and feature permutations reproducible.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of trees fitted concurrently. -1 uses every CPU.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a forest with scikit-learn defaults:
// 100 trees, gini, unlimited depth, max_features="sqrt", bootstrap.
//
// Example:
//
//	rf := ensemble.NewRandomForestClassifier(ensemble.WithRandomState(42))
//	err := rf.Fit(XTrain, yTrain)
//	pred, err := rf.Predict(XTest)
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
		nJobs:           -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit grows nEstimators trees on X (n_samples x n_features) and y
// (n_samples x 1).
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != rows {
		return errors.NewDimensionError("RandomForestClassifier.Fit", rows, yRows, 0)
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if err := errors.CheckFinite("RandomForestClassifier.Fit", X); err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.random_forest")
	start := time.Now()
	logger.Debug("Fitting RandomForestClassifier",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.EstimatorsKey, rf.nEstimators)

	Xd := mat.DenseCopyOf(X)
	yd := mat.DenseCopyOf(y)

	// Seeds and draws come from one source before any goroutine starts, so
	// a fixed random state gives the same forest for any nJobs.
	src := rf.newRand()
	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	draws := make([][]int, rf.nEstimators)
	for i := range trees {
		trees[i] = tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(rf.maxFeatures),
			tree.WithRandomState(src.Int63()),
		)
		draws[i] = rf.draw(src, rows)
	}

	errs := make([]error, rf.nEstimators)
	parallel.ParallelizeN(rf.nEstimators, rf.nJobs, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			errs[i] = fitTree(trees[i], Xd, yd, draws[i])
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	rf.estimators_ = trees
	rf.classes_ = trees[0].Classes()
	rf.nClasses_ = len(rf.classes_)
	rf.nFeatures_ = cols
	rf.featureImportances_ = meanImportances(trees, cols)
	rf.state.SetFitted(cols, rows, rf.nClasses_)

	logger.Debug("RandomForestClassifier fitted",
		log.ClassesKey, rf.nClasses_,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}

func fitTree(t *tree.DecisionTreeClassifier, X, y *mat.Dense, samples []int) (err error) {
	defer errors.Recover(&err, "RandomForestClassifier.Fit")
	return t.FitSamples(X, y, samples)
}

func (rf *RandomForestClassifier) newRand() *rand.Rand {
	if rf.randomState >= 0 {
		return rand.New(rand.NewSource(rf.randomState))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// draw returns the rows a tree is fitted on: n rows with replacement when
// bootstrapping, every row otherwise.
func (rf *RandomForestClassifier) draw(src *rand.Rand, n int) []int {
	samples := make([]int, n)
	for i := range samples {
		if rf.bootstrap {
			samples[i] = src.Intn(n)
		} else {
			samples[i] = i
		}
	}
	if rf.bootstrap {
		sort.Ints(samples)
	}
	return samples
}

// meanImportances averages the importances of trees that split at least
// once and renormalizes the result.
func meanImportances(trees []*tree.DecisionTreeClassifier, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	used := 0
	for _, t := range trees {
		if t.GetNLeaves() < 2 {
			continue
		}
		for j, v := range t.GetFeatureImportances() {
			out[j] += v
		}
		used++
	}
	if used == 0 {
		return out
	}
	total := 0.0
	for j := range out {
		out[j] /= float64(used)
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// PredictProba averages the class probabilities of every tree. Columns
// follow Classes().
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rf.mu.RLock()
	defer rf.mu.RUnlock()

	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestClassifier.PredictProba", cols); err != nil {
		return nil, err
	}

	sum := mat.NewDense(rows, rf.nClasses_, nil)
	for _, t := range rf.estimators_ {
		p, err := t.PredictProba(X)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, p)
	}
	sum.Scale(1/float64(len(rf.estimators_)), sum)
	return sum, nil
}

// Predict returns the class with the highest mean probability for every
// row of X as an n_samples x 1 matrix.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		row := mat.Row(nil, i, proba)
		best := 0
		for k, p := range row {
			if p > row[best] {
				best = k
			}
		}
		out.Set(i, 0, rf.classes_[best])
	}
	return out, nil
}

// Score returns the mean accuracy on X and y, or 0 when prediction fails.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	rows, _ := pred.Dims()
	if yRows, _ := y.Dims(); yRows != rows || rows == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

// Classes returns the sorted class labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []float64 {
	out := make([]float64, len(rf.classes_))
	copy(out, rf.classes_)
	return out
}

// GetFeatureImportances returns the mean impurity decrease per feature,
// normalized to sum to 1.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(rf.featureImportances_))
	copy(out, rf.featureImportances_)
	return out
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// NFeatures returns the number of features seen during Fit.
func (rf *RandomForestClassifier) NFeatures() int {
	return rf.nFeatures_
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
	if rf.maxDepth < 0 {
		params["max_depth"] = nil
	}
	return params
}

// SetParams updates hyperparameters.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "n_estimators":
			rf.nEstimators, ok = value.(int)
		case "criterion":
			rf.criterion, ok = value.(string)
		case "max_depth":
			if value == nil {
				rf.maxDepth, ok = -1, true
			} else {
				rf.maxDepth, ok = value.(int)
			}
		case "min_samples_split":
			rf.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			rf.minSamplesLeaf, ok = value.(int)
		case "max_features":
			rf.maxFeatures, ok = value.(string)
		case "bootstrap":
			rf.bootstrap, ok = value.(bool)
		case "random_state":
			rf.randomState, ok = value.(int64)
		case "n_jobs":
			rf.nJobs, ok = value.(int)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}

// forestSnapshot is the gob form of a fitted forest. Trees encode
// themselves through their own GobEncode.
type forestSnapshot struct {
	NEstimators        int
	Criterion          string
	MaxDepth           int
	MinSamplesSplit    int
	MinSamplesLeaf     int
	MaxFeatures        string
	Bootstrap          bool
	RandomState        int64
	NJobs              int
	Estimators         []*tree.DecisionTreeClassifier
	Classes            []float64
	NFeatures          int
	FeatureImportances []float64
	State              model.ModelState
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return model.EncodeSnapshot(forestSnapshot{
		NEstimators:        rf.nEstimators,
		Criterion:          rf.criterion,
		MaxDepth:           rf.maxDepth,
		MinSamplesSplit:    rf.minSamplesSplit,
		MinSamplesLeaf:     rf.minSamplesLeaf,
		MaxFeatures:        rf.maxFeatures,
		Bootstrap:          rf.bootstrap,
		RandomState:        rf.randomState,
		NJobs:              rf.nJobs,
		Estimators:         rf.estimators_,
		Classes:            rf.classes_,
		NFeatures:          rf.nFeatures_,
		FeatureImportances: rf.featureImportances_,
		State:              rf.state.GetState(),
	})
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var snap forestSnapshot
	if err := model.DecodeSnapshot(data, &snap); err != nil {
		return err
	}
	rf.mu.Lock()
	defer rf.mu.Unlock()

	rf.nEstimators = snap.NEstimators
	rf.criterion = snap.Criterion
	rf.maxDepth = snap.MaxDepth
	rf.minSamplesSplit = snap.MinSamplesSplit
	rf.minSamplesLeaf = snap.MinSamplesLeaf
	rf.maxFeatures = snap.MaxFeatures
	rf.bootstrap = snap.Bootstrap
	rf.randomState = snap.RandomState
	rf.nJobs = snap.NJobs
	rf.estimators_ = snap.Estimators
	rf.classes_ = snap.Classes
	rf.nClasses_ = len(snap.Classes)
	rf.nFeatures_ = snap.NFeatures
	rf.featureImportances_ = snap.FeatureImportances
	rf.state = model.NewStateManager()
	rf.state.SetState(snap.State)
	return nil
}
