// Package tree implements CART decision trees compatible with
// scikit-learn's sklearn.tree module.
package tree

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/core/model"
	"github.com/YuminosukeSato/scigo-studio/core/parallel"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// parallelPredictThreshold is the row count above which prediction is
// spread over CPU cores.
const parallelPredictThreshold = 1024

// DecisionTreeClassifier is a CART classifier compatible with
// sklearn.tree.DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // -1 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "", "sqrt" or "log2"
	randomState     int64  // -1 means seeded from the clock

	// Fitted attributes
	nodes               []node
	classes_            []float64
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64

	mu  sync.RWMutex
	rng *rand.Rand
}

// node is one entry of the flattened tree. Leaves have Feature == -1.
type node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64 // class distribution of the training samples
	NSamples  int
	Impurity  float64
	Depth     int
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure, "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth limits the depth of the tree. -1 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many features are considered at each split:
// "sqrt", "log2", or "" for all of them.
func WithMaxFeatures(mode string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = mode
	}
}

// WithRandomState seeds the feature permutation at each split.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults:
// gini, unlimited depth, min_samples_split=2, min_samples_leaf=1, all
// features.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	dt.resetRNG()
	return dt
}

func (dt *DecisionTreeClassifier) resetRNG() {
	if dt.randomState >= 0 {
		dt.rng = rand.New(rand.NewSource(dt.randomState))
	} else {
		dt.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// Fit builds the tree from X (n_samples x n_features) and y
// (n_samples x 1).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	rows, _ := X.Dims()
	samples := make([]int, rows)
	for i := range samples {
		samples[i] = i
	}
	return dt.FitSamples(X, y, samples)
}

// FitSamples builds the tree from the rows of X listed in samples. Rows may
// repeat, as in a bootstrap draw. Classes are taken from every row of y so
// trees of a forest fitted on different draws share one class order.
func (dt *DecisionTreeClassifier) FitSamples(X, y mat.Matrix, samples []int) error {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", rows, yRows, 0)
	}
	if len(samples) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if err := errors.CheckFinite("DecisionTreeClassifier.Fit", X); err != nil {
		return err
	}
	if err := dt.validateParams(); err != nil {
		return err
	}

	classes, labels := encodeClasses(y)
	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = cols

	b := &builder{
		X:         asDense(X),
		labels:    labels,
		nClasses:  len(classes),
		nFeatures: cols,
		tree:      dt,
		maxFeats:  resolveMaxFeatures(dt.maxFeatures, cols),
		impurity:  impurityFunc(dt.criterion),
		gains:     make([]float64, cols),
	}
	work := make([]int, len(samples))
	copy(work, samples)
	dt.nodes = b.build(work)
	dt.featureImportances_ = normalize(b.gains)

	dt.state.SetFitted(cols, len(samples), len(classes))
	return nil
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch dt.criterion {
	case "gini", "entropy":
	default:
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	switch dt.maxFeatures {
	case "", "sqrt", "log2":
	default:
		return errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or empty", dt.maxFeatures)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	if dt.maxDepth == 0 || dt.maxDepth < -1 {
		return errors.NewValidationError("max_depth", "must be positive or -1", dt.maxDepth)
	}
	return nil
}

// encodeClasses returns the sorted unique labels of y and the class index
// of every row.
func encodeClasses(y mat.Matrix) ([]float64, []int) {
	rows, _ := y.Dims()
	seen := make(map[float64]struct{})
	for i := 0; i < rows; i++ {
		seen[y.At(i, 0)] = struct{}{}
	}
	classes := make([]float64, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i] = index[y.At(i, 0)]
	}
	return classes, labels
}

// Predict returns the most probable class of every row of X as an
// n_samples x 1 matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, dt.classes_[argmax(mat.Row(nil, i, proba))])
	}
	return out, nil
}

// PredictProba returns the class distribution of the leaf reached by each
// row of X. Columns follow Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	dt.mu.RLock()
	defer dt.mu.RUnlock()

	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeClassifier.PredictProba", cols); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, dt.nClasses_, nil)
	parallel.ParallelizeWithThreshold(rows, parallelPredictThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			out.SetRow(i, dt.nodes[dt.apply(row)].Value)
		}
	})
	return out, nil
}

// apply returns the index of the leaf reached by x.
func (dt *DecisionTreeClassifier) apply(x []float64) int {
	i := 0
	for dt.nodes[i].Feature >= 0 {
		n := dt.nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Score returns the mean accuracy on X and y. It returns 0 when the tree
// is not fitted or the shapes do not match.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) Classes() []float64 {
	out := make([]float64, len(dt.classes_))
	copy(out, dt.classes_)
	return out
}

// GetFeatureImportances returns the normalized total impurity decrease per
// feature. The values sum to 1 unless the tree is a single leaf.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(dt.featureImportances_))
	copy(out, dt.featureImportances_)
	return out
}

// GetDepth returns the depth of the tree; a single leaf has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int {
	depth := 0
	for _, n := range dt.nodes {
		if n.Depth > depth {
			depth = n.Depth
		}
	}
	return depth
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	leaves := 0
	for _, n := range dt.nodes {
		if n.Feature < 0 {
			leaves++
		}
	}
	return leaves
}

// IsFitted reports whether the tree has been fitted.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
	if dt.maxDepth < 0 {
		params["max_depth"] = nil
	}
	return params
}

// SetParams updates hyperparameters. Unknown keys and values of the wrong
// type are a ValidationError.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion", "max_features":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			if key == "criterion" {
				dt.criterion = s
			} else {
				dt.maxFeatures = s
			}
		case "max_depth":
			if value == nil {
				dt.maxDepth = -1
				continue
			}
			n, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			dt.maxDepth = n
		case "min_samples_split", "min_samples_leaf":
			n, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			if key == "min_samples_split" {
				dt.minSamplesSplit = n
			} else {
				dt.minSamplesLeaf = n
			}
		case "random_state":
			seed, ok := value.(int64)
			if !ok {
				return errors.NewValidationError(key, "must be an int64", value)
			}
			dt.randomState = seed
			dt.resetRNG()
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validateParams()
}

func asDense(X mat.Matrix) *mat.Dense {
	if d, ok := X.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(X)
}

func resolveMaxFeatures(mode string, nFeatures int) int {
	var k int
	switch mode {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	default:
		k = nFeatures
	}
	if k < 1 {
		k = 1
	}
	return k
}

func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// treeSnapshot is the gob form of a fitted DecisionTreeClassifier.
type treeSnapshot struct {
	Criterion          string
	MaxDepth           int
	MinSamplesSplit    int
	MinSamplesLeaf     int
	MaxFeatures        string
	RandomState        int64
	Nodes              []node
	Classes            []float64
	NFeatures          int
	FeatureImportances []float64
	State              model.ModelState
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return model.EncodeSnapshot(treeSnapshot{
		Criterion:          dt.criterion,
		MaxDepth:           dt.maxDepth,
		MinSamplesSplit:    dt.minSamplesSplit,
		MinSamplesLeaf:     dt.minSamplesLeaf,
		MaxFeatures:        dt.maxFeatures,
		RandomState:        dt.randomState,
		Nodes:              dt.nodes,
		Classes:            dt.classes_,
		NFeatures:          dt.nFeatures_,
		FeatureImportances: dt.featureImportances_,
		State:              dt.state.GetState(),
	})
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var snap treeSnapshot
	if err := model.DecodeSnapshot(data, &snap); err != nil {
		return err
	}
	dt.mu.Lock()
	defer dt.mu.Unlock()

	dt.criterion = snap.Criterion
	dt.maxDepth = snap.MaxDepth
	dt.minSamplesSplit = snap.MinSamplesSplit
	dt.minSamplesLeaf = snap.MinSamplesLeaf
	dt.maxFeatures = snap.MaxFeatures
	dt.randomState = snap.RandomState
	dt.nodes = snap.Nodes
	dt.classes_ = snap.Classes
	dt.nClasses_ = len(snap.Classes)
	dt.nFeatures_ = snap.NFeatures
	dt.featureImportances_ = snap.FeatureImportances
	dt.state = model.NewStateManager()
	dt.state.SetState(snap.State)
	dt.resetRNG()
	return nil
}
