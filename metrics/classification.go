// Package metrics implements evaluation metrics compatible with
// sklearn.metrics.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// Average selects how per-class scores are combined.
type Average string

const (
	// AverageWeighted weights each class score by its support.
	AverageWeighted Average = "weighted"
	// AverageMacro is the unweighted mean over classes.
	AverageMacro Average = "macro"
	// AverageMicro counts true and false positives globally.
	AverageMicro Average = "micro"
	// AverageBinary reports the score of the positive class 1.
	AverageBinary Average = "binary"
)

// Accuracy returns the fraction of exact matches between yTrue and yPred.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != yTrue.Len() {
		return 0, errors.NewDimensionError(op, yTrue.Len(), yPred.Len(), 0)
	}
	return yTrue.Len(), nil
}

// classCounts holds per-label counts over the sorted union of labels.
type classCounts struct {
	labels  []float64
	tp      []float64
	pred    []float64 // tp + fp
	support []float64 // tp + fn
	n       int
}

func countClasses(op string, yTrue, yPred *mat.VecDense) (*classCounts, error) {
	n, err := checkPair(op, yTrue, yPred)
	if err != nil {
		return nil, err
	}
	labels := unionLabels(yTrue, yPred)
	index := make(map[float64]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	c := &classCounts{
		labels:  labels,
		tp:      make([]float64, len(labels)),
		pred:    make([]float64, len(labels)),
		support: make([]float64, len(labels)),
		n:       n,
	}
	for i := 0; i < n; i++ {
		t, p := index[yTrue.AtVec(i)], index[yPred.AtVec(i)]
		c.support[t]++
		c.pred[p]++
		if t == p {
			c.tp[t]++
		}
	}
	return c, nil
}

func unionLabels(vectors ...*mat.VecDense) []float64 {
	seen := make(map[float64]struct{})
	for _, v := range vectors {
		for i := 0; i < v.Len(); i++ {
			seen[v.AtVec(i)] = struct{}{}
		}
	}
	labels := make([]float64, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Float64s(labels)
	return labels
}

// divide returns num/den per class, with 0 where den is 0. It reports
// whether any class hit a zero denominator.
func divide(num, den []float64) ([]float64, bool) {
	out := make([]float64, len(num))
	undefined := false
	for k := range num {
		if den[k] == 0 {
			undefined = true
			continue
		}
		out[k] = num[k] / den[k]
	}
	return out, undefined
}

func (c *classCounts) average(op string, perClass []float64, average Average, micro func() float64) (float64, error) {
	switch average {
	case AverageWeighted:
		total, sum := 0.0, 0.0
		for k, s := range perClass {
			sum += s * c.support[k]
			total += c.support[k]
		}
		return errors.SafeDivide(sum, total), nil
	case AverageMacro:
		sum := 0.0
		for _, s := range perClass {
			sum += s
		}
		return sum / float64(len(perClass)), nil
	case AverageMicro:
		return micro(), nil
	case AverageBinary:
		if len(c.labels) > 2 {
			return 0, errors.NewValueError(op,
				"Target is multiclass but average='binary'. Please choose another average setting, one of [None, 'micro', 'macro', 'weighted'].")
		}
		for k, l := range c.labels {
			if l == 1 {
				return perClass[k], nil
			}
		}
		if len(c.labels) == 2 {
			return 0, errors.NewValueErrorf(op, "pos_label=1 is not a valid label. It should be one of %v", c.labels)
		}
		return 0, nil
	default:
		return 0, errors.NewValidationError("average", "must be weighted, macro, micro or binary", string(average))
	}
}

// PrecisionScore returns tp / (tp + fp) combined over classes.
//
// A class that is never predicted has precision 0; an
// UndefinedMetricWarning is emitted through errors.Warn when that happens.
func PrecisionScore(yTrue, yPred *mat.VecDense, average Average) (float64, error) {
	c, err := countClasses("PrecisionScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	perClass, undefined := divide(c.tp, c.pred)
	if undefined && average != AverageMicro {
		errors.Warn(errors.NewUndefinedMetricWarning("Precision", "no predicted samples", 0))
	}
	return c.average("PrecisionScore", perClass, average, c.microScore)
}

// RecallScore returns tp / (tp + fn) combined over classes. With
// AverageWeighted it equals the accuracy.
func RecallScore(yTrue, yPred *mat.VecDense, average Average) (float64, error) {
	c, err := countClasses("RecallScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	perClass, undefined := divide(c.tp, c.support)
	if undefined && average != AverageMicro {
		errors.Warn(errors.NewUndefinedMetricWarning("Recall", "no true samples", 0))
	}
	return c.average("RecallScore", perClass, average, c.microScore)
}

// F1Score returns the harmonic mean of precision and recall,
// 2tp / (2tp + fp + fn), combined over classes.
func F1Score(yTrue, yPred *mat.VecDense, average Average) (float64, error) {
	c, err := countClasses("F1Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	num := make([]float64, len(c.labels))
	den := make([]float64, len(c.labels))
	for k := range c.labels {
		num[k] = 2 * c.tp[k]
		den[k] = c.pred[k] + c.support[k]
	}
	perClass, undefined := divide(num, den)
	if undefined && average != AverageMicro {
		errors.Warn(errors.NewUndefinedMetricWarning("F-score", "no true nor predicted samples", 0))
	}
	return c.average("F1Score", perClass, average, c.microScore)
}

// microScore is the global tp / n. For single-label multiclass data
// micro precision, recall and F1 all equal the accuracy.
func (c *classCounts) microScore() float64 {
	tp := 0.0
	for _, v := range c.tp {
		tp += v
	}
	return tp / float64(c.n)
}

// ConfusionMatrix returns counts C where C[i][j] is the number of samples
// of true label labels[i] predicted as labels[j]. labels is the sorted union
// of both vectors.
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, []float64, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	labels := unionLabels(yTrue, yPred)
	index := make(map[float64]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		t, p := index[yTrue.AtVec(i)], index[yPred.AtVec(i)]
		cm.Set(t, p, cm.At(t, p)+1)
	}
	return cm, labels, nil
}

// ClassificationReport bundles accuracy with support-weighted precision,
// recall and F1.
type ClassificationReport struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// NewClassificationReport evaluates n x 1 label matrices, typically the
// output of a classifier's Predict.
func NewClassificationReport(yTrue, yPred mat.Matrix) (ClassificationReport, error) {
	t, err := columnVec("ClassificationReport", yTrue)
	if err != nil {
		return ClassificationReport{}, err
	}
	p, err := columnVec("ClassificationReport", yPred)
	if err != nil {
		return ClassificationReport{}, err
	}

	var r ClassificationReport
	if r.Accuracy, err = Accuracy(t, p); err != nil {
		return ClassificationReport{}, err
	}
	if r.Precision, err = PrecisionScore(t, p, AverageWeighted); err != nil {
		return ClassificationReport{}, err
	}
	if r.Recall, err = RecallScore(t, p, AverageWeighted); err != nil {
		return ClassificationReport{}, err
	}
	if r.F1, err = F1Score(t, p, AverageWeighted); err != nil {
		return ClassificationReport{}, err
	}
	r.Support = t.Len()
	return r, nil
}

func columnVec(op string, m mat.Matrix) (*mat.VecDense, error) {
	rows, cols := m.Dims()
	if rows == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	if cols != 1 {
		return nil, errors.NewValueError(op, "must be a column vector (n×1 matrix)")
	}
	return mat.NewVecDense(rows, mat.Col(nil, 0, m)), nil
}
