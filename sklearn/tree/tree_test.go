package tree

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// separable returns two well separated blobs.
func separable() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		3, 3,
		3, 4,
		4, 3,
		4, 4,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	return X, y
}

func TestDecisionTreeClassifier_FitPredict(t *testing.T) {
	X, y := separable()

	dt := NewDecisionTreeClassifier(WithCriterion("gini"), WithMaxDepth(5))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := dt.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := 0; i < 8; i++ {
		if pred.At(i, 0) != y.At(i, 0) {
			t.Errorf("sample %d: got %v, want %v", i, pred.At(i, 0), y.At(i, 0))
		}
	}

	unseen := mat.NewDense(2, 2, []float64{0.5, 0.5, 3.5, 3.5})
	pred, err = dt.Predict(unseen)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if pred.At(0, 0) != 0 || pred.At(1, 0) != 1 {
		t.Errorf("unseen predictions = [%v %v], want [0 1]", pred.At(0, 0), pred.At(1, 0))
	}
}

func TestDecisionTreeClassifier_PredictManyRows(t *testing.T) {
	X, y := separable()
	dt := NewDecisionTreeClassifier()
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	n := 3*parallelPredictThreshold + 7
	big := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		v := 0.5
		if i%2 == 1 {
			v = 3.5
		}
		big.Set(i, 0, v)
		big.Set(i, 1, v)
	}

	pred, err := dt.Predict(big)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := 0; i < n; i++ {
		if want := float64(i % 2); pred.At(i, 0) != want {
			t.Fatalf("row %d: got %v, want %v", i, pred.At(i, 0), want)
		}
	}
}

func TestDecisionTreeClassifier_PredictProba(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		3, 3,
		3, 4,
		4, 3,
		6, 6,
		6, 7,
		7, 6,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	dt := NewDecisionTreeClassifier(WithMaxDepth(5))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if dt.nClasses_ != 3 {
		t.Fatalf("nClasses_ = %d, want 3", dt.nClasses_)
	}

	proba, err := dt.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba() error = %v", err)
	}
	rows, cols := proba.Dims()
	if rows != 9 || cols != 3 {
		t.Fatalf("shape = (%d, %d), want (9, 3)", rows, cols)
	}
	for i := 0; i < rows; i++ {
		row := mat.Row(nil, i, proba)
		sum := 0.0
		for _, p := range row {
			if p < 0 || p > 1 {
				t.Errorf("row %d has probability %v outside [0, 1]", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d sums to %v", i, sum)
		}
		if argmax(row) != int(y.At(i, 0)) {
			t.Errorf("row %d: most probable class %d, want %v", i, argmax(row), y.At(i, 0))
		}
	}
}

func TestDecisionTreeClassifier_Score(t *testing.T) {
	// Class 0 when both features agree, class 1 otherwise.
	X := mat.NewDense(8, 2, []float64{
		0.0, 0.0,
		0.0, 0.1,
		0.1, 1.0,
		0.0, 0.9,
		1.0, 0.0,
		0.9, 0.0,
		1.0, 1.0,
		0.9, 0.9,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 1, 1, 1, 1, 0, 0})

	for _, criterion := range []string{"gini", "entropy"} {
		t.Run(criterion, func(t *testing.T) {
			dt := NewDecisionTreeClassifier(WithCriterion(criterion), WithMaxDepth(5), WithRandomState(0))
			if err := dt.Fit(X, y); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			if score := dt.Score(X, y); score != 1.0 {
				t.Errorf("Score() = %v, want 1", score)
			}
		})
	}
}

func TestDecisionTreeClassifier_StringLabelsKeepOrder(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 10, 11})
	y := mat.NewDense(4, 1, []float64{7, 7, 3, 3})

	dt := NewDecisionTreeClassifier()
	if err := dt.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	classes := dt.Classes()
	if len(classes) != 2 || classes[0] != 3 || classes[1] != 7 {
		t.Errorf("Classes() = %v, want [3 7]", classes)
	}
	pred, _ := dt.Predict(mat.NewDense(1, 1, []float64{0.5}))
	if pred.At(0, 0) != 7 {
		t.Errorf("Predict(0.5) = %v, want 7", pred.At(0, 0))
	}
}

func TestDecisionTreeClassifier_FeatureImportances(t *testing.T) {
	// Only feature 0 carries the class.
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 1, 1,
		0, 0, 1,
		0, 1, 0,
		1, 0, 0,
		1, 1, 1,
		1, 0, 1,
		1, 1, 0,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier()
	if err := dt.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	imp := dt.GetFeatureImportances()
	if len(imp) != 3 {
		t.Fatalf("got %d importances, want 3", len(imp))
	}
	if math.Abs(imp[0]-1) > 1e-9 || imp[1] != 0 || imp[2] != 0 {
		t.Errorf("importances = %v, want [1 0 0]", imp)
	}
	if dt.GetDepth() != 1 || dt.GetNLeaves() != 2 {
		t.Errorf("depth = %d, leaves = %d; want a single split", dt.GetDepth(), dt.GetNLeaves())
	}
}

func TestDecisionTreeClassifier_Constraints(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%3))
		y.Set(i, 0, float64(i%2))
	}

	t.Run("max depth", func(t *testing.T) {
		dt := NewDecisionTreeClassifier(WithMaxDepth(2))
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		if dt.GetDepth() > 2 {
			t.Errorf("GetDepth() = %d exceeds max_depth=2", dt.GetDepth())
		}
	})

	t.Run("min samples leaf", func(t *testing.T) {
		dt := NewDecisionTreeClassifier(WithMinSamplesSplit(5), WithMinSamplesLeaf(4))
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		if dt.GetNLeaves() > 4 {
			t.Errorf("GetNLeaves() = %d, want at most 4", dt.GetNLeaves())
		}
		for _, n := range dt.nodes {
			if n.Feature < 0 && n.NSamples < 4 {
				t.Errorf("leaf with %d samples violates min_samples_leaf=4", n.NSamples)
			}
		}
	})

	t.Run("pure data is a single leaf", func(t *testing.T) {
		dt := NewDecisionTreeClassifier()
		if err := dt.Fit(X, mat.NewDense(16, 1, nil)); err != nil {
			t.Fatal(err)
		}
		if dt.GetNLeaves() != 1 || dt.GetDepth() != 0 {
			t.Errorf("leaves = %d, depth = %d; want 1 and 0", dt.GetNLeaves(), dt.GetDepth())
		}
		for _, v := range dt.GetFeatureImportances() {
			if v != 0 {
				t.Errorf("importances = %v, want zeros", dt.GetFeatureImportances())
				break
			}
		}
	})
}

func TestDecisionTreeClassifier_FitSamples(t *testing.T) {
	X, y := separable()

	// Only class 0 rows are drawn, but class 1 must still be known.
	dt := NewDecisionTreeClassifier()
	if err := dt.FitSamples(X, y, []int{0, 1, 1, 2}); err != nil {
		t.Fatalf("FitSamples() error = %v", err)
	}
	proba, err := dt.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	if _, cols := proba.Dims(); cols != 2 {
		t.Fatalf("got %d probability columns, want 2", cols)
	}
	if proba.At(7, 0) != 1 || proba.At(7, 1) != 0 {
		t.Errorf("proba row 7 = %v, want [1 0]", mat.Row(nil, 7, proba))
	}
}

func TestDecisionTreeClassifier_RandomStateIsDeterministic(t *testing.T) {
	X := mat.NewDense(30, 4, nil)
	y := mat.NewDense(30, 1, nil)
	for i := 0; i < 30; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64((i*(j+3))%7))
		}
		y.Set(i, 0, float64((i/3)%3))
	}

	fit := func() []node {
		dt := NewDecisionTreeClassifier(WithMaxFeatures("sqrt"), WithRandomState(42))
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		return dt.nodes
	}

	a, b := fit(), fit()
	if len(a) != len(b) {
		t.Fatalf("node counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Feature != b[i].Feature || a[i].Threshold != b[i].Threshold {
			t.Fatalf("node %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestDecisionTreeClassifier_Errors(t *testing.T) {
	X, y := separable()

	t.Run("not fitted", func(t *testing.T) {
		dt := NewDecisionTreeClassifier()
		var nfe *errors.NotFittedError
		if _, err := dt.Predict(X); !errors.As(err, &nfe) {
			t.Errorf("Predict() error = %v, want NotFittedError", err)
		}
		if _, err := dt.PredictProba(X); !errors.As(err, &nfe) {
			t.Errorf("PredictProba() error = %v, want NotFittedError", err)
		}
		if dt.Score(X, y) != 0 {
			t.Error("Score() of an unfitted tree should be 0")
		}
	})

	t.Run("feature count mismatch", func(t *testing.T) {
		dt := NewDecisionTreeClassifier()
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		var de *errors.DimensionError
		if _, err := dt.Predict(mat.NewDense(1, 3, nil)); !errors.As(err, &de) {
			t.Errorf("Predict() error = %v, want DimensionError", err)
		}
	})

	t.Run("NaN input", func(t *testing.T) {
		bad := mat.DenseCopyOf(X)
		bad.Set(3, 1, math.NaN())
		var ve *errors.ValueError
		if err := NewDecisionTreeClassifier().Fit(bad, y); !errors.As(err, &ve) {
			t.Errorf("Fit() error = %v, want ValueError", err)
		}
	})

	t.Run("invalid criterion", func(t *testing.T) {
		if err := NewDecisionTreeClassifier(WithCriterion("mse")).Fit(X, y); err == nil {
			t.Error("Fit() with criterion mse should fail")
		}
	})

	t.Run("label rows mismatch", func(t *testing.T) {
		if err := NewDecisionTreeClassifier().Fit(X, mat.NewDense(3, 1, nil)); err == nil {
			t.Error("Fit() with 3 labels for 8 rows should fail")
		}
	})
}

func TestDecisionTreeClassifier_GetSetParams(t *testing.T) {
	dt := NewDecisionTreeClassifier()

	params := dt.GetParams()
	if params["criterion"].(string) != "gini" {
		t.Errorf("criterion = %v, want gini", params["criterion"])
	}
	if params["min_samples_split"].(int) != 2 {
		t.Errorf("min_samples_split = %v, want 2", params["min_samples_split"])
	}
	if params["max_depth"] != nil {
		t.Errorf("max_depth = %v, want nil", params["max_depth"])
	}

	err := dt.SetParams(map[string]interface{}{
		"criterion":         "entropy",
		"max_depth":         5,
		"min_samples_split": 4,
		"min_samples_leaf":  2,
	})
	if err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}
	if dt.criterion != "entropy" || dt.maxDepth != 5 || dt.minSamplesSplit != 4 || dt.minSamplesLeaf != 2 {
		t.Errorf("params not applied: %+v", dt.GetParams())
	}

	if err := dt.SetParams(map[string]interface{}{"n_estimators": 10}); err == nil {
		t.Error("SetParams() with an unknown key should fail")
	}
	if err := dt.SetParams(map[string]interface{}{"max_depth": "deep"}); err == nil {
		t.Error("SetParams() with a string max_depth should fail")
	}
}

func TestDecisionTreeClassifier_Gob(t *testing.T) {
	X, y := separable()
	dt := NewDecisionTreeClassifier(WithMaxDepth(3))
	if err := dt.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dt); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	loaded := &DecisionTreeClassifier{}
	if err := gob.NewDecoder(&buf).Decode(loaded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want, _ := dt.Predict(X)
	got, err := loaded.Predict(X)
	if err != nil {
		t.Fatalf("Predict() after decode error = %v", err)
	}
	if !mat.Equal(want, got) {
		t.Error("decoded tree predicts differently")
	}
	if loaded.GetParams()["max_depth"] != 3 {
		t.Errorf("max_depth = %v, want 3", loaded.GetParams()["max_depth"])
	}
}
