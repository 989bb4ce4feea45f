package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

func vec(values ...float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}

// captureWarnings collects warnings emitted through errors.Warn until the
// test ends.
func captureWarnings(t *testing.T) *[]error {
	t.Helper()
	var got []error
	errors.SetZerologWarnFunc(func(w error) { got = append(got, w) })
	t.Cleanup(func() { errors.SetZerologWarnFunc(nil) })
	return &got
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{name: "perfect", yTrue: []float64{0, 1, 2, 1, 0}, yPred: []float64{0, 1, 2, 1, 0}, want: 1.0},
		{name: "80 percent", yTrue: []float64{0, 1, 2, 1, 0}, yPred: []float64{0, 1, 1, 1, 0}, want: 0.8},
		{name: "zero", yTrue: []float64{0, 0, 0}, yPred: []float64{1, 1, 1}, want: 0.0},
		{name: "empty", wantErr: true},
		{name: "length mismatch", yTrue: []float64{0, 1}, yPred: []float64{0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = vec(tt.yTrue...)
			}
			if len(tt.yPred) > 0 {
				yPred = vec(tt.yPred...)
			}

			got, err := Accuracy(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Expected values are those of sklearn.metrics for
// y_true = [0, 1, 2, 0, 1, 2], y_pred = [0, 2, 1, 0, 0, 1].
func TestPrecisionRecallF1_Multiclass(t *testing.T) {
	yTrue := vec(0, 1, 2, 0, 1, 2)
	yPred := vec(0, 2, 1, 0, 0, 1)

	tests := []struct {
		average   Average
		precision float64
		recall    float64
		f1        float64
	}{
		{average: AverageMacro, precision: 2.0 / 9, recall: 1.0 / 3, f1: 4.0 / 15},
		{average: AverageWeighted, precision: 2.0 / 9, recall: 1.0 / 3, f1: 4.0 / 15},
		{average: AverageMicro, precision: 1.0 / 3, recall: 1.0 / 3, f1: 1.0 / 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.average), func(t *testing.T) {
			p, err := PrecisionScore(yTrue, yPred, tt.average)
			if err != nil {
				t.Fatal(err)
			}
			r, err := RecallScore(yTrue, yPred, tt.average)
			if err != nil {
				t.Fatal(err)
			}
			f, err := F1Score(yTrue, yPred, tt.average)
			if err != nil {
				t.Fatal(err)
			}

			if math.Abs(p-tt.precision) > 1e-9 {
				t.Errorf("precision = %v, want %v", p, tt.precision)
			}
			if math.Abs(r-tt.recall) > 1e-9 {
				t.Errorf("recall = %v, want %v", r, tt.recall)
			}
			if math.Abs(f-tt.f1) > 1e-9 {
				t.Errorf("f1 = %v, want %v", f, tt.f1)
			}
		})
	}
}

func TestPrecisionScore_WeightedBySupport(t *testing.T) {
	// Class 0 has support 3, class 1 has support 1.
	yTrue := vec(0, 0, 0, 1)
	yPred := vec(0, 0, 1, 1)

	// precision: class 0 = 2/2, class 1 = 1/2 -> (3*1 + 1*0.5) / 4
	p, err := PrecisionScore(yTrue, yPred, AverageWeighted)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p-0.875) > 1e-9 {
		t.Errorf("weighted precision = %v, want 0.875", p)
	}

	// binary reports class 1 only
	p, err = PrecisionScore(yTrue, yPred, AverageBinary)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("binary precision = %v, want 0.5", p)
	}
}

func TestPrecisionScore_ZeroDivision(t *testing.T) {
	warnings := captureWarnings(t)

	// Class 2 is never predicted.
	yTrue := vec(0, 1, 2)
	yPred := vec(0, 1, 1)

	p, err := PrecisionScore(yTrue, yPred, AverageWeighted)
	if err != nil {
		t.Fatal(err)
	}
	// class 0: 1, class 1: 1/2, class 2: 0 (undefined)
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("precision = %v, want 0.5", p)
	}

	if len(*warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(*warnings))
	}
	var umw *errors.UndefinedMetricWarning
	if !errors.As((*warnings)[0], &umw) {
		t.Fatalf("warning = %v, want UndefinedMetricWarning", (*warnings)[0])
	}
	want := "Precision is ill-defined and being set to 0.0 in labels with no predicted samples."
	if umw.Error() != want {
		t.Errorf("warning message = %q, want %q", umw.Error(), want)
	}
}

func TestRecallScore_EqualsAccuracyWhenWeighted(t *testing.T) {
	yTrue := vec(0, 1, 1, 2, 2, 2, 3, 0)
	yPred := vec(0, 1, 2, 2, 1, 2, 0, 0)

	r, err := RecallScore(yTrue, yPred, AverageWeighted)
	if err != nil {
		t.Fatal(err)
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r-acc) > 1e-12 {
		t.Errorf("weighted recall = %v, accuracy = %v", r, acc)
	}
}

func TestAverage_Errors(t *testing.T) {
	multiclass := vec(0, 1, 2)

	if _, err := PrecisionScore(multiclass, multiclass, AverageBinary); err == nil {
		t.Error("binary average on three classes should fail")
	}
	if _, err := F1Score(vec(2, 3), vec(2, 3), AverageBinary); err == nil {
		t.Error("binary average without label 1 should fail")
	}
	if _, err := RecallScore(multiclass, multiclass, Average("samples")); err == nil {
		t.Error("unknown average should fail")
	}
}

func TestConfusionMatrix(t *testing.T) {
	cm, labels, err := ConfusionMatrix(vec(2, 0, 2, 2, 0, 1), vec(0, 0, 2, 2, 0, 2))
	if err != nil {
		t.Fatal(err)
	}

	if len(labels) != 3 || labels[0] != 0 || labels[2] != 2 {
		t.Fatalf("labels = %v, want [0 1 2]", labels)
	}
	want := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 0, 1,
		1, 0, 2,
	})
	if !mat.Equal(cm, want) {
		t.Errorf("ConfusionMatrix() =\n%v\nwant\n%v", mat.Formatted(cm), mat.Formatted(want))
	}
}

func TestNewClassificationReport(t *testing.T) {
	yTrue := mat.NewDense(5, 1, []float64{0, 1, 0, 1, 0})
	yPred := mat.NewDense(5, 1, []float64{0, 1, 1, 1, 0})

	r, err := NewClassificationReport(yTrue, yPred)
	if err != nil {
		t.Fatalf("NewClassificationReport() error = %v", err)
	}
	if r.Support != 5 || math.Abs(r.Accuracy-0.8) > 1e-9 || math.Abs(r.Recall-0.8) > 1e-9 {
		t.Errorf("report = %+v", r)
	}
	for name, v := range map[string]float64{"precision": r.Precision, "f1": r.F1} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v outside [0, 1]", name, v)
		}
	}

	if _, err := NewClassificationReport(mat.NewDense(2, 2, nil), yPred); err == nil {
		t.Error("a two-column target should fail")
	}
}
