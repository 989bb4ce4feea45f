// Package preprocessing provides scikit-learn compatible transformers.
package preprocessing

import (
	"sort"
	"strconv"

	"github.com/YuminosukeSato/scigo-studio/core/model"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// LabelEncoder maps class labels to integer codes 0..n_classes-1.
//
// Classes are sorted numerically when every label parses as a number and
// lexicographically otherwise, so "2" sorts before "10" for numeric targets.
type LabelEncoder struct {
	state *model.StateManager

	classes_ []string
	codes_   map[string]int
}

// NewLabelEncoder creates an unfitted LabelEncoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{state: model.NewStateManager()}
}

// Fit learns the sorted set of unique labels.
//
// Parameters:
//   - labels: target values in their original text form
//
// Returns:
//   - error: ErrEmptyData when labels is empty
//
// Example:
//
//	enc := preprocessing.NewLabelEncoder()
//	err := enc.Fit([]string{"cat", "dog", "cat"})
//	codes, _ := enc.Transform([]string{"dog"}) // [1]
func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	seen := make(map[string]struct{}, len(labels))
	classes := make([]string, 0)
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sortLabels(classes)

	e.classes_ = classes
	e.codes_ = make(map[string]int, len(classes))
	for i, c := range classes {
		e.codes_[c] = i
	}
	e.state.SetFitted(1, len(labels), len(classes))
	return nil
}

// FitTransform fits the encoder and returns the codes of labels.
func (e *LabelEncoder) FitTransform(labels []string) ([]float64, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

// Transform returns the code of every label. Unseen labels are a
// ValueError.
func (e *LabelEncoder) Transform(labels []string) ([]float64, error) {
	if err := e.state.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	codes := make([]float64, len(labels))
	for i, l := range labels {
		code, ok := e.codes_[l]
		if !ok {
			return nil, errors.NewValueErrorf("LabelEncoder.Transform", "y contains previously unseen labels: %s", strconv.Quote(l))
		}
		codes[i] = float64(code)
	}
	return codes, nil
}

// InverseTransform maps codes back to labels.
func (e *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if err := e.state.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	labels := make([]string, len(codes))
	for i, c := range codes {
		idx := int(c)
		if float64(idx) != c || idx < 0 || idx >= len(e.classes_) {
			return nil, errors.NewValueErrorf("LabelEncoder.InverseTransform", "y contains previously unseen labels: %v", c)
		}
		labels[i] = e.classes_[idx]
	}
	return labels, nil
}

// Classes returns a copy of the learned labels in code order.
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.classes_))
	copy(out, e.classes_)
	return out
}

// IsFitted reports whether Fit has been called.
func (e *LabelEncoder) IsFitted() bool {
	return e.state.IsFitted()
}

func sortLabels(labels []string) {
	nums := make([]float64, len(labels))
	numeric := true
	for i, l := range labels {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = v
	}
	if !numeric {
		sort.Strings(labels)
		return
	}
	sort.Sort(byValue{labels: labels, nums: nums})
}

type byValue struct {
	labels []string
	nums   []float64
}

func (b byValue) Len() int           { return len(b.labels) }
func (b byValue) Less(i, j int) bool { return b.nums[i] < b.nums[j] }
func (b byValue) Swap(i, j int) {
	b.labels[i], b.labels[j] = b.labels[j], b.labels[i]
	b.nums[i], b.nums[j] = b.nums[j], b.nums[i]
}

// labelEncoderSnapshot is the gob form of a LabelEncoder.
type labelEncoderSnapshot struct {
	Classes []string
	State   model.ModelState
}

// GobEncode implements gob.GobEncoder.
func (e *LabelEncoder) GobEncode() ([]byte, error) {
	return model.EncodeSnapshot(labelEncoderSnapshot{Classes: e.classes_, State: e.state.GetState()})
}

// GobDecode implements gob.GobDecoder.
func (e *LabelEncoder) GobDecode(data []byte) error {
	var snap labelEncoderSnapshot
	if err := model.DecodeSnapshot(data, &snap); err != nil {
		return err
	}
	e.state = model.NewStateManager()
	e.state.SetState(snap.State)
	e.classes_ = snap.Classes
	e.codes_ = make(map[string]int, len(snap.Classes))
	for i, c := range snap.Classes {
		e.codes_[c] = i
	}
	return nil
}
