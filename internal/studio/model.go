package studio

import (
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-studio/core/model"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/preprocessing"
	"github.com/YuminosukeSato/scigo-studio/sklearn/ensemble"
)

// ModelType tags studio artifacts in the core/model header.
const ModelType = "RandomForestClassifier"

// TrainedModel is a fitted forest together with what is needed to use it
// outside the studio: feature order and the original class labels.
type TrainedModel struct {
	ID          string
	Features    []string
	Target      string
	TrainedAt   time.Time
	DatasetRows int

	forest  *ensemble.RandomForestClassifier
	encoder *preprocessing.LabelEncoder
}

// FeatureImportance is the mean impurity decrease credited to one feature.
type FeatureImportance struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// Forest returns the fitted classifier. Its classes are label codes; see
// Classes for the labels.
func (m *TrainedModel) Forest() *ensemble.RandomForestClassifier {
	return m.forest
}

// Classes returns the class labels in code order.
func (m *TrainedModel) Classes() []string {
	return m.encoder.Classes()
}

// Importances returns the feature importances, largest first.
func (m *TrainedModel) Importances() []FeatureImportance {
	values := m.forest.GetFeatureImportances()
	out := make([]FeatureImportance, len(m.Features))
	for i, name := range m.Features {
		out[i] = FeatureImportance{Name: name, Importance: values[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// PredictMatrix predicts labels for X, whose columns follow Features.
func (m *TrainedModel) PredictMatrix(X mat.Matrix) ([]string, error) {
	if _, cols := X.Dims(); cols != len(m.Features) {
		return nil, errors.NewDimensionError("TrainedModel.Predict", len(m.Features), cols, 1)
	}
	pred, err := m.forest.Predict(X)
	if err != nil {
		return nil, err
	}
	return m.encoder.InverseTransform(mat.Col(nil, 0, pred))
}

// Predict predicts one label per record. Every record must hold a value for
// each feature.
func (m *TrainedModel) Predict(records []map[string]float64) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	X := mat.NewDense(len(records), len(m.Features), nil)
	for i, rec := range records {
		for j, name := range m.Features {
			v, ok := rec[name]
			if !ok {
				return nil, errors.NewValidationError("records", "missing feature", name)
			}
			X.Set(i, j, v)
		}
	}
	return m.PredictMatrix(X)
}

// Save writes the model in the core/model artifact format.
func (m *TrainedModel) Save(w io.Writer) error {
	return model.SaveModelToWriter(w, ModelType, m)
}

// LoadTrainedModel reads a model written by Save.
func LoadTrainedModel(r io.Reader) (*TrainedModel, error) {
	var m TrainedModel
	if _, err := model.LoadModelFromReader(r, ModelType, &m); err != nil {
		return nil, err
	}
	if m.forest == nil || m.encoder == nil || !m.forest.IsFitted() {
		return nil, errors.NewSerializationError("decode", ModelType, errors.New("artifact holds no fitted model"))
	}
	return &m, nil
}

type trainedModelSnapshot struct {
	ID          string
	Features    []string
	Target      string
	TrainedAt   time.Time
	DatasetRows int
	Forest      *ensemble.RandomForestClassifier
	Encoder     *preprocessing.LabelEncoder
}

// GobEncode implements gob.GobEncoder.
func (m *TrainedModel) GobEncode() ([]byte, error) {
	return model.EncodeSnapshot(trainedModelSnapshot{
		ID:          m.ID,
		Features:    m.Features,
		Target:      m.Target,
		TrainedAt:   m.TrainedAt,
		DatasetRows: m.DatasetRows,
		Forest:      m.forest,
		Encoder:     m.encoder,
	})
}

// GobDecode implements gob.GobDecoder.
func (m *TrainedModel) GobDecode(data []byte) error {
	var snap trainedModelSnapshot
	if err := model.DecodeSnapshot(data, &snap); err != nil {
		return err
	}
	m.ID = snap.ID
	m.Features = snap.Features
	m.Target = snap.Target
	m.TrainedAt = snap.TrainedAt
	m.DatasetRows = snap.DatasetRows
	m.forest = snap.Forest
	m.encoder = snap.Encoder
	return nil
}
