package model

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

type stubModel struct {
	Weights []float64
	Name    string
	State   *StateManager
}

func TestSaveAndLoadModelFromReader(t *testing.T) {
	state := NewStateManager()
	state.SetFitted(3, 10, 2)
	original := stubModel{Weights: []float64{1, 2, 3}, Name: "stub", State: state}

	var buf bytes.Buffer
	if err := SaveModelToWriter(&buf, "stubModel", original); err != nil {
		t.Fatalf("SaveModelToWriter() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("SCGO")) {
		t.Fatal("artifact must start with the magic bytes")
	}

	var loaded stubModel
	header, err := LoadModelFromReader(bytes.NewReader(buf.Bytes()), "stubModel", &loaded)
	if err != nil {
		t.Fatalf("LoadModelFromReader() error = %v", err)
	}

	if header.Version != ArtifactVersion || header.ModelType != "stubModel" {
		t.Errorf("unexpected header: %+v", header)
	}
	if header.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if loaded.Name != "stub" || len(loaded.Weights) != 3 || loaded.Weights[2] != 3 {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.State.IsFitted() {
		t.Error("state should survive encoding")
	}
	if loaded.State.NFeatures != 3 || loaded.State.NClasses != 2 {
		t.Errorf("state = %+v, want 3 features and 2 classes", loaded.State.GetState())
	}
}

func TestLoadModelFromReader_WrongType(t *testing.T) {
	var buf bytes.Buffer
	if err := SaveModelToWriter(&buf, "stubModel", stubModel{Name: "x"}); err != nil {
		t.Fatal(err)
	}

	var loaded stubModel
	_, err := LoadModelFromReader(&buf, "OtherModel", &loaded)

	var serErr *errors.SerializationError
	if !errors.As(err, &serErr) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
}

func TestLoadModelFromReader_NotAnArtifact(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: nil},
		{name: "wrong magic", input: []byte("PK\x03\x04 zip file")},
		{name: "truncated header", input: []byte("SCGO")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loaded stubModel
			_, err := LoadModelFromReader(bytes.NewReader(tt.input), "stubModel", &loaded)
			if !errors.Is(err, ErrArtifactFormat) {
				t.Errorf("error = %v, want ErrArtifactFormat", err)
			}
		})
	}
}

func TestSaveModelAndLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.scgo")

	if err := SaveModel(path, "stubModel", stubModel{Name: "file"}); err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	header, err := ReadHeader(f)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.ModelType != "stubModel" {
		t.Errorf("ModelType = %q", header.ModelType)
	}

	var loaded stubModel
	if _, err := LoadModel(path, "stubModel", &loaded); err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if loaded.Name != "file" {
		t.Errorf("Name = %q, want file", loaded.Name)
	}
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()

	if err := s.RequireFitted("Tree", "Predict"); err == nil {
		t.Error("RequireFitted() should fail before SetFitted")
	}

	s.SetFitted(4, 100, 3)
	if err := s.RequireFitted("Tree", "Predict"); err != nil {
		t.Errorf("RequireFitted() error = %v", err)
	}
	if err := s.RequireFeatures("Predict", 4); err != nil {
		t.Errorf("RequireFeatures(4) error = %v", err)
	}

	var dimErr *errors.DimensionError
	if err := s.RequireFeatures("Predict", 5); !errors.As(err, &dimErr) {
		t.Errorf("RequireFeatures(5) error = %v, want DimensionError", err)
	}

	state := s.GetState()
	if state.NClasses != 3 || state.NSamples != 100 {
		t.Errorf("GetState() = %+v", state)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear the fitted flag")
	}

	s.SetState(state)
	if !s.IsFitted() || s.GetState() != state {
		t.Error("SetState should restore the snapshot")
	}
}
