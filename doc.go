// Package scigo is a small training studio built on an in-tree,
// scikit-learn style machine learning stack.
//
// A CSV file is uploaded, a random forest classifier is trained on it and
// the fitted model can be downloaded as an artifact. The service runs as
// an HTTP server or as a one-shot CLI:
//
//	studio serve --config studio.yaml
//	studio train --csv iris.csv --target species --seed 42 --out model.scgo
//
// # Packages
//
//   - frame: CSV ingestion with pandas-like type inference
//   - preprocessing: LabelEncoder
//   - sklearn/tree, sklearn/ensemble: DecisionTreeClassifier and RandomForestClassifier
//   - sklearn/model_selection: TrainTestSplit
//   - metrics: accuracy, precision, recall, F1 and the confusion matrix
//   - core/model: estimator interfaces, fitted state and the SCGO artifact format
//   - core/parallel: bounded worker fan-out
//
// # Using a downloaded model
//
// Artifacts are read back with internal/studio:
//
//	f, _ := os.Open("model.scgo")
//	m, err := studio.LoadTrainedModel(f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	labels, err := m.Predict([]map[string]float64{{"width": 1.4, "height": 0.2}})
package scigo

// Version is the release of the studio binary and the artifact writer.
const Version = "0.1.0"
