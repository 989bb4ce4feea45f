// Package model holds the interfaces shared by every estimator, the fitted
// state helper, and the on-disk artifact format.
package model

import "gonum.org/v1/gonum/mat"

// Fitter is a model that can be trained.
type Fitter interface {
	// Fit trains the model on X (n_samples x n_features) and y (n_samples x 1).
	Fit(X, y mat.Matrix) error
}

// Predictor is a model that can predict.
type Predictor interface {
	// Predict returns an n_samples x 1 matrix of predictions.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator is a supervised model.
type Estimator interface {
	Fitter
	Predictor
}

// Classifier is an estimator that also reports class probabilities.
type Classifier interface {
	Estimator

	// PredictProba returns n_samples x n_classes probabilities; columns
	// follow the order of Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class labels seen during Fit.
	Classes() []float64

	// Score returns the mean accuracy on X, y.
	Score(X, y mat.Matrix) float64
}

// FeatureImportancer exposes impurity-based feature importances.
type FeatureImportancer interface {
	GetFeatureImportances() []float64
}

// ParameterGetter exposes a model's hyperparameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter allows hyperparameter modification.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}
