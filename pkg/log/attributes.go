// Package log defines standard attribute keys for machine learning operations.
//
// Using the same keys everywhere keeps logs from the estimators, the
// training service and the HTTP layer queryable with one vocabulary. Keys
// follow a hierarchical naming convention ("model.name", "data.samples").

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "RandomForestClassifier".
	ModelNameKey = "model.name"

	// ModelIDKey identifies one trained model instance.
	ModelIDKey = "model.id"

	// OperationKey is the operation being performed: "fit", "predict", ...
	OperationKey = "ml.operation"

	// ComponentKey names the package or subsystem emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase: "training", "validation", ...
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"
	MissingKey  = "data.missing"

	// TargetKey is the name of the label column.
	TargetKey = "data.target"

	// DataSizeKey is the raw payload size in bytes.
	DataSizeKey = "data.size_bytes"
)

// Performance and evaluation.
const (
	DurationMsKey = "perf.duration_ms"

	AccuracyKey  = "metrics.accuracy"
	PrecisionKey = "metrics.precision"
	RecallKey    = "metrics.recall"
	F1ScoreKey   = "metrics.f1"

	// EstimatorsKey is the number of trees in an ensemble.
	EstimatorsKey = "model.n_estimators"
)

// Error context.
const (
	// ErrorCodeKey is a stable machine-readable code such as "NOT_FITTED".
	ErrorCodeKey = "error.code"

	// ErrorTypeKey is the Go error type name, e.g. "ParseError".
	ErrorTypeKey = "error.type"
)

// Configuration.
const (
	// RandomSeedKey records the seed used for a run, when one was set.
	RandomSeedKey = "config.random_seed"

	HyperParamsKey = "model.hyperparams"
)

// HTTP request context.
const (
	RequestIDKey  = "http.request_id"
	MethodKey     = "http.method"
	PathKey       = "http.path"
	StatusKey     = "http.status"
	RemoteAddrKey = "http.remote_addr"
)

// Standard values for OperationKey, PhaseKey and ErrorCodeKey.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
	OperationIngest  = "ingest"
	OperationExport  = "export"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorParse             = "PARSE_ERROR"
	ErrorSerialization     = "SERIALIZATION_ERROR"
)
