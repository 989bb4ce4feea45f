package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/YuminosukeSato/scigo-studio/internal/history"
	"github.com/YuminosukeSato/scigo-studio/internal/report"
	"github.com/YuminosukeSato/scigo-studio/internal/studio"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/pkg/log"
)

const (
	defaultHistoryLimit = 20
	artifactFilename    = "model.scgo"
)

// HistoryLister lists recorded training runs, most recent first.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
}

type errorBody struct {
	Error string `json:"error"`
}

// trainRequest is the optional JSON body of POST /train.
type trainRequest struct {
	TargetColumn string  `json:"targetColumn"`
	TestSize     float64 `json:"testSize"`
	Seed         *int64  `json:"seed"`
	NEstimators  int     `json:"nEstimators"`
}

type importancesResponse struct {
	Model    string                     `json:"model"`
	Features []studio.FeatureImportance `json:"features"`
}

type handlers struct {
	session   *studio.Session
	history   HistoryLister
	logger    log.Logger
	maxUpload int64
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload", h.upload)
	mux.HandleFunc("POST /train", h.train)
	mux.HandleFunc("GET /download", h.download)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /importances", h.importances)
	mux.HandleFunc("GET /history", h.listHistory)
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "upload exceeds the size limit"})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "field required: file"})
		return
	}
	defer file.Close()

	stats, err := h.session.Ingest(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}

	metrics, err := h.session.Train(r.Context(), studio.TrainOptions{
		TargetColumn: req.TargetColumn,
		TestSize:     req.TestSize,
		Seed:         req.Seed,
		NEstimators:  req.NEstimators,
	})
	if errors.Is(err, studio.ErrNoDataset) {
		writeJSON(w, http.StatusOK, errorBody{Error: studio.ErrNoDataset.Error()})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.session.Export()
	if errors.Is(err, studio.ErrNoModel) {
		writeJSON(w, http.StatusOK, errorBody{Error: studio.ErrNoModel.Error()})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/octet-stream")
	hdr.Set("Content-Disposition", `attachment; filename="`+artifactFilename+`"`)
	hdr.Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	hdr.Set("X-Model-ID", artifact.ModelID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) importances(w http.ResponseWriter, r *http.Request) {
	tm, err := h.session.Model()
	if err != nil {
		writeJSON(w, http.StatusOK, errorBody{Error: studio.ErrNoModel.Error()})
		return
	}
	imps := tm.Importances()

	if r.URL.Query().Get("format") != "png" {
		writeJSON(w, http.StatusOK, importancesResponse{Model: tm.ID, Features: imps})
		return
	}

	names := make([]string, len(imps))
	values := make([]float64, len(imps))
	for i, imp := range imps {
		names[i], values[i] = imp.Name, imp.Importance
	}
	var buf bytes.Buffer
	if err := report.ImportanceChart(&buf, "Feature importances ("+tm.Target+")", names, values); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *handlers) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "training history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// fail maps err to a status code, logs it once and writes the error body.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	h.logger.Error("Request failed", err,
		log.RequestIDKey, RequestID(r.Context()),
		log.PathKey, r.URL.Path,
		log.StatusKey, status)
	writeJSON(w, status, errorBody{Error: msg})
}

func classify(err error) (int, string) {
	var (
		parseErr      *errors.ParseError
		valueErr      *errors.ValueError
		validationErr *errors.ValidationError
		dimensionErr  *errors.DimensionError
		notFittedErr  *errors.NotFittedError
	)
	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &valueErr), errors.As(err, &validationErr),
		errors.As(err, &dimensionErr), errors.As(err, &notFittedErr):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
