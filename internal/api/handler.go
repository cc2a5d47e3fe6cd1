// Package api serves the polymer property predictor over HTTP and websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"polymer-predictor/internal/chem"
	"polymer-predictor/internal/common"
	"polymer-predictor/internal/features"
	"polymer-predictor/internal/ml"
	"polymer-predictor/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	maxBodyBytes        = 8 << 20
)

// HistoryStore persists served predictions. A nil HistoryStore disables
// history.
type HistoryStore interface {
	SavePrediction(rec storage.PredictionRecord) (storage.PredictionRecord, error)
	SaveFeatures(rec storage.FeatureRecord) error
	RecentPredictions(limit int) ([]storage.PredictionRecord, error)
}

// MetricsRecorder receives HTTP level measurements.
type MetricsRecorder interface {
	HTTPRequestObserve(route string, status int, d time.Duration)
	BatchSizeObserve(n int)
	StreamConnectionsAdd(delta float64)
	HistoryWriteObserve(err error)
}

// ModelInfoProvider describes the loaded model artifact.
type ModelInfoProvider interface {
	Info() ml.StoreInfo
}

// DriftReporter reports input drift against the training distribution.
type DriftReporter interface {
	Status() ml.DriftStatus
}

// Options bound request handling.
type Options struct {
	MaxBatchSize     int
	BatchConcurrency int
	RequestTimeout   time.Duration
}

// Deps are the collaborators of a Handler. Engine is required; the rest
// may be nil.
type Deps struct {
	Engine         ml.PredictorInterface
	Models         ModelInfoProvider
	Drift          DriftReporter
	Extractor      *features.Extractor
	Parser         chem.Parser
	History        HistoryStore
	Metrics        MetricsRecorder
	MetricsHandler http.Handler
}

// Handler provides the HTTP API endpoints.
type Handler struct {
	engine         ml.PredictorInterface
	models         ModelInfoProvider
	drift          DriftReporter
	extractor      *features.Extractor
	parser         chem.Parser
	history        HistoryStore
	metrics        MetricsRecorder
	metricsHandler http.Handler
	opts           Options
	upgrader       websocket.Upgrader
	streams        *streamRegistry
	started        time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, opts Options) *Handler {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = common.DefaultMaxBatchSize
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = common.DefaultBatchConcurrency
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = common.DefaultRequestTimeout
	}

	h := &Handler{
		engine:         deps.Engine,
		models:         deps.Models,
		drift:          deps.Drift,
		extractor:      deps.Extractor,
		parser:         deps.Parser,
		history:        deps.History,
		metrics:        deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		opts:           opts,
		upgrader:       websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		streams:        newStreamRegistry(),
		started:        time.Now(),
	}
	if h.extractor == nil {
		h.extractor = features.NewExtractor(nil)
	}
	if h.parser == nil {
		h.parser = chem.DefaultParser{}
	}
	if h.metricsHandler == nil {
		h.metricsHandler = promhttp.Handler()
	}
	return h
}

// RegisterRoutes sets up all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(requestIDMiddleware, h.loggingMiddleware)

	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/model/info", h.handleModelInfo).Methods("GET")
	r.HandleFunc("/model/drift", h.handleDrift).Methods("GET")
	r.Handle("/metrics", h.metricsHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/predict", h.handlePredict).Methods("POST")
	v1.HandleFunc("/predict/batch", h.handlePredictBatch).Methods("POST")
	v1.HandleFunc("/predict/stream", h.handleStream).Methods("GET")
	v1.HandleFunc("/features", h.handleFeatures).Methods("POST")
	v1.HandleFunc("/molecule/validate", h.handleValidate).Methods("POST")
	v1.HandleFunc("/predictions", h.handlePredictions).Methods("GET")
}

// CloseStreams disconnects every open websocket stream.
func (h *Handler) CloseStreams() {
	h.streams.closeAll()
}

// SMILESRequest is the body of single-molecule endpoints.
type SMILESRequest struct {
	SMILES string `json:"smiles"`
}

// BatchRequest is the body of the batch prediction endpoint.
type BatchRequest struct {
	SMILES []string `json:"smiles"`
}

// PredictionResponse pairs a molecule with its predictions.
type PredictionResponse struct {
	SMILES      string    `json:"smiles"`
	Predictions ml.Result `json:"predictions"`
}

// BatchResponse holds one response per input, in input order.
type BatchResponse struct {
	Results     []PredictionResponse `json:"results"`
	ModelLoaded bool                 `json:"model_loaded"`
}

// FeaturesResponse maps feature names to values.
type FeaturesResponse struct {
	SMILES   string             `json:"smiles"`
	Features map[string]float64 `json:"features"`
}

// ValidateResponse reports whether a SMILES string parses.
type ValidateResponse struct {
	SMILES          string `json:"smiles"`
	CanonicalSMILES string `json:"canonical_smiles,omitempty"`
	Valid           bool   `json:"valid"`
	Error           string `json:"error,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	History       bool    `json:"history"`
}

// ErrorResponse carries a client-facing error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handler) setModelHeader(w http.ResponseWriter) {
	w.Header().Set(common.HeaderModelLoaded, strconv.FormatBool(h.engine.IsLoaded()))
}

// Analyzer is implemented by engines that also hand back the features and
// molecule behind a prediction.
type Analyzer interface {
	Analyze(smiles string) ml.Analysis
}

// predict runs the engine and records the result when history is enabled.
func (h *Handler) predict(smiles string) PredictionResponse {
	var a ml.Analysis
	if an, ok := h.engine.(Analyzer); ok {
		a = an.Analyze(smiles)
	} else {
		a = ml.Analysis{Result: h.engine.Predict(smiles)}
	}
	h.record(smiles, a)
	return PredictionResponse{SMILES: smiles, Predictions: a.Result}
}

func (h *Handler) record(smiles string, a ml.Analysis) {
	if h.history == nil {
		return
	}

	rec := storage.PredictionRecord{
		SMILES:      smiles,
		Predictions: a.Result,
		ModelLoaded: h.engine.IsLoaded(),
	}
	if a.Molecule != nil {
		rec.CanonicalSMILES = a.Molecule.CanonicalSMILES()
	} else if canonical, err := h.canonicalize(smiles); err == nil {
		rec.CanonicalSMILES = canonical
	}

	_, err := h.history.SavePrediction(rec)
	if err == nil && !a.Result.IsPlaceholder() {
		v := a.Features
		if v == nil {
			if fv, ferr := h.extractor.Extract(smiles); ferr == nil {
				v = &fv
			}
		}
		if v != nil {
			err = h.history.SaveFeatures(storage.NewFeatureRecord(smiles, *v))
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("smiles", smiles).Msg("Failed to persist prediction")
	}
	if h.metrics != nil {
		h.metrics.HistoryWriteObserve(err)
	}
}

func (h *Handler) canonicalize(smiles string) (string, error) {
	m, err := h.parser.Parse(smiles)
	if err != nil {
		return "", err
	}
	return m.CanonicalSMILES(), nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		ModelLoaded:   h.engine.IsLoaded(),
		UptimeSeconds: time.Since(h.started).Seconds(),
		History:       h.history != nil,
	}

	status := http.StatusOK
	if !resp.ModelLoaded {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	h.setModelHeader(w)
	respondJSON(w, status, resp)
}

func (h *Handler) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		respondError(w, http.StatusNotFound, "model information unavailable")
		return
	}
	h.setModelHeader(w)
	respondJSON(w, http.StatusOK, h.models.Info())
}

func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	if h.drift == nil {
		respondError(w, http.StatusNotFound, "drift detection is disabled")
		return
	}
	respondJSON(w, http.StatusOK, h.drift.Status())
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req SMILESRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	h.setModelHeader(w)
	respondJSON(w, http.StatusOK, h.predict(req.SMILES))
}

func (h *Handler) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.SMILES) > h.opts.MaxBatchSize {
		respondError(w, http.StatusRequestEntityTooLarge,
			"batch of "+strconv.Itoa(len(req.SMILES))+" exceeds limit of "+strconv.Itoa(h.opts.MaxBatchSize))
		return
	}
	if h.metrics != nil {
		h.metrics.BatchSizeObserve(len(req.SMILES))
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()

	results, err := h.predictAll(ctx, req.SMILES)
	if err != nil {
		log.Warn().Err(err).Int("batch_size", len(req.SMILES)).Msg("Batch prediction aborted")
		respondError(w, http.StatusServiceUnavailable, "batch prediction aborted: "+err.Error())
		return
	}

	h.setModelHeader(w)
	respondJSON(w, http.StatusOK, BatchResponse{Results: results, ModelLoaded: h.engine.IsLoaded()})
}

// predictAll predicts every molecule with bounded concurrency, preserving
// input order.
func (h *Handler) predictAll(ctx context.Context, smiles []string) ([]PredictionResponse, error) {
	results := make([]PredictionResponse, len(smiles))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.BatchConcurrency)
	for i, s := range smiles {
		i, s := i, s
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = h.predict(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (h *Handler) handleFeatures(w http.ResponseWriter, r *http.Request) {
	var req SMILESRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	v, err := h.extractor.Extract(req.SMILES)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, features.ErrInvalidMolecule) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, FeaturesResponse{SMILES: req.SMILES, Features: v.Map()})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req SMILESRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	resp := ValidateResponse{SMILES: req.SMILES}
	canonical, err := h.canonicalize(req.SMILES)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Valid = true
		resp.CanonicalSMILES = canonical
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	records, err := h.history.RecentPredictions(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read prediction history")
		respondError(w, http.StatusInternalServerError, "failed to read prediction history")
		return
	}
	respondJSON(w, http.StatusOK, records)
}
