package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iwvelando/npk-advisor/internal/advisor"
	"github.com/iwvelando/npk-advisor/internal/fields"
	"github.com/iwvelando/npk-advisor/internal/jobs"
	"github.com/iwvelando/npk-advisor/internal/metrics"
	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP API fronts.
type Dependencies struct {
	Advisor *advisor.Advisor
	Jobs    *jobs.Manager
	Catalog *fields.Catalog
	Metrics *metrics.Metrics
}

type handler struct {
	logger         *zap.Logger
	deps           Dependencies
	maxRequestSize int64
	version        string
	validate       *validator.Validate
}

// recommendationRequest is the body of both recommendation endpoints.
// Features lets sync callers skip the catalog.
type recommendationRequest struct {
	FieldID  string         `json:"field_id" validate:"required_without=Features"`
	Crop     string         `json:"crop"`
	Budget   float64        `json:"budget" validate:"gt=0"`
	Features model.Features `json:"features,omitempty"`
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// failedStatus is what polling clients see for a job in the FAILURE state.
const failedStatus = "FAILED"

type resultResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// NewHandler constructs the HTTP handler that serves the recommendation API.
func NewHandler(logger *zap.Logger, deps Dependencies, maxRequestSize int64, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxRequestSize <= 0 {
		maxRequestSize = constants.DefaultMaxRequestSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:         logger,
		deps:           deps,
		maxRequestSize: maxRequestSize,
		version:        trimmedVersion,
		validate:       validator.New(),
	}

	mux := http.NewServeMux()

	// Asynchronous recommendations
	mux.HandleFunc("/recommend/request", h.handleRequest)
	mux.HandleFunc("/recommend/result/{job_id}", h.handleResult)

	// Inline recommendation
	mux.HandleFunc("/recommend/sync", h.handleSync)

	mux.HandleFunc("/fields", h.handleFields)
	mux.HandleFunc("/api/version", h.handleVersion)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", deps.Metrics.Handler())

	return mux
}

func (h *handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRequest"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Jobs == nil {
		h.respondErrorWithOp(w, http.StatusServiceUnavailable, "asynchronous jobs are not enabled", op)
		return
	}

	req, ok := h.decodeRequest(w, r, op)
	if !ok {
		return
	}
	if req.FieldID == "" {
		h.respondErrorWithOp(w, http.StatusBadRequest, "field_id is required", op)
		return
	}

	h.logger.Info("received recommendation job",
		zap.String("op", op),
		zap.String("field", req.FieldID),
		zap.String("crop", req.Crop),
		zap.Float64("budget", req.Budget),
	)

	job, err := h.deps.Jobs.Submit(advisor.Request{FieldID: req.FieldID, Crop: req.Crop, Budget: req.Budget})
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		h.respondErrorWithOp(w, http.StatusServiceUnavailable, err.Error(), op)
		return
	case err != nil:
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	h.writeJSON(w, http.StatusOK, jobResponse{JobID: job.ID, Status: string(job.State)})
}

func (h *handler) handleResult(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleResult"
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Jobs == nil {
		h.respondErrorWithOp(w, http.StatusServiceUnavailable, "asynchronous jobs are not enabled", op)
		return
	}

	id := r.PathValue("job_id")
	job, err := h.deps.Jobs.Get(id)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusNotFound, err.Error(), op)
		return
	}

	resp := resultResponse{Status: string(job.State)}
	switch job.State {
	case jobs.StateSuccess:
		resp.Data = job.Result
	case jobs.StateFailure:
		resp.Status = failedStatus
		resp.Data = job.Error
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleSync(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSync"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Advisor == nil {
		h.respondErrorWithOp(w, http.StatusServiceUnavailable, "advisor is not configured", op)
		return
	}

	req, ok := h.decodeRequest(w, r, op)
	if !ok {
		return
	}

	var (
		rec advisor.Recommendation
		err error
	)
	if req.FieldID == "" {
		rec, err = h.deps.Advisor.RecommendFeatures(r.Context(), req.Budget, req.Features)
	} else {
		rec, err = h.deps.Advisor.Recommend(r.Context(), advisor.Request{FieldID: req.FieldID, Crop: req.Crop, Budget: req.Budget})
	}
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, fields.ErrFieldNotFound):
			status = http.StatusNotFound
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusGatewayTimeout
		}
		h.respondErrorWithOp(w, status, err.Error(), op)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *handler) handleFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	list := h.deps.Catalog.List()
	if list == nil {
		list = []fields.Field{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"fields": list,
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeRequest reads and validates a recommendation body, writing the
// error response itself when it returns false.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request, op string) (recommendationRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)

	var req recommendationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxRequestSize), op)
			return req, false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return req, false
	}
	req.FieldID = strings.TrimSpace(req.FieldID)
	req.Crop = strings.TrimSpace(req.Crop)

	if err := h.validate.Struct(req); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, describeValidation(err), op)
		return req, false
	}
	return req, true
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "Budget":
			msgs = append(msgs, "Budget must be positive.")
		case "FieldID":
			msgs = append(msgs, "field_id is required.")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation.", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, " ")
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("recommendation request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
