package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-api/internal/export"
	"github.com/kjstillabower/weather-history-api/internal/lifecycle"
	"github.com/kjstillabower/weather-history-api/internal/observability"
	"github.com/kjstillabower/weather-history-api/internal/service"
	"github.com/kjstillabower/weather-history-api/internal/store"
	"github.com/kjstillabower/weather-history-api/internal/traffic"
)

const (
	serviceName     = "weather-history-api"
	homeMessage     = "Weather App Backend is running successfully!"
	exportFilename  = "weather_history.csv"
	healthPingLimit = 2 * time.Second
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	store          store.Store
	upstream       *traffic.Tracker
	logger         *zap.Logger

	healthMu   sync.Mutex
	healthPrev string
}

// NewHandler returns a new Handler. upstream may be nil, in which case /health does not
// report on the weather provider.
func NewHandler(weatherService *service.WeatherService, st store.Store, upstream *traffic.Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		store:          st,
		upstream:       upstream,
		logger:         logger,
	}
}

// Home handles GET /.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": homeMessage})
}

// GetWeather handles GET /weather?location= or ?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bundle, err := h.weatherService.FetchAndRecord(r.Context(), q.Get("location"), q.Get("lat"), q.Get("lon"))
	h.recordUpstream(err)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, r, http.StatusBadRequest, vErr.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// recordUpstream feeds the provider outcome of a lookup into the health window.
// Validation and store failures say nothing about the provider.
func (h *Handler) recordUpstream(err error) {
	if h.upstream == nil {
		return
	}
	var vErr *service.ValidationError
	var uErr *service.UpstreamError
	switch {
	case err == nil:
		h.upstream.RecordSuccess()
	case errors.As(err, &vErr):
	case errors.As(err, &uErr) && uErr.Op == service.OpRecord:
		h.upstream.RecordSuccess()
	default:
		h.upstream.RecordError()
	}
}

// ListHistory handles GET /history. Records are returned newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll(r.Context(), store.NewestFirst)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// CreateHistory handles POST /history. The body is stored as given.
func (h *Handler) CreateHistory(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeServiceError(w, r, fmt.Errorf("decode request body: %w", err))
		return
	}
	if fields == nil {
		writeServiceError(w, r, errors.New("request body must be a JSON object"))
		return
	}
	if err := h.store.InsertArbitrary(r.Context(), fields); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.RecordsInsertedTotal.WithLabelValues("manual").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Record added successfully"})
}

// DeleteHistory handles DELETE /history/{id}. Deleting an absent id succeeds.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("parse id: %w", err))
		return
	}
	if err := h.store.DeleteByID(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Record %d deleted successfully", id)})
}

// Export handles GET /export. All records are fetched up front; CSV lines are written and
// flushed one at a time.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll(r.Context(), store.ListOptions{})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for line := range export.Lines(records) {
		if _, err := io.WriteString(w, line); err != nil {
			observability.LoggerFromContext(r.Context()).Warn("export aborted", zap.Error(err))
			return
		}
		// Writers without flush support buffer until the handler returns.
		_ = rc.Flush()
	}
	observability.ExportRowsTotal.Add(float64(len(records)))
}

// GetHealth handles GET /health. An unreachable store or a shutdown in progress yields 503.
// A provider failing past the error threshold reports degraded with 200.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	checks := map[string]string{"store": "healthy"}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingLimit)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = "unhealthy"
		status, code = "unhealthy", http.StatusServiceUnavailable
		observability.LoggerFromContext(r.Context()).Warn("store ping failed", zap.Error(err))
	}
	if h.upstream != nil {
		checks["weatherApi"] = "healthy"
		if h.upstream.Degraded() {
			checks["weatherApi"] = "unhealthy"
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}
	if lifecycle.IsShuttingDown() {
		status, code = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthMu.Lock()
	if h.healthPrev != "" && h.healthPrev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", h.healthPrev),
			zap.String("current_status", status))
	}
	h.healthPrev = status
	h.healthMu.Unlock()

	writeJSON(w, code, map[string]any{
		"status":    status,
		"service":   serviceName,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": message} envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError writes a 500 carrying err's message and logs it with the request's
// correlation id.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, err.Error())
}
