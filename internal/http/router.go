package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-api/internal/observability"
)

// NewRouter wires every route behind the correlation, metrics and recovery middleware.
// CORS wraps the router so preflight requests are answered before route matching.
func NewRouter(h *Handler, logger *zap.Logger, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(RecoveryMiddleware)

	router.HandleFunc("/", h.Home).Methods(http.MethodGet)
	router.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	router.HandleFunc("/history", h.ListHistory).Methods(http.MethodGet)
	router.HandleFunc("/history", h.CreateHistory).Methods(http.MethodPost)
	router.HandleFunc("/history/{id:[0-9]+}", h.DeleteHistory).Methods(http.MethodDelete)
	router.HandleFunc("/export", h.Export).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	return CORSMiddleware(allowedOrigins)(router)
}
