package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-api/internal/client"
	"github.com/kjstillabower/weather-history-api/internal/models"
	"github.com/kjstillabower/weather-history-api/internal/observability"
	"github.com/kjstillabower/weather-history-api/internal/store"
	"github.com/kjstillabower/weather-history-api/internal/validation"
)

// WeatherService fetches current conditions and forecast from the provider and records
// each lookup that resolved a temperature.
type WeatherService struct {
	client client.WeatherClient
	store  store.Store
}

// NewWeatherService creates a new WeatherService with the provided dependencies.
func NewWeatherService(client client.WeatherClient, store store.Store) *WeatherService {
	return &WeatherService{
		client: client,
		store:  store,
	}
}

// FetchAndRecord looks up current conditions and the forecast for a city or a lat/lon
// pair. The two provider calls run sequentially. When the current-conditions payload
// carries a temperature, one record is inserted before returning; an insert failure fails
// the whole call. Both payloads are returned unmodified.
func (s *WeatherService) FetchAndRecord(ctx context.Context, city, lat, lon string) (models.WeatherBundle, error) {
	q, err := validation.ParseQuery(city, lat, lon)
	if err != nil {
		return models.WeatherBundle{}, &ValidationError{Err: err}
	}

	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	current, err := s.client.GetCurrentWeather(ctx, q)
	if err != nil {
		return models.WeatherBundle{}, &UpstreamError{Op: OpCurrent, Err: err}
	}
	forecast, err := s.client.GetForecast(ctx, q)
	if err != nil {
		return models.WeatherBundle{}, &UpstreamError{Op: OpForecast, Err: err}
	}

	reading, err := ExtractReading(current, q)
	if err != nil {
		return models.WeatherBundle{}, &UpstreamError{Op: OpCurrent, Err: err}
	}

	if reading.Temperature.IsPresent() {
		rec, err := s.store.Insert(ctx, reading.Row())
		if err != nil {
			return models.WeatherBundle{}, &UpstreamError{Op: OpRecord, Err: err}
		}
		observability.RecordsInsertedTotal.WithLabelValues("fetch").Inc()
		id, _ := rec.ID()
		logger.Info("weather recorded", zap.String("city", reading.City), zap.Int64("id", id))
	} else {
		observability.RecordsSkippedTotal.Inc()
		logger.Info("weather not recorded: no temperature in provider response", zap.String("city", reading.City))
	}

	logger.Debug("weather served",
		zap.String("city", reading.City),
		zap.Bool("by_coordinates", q.ByCoordinates()),
		zap.Duration("duration", time.Since(start)))

	return models.WeatherBundle{
		City:     reading.City,
		Current:  current,
		Forecast: forecast,
	}, nil
}
