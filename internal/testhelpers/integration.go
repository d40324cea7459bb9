//go:build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-history-api/internal/client"
	"github.com/kjstillabower/weather-history-api/internal/observability"
	"github.com/kjstillabower/weather-history-api/internal/service"
	"github.com/kjstillabower/weather-history-api/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey      string
	APIURL      string
	SupabaseURL string
	SupabaseKey string
	Table       string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if OPENWEATHER_API_KEY is not set. Supabase is used only when both
// SUPABASE_URL and SUPABASE_KEY are set; otherwise tests run against a temp SQLite file.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}

	table := os.Getenv("INTEGRATION_TABLE")
	if table == "" {
		table = store.DefaultTable
	}
	return IntegrationTestConfig{
		APIKey:      apiKey,
		APIURL:      os.Getenv("WEATHER_API_URL"),
		SupabaseURL: os.Getenv("SUPABASE_URL"),
		SupabaseKey: os.Getenv("SUPABASE_KEY"),
		Table:       table,
	}
}

// SetupIntegrationStore opens the store selected by cfg and closes it when the test ends.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) store.Store {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	var st store.Store
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		st, err = store.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Table, 10*time.Second, logger)
		t.Logf("using Supabase table %s", cfg.Table)
	} else {
		path := filepath.Join(t.TempDir(), "weather.db")
		st, err = store.OpenSQLite(context.Background(), path, cfg.Table, logger)
		t.Logf("using SQLite at %s", path)
	}
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// SetupIntegrationService returns a service talking to the live provider and the store
// from SetupIntegrationStore.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, store.Store) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 10*time.Second, logger)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	st := SetupIntegrationStore(t, cfg)
	return service.NewWeatherService(weatherClient, st), st
}
