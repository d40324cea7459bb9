package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
)

// Config holds service configuration. Values come from defaults, then
// config/{ENV_NAME}.yaml, then the environment (including an optional .env file).
type Config struct {
	ServerPort   string        `envconfig:"PORT" validate:"required,numeric"`
	ReadTimeout  time.Duration `ignored:"true" validate:"gt=0"`
	WriteTimeout time.Duration `ignored:"true" validate:"gt=0"`

	WeatherAPIKey     string        `envconfig:"OPENWEATHER_API_KEY" validate:"required,min=10"`
	WeatherAPIURL     string        `envconfig:"WEATHER_API_URL" validate:"required,url"`
	WeatherAPITimeout time.Duration `ignored:"true" validate:"gt=0"`

	StoreBackend string        `envconfig:"STORE_BACKEND" validate:"oneof=supabase sqlite"`
	StoreTable   string        `ignored:"true" validate:"required"`
	StoreTimeout time.Duration `ignored:"true" validate:"gt=0"`
	SupabaseURL  string        `envconfig:"SUPABASE_URL"`
	SupabaseKey  string        `envconfig:"SUPABASE_KEY"`
	SQLitePath   string        `envconfig:"SQLITE_PATH" validate:"required_if=StoreBackend sqlite"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" validate:"min=1,dive,required"`

	// Provider error rate at or above HealthErrorPct within HealthWindow marks /health
	// degraded. Zero disables the check.
	HealthWindow   time.Duration `ignored:"true" validate:"gt=0"`
	HealthErrorPct int           `ignored:"true" validate:"gte=0,lte=100"`

	ShutdownTimeout time.Duration `ignored:"true" validate:"gt=0"`
}

type fileConfig struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Store struct {
		Backend    string `yaml:"backend"`
		Table      string `yaml:"table"`
		SQLitePath string `yaml:"sqlite_path"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"store"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Health struct {
		Window   string `yaml:"window"`
		ErrorPct *int   `yaml:"error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

func defaults() *Config {
	return &Config{
		ServerPort:         "5000",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		WeatherAPIURL:      "https://api.openweathermap.org/data/2.5",
		WeatherAPITimeout:  10 * time.Second,
		StoreBackend:       BackendSupabase,
		StoreTable:         "weather_requests",
		StoreTimeout:       10 * time.Second,
		SQLitePath:         "data/weather.db",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		HealthWindow:       time.Minute,
		HealthErrorPct:     50,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev, optional), then
// the environment, and validates the result. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(cfg, &fc)
	case os.IsNotExist(err):
		// Environment only.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.Server.Port != "" {
		cfg.ServerPort = fc.Server.Port
	}
	cfg.ReadTimeout = parseDuration(fc.Server.ReadTimeout, cfg.ReadTimeout)
	cfg.WriteTimeout = parseDuration(fc.Server.WriteTimeout, cfg.WriteTimeout)

	if fc.WeatherAPI.URL != "" {
		cfg.WeatherAPIURL = fc.WeatherAPI.URL
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, cfg.WeatherAPITimeout)

	if fc.Store.Backend != "" {
		cfg.StoreBackend = fc.Store.Backend
	}
	if fc.Store.Table != "" {
		cfg.StoreTable = fc.Store.Table
	}
	if fc.Store.SQLitePath != "" {
		cfg.SQLitePath = fc.Store.SQLitePath
	}
	cfg.StoreTimeout = parseDuration(fc.Store.Timeout, cfg.StoreTimeout)

	if len(fc.CORS.AllowedOrigins) > 0 {
		cfg.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	}
	cfg.HealthWindow = parseDuration(fc.Health.Window, cfg.HealthWindow)
	if fc.Health.ErrorPct != nil {
		cfg.HealthErrorPct = *fc.Health.ErrorPct
	}
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, cfg.ShutdownTimeout)
}

// parseDuration parses a YAML duration string, returning defaultVal when it is empty,
// malformed or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var validate = newValidator()

func newValidator() func(*Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by the environment variable that sets them when there is one.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		if cfg.StoreBackend != BackendSupabase {
			return
		}
		if cfg.SupabaseURL == "" {
			sl.ReportError(cfg.SupabaseURL, "SUPABASE_URL", "SupabaseURL", "required", "")
		} else if sl.Validator().Var(cfg.SupabaseURL, "url") != nil {
			sl.ReportError(cfg.SupabaseURL, "SUPABASE_URL", "SupabaseURL", "url", "")
		}
		if cfg.SupabaseKey == "" {
			sl.ReportError(cfg.SupabaseKey, "SUPABASE_KEY", "SupabaseKey", "required", "")
		}
	}, Config{})

	return func(cfg *Config) error {
		err := v.Struct(cfg)
		if err == nil {
			return nil
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be a URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "numeric":
		return fmt.Sprintf("%s must be numeric, got %q", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}
