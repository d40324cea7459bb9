package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kjstillabower/weather-history-api/internal/models"
	"github.com/kjstillabower/weather-history-api/internal/store"
	"github.com/kjstillabower/weather-history-api/internal/validation"
)

type mockWeatherClient struct {
	current     json.RawMessage
	forecast    json.RawMessage
	currentErr  error
	forecastErr error
	queries     []models.Query
	calls       []string
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, q models.Query) (json.RawMessage, error) {
	m.calls = append(m.calls, "weather")
	m.queries = append(m.queries, q)
	return m.current, m.currentErr
}

func (m *mockWeatherClient) GetForecast(ctx context.Context, q models.Query) (json.RawMessage, error) {
	m.calls = append(m.calls, "forecast")
	m.queries = append(m.queries, q)
	return m.forecast, m.forecastErr
}

type mockStore struct {
	store.Store
	inserted  []map[string]any
	insertErr error
}

func (m *mockStore) Insert(ctx context.Context, row map[string]any) (models.Record, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.inserted = append(m.inserted, row)
	rec := models.Record{models.ColumnID: int64(len(m.inserted))}
	for k, v := range row {
		rec[k] = v
	}
	return rec, nil
}

const londonCurrent = `{"main":{"temp":15.2,"humidity":70},"weather":[{"description":"clear sky"}],"wind":{"speed":3.1},"name":"London"}`
const londonForecast = `{"cod":"200","list":[]}`

func TestWeatherService_FetchAndRecord_Success(t *testing.T) {
	mc := &mockWeatherClient{current: json.RawMessage(londonCurrent), forecast: json.RawMessage(londonForecast)}
	ms := &mockStore{}
	svc := NewWeatherService(mc, ms)

	got, err := svc.FetchAndRecord(context.Background(), "London", "", "")
	if err != nil {
		t.Fatalf("FetchAndRecord() error = %v", err)
	}
	if got.City != "London" {
		t.Errorf("City = %q, want London", got.City)
	}
	if string(got.Current) != londonCurrent || string(got.Forecast) != londonForecast {
		t.Errorf("payloads modified: current=%s forecast=%s", got.Current, got.Forecast)
	}
	if len(mc.calls) != 2 || mc.calls[0] != "weather" || mc.calls[1] != "forecast" {
		t.Errorf("calls = %v, want [weather forecast]", mc.calls)
	}

	if len(ms.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(ms.inserted))
	}
	want := map[string]any{
		models.ColumnCity:        "London",
		models.ColumnTemperature: 15.2,
		models.ColumnDescription: "clear sky",
		models.ColumnHumidity:    70.0,
		models.ColumnWindSpeed:   3.1,
	}
	row := ms.inserted[0]
	if len(row) != len(want) {
		t.Errorf("row = %v, want %v", row, want)
	}
	for k, v := range want {
		if row[k] != v {
			t.Errorf("row[%s] = %v, want %v", k, row[k], v)
		}
	}
	if _, ok := row[models.ColumnID]; ok {
		t.Error("row carries id; the store assigns it")
	}
}

func TestWeatherService_FetchAndRecord_Coordinates(t *testing.T) {
	mc := &mockWeatherClient{current: json.RawMessage(`{"main":{"temp":1.5}}`), forecast: json.RawMessage(`{}`)}
	ms := &mockStore{}
	svc := NewWeatherService(mc, ms)

	got, err := svc.FetchAndRecord(context.Background(), "", "59.91", "10.75")
	if err != nil {
		t.Fatalf("FetchAndRecord() error = %v", err)
	}
	if got.City != "59.91,10.75" {
		t.Errorf("City = %q, want 59.91,10.75", got.City)
	}
	for _, q := range mc.queries {
		if !q.ByCoordinates() {
			t.Errorf("query %+v not by coordinates", q)
		}
	}
	if len(ms.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(ms.inserted))
	}
	if ms.inserted[0][models.ColumnDescription] != models.NotAvailable {
		t.Errorf("description = %v, want N/A", ms.inserted[0][models.ColumnDescription])
	}
}

// TestWeatherService_FetchAndRecord_NoTemperature verifies nothing is stored when the
// provider payload lacks main.temp, and the payload is still returned.
func TestWeatherService_FetchAndRecord_NoTemperature(t *testing.T) {
	const notFound = `{"cod":"404","message":"city not found"}`
	mc := &mockWeatherClient{current: json.RawMessage(notFound), forecast: json.RawMessage(notFound)}
	ms := &mockStore{}
	svc := NewWeatherService(mc, ms)

	got, err := svc.FetchAndRecord(context.Background(), "Atlantis", "", "")
	if err != nil {
		t.Fatalf("FetchAndRecord() error = %v", err)
	}
	if len(ms.inserted) != 0 {
		t.Errorf("inserted %d rows, want 0", len(ms.inserted))
	}
	if got.City != "Atlantis" || string(got.Current) != notFound {
		t.Errorf("FetchAndRecord() = %+v", got)
	}
}

func TestWeatherService_FetchAndRecord_ValidationError(t *testing.T) {
	mc := &mockWeatherClient{}
	svc := NewWeatherService(mc, &mockStore{})

	_, err := svc.FetchAndRecord(context.Background(), "", "51.5", "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("FetchAndRecord() error = %v, want *ValidationError", err)
	}
	if !errors.Is(err, validation.ErrLocationRequired) {
		t.Errorf("error = %v, want ErrLocationRequired", err)
	}
	if len(mc.calls) != 0 {
		t.Errorf("provider called %d times, want 0", len(mc.calls))
	}
}

func TestWeatherService_FetchAndRecord_UpstreamErrors(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	tests := []struct {
		name   string
		client *mockWeatherClient
		store  *mockStore
		wantOp string
	}{
		{
			name:   "current fails",
			client: &mockWeatherClient{currentErr: boom},
			store:  &mockStore{},
			wantOp: "current",
		},
		{
			name:   "forecast fails",
			client: &mockWeatherClient{current: json.RawMessage(londonCurrent), forecastErr: boom},
			store:  &mockStore{},
			wantOp: "forecast",
		},
		{
			name:   "current not an object",
			client: &mockWeatherClient{current: json.RawMessage(`[]`), forecast: json.RawMessage(`{}`)},
			store:  &mockStore{},
			wantOp: "current",
		},
		{
			name:   "insert fails",
			client: &mockWeatherClient{current: json.RawMessage(londonCurrent), forecast: json.RawMessage(londonForecast)},
			store:  &mockStore{insertErr: boom},
			wantOp: "record",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewWeatherService(tt.client, tt.store)
			_, err := svc.FetchAndRecord(context.Background(), "London", "", "")
			var uerr *UpstreamError
			if !errors.As(err, &uerr) {
				t.Fatalf("FetchAndRecord() error = %v, want *UpstreamError", err)
			}
			if uerr.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", uerr.Op, tt.wantOp)
			}
			if len(tt.store.inserted) != 0 {
				t.Errorf("inserted %d rows on failure, want 0", len(tt.store.inserted))
			}
		})
	}
}

// TestWeatherService_FetchAndRecord_ForecastFailureSkipsInsert verifies the insert happens
// only after both provider calls succeed.
func TestWeatherService_FetchAndRecord_ForecastFailureSkipsInsert(t *testing.T) {
	mc := &mockWeatherClient{current: json.RawMessage(londonCurrent), forecastErr: context.DeadlineExceeded}
	ms := &mockStore{}
	svc := NewWeatherService(mc, ms)

	_, err := svc.FetchAndRecord(context.Background(), "London", "", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("FetchAndRecord() error = %v, want deadline exceeded", err)
	}
	if len(ms.inserted) != 0 {
		t.Errorf("inserted %d rows, want 0", len(ms.inserted))
	}
}
