package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NotAvailable is stored in place of a reading field the provider did not return.
const NotAvailable = "N/A"

// Column names of the weather_requests table.
const (
	ColumnID          = "id"
	ColumnCity        = "city"
	ColumnTemperature = "temperature"
	ColumnDescription = "description"
	ColumnHumidity    = "humidity"
	ColumnWindSpeed   = "wind_speed"
	ColumnCreatedAt   = "created_at"
)

// Columns lists every weather_requests column in export order.
var Columns = []string{
	ColumnID,
	ColumnCity,
	ColumnTemperature,
	ColumnDescription,
	ColumnHumidity,
	ColumnWindSpeed,
	ColumnCreatedAt,
}

// Field is an optional value extracted from a provider payload.
type Field[T any] struct {
	value T
	ok    bool
}

// Present wraps a resolved value.
func Present[T any](v T) Field[T] {
	return Field[T]{value: v, ok: true}
}

// Missing returns an unresolved field.
func Missing[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the value and whether it was resolved.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.ok
}

// IsPresent reports whether the field was resolved.
func (f Field[T]) IsPresent() bool {
	return f.ok
}

// OrNA returns the value, or NotAvailable when missing.
func (f Field[T]) OrNA() any {
	if !f.ok {
		return NotAvailable
	}
	return f.value
}

// Reading is the set of fields extracted from a current-conditions payload.
type Reading struct {
	City        string
	Temperature Field[float64]
	Description Field[string]
	Humidity    Field[float64]
	WindSpeed   Field[float64]
}

// Row converts the reading to a weather_requests row without id and created_at.
func (r Reading) Row() map[string]any {
	return map[string]any{
		ColumnCity:        r.City,
		ColumnTemperature: r.Temperature.OrNA(),
		ColumnDescription: r.Description.OrNA(),
		ColumnHumidity:    r.Humidity.OrNA(),
		ColumnWindSpeed:   r.WindSpeed.OrNA(),
	}
}

// Record is a stored weather_requests row. Rows created through POST /history may carry
// any subset of columns, so values are kept untyped.
type Record map[string]any

// ID returns the numeric id of the record, if it has one.
func (r Record) ID() (int64, bool) {
	switch v := r[ColumnID].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}

// String renders a column value for CSV export. Missing and null values render as "".
func (r Record) String(column string) string {
	return FormatValue(r[column])
}

// FormatValue renders a stored value the way it is shown in exports.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

// Query selects the location for a provider lookup.
type Query struct {
	City string
	Lat  string
	Lon  string
}

// ByCoordinates reports whether the lookup uses lat/lon rather than a city name.
func (q Query) ByCoordinates() bool {
	return q.Lat != "" && q.Lon != ""
}

// Coordinates renders the "lat,lon" literal used when no city name resolves.
func (q Query) Coordinates() string {
	return q.Lat + "," + q.Lon
}

// WeatherBundle is the GET /weather response. Current and Forecast are the provider
// payloads, passed through unmodified.
type WeatherBundle struct {
	City     string          `json:"city"`
	Current  json.RawMessage `json:"current"`
	Forecast json.RawMessage `json:"forecast"`
}
