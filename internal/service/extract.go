package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kjstillabower/weather-history-api/internal/models"
)

// currentConditions mirrors the parts of the OpenWeatherMap current-conditions document
// that are stored. Every field is decoded loosely so that an absent, null or mistyped
// value yields Missing instead of a decode failure.
type currentConditions struct {
	Main    map[string]json.RawMessage   `json:"main"`
	Weather []map[string]json.RawMessage `json:"weather"`
	Wind    map[string]json.RawMessage   `json:"wind"`
	Name    json.RawMessage              `json:"name"`
}

// ExtractReading pulls temperature, description, humidity, wind speed and the resolved
// city name out of a current-conditions payload. The city name falls back to the queried
// city, then to the "lat,lon" literal.
func ExtractReading(payload json.RawMessage, q models.Query) (models.Reading, error) {
	var doc currentConditions
	if err := decodeObject(payload, &doc); err != nil {
		return models.Reading{}, fmt.Errorf("parse current conditions: %w", err)
	}

	var first map[string]json.RawMessage
	if len(doc.Weather) > 0 {
		first = doc.Weather[0]
	}

	city, _ := stringField(doc.Name).Get()
	if city == "" {
		city = q.City
	}
	if city == "" {
		city = q.Coordinates()
	}

	return models.Reading{
		City:        city,
		Temperature: numberField(doc.Main["temp"]),
		Description: stringField(first["description"]),
		Humidity:    numberField(doc.Main["humidity"]),
		WindSpeed:   numberField(doc.Wind["speed"]),
	}, nil
}

// decodeObject decodes a top-level JSON object, tolerating nested members of the wrong
// shape (e.g. "main": null or "weather": {}).
func decodeObject(payload json.RawMessage, doc *currentConditions) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return err
	}
	_ = json.Unmarshal(top["main"], &doc.Main)
	_ = json.Unmarshal(top["weather"], &doc.Weather)
	_ = json.Unmarshal(top["wind"], &doc.Wind)
	doc.Name = top["name"]
	return nil
}

func numberField(raw json.RawMessage) models.Field[float64] {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == 'n' {
		return models.Missing[float64]()
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Missing[float64]()
	}
	return models.Present(v)
}

func stringField(raw json.RawMessage) models.Field[string] {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == 'n' {
		return models.Missing[string]()
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Missing[string]()
	}
	return models.Present(v)
}
