package validation

import (
	"errors"
	"strings"

	"github.com/kjstillabower/weather-history-api/internal/models"
)

// ErrLocationRequired is returned when neither a city nor a full lat/lon pair is given.
var ErrLocationRequired = errors.New("location (city) or coordinates (lat, lon) required")

// ParseQuery trims the inputs and checks presence only: a non-empty city, or both lat and
// lon. Coordinate values are passed to the provider as-is.
func ParseQuery(location, lat, lon string) (models.Query, error) {
	q := models.Query{
		City: strings.TrimSpace(location),
		Lat:  strings.TrimSpace(lat),
		Lon:  strings.TrimSpace(lon),
	}
	if q.City == "" && !q.ByCoordinates() {
		return models.Query{}, ErrLocationRequired
	}
	return q, nil
}
