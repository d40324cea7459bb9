package export

import (
	"encoding/csv"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-history-api/internal/models"
)

func collect(records []models.Record) []string {
	return slices.Collect(Lines(records))
}

func TestLines_HeaderOnly(t *testing.T) {
	lines := collect(nil)
	require.Len(t, lines, 1)
	assert.Equal(t, "id,city,temperature,description,humidity,wind_speed,created_at\n", lines[0])
}

func TestLines_Rows(t *testing.T) {
	records := []models.Record{
		{
			"id": int64(1), "city": "London", "temperature": 15.2, "description": "clear sky",
			"humidity": json.Number("70"), "wind_speed": 3.5, "created_at": "2024-01-01T10:00:00Z",
		},
		{
			"id": int64(2), "city": "X", "temperature": 20.0, "created_at": "2024-01-01T11:00:00Z",
		},
	}

	lines := collect(records)
	require.Len(t, lines, 3)
	assert.Equal(t, "1,London,15.2,clear sky,70,3.5,2024-01-01T10:00:00Z\n", lines[1])
	assert.Equal(t, "2,X,20,,,,2024-01-01T11:00:00Z\n", lines[2])
}

func TestLines_NotAvailableAndNull(t *testing.T) {
	lines := collect([]models.Record{{
		"id": int64(3), "city": "Oslo", "temperature": 1.0, "description": nil,
		"humidity": models.NotAvailable, "wind_speed": models.NotAvailable, "created_at": "t",
	}})
	assert.Equal(t, "3,Oslo,1,,N/A,N/A,t\n", lines[1])
}

// TestLines_QuotesEmbeddedCommas verifies every line parses back to exactly seven fields
// when a city holds a "lat,lon" literal.
func TestLines_QuotesEmbeddedCommas(t *testing.T) {
	lines := collect([]models.Record{
		{"id": int64(4), "city": "51.5,-0.12", "temperature": 10.0, "description": `say "hi"`, "created_at": "t"},
		{"id": int64(5), "city": "Paris", "temperature": 11.0, "created_at": "t"},
	})

	r := csv.NewReader(strings.NewReader(strings.Join(lines, "")))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Len(t, row, len(Header), "row %d", i)
	}
	assert.Equal(t, "51.5,-0.12", rows[1][1])
	assert.Equal(t, `say "hi"`, rows[1][3])
}

func TestLines_StopsEarly(t *testing.T) {
	records := []models.Record{{"id": int64(1)}, {"id": int64(2)}, {"id": int64(3)}}

	var n int
	for range Lines(records) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
