// Package export renders stored weather records as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"iter"

	"github.com/kjstillabower/weather-history-api/internal/models"
)

// Header is the fixed column order of every export.
var Header = models.Columns

// Lines yields the header line and then one line per record, each terminated by "\n".
// Lines are produced on demand so the caller can stream them. Missing and null values
// render as empty fields; fields containing commas or quotes are quoted.
func Lines(records []models.Record) iter.Seq[string] {
	return func(yield func(string) bool) {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		fields := make([]string, len(Header))

		encode := func(values []string) string {
			buf.Reset()
			// Writes into a bytes.Buffer do not fail.
			_ = w.Write(values)
			w.Flush()
			return buf.String()
		}

		if !yield(encode(Header)) {
			return
		}
		for _, rec := range records {
			for i, col := range Header {
				fields[i] = rec.String(col)
			}
			if !yield(encode(fields)) {
				return
			}
		}
	}
}
