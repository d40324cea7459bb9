package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/kjstillabower/weather-history-api/internal/models"
)

// DefaultTable is the table holding weather records.
const DefaultTable = "weather_requests"

// Backend names accepted in configuration.
const (
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
)

// ErrUnknownColumn is returned when a row names a column the table does not have.
var ErrUnknownColumn = errors.New("unknown column")

// ListOptions controls ListAll ordering. The zero value leaves order to the backend.
type ListOptions struct {
	OrderBy string
	Desc    bool
}

// NewestFirst orders records by created_at descending.
var NewestFirst = ListOptions{OrderBy: models.ColumnCreatedAt, Desc: true}

// Store is the record store for weather_requests. Mutations are serialized by the
// backing service; implementations hold no per-request state.
type Store interface {
	// Insert writes one row and returns it with the store-assigned id and created_at.
	Insert(ctx context.Context, row map[string]any) (models.Record, error)
	// InsertArbitrary writes a caller-supplied row without validating its fields.
	InsertArbitrary(ctx context.Context, fields map[string]any) error
	// ListAll returns every record.
	ListAll(ctx context.Context, opts ListOptions) ([]models.Record, error)
	// DeleteByID removes the record with id. Deleting an absent id is not an error.
	DeleteByID(ctx context.Context, id int64) error
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkIdent rejects table and column names that cannot be used unquoted.
func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}
