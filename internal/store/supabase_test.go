package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-history-api/internal/models"
)

const testKey = "service-role-key"

// fakePostgREST is a minimal in-memory stand-in for the Supabase REST endpoint of one table.
type fakePostgREST struct {
	t      *testing.T
	mu     sync.Mutex
	rows   []map[string]any
	nextID int64
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/rest/v1/weather_requests" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Header.Get("apikey") != testKey || r.Header.Get("Authorization") != "Bearer "+testKey {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
		return
	}

	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var row map[string]any
		if err := json.Unmarshal(body, &row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"PGRST102","message":"Empty or invalid json"}`))
			return
		}
		for k := range row {
			if !isColumn(k) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"PGRST204","message":"Could not find the '` + k + `' column"}`))
				return
			}
		}
		f.nextID++
		row[models.ColumnID] = f.nextID
		row[models.ColumnCreatedAt] = time.Unix(1700000000+f.nextID, 0).UTC().Format(time.RFC3339)
		f.rows = append(f.rows, row)
		if r.Header.Get("Prefer") == "return=representation" {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]map[string]any{row})
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		out := append([]map[string]any{}, f.rows...)
		if order := r.URL.Query().Get("order"); order == "created_at.desc" {
			sort.Slice(out, func(i, j int) bool {
				return out[i][models.ColumnCreatedAt].(string) > out[j][models.ColumnCreatedAt].(string)
			})
		}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(out) {
			out = out[:limit]
		}
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodDelete:
		filter := r.URL.Query().Get(models.ColumnID)
		id, err := strconv.ParseInt(strings.TrimPrefix(filter, "eq."), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		kept := f.rows[:0]
		for _, row := range f.rows {
			if row[models.ColumnID].(int64) != id {
				kept = append(kept, row)
			}
		}
		f.rows = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func isColumn(name string) bool {
	for _, c := range models.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func setupSupabase(t *testing.T) (*SupabaseStore, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{t: t}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s, err := NewSupabaseStore(server.URL+"/", testKey, "", 2*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, fake
}

func TestNewSupabaseStore_Validation(t *testing.T) {
	_, err := NewSupabaseStore("", testKey, "", time.Second, nil)
	assert.Error(t, err)
	_, err = NewSupabaseStore("https://example.supabase.co", "", "", time.Second, nil)
	assert.Error(t, err)
	_, err = NewSupabaseStore("https://example.supabase.co", testKey, "bad-name", time.Second, nil)
	assert.Error(t, err)

	s, err := NewSupabaseStore("https://example.supabase.co", testKey, "", time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co/rest/v1/weather_requests", s.endpoint)
}

func TestSupabaseStore_InsertAndList(t *testing.T) {
	s, _ := setupSupabase(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, map[string]any{models.ColumnCity: "London", models.ColumnTemperature: 15.2})
	require.NoError(t, err)
	id, ok := rec.ID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, err = s.Insert(ctx, map[string]any{models.ColumnCity: "Paris", models.ColumnTemperature: 18.0})
	require.NoError(t, err)

	records, err := s.ListAll(ctx, NewestFirst)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Paris", records[0][models.ColumnCity])
	assert.Equal(t, "London", records[1][models.ColumnCity])
	assert.Equal(t, "15.2", models.FormatValue(records[1][models.ColumnTemperature]))
}

func TestSupabaseStore_DeleteIsIdempotent(t *testing.T) {
	s, fake := setupSupabase(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, map[string]any{models.ColumnCity: "Gone"})
	require.NoError(t, err)
	id, _ := rec.ID()

	require.NoError(t, s.DeleteByID(ctx, id))
	require.NoError(t, s.DeleteByID(ctx, id))
	assert.Empty(t, fake.rows)
}

func TestSupabaseStore_InsertArbitraryUnknownColumn(t *testing.T) {
	s, _ := setupSupabase(t)

	err := s.InsertArbitrary(context.Background(), map[string]any{"pressure": 1013})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSupabase)
	assert.ErrorIs(t, err, ErrUnknownColumn)
	assert.Contains(t, err.Error(), "pressure")
}

func TestSupabaseStore_InsertArbitrary(t *testing.T) {
	s, fake := setupSupabase(t)

	require.NoError(t, s.InsertArbitrary(context.Background(), map[string]any{models.ColumnCity: "X", models.ColumnTemperature: 20}))
	require.Len(t, fake.rows, 1)
	assert.Equal(t, "X", fake.rows[0][models.ColumnCity])
}

func TestSupabaseStore_AuthFailure(t *testing.T) {
	fake := &fakePostgREST{t: t}
	server := httptest.NewServer(fake)
	defer server.Close()

	s, err := NewSupabaseStore(server.URL, "wrong-key", "", time.Second, nil)
	require.NoError(t, err)

	_, err = s.ListAll(context.Background(), NewestFirst)
	require.ErrorIs(t, err, ErrSupabase)
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.Error(t, s.Ping(context.Background()))
}

func TestSupabaseStore_Ping(t *testing.T) {
	s, _ := setupSupabase(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestDecodeSupabaseError_PlainBody(t *testing.T) {
	err := decodeSupabaseError(http.StatusBadGateway, nil)
	require.ErrorIs(t, err, ErrSupabase)
	assert.Contains(t, err.Error(), "Bad Gateway")
}
