package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-api/internal/models"
	"github.com/kjstillabower/weather-history-api/internal/observability"
)

// ErrSupabase wraps non-2xx responses from the Supabase REST API.
var ErrSupabase = errors.New("supabase request failed")

// SupabaseStore talks to a Supabase project through its PostgREST endpoint
// ({url}/rest/v1/{table}).
type SupabaseStore struct {
	endpoint string
	key      string
	client   *http.Client
}

// postgrestError is the error document PostgREST returns on failure.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewSupabaseStore returns a store for table in the Supabase project at projectURL,
// authenticated with key (anon or service-role).
func NewSupabaseStore(projectURL, key, table string, timeout time.Duration, logger *zap.Logger) (*SupabaseStore, error) {
	if projectURL == "" {
		return nil, errors.New("supabase: project URL is required")
	}
	if key == "" {
		return nil, errors.New("supabase: key is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := checkIdent("table", table); err != nil {
		return nil, fmt.Errorf("supabase: %w", err)
	}
	base, err := url.Parse(strings.TrimRight(projectURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("supabase: invalid project URL: %w", err)
	}
	return &SupabaseStore{
		endpoint: base.JoinPath("rest", "v1", table).String(),
		key:      key,
		client: &http.Client{
			Timeout:   timeout,
			Transport: observability.NewRoundTripper(logger),
		},
	}, nil
}

// Insert implements Store.Insert.
func (s *SupabaseStore) Insert(ctx context.Context, row map[string]any) (models.Record, error) {
	start := time.Now()
	var out []models.Record
	err := s.do(ctx, http.MethodPost, nil, row, "return=representation", &out)
	if err == nil && len(out) == 0 {
		err = fmt.Errorf("%w: insert returned no rows", ErrSupabase)
	}
	observability.ObserveStoreOperation(BackendSupabase, "insert", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// InsertArbitrary implements Store.InsertArbitrary.
func (s *SupabaseStore) InsertArbitrary(ctx context.Context, fields map[string]any) error {
	start := time.Now()
	err := s.do(ctx, http.MethodPost, nil, fields, "return=minimal", nil)
	observability.ObserveStoreOperation(BackendSupabase, "insert_arbitrary", time.Since(start).Seconds(), err)
	return err
}

// ListAll implements Store.ListAll.
func (s *SupabaseStore) ListAll(ctx context.Context, opts ListOptions) ([]models.Record, error) {
	start := time.Now()
	params := url.Values{}
	params.Set("select", "*")
	if opts.OrderBy != "" {
		dir := "asc"
		if opts.Desc {
			dir = "desc"
		}
		params.Set("order", opts.OrderBy+"."+dir)
	}
	out := []models.Record{}
	err := s.do(ctx, http.MethodGet, params, nil, "", &out)
	observability.ObserveStoreOperation(BackendSupabase, "list", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByID implements Store.DeleteByID. PostgREST returns 204 whether or not a row
// matched, so deleting an absent id succeeds.
func (s *SupabaseStore) DeleteByID(ctx context.Context, id int64) error {
	start := time.Now()
	params := url.Values{}
	params.Set(models.ColumnID, "eq."+strconv.FormatInt(id, 10))
	err := s.do(ctx, http.MethodDelete, params, nil, "return=minimal", nil)
	observability.ObserveStoreOperation(BackendSupabase, "delete", time.Since(start).Seconds(), err)
	return err
}

// Ping implements Store.Ping with a one-row select.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("select", models.ColumnID)
	params.Set("limit", "1")
	var out []json.RawMessage
	return s.do(ctx, http.MethodGet, params, nil, "", &out)
}

// Close implements Store.Close.
func (s *SupabaseStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *SupabaseStore) do(ctx context.Context, method string, params url.Values, body any, prefer string, out any) error {
	target := s.endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("supabase %s: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read supabase response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeSupabaseError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse supabase response: %w", err)
	}
	return nil
}

func decodeSupabaseError(status int, raw []byte) error {
	var pe postgrestError
	if err := json.Unmarshal(raw, &pe); err == nil && pe.Message != "" {
		if pe.Code == "PGRST204" {
			return fmt.Errorf("%w: HTTP %d: %w: %s", ErrSupabase, status, ErrUnknownColumn, pe.Message)
		}
		return fmt.Errorf("%w: HTTP %d: %s", ErrSupabase, status, pe.Message)
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("%w: HTTP %d: %s", ErrSupabase, status, msg)
}
