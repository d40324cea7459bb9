package observability

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// secretParams are query parameters whose values never reach logs.
var secretParams = []string{"appid", "apikey", "api_key"}

// RoundTripper logs outbound requests with the request-scoped logger when one is present
// on the request context, and falls back to Logger otherwise.
type RoundTripper struct {
	Logger *zap.Logger
	Proxy  http.RoundTripper
}

func NewRoundTripper(logger *zap.Logger) *RoundTripper {
	return &RoundTripper{
		Logger: logger,
		Proxy:  http.DefaultTransport,
	}
}

func (l *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := l.Logger
	if scoped, ok := req.Context().Value(loggerKey).(*zap.Logger); ok && scoped != nil {
		logger = scoped
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	resp, err := l.Proxy.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		logger.Warn("outbound request failed",
			zap.String("method", req.Method),
			zap.String("url", RedactURL(req.URL)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Debug("outbound request completed",
		zap.String("method", req.Method),
		zap.String("url", RedactURL(req.URL)),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

// RedactURL renders u with credential query parameters masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
