// Package probe checks whether URL content is reachable before it is anchored.
package probe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
)

// Some hosts answer non-browser clients with 403 or 406, so requests
// identify as a desktop browser.
const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	acceptLanguage = "en-US,en;q=0.9"
)

// Validator probes URL content with a single bounded GET.
type Validator struct {
	httpClient *http.Client
	timeout    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewValidator creates a validator whose probes give up after timeout.
func NewValidator(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Validator {
	return &Validator{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
	}
}

// Validate reports whether content may be saved. Anything that is not a
// string starting with "http" passes without a request. URLs pass when the
// server answers 2xx, 3xx, or 403 (commonly bot protection on a live page).
// Redirects are followed.
func (v *Validator) Validate(ctx context.Context, content json.RawMessage) bool {
	url, ok := domain.StringContent(content)
	if !ok || !strings.HasPrefix(url, "http") {
		v.metrics.ContentProbes.WithLabelValues("skipped").Inc()
		return true
	}

	start := time.Now()
	reachable, reason := v.probe(ctx, url)
	v.metrics.ContentProbeDuration.Observe(time.Since(start).Seconds())

	if !reachable {
		v.metrics.ContentProbes.WithLabelValues("unreachable").Inc()
		v.logger.Info("content probe rejected url", "url", url, "reason", reason)
		return false
	}
	v.metrics.ContentProbes.WithLabelValues("reachable").Inc()
	return true
}

func (v *Validator) probe(ctx context.Context, url string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	// Drain a little so the connection can be reused; the body is never inspected.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	_ = resp.Body.Close()

	if acceptable(resp.StatusCode) {
		return true, ""
	}
	return false, resp.Status
}

func acceptable(status int) bool {
	return (status >= 200 && status < 400) || status == http.StatusForbidden
}
