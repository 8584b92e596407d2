// Package fetcher issues catalog page requests with bounded retry and a
// one-shot https→http downgrade for hosts with broken TLS.
package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RetryPolicy parameterises the fetch retry loop. Only statuses listed in
// RetryStatuses and transient connection failures are retried; everything
// else fails on the first attempt.
type RetryPolicy struct {
	MaxAttempts   int
	Backoff       time.Duration
	BackoffMax    time.Duration
	RetryStatuses map[int]struct{}
}

// DefaultRetryPolicy mirrors the crawl defaults: five attempts, exponential
// backoff from one second, retrying server-class failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     time.Second,
		BackoffMax:  30 * time.Second,
		RetryStatuses: map[int]struct{}{
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
	}
}

// RetryableStatus reports whether status is in the retryable set.
func (p RetryPolicy) RetryableStatus(status int) bool {
	_, ok := p.RetryStatuses[status]
	return ok
}

// Delay returns the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay
}

// Page is one fetched document. Body is the response text interpreted as
// UTF-8 regardless of the charset the server declared; the source site
// sometimes mis-declares it and corrupts currency symbols. Attempts counts
// every request issued for this page, retries included.
type Page struct {
	URL        string
	StatusCode int
	Body       string
	Attempts   int
}

// NetworkError reports a request that failed after the retry budget, or a
// non-retryable failure such as a 4xx status.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DowngradeError reports a TLS handshake failure whose one-shot http
// fallback also failed, or could not be attempted.
type DowngradeError struct {
	URL string
	Err error
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("insecure fallback for %s: %v", e.URL, e.Err)
}

func (e *DowngradeError) Unwrap() error {
	return e.Err
}

// Fetcher performs GET requests governed by a RetryPolicy.
type Fetcher struct {
	client    *http.Client
	policy    RetryPolicy
	userAgent string
}

// New builds a Fetcher with a per-request timeout.
func New(timeout time.Duration, policy RetryPolicy, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		policy:    policy,
		userAgent: userAgent,
	}
}

// WithTransport swaps the underlying transport. Used by tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) *Fetcher {
	f.client.Transport = rt
	return f
}

// Fetch retrieves one page. Server-class statuses and transient connection
// failures are retried under the policy budget. A TLS handshake failure on
// an https URL triggers exactly one plain-http attempt at the same path,
// outside the retry loop; if that fails too the request is abandoned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Attempts: 0, Err: err}
	}
	if u.Host == "" {
		return nil, &NetworkError{URL: rawURL, Attempts: 0, Err: errors.New("url has no host")}
	}

	page, err := f.fetchWithRetry(ctx, rawURL)
	if err == nil {
		return page, nil
	}

	if isTLSFailure(err) {
		if u.Scheme != "https" {
			return nil, &DowngradeError{URL: rawURL, Err: err}
		}
		insecure := "http" + strings.TrimPrefix(rawURL, "https")
		page, derr := f.fetchOnce(ctx, insecure)
		if derr != nil {
			return nil, &DowngradeError{URL: rawURL, Err: derr}
		}
		if page.StatusCode >= http.StatusBadRequest {
			return nil, &DowngradeError{URL: rawURL, Err: fmt.Errorf("http status %d", page.StatusCode)}
		}
		return page, nil
	}

	return nil, err
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, rawURL string) (*Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(f.policy.Delay(attempt - 1)):
			case <-ctx.Done():
				return nil, &NetworkError{URL: rawURL, Attempts: attempt - 1, Err: ctx.Err()}
			}
		}

		page, err := f.fetchOnce(ctx, rawURL)
		if err != nil {
			if isTLSFailure(err) {
				return nil, err
			}
			if !retryableConnErr(err) {
				return nil, &NetworkError{URL: rawURL, Attempts: attempt, Err: err}
			}
			lastErr = err
			continue
		}

		page.Attempts = attempt
		if f.policy.RetryableStatus(page.StatusCode) {
			lastErr = fmt.Errorf("http status %d", page.StatusCode)
			continue
		}
		if page.StatusCode >= http.StatusBadRequest {
			return nil, &NetworkError{URL: rawURL, Attempts: attempt, Err: fmt.Errorf("http status %d", page.StatusCode)}
		}
		return page, nil
	}
	return nil, &NetworkError{URL: rawURL, Attempts: f.policy.MaxAttempts, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Page{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       string(trimBOM(raw)),
		Attempts:   1,
	}, nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func retryableConnErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isTLSFailure(err error) bool {
	if err == nil {
		return false
	}
	var record tls.RecordHeaderError
	if errors.As(err, &record) {
		return true
	}
	var verify *tls.CertificateVerificationError
	if errors.As(err, &verify) {
		return true
	}
	var authority x509.UnknownAuthorityError
	if errors.As(err, &authority) {
		return true
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return true
	}
	var invalid x509.CertificateInvalidError
	return errors.As(err, &invalid)
}
