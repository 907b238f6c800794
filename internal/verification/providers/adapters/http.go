package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stampgate/internal/verification/providers"
	"stampgate/pkg/platform/circuit"
)

// MaxResponseBytes caps how much of an external response body is read.
const MaxResponseBytes = 1 << 20

const defaultTimeout = 10 * time.Second

// Observer receives one observation per external call. category is empty on success.
type Observer interface {
	ObserveExternalCall(system string, duration time.Duration, category providers.ErrorCategory)
}

// HTTPAdapter performs requests against one external system and classifies
// every failure into a providers.ErrorCategory. It never retries.
type HTTPAdapter struct {
	system   string
	baseURL  string
	client   HTTPDoer
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  *circuit.Breaker
	classify ErrorClassifier
	observer Observer
	logger   *slog.Logger
}

// ErrorClassifier inspects a non-200 response body. It returns nil when the
// body says nothing beyond the status code.
type ErrorClassifier func(status int, body []byte) *providers.ProviderError

// HTTPAdapterConfig configures an HTTP adapter
type HTTPAdapterConfig struct {
	System     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer

	// Limiter paces outbound calls. Nil disables pacing.
	Limiter *rate.Limiter

	// Breaker fails calls fast while the system is down. Nil disables it.
	Breaker *circuit.Breaker

	// ClassifyError refines status-based classification for systems that
	// report failures in the body. Nil classifies by status alone.
	ClassifyError ErrorClassifier

	Observer Observer
	Logger   *slog.Logger
}

// Request describes one outbound call. Path is joined to the adapter's base URL.
// At most one of Form and JSON is set.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Form   url.Values
	JSON   any
}

// Response is a fully read 200 response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewHTTPAdapter creates a new HTTP protocol adapter
func NewHTTPAdapter(cfg HTTPAdapterConfig) *HTTPAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPAdapter{
		system:   cfg.System,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   selectHTTPClient(cfg),
		timeout:  cfg.Timeout,
		limiter:  cfg.Limiter,
		breaker:  cfg.Breaker,
		classify: cfg.ClassifyError,
		observer: cfg.Observer,
		logger:   logger,
	}
}

func selectHTTPClient(cfg HTTPAdapterConfig) HTTPDoer {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	return &http.Client{
		Timeout: cfg.Timeout,
	}
}

// System returns the external system identifier
func (a *HTTPAdapter) System() string {
	return a.system
}

// Do executes req once. Any non-200 status comes back as a *providers.ProviderError.
func (a *HTTPAdapter) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := a.do(ctx, req)
	a.finish(req, start, err)
	return resp, err
}

// DoJSON executes req and decodes a 200 body into out. An undecodable body is bad_data.
func (a *HTTPAdapter) DoJSON(ctx context.Context, req Request, out any) error {
	start := time.Now()
	err := a.doJSON(ctx, req, out)
	a.finish(req, start, err)
	return err
}

func (a *HTTPAdapter) doJSON(ctx context.Context, req Request, out any) error {
	resp, err := a.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return providers.NewProviderError(providers.ErrorBadData, a.system, "failed to parse response", err)
	}
	return nil
}

func (a *HTTPAdapter) do(ctx context.Context, req Request) (*Response, error) {
	if a.breaker != nil && !a.breaker.Allow() {
		return nil, providers.NewProviderError(providers.ErrorUnreachable, a.system, "circuit open", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, providers.NewProviderError(providers.ErrorUnreachable, a.system, "rate limiter wait aborted", err)
		}
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.recordOutcome(false)
		return nil, a.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		a.recordOutcome(false)
		return nil, a.transportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := a.classifyFailure(resp.StatusCode, body)
		a.recordOutcome(perr.Category != providers.ErrorRateLimited && resp.StatusCode < 500)
		return nil, perr
	}
	a.recordOutcome(true)

	if len(body) > MaxResponseBytes {
		return nil, providers.NewProviderError(providers.ErrorBadData, a.system, "response body too large", nil)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (a *HTTPAdapter) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := url.Parse(a.baseURL + req.Path)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, a.system, "invalid request url", nil)
	}
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.JSON != nil:
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, providers.NewProviderError(providers.ErrorInternal, a.system, "failed to marshal request", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, a.system, "failed to create request", nil)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

// transportError classifies a failed round trip. *url.Error is unwrapped so the
// request URL, which may carry tokens in its query, never ends up in the error.
func (a *HTTPAdapter) transportError(ctx context.Context, err error) *providers.ProviderError {
	var timeout interface{ Timeout() bool }
	timedOut := errors.As(err, &timeout) && timeout.Timeout()

	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	switch {
	case timedOut, errors.Is(ctx.Err(), context.DeadlineExceeded):
		return providers.NewProviderError(providers.ErrorUnreachable, a.system, "request timeout", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return providers.NewProviderError(providers.ErrorUnreachable, a.system, "request cancelled", err)
	}
	return providers.NewProviderError(providers.ErrorUnreachable, a.system, "failed to execute request", err)
}

// classifyFailure lets the system's classifier read the body first and falls
// back to the status code.
func (a *HTTPAdapter) classifyFailure(status int, body []byte) *providers.ProviderError {
	if a.classify != nil {
		if perr := a.classify(status, body); perr != nil {
			if perr.System == "" {
				perr.System = a.system
			}
			if perr.StatusCode == 0 {
				perr.StatusCode = status
			}
			return perr
		}
	}
	return a.classifyStatus(status)
}

func (a *HTTPAdapter) classifyStatus(status int) *providers.ProviderError {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &providers.ProviderError{
			Category:   providers.ErrorUnauthorized,
			System:     a.system,
			Message:    fmt.Sprintf("authentication failed: %d", status),
			StatusCode: status,
		}
	case http.StatusNotFound:
		return &providers.ProviderError{
			Category:   providers.ErrorNotFound,
			System:     a.system,
			Message:    "resource not found",
			StatusCode: status,
		}
	case http.StatusTooManyRequests:
		return &providers.ProviderError{
			Category:   providers.ErrorRateLimited,
			System:     a.system,
			Message:    "rate limit exceeded",
			StatusCode: status,
		}
	}
	return providers.NewStatusError(a.system, status)
}

// recordOutcome feeds the breaker. Client-side rejections such as 401 and 404
// say nothing about the system's health and count as successes.
func (a *HTTPAdapter) recordOutcome(ok bool) {
	if a.breaker == nil {
		return
	}
	tr := a.breaker.Record(!ok)
	if !tr.Changed() {
		return
	}
	switch tr.To {
	case circuit.Open:
		a.logger.Warn("circuit opened", "system", a.system, "from", tr.From.String())
	case circuit.Closed:
		a.logger.Info("circuit closed", "system", a.system)
	}
}

func (a *HTTPAdapter) finish(req Request, start time.Time, err error) {
	elapsed := time.Since(start)
	var category providers.ErrorCategory
	if err != nil {
		category = providers.GetCategory(err)
	}
	if a.observer != nil {
		a.observer.ObserveExternalCall(a.system, elapsed, category)
	}
	a.logger.Debug("external call",
		"system", a.system,
		"method", req.Method,
		"path", req.Path,
		"duration_ms", elapsed.Milliseconds(),
		"error_category", string(category),
	)
}
