package adapters

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/providers/adapters/mocks"
	"stampgate/pkg/platform/circuit"
)

type recordingObserver struct {
	mu         sync.Mutex
	categories []providers.ErrorCategory
}

func (o *recordingObserver) ObserveExternalCall(_ string, _ time.Duration, c providers.ErrorCategory) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.categories = append(o.categories, c)
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc, opts ...func(*HTTPAdapterConfig)) *HTTPAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := HTTPAdapterConfig{System: "github", BaseURL: srv.URL, Timeout: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewHTTPAdapter(cfg)
}

func TestHTTPAdapter_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCat    providers.ErrorCategory
		wantStatus int
	}{
		{name: "401 unauthorized", status: http.StatusUnauthorized, wantCat: providers.ErrorUnauthorized, wantStatus: 401},
		{name: "403 unauthorized", status: http.StatusForbidden, wantCat: providers.ErrorUnauthorized, wantStatus: 403},
		{name: "404 not found", status: http.StatusNotFound, wantCat: providers.ErrorNotFound, wantStatus: 404},
		{name: "429 rate limited", status: http.StatusTooManyRequests, wantCat: providers.ErrorRateLimited, wantStatus: 429},
		{name: "500 unexpected", status: http.StatusInternalServerError, wantCat: providers.ErrorUnexpectedStatus, wantStatus: 500},
		{name: "202 unexpected", status: http.StatusAccepted, wantCat: providers.ErrorUnexpectedStatus, wantStatus: 202},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := a.Do(context.Background(), Request{Path: "/x"})

			var pe *providers.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantCat, pe.Category)
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
			assert.Equal(t, "github", pe.System)
		})
	}
}

func TestHTTPAdapter_DoJSON(t *testing.T) {
	t.Run("decodes a 200 body", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			assert.Equal(t, "alice", r.URL.Query().Get("author"))
			_, _ = io.WriteString(w, `{"sha":"abc"}`)
		})

		var out struct {
			SHA string `json:"sha"`
		}
		err := a.DoJSON(context.Background(), Request{Path: "/commits", Query: url.Values{"author": {"alice"}}}, &out)
		require.NoError(t, err)
		assert.Equal(t, "abc", out.SHA)
	})

	t.Run("undecodable 200 is bad data", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		})

		var out map[string]any
		err := a.DoJSON(context.Background(), Request{Path: "/"}, &out)
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
	})

	t.Run("oversized body is bad data", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, strings.Repeat("a", MaxResponseBytes+10))
		})

		_, err := a.Do(context.Background(), Request{Path: "/"})
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
	})
}

func TestHTTPAdapter_SendsFormAndJSONBodies(t *testing.T) {
	t.Run("form", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "c0de", r.PostForm.Get("code"))
			_, _ = io.WriteString(w, `{}`)
		})
		_, err := a.Do(context.Background(), Request{Method: http.MethodPost, Path: "/token", Form: url.Values{"code": {"c0de"}}})
		require.NoError(t, err)
	})

	t.Run("json", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			raw, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"address":"0xabc"}`, string(raw))
			_, _ = io.WriteString(w, `{}`)
		})
		_, err := a.Do(context.Background(), Request{Method: http.MethodPost, Path: "/v1/stake", JSON: map[string]string{"address": "0xabc"}})
		require.NoError(t, err)
	})
}

func TestHTTPAdapter_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *HTTPAdapterConfig) {
		cfg.Timeout = 50 * time.Millisecond
	})

	_, err := a.Do(context.Background(), Request{Path: "/slow"})

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.ErrorUnreachable, pe.Category)
	assert.Equal(t, "request timeout", pe.Message)
}

func TestHTTPAdapter_TransportErrorDoesNotLeakURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: errors.New("connection refused")}
	})

	a := NewHTTPAdapter(HTTPAdapterConfig{System: "facebook", BaseURL: "https://graph.example", HTTPClient: doer})
	_, err := a.Do(context.Background(), Request{Path: "/debug_token", Query: url.Values{"input_token": {"SECRET"}}})

	require.Error(t, err)
	assert.Equal(t, providers.ErrorUnreachable, providers.GetCategory(err))
	assert.NotContains(t, err.Error(), "SECRET")
	assert.NotContains(t, providers.Describe(err), "SECRET")
}

func TestHTTPAdapter_CircuitOpenFailsFast(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection refused")).Times(2)

	breaker := circuit.New("staking", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	obs := &recordingObserver{}
	a := NewHTTPAdapter(HTTPAdapterConfig{
		System:     "staking",
		BaseURL:    "https://staking.example",
		HTTPClient: doer,
		Breaker:    breaker,
		Observer:   obs,
	})

	for range 2 {
		_, err := a.Do(context.Background(), Request{Path: "/v1/stake"})
		require.Error(t, err)
	}

	// Third call never reaches the doer.
	_, err := a.Do(context.Background(), Request{Path: "/v1/stake"})
	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.ErrorUnreachable, pe.Category)
	assert.Equal(t, "circuit open", pe.Message)
	assert.Len(t, obs.categories, 3)
}

func TestHTTPAdapter_ClientErrorsDoNotTripBreaker(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(cfg *HTTPAdapterConfig) {
		cfg.Breaker = circuit.New("github", circuit.WithFailureThreshold(1))
	})

	for range 3 {
		_, err := a.Do(context.Background(), Request{Path: "/repos/x"})
		assert.Equal(t, providers.ErrorNotFound, providers.GetCategory(err))
	}
}

func TestHTTPAdapter_LimiterWaitAbortIsUnreachable(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)

	// Burst of zero can never admit a request.
	limiter := rate.NewLimiter(rate.Every(time.Hour), 0)
	a := NewHTTPAdapter(HTTPAdapterConfig{System: "github", BaseURL: "https://api.example", HTTPClient: doer, Limiter: limiter})

	_, err := a.Do(context.Background(), Request{Path: "/"})
	assert.Equal(t, providers.ErrorUnreachable, providers.GetCategory(err))
}

func TestHTTPAdapter_DefaultMethodAndTrailingSlash(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "https://api.example/user", req.URL.String())
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{}`))}, nil
	})

	a := NewHTTPAdapter(HTTPAdapterConfig{System: "github", BaseURL: "https://api.example/", HTTPClient: doer})
	resp, err := a.Do(context.Background(), Request{Path: "/user"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "github", a.System())
}

func TestHTTPAdapter_ClassifyErrorReadsBody(t *testing.T) {
	classify := func(status int, body []byte) *providers.ProviderError {
		switch {
		case strings.Contains(string(body), `"throttled"`):
			return providers.NewProviderError(providers.ErrorRateLimited, "", "throttled", nil)
		case strings.Contains(string(body), `"expired"`):
			return providers.NewProviderError(providers.ErrorUnauthorized, "", "expired", nil)
		}
		return nil
	}
	breaker := circuit.New("facebook", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"reason":"`+r.URL.Query().Get("reason")+`"}`)
	}, func(cfg *HTTPAdapterConfig) {
		cfg.System = "facebook"
		cfg.ClassifyError = classify
		cfg.Breaker = breaker
	})
	call := func(reason string) *providers.ProviderError {
		_, err := a.Do(context.Background(), Request{Path: "/me", Query: url.Values{"reason": {reason}}})
		var pe *providers.ProviderError
		require.ErrorAs(t, err, &pe)
		return pe
	}

	t.Run("classifier result gets system and status filled in", func(t *testing.T) {
		pe := call("expired")
		assert.Equal(t, providers.ErrorUnauthorized, pe.Category)
		assert.Equal(t, "facebook", pe.System)
		assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	})

	t.Run("nil from classifier falls back to status", func(t *testing.T) {
		assert.Equal(t, providers.ErrorUnexpectedStatus, call("other").Category)
	})

	t.Run("body-reported rate limits trip the breaker", func(t *testing.T) {
		assert.Equal(t, circuit.Closed, breaker.State())
		assert.Equal(t, providers.ErrorRateLimited, call("throttled").Category)
		assert.Equal(t, providers.ErrorRateLimited, call("throttled").Category)
		assert.Equal(t, circuit.Open, breaker.State())
	})
}
