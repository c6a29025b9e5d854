package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aiparsehub/psgateway/internal/cache"
	"github.com/aiparsehub/psgateway/internal/ratelimit"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecovery_CatchesPanic(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "server_error")
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var captured string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, captured)
	require.Equal(t, captured, rr.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesInbound(t *testing.T) {
	var captured string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	h.ServeHTTP(rr, req)
	require.Equal(t, "client-supplied", captured)
}

func TestCORS_AnswersOptionsPreflight(t *testing.T) {
	h := CORS("GET,POST,OPTIONS")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run on OPTIONS")
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/parse", nil)
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	limiter := ratelimit.New(cache.NewInMemory(), 1)
	rejected := false
	h := RateLimit(limiter, nil, func(w http.ResponseWriter, limit int) {
		rejected = true
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/parse", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	h.ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, rejected)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, rejected)
}
