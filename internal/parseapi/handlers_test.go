package parseapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aiparsehub/psgateway/internal/cache"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/logsink"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/router"
	"github.com/aiparsehub/psgateway/internal/upstream"
	"github.com/stretchr/testify/require"
)

func newTestHandlers(t *testing.T, parseKey string) *Handlers {
	t.Helper()
	cfg := gwconfig.Config{ParseKey: parseKey}
	store := cache.NewInMemory()
	pool := poolstatus.New(store, cfg)
	r := router.New(cfg, pool, nil)
	client := upstream.New()

	logPath := filepath.Join(t.TempDir(), "ps_parse.log")
	logWriter, err := logsink.New(logPath)
	require.NoError(t, err)

	orchestrator := New(cfg, r, pool, client, logWriter, nil, nil, nil)
	return NewHandlers(orchestrator, pool, cfg, nil)
}

func TestParse_GETWithJSONDataSucceeds(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodGet, `/v1/parse?mode=auto&data=%7B%22a%22%3A1%7D`, nil)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 200, rr.Code)
	require.Contains(t, rr.Body.String(), `"ok":true`)
}

func TestParse_POSTJSONBody(t *testing.T) {
	h := newTestHandlers(t, "")
	body := `{"mode":"json","data":"{\"a\":1}"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 200, rr.Code)
}

func TestParse_POSTRawBodyUsedAsDataWhenUnwrapped(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(`{"a":1}`))
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 200, rr.Code)
}

func TestParse_MethodNotAllowed(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodDelete, "/v1/parse", nil)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 405, rr.Code)
	require.Contains(t, rr.Body.String(), "method_not_allowed")
}

func TestParse_EmptyPayloadRejected(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/parse?mode=auto", nil)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 400, rr.Code)
	require.Contains(t, rr.Body.String(), "empty_payload")
}

func TestParse_InvalidModeRejected(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/parse?mode=xml&data=hello", nil)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 400, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_mode")
}

func TestParse_InvalidTargetLangRejected(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/parse?mode=auto&data=hello&target_lang=fr", nil)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 400, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_target_lang")
}

func TestParse_RequiresParseKeyWhenConfigured(t *testing.T) {
	h := newTestHandlers(t, "secret-key")
	req := httptest.NewRequest(http.MethodGet, "/v1/parse?mode=auto&data=hello", nil)
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 401, rr.Code)

	req2 := httptest.NewRequest(http.MethodGet, `/v1/parse?mode=auto&data=%7B%22a%22%3A1%7D`, nil)
	req2.Header.Set("X-Parse-Key", "secret-key")
	rr2 := httptest.NewRecorder()
	h.Parse(rr2, req2)
	require.Equal(t, 200, rr2.Code)
}

func TestParse_PayloadTooLarge(t *testing.T) {
	h := newTestHandlers(t, "")
	oversized := strings.Repeat("a", MaxInputBytes+1024)
	body := `{"mode":"json","data":"` + oversized + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Parse(rr, req)
	require.Equal(t, 413, rr.Code)
}

func TestHealth_ReturnsOK(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/parse/health", nil)
	rr := httptest.NewRecorder()
	h.Health(rr, req)
	require.Equal(t, 200, rr.Code)
	require.Contains(t, rr.Body.String(), `"ok":true`)
}

func TestPoolStatus_ReportsUnconfiguredProviders(t *testing.T) {
	h := newTestHandlers(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/parse/pool_status", nil)
	rr := httptest.NewRecorder()
	h.PoolStatus(rr, req)
	require.Equal(t, 200, rr.Code)
	require.Contains(t, rr.Body.String(), `"free_pool_ready":false`)
	require.Contains(t, rr.Body.String(), `"provider_a_ready":false`)
	require.Contains(t, rr.Body.String(), `"premium_ready":false`)
}
