package parseapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aiparsehub/psgateway/internal/cache"
	"github.com/aiparsehub/psgateway/internal/envelope"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/logsink"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/router"
	"github.com/aiparsehub/psgateway/internal/upstream"
	"github.com/stretchr/testify/require"
)

func chatHandler(content string) http.HandlerFunc {
	quoted, _ := json.Marshal(content)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test-model","choices":[{"message":{"content":` + string(quoted) + `}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}
}

func newTestOrchestrator(t *testing.T, providerABaseURL, providerBBaseURL string) *Orchestrator {
	t.Helper()
	cfg := gwconfig.Config{
		ProviderA: gwconfig.ProviderConfig{ID: "provider-a", APIKey: "", BaseURL: providerABaseURL, Model: "model-a"},
		ProviderB: gwconfig.ProviderConfig{ID: "provider-b", APIKey: "", BaseURL: providerBBaseURL, Model: "model-b"},
		Premium:   gwconfig.ProviderConfig{ID: "premium", APIKey: ""},
	}
	if providerABaseURL != "" {
		cfg.ProviderA.APIKey = "key-a"
	}
	if providerBBaseURL != "" {
		cfg.ProviderB.APIKey = "key-b"
	}

	store := cache.NewInMemory()
	pool := poolstatus.New(store, cfg)
	r := router.New(cfg, pool, nil)
	client := upstream.New()

	logPath := filepath.Join(t.TempDir(), "ps_parse.log")
	logWriter, err := logsink.New(logPath)
	require.NoError(t, err)

	return New(cfg, r, pool, client, logWriter, nil, nil, nil)
}

func TestHandle_AutoModePrefersLocalJSON(t *testing.T) {
	o := newTestOrchestrator(t, "", "")
	resp, status := o.Handle(context.Background(), envelope.Request{Mode: envelope.ModeAuto, Data: `{"a":1}`}, 7, "127.0.0.1")
	require.Equal(t, 200, status)
	require.True(t, resp.OK)
	require.Equal(t, "json", resp.Meta.Mode)
}

func TestHandle_AutoModeFallsThroughToCSVWhenFreePoolUnconfigured(t *testing.T) {
	o := newTestOrchestrator(t, "", "")
	resp, status := o.Handle(context.Background(), envelope.Request{Mode: envelope.ModeAuto, Data: "a,b\n1,2\n"}, 8, "127.0.0.1")
	require.Equal(t, 200, status)
	require.True(t, resp.OK)
	require.Equal(t, "csv", resp.Meta.Mode)
}

func TestHandle_EcomModeSucceeds(t *testing.T) {
	server := httptest.NewServer(chatHandler(`{"title":"Widget","price":9.99,"currency":"USD","spec":{},"skus":[],"bullet_points":[]}`))
	defer server.Close()

	o := newTestOrchestrator(t, server.URL, "")
	resp, status := o.Handle(context.Background(), envelope.Request{Mode: envelope.ModeEcom, Data: "some listing text"}, 20, "127.0.0.1")
	require.Equal(t, 200, status)
	require.True(t, resp.OK)
	require.Equal(t, "ecom", resp.Meta.Mode)
	require.Equal(t, "provider-a", resp.Meta.Deepseek.Provider)
}

func TestHandle_EcomModeContractViolation(t *testing.T) {
	server := httptest.NewServer(chatHandler(`{"title":"Widget"}`))
	defer server.Close()

	o := newTestOrchestrator(t, server.URL, "")
	resp, status := o.Handle(context.Background(), envelope.Request{Mode: envelope.ModeEcom, Data: "some listing text"}, 20, "127.0.0.1")
	require.Equal(t, 422, status)
	require.False(t, resp.OK)
	require.Equal(t, "contract_violation", string(resp.Error.Code))
}

func TestHandle_DeepseekModeFailsWhenFreePoolUnconfigured(t *testing.T) {
	o := newTestOrchestrator(t, "", "")
	resp, status := o.Handle(context.Background(), envelope.Request{Mode: envelope.ModeDeepseek, Data: "hello"}, 5, "127.0.0.1")
	require.Equal(t, 502, status)
	require.False(t, resp.OK)
	require.Equal(t, "ai_call_failed", string(resp.Error.Code))
}

func TestHandle_InvalidModeRejected(t *testing.T) {
	o := newTestOrchestrator(t, "", "")
	resp, status := o.Handle(context.Background(), envelope.Request{Mode: envelope.Mode("xml"), Data: "hello"}, 5, "127.0.0.1")
	require.Equal(t, 400, status)
	require.False(t, resp.OK)
	require.Equal(t, "invalid_mode", string(resp.Error.Code))
}
