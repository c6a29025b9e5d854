// Package chatapi implements the OpenAI-compatible /v1/chat/completions
// proxy: free-pool-only routing, model rewriting, and streaming/buffered
// dispatch.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/httpclient"
	"github.com/aiparsehub/psgateway/internal/logsink"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/ratelimit"
	"github.com/aiparsehub/psgateway/internal/router"
	"github.com/aiparsehub/psgateway/internal/streamproxy"
	"github.com/aiparsehub/psgateway/internal/telemetry"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds a chat-completions request body, mirroring the parse
// surface's input-size limit.
const MaxBodyBytes = 256 * 1024

const (
	connectTimeout      = 8 * time.Second
	bufferedTotalTimeout = 30 * time.Second
)

// Gateway routes OpenAI-compatible requests across the free pool only;
// Premium is never consulted here.
type Gateway struct {
	cfg          gwconfig.Config
	pool         *poolstatus.Store
	bufferedHTTP *http.Client
	streamHTTP   *http.Client
	accessLog    *logsink.Writer
	metrics      *telemetry.Collector
	tracer       *telemetry.Tracer
	logger       *zap.Logger
}

// New builds a Gateway.
func New(cfg gwconfig.Config, pool *poolstatus.Store, accessLog *logsink.Writer, metrics *telemetry.Collector, tracer *telemetry.Tracer, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:          cfg,
		pool:         pool,
		bufferedHTTP: httpclient.New(connectTimeout, bufferedTotalTimeout),
		streamHTTP:   httpclient.NewUnbounded(connectTimeout),
		accessLog:    accessLog,
		metrics:      metrics,
		tracer:       tracer,
		logger:       logger.With(zap.String("component", "chatapi")),
	}
}

// accessRecord is one line in runtime/log/api_access.log.
type accessRecord struct {
	TS             string `json:"ts"`
	Provider       string `json:"provider"`
	StatusCode     int    `json:"status_code"`
	FirstByteMs    int64  `json:"first_byte_ms,omitempty"`
	TotalLatencyMs int64  `json:"total_latency_ms"`
	Path           string `json:"path"`
	Stream         bool   `json:"stream"`
	IP             string `json:"ip"`
	Note           string `json:"note,omitempty"`
}

// Handle serves POST /v1/chat/completions.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	limited := io.LimitReader(r.Body, MaxBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "empty_payload", "failed to read request body")
		return
	}
	if len(raw) > MaxBodyBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "payload exceeds the maximum size")
		return
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json_body", "request body is not valid JSON")
		return
	}

	stream, _ := decoded["stream"].(bool)
	requestedModel, _ := decoded["model"].(string)
	messageText := extractMessageText(decoded)
	clientIP := ratelimit.ClientIP(r)

	ctx, span := g.tracer.StartRequest(r.Context(), "chat", "chat.completions")
	defer span.End()

	providerID, targetModel := decideTargetModel(g.cfg, requestedModel, messageText)
	provider, resolvedID, ready := g.selectProvider(ctx, providerID)
	if !ready {
		writeUnavailable(w, stream)
		g.logAccess(accessRecord{TS: nowTS(), Provider: "", StatusCode: http.StatusServiceUnavailable, TotalLatencyMs: time.Since(start).Milliseconds(), Path: r.URL.Path, Stream: stream, IP: clientIP, Note: "no_free_pool_provider"})
		return
	}

	decoded["model"] = targetModel
	outbound, err := json.Marshal(decoded)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "json_encode_failed", "failed to encode outbound request")
		return
	}

	endpoint := provider.BaseURL + "/v1/chat/completions"

	if stream {
		streamCtx, upstreamSpan := g.tracer.StartUpstreamCall(ctx, resolvedID, "free")
		rec := streamproxy.Stream(streamCtx, w, g.streamHTTP, streamproxy.Request{
			Endpoint: endpoint,
			APIKey:   provider.APIKey,
			Body:     outbound,
			Provider: resolvedID,
		}, g.metrics)
		upstreamSpan.End()
		note := ""
		if rec.Status >= 400 {
			note = "upstream_error"
		}
		g.logAccess(accessRecord{TS: nowTS(), Provider: resolvedID, StatusCode: rec.Status, FirstByteMs: rec.FirstByteMs, TotalLatencyMs: rec.TotalMs, Path: r.URL.Path, Stream: true, IP: clientIP, Note: note})
		return
	}

	g.handleBuffered(ctx, w, r, endpoint, provider.APIKey, outbound, resolvedID, targetModel, start, clientIP)
}

func (g *Gateway) handleBuffered(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint, apiKey string, outbound []byte, providerID, model string, start time.Time, clientIP string) {
	ctx, upstreamSpan := g.tracer.StartUpstreamCall(ctx, providerID, "free")
	defer upstreamSpan.End()

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(outbound))
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "ai_call_failed", "failed to build upstream request")
		return
	}
	upstreamReq.Header.Set("Authorization", "Bearer "+apiKey)
	upstreamReq.Header.Set("Content-Type", "application/json")

	resp, err := g.bufferedHTTP.Do(upstreamReq)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "ai_call_failed", "upstream request failed")
		g.logAccess(accessRecord{TS: nowTS(), Provider: providerID, StatusCode: http.StatusBadGateway, TotalLatencyMs: time.Since(start).Milliseconds(), Path: r.URL.Path, Stream: false, IP: clientIP, Note: "upstream_request_failed"})
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	note := ""
	if resp.StatusCode >= 400 {
		note = "upstream_error"
	}
	g.logAccess(accessRecord{TS: nowTS(), Provider: providerID, StatusCode: resp.StatusCode, TotalLatencyMs: time.Since(start).Milliseconds(), Path: r.URL.Path, Stream: false, IP: clientIP, Note: note})
}

// decideTargetModel applies the model-mapping table.
func decideTargetModel(cfg gwconfig.Config, requestedModel, messageText string) (providerID, model string) {
	lower := strings.ToLower(requestedModel)
	switch {
	case strings.Contains(lower, "deepseek"):
		return "provider-a", cfg.ProviderA.Model
	case strings.Contains(lower, "llama"):
		return "provider-b", cfg.ProviderB.Model
	case router.ContainsCJK(messageText):
		return "provider-a", orDefault(requestedModel, cfg.ProviderA.Model)
	default:
		return "provider-b", orDefault(requestedModel, cfg.ProviderB.Model)
	}
}

func orDefault(requested, fallback string) string {
	if requested == "" {
		return fallback
	}
	return requested
}

// selectProvider returns the ready provider to use, switching to the
// alternate free-pool provider when the preferred one is not ready.
func (g *Gateway) selectProvider(ctx context.Context, preferredID string) (gwconfig.ProviderConfig, string, bool) {
	snap := g.pool.Get(ctx)

	preferredReady := (preferredID == "provider-a" && snap.ProviderAReady) || (preferredID == "provider-b" && snap.ProviderBReady)
	if preferredReady {
		if preferredID == "provider-a" {
			return g.cfg.ProviderA, "provider-a", true
		}
		return g.cfg.ProviderB, "provider-b", true
	}

	altID := "provider-b"
	altReady := snap.ProviderBReady
	if preferredID == "provider-b" {
		altID = "provider-a"
		altReady = snap.ProviderAReady
	}
	if altReady {
		if altID == "provider-a" {
			return g.cfg.ProviderA, "provider-a", true
		}
		return g.cfg.ProviderB, "provider-b", true
	}

	return gwconfig.ProviderConfig{}, "", false
}

// extractMessageText concatenates every message's content field, used only
// to decide free-pool provider preference via the CJK heuristic.
func extractMessageText(decoded map[string]any) string {
	messages, ok := decoded["messages"].([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, m := range messages {
		entry, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if content, ok := entry["content"].(string); ok {
			sb.WriteString(content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeUnavailable(w http.ResponseWriter, stream bool) {
	errBody := map[string]any{"error": map[string]any{
		"message": "no free-pool provider is configured",
		"type":    "server_error",
		"code":    "service_unavailable",
	}}

	if !stream {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(errBody)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusServiceUnavailable)
	payload, _ := json.Marshal(errBody)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
	w.Write([]byte("data: [DONE]\n\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": message}})
}

func (g *Gateway) logAccess(record accessRecord) {
	if g.accessLog == nil {
		return
	}
	if err := g.accessLog.Write(record); err != nil {
		g.logger.Warn("failed to write access log", zap.Error(err))
	}
}

func nowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
