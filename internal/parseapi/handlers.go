package parseapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/aiparsehub/psgateway/internal/envelope"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/gwerr"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/ratelimit"
	"go.uber.org/zap"
)

// requestBody is the JSON shape accepted on POST /v1/parse.
type requestBody struct {
	Mode        string `json:"mode"`
	TargetLang  string `json:"target_lang"`
	Instruction string `json:"instruction"`
	Data        string `json:"data"`
	URL         string `json:"url"`
}

// Handlers wires the orchestrator to the three /v1/parse endpoints.
type Handlers struct {
	orchestrator *Orchestrator
	pool         *poolstatus.Store
	cfg          gwconfig.Config
	logger       *zap.Logger
}

// NewHandlers builds the HTTP layer for the parse surface.
func NewHandlers(orchestrator *Orchestrator, pool *poolstatus.Store, cfg gwconfig.Config, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{orchestrator: orchestrator, pool: pool, cfg: cfg, logger: logger.With(zap.String("component", "parseapi_http"))}
}

// Parse handles POST and GET /v1/parse.
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.writeError(w, "", gwerr.New(gwerr.CodeMethodNotAllowed, 405, "method not allowed"))
		return
	}

	if !h.checkParseKey(r) {
		h.writeError(w, "", gwerr.New(gwerr.CodeUnauthorized, 401, "missing or invalid parse key"))
		return
	}

	body, truncated, err := h.readBody(r)
	if err != nil {
		h.writeError(w, "", gwerr.New(gwerr.CodeEmptyPayload, 400, "failed to read request body"))
		return
	}
	if truncated {
		h.writeError(w, "", gwerr.New(gwerr.CodePayloadTooLarge, 413, "payload exceeds the maximum size"))
		return
	}

	req, inputBytes, gwErr := h.decodeRequest(r, body)
	if gwErr != nil {
		h.writeError(w, "", gwErr)
		return
	}

	clientIP := ratelimit.ClientIP(r)
	resp, status := h.orchestrator.Handle(r.Context(), req, inputBytes, clientIP)
	h.writeJSON(w, status, resp)
}

// Health answers GET /v1/parse/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, 200, map[string]any{"ok": true, "service": "api.v1.parse", "ts": envelope.Now()})
}

// poolStatusData is the data payload of GET /v1/parse/pool_status.
type poolStatusData struct {
	FreePoolReady  bool `json:"free_pool_ready"`
	ProviderAReady bool `json:"provider_a_ready"`
	ProviderBReady bool `json:"provider_b_ready"`
	PremiumReady   bool `json:"premium_ready"`
}

// PoolStatus answers GET /v1/parse/pool_status with the current free-pool
// and Premium provider readiness.
func (h *Handlers) PoolStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.pool.Refresh(r.Context())
	data := poolStatusData{
		FreePoolReady:  snap.ProviderAReady || snap.ProviderBReady,
		ProviderAReady: snap.ProviderAReady,
		ProviderBReady: snap.ProviderBReady,
		PremiumReady:   h.cfg.Premium.Configured(),
	}
	h.writeJSON(w, 200, map[string]any{"ok": true, "data": data})
}

func (h *Handlers) decodeRequest(r *http.Request, body []byte) (envelope.Request, int, *gwerr.Error) {
	var raw requestBody

	if r.Method == http.MethodPost && len(body) > 0 {
		// A non-JSON or field-less body is not an error here: it is treated
		// as the raw data payload itself below.
		_ = json.Unmarshal(body, &raw)
	} else {
		q := r.URL.Query()
		raw = requestBody{
			Mode:        q.Get("mode"),
			TargetLang:  q.Get("target_lang"),
			Instruction: q.Get("instruction"),
			Data:        q.Get("data"),
			URL:         q.Get("url"),
		}
	}

	if r.Method == http.MethodPost && strings.TrimSpace(raw.Data) == "" && strings.TrimSpace(raw.URL) == "" && len(body) > 0 {
		raw.Data = string(body)
	}

	inputBytes := len(raw.Data)
	if inputBytes == 0 {
		inputBytes = len(body)
	}

	if strings.TrimSpace(raw.Data) == "" && strings.TrimSpace(raw.URL) == "" {
		return envelope.Request{}, inputBytes, gwerr.New(gwerr.CodeEmptyPayload, 400, "data or url is required")
	}

	mode := envelope.Mode(raw.Mode)
	if mode == "" {
		mode = envelope.ModeAuto
	}
	if !mode.IsValid() {
		return envelope.Request{}, inputBytes, gwerr.New(gwerr.CodeInvalidMode, 400, "unsupported mode: "+raw.Mode)
	}

	targetLang, err := envelope.NormalizeTargetLang(raw.TargetLang)
	if err != nil {
		gwErr, _ := gwerr.As(err)
		return envelope.Request{}, inputBytes, gwErr
	}

	req := envelope.Request{
		Mode:        mode,
		TargetLang:  targetLang,
		Instruction: raw.Instruction,
		Data:        raw.Data,
		URL:         raw.URL,
		AuthToken:   bearerToken(r),
	}
	return req, inputBytes, nil
}

func (h *Handlers) readBody(r *http.Request) ([]byte, bool, error) {
	if r.Method != http.MethodPost {
		return nil, false, nil
	}
	limited := io.LimitReader(r.Body, MaxInputBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	if len(body) > MaxInputBytes {
		return nil, true, nil
	}
	return body, false, nil
}

// checkParseKey enforces the optional X-Parse-Key/X-Api-Key/?key= gate
// configured via PS_PARSE_KEY/PARSE_API_KEY. An unconfigured key means the
// endpoint is open.
func (h *Handlers) checkParseKey(r *http.Request) bool {
	if h.cfg.ParseKey == "" {
		return true
	}
	candidate := r.Header.Get("X-Parse-Key")
	if candidate == "" {
		candidate = r.Header.Get("X-Api-Key")
	}
	if candidate == "" {
		candidate = r.URL.Query().Get("key")
	}
	return constantTimeEqual(h.cfg.ParseKey, candidate)
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

func (h *Handlers) writeError(w http.ResponseWriter, requestID string, gwErr *gwerr.Error) {
	if requestID == "" {
		requestID = envelope.NewRequestID()
	}
	resp := envelope.Failure(requestID, gwErr, nil)
	h.writeJSON(w, gwErr.HTTPStatus, resp)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to encode response body", zap.Error(err))
	}
}
