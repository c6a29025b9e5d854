// Package parseapi implements the mode-dispatch cascade and HTTP surface
// for POST|GET /v1/parse.
package parseapi

import (
	"context"
	"strings"
	"time"

	"github.com/aiparsehub/psgateway/internal/contract"
	"github.com/aiparsehub/psgateway/internal/envelope"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/gwerr"
	"github.com/aiparsehub/psgateway/internal/localparse"
	"github.com/aiparsehub/psgateway/internal/logsink"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/prompts"
	"github.com/aiparsehub/psgateway/internal/router"
	"github.com/aiparsehub/psgateway/internal/telemetry"
	"github.com/aiparsehub/psgateway/internal/upstream"
	"go.uber.org/zap"
)

// MaxInputBytes bounds the request payload to 256 KiB.
const MaxInputBytes = 256 * 1024

// deepseekNotConfiguredSentinel is an auto-mode swallow trigger, treated as
// equivalent to the router's generic free-pool-not-configured sentinel
// (see DESIGN.md).
const deepseekNotConfiguredSentinel = "deepseek_not_configured"

// MonetizationRecord is one append-only line in runtime/log/ps_parse.log.
type MonetizationRecord struct {
	TS           string `json:"ts"`
	RequestID    string `json:"request_id"`
	OK           bool   `json:"ok"`
	Mode         string `json:"mode"`
	ResolvedMode string `json:"resolved_mode"`
	ClientIP     string `json:"client_ip"`
	InputBytes   int    `json:"input_bytes"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Provider     string `json:"provider"`
	Tier         string `json:"tier"`
	Model        string `json:"model"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// Orchestrator drives the per-mode parser/upstream cascade.
type Orchestrator struct {
	cfg             gwconfig.Config
	router          *router.Router
	pool            *poolstatus.Store
	upstreamClient  *upstream.Client
	monetizationLog *logsink.Writer
	metrics         *telemetry.Collector
	tracer          *telemetry.Tracer
	logger          *zap.Logger
}

// New builds an Orchestrator from its collaborators.
func New(cfg gwconfig.Config, r *router.Router, pool *poolstatus.Store, client *upstream.Client, monetizationLog *logsink.Writer, metrics *telemetry.Collector, tracer *telemetry.Tracer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:             cfg,
		router:          r,
		pool:            pool,
		upstreamClient:  client,
		monetizationLog: monetizationLog,
		metrics:         metrics,
		tracer:          tracer,
		logger:          logger.With(zap.String("component", "parseapi")),
	}
}

type cascadeEntry struct {
	local    string // "json" | "query" | "kv" | "csv" when non-empty
	upstream string // "auto" | "deepseek" | "ecom" | "news" | "social" when non-empty
}

func cascadeFor(mode envelope.Mode) []cascadeEntry {
	switch mode {
	case envelope.ModeAuto:
		return []cascadeEntry{
			{local: "json"},
			{upstream: "auto"},
			{local: "query"},
			{local: "kv"},
			{local: "csv"},
		}
	case envelope.ModeJSON, envelope.ModeQuery, envelope.ModeKV, envelope.ModeCSV:
		return []cascadeEntry{{local: string(mode)}}
	case envelope.ModeDeepseek, envelope.ModeEcom, envelope.ModeNews, envelope.ModeSocial:
		return []cascadeEntry{{upstream: string(mode)}}
	default:
		return nil
	}
}

func contractModeFor(upstreamMode string) string {
	switch upstreamMode {
	case "ecom", "news", "social", "auto":
		return upstreamMode
	default: // "deepseek"
		return "core"
	}
}

// outcome captures one cascade entry's result.
type outcome struct {
	ok           bool
	resolvedMode string
	data         any
	provider     string
	tier         string
	model        string
	inputTokens  int
	outputTokens int
	gwErr        *gwerr.Error
	swallow      bool
}

// Handle runs the full cascade for a validated request and returns the
// wire envelope plus the HTTP status to answer with.
func (o *Orchestrator) Handle(ctx context.Context, req envelope.Request, inputBytes int, clientIP string) (*envelope.Response, int) {
	start := time.Now()
	requestID := envelope.NewRequestID()

	ctx, span := o.tracer.StartRequest(ctx, "parse", string(req.Mode))
	defer span.End()

	entries := cascadeFor(req.Mode)
	if entries == nil {
		return o.fail(requestID, gwerr.New(gwerr.CodeInvalidMode, 400, "unsupported mode: "+string(req.Mode)), req, inputBytes, clientIP, start)
	}

	text := req.Data
	if text == "" {
		text = req.URL
	}

	var last outcome
	for _, entry := range entries {
		var oc outcome
		if entry.local != "" {
			oc = o.attemptLocal(entry.local, text)
		} else {
			oc = o.attemptUpstream(ctx, entry.upstream, req, text)
		}
		last = oc
		if oc.ok {
			return o.succeed(requestID, oc, req, inputBytes, clientIP, start)
		}
		if oc.swallow {
			continue
		}
		if entry.upstream != "" {
			// A non-swallowed upstream failure aborts the cascade immediately.
			return o.fail(requestID, oc.gwErr, req, inputBytes, clientIP, start)
		}
		// Local parser failures are always swallowed; try the next entry.
	}

	if last.gwErr != nil {
		return o.fail(requestID, last.gwErr, req, inputBytes, clientIP, start)
	}
	return o.fail(requestID, gwerr.New(gwerr.CodeParseFailed, 400, "no parser in the cascade succeeded"), req, inputBytes, clientIP, start)
}

func (o *Orchestrator) attemptLocal(parser, text string) outcome {
	result, ok := localparse.TryOne(parser, text)
	if o.metrics != nil {
		status := "miss"
		if ok {
			status = "hit"
		}
		o.metrics.RecordCascadeAttempt(parser, status)
	}
	if !ok {
		return outcome{swallow: true}
	}
	return outcome{ok: true, resolvedMode: parser, data: result.Value}
}

func (o *Orchestrator) attemptUpstream(ctx context.Context, mode string, req envelope.Request, text string) outcome {
	systemText := prompts.Effective(mode, req.Instruction)
	if req.TargetLang != envelope.TargetLangNone {
		systemText += "\ntarget_lang=" + string(req.TargetLang)
	}

	callFor := func(p gwconfig.ProviderConfig) router.Call {
		return func(ctx context.Context) upstream.Result {
			if !p.Configured() {
				return upstream.Result{ErrorMessage: "provider_not_configured"}
			}
			ctx, span := o.tracer.StartUpstreamCall(ctx, p.ID, p.Tier)
			defer span.End()
			return o.upstreamClient.Call(ctx, p.BaseURL+"/v1/chat/completions", p.APIKey, p.Model, systemText, text)
		}
	}

	callStart := time.Now()
	sel, res := o.router.Route(ctx, req.AuthToken, text, callFor(o.cfg.Premium), callFor(o.cfg.ProviderA), callFor(o.cfg.ProviderB))

	if o.metrics != nil {
		status := "ok"
		if !res.OK {
			status = "error"
		}
		o.metrics.RecordUpstreamCall(sel.Provider, sel.Tier, status, time.Since(callStart), res.Usage.PromptTokens, res.Usage.CompletionTokens)
	}

	if !res.OK {
		if mode == "auto" && (res.ErrorMessage == router.ErrFreePoolNotConfigured || res.ErrorMessage == deepseekNotConfiguredSentinel) {
			return outcome{swallow: true}
		}
		return outcome{gwErr: gwerr.New(gwerr.CodeAICallFailed, 502, res.ErrorMessage).WithProvider(sel.Provider)}
	}

	contractMode := contractModeFor(mode)
	var objMap map[string]any
	isObject := false
	if m, ok := res.JSONObject.(map[string]any); ok {
		objMap = m
		isObject = true
	}
	ok, missing := contract.Validate(contractMode, objMap, isObject)
	if !ok {
		msg := "missing required fields: " + strings.Join(missing, ",")
		return outcome{gwErr: gwerr.New(gwerr.CodeContractViolation, 422, msg).WithProvider(sel.Provider)}
	}

	return outcome{
		ok:           true,
		resolvedMode: mode,
		data:         res.JSONObject,
		provider:     sel.Provider,
		tier:         sel.Tier,
		model:        res.Model,
		inputTokens:  res.Usage.PromptTokens,
		outputTokens: res.Usage.CompletionTokens,
	}
}

func (o *Orchestrator) succeed(requestID string, oc outcome, req envelope.Request, inputBytes int, clientIP string, start time.Time) (*envelope.Response, int) {
	meta := &envelope.Meta{
		Mode:       oc.resolvedMode,
		InputBytes: inputBytes,
		URL:        req.URL,
		TargetLang: string(req.TargetLang),
	}
	if oc.provider != "" {
		meta.Deepseek = &envelope.DeepseekMeta{
			Provider:     oc.provider,
			Tier:         oc.tier,
			InputTokens:  oc.inputTokens,
			OutputTokens: oc.outputTokens,
			Model:        oc.model,
		}
	}
	resp, err := envelope.Success(requestID, oc.data, meta)
	if err != nil {
		gwErr, _ := gwerr.As(err)
		return o.fail(requestID, gwErr, req, inputBytes, clientIP, start)
	}
	o.logMonetization(requestID, true, req, oc, inputBytes, clientIP, start, "")
	return resp, 200
}

func (o *Orchestrator) fail(requestID string, gwErr *gwerr.Error, req envelope.Request, inputBytes int, clientIP string, start time.Time) (*envelope.Response, int) {
	meta := &envelope.Meta{Mode: string(req.Mode), InputBytes: inputBytes, URL: req.URL}
	resp := envelope.Failure(requestID, gwErr, meta)
	o.logMonetization(requestID, false, req, outcome{gwErr: gwErr}, inputBytes, clientIP, start, string(gwErr.Code))
	if o.metrics != nil {
		o.metrics.RecordParseRequest(string(req.Mode), "error")
	}
	return resp, gwErr.HTTPStatus
}

func (o *Orchestrator) logMonetization(requestID string, ok bool, req envelope.Request, oc outcome, inputBytes int, clientIP string, start time.Time, errorCode string) {
	if o.monetizationLog == nil {
		return
	}
	record := MonetizationRecord{
		TS:           envelope.Now(),
		RequestID:    requestID,
		OK:           ok,
		Mode:         string(req.Mode),
		ResolvedMode: oc.resolvedMode,
		ClientIP:     clientIP,
		InputBytes:   inputBytes,
		InputTokens:  oc.inputTokens,
		OutputTokens: oc.outputTokens,
		Provider:     oc.provider,
		Tier:         oc.tier,
		Model:        oc.model,
		DurationMs:   time.Since(start).Milliseconds(),
		ErrorCode:    errorCode,
	}
	if err := o.monetizationLog.Write(record); err != nil {
		o.logger.Warn("failed to write monetization log", zap.Error(err))
	}
	if ok && o.metrics != nil {
		o.metrics.RecordParseRequest(string(req.Mode), "ok")
	}
}
