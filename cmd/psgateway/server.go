package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aiparsehub/psgateway/internal/cache"
	"github.com/aiparsehub/psgateway/internal/chatapi"
	"github.com/aiparsehub/psgateway/internal/envelope"
	"github.com/aiparsehub/psgateway/internal/gwconfig"
	"github.com/aiparsehub/psgateway/internal/gwerr"
	"github.com/aiparsehub/psgateway/internal/logsink"
	"github.com/aiparsehub/psgateway/internal/parseapi"
	"github.com/aiparsehub/psgateway/internal/poolstatus"
	"github.com/aiparsehub/psgateway/internal/ratelimit"
	"github.com/aiparsehub/psgateway/internal/router"
	"github.com/aiparsehub/psgateway/internal/server"
	"github.com/aiparsehub/psgateway/internal/telemetry"
	"github.com/aiparsehub/psgateway/internal/upstream"
)

// Server owns every long-lived collaborator and the two HTTP listeners
// (the parse/chat surface, and a separate metrics surface).
type Server struct {
	cfg    gwconfig.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	cacheCloser io.Closer
	tracer      *telemetry.Tracer
}

// NewServer builds a Server from its resolved configuration.
func NewServer(cfg gwconfig.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start wires every collaborator and starts both HTTP listeners in the
// background.
func (s *Server) Start() error {
	cacheBackend, closer, err := s.buildCache()
	if err != nil {
		return fmt.Errorf("failed to build cache backend: %w", err)
	}
	s.cacheCloser = closer

	collector := telemetry.NewCollector("psgateway")
	s.tracer = telemetry.NewTracer("psgateway", 0.1)

	pool := poolstatus.New(cacheBackend, s.cfg)
	rt := router.New(s.cfg, pool, s.logger)
	upstreamClient := upstream.New()
	limiter := ratelimit.New(cacheBackend, s.cfg.RateLimitPerMin)

	if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
		s.logger.Warn("failed to create log directory", zap.Error(err), zap.String("dir", s.cfg.LogDir))
	}
	monetizationLog, err := logsink.New(filepath.Join(s.cfg.LogDir, "ps_parse.log"))
	if err != nil {
		return fmt.Errorf("failed to open monetization log: %w", err)
	}
	accessLog, err := logsink.New(filepath.Join(s.cfg.LogDir, "api_access.log"))
	if err != nil {
		return fmt.Errorf("failed to open access log: %w", err)
	}

	orchestrator := parseapi.New(s.cfg, rt, pool, upstreamClient, monetizationLog, collector, s.tracer, s.logger)
	parseHandlers := parseapi.NewHandlers(orchestrator, pool, s.cfg, s.logger)
	chatGateway := chatapi.New(s.cfg, pool, accessLog, collector, s.tracer, s.logger)

	parseCORS := CORS("GET,POST,OPTIONS")
	chatCORS := CORS("POST,OPTIONS")

	mux := http.NewServeMux()
	mux.Handle("/v1/parse", parseCORS(http.HandlerFunc(parseHandlers.Parse)))
	mux.Handle("/v1/parse/health", parseCORS(http.HandlerFunc(parseHandlers.Health)))
	mux.Handle("/v1/parse/pool_status", parseCORS(http.HandlerFunc(parseHandlers.PoolStatus)))
	mux.Handle("/v1/chat/completions", chatCORS(http.HandlerFunc(chatGateway.Handle)))

	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		Metrics(collector),
		RequestID(),
		SecurityHeaders(),
		RateLimit(limiter, collector, writeRateLimited),
	)

	httpConfig := server.DefaultConfig(fmt.Sprintf(":%d", s.cfg.HTTPPort))
	s.httpManager = server.NewManager(handler, httpConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	s.logger.Info("http server started", zap.Int("port", s.cfg.HTTPPort))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsConfig := server.DefaultConfig(fmt.Sprintf(":%d", s.cfg.MetricsPort))
	s.metricsManager = server.NewManager(metricsMux, metricsConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.MetricsPort))

	return nil
}

// buildCache selects Redis when REDIS_ADDR is set, otherwise an
// in-process cache suitable for a single replica.
func (s *Server) buildCache() (cache.Cache, io.Closer, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return cache.NewInMemory(), nil, nil
	}
	redisCfg := cache.DefaultRedisConfig()
	redisCfg.Addr = addr
	redisCfg.Password = os.Getenv("REDIS_PASSWORD")

	redisCache, err := cache.NewRedisCache(redisCfg, s.logger)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("using redis cache backend", zap.String("addr", addr))
	return redisCache, redisCache, nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then tears down
// every collaborator.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the metrics listener, flushes the tracer, and closes the
// cache backend. The parse/chat listener is already stopped by the time
// WaitForShutdown returns.
func (s *Server) Shutdown() {
	ctx := context.Background()

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Error("tracer shutdown error", zap.Error(err))
		}
	}
	if s.cacheCloser != nil {
		if err := s.cacheCloser.Close(); err != nil {
			s.logger.Error("cache backend close error", zap.Error(err))
		}
	}
}

// writeRateLimited answers a rejected request with the envelope shape used
// everywhere else, tagging meta.limit_per_minute so callers can back off.
func writeRateLimited(w http.ResponseWriter, limit int) {
	gwErr := gwerr.New(gwerr.CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded")
	resp := envelope.Failure(envelope.NewRequestID(), gwErr, &envelope.Meta{Limit: limit})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(resp)
}
