// Command psgateway runs the multi-tenant parse/chat AI gateway: the
// structured /v1/parse endpoint and the OpenAI-compatible
// /v1/chat/completions proxy, behind one rate-limited, multi-provider HTTP
// surface plus a separate /metrics listener.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aiparsehub/psgateway/internal/gwconfig"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "version":
			printVersion()
			return
		case "health":
			runHealthCheck()
			return
		case "help", "-h", "--help":
			printUsage()
			return
		}
	}

	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting psgateway",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	cfg := gwconfig.Load(gwconfig.Static{})

	srv := NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("psgateway stopped")
}

func runHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}
	addr := os.Getenv("PS_HEALTH_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}
	resp, err := client.Get(addr + "/v1/parse/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("psgateway %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`psgateway - multi-tenant AI parse/chat gateway

Usage:
  psgateway              Start the gateway
  psgateway version      Show version information
  psgateway health       Check server health
  psgateway help         Show this help message

Environment:
  PS_HTTP_PORT, PS_METRICS_PORT, PS_API_KEYS, PS_PARSE_KEY,
  PS_RATE_LIMIT_PER_MINUTE, REDIS_ADDR, LOG_FORMAT, LOG_LEVEL
  DEEPSEEK_* (provider-a), GROQ_* (provider-b), SILICONFLOW_* (premium),
  each with _API_KEY, _BASE_URL and _MODEL`)
}

func initLogger() *zap.Logger {
	levelName := os.Getenv("LOG_LEVEL")
	var level zapcore.Level
	switch levelName {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	format := os.Getenv("LOG_FORMAT")

	var encoderConfig zapcore.EncoderConfig
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		format = "json"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller())
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
