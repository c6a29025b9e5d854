// Package gwconfig resolves gateway settings from static config, the
// environment and hard-coded defaults, honoring the REPLACE_WITH_ placeholder
// sentinel as "absent".
package gwconfig

import (
	"os"
	"strconv"
	"strings"
)

// PlaceholderPrefix marks an api_key value as unconfigured.
const PlaceholderPrefix = "REPLACE_WITH_"

// IsPlaceholder reports whether v should be treated as absent.
func IsPlaceholder(v string) bool {
	return strings.HasPrefix(v, PlaceholderPrefix)
}

// Source resolves a single setting across three tiers: static value,
// environment variable, hard-coded default.
type Source struct {
	// Static is the value from any static config (e.g. a loaded file); empty
	// means "not present".
	Static string
	// Env is the environment variable name to check next.
	Env string
	// Default is returned if neither of the above yields a non-empty,
	// non-placeholder value.
	Default string
}

// Resolve applies the resolution order and placeholder rule.
func (s Source) Resolve() string {
	if v := strings.TrimSpace(s.Static); v != "" && !IsPlaceholder(v) {
		return v
	}
	if s.Env != "" {
		if v := strings.TrimSpace(os.Getenv(s.Env)); v != "" && !IsPlaceholder(v) {
			return v
		}
	}
	return s.Default
}

// ProviderConfig is the resolved configuration for one upstream provider.
type ProviderConfig struct {
	ID       string
	APIKey   string
	BaseURL  string
	Model    string
	Tier     string
}

// Configured reports whether the provider has a usable, non-placeholder key.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" && !IsPlaceholder(p.APIKey)
}

// Config is the fully resolved gateway configuration.
type Config struct {
	APIKeys           []string // allow-list of Premium bearer tokens
	ParseKey          string   // required X-Parse-Key / X-Api-Key value, empty = no gating
	RateLimitPerMin   int
	SupportedModes    []string
	HTTPPort          int
	MetricsPort       int
	LogDir            string

	ProviderA ProviderConfig
	ProviderB ProviderConfig
	Premium   ProviderConfig
}

// Static carries any statically-configured overrides (e.g. from a config
// file); every field is optional and falls through to env/defaults.
type Static struct {
	APIKeys         []string
	ParseKey        string
	RateLimitPerMin string
	ProviderA       ProviderConfig
	ProviderB       ProviderConfig
	Premium         ProviderConfig
}

// Load resolves a Config from the given static overrides, the process
// environment, and built-in defaults.
func Load(static Static) Config {
	apiKeys := static.APIKeys
	if len(apiKeys) == 0 {
		apiKeys = splitNonEmpty(os.Getenv("PS_API_KEYS"), ",")
	}

	parseKey := Source{Static: static.ParseKey, Env: "PS_PARSE_KEY"}.Resolve()
	if parseKey == "" {
		parseKey = Source{Env: "PARSE_API_KEY"}.Resolve()
	}

	rateLimit := 10
	if v := (Source{Static: static.RateLimitPerMin, Env: "PS_RATE_LIMIT_PER_MINUTE", Default: "10"}).Resolve(); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateLimit = n
		}
	}

	providerA := resolveProvider(static.ProviderA, "provider-a", "free",
		"DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL", "DEEPSEEK_MODEL",
		"https://api.deepseek.com", "deepseek-chat")
	providerB := resolveProvider(static.ProviderB, "provider-b", "free",
		"GROQ_API_KEY", "GROQ_BASE_URL", "GROQ_MODEL",
		"https://api.groq.com/openai", "llama-3.3-70b-versatile")
	premium := resolveProvider(static.Premium, "premium", "premium",
		"SILICONFLOW_API_KEY", "SILICONFLOW_BASE_URL", "SILICONFLOW_MODEL",
		"https://api.siliconflow.cn", "deepseek-ai/DeepSeek-V3")

	return Config{
		APIKeys:         apiKeys,
		ParseKey:        parseKey,
		RateLimitPerMin: rateLimit,
		SupportedModes:  []string{"auto", "json", "query", "kv", "csv", "deepseek", "ecom", "news", "social"},
		HTTPPort:        envInt("PS_HTTP_PORT", 8080),
		MetricsPort:     envInt("PS_METRICS_PORT", 9090),
		LogDir:          "runtime/log",
		ProviderA:       providerA,
		ProviderB:       providerB,
		Premium:         premium,
	}
}

func resolveProvider(static ProviderConfig, id, tier, keyEnv, urlEnv, modelEnv, defaultURL, defaultModel string) ProviderConfig {
	apiKey := Source{Static: static.APIKey, Env: keyEnv}.Resolve()
	baseURL := Source{Static: static.BaseURL, Env: urlEnv, Default: defaultURL}.Resolve()
	model := Source{Static: static.Model, Env: modelEnv, Default: defaultModel}.Resolve()
	return ProviderConfig{
		ID:      id,
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Tier:    tier,
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
