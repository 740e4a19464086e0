package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const envPrefix = "CHITTI_"

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string // "json" or "text"

	// DBDSN is the SQLite DSN for request and audit logs. Empty disables
	// the store.
	DBDSN string

	PluginManifest  string
	DefaultProvider string
	DefaultModel    string
	EnableBashAgent bool

	ProviderTimeoutSecs int
	FallbackBackoffMs   int

	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	VLLMEndpoints    []string
	VLLMModels       []string

	CORSOrigins []string // empty = ["*"]

	// RateLimitRPS limits prompt and execute requests per client. Zero
	// disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
}

// LoadEnvFile merges KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		DBDSN:      getEnv("DB_DSN", "file:chitti.sqlite"),

		PluginManifest:  getEnv("PLUGIN_MANIFEST", ""),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", ""),
		EnableBashAgent: getEnvBool("ENABLE_BASH_AGENT", true),

		ProviderTimeoutSecs: getEnvInt("PROVIDER_TIMEOUT_SECS", 60),
		FallbackBackoffMs:   getEnvInt("FALLBACK_BACKOFF_MS", 500),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		VLLMEndpoints:    getEnvStringSlice("VLLM_ENDPOINTS", nil),
		VLLMModels:       getEnvStringSlice("VLLM_MODELS", nil),

		CORSOrigins: getEnvStringSlice("CORS_ORIGINS", nil),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4318"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "chitti"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if c.ProviderTimeoutSecs <= 0 {
		return fmt.Errorf("CHITTI_PROVIDER_TIMEOUT_SECS must be > 0, got %d", c.ProviderTimeoutSecs)
	}
	if c.FallbackBackoffMs < 0 {
		return fmt.Errorf("CHITTI_FALLBACK_BACKOFF_MS must be >= 0, got %d", c.FallbackBackoffMs)
	}
	if _, port, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("CHITTI_LISTEN_ADDR %q: %w", c.ListenAddr, err)
	} else if err := ValidatePort(port); err != nil {
		return fmt.Errorf("CHITTI_LISTEN_ADDR: %w", err)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("CHITTI_RATE_LIMIT_RPS must be >= 0, got %v", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("CHITTI_RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimitBurst)
	}
	if len(c.VLLMEndpoints) > 0 && len(c.VLLMModels) == 0 {
		return errors.New("CHITTI_VLLM_MODELS is required when CHITTI_VLLM_ENDPOINTS is set")
	}
	if c.DefaultModel != "" && c.DefaultProvider == "" {
		return errors.New("CHITTI_DEFAULT_MODEL requires CHITTI_DEFAULT_PROVIDER")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("CHITTI_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// ValidatePort accepts decimal ports in 0..65535.
func ValidatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q: must be between 0 and 65535", s)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(envPrefix + key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
