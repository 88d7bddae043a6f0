package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AlphaVantageAPIKey     string
	AlphaVantageDailyLimit int
	AlphaVantagePerMinute  int
	FMPAPIKey              string
	FMPDailyLimit          int

	OpenAIAPIKey string
	OpenAIModel  string

	RedisURL           string
	SeriesCacheTTLSecs int

	Symbols                []string
	PredictionIntervalMins int
	RunOnStart             bool
	TuningFile             string

	HTTPPort     int
	APIAuthToken string

	LogLevel  string
	LogFormat string

	MCPTransport          string
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int
	MCPRateLimitPerMin    int

	SSHPort           int
	SSHHostKeyPath    string
	SSHAuthorizedKeys string
}

func Load() *Config {
	cfg := &Config{
		AlphaVantageAPIKey: strings.TrimSpace(os.Getenv("ALPHA_VANTAGE_API_KEY")),
		FMPAPIKey:          strings.TrimSpace(os.Getenv("FMP_API_KEY")),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		APIAuthToken:       strings.TrimSpace(os.Getenv("API_AUTH_TOKEN")),
		MCPAuthToken:       strings.TrimSpace(os.Getenv("MCP_AUTH_TOKEN")),
		TuningFile:         strings.TrimSpace(os.Getenv("PREDICTOR_TUNING_FILE")),
		SSHAuthorizedKeys:  strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_KEYS")),
	}

	if cfg.AlphaVantageAPIKey == "" {
		log.Warn().Msg("ALPHA_VANTAGE_API_KEY not set, market data fetches will fail")
	}
	if cfg.FMPAPIKey == "" {
		log.Info().Msg("FMP_API_KEY not set, fmp_news sentiment sources will be excluded")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Info().Msg("OPENAI_API_KEY not set, sentiment items use keyword scoring")
	}
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, series cache and progress fan-out disabled")
	}

	cfg.AlphaVantageDailyLimit = intEnv("ALPHA_VANTAGE_DAILY_LIMIT", 25)
	cfg.AlphaVantagePerMinute = intEnv("ALPHA_VANTAGE_PER_MINUTE", 5)
	cfg.FMPDailyLimit = intEnv("FMP_DAILY_LIMIT", 250)

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.SeriesCacheTTLSecs = intEnv("SERIES_CACHE_TTL_SECS", 6*60*60)

	cfg.Symbols = splitSymbols(os.Getenv("PREDICTOR_SYMBOLS"))
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"SPY", "VEA"}
	}

	cfg.PredictionIntervalMins = intEnv("PREDICTION_INTERVAL_MINS", 180)

	cfg.RunOnStart = true
	if v := strings.TrimSpace(os.Getenv("PREDICTION_RUN_ON_START")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RunOnStart = b
		}
	}

	cfg.HTTPPort = intEnv("HTTP_PORT", 8080)
	if cfg.APIAuthToken == "" {
		log.Warn().Msg("API_AUTH_TOKEN not set, POST /api/predictions/run is unauthenticated")
	}

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Warn().Str("transport", cfg.MCPTransport).Msg("unsupported MCP_TRANSPORT, defaulting to stdio")
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}
	cfg.MCPHTTPPort = intEnv("MCP_HTTP_PORT", 8090)
	cfg.MCPRequestTimeoutSecs = intEnv("MCP_REQUEST_TIMEOUT_SECS", 5)
	cfg.MCPRateLimitPerMin = intEnv("MCP_RATE_LIMIT_PER_MIN", 60)

	cfg.SSHPort = intEnv("SSH_PORT", 23234)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/predictor_ed25519"
	}

	return cfg
}

// intEnv returns the positive integer in name, or def when unset or invalid.
func intEnv(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("var", name).Str("value", v).Int("default", def).Msg("invalid integer, using default")
		return def
	}
	return n
}

func splitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
