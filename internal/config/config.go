package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	AuthMode          string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	StorageDriver     string        `mapstructure:"STORAGE_DRIVER"`
	StoragePath       string        `mapstructure:"STORAGE_PATH"`
	StorageOnCorrupt  string        `mapstructure:"STORAGE_ON_CORRUPT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	S3Bucket          string        `mapstructure:"S3_BUCKET"`
	S3Region          string        `mapstructure:"S3_REGION"`
	S3Endpoint        string        `mapstructure:"S3_ENDPOINT"`
	S3Prefix          string        `mapstructure:"S3_PREFIX"`
	S3PathStyle       bool          `mapstructure:"S3_PATH_STYLE"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LLMAPIKey         string        `mapstructure:"LLM_API_KEY"`
	LLMBaseURL        string        `mapstructure:"LLM_BASE_URL"`
	LLMModel          string        `mapstructure:"LLM_MODEL"`
	LLMTemperature    float64       `mapstructure:"LLM_TEMPERATURE"`
	LLMMaxTokens      int           `mapstructure:"LLM_MAX_TOKENS"`
	LLMTimeout        time.Duration `mapstructure:"LLM_TIMEOUT"`
	RelaySystemPrompt string        `mapstructure:"RELAY_SYSTEM_PROMPT"`
	RelayURL          string        `mapstructure:"RELAY_URL"`
}

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Auth modes accepted by AUTH_MODE.
const (
	AuthNone = "none"
	AuthJWT  = "jwt"
)

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"STORAGE_DRIVER", "STORAGE_PATH", "STORAGE_ON_CORRUPT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PREFIX", "S3_PATH_STYLE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT",
	"LLM_BASE_URL", "LLM_MODEL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT",
	"RELAY_SYSTEM_PROMPT", "RELAY_URL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from AUTH_SIGNING_KEY
	v.SetDefault("STORAGE_DRIVER", DriverFile)
	v.SetDefault("STORAGE_PATH", "./data")
	v.SetDefault("STORAGE_ON_CORRUPT", "fail")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PREFIX", "thyrotrack/")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LLM_BASE_URL", "https://api.siliconflow.cn/v1")
	v.SetDefault("LLM_MODEL", "Qwen/QwQ-32B")
	v.SetDefault("LLM_TEMPERATURE", 0.7)
	v.SetDefault("LLM_MAX_TOKENS", 2000)
	v.SetDefault("LLM_TIMEOUT", "120s")
	v.SetDefault("RELAY_URL", "http://localhost:8000/relay/recipe-chat")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	// The hosted deployment called the key SILICONFLOW_API_KEY.
	_ = v.BindEnv("LLM_API_KEY", "LLM_API_KEY", "SILICONFLOW_API_KEY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if cfg.IsDev() && cfg.ResolvedAuthMode() == AuthNone {
		log.Println("WARNING: running in development mode without authentication (AUTH_MODE=none).")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. An explicit AUTH_MODE wins;
// otherwise a configured AUTH_SIGNING_KEY turns bearer-token auth on.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.AuthSigningKey != "" {
		return AuthJWT
	}
	return AuthNone
}

// Validate checks that the configuration is safe to run. Production refuses
// to start unauthenticated unless AUTH_MODE=none is set explicitly.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	switch mode {
	case AuthNone:
		if c.IsProduction() && c.AuthMode == "" {
			return fmt.Errorf("ENV=production without AUTH_SIGNING_KEY; set AUTH_MODE=none to run unauthenticated on purpose")
		}
	case AuthJWT:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is %q", AuthJWT)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthNone, AuthJWT, mode)
	}

	switch c.StorageDriver {
	case DriverMemory, DriverFile, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", DriverPostgres)
		}
	case DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER is %q", DriverS3)
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be one of memory, file, sqlite, postgres, s3, got %q", c.StorageDriver)
	}

	if c.StorageOnCorrupt != "fail" && c.StorageOnCorrupt != "reset" {
		return fmt.Errorf("STORAGE_ON_CORRUPT must be \"fail\" or \"reset\", got %q", c.StorageOnCorrupt)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.LLMTemperature)
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens)
	}

	return nil
}
