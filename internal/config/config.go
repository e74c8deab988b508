package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
)

type Config struct {
	Port                   string        `mapstructure:"PORT"`
	Env                    string        `mapstructure:"ENV"`
	AuthMode               string        `mapstructure:"AUTH_MODE"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSigningKey          string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer              string        `mapstructure:"JWT_ISSUER"`
	TokenTTL               time.Duration `mapstructure:"TOKEN_TTL"`
	Department             string        `mapstructure:"RHU_DEPARTMENT"`
	ClinicTimezone         string        `mapstructure:"CLINIC_TIMEZONE"`
	CORSOrigins            []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS           float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst         int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit              string        `mapstructure:"BODY_LIMIT"`
	KafkaBrokers           []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaNotificationTopic string        `mapstructure:"KAFKA_NOTIFICATION_TOPIC"`
	MigrationsDir          string        `mapstructure:"MIGRATIONS_DIR"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	DevStaffID             int64         `mapstructure:"DEV_STAFF_ID"`
	DevUserID              int64         `mapstructure:"DEV_USER_ID"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "TOKEN_TTL", "RHU_DEPARTMENT", "CLINIC_TIMEZONE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"KAFKA_BROKERS", "KAFKA_NOTIFICATION_TOPIC", "MIGRATIONS_DIR", "LOG_LEVEL",
	"DEV_STAFF_ID", "DEV_USER_ID",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "rhu-admin")
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("RHU_DEPARTMENT", "RHU")
	v.SetDefault("CLINIC_TIMEZONE", "Asia/Manila")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "rhu.notifications")
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEV_STAFF_ID", 1)
	v.SetDefault("DEV_USER_ID", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList normalises a comma separated list that viper may hand back
// either already split or as a single string.
func splitList(parsed []string, raw string) []string {
	if len(parsed) == 1 && strings.Contains(parsed[0], ",") {
		raw, parsed = parsed[0], nil
	}
	if parsed == nil && raw != "" {
		parsed = strings.Split(raw, ",")
	}
	out := parsed[:0]
	for _, s := range parsed {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development yields "development" (a fixed
// dev identity on every request) and anything else yields "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// SigningKey decodes JWT_SIGNING_KEY.
func (c *Config) SigningKey() ([]byte, error) {
	key, err := hex.DecodeString(c.JWTSigningKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_SIGNING_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// Location loads CLINIC_TIMEZONE. Sequence years and "today" are computed
// in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. The signing key is
// required whenever tokens are issued and must decode to at least 32 bytes.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "development" && c.IsProduction() {
		return fmt.Errorf("AUTH_MODE=development is not allowed with ENV=production")
	}

	if mode == "jwt" && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when AUTH_MODE is \"jwt\"")
	}
	if c.JWTSigningKey != "" {
		key, err := c.SigningKey()
		if err != nil {
			return err
		}
		if len(key) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
		}
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.Department == "" {
		return fmt.Errorf("RHU_DEPARTMENT must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if n, err := bytes.Parse(c.BodyLimit); err != nil || n <= 0 {
		return fmt.Errorf("BODY_LIMIT must be a size such as \"2M\" or \"512K\", got %q", c.BodyLimit)
	}

	return nil
}
