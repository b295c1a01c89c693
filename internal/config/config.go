package config

import (
	"errors"
	"fmt"
	"strings"

	"procurement-recon/internal/core"
	"procurement-recon/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OpenAI   OpenAIConfig
	Log      logger.Config
	HTTP     HTTPConfig
	Recon    ReconConfig

	// ApprovalMatrix is the fallback matrix used when the approval_rules table is empty.
	ApprovalMatrix core.ApprovalMatrix
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Env string
}

// DatabaseConfig holds the PostgreSQL connection string
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis connection settings. An empty Address disables
// distributed locking.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// JWTConfig holds the HMAC secret used to verify bearer tokens
type JWTConfig struct {
	Secret string
}

// OpenAIConfig holds invoice extraction settings
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port           string
	AllowedOrigins string // comma-separated
	MaxBodyBytes   int64
}

// ReconConfig holds reconciliation tuning
type ReconConfig struct {
	PriceTolerance decimal.Decimal
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"app.env":               "APP_ENV",
	"database.url":          "DATABASE_URL",
	"redis.address":         "REDIS_ADDRESS",
	"redis.password":        "REDIS_PASSWORD",
	"redis.db":              "REDIS_DB",
	"jwt.secret":            "JWT_SECRET",
	"openai.api_key":        "OPENAI_API_KEY",
	"openai.model":          "OPENAI_MODEL",
	"log.level":             "LOG_LEVEL",
	"log.format":            "LOG_FORMAT",
	"log.output":            "LOG_OUTPUT",
	"http.port":             "SERVER_PORT",
	"http.allowed_origins":  "ALLOWED_ORIGINS",
	"http.max_body_bytes":   "MAX_BODY_BYTES",
	"recon.price_tolerance": "RECON_PRICE_TOLERANCE",
}

// Load reads .env, then config.toml (optional), then environment variables.
// Priority (highest to lowest):
// 1. Environment variables (e.g., DATABASE_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return build(v)
}

// LoadFile reads configuration from an explicit TOML file plus environment overrides.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("redis.db", 0)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("recon.price_tolerance", "0")
}

func build(v *viper.Viper) (*Config, error) {
	tolerance, err := toDecimal(v.Get("recon.price_tolerance"))
	if err != nil {
		return nil, fmt.Errorf("recon.price_tolerance: %w", err)
	}
	matrix, err := parseMatrix(v.Get("approval_matrix"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:      AppConfig{Env: v.GetString("app.env")},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{Secret: v.GetString("jwt.secret")},
		OpenAI: OpenAIConfig{
			APIKey: v.GetString("openai.api_key"),
			Model:  v.GetString("openai.model"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			Port:           v.GetString("http.port"),
			AllowedOrigins: v.GetString("http.allowed_origins"),
			MaxBodyBytes:   v.GetInt64("http.max_body_bytes"),
		},
		Recon:          ReconConfig{PriceTolerance: tolerance},
		ApprovalMatrix: matrix,
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		}
	}
	return cfg, nil
}

// parseMatrix decodes [[approval_matrix]] tables. spend_limit may be written as
// a TOML string or number.
func parseMatrix(raw any) (core.ApprovalMatrix, error) {
	if raw == nil {
		return nil, nil
	}

	var entries []map[string]any
	switch t := raw.(type) {
	case []map[string]any:
		entries = t
	case []any:
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("approval_matrix[%d]: expected table, got %T", i, e)
			}
			entries = append(entries, m)
		}
	default:
		return nil, fmt.Errorf("approval_matrix: expected array of tables, got %T", raw)
	}

	matrix := make(core.ApprovalMatrix, 0, len(entries))
	for i, m := range entries {
		role, _ := m["role"].(string)
		limit, err := toDecimal(m["spend_limit"])
		if err != nil {
			return nil, fmt.Errorf("approval_matrix[%d].spend_limit: %w", i, err)
		}
		var categories []string
		switch cs := m["categories"].(type) {
		case nil:
		case []string:
			categories = cs
		case []any:
			for _, c := range cs {
				s, ok := c.(string)
				if !ok {
					return nil, fmt.Errorf("approval_matrix[%d].categories: expected strings, got %T", i, c)
				}
				categories = append(categories, s)
			}
		default:
			return nil, fmt.Errorf("approval_matrix[%d].categories: expected array, got %T", i, cs)
		}
		matrix = append(matrix, core.ApprovalRule{
			Role:       strings.TrimSpace(role),
			SpendLimit: limit,
			Categories: categories,
		})
	}
	return matrix, nil
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch t := raw.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(t))
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported value %v (%T)", raw, raw)
	}
}

// Validate checks values the service cannot run without.
func (c *Config) Validate() error {
	var errs []string
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Recon.PriceTolerance.IsNegative() {
		errs = append(errs, "RECON_PRICE_TOLERANCE must be >= 0")
	}
	for i, rule := range c.ApprovalMatrix {
		if rule.Role == "" {
			errs = append(errs, fmt.Sprintf("approval_matrix[%d]: role is required", i))
		}
		if rule.SpendLimit.IsNegative() {
			errs = append(errs, fmt.Sprintf("approval_matrix[%d]: spend_limit must be >= 0", i))
		}
	}
	if c.App.Env == "production" && c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required in production")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
