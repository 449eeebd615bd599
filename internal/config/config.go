package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	Mode         string
	AccessSecret string
}

type LedgerConfig struct {
	DepositCapRatio decimal.Decimal
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	ReportCacheTTL time.Duration
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	Redis       RedisConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("LEDGER_DEPOSIT_CAP_RATIO", "0.25")
	v.SetDefault("REPORT_CACHE_TTL", "1m")

	_ = v.ReadInConfig()

	capRatio, err := decimal.NewFromString(strings.TrimSpace(v.GetString("LEDGER_DEPOSIT_CAP_RATIO")))
	if err != nil {
		return nil, fmt.Errorf("LEDGER_DEPOSIT_CAP_RATIO: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			Mode:         strings.ToLower(strings.TrimSpace(v.GetString("AUTH_MODE"))),
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Ledger: LedgerConfig{
			DepositCapRatio: capRatio,
		},
		Redis: RedisConfig{
			Addr:           v.GetString("REDIS_ADDR"),
			Password:       v.GetString("REDIS_PASSWORD"),
			DB:             v.GetInt("REDIS_DB"),
			ReportCacheTTL: v.GetDuration("REPORT_CACHE_TTL"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeHeader
	}
	if cfg.Redis.ReportCacheTTL <= 0 {
		cfg.Redis.ReportCacheTTL = time.Minute
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	switch cfg.Auth.Mode {
	case AuthModeHeader:
	case AuthModeJWT:
		if cfg.Auth.AccessSecret == "" {
			return fmt.Errorf("JWT_ACCESS_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q", AuthModeHeader, AuthModeJWT)
	}
	if !cfg.Ledger.DepositCapRatio.IsPositive() || cfg.Ledger.DepositCapRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("LEDGER_DEPOSIT_CAP_RATIO must be in (0, 1]")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
