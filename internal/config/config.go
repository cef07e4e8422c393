package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB       DBConfig
	Base     BaseConfig
	TON      TONConfig
	Refresh  RefreshConfig
	Server   ServerConfig
	Alert    AlertConfig
	Log      LogConfig
	Registry RegistryConfig
}

type DBConfig struct {
	Path          string
	BusyTimeoutMS int
}

// BaseConfig drives the EVM explorer adapter.
type BaseConfig struct {
	APIURL   string
	APIKey   string
	PageSize int
	Timeout  time.Duration
}

// TONConfig drives the toncenter adapter.
type TONConfig struct {
	APIURL         string
	APIKey         string
	PageSize       int
	MaxPages       int
	Timeout        time.Duration
	RateLimitDelay time.Duration
	PagesPerSecond float64
}

type RefreshConfig struct {
	Interval time.Duration
	// FailureAlertThreshold is the number of consecutive failed cycles
	// for one pair before an alert fires.
	FailureAlertThreshold int
}

type ServerConfig struct {
	Port int
}

type AlertConfig struct {
	WebhookURL string
	Cooldown   time.Duration
}

type LogConfig struct {
	Level string
}

type RegistryConfig struct {
	Path string
}

func Load() (*Config, error) {
	cfg := &Config{
		DB: DBConfig{
			Path:          getEnv("DB_PATH", "data/tx.sqlite"),
			BusyTimeoutMS: getEnvInt("DB_BUSY_TIMEOUT_MS", 5000),
		},
		Base: BaseConfig{
			APIURL:   getEnv("BASE_API_URL", "https://api.etherscan.io/v2/api"),
			APIKey:   getEnv("BASE_API_KEY", ""),
			PageSize: getEnvInt("BASE_PAGE_SIZE", 1000),
			Timeout:  time.Duration(getEnvInt("BASE_TIMEOUT_SEC", 20)) * time.Second,
		},
		TON: TONConfig{
			APIURL:         getEnv("TON_API_URL", "https://toncenter.com/api/v2/getTransactions"),
			APIKey:         getEnv("TON_API_KEY", ""),
			PageSize:       getEnvInt("TON_PAGE_SIZE", 100),
			MaxPages:       getEnvInt("TON_MAX_PAGES", 10000),
			Timeout:        time.Duration(getEnvInt("TON_TIMEOUT_SEC", 15)) * time.Second,
			RateLimitDelay: time.Duration(getEnvInt("TON_RATE_LIMIT_DELAY_SEC", 5)) * time.Second,
			PagesPerSecond: getEnvFloat("TON_PAGES_PER_SECOND", 1.0),
		},
		Refresh: RefreshConfig{
			Interval:              time.Duration(getEnvInt("REFRESH_INTERVAL_SEC", 60)) * time.Second,
			FailureAlertThreshold: getEnvInt("REFRESH_FAILURE_ALERT_THRESHOLD", 3),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Alert: AlertConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:   time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 600)) * time.Second,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Registry: RegistryConfig{
			Path: getEnv("CONTRACTS_PATH", "configs/contracts.yaml"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Base.PageSize <= 0 {
		return fmt.Errorf("BASE_PAGE_SIZE must be positive")
	}
	if c.TON.PageSize <= 0 || c.TON.PageSize > 100 {
		return fmt.Errorf("TON_PAGE_SIZE must be in (0, 100]")
	}
	if c.TON.MaxPages <= 0 {
		return fmt.Errorf("TON_MAX_PAGES must be positive")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SEC must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
