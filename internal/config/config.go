package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Draftsmith server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Retry    RetryConfig
	Quotas   QuotaConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type PipelineConfig struct {
	Provider          string
	MaxConcurrentJobs int
	Timeout           time.Duration
	Crew              CrewConfig
}

type CrewConfig struct {
	BaseURL string
	APIKey  string
	// PermanentStatuses lists HTTP status codes treated as permanent
	// (non-retryable) pipeline failures.
	PermanentStatuses []int
}

type RetryConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// TierQuota is the per-window admission ceiling for one subscription tier.
type TierQuota struct {
	HourlyLimit  int
	MonthlyLimit int
}

// QuotaConfig maps tier name to its quota table. Loaded once at startup and
// passed by reference; never mutated afterward.
type QuotaConfig struct {
	Tiers map[string]TierQuota
}

type AdminConfig struct {
	// APIKey guards the admin endpoints. Admin routes are not mounted when empty.
	APIKey string
}

var validProviders = map[string]bool{
	"crew": true,
	"mock": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("DRAFTSMITH_PORT", 8080),
			Env:                envString("DRAFTSMITH_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Pipeline: PipelineConfig{
			Provider:          os.Getenv("PIPELINE_PROVIDER"),
			MaxConcurrentJobs: envInt("MAX_CONCURRENT_JOBS", 4),
			Timeout:           envDurationSecs("PIPELINE_TIMEOUT_SECS", 5*time.Minute),
			Crew: CrewConfig{
				BaseURL:           os.Getenv("CREW_BASE_URL"),
				APIKey:            os.Getenv("CREW_API_KEY"),
				PermanentStatuses: envIntList("PIPELINE_PERMANENT_STATUSES", []int{400, 401, 403, 422}),
			},
		},
		Retry: RetryConfig{
			BaseDelay:   envDuration("RETRY_BASE_DELAY", 2*time.Second),
			MaxDelay:    envDuration("RETRY_MAX_DELAY", time.Minute),
			MaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
		},
		Quotas: QuotaConfig{
			Tiers: map[string]TierQuota{
				"free": {
					HourlyLimit:  envInt("TIER_FREE_HOURLY_LIMIT", 2),
					MonthlyLimit: envInt("TIER_FREE_MONTHLY_LIMIT", 10),
				},
				"pro": {
					HourlyLimit:  envInt("TIER_PRO_HOURLY_LIMIT", 20),
					MonthlyLimit: envInt("TIER_PRO_MONTHLY_LIMIT", 100),
				},
				"enterprise": {
					HourlyLimit:  envInt("TIER_ENTERPRISE_HOURLY_LIMIT", 100),
					MonthlyLimit: envInt("TIER_ENTERPRISE_MONTHLY_LIMIT", 1000),
				},
			},
		},
		Admin: AdminConfig{
			APIKey: os.Getenv("ADMIN_API_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Pipeline.Provider == "" {
		return fmt.Errorf("PIPELINE_PROVIDER is required")
	}
	if !validProviders[c.Pipeline.Provider] {
		return fmt.Errorf("PIPELINE_PROVIDER must be one of crew, mock; got %q", c.Pipeline.Provider)
	}

	if c.Pipeline.Provider == "crew" {
		if c.Pipeline.Crew.BaseURL == "" {
			return fmt.Errorf("CREW_BASE_URL is required when PIPELINE_PROVIDER is crew")
		}
		if !strings.HasPrefix(c.Pipeline.Crew.BaseURL, "http://") && !strings.HasPrefix(c.Pipeline.Crew.BaseURL, "https://") {
			return fmt.Errorf("CREW_BASE_URL must start with http:// or https://, got %q", c.Pipeline.Crew.BaseURL)
		}
	}

	if c.Pipeline.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be positive, got %d", c.Pipeline.MaxConcurrentJobs)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.Retry.MaxAttempts)
	}

	for tier, q := range c.Quotas.Tiers {
		if q.HourlyLimit <= 0 || q.MonthlyLimit <= 0 {
			return fmt.Errorf("quota limits for tier %q must be positive", tier)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envIntList(key string, defaultVal []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultVal
		}
		out = append(out, i)
	}
	return out
}
