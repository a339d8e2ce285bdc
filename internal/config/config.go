package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Browser  BrowserConfig
	LLM      LLMConfig
	Search   SearchConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type BrowserConfig struct {
	Headless    bool
	Timeout     time.Duration
	SettleDelay time.Duration
	Scrolls     int
	ScrollDelay time.Duration
}

type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type SearchConfig struct {
	MaxResultsPerPlatform int
	TopDeals              int
	Parallel              bool
	RateLimitMin          time.Duration
	RateLimitMax          time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "product_finder"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Browser: BrowserConfig{
			Headless:    getEnvBool("BROWSER_HEADLESS", true),
			Timeout:     getEnvDuration("BROWSER_TIMEOUT", 30*time.Second),
			SettleDelay: getEnvDuration("BROWSER_SETTLE_DELAY", 3*time.Second),
			Scrolls:     getEnvInt("BROWSER_SCROLLS", 2),
			ScrollDelay: getEnvDuration("BROWSER_SCROLL_DELAY", time.Second),
		},
		LLM: LLMConfig{
			APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:   getEnv("ANTHROPIC_BASE_URL", ""),
			Model:     getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			MaxTokens: getEnvInt("ANTHROPIC_MAX_TOKENS", 4096),
			Timeout:   getEnvDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
		},
		Search: SearchConfig{
			MaxResultsPerPlatform: getEnvInt("SEARCH_MAX_RESULTS_PER_PLATFORM", 10),
			TopDeals:              getEnvInt("SEARCH_TOP_DEALS", 5),
			Parallel:              getEnvBool("SEARCH_PARALLEL", true),
			RateLimitMin:          getEnvDuration("SEARCH_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:          getEnvDuration("SEARCH_RATE_LIMIT_MAX", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	if c.Search.MaxResultsPerPlatform < 1 {
		return fmt.Errorf("SEARCH_MAX_RESULTS_PER_PLATFORM must be at least 1")
	}

	if c.Search.RateLimitMin > c.Search.RateLimitMax {
		return fmt.Errorf("SEARCH_RATE_LIMIT_MIN cannot be greater than SEARCH_RATE_LIMIT_MAX")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
