// Package config loads agent configuration from the environment, with
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the agent.
type Config struct {
	// Server settings
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Authentication
	APIKey    string
	JWTSecret string

	// Security
	AllowedOrigins []string
	RateLimitRPS   int

	// SSH target
	SSHHost     string
	SSHPort     int
	SSHUser     string
	SSHPassword string
	SSHKeyFile  string
	SSHTimeout  time.Duration

	// AI endpoint
	AIBaseURL      string
	AIAPIKey       string
	AIModel        string
	AITimeout      time.Duration
	SessionTimeout time.Duration

	// Execution tuning
	TaskStorePath      string
	InterActionPause   time.Duration
	QuiescenceTimeout  time.Duration
	SettleDelay        time.Duration
	MonitorInterval    time.Duration
	MonitorCeiling     time.Duration
	MaxEscalationDepth int

	// Logging
	LogLevel string

	EnvFile string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	envFile := getEnvFile()
	_ = godotenv.Load(envFile)

	cfg := &Config{
		Port:         getEnvInt("PORT", 8090),
		Host:         getEnv("HOST", "0.0.0.0"),
		ReadTimeout:  time.Duration(getEnvInt("READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvInt("WRITE_TIMEOUT_SECONDS", 300)) * time.Second,

		APIKey:    getEnv("API_KEY", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 100),

		SSHHost:     getEnv("SSH_HOST", ""),
		SSHPort:     getEnvInt("SSH_PORT", 22),
		SSHUser:     getEnv("SSH_USER", ""),
		SSHPassword: getEnv("SSH_PASSWORD", ""),
		SSHKeyFile:  getEnv("SSH_KEY_FILE", ""),
		SSHTimeout:  time.Duration(getEnvInt("SSH_TIMEOUT_SECONDS", 15)) * time.Second,

		AIBaseURL:      getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:       getEnv("AI_API_KEY", ""),
		AIModel:        getEnv("AI_MODEL", "gpt-4o"),
		AITimeout:      time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,
		SessionTimeout: time.Duration(getEnvInt("SESSION_TIMEOUT_SECONDS", 3600)) * time.Second,

		TaskStorePath:      getEnv("TASK_STORE_PATH", "tasks.json"),
		InterActionPause:   time.Duration(getEnvInt("INTER_ACTION_PAUSE_MS", 500)) * time.Millisecond,
		QuiescenceTimeout:  time.Duration(getEnvInt("QUIESCENCE_TIMEOUT_SECONDS", 5)) * time.Second,
		SettleDelay:        time.Duration(getEnvInt("SETTLE_DELAY_MS", 1000)) * time.Millisecond,
		MonitorInterval:    time.Duration(getEnvInt("MONITOR_INTERVAL_SECONDS", 2)) * time.Second,
		MonitorCeiling:     time.Duration(getEnvInt("MONITOR_CEILING_SECONDS", 300)) * time.Second,
		MaxEscalationDepth: getEnvInt("MAX_ESCALATION_DEPTH", 10),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		EnvFile:  envFile,
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	if cfg.SSHHost == "" {
		return nil, fmt.Errorf("SSH_HOST is required")
	}
	if cfg.SSHUser == "" {
		return nil, fmt.Errorf("SSH_USER is required")
	}
	if cfg.SSHPassword == "" && cfg.SSHKeyFile == "" {
		return nil, fmt.Errorf("SSH_PASSWORD or SSH_KEY_FILE is required")
	}
	if cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY is required")
	}

	if cfg.JWTSecret == "" {
		// Use API key as fallback for JWT secret
		cfg.JWTSecret = cfg.APIKey
	}

	return cfg, nil
}

// getEnvFile returns the path to the .env file.
func getEnvFile() string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}
	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}

	exe, err := os.Executable()
	if err == nil {
		dir := strings.TrimSuffix(exe, "/shellpilot-agent")
		envPath := dir + "/.env"
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	return ".env"
}

// LoadWithDefaults loads config with defaults for testing.
func LoadWithDefaults() *Config {
	return &Config{
		Port:           8090,
		Host:           "0.0.0.0",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   300 * time.Second,
		APIKey:         "test-api-key",
		JWTSecret:      "test-jwt-secret",
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   100,

		SSHHost:    "198.51.100.10",
		SSHPort:    22,
		SSHUser:    "deploy",
		SSHKeyFile: "/tmp/test-key",
		SSHTimeout: 15 * time.Second,

		AIBaseURL:      "http://127.0.0.1:1/v1",
		AIAPIKey:       "test-ai-key",
		AIModel:        "test-model",
		AITimeout:      60 * time.Second,
		SessionTimeout: time.Hour,

		TaskStorePath:      "tasks.json",
		InterActionPause:   500 * time.Millisecond,
		QuiescenceTimeout:  5 * time.Second,
		SettleDelay:        time.Second,
		MonitorInterval:    2 * time.Second,
		MonitorCeiling:     300 * time.Second,
		MaxEscalationDepth: 10,

		LogLevel: "info",
	}
}

// Addr returns the server address string.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SSHTarget returns the remote endpoint as user@host:port.
func (c *Config) SSHTarget() string {
	return fmt.Sprintf("%s@%s:%d", c.SSHUser, c.SSHHost, c.SSHPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
