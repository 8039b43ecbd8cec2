// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DBPath       string
	ClientOrigin string

	LedgerRPCURL   string
	LedgerContract string
	AgentKey       string
	ConfirmTimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string

	OperatorSecret string

	LoopInterval  time.Duration
	LoopAutostart bool
	TriesPerEntry int
}

// LoadDotenv loads a .env file when present. A missing file is not an error.
func LoadDotenv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads Config from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:         strings.TrimPrefix(envDefault("PORT", "5175"), ":"),
		LogLevel:     envDefault("LOG_LEVEL", "info"),
		DBPath:       envDefault("DB_PATH", "./data/zoltar.db"),
		ClientOrigin: envDefault("CLIENT_ORIGIN", "http://localhost:5173"),

		LedgerRPCURL:   envDefault("LEDGER_RPC_URL", "https://sepolia.base.org"),
		LedgerContract: envDefault("LEDGER_CONTRACT", "0x0AEA74a22d5bFb0B030d012568A60D9249619d86"),
		AgentKey:       strings.TrimSpace(os.Getenv("AGENT_PRIVATE_KEY")),
		ConfirmTimeout: envDurationDefault("LEDGER_CONFIRM_TIMEOUT", 2*time.Minute),

		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  envDefault("GEMINI_MODEL", "gemini-1.5-flash"),

		OperatorSecret: envDefault("OPERATOR_SECRET", strings.TrimSpace(os.Getenv("AGENT_SECRET_KEY"))),

		LoopInterval:  envDurationDefault("LOOP_INTERVAL", 30*time.Second),
		LoopAutostart: envBoolDefault("LOOP_AUTOSTART", false),
		TriesPerEntry: envIntDefault("TRIES_PER_ENTRY", 5),
	}
	if cfg.LoopInterval <= 0 {
		return cfg, fmt.Errorf("LOOP_INTERVAL must be positive, got %s", cfg.LoopInterval)
	}
	if cfg.TriesPerEntry <= 0 {
		return cfg, fmt.Errorf("TRIES_PER_ENTRY must be positive, got %d", cfg.TriesPerEntry)
	}
	return cfg, nil
}

// RequireServe checks the settings only the HTTP server needs.
func (c Config) RequireServe() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string { return ":" + c.Port }

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
