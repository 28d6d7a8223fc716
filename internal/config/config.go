package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	TaskSecret      string
	Economy         EconomyConfig
	ShutdownTimeout time.Duration
	// MemoryStore swaps Postgres for the in-process store; local play
	// only, nothing survives a restart.
	MemoryStore bool
}

type WorkerConfig struct {
	DatabaseURL string
	Economy     EconomyConfig
	TickEvery   time.Duration
	RunOnce     bool
}

type BotConfig struct {
	DatabaseURL  string
	DiscordToken string
	Prefix       string
	Economy      EconomyConfig
}

type CLIConfig struct {
	APIBaseURL string
}

// EconomyConfig holds the play-money parameters shared by every
// process touching the ledger.
type EconomyConfig struct {
	StartingBalance  float64
	DailyTopUp       float64
	BalanceCap       float64
	DefaultLiquidity float64
	ReferenceTZ      string
}

func LoadAPIFromEnv() (APIConfig, error) {
	loadDotenv()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("PREDICTIONS_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TaskSecret:      strings.TrimSpace(os.Getenv("TASK_SECRET")),
		Economy:         loadEconomy(),
		ShutdownTimeout: envDurationDefault("PREDICTIONS_SHUTDOWN_TIMEOUT", 10*time.Second),
		MemoryStore:     envBoolDefault("PREDICTIONS_MEMORY_STORE", false),
	}
	if cfg.DatabaseURL == "" && !cfg.MemoryStore {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TaskSecret == "" {
		return cfg, fmt.Errorf("TASK_SECRET is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	loadDotenv()

	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Economy:     loadEconomy(),
		TickEvery:   envDurationDefault("PREDICTIONS_WORKER_TICK_EVERY", 15*time.Minute),
		RunOnce:     envBoolDefault("PREDICTIONS_WORKER_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadBotFromEnv() (BotConfig, error) {
	loadDotenv()

	cfg := BotConfig{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DiscordToken: strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		Prefix:       envDefault("PREDICTIONS_BOT_PREFIX", "!predict"),
		Economy:      loadEconomy(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	loadDotenv()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("PREDICT_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadEconomy() EconomyConfig {
	return EconomyConfig{
		StartingBalance:  envFloatDefault("STARTING_BALANCE", 1000),
		DailyTopUp:       envFloatDefault("DAILY_TOPUP", 200),
		BalanceCap:       envFloatDefault("BALANCE_CAP", 2000),
		DefaultLiquidity: envFloatDefault("LMSR_B", 100),
		ReferenceTZ:      envDefault("REFERENCE_TZ", "Europe/London"),
	}
}

// Timezone resolves ReferenceTZ, falling back to UTC on a bad name so
// a typo degrades cycle keys rather than crashing the process.
func (e EconomyConfig) Timezone() *time.Location {
	loc, err := time.LoadLocation(e.ReferenceTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// loadDotenv pulls in a local .env when present; absence is normal in
// deployed environments.
func loadDotenv() {
	_ = godotenv.Load()
}

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

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
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
