// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/sirupsen/logrus"
)

// Config is everything cmd/turnsync reads from the environment.
type Config struct {
	ServiceURL string
	Token      string
	Variant    models.Variant

	StatusInterval time.Duration
	RosterInterval time.Duration
	PingInterval   time.Duration
	ReplayPace     time.Duration
	FinalCountdown time.Duration
	HTTPTimeout    time.Duration

	BridgeAddr string
	LogLevel   logrus.Level

	// RedisAddr enables the action journal when set.
	RedisAddr    string
	RedisDB      int
	JournalQueue string

	DB DBConfig
}

// DBConfig locates the results database. It is optional: an empty Host
// disables result storage.
type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

// DSN renders the connection string pgx expects.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Database,
	}
	return u.String()
}

// Load reads the configuration. Missing durations fall back to zero, which
// the session replaces with its own defaults.
func Load() (Config, error) {
	variant, err := models.ParseVariant(getEnv("GAME_VARIANT", string(models.VariantGoose)))
	if err != nil {
		return Config{}, err
	}
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := Config{
		ServiceURL: getEnv("MATCH_SERVICE_URL", "http://localhost:3000"),
		Token:      os.Getenv("SYNC_TOKEN"),
		Variant:    variant,

		StatusInterval: getEnvDuration("STATUS_INTERVAL", 0),
		RosterInterval: getEnvDuration("ROSTER_INTERVAL", 0),
		PingInterval:   getEnvDuration("PING_INTERVAL", 0),
		ReplayPace:     getEnvDuration("REPLAY_PACE", 0),
		FinalCountdown: getEnvDuration("FINAL_COUNTDOWN", 0),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		BridgeAddr: getEnv("BRIDGE_ADDR", ":8090"),
		LogLevel:   level,

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		JournalQueue: getEnv("JOURNAL_QUEUE_NAME", "turnsync_actions"),

		DB: DBConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     os.Getenv("PG_HOST"),
			Port:     getEnv("PG_PORT", "5432"),
			Database: getEnv("PG_DATABASE", "turnsync"),
		},
	}
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("SYNC_TOKEN is required")
	}
	return cfg, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration accepts Go durations ("1500ms") or plain milliseconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// DrainConfig configures cmd/journald.
type DrainConfig struct {
	RedisAddr  string
	RedisDB    int
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	LogLevel   logrus.Level
	DB         DBConfig
}

// LoadDrain reads the journal drain configuration.
func LoadDrain() (DrainConfig, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return DrainConfig{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg := DrainConfig{
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:    getEnvInt("REDIS_DB", 0),
		Queue:      getEnv("JOURNAL_QUEUE_NAME", "turnsync_actions"),
		BatchSize:  getEnvInt("JOURNAL_BATCH_SIZE", 20),
		FlushDelay: getEnvDuration("JOURNAL_FLUSH_INTERVAL", 500*time.Millisecond),
		LogLevel:   level,
		DB: DBConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Database: getEnv("PG_DATABASE", "turnsync"),
		},
	}
	return cfg, nil
}
