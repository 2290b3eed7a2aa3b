package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries the full runtime tuning. Every knob has a flag, an
// environment variable and a default; flags win (see cmd/api).
type Config struct {
	DBSource      string
	Port          string
	Env           string
	DBMaxConns    int32
	LockTimeout   time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	StatementSize int
}

func init() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("ledger.lock_timeout", 50*time.Millisecond)
	viper.SetDefault("ledger.retry_attempts", 3)
	viper.SetDefault("ledger.retry_backoff", 5*time.Millisecond)
	viper.SetDefault("ledger.statement_size", 10)

	viper.BindEnv("database.source", "DB_SOURCE")
	viper.BindEnv("database.max_conns", "DB_MAX_CONNS")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.environment", "ENVIRONMENT")
	viper.BindEnv("ledger.lock_timeout", "LEDGER_LOCK_TIMEOUT")
	viper.BindEnv("ledger.retry_attempts", "LEDGER_RETRY_ATTEMPTS")
	viper.BindEnv("ledger.retry_backoff", "LEDGER_RETRY_BACKOFF")
	viper.BindEnv("ledger.statement_size", "LEDGER_STATEMENT_SIZE")
}

func Load() (*Config, error) {
	cfg := &Config{
		DBSource:      viper.GetString("database.source"),
		Port:          viper.GetString("server.port"),
		Env:           viper.GetString("server.environment"),
		DBMaxConns:    viper.GetInt32("database.max_conns"),
		LockTimeout:   viper.GetDuration("ledger.lock_timeout"),
		RetryAttempts: viper.GetInt("ledger.retry_attempts"),
		RetryBackoff:  viper.GetDuration("ledger.retry_backoff"),
		StatementSize: viper.GetInt("ledger.statement_size"),
	}

	if cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	return cfg, nil
}
