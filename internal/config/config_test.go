package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var keys = []string{
	"DB_DRIVER", "DB_SOURCE", "SQLITE_PATH", "SERVER_PORT", "ENVIRONMENT", "JWT_SECRET",
	"LOG_LEVEL", "DB_TIMEOUT", "SWEEP_INTERVAL", "CONNECTION_TTL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "DISCOVER_POOL",
}

// clearEnv blanks every key Load reads; blank counts as unset.
func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_SOURCE", "postgres://localhost/lendex")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Driver != DriverPostgres || cfg.Port != "8080" || cfg.Env != "development" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DBTimeout != 5*time.Second || cfg.SweepInterval != time.Minute || cfg.ConnectionTTL != 0 {
		t.Errorf("durations = %v %v %v", cfg.DBTimeout, cfg.SweepInterval, cfg.ConnectionTTL)
	}
	if cfg.RateLimitRPS != 10 || cfg.RateLimitBurst != 20 || cfg.DiscoverPool != 200 {
		t.Errorf("limits = %v %v %v", cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.DiscoverPool)
	}
	if cfg.JWTSecret != "development-secret" {
		t.Errorf("jwt secret = %q", cfg.JWTSecret)
	}
}

func TestLoadSQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/lendex-test.db")
	t.Setenv("CONNECTION_TTL", "72h")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SQLitePath != "/tmp/lendex-test.db" || cfg.ConnectionTTL != 72*time.Hour {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without source", map[string]string{"DB_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"bad duration", map[string]string{"DB_DRIVER": "sqlite", "DB_TIMEOUT": "soon"}},
		{"zero sweep interval", map[string]string{"DB_DRIVER": "sqlite", "SWEEP_INTERVAL": "0s"}},
		{"negative sweep interval", map[string]string{"DB_DRIVER": "sqlite", "SWEEP_INTERVAL": "-1m"}},
		{"bad burst", map[string]string{"DB_DRIVER": "sqlite", "RATE_LIMIT_BURST": "many"}},
		{"production without secret", map[string]string{"DB_DRIVER": "sqlite", "ENVIRONMENT": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug", Env: "production"}
	logger := cfg.NewLogger()
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("production formatter = %T", logger.Formatter)
	}

	if got := (&Config{LogLevel: "chatty"}).NewLogger().GetLevel(); got != logrus.InfoLevel {
		t.Errorf("unknown level fell back to %v", got)
	}
}
