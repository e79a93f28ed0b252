// Package config reads the service settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Live     LiveConfig
	Auth     Auth

	// MaxTeams is the operator cap on participants per tournament.
	MaxTeams int
}

type DatabaseConfig struct {
	Driver         string
	URL            string
	MigrationsPath string
}

type ServerConfig struct {
	Port               string
	SessionLifetime    time.Duration
	CORSAllowedOrigins []string
}

type LiveConfig struct {
	SubscriberBuffer int
	SnapshotGrace    time.Duration
	SweepInterval    time.Duration
}

type Auth struct {
	DiscordKey         string
	DiscordSecret      string
	DiscordCallbackURL string
	GoogleKey          string
	GoogleSecret       string
	GoogleCallbackURL  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_DRIVER", "sqlite3")
	v.SetDefault("DATABASE_URL", "op_tournament.db?_journal_mode=WAL")
	v.SetDefault("MIGRATIONS_PATH", "migrations")
	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("SESSION_LIFETIME", "24h")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_TEAMS", 256)
	v.SetDefault("LIVE_SUBSCRIBER_BUFFER", 64)
	v.SetDefault("LIVE_SNAPSHOT_GRACE", "30m")
	v.SetDefault("LIVE_SWEEP_INTERVAL", "1m")
}

// Load reads envFiles (missing files are fine) and then the environment.
// Real environment variables win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:         v.GetString("DATABASE_DRIVER"),
			URL:            v.GetString("DATABASE_URL"),
			MigrationsPath: v.GetString("MIGRATIONS_PATH"),
		},
		Server: ServerConfig{
			Port:               v.GetString("SERVER_PORT"),
			SessionLifetime:    v.GetDuration("SESSION_LIFETIME"),
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Live: LiveConfig{
			SubscriberBuffer: v.GetInt("LIVE_SUBSCRIBER_BUFFER"),
			SnapshotGrace:    v.GetDuration("LIVE_SNAPSHOT_GRACE"),
			SweepInterval:    v.GetDuration("LIVE_SWEEP_INTERVAL"),
		},
		Auth: Auth{
			DiscordKey:         v.GetString("DISCORD_KEY"),
			DiscordSecret:      v.GetString("DISCORD_SECRET"),
			DiscordCallbackURL: v.GetString("DISCORD_CALLBACK_URL"),
			GoogleKey:          v.GetString("GOOGLE_KEY"),
			GoogleSecret:       v.GetString("GOOGLE_SECRET"),
			GoogleCallbackURL:  v.GetString("GOOGLE_CALLBACK_URL"),
		},
		MaxTeams: v.GetInt("MAX_TEAMS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	slog.Info("configuration loaded", "driver", cfg.Database.Driver, "port", cfg.Server.Port)
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return errors.New("DATABASE_DRIVER must be sqlite3 or postgres")
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.MaxTeams < 2 {
		return errors.New("MAX_TEAMS must allow at least 2 participants")
	}
	if c.Live.SweepInterval <= 0 {
		return errors.New("LIVE_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
