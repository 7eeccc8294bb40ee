// Package config builds process configuration from environment variables so
// main stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures every tuning knob the server reads. Defaults match the
// shipped game balance; override via environment.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Use a default for development - must be overridden in production.
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"terrarun"`
	JWTAudience   string `env:"JWT_AUDIENCE" envDefault:"terrarun-app"`

	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"30s"`

	DecayGraceDays int `env:"DECAY_GRACE_DAYS" envDefault:"14"`
	DecayPerDay    int `env:"DECAY_PER_DAY" envDefault:"10"`

	CoalesceWindow   time.Duration `env:"COALESCE_WINDOW" envDefault:"120ms"`
	ReplayBufferSize int           `env:"REPLAY_BUFFER_SIZE" envDefault:"500"`

	SnapshotMinRadiusKm float64       `env:"SNAPSHOT_MIN_RADIUS_KM" envDefault:"0.2"`
	SnapshotMaxRadiusKm float64       `env:"SNAPSHOT_MAX_RADIUS_KM" envDefault:"75"`
	SnapshotBatchMin    int           `env:"SNAPSHOT_BATCH_MIN" envDefault:"150"`
	SnapshotBatchMax    int           `env:"SNAPSHOT_BATCH_MAX" envDefault:"1000"`
	SnapshotBatchPause  time.Duration `env:"SNAPSHOT_BATCH_PAUSE" envDefault:"80ms"`
	SnapshotRadiusPause time.Duration `env:"SNAPSHOT_RADIUS_PAUSE" envDefault:"160ms"`
	SnapshotHardLimit   int           `env:"SNAPSHOT_HARD_LIMIT" envDefault:"8000"`

	SeasonLengthWeeks int           `env:"SEASON_LENGTH_WEEKS" envDefault:"6"`
	SeasonEpoch       string        `env:"SEASON_EPOCH" envDefault:"2024-01-01"`
	SeasonCheckEvery  time.Duration `env:"SEASON_CHECK_EVERY" envDefault:"1m"`
}

// FromEnv parses the environment into a Config.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
