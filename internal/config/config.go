package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hifdh-quest-service/internal/logging"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		// SessionIdleTTL keeps a session nobody is connected to, for reconnects.
		SessionIdleTTL string   `yaml:"sessionIdleTtl"`
	} `yaml:"server"`
	Logging logging.Config `yaml:"logging"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Bus struct {
		// Backend carries events between sessions and connections.
		Backend          string `yaml:"backend" validate:"omitempty,oneof=memory redis nats"`
		SubscriberBuffer int    `yaml:"subscriberBuffer" validate:"gte=0"`
	} `yaml:"bus"`
	Verses struct {
		Bank    string `yaml:"bank"`
		TTL     string `yaml:"ttl"`
		Reciter string `yaml:"reciter"`
	} `yaml:"verses"`
	Game struct {
		TimerSeconds              int    `yaml:"timerSeconds" validate:"gte=0,lte=600"`
		TotalBuzzesAllowed        int    `yaml:"totalBuzzesAllowed" validate:"gte=0,lte=20"`
		TotalRounds               int    `yaml:"totalRounds" validate:"gte=0"`
		MaxConsecutiveFirstBuzzes int    `yaml:"maxConsecutiveFirstBuzzes" validate:"gte=0"`
		QuestionType              string `yaml:"questionType" validate:"omitempty,oneof=guess_surah guess_meaning guess_next_ayat guess_previous_ayat guess_reciter"`
	} `yaml:"game"`
}

// Load reads YAML config from path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Logging.Level, "LOG_LEVEL")
	set(&c.Logging.Format, "LOG_FORMAT")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Postgres.URL, "POSTGRES_URL")
	set(&c.NATS.URL, "NATS_URL")
	set(&c.Bus.Backend, "BUS_BACKEND")
	set(&c.Verses.Bank, "VERSE_BANK")
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := getenv("GAME_TIMER_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Game.TimerSeconds = n
		}
	}
}

// Validate checks value ranges and that the selected bus backend is configured.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.BusBackend() {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("invalid config: bus backend redis needs redis.addr")
		}
	case BackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("invalid config: bus backend nats needs nats.url")
		}
	}
	return nil
}

// BusBackend returns the configured event backend, redis when Redis is set up and memory otherwise.
func (c Config) BusBackend() string {
	if c.Bus.Backend != "" {
		return c.Bus.Backend
	}
	if c.Redis.Addr != "" {
		return BackendRedis
	}
	return BackendMemory
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
