package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: "9090"
  allowedOrigins: ["https://halaqa.example"]
logging:
  level: debug
  format: console
redis:
  addr: localhost:6379
  ttl: 15m
bus:
  backend: redis
verses:
  bank: juz-amma-sample
  ttl: 30m
game:
  timerSeconds: 45
  totalBuzzesAllowed: 4
  questionType: guess_next_ayat
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "LOG_FORMAT", "REDIS_ADDR", "NATS_URL", "BUS_BACKEND", "ALLOWED_ORIGINS", "GAME_TIMER_SECONDS"} {
		t.Setenv(key, "")
	}
}

func TestLoadReadsEverySection(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, []string{"https://halaqa.example"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, BackendRedis, cfg.BusBackend())
	require.Equal(t, 45, cfg.Game.TimerSeconds)
	require.Equal(t, 4, cfg.Game.TotalBuzzesAllowed)
	require.Equal(t, "guess_next_ayat", cfg.Game.QuestionType)
	require.Equal(t, 30*time.Minute, TTLDuration(cfg.Verses.TTL, time.Minute))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "bus:\n  backend: kafka\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "game:\n  questionType: guess_colour\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "bus:\n  backend: nats\n"))
	require.ErrorContains(t, err, "nats.url")
}

func TestApplyEnvOverridesConnections(t *testing.T) {
	env := map[string]string{
		"PORT":               "7000",
		"NATS_URL":           "nats://nats:4222",
		"BUS_BACKEND":        "nats",
		"ALLOWED_ORIGINS":    "https://a.example,https://b.example",
		"GAME_TIMER_SECONDS": "30",
	}
	var cfg Config
	cfg.ApplyEnv(func(key string) string { return env[key] })

	require.Equal(t, "7000", cfg.Server.Port)
	require.Equal(t, BackendNATS, cfg.BusBackend())
	require.Len(t, cfg.Server.AllowedOrigins, 2)
	require.Equal(t, 30, cfg.Game.TimerSeconds)
	require.NoError(t, cfg.Validate())
}

func TestBusBackendDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, BackendMemory, cfg.BusBackend())
	cfg.Redis.Addr = "localhost:6379"
	require.Equal(t, BackendRedis, cfg.BusBackend())
}

func TestTTLDurationFallsBack(t *testing.T) {
	require.Equal(t, time.Minute, TTLDuration("", time.Minute))
	require.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	require.Equal(t, 2*time.Hour, TTLDuration("2h", time.Minute))
}
