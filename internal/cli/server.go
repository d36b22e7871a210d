package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/config"
	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/infra/memory"
	infranats "hifdh-quest-service/internal/infra/nats"
	"hifdh-quest-service/internal/infra/postgres"
	infraredis "hifdh-quest-service/internal/infra/redis"
	"hifdh-quest-service/internal/logging"
	"hifdh-quest-service/internal/metrics"
	transport "hifdh-quest-service/internal/transport/http"
)

const sweepInterval = 30 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends holds the external connections of a running server.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	nats  *natsgo.Conn
}

func (b *backends) Close() {
	if b.nats != nil {
		b.nats.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func connectBackends(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
	}
	if cfg.BusBackend() == config.BackendNATS {
		nc, err := infranats.Connect(cfg.NATS.URL, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.nats = nc
	}
	return b, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, nil)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	conns, err := connectBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conns.Close()

	m := metrics.New()
	service := buildService(cfg, conns, logger, m)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go service.RunSweeper(sweepCtx, sweepInterval)
	wsHandler := transport.NewWSHandler(service, logger, m, cfg.Server.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	// No WriteTimeout: it would cut long-lived websocket connections.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           c.Handler(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Str("bus", cfg.BusBackend()).Msg("starting quest service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server...")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService selects the storage and event backends from config.
func buildService(cfg config.Config, conns *backends, logger zerolog.Logger, m *metrics.Metrics) *app.GameService {
	var loader memory.VerseLoader = memory.NewStaticVerseLoader(map[string]domain.VerseBank{
		memory.SampleBankID: memory.SampleBank(),
	})
	if conns.pool != nil {
		loader = postgres.NewVerseLoader(conns.pool)
	}

	verseTTL := config.TTLDuration(cfg.Verses.TTL, 10*time.Minute)
	var verses app.VerseRepository
	if conns.redis != nil {
		verses = infraredis.NewVerseRepository(conns.redis, loader, verseTTL, logger)
	} else {
		verses = memory.NewVerseRepository(loader, verseTTL)
	}

	var events app.EventChannel
	switch cfg.BusBackend() {
	case config.BackendNATS:
		events = infranats.NewEventBus(conns.nats)
	case config.BackendRedis:
		events = infraredis.NewEventBus(conns.redis)
	default:
		events = memory.NewEventBus(cfg.Bus.SubscriberBuffer)
	}

	var recorders app.RoundRecorders
	if conns.pool != nil {
		recorders = append(recorders, postgres.NewRoundRecorder(conns.pool))
	}

	deps := app.SessionDeps{
		Settings: gameSettings(cfg),
		Events:   events,
		Logger:   logger,
		Metrics:  m,
	}

	var store app.SessionRepository
	if conns.redis != nil {
		var redisStore *infraredis.SessionStore
		redisStore = infraredis.NewSessionStore(conns.redis, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute),
			func(sessionID string) *app.GameSession {
				sessionDeps := deps
				sessionDeps.Recorder = append(app.RoundRecorders{redisStore}, recorders...)
				return app.NewGameSession(sessionID, sessionDeps)
			})
		store = redisStore
	} else {
		if len(recorders) > 0 {
			deps.Recorder = recorders
		}
		store = memory.NewSessionStore(app.NewSessionFactory(deps),
			memory.WithIdleTTL(config.TTLDuration(cfg.Server.SessionIdleTTL, memory.DefaultIdleTTL)))
	}
	return app.NewGameService(store, verses, events, logger, m)
}

func gameSettings(cfg config.Config) app.GameSettings {
	bank := cfg.Verses.Bank
	if bank == "" {
		bank = memory.SampleBankID
	}
	return app.GameSettings{
		BankID:                    bank,
		TimerSeconds:              cfg.Game.TimerSeconds,
		TotalBuzzesAllowed:        cfg.Game.TotalBuzzesAllowed,
		TotalRounds:               cfg.Game.TotalRounds,
		MaxConsecutiveFirstBuzzes: cfg.Game.MaxConsecutiveFirstBuzzes,
		QuestionType:              domain.QuestionType(cfg.Game.QuestionType),
		Reciter:                   cfg.Verses.Reciter,
	}
}
