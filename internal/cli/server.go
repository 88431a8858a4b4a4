package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/generator"
	"live-quiz-service/internal/hub"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = os.Getenv("PORT")
	}
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var seq app.Sequence = memory.NewSequence()
	if redisClient != nil {
		seq = infraredis.NewSequence(redisClient)
	}
	store := memory.NewStore(seq)

	gen := newGenerator(cfg, redisClient, logger)
	broadcaster := hub.New(logger.Named("hub"))

	opts := []app.Option{
		app.WithLogger(logger.Named("engine")),
		app.WithDefaults(app.Defaults{
			QuestionsCount:  cfg.Quiz.DefaultQuestions,
			TimePerQuestion: cfg.Quiz.DefaultTimePerQuestion,
			Difficulty:      cfg.Quiz.DefaultDifficulty,
			MaxQuestions:    cfg.Quiz.MaxQuestions,
		}),
	}
	if redisClient != nil {
		opts = append(opts, app.WithRoomCodes(infraredis.NewRoomCodes(redisClient, redisTTL)))
	}
	if pool != nil {
		if redisClient == nil {
			logger.Warn("postgres archive without redis: session ids restart with the process, archived results are matched by room code and creation time")
		}
		opts = append(opts, app.WithArchiver(postgres.NewResultsArchive(pool)))
	}
	service := app.NewQuizService(store, gen, broadcaster, opts...)

	router := transport.NewRouter(
		transport.NewAPIHandler(service, logger.Named("api")),
		transport.NewWSHandler(service, broadcaster, logger.Named("ws"), cfg.Server.AllowedOrigins),
		cfg.Server.AllowedOrigins,
	)

	// no WriteTimeout: websocket connections are long-lived
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newGenerator picks the HTTP generator when a url is configured and the
// built-in bank otherwise, wrapped in a cache when cache_ttl is set.
func newGenerator(cfg config.Config, redisClient *redis.Client, logger *zap.Logger) app.Generator {
	var gen app.Generator
	if cfg.Generator.URL != "" {
		gen = generator.NewClient(cfg.Generator.URL, cfg.Generator.APIKey, config.TTLDuration(cfg.Generator.Timeout, 60*time.Second))
	} else {
		logger.Warn("generator.url not set, serving built-in questions")
		gen = memory.NewStaticGenerator(memory.SampleBank())
	}

	cacheTTL := config.TTLDuration(cfg.Generator.CacheTTL, 0)
	if cacheTTL <= 0 {
		return gen
	}
	if redisClient != nil {
		return infraredis.NewGeneratorCache(redisClient, gen, cacheTTL)
	}
	return memory.NewCachedGenerator(gen, cacheTTL)
}
