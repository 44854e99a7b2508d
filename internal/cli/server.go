package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizme/internal/app"
	"quizme/internal/config"
	"quizme/internal/domain"
	"quizme/internal/infra/memory"
	"quizme/internal/infra/postgres"
	infraredis "quizme/internal/infra/redis"
	transport "quizme/internal/transport/http"
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
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	deps, quizzes := buildDeps(cfg, log, redisClient, pool)
	service := app.NewRoomService(deps,
		app.WithLogger(log),
		app.WithDefaultSlideDuration(cfg.Session.DefaultSlideDuration),
	)
	defer service.Close()

	router := transport.NewRouter(
		transport.NewRoomsHandler(service, log),
		transport.NewQuizzesHandler(quizzes, log),
		transport.NewWSHandler(service, log),
		log,
	)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", "port", finalPort,
			"redis", redisClient != nil, "postgres", pool != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildDeps picks the adapters for the configured backends. Without Postgres
// rooms and authored quizzes live in memory, starting from the sample quiz.
func buildDeps(cfg config.Config, log *slog.Logger, redisClient *redis.Client, pool *pgxpool.Pool) (app.Deps, *app.QuizService) {
	var deps app.Deps

	var quizStore app.QuizStore = memory.NewQuizStore(sampleQuizzes())
	if pool != nil {
		quizStore = postgres.NewQuizStore(pool, log)
		store := postgres.NewStore(pool)
		deps.Rooms, deps.Players, deps.Submissions, deps.Winners = store, store, store, store
	} else {
		store := memory.NewStore()
		deps.Rooms, deps.Players, deps.Submissions, deps.Winners = store, store, store, store
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var cache app.QuizCache
	if redisClient != nil {
		lockTTL := config.TTLDuration(cfg.Session.AdvanceLockTTL, 5*time.Second)
		repo := infraredis.NewQuizRepository(redisClient, quizStore, quizTTL, log)
		deps.Quizzes, cache = repo, repo
		deps.Notifier = infraredis.NewRoomNotifier(redisClient, log)
		deps.Locker = infraredis.NewAdvanceLocker(redisClient, lockTTL, log)
	} else {
		repo := memory.NewQuizRepository(quizStore, quizTTL)
		deps.Quizzes, cache = repo, repo
		deps.Notifier = memory.NewRoomBroadcaster()
		deps.Locker = memory.NewAdvanceLocker()
	}
	return deps, app.NewQuizService(quizStore, log, cache)
}

// sampleQuizzes is served when no database is configured and seeded by the
// seed command otherwise.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample": {
			ID:    "sample",
			Title: "Sample quiz",
			Slides: []domain.Slide{
				{
					ID:           1,
					Position:     0,
					Question:     "What is 2 + 2?",
					QuestionType: domain.MultipleChoice,
					Options:      []string{"3", "4", "5", "22"},
					Answer:       domain.ChoiceAnswer(1),
				},
				{
					ID:           2,
					Position:     1,
					Question:     "Which of these are prime?",
					QuestionType: domain.Checkbox,
					Options:      []string{"2", "4", "5", "9"},
					Answer:       domain.CheckboxAnswer{0, 2},
				},
				{
					ID:           3,
					Position:     2,
					Question:     "Order the planets by distance from the sun",
					QuestionType: domain.Scale,
					Options:      []string{"Mars", "Mercury", "Earth"},
					Answer:       domain.ScaleAnswer{1, 2, 0},
					Note:         "Mercury, Earth, Mars",
				},
			},
		},
	}
}
