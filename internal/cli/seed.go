package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizme/internal/config"
	"quizme/internal/infra/postgres"
	infraredis "quizme/internal/infra/redis"
)

// NewSeedCmd writes the sample quiz into Postgres and drops any cached copy
// from Redis.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the sample quiz into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}

			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			loader := postgres.NewQuizStore(pool, log)
			var cache *infraredis.QuizRepository
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				cache = infraredis.NewQuizRepository(client, loader, 0, log)
			}
			for _, quiz := range sampleQuizzes() {
				saved, err := loader.SaveQuiz(ctx, quiz)
				if err != nil {
					return err
				}
				if cache != nil {
					if err := cache.Invalidate(ctx, saved.ID); err != nil {
						log.Warn("invalidate cached quiz failed", "quiz_id", saved.ID, "error", err)
					}
				}
				log.Info("quiz seeded", "quiz_id", saved.ID, "slides", len(saved.Slides))
			}
			return nil
		},
	}
}
