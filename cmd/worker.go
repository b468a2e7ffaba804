package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelcast/internal/pkg/cache"
	"reelcast/internal/pkg/mongodb"
	"reelcast/internal/pkg/storagefactory"
	renderRepo "reelcast/internal/repository/render"
	"reelcast/internal/service"
	shortsvc "reelcast/internal/service/short"
	"reelcast/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued renders",
	Long: `Consume render jobs submitted through the API. Requires MongoDB and Redis.
Renders left in processing by a crashed worker are requeued on startup.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	flags := workerCmd.Flags()
	flags.Int("concurrency", 1, "number of units rendered at the same time")
	flags.String("queue", cache.RenderQueueKey, "redis list to consume")

	_ = viper.BindPFlag("worker.concurrency", flags.Lookup("concurrency"))
	_ = viper.BindPFlag("worker.queue", flags.Lookup("queue"))
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Render.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connect MongoDB: %w", err)
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}()
	if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	redisCache, err := cache.NewRedisCache(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect Redis: %w", err)
	}
	defer redisCache.Close()

	store, err := storagefactory.NewStorage(context.Background(), &cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	pipeline, err := shortsvc.Build(cfg, redisCache)
	if err != nil {
		return err
	}

	svc := service.NewRenderService(
		renderRepo.NewRenderRepo(mongoClient.Database()),
		pipeline,
		redisCache,
		cfg.Worker.Queue,
		store,
		cfg.Render.OutputDir,
	)

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Worker.StaleAfter > 0 {
		n, err := svc.RequeueStale(ctx, cfg.Worker.StaleAfter)
		if err != nil {
			log.Warn().Err(err).Msg("failed to requeue stale renders")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("requeued stale renders")
		}
	}

	w := worker.New(redisCache, cfg.Worker.Queue, cfg.Worker.Concurrency, cfg.Worker.PollTimeout, svc.Process)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
