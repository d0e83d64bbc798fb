package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"pulsefeed/internal/adapters/httpapi"
	"pulsefeed/internal/adapters/repo"
	"pulsefeed/internal/domain"
	"pulsefeed/internal/infra/cache"
	"pulsefeed/internal/infra/config"
	"pulsefeed/internal/infra/db"
	infrahttp "pulsefeed/internal/infra/http"
	applog "pulsefeed/internal/infra/log"
	"pulsefeed/internal/infra/metrics"
	"pulsefeed/internal/infra/queue"
	engagementusecase "pulsefeed/internal/usecase/engagement"
	graphusecase "pulsefeed/internal/usecase/graph"
	recousecase "pulsefeed/internal/usecase/recommend"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	var popularCache domain.Cache
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		popularCache = cache.NewRedis(redisClient)
	}

	var eventQueue domain.EventQueue
	switch {
	case cfg.RabbitURL != "":
		rabbitQueue, err := queue.NewRabbitEventQueue(cfg.RabbitURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		eventQueue = rabbitQueue
	case redisClient != nil:
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
		logger.Info().Msg("api: RabbitMQ не сконфигурирован, события идут через Redis")
	default:
		logger.Warn().Msg("api: очередь событий не сконфигурирована, события не публикуются")
	}

	engagementService := engagementusecase.NewService(repoAdapter, repoAdapter, repoAdapter, eventQueue,
		logger.With().Str("component", "engagement").Logger())
	graphService := graphusecase.NewService(repoAdapter, eventQueue,
		logger.With().Str("component", "graph").Logger())
	recoService := recousecase.NewService(repoAdapter, repoAdapter, repoAdapter, popularCache,
		recousecase.Limits{
			RecommendMax:      cfg.Limits.RecommendMax,
			FeedMax:           cfg.Limits.FeedMax,
			PopularPool:       cfg.Limits.PopularPool,
			PopularTTLSeconds: cfg.Cache.PopularTTLSeconds,
		},
		logger.With().Str("component", "recommend").Logger())

	server := infrahttp.NewServer(logger.With().Str("component", "http").Logger())
	httpapi.NewHandler(engagementService, graphService, recoService,
		logger.With().Str("component", "api").Logger()).Mount(server.Router)

	logger.Info().Msg("api: старт")
	if err := server.Run(ctx, cfg.Port); err != nil {
		logger.Error().Err(err).Msg("api: сервер остановлен с ошибкой")
	}
	logger.Info().Msg("api: остановка")
}
