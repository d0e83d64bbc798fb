package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pulsefeed/internal/adapters/repo"
	"pulsefeed/internal/domain"
	"pulsefeed/internal/infra/cache"
	"pulsefeed/internal/infra/config"
	"pulsefeed/internal/infra/db"
	applog "pulsefeed/internal/infra/log"
	"pulsefeed/internal/infra/metrics"
	"pulsefeed/internal/infra/queue"
	recousecase "pulsefeed/internal/usecase/recommend"
)

// Пауза между пересборками снимка популярного: события одного всплеска
// не должны дёргать каталог на каждое событие.
const refreshDebounceSeconds = 30

const refreshOnceKey = "trender:popular_refresh"

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("trender: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("trender: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	popularCache := cache.NewRedis(redisClient)

	var eventQueue domain.EventQueue
	if cfg.RabbitURL != "" {
		rabbitQueue, err := queue.NewRabbitEventQueue(cfg.RabbitURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("trender: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbitQueue.Close()
		eventQueue = rabbitQueue
	} else {
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
		logger.Info().Msg("trender: RabbitMQ не сконфигурирован, читаем события из Redis")
	}

	recoService := recousecase.NewService(repoAdapter, repoAdapter, repoAdapter, popularCache,
		recousecase.Limits{
			RecommendMax:      cfg.Limits.RecommendMax,
			FeedMax:           cfg.Limits.FeedMax,
			PopularPool:       cfg.Limits.PopularPool,
			PopularTTLSeconds: cfg.Cache.PopularTTLSeconds,
		},
		logger.With().Str("component", "recommend").Logger())

	worker := &eventWorker{
		log:    logger,
		queue:  eventQueue,
		events: repoAdapter,
		cache:  popularCache,
		reco:   recoService,
	}

	logger.Info().Msg("trender: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("trender: остановлен")
}

type eventWorker struct {
	log    zerolog.Logger
	queue  domain.EventQueue
	events domain.EventRepo
	cache  domain.Cache
	reco   *recousecase.Service
}

func (w *eventWorker) Run(ctx context.Context) {
	for {
		event, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("trender: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		eventLog := w.log.With().
			Str("event_id", event.ID).
			Str("kind", string(event.Kind)).
			Str("item", event.ItemID).
			Logger()

		if event.ID == "" {
			eventLog.Error().Msg("trender: событие без идентификатора, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				eventLog.Error().Err(err).Msg("trender: не удалось подтвердить событие без идентификатора")
			}
			continue
		}

		if err := w.events.SaveEvent(ctx, event); err != nil {
			eventLog.Error().Err(err).Msg("trender: не удалось сохранить событие")
			if ackErr := ack(false); ackErr != nil {
				eventLog.Error().Err(ackErr).Msg("trender: не удалось вернуть событие в очередь")
			}
			time.Sleep(time.Second)
			continue
		}
		metrics.IncEngagementEvent(string(event.Kind))

		w.maybeRefreshPopular(ctx, eventLog)

		if err := ack(true); err != nil {
			eventLog.Error().Err(err).Msg("trender: не удалось подтвердить событие")
		}
	}
}

// maybeRefreshPopular пересобирает снимок популярного не чаще одного
// раза за refreshDebounceSeconds. Отказ пересборки не блокирует событие:
// снимок догонит на следующем всплеске.
func (w *eventWorker) maybeRefreshPopular(ctx context.Context, eventLog zerolog.Logger) {
	err := w.cache.Once(ctx, refreshOnceKey, refreshDebounceSeconds, func() error {
		metrics.PopularRefreshTotal.Inc()
		return w.reco.RefreshPopular(ctx)
	})
	if err != nil {
		metrics.PopularRefreshErrors.Inc()
		eventLog.Error().Err(err).Msg("trender: не удалось обновить снимок популярного")
	}
}
