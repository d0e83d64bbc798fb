package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Limits struct {
		RecommendMax int `envconfig:"RECO_LIMIT" default:"20"`
		FeedMax      int `envconfig:"FEED_LIMIT" default:"20"`
		PopularPool  int `envconfig:"POPULAR_POOL" default:"100"`
	} `envconfig:""`

	Cache struct {
		PopularTTLSeconds int `envconfig:"POPULAR_CACHE_TTL" default:"300"`
	} `envconfig:""`

	Queues struct {
		Events string `envconfig:"EVENTS_QUEUE_KEY" default:"engagement_events"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
