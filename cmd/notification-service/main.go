package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/merchflow/checkout-service/internal/notification"
	"github.com/merchflow/checkout-service/pkg/idempotency"
	"github.com/merchflow/checkout-service/pkg/logging"
	"github.com/merchflow/checkout-service/pkg/shutdown"
	"github.com/merchflow/checkout-service/pkg/tracing"
)

func main() {
	log := logging.New("notification-service")
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	kafkaAddr := env("KAFKA_ADDR", "localhost:9092")
	otlpURL := env("OTLP_URL", "http://localhost:4318")
	redisAddr := env("REDIS_ADDR", "localhost:6379")
	inTopic := env("IN_TOPIC", "order.events")
	sinkURL := env("SINK_URL", "http://localhost:9292")

	tp, err := tracing.Init(ctx, "notification-service", otlpURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	redisDB := redis.NewClient(&redis.Options{Addr: redisAddr})
	idem := idempotency.NewStore(redisDB, 10*time.Minute)

	sink := notification.NewSink(log, sinkURL)
	consumer := notification.NewConsumer(log, []string{kafkaAddr}, inTopic, "notification-service", sink, idem)

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("notification-service shutdown")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
