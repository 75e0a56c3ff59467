package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"github.com/fennwick/sotto/internal/infrastructure/configs"
	"github.com/fennwick/sotto/internal/infrastructure/events"
	"github.com/fennwick/sotto/internal/infrastructure/messaging"
	"github.com/fennwick/sotto/internal/infrastructure/ratelimiter"
	"github.com/fennwick/sotto/internal/infrastructure/repository"
	"github.com/fennwick/sotto/internal/infrastructure/tracing"
	"github.com/fennwick/sotto/internal/infrastructure/ws"
	"github.com/fennwick/sotto/internal/presentation/api"
	"github.com/fennwick/sotto/internal/presentation/handler/chat"
	"github.com/fennwick/sotto/internal/presentation/handler/health"
	"go.uber.org/zap"
)

const serviceName = "sotto-relay"

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	roomRepository := repository.NewRoomRepository(cfg.Rooms.Capacity)

	// Lifecycle events only leave the process when a broker is configured.
	var roomPublisher *events.RoomPublisher
	if cfg.AMQP.URI != "" {
		rabbitmq, err := messaging.NewRabbitMQ(cfg.AMQP.URI)
		if err != nil {
			log.Fatal(err)
		}
		defer rabbitmq.Close()

		roomPublisher = events.NewRoomPublisher(rabbitmq)
		logger.Infow("room event publishing enabled")
	}

	hub := ws.NewHub(roomRepository, roomPublisher, logger, ws.Options{
		TTL:             cfg.Rooms.TTL,
		DisconnectGrace: cfg.Rooms.DisconnectGrace,
		SweepInterval:   cfg.Rooms.SweepInterval,
	})
	go hub.Run()
	defer hub.Close()

	chatHandler := chat.NewHandler(hub)
	healthHandler := health.NewHandler()

	rateLimiter := ratelimiter.NewFixedWindowRateLimiter(cfg.RateLimiter.RequestsPerTimeFrame, cfg.RateLimiter.TimeFrame)
	defer rateLimiter.Close()

	app := api.NewApplication(*cfg, *chatHandler, *healthHandler, logger, rateLimiter)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}
