package api

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fennwick/sotto/internal/infrastructure/configs"
	"github.com/fennwick/sotto/internal/infrastructure/json"
	"github.com/fennwick/sotto/internal/infrastructure/metrics"
	"github.com/fennwick/sotto/internal/infrastructure/ratelimiter"
	chatHandler "github.com/fennwick/sotto/internal/presentation/handler/chat"
	healthHandler "github.com/fennwick/sotto/internal/presentation/handler/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Application struct {
	config        configs.Config
	chatHandler   chatHandler.Handler
	healthHandler healthHandler.Handler
	logger        *zap.SugaredLogger
	ratelimiter   *ratelimiter.FixedWindowRateLimiter
}

func NewApplication(
	config configs.Config,
	chatHandler chatHandler.Handler,
	healthHandler healthHandler.Handler,
	logger *zap.SugaredLogger,
	ratelimiter *ratelimiter.FixedWindowRateLimiter,
) *Application {
	return &Application{
		config:        config,
		chatHandler:   chatHandler,
		healthHandler: healthHandler,
		logger:        logger,
		ratelimiter:   ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(app.rateLimiterMiddleware)
	r.Use(app.enableCors)

	// long-lived connections, no request timeout
	r.Get("/ws", app.chatHandler.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)
	})

	r.Handle("/metrics", metrics.Handler())
	r.Handle("/debug/vars", expvar.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		json.WriteError(w, http.StatusNotFound, "Unknown route.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		json.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	return r
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      otelhttp.NewHandler(mux, "sotto.http"),
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", srv.Addr)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", srv.Addr)

	return nil
}
