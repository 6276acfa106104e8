// Command nasagw serves the NASA gateway over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nasagateway "github.com/ferro-labs/nasa-gateway"
	"github.com/ferro-labs/nasa-gateway/internal/admin"
	"github.com/ferro-labs/nasa-gateway/internal/logging"
	"github.com/ferro-labs/nasa-gateway/internal/metrics"
	"github.com/ferro-labs/nasa-gateway/internal/ratelimit"
	"github.com/ferro-labs/nasa-gateway/internal/requestlog"
	"github.com/ferro-labs/nasa-gateway/internal/version"
)

func main() {
	log := logging.Logger

	cfg, err := loadConfigFromEnv()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logs, backend, err := createRequestLogFromEnv(cfg.RequestLog)
	if err != nil {
		log.Error("failed to open request log", "error", err)
		os.Exit(1)
	}
	log.Info("request log configured", "backend", backend)

	var opts []nasagateway.Option
	if logs != nil {
		opts = append(opts, nasagateway.WithRequestLog(logs))
	}
	gw, err := nasagateway.New(*cfg, opts...)
	if err != nil {
		log.Error("failed to create gateway", "error", err)
		os.Exit(1)
	}
	defer func() { _ = gw.Close() }()

	tokens := admin.NewTokens(os.Getenv("ADMIN_TOKEN"), os.Getenv("ADMIN_READ_TOKEN"))
	if len(tokens) == 0 {
		log.Warn("ADMIN_TOKEN not set; admin API will reject every request")
	}

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	var clientLimit *ratelimit.Store
	if rl := cfg.ClientRateLimit; rl.Enabled() {
		clientLimit = ratelimit.NewStore(rl.Requests, rl.Window.Std(), clockwork.NewRealClock())
	}

	var reader logReader
	if logs != nil {
		reader = logs
	}
	r := newRouter(gw, reader, tokens, corsOrigins, clientLimit)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	stats := gw.Stats()
	log.Info("nasagw listening",
		"version", version.Short(),
		"addr", addr,
		"budget", stats.Limit,
		"window", stats.Window.String(),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Error("server error", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	log.Info("server stopped")
}

// loadConfigFromEnv reads GATEWAY_CONFIG when set and applies the
// NASA_API_KEY, REQUEST_LOG_DRIVER and REQUEST_LOG_DSN overrides.
func loadConfigFromEnv() (*nasagateway.Config, error) {
	cfg := nasagateway.DefaultConfig()
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		loaded, err := nasagateway.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if key := os.Getenv("NASA_API_KEY"); key != "" {
		cfg.Upstream.APIKey = key
	}
	if driver := os.Getenv("REQUEST_LOG_DRIVER"); driver != "" {
		cfg.RequestLog.Driver = strings.ToLower(strings.TrimSpace(driver))
	}
	if dsn := os.Getenv("REQUEST_LOG_DSN"); dsn != "" {
		cfg.RequestLog.DSN = dsn
	}
	if err := nasagateway.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// createRequestLogFromEnv opens the configured request log. It returns a nil
// writer and backend "disabled" when no driver is configured.
func createRequestLogFromEnv(cfg nasagateway.RequestLogConfig) (*requestlog.SQLWriter, string, error) {
	if cfg.Driver == "" {
		return nil, "disabled", nil
	}
	w, err := requestlog.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, "", err
	}
	return w, cfg.Driver, nil
}

// logReader is the request log surface the admin API needs.
type logReader interface {
	requestlog.Reader
	requestlog.Maintainer
}

// newRouter builds the HTTP router. logs and clientLimit may be nil.
func newRouter(gw *nasagateway.Gateway, logs logReader, tokens admin.Tokens, corsOrigins []string, clientLimit *ratelimit.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/health", healthHandler(gw))
	r.Handle("/metrics", promhttp.Handler())

	adminHandlers := &admin.Handlers{Gateway: gw}
	if logs != nil {
		adminHandlers.Logs = logs
		adminHandlers.LogAdmin = logs
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.AuthMiddleware(tokens))
		r.Mount("/", adminHandlers.Routes())
	})

	r.Route("/v1", func(r chi.Router) {
		if clientLimit != nil {
			r.Use(ratelimit.Middleware(clientLimit, ratelimit.RemoteAddrKey, func(_ *http.Request) {
				metrics.RateLimitRejections.WithLabelValues("client").Inc()
			}))
		}
		r.Get("/apod", apodHandler(gw))
		r.Get("/apod/{id}", apodByIDHandler(gw))
		r.Get("/search", searchHandler(gw))
		r.Get("/earth/latest", latestEarthHandler(gw))
		r.Get("/earth/{date}", earthByDateHandler(gw))
		r.Get("/neo/feed", neoFeedHandler(gw))
		r.Get("/neo/{id}", neoByIDHandler(gw))
		r.Get("/missions", missionsHandler(gw))
		r.Get("/missions/{id}", missionByIDHandler(gw))
	})

	return r
}
