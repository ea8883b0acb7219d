package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/climate-timeseries/internal/api/http"
	"github.com/i474232898/climate-timeseries/internal/climate"
	"github.com/i474232898/climate-timeseries/internal/climate/cds"
	"github.com/i474232898/climate-timeseries/internal/climate/netcdf"
	"github.com/i474232898/climate-timeseries/internal/config"
	"github.com/i474232898/climate-timeseries/internal/geocode"
	"github.com/i474232898/climate-timeseries/internal/logger"
	"github.com/i474232898/climate-timeseries/internal/metrics"
	"github.com/i474232898/climate-timeseries/internal/scheduler"
	"github.com/i474232898/climate-timeseries/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure logger")
	}

	// Shared HTTP client for outbound calls to the climate data service.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	connector := cds.NewConnector(httpClient, cds.Options{
		PollInterval: cfg.PollInterval,
		Backoff: cds.BackoffConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}, logg)

	retriever := climate.NewRetriever(climate.Config{
		Endpoint:  cfg.Endpoint,
		DatasetID: cfg.DatasetID,
		OutputDir: cfg.OutputDir,
	}, connector, logg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("climate_timeseries", registry)

	// In-memory retrieval history with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	service := climate.NewService(retriever, memStore, netcdf.NewLoader(), collector, cfg.APIKey, logg)

	jobs, err := resolveJobs(cfg)
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to resolve jobs")
	}

	sched := scheduler.New(jobs, cfg.FetchInterval, 0, service, logg)
	if err := sched.Start(); err != nil {
		logg.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "climate-timeseries",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// No WriteTimeout: /timeseries/retrieve blocks for the whole CDS job.
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "climate-timeseries",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logg.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	logg.Info().Str("port", cfg.Port).Str("endpoint", cfg.Endpoint).Str("dataset", cfg.DatasetID).Msg("listening")

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Error().Err(err).Msg("error during shutdown")
	}
}

// resolveJobs turns configured jobs into retrieval parameters, geocoding
// city-based jobs when a Google API key is configured.
func resolveJobs(cfg *config.AppConfig) ([]climate.Params, error) {
	var lookup func(city, country string) (float64, float64, error)
	if cfg.GeocodingAPIKey != "" {
		lookup = geocode.New(cfg.GeocodingAPIKey).Resolve
	}

	jobs := make([]climate.Params, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		p, err := j.Params(lookup)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, p)
	}
	return jobs, nil
}
