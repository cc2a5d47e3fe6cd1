package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/api"
	"polymer-predictor/internal/cfg"
	"polymer-predictor/internal/common"
	"polymer-predictor/internal/features"
	"polymer-predictor/internal/metrics"
	"polymer-predictor/internal/ml"
	"polymer-predictor/internal/storage"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	common.SetupLogging(c.LogLevel, c.LogFormat)

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeModelStore(c)
	extractor := features.NewExtractor(mw)
	engine := ml.NewEngine(store, extractor, mw, ml.EngineConfig{
		CacheSize: c.CacheSize,
		CacheTTL:  c.CacheTTL,
		Drift: ml.DriftConfig{
			WindowSize: c.DriftWindow,
			Threshold:  c.DriftThreshold,
		},
	})

	history := initializeStorage(c)
	deps := api.Deps{
		Engine:         engine,
		Models:         store,
		Extractor:      extractor,
		Metrics:        mw,
		MetricsHandler: promhttp.Handler(),
	}
	if history != nil {
		defer history.Close()
		deps.History = history
	}
	if d := engine.Drift(); d != nil {
		deps.Drift = d
	}

	handler := api.NewHandler(deps, api.Options{
		MaxBatchSize:     c.MaxBatchSize,
		BatchConcurrency: c.BatchConcurrency,
		RequestTimeout:   c.RequestTimeout,
	})
	server := api.NewServer(handler, api.ServerConfig{
		Addr:         c.Addr(),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	})

	serveErrs, err := server.Start()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	waitForShutdown(serveErrs)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Shutdown timeout, forcing exit")
	}
}

// initializeModelStore resolves and loads the model artifact. A missing or
// broken artifact leaves the store unloaded; the service still starts and
// serves placeholders.
func initializeModelStore(c cfg.Settings) *ml.Store {
	path := c.ModelPath
	if c.ModelsDir != "" {
		mm, err := ml.NewModelManager(c.ModelsDir)
		if err != nil {
			log.Warn().Err(err).Msg("Model catalog unavailable, using configured path")
		} else {
			path = mm.ResolveArtifact(c.ModelPath)
		}
	}

	// NewStore logs the load outcome.
	return ml.NewStore(path)
}

// initializeStorage opens the prediction history when enabled.
func initializeStorage(c cfg.Settings) *storage.Store {
	if !c.HistoryEnabled || c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("Storage initialization failed, continuing without history")
		return nil
	}
	log.Info().Str("path", store.Path()).Msg("Prediction history enabled")
	return store
}

func waitForShutdown(serveErrs <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err, ok := <-serveErrs:
		if ok && err != nil {
			log.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}
	log.Info().Msg("Shutting down gracefully...")
}
