// Package main runs the live mean-reversion signal engine:
// - Feed (continuous): WebSocket price/volume stream for one instrument
// - Engine (continuous): rolling statistics, signal generation, risk gate
// - Audit (continuous): signal events plus health/performance snapshots
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"meanrev-engine/internal/audit"
	chsink "meanrev-engine/internal/audit/clickhouse"
	auditmem "meanrev-engine/internal/audit/memory"
	"meanrev-engine/internal/audit/migrations"
	pgsink "meanrev-engine/internal/audit/postgres"
	"meanrev-engine/internal/config"
	"meanrev-engine/internal/engine"
	"meanrev-engine/internal/feed"
	"meanrev-engine/internal/gateway"
	"meanrev-engine/internal/observability"
)

func main() {
	// Load .env if present; system env vars win inside config loading.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("ENGINE_CONFIG"), "Path to YAML config file")
	feedURL := flag.String("feed-url", "", "WebSocket feed endpoint (overrides config)")
	symbol := flag.String("symbol", "", "Instrument symbol (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL audit DSN (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse audit DSN (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: trace|debug|info|warn|error (overrides config)")

	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		boot := bootLogger()
		boot.Fatal().Err(err).Msg("load configuration")
	}
	override(&cfg.FeedURL, *feedURL)
	override(&cfg.FeedSymbol, *symbol)
	override(&cfg.PostgresDSN, *postgresDSN)
	override(&cfg.ClickhouseDSN, *clickhouseDSN)
	override(&cfg.MetricsAddr, *metricsAddr)
	override(&cfg.LogLevel, *logLevel)

	logger := newLogger(cfg.LogLevel)

	if cfg.FeedURL == "" {
		logger.Fatal().Msg("feed_url is required (config key, FEED_URL env, or --feed-url)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Assemble audit sinks. The in-memory sink always runs so /healthz can
	// show recent records even without a database.
	memSink := auditmem.NewSink(cfg.AuditBuffer)
	sinks := []audit.Sink{memSink}

	if cfg.PostgresDSN != "" {
		pool, err := pgsink.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres audit store")
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("run postgres migrations")
		}
		sinks = append(sinks, pgsink.NewSink(pool))
		logger.Info().Msg("postgres audit sink enabled")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("run clickhouse migrations")
		}
		defer conn.Close()
		sinks = append(sinks, chsink.NewSink(conn))
		logger.Info().Msg("clickhouse audit sink enabled")
	}

	metrics := observability.NewMetrics("", nil)

	wsCfg := feed.DefaultWSConfig()
	wsCfg.OnReconnect = metrics.FeedReconnects.Inc
	wsFeed, err := feed.NewWSFeed(ctx, cfg.FeedURL, cfg.FeedSymbol, &wsCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect market data feed")
	}
	defer wsFeed.Close()

	gw := gateway.NewSimulated(gateway.SimulatedOptions{
		SlippageBps: cfg.SlippageBps,
		Logger:      logger,
	})

	eng, err := engine.New(engine.Options{
		Config:  cfg,
		Feed:    wsFeed,
		Gateway: gw,
		Audit:   audit.NewFanout(sinks...),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create engine")
	}

	go serveHTTP(cfg.MetricsAddr, eng, logger)

	done := make(chan struct{})

	// Handle shutdown signals: first is graceful, second forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = eng.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("engine terminated")
	}
	logger.Info().Msg("engine exited cleanly")
}

// override replaces dst with src when the flag was actually set.
func override(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func bootLogger() zerolog.Logger {
	return newLogger("info")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// serveHTTP exposes Prometheus metrics and a JSON health endpoint.
func serveHTTP(addr string, eng *engine.Engine, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(eng.Stats()); err != nil {
			logger.Warn().Err(err).Msg("encode health response")
		}
	})

	logger.Info().Str("addr", addr).Msg("http server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
	}
}
