package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vn.io.arda/idbridge/internal/application"
	"vn.io.arda/idbridge/internal/cache"
	"vn.io.arda/idbridge/internal/config"
	"vn.io.arda/idbridge/internal/domain"
	"vn.io.arda/idbridge/internal/events"
	"vn.io.arda/idbridge/internal/infrastructure/postgres"
	"vn.io.arda/idbridge/internal/infrastructure/remote"
	"vn.io.arda/idbridge/internal/policy"
	transporthttp "vn.io.arda/idbridge/internal/transport/http"
)

func main() {
	// ── Logging ──────────────────────────────────────────────────────────────
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// ── Config ───────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Server.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("env", cfg.Server.Env).
		Str("port", cfg.Server.Port).
		Str("mode", cfg.Bridge.Mode).
		Msg("starting idbridge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Backend ───────────────────────────────────────────────────────────────
	var backend domain.Backend

	switch cfg.Bridge.Mode {
	case config.ModeDatabase:
		pools := postgres.NewPools()
		defer pools.CloseAll()

		pool, err := pools.Get(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")

		backend, err = postgres.New(pool, cfg.Database.AttributeMappings)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid attribute mappings")
		}

	case config.ModeRest:
		client := remote.New(cfg.Remote, cfg.Server.Env, cache.NewTokenCache())
		if client.TestConnection(ctx) {
			log.Info().Str("base_url", cfg.Remote.BaseURL).Msg("remote service reachable")
		} else {
			log.Warn().Str("base_url", cfg.Remote.BaseURL).Msg("remote service unreachable at startup")
		}
		backend = client

	default:
		log.Fatal().Str("mode", cfg.Bridge.Mode).Msg("unknown bridge mode")
	}

	// ── Audit Events ──────────────────────────────────────────────────────────
	var audit events.Publisher = events.Nop{}
	if len(cfg.Audit.Brokers) > 0 {
		kafka, err := events.NewKafka(cfg.Audit.Brokers, cfg.Audit.Topic)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		audit = kafka
		log.Info().Strs("brokers", cfg.Audit.Brokers).Str("topic", cfg.Audit.Topic).Msg("audit events enabled")
	}
	defer audit.Close()

	// ── Federation Gateway ────────────────────────────────────────────────────
	pol := policy.Policy{
		AdminRealm:    cfg.Realms.AdminRealm,
		EnabledRealms: cfg.Realms.Enabled,
	}
	gw := application.New(backend, cache.NewProfileCache(), pol,
		cfg.Provisioning, cfg.ProfileTTL(), audit)

	// ── HTTP Server ───────────────────────────────────────────────────────────
	handler := transporthttp.NewHandler(gw)
	router := transporthttp.NewRouter(handler, cfg.Server.InternalSecret)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := router.Start(":" + cfg.Server.Port); err != nil {
			log.Info().Msg("HTTP server stopped")
		}
	}()

	// ── Graceful Shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("idbridge stopped")
}
