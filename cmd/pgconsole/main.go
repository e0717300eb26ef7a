package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	alertapi "github.com/bovinemagnet/pg-console-sub007/internal/alerting/api"
	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/dispatch"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/escalation"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/lifecycle"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/policy"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/suppression"
	"github.com/bovinemagnet/pg-console-sub007/internal/config"
	"github.com/bovinemagnet/pg-console-sub007/internal/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Info().Msg("Starting pgconsole alerting server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	db, err := adb.New(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("alerting database init failed")
	}
	defer db.Close()

	rdb := newRedisClient(&cfg.Redis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// seed channels and policies from file if provided
	if err := policy.BootstrapFromConfig(ctx, db, cfg.Alerting.Bootstrap.ConfigFile); err != nil {
		log.Error().Err(err).Msg("policy bootstrap failed")
	}

	policyStore := policy.NewPgStore(db)
	suppStore := suppression.NewPgStore(db)
	gate := suppression.NewGate(suppStore, suppression.NewEvaluator(suppression.FailMode(cfg.Alerting.Suppression.FailMode)))

	var dedupCache dispatch.DedupCache
	var stateCache lifecycle.StateCache
	if rdb != nil {
		dedupCache = dispatch.NewRedisDedupCache(rdb)
		stateCache = lifecycle.NewRedisStateCache(rdb)
	}
	dispatcher := dispatch.NewDispatcher(
		dispatch.NewPgChannelStore(db),
		dispatch.NewPgResultStore(db),
		dispatch.NewHTTPTransport(parseDuration(cfg.Alerting.Dispatch.DefaultTimeout, 10*time.Second)),
		dedupCache,
		nil,
	)

	engine := escalation.NewEngine(escalation.Deps{
		Alerts:        escalation.NewPgAlertStore(db),
		Policies:      policyStore,
		Gate:          gate,
		Dispatcher:    dispatcher,
		Interval:      parseDuration(cfg.Alerting.Engine.Interval, 30*time.Second),
		Batch:         cfg.Alerting.Engine.Batch,
		Workers:       cfg.Alerting.Engine.Workers,
		Retention:     parseDuration(cfg.Alerting.Retention.MaxAge, 30*24*time.Hour),
		SweepInterval: parseDuration(cfg.Alerting.Retention.SweepInterval, time.Hour),
	})
	go engine.StartScheduler(ctx)
	go engine.StartRetentionSweeper(ctx)

	manager := lifecycle.NewManager(
		lifecycle.NewPgAlertStore(db),
		policyStore,
		suppStore,
		dispatcher,
		stateCache,
		nil,
	)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.BearerAuth(cfg.Server.Bearer))
	alertapi.NewApi(router, alertapi.Deps{
		Manager:  manager,
		Engine:   engine,
		Silences: suppStore,
		Results:  dispatch.NewPgResultStore(db),
		Policies: policyStore,
	})

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := router.Run(cfg.Server.BindAddr); err != nil {
		log.Fatal().Err(err).Msg("start pgconsole alerting server failed.")
	}
	log.Info().Msg("pgconsole alerting server exit...")
}

func newRedisClient(c *config.RedisConfig) *redis.Client {
	if c == nil || c.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
}

func parseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}
