package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"naija-emoji-api/core"
)

func main() {
	cfg, _, err := core.LoadConfig("api", os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	store, err := core.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	instance := core.NewInstanceState(core.NewInstanceID(), store.Backend)

	// Redis is optional: without it login throttling and decision counters are off.
	var (
		limiter core.LoginLimiter
		metrics *core.MetricsService
	)
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, continuing without it")
		} else {
			defer redisClient.Close()
			limiter = core.NewRedisLoginLimiter(redisClient, cfg.LoginMaxAttempts, cfg.LoginLockout)
			metrics = core.NewMetricsService(redisClient)
			go instance.Start(ctx, redisClient)
		}
	}

	authService, err := core.NewAuthServiceFromConfig(cfg, store.Users, limiter)
	if err != nil {
		log.Fatalf("failed to init token codec: %v", err)
	}

	if err := core.BootstrapAdmin(ctx, authService, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	if cfg.SeedFile != "" {
		doc, err := core.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			log.Fatalf("failed to load seed: %v", err)
		}
		if _, err := core.ImportSeed(ctx, store, authService, doc, time.Now()); err != nil {
			log.Fatalf("seed import failed: %v", err)
		}
	}

	router := core.NewRouter(cfg, store, authService, metrics, instance)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.WithFields(log.Fields{"addr": addr, "instance": instance.Snapshot().InstanceID, "backend": store.Backend, "token_expiry": cfg.TokenExpiry}).Info("starting api server")
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
