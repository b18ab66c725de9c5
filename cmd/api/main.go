package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/sessions"

	"shop-accounts-prototype/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Gorilla cookie store signs the CSRF token cookie; login sessions
	// themselves live in Redis.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	userRepo := core.NewPgUserRepository(db)
	userService := core.NewDirectoryUserService(userRepo)
	sessionManager := core.NewSessionManager(redisClient,
		time.Duration(cfg.SessionTTLSeconds)*time.Second,
		time.Duration(cfg.SessionMaxLifetimeSeconds)*time.Second)
	metrics := core.NewAuthMetrics(redisClient)

	if err := core.BootstrapUser(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap user failed: %v", err)
	}

	router := core.NewRouter(cfg, store, userService, sessionManager, metrics, db, redisClient)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
