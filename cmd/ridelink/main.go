package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridelink/internal/app"
	"ridelink/internal/config"
	"ridelink/internal/ratelimit"
	"ridelink/internal/server"
	"ridelink/internal/util"
	"ridelink/pkg/identity"
	"ridelink/pkg/notify"
	"ridelink/pkg/treestore"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	var store treestore.Store
	switch cfg.Store {
	case "memory":
		store = treestore.NewMemoryStore()
		logger.Warn("using in-memory store, data will not survive a restart")
	default:
		store = treestore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.StoreNamespace)
	}

	ttl, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		logger.Error("parse token ttl", "err", err)
		os.Exit(1)
	}
	issuer, err := identity.NewJWTIssuer(cfg.TokenSigningKey, cfg.TokenIssuer, ttl)
	if err != nil {
		logger.Error("build token issuer", "err", err)
		os.Exit(1)
	}

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Error("build notifier", "err", err)
		os.Exit(1)
	}
	defer closeNotifier()

	core, err := app.New(app.Config{
		Store:         store,
		Issuer:        issuer,
		Notifier:      notifier,
		AllowSelfChat: cfg.AllowSelfChat,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("build app", "err", err)
		os.Exit(1)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimit > 0 {
		limiter, err = ratelimit.New(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimit, time.Minute)
		if err != nil {
			logger.Error("build rate limiter", "err", err)
			os.Exit(1)
		}
	}

	srv, err := server.New(server.Config{
		App:     core,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("build server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func buildNotifier(cfg config.FileConfig, logger *slog.Logger) (notify.Notifier, func(), error) {
	switch cfg.Notifier {
	case "fcm":
		client, err := notify.NewFCMClient(cfg.FCMEndpoint, cfg.FCMServerKey)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	case "amqp":
		pub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close amqp publisher", "err", err)
			}
		}, nil
	default:
		logger.Info("push notifications disabled")
		return notify.Nop{}, func() {}, nil
	}
}
