package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stocksim/internal/auth"
	"stocksim/internal/config"
	"stocksim/internal/engine"
	"stocksim/internal/handler"
	"stocksim/internal/service"
	"stocksim/internal/store"
)

func main() {
	cfg, err := config.LoadExchange()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	books := engine.NewBooks()
	if err := engine.Rebuild(st, books, logger); err != nil {
		logger.Fatal("failed to rebuild order books", zap.Error(err))
	}

	keychain, err := auth.LoadKeychain(st)
	if err != nil {
		logger.Fatal("failed to warm keychain", zap.Error(err))
	}

	matcher := engine.NewMatcher(st, books, logger)
	adminSvc := service.NewAdminService(st, matcher, keychain, logger)
	traderSvc := service.NewTraderService(st, matcher)
	marketSvc := service.NewMarketService(st, books)

	if err := adminSvc.EnsureTreasury(context.Background()); err != nil {
		logger.Fatal("failed to provision treasury account", zap.Error(err))
	}

	limiter := auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router := handler.NewRouter(marketSvc, traderSvc, adminSvc, keychain, cfg.AdminToken, limiter, logger)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("exchange listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
