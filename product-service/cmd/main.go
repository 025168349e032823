package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/shopcart/pkg/config"
	"github.com/fjod/shopcart/pkg/httpx"
	"github.com/fjod/shopcart/pkg/logger"
	h "github.com/fjod/shopcart/product-service/internal/http"
	"github.com/fjod/shopcart/product-service/internal/repository"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	AppEnv             string
	LogLevel           string
	HTTPPort           string
	DBPath             string
	MigrationsPath     string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
}

func loadConfig() *Config {
	return &Config{
		AppEnv:             config.GetEnv("APP_ENV", "dev"),
		LogLevel:           config.GetEnv("LOG_LEVEL", "info"),
		HTTPPort:           config.GetEnv("HTTP_PORT", "5000"),
		DBPath:             config.GetEnv("DB_PATH", "./products.db"),
		MigrationsPath:     config.GetEnv("MIGRATIONS_PATH", "./product-service/internal/repository/migrations"),
		RequestTimeout:     config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
	}
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.Any("err", err))
		os.Exit(1)
	}

	cfg := loadConfig()
	log := logger.New(logger.Options{
		Service:   "product-service",
		Env:       cfg.AppEnv,
		Level:     cfg.LogLevel,
		AddSource: true,
	})

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", slog.Any("err", err), slog.String("path", cfg.DBPath))
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Error("failed to run migrations", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("migrations completed")

	r := httpx.NewRouter(httpx.RouterOptions{
		Logger:             log,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})
	h.NewProductHandler(repo, log).Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(r, "product-service"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("product service starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.Any("err", err))
	}

	log.Info("server exited")
}
