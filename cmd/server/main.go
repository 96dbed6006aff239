// Copyright 2026 The HostelHub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostelhub/hostelhub/internal/audit"
	"github.com/hostelhub/hostelhub/internal/booking"
	"github.com/hostelhub/hostelhub/internal/config"
	"github.com/hostelhub/hostelhub/internal/observability/logger"
	"github.com/hostelhub/hostelhub/internal/observability/metrics"
	"github.com/hostelhub/hostelhub/internal/observability/tracing"
	"github.com/hostelhub/hostelhub/internal/store/postgres"
	"github.com/hostelhub/hostelhub/internal/store/rediscache"
	transportHTTP "github.com/hostelhub/hostelhub/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting hostelhub booking service")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	sessionRepo := postgres.NewSessionRepository(db)
	auditLogger := audit.NewSlogLogger()

	bookingService := booking.NewService(sessionRepo, auditLogger, meter, booking.Policy{
		TotalMachines:    cfg.Booking.TotalMachines,
		MachinesPerFloor: cfg.Booking.MachinesPerFloor,
	})

	// Optional Redis-backed status cache; the service runs fine without it.
	var statusCache transportHTTP.StatusCache
	if cfg.Redis.Enabled {
		cache, err := rediscache.New(rediscache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			slog.Error("failed to connect to redis, continuing without status cache", logger.Error(err))
		} else {
			defer cache.Close()
			statusCache = cache
			slog.Info("connected to redis status cache")
		}
	}

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	handler := transportHTTP.NewHandler(bookingService, statusCache, cfg.Observability.ServiceName)
	router := transportHTTP.NewRouter(handler, rateLimiter, cfg.CORS.AllowedOrigins)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Expiry sweep: flips sessions whose window closed, so stale bookings
	// stop blocking machines even when nobody polls the status board.
	go func() {
		ticker := time.NewTicker(cfg.Booking.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := bookingService.ExpireOverdue(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to expire overdue sessions", logger.Error(err))
			}
		}
	}()

	// History purge: drops inactive records past the retention window.
	go func() {
		ticker := time.NewTicker(cfg.Booking.PurgeInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := bookingService.PurgeHistory(ctx, cfg.Booking.HistoryRetention); err != nil {
				slog.ErrorContext(ctx, "failed to purge session history", logger.Error(err))
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
