package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/config"
	"github.com/bod9dzys/BasicWFMbb/internal/api/handler"
	"github.com/bod9dzys/BasicWFMbb/internal/api/middleware"
	"github.com/bod9dzys/BasicWFMbb/internal/api/router"
	"github.com/bod9dzys/BasicWFMbb/internal/metrics"
	"github.com/bod9dzys/BasicWFMbb/internal/repository"
	"github.com/bod9dzys/BasicWFMbb/internal/service"
	"github.com/bod9dzys/BasicWFMbb/pkg/database"
	"github.com/bod9dzys/BasicWFMbb/pkg/jwt"
	applogger "github.com/bod9dzys/BasicWFMbb/pkg/logger"
	"github.com/bod9dzys/BasicWFMbb/pkg/redis"
)

func main() {
	// 1. config
	cfg, err := config.Load(os.Getenv("WFM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// 2. logger
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. database
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("get sql.DB", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	// 4. Redis (optional: import serialisation and rate limiting)
	var (
		rdb     *redis.Client
		locker  service.RunLocker
		limiter middleware.Limiter
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, running without import lock and rate limiting", zap.Error(err))
		} else {
			locker, limiter = rdb, rdb
		}
	}

	// 5. metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 6. Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, locker, m, logger)
	h := handler.NewHandler(svc, repo.Role)

	engine := router.Setup(cfg, h, router.Deps{
		JWT:      jwtMgr,
		Checker:  repo.Role,
		Limiter:  limiter,
		Gatherer: reg,
		Ping:     sqlDB.PingContext,
	}, logger)

	// 7. HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// uploads and full-period exports take longer than API calls
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	sqlDB.Close()

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("server stopped")
}
