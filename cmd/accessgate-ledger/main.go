package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/investable/accessgate/internal/accessgate/service"
	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/store/memory"
	"github.com/investable/accessgate/internal/accessgate/store/postgres"
	sqlitestore "github.com/investable/accessgate/internal/accessgate/store/sqlite"
	"github.com/investable/accessgate/internal/config"
	"github.com/investable/accessgate/internal/db"
	"github.com/investable/accessgate/internal/health"
	"github.com/investable/accessgate/internal/httpapi"
	"github.com/investable/accessgate/internal/logging"
	"github.com/investable/accessgate/internal/metrics"
	"github.com/investable/accessgate/internal/principal"
)

func main() {
	cfg, err := config.Load(os.Getenv("ACCESSGATE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, "accessgate-ledger", cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	ledgerMetrics := metrics.NewLedger(registry)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open ledger store", zap.Error(err))
	}
	defer closeStore()

	ledgerSvc := service.NewLedgerService(st,
		service.WithLogger(logger),
		service.WithMetrics(ledgerMetrics),
	)

	var principals httpapi.PrincipalResolver
	if path := cfg.Ledger.PrincipalsFile; path != "" {
		dir, err := principal.Load(path)
		if err != nil {
			logger.Fatal("load principals", zap.Error(err))
		}
		principals = dir

		reloader, err := principal.NewReloader(dir, logger)
		if err != nil {
			logger.Fatal("watch principals", zap.Error(err))
		}
		go func() { _ = reloader.Run(ctx) }()
	} else {
		logger.Warn("no principals file configured; approver routes are open")
	}

	ready := health.NewManager(false)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        logger,
		Addr:          cfg.Ledger.HTTPAddr,
		LedgerService: ledgerSvc,
		Principals:    principals,
		Health:        ready,
		Registry:      registry,
		MetricsPath:   cfg.MetricsPath,
		AllowClear:    cfg.Ledger.AllowClear,
	})

	var grpcServer *grpc.Server
	if cfg.Ledger.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Ledger.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		grpcServer = ready.NewGRPCServer()
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.Ledger.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server error", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Ledger.HTTPAddr), zap.String("store", cfg.Ledger.Store))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()
	ready.SetReady(true)

	<-ctx.Done()

	logger.Info("shutdown started")
	ready.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcDone := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(grpcDone)
		}()
		select {
		case <-grpcDone:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.AccessRequestStore, func(), error) {
	switch cfg.Ledger.Store {
	case "memory":
		return memory.NewAccessRequestStore(), func() {}, nil

	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.Ledger.DBPath, Env: cfg.Env, Schema: db.SchemaLedger})
		if err != nil {
			return nil, nil, err
		}
		if cfg.Ledger.SeedDemo && cfg.Env == "dev" {
			if err := db.SeedDev(ctx, conn, db.SeedDevOptions{}); err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
			logger.Info("demo requests seeded")
		}
		w := db.NewWorker(conn)
		return sqlitestore.NewAccessRequestStore(conn, w), func() {
			w.Close()
			_ = conn.Close()
		}, nil

	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		pool, err := pgxpool.New(connectCtx, cfg.Ledger.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		st := postgres.NewAccessRequestStore(pool)
		if err := st.EnsureSchema(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger store %q", cfg.Ledger.Store)
}
