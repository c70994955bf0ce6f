package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/api"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/auth"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/config"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/engine"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/resolver"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/storage"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/tool"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthServiceName = "triage.deployment_risk.v1.ToolService"

// tokenExpiryWarning is how close to expiry the Central token may get
// before start-up warns about it.
const tokenExpiryWarning = 72 * time.Hour

func main() {
	configPath := flag.String("config", os.Getenv("RISK_TOOL_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logger
	logger, err := config.BuildLogger(cfg.LogLevel, "stdout")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting deployment risk tool server",
		zap.String("port", cfg.Server.Port),
		zap.String("grpc_port", cfg.Server.GRPCPort),
		zap.String("central_url", cfg.Central.URL),
		zap.Int("fetch_concurrency", cfg.Fetch.Concurrency),
		zap.Duration("call_timeout", cfg.Fetch.CallTimeout),
		zap.Duration("list_timeout", cfg.Fetch.ListTimeout),
	)

	// Central connection
	conn, err := inventory.NewConnection(cfg.Central.URL, cfg.Central.Token)
	if err != nil {
		logger.Fatal("invalid central connection", zap.Error(err))
	}
	if exp, ok := conn.TokenExpiry(); ok {
		switch remaining := time.Until(exp); {
		case remaining <= 0:
			logger.Warn("central API token has expired", zap.Time("expired_at", exp))
		case remaining < tokenExpiryWarning:
			logger.Warn("central API token expires soon", zap.Time("expires_at", exp))
		}
	}

	// Pipeline
	client := inventory.NewClient(inventory.ClientConfig{
		InsecureSkipVerify: cfg.Central.InsecureSkipVerify,
	}, logger)
	fetcher := engine.NewFetcher(client, engine.FetcherConfig{
		Concurrency: cfg.Fetch.Concurrency,
		CallTimeout: cfg.Fetch.CallTimeout,
	}, logger)
	riskQuery, err := tool.NewRiskQuery(conn, resolver.New(client, cfg.Fetch.ListTimeout), fetcher, logger)
	if err != nil {
		logger.Fatal("failed to build risk query tool", zap.Error(err))
	}

	registry := tool.NewRegistry()
	if err := registry.Register(riskQuery.Registration()); err != nil {
		logger.Fatal("failed to register tool", zap.Error(err))
	}

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Auth: Postgres if DSN provided, otherwise static
	var authenticator auth.Authenticator
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: cfg.AuthCacheTTL,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("using static authenticator (no POSTGRES_DSN)")
	}

	// HTTP tool API
	httpServer := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewRouter(&api.Dependencies{
			Registry: registry,
			Auth:     authenticator,
			Writer:   writer,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health for load balancer checks
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.Server.GRPCPort), zap.Error(err))
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc health server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
		grpcServer.GracefulStop()
	}()

	logger.Info("tool server listening",
		zap.String("http_addr", httpServer.Addr),
		zap.String("grpc_addr", lis.Addr().String()),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
