// Command kyc-server starts the identity verification gRPC server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/kyc-verifier/internal/api"
	"github.com/and161185/kyc-verifier/internal/config"
	"github.com/and161185/kyc-verifier/internal/crypto"
	"github.com/and161185/kyc-verifier/internal/ingest"
	"github.com/and161185/kyc-verifier/internal/logging"
	"github.com/and161185/kyc-verifier/internal/metrics"
	"github.com/and161185/kyc-verifier/internal/migrate"
	"github.com/and161185/kyc-verifier/internal/provider"
	"github.com/and161185/kyc-verifier/internal/repository/postgres"
	"github.com/and161185/kyc-verifier/internal/scheduler"
	grpcserver "github.com/and161185/kyc-verifier/internal/server/grpc"
	"github.com/and161185/kyc-verifier/internal/service"
	"github.com/and161185/kyc-verifier/internal/stats"
	"github.com/and161185/kyc-verifier/internal/usage"
	"github.com/and161185/kyc-verifier/internal/verify"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, starts the verification
// scheduler and serves gRPC until SIGINT/SIGTERM.
func main() {
	cfg, err := config.ParseServer(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := logging.New("kyc-server", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN, int32(cfg.MaxConns))
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	fp, err := crypto.NewFingerprinter([]byte(cfg.FingerprintKey))
	if err != nil {
		logger.Fatal("fingerprint key", zap.Error(err))
	}

	// Repositories
	records := postgres.NewRecordRepo(db)
	batches := postgres.NewBatchRepo(db)
	counter := usage.NewPG(db.Pool)

	var cache stats.Cache = postgres.NewStatsRepo(db)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		cache = stats.NewRedisCache(rdb, 2*cfg.StatsStaleness)
		logger.Info("stats cache", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
	}
	aggregator := stats.New(records, cache, cfg.StatsStaleness, logger.Named("stats"))

	// Pipeline
	client := provider.New(provider.Config{
		Name:      cfg.ProviderName,
		BaseURL:   cfg.ProviderURL,
		APIKey:    cfg.ProviderKey,
		APISecret: cfg.ProviderSecret,
		Timeout:   cfg.ProviderTimeout,
	}, logger.Named("provider"))

	engine := verify.New(verify.Deps{
		Records:      records,
		Batches:      batches,
		Stats:        aggregator,
		Usage:        counter,
		Provider:     client,
		Metrics:      m,
		Fingerprints: fp,
	}, verify.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseBackoff}, verify.Sleep, logger.Named("verify"))

	sched := scheduler.New(engine, batches, scheduler.Config{
		GroupSize:  cfg.GroupSize,
		GroupDelay: cfg.GroupDelay,
		QueueSize:  cfg.QueueSize,
	}, verify.Sleep, m, logger.Named("scheduler"))

	// Services
	svc := service.NewVerificationService(service.Deps{
		Records:   records,
		Batches:   batches,
		Ingest:    ingest.New(records, m, logger.Named("ingest")),
		Processor: engine,
		Queue:     sched,
		Stats:     aggregator,
		Usage:     counter,
	}, cfg.MaxUploadBytes, logger.Named("service"))
	tokens := service.NewTokenService([]byte(cfg.JWTKey), cfg.TokenTTL)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()
	if _, err := svc.ResumePending(ctx); err != nil {
		logger.Warn("resume pending records", zap.Error(err))
	}

	// gRPC server with interceptors; uploads travel base64-encoded inside JSON
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(int(cfg.MaxUploadBytes)*4/3 + 1<<20),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(tokens),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	api.RegisterVerificationServer(s, grpcserver.New(svc))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
		stop()
	}

	hs.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.Stop()
	}
	if metricsSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shCtx)
		cancel()
	}
	// the in-flight group finishes, no new group starts
	<-schedDone

	logger.Info("shutdown complete")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}
