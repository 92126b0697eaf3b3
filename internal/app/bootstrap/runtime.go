package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/adapters/cache"
	httpadapter "github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/adapters/maintenance"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	sweeper    *maintenance.Sweeper
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping m04 account security service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"counter_backend", cfg.CounterBackend,
	)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	var (
		windows  ports.RateWindowStore
		attempts ports.AttemptCounter
		readyFn  = func(*http.Request) error { return sqlDB.Ping() }
		cleanup  = func(context.Context) { _ = sqlDB.Close() }
	)
	if cfg.CounterBackend == "redis" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		windows = cacheadapter.NewRedisRateWindowStore(redisClient)
		attempts = cacheadapter.NewRedisAttemptStore(redisClient)
		readyFn = func(r *http.Request) error {
			if err := sqlDB.Ping(); err != nil {
				return err
			}
			return redisClient.Ping(r.Context()).Err()
		}
		cleanup = func(context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		}
	} else {
		windows = cacheadapter.NewMemoryRateWindowStore()
		attempts = cacheadapter.NewMemoryAttemptStore()
	}

	repos := postgres.NewRepositories(pool)
	sink := application.NewSecurityEventSink(repos.Events, logger)
	limiter := application.NewRateLimiter(windows, logger)
	guard := application.NewLoginAttemptGuard(attempts, repos.Directory, sink, cfg.FailedThreshold, logger)
	sessions := application.NewSessionService(repos.Sessions, sink, application.SessionConfig{
		TTL:              cfg.SessionTTL,
		ExtendOnValidate: cfg.SessionExtendOnValidate,
	}, logger)
	twoFactor := application.NewTwoFactorService(repos.Directory, sink, cfg.TwoFactorIssuer, logger)
	scorer := application.NewThreatScorer(limiter, application.NopGeoDetector{}, sink, application.ThreatConfig{
		VolumeLimit:       cfg.ThreatVolumeLimit,
		VolumeWindow:      cfg.ThreatVolumeWindow,
		UnusualHoursStart: cfg.UnusualHoursStart,
		UnusualHoursEnd:   cfg.UnusualHoursEnd,
	}, logger)

	handler := httpadapter.NewHandler(httpadapter.HandlerDeps{
		Guard:     guard,
		Sessions:  sessions,
		TwoFactor: twoFactor,
		Limiter:   limiter,
		Scorer:    scorer,
		Sink:      sink,
		ReadyFn:   readyFn,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		sweeper:    maintenance.NewSweeper(logger, sessions, cfg.SweepInterval),
		cleanupFn:  cleanup,
	}, nil
}

// Run serves the HTTP and gRPC surfaces and the expiry sweeper until a
// shutdown signal or the first fatal server error.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("session sweeper started", "interval", r.cfg.SweepInterval.String())
		_ = r.sweeper.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}
