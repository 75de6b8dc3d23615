package main

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

	"github.com/uptrace/bun"
	"google.golang.org/grpc"

	"roombook/backend/internal/auth"
	"roombook/backend/internal/config"
	"roombook/backend/internal/events"
	"roombook/backend/internal/obs"
	"roombook/backend/internal/service/ledger"
	"roombook/backend/internal/store"
	"roombook/backend/internal/store/memory"
	"roombook/backend/internal/store/postgres"
	"roombook/backend/internal/store/sqlite"
	grpcTransport "roombook/backend/internal/transport/grpc"
	httpTransport "roombook/backend/internal/transport/http"
	"roombook/backend/migrations"
)

const serviceName = "roombook-server"

func main() {
	log := obs.NewLogger(os.Stdout, "info", serviceName)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = obs.NewLogger(os.Stdout, cfg.LogLevel, serviceName)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr()),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("auth_mode", cfg.AuthMode),
		slog.String("events_driver", cfg.EventsDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	tp, shutdownTracer, err := obs.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	authz, err := newAuthorizer(cfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("event publisher close failed", slog.Any("err", err))
		}
	}()

	svc := ledger.NewService(repo, authz,
		ledger.WithLogger(log),
		ledger.WithPublisher(publisher),
		ledger.WithTracerProvider(tp),
		ledger.WithStoreTimeout(cfg.DBAcquireTimeout),
	)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: httpTransport.NewRouter(svc, log, httpTransport.Options{
			RequestTimeout: cfg.HTTPRequestTimeout,
			MaxBodyBytes:   cfg.HTTPMaxBodyBytes,
			StaticDir:      cfg.HTTPStaticDir,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer, healthServer := grpcTransport.NewServer(svc, log, cfg.GRPCRequestTimeout)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr(), err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr())
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("http listen %s: %w", cfg.HTTPAddr(), err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr()), slog.String("grpc_addr", cfg.GRPCAddr()))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case serveErr = <-errCh:
		log.Error("server stopped with error", slog.Any("err", serveErr))
	}

	healthServer.Shutdown()
	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	shutdownGRPC(log, grpcServer, cfg.ShutdownTimeout)

	return serveErr
}

// openStore returns the configured repository and a func releasing its resources.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.BookingRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		log.Info("connecting to database", obs.DatabaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		}, postgres.RetryPolicy{
			MaxAttempts: cfg.DBConnectAttempts,
			Delay:       cfg.DBConnectRetryDelay,
			Log:         log,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, obs.DatabaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := migrations.Apply(ctx, db, migrations.Postgres); err != nil {
			_ = postgres.Close(db)
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewBookingRepo(db), closeDB(log, db), nil

	case config.DriverSQLite:
		log.Info("opening sqlite database", slog.String("path", cfg.SQLitePath))
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.NewBookingRepo(db), closeDB(log, db), nil

	case config.DriverMemory:
		log.Warn("using in-memory store; bookings are lost on restart")
		return memory.NewBookingRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func closeDB(log *slog.Logger, db *bun.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}
}

func newAuthorizer(cfg config.Config) (auth.Authorizer, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		return auth.NewJWTAuthorizer(cfg.JWTSecret, cfg.JWTRoles)
	case config.AuthModePassword:
		if cfg.AuthPasswordHash != "" {
			return auth.NewPasswordAuthorizer(cfg.AuthPasswordHash)
		}
		return auth.NewPasswordAuthorizerFromPlain(cfg.AuthPassword)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

func newPublisher(cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsDriver {
	case config.EventsKafka:
		return events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaBatchTimeout, log)
	case config.EventsAMQP:
		return events.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	case config.EventsNone, "":
		return events.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
	}
}

func shutdownHTTP(log *slog.Logger, s *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = s.Close()
		return
	}
	log.Info("http server stopped")
}

func shutdownGRPC(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
