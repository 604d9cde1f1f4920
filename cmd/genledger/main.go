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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/genledger/internal/api"
	"github.com/jmerrifield20/genledger/internal/api/handler"
	"github.com/jmerrifield20/genledger/internal/config"
	"github.com/jmerrifield20/genledger/internal/generation"
	"github.com/jmerrifield20/genledger/internal/health"
	"github.com/jmerrifield20/genledger/internal/ledger"
	"github.com/jmerrifield20/genledger/internal/llm"
	"github.com/jmerrifield20/genledger/internal/receipt"
	"github.com/jmerrifield20/genledger/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "genledger",
	Short: "AI generation service with a verification ledger",
	Long: `genledger serves summaries, question answers and learning paths produced
by a text-generation backend. Every response carries a verification hash
that is recorded in a ledger and can be checked at /verify_on_chain/{hash}.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/genledger.yaml)")
	rootCmd.Version = version
}

func serve() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("genledger exited with error", zap.Error(err))
		return err
	}
	return nil
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Tracing ──────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Init(ctx, cfg.Trace, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// ── Ledger ───────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg.Ledger, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var receipts *receipt.Issuer
	if cfg.Ledger.ReceiptSecret != "" {
		receipts, err = receipt.NewIssuer(cfg.Ledger.ReceiptSecret, cfg.Ledger.ReceiptIssuer)
		if err != nil {
			return fmt.Errorf("receipt issuer: %w", err)
		}
		logger.Info("signed receipts enabled", zap.String("issuer", cfg.Ledger.ReceiptIssuer))
	}

	// ── Generation ───────────────────────────────────────────────────────────
	gen := llm.New(ctx, cfg.LLM, logger)
	svc := generation.NewService(gen, store, generation.ConfigFrom(cfg.LLM), logger)
	svc.SetMetricsRecorder(handler.RecordGeneration)

	// ── Health ───────────────────────────────────────────────────────────────
	checker := health.New(store, health.Config{}, logger)
	checker.SetMetricsRecord(func(success bool, entries int) {
		if success {
			handler.SetLedgerEntries(entries)
		}
	})
	go checker.Start(ctx)

	var grpcServer *grpc.Server
	if cfg.Server.GRPCHealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCHealthPort))
		if err != nil {
			return fmt.Errorf("gRPC listen on :%d: %w", cfg.Server.GRPCHealthPort, err)
		}
		grpcServer = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, checker.GRPCServer())
		reflection.Register(grpcServer)

		go func() {
			logger.Info("gRPC health listening", zap.Int("port", cfg.Server.GRPCHealthPort))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("gRPC serve error", zap.Error(err))
			}
		}()
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(ctx, api.Deps{
		Service:  svc,
		Store:    store,
		Receipts: receipts,
		Health:   checker,
	}, cfg.Server, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("genledger HTTP listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("ledger_backend", cfg.Ledger.Backend),
			zap.Bool("llm_enabled", !llm.IsDisabled(gen)),
			zap.String("version", version),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP listen: %w", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down genledger...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	logger.Info("genledger stopped")
	return nil
}

// openStore returns the ledger named by cfg.Backend and a function that
// releases it.
func openStore(ctx context.Context, cfg config.Ledger, logger *zap.Logger) (ledger.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("ledger backend: postgres")
		return ledger.NewPostgresStore(pool, logger), pool.Close, nil
	default:
		logger.Info("ledger backend: memory (entries are lost on restart)")
		return ledger.NewMemoryStore(), func() {}, nil
	}
}
