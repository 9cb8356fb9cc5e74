package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/api"
	"github.com/ppiankov/proofpulse/internal/worker"
)

var shutdownTimeout time.Duration

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background job workers",
	Long: `Serve starts the HTTP API. Ingested jobs are processed by a bounded
pool of background workers when /process or /live is called.

Example:
  proofpulse serve
  proofpulse serve --addr :9000 --store sqlite
  PROOFPULSE_STORE_URL=redis://cache:6379/0 proofpulse serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	serveCmd.Flags().Int("workers", 0, "number of background pipeline workers")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight requests; running jobs are cancelled and can be reprocessed")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("concurrency.workers", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer func() { _ = store.Close() }()

	p, err := buildPipeline(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	pool := worker.NewPool(cfg.Concurrency.Workers, cfg.Concurrency.QueueSize, worker.LogResults(logger.Named("worker")))
	pool.Start()

	srv := api.New(cfg, store, pool, p, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proofpulse server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("workers", cfg.Concurrency.Workers),
			zap.String("store", store.Backend()))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = pool.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker shutdown", zap.Error(err), zap.Int("pending", pool.Pending()))
	}
	return nil
}
