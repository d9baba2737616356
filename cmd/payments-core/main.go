// Command payments-core runs the payment resilience and ledger service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	paycore "github.com/iradwatkins/stepperslife-stores-sub005"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/config"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/httpapi"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/ledger"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payments-core",
		Short:         "Payment resilience and debt ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := paycore.GetVersionInfo()
			cmd.Printf("payments-core %s (commit %s, built %s, %s)\n",
				info["version"], info["commit"], info["build_date"], info["go_version"])
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := paycore.NewJSONLogger(os.Stdout, parseLevel(cfg.LogLevel))
	metrics := paycore.NewMetricsCollector()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fees := ledger.NewFeeSchedule(cfg.Fees.Percent, cfg.Fees.FixedCents)
	engine := ledger.NewEngine(st, fees, ledger.WithMetrics(metrics), ledger.WithLogger(logger))
	counter := inventory.NewCounter(st, inventory.WithMetrics(metrics), inventory.WithLogger(logger))

	limiter := buildLimiter(ctx, cfg, metrics, logger)
	gateway, chargeURL := buildGateway(cfg, metrics, logger)

	srv := httpapi.NewServer(httpapi.Deps{
		Engine:    engine,
		Counter:   counter,
		Items:     st,
		Gateway:   gateway,
		ChargeURL: chargeURL,
		Fees:      fees,
		Limiter:   limiter,
		Metrics:   metrics,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "version", paycore.Version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// itemStore is what the server needs from persistence beyond the ledger and
// counter contracts.
type itemStore interface {
	ledger.Store
	httpapi.ItemStore
}

func openStore(cfg *config.Config) (itemStore, func(), error) {
	if cfg.DatabasePath == "memory" {
		return store.NewMemory(), func() {}, nil
	}
	db, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

func buildLimiter(ctx context.Context, cfg *config.Config, metrics *paycore.MetricsCollector, logger paycore.Logger) *paycore.RateLimiter {
	profiles := make(map[string]paycore.WindowConfig, len(cfg.RateLimits))
	maxWindow := time.Minute
	for name, w := range cfg.RateLimits {
		window := time.Duration(w.WindowSeconds) * time.Second
		profiles[name] = paycore.WindowConfig{Window: window, MaxRequests: w.MaxRequests}
		if window > maxWindow {
			maxWindow = window
		}
	}

	var ws paycore.WindowStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ws = paycore.NewRedisWindowStore(rdb)
	} else {
		mem := paycore.NewMemoryWindowStore()
		mem.StartJanitor(ctx, maxWindow)
		ws = mem
	}

	return paycore.NewRateLimiter(ws,
		paycore.WithProfiles(profiles),
		paycore.WithRateLimiterMetrics(metrics),
		paycore.WithRateLimiterLogger(logger),
	)
}

func buildGateway(cfg *config.Config, metrics *paycore.MetricsCollector, logger paycore.Logger) (*paycore.GatewayClient, string) {
	if cfg.Gateway.BaseURL == "" {
		return nil, ""
	}

	opts := []paycore.Option{
		paycore.WithTimeout(cfg.Gateway.Timeout()),
		paycore.WithMaxAttempts(cfg.Gateway.MaxAttempts),
		paycore.WithBaseDelay(cfg.Gateway.BaseDelay()),
		paycore.WithBreakerConfig(paycore.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
		}),
		paycore.WithIdempotencySalt(cfg.Gateway.IdempotencySalt),
		paycore.WithInflightCoalescing(),
		paycore.WithMetricsCollector(metrics),
		paycore.WithLogger(logger),
	}
	if cfg.Gateway.ThrottleRPS > 0 {
		opts = append(opts, paycore.WithOutboundThrottle(cfg.Gateway.ThrottleRPS, cfg.Gateway.ThrottleBurst))
	}

	client := paycore.NewGatewayClient(cfg.Gateway.Service, opts...)
	chargeURL := strings.TrimRight(cfg.Gateway.BaseURL, "/") + "/v2/payments"
	return client, chargeURL
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
