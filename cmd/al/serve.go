package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"annoline/internal/app"
	"annoline/internal/config"
	"annoline/internal/logging"
	"annoline/internal/metrics"
	"annoline/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		addr, basePath   string
		devLogin, legacy bool
		disableMetrics   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOrDefault(workspace)
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, os.Stderr)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := viper.GetString("jwt_secret")
			if secret == "" && !legacy {
				return fmt.Errorf("ANNOLINE_JWT_SECRET is required for bearer auth")
			}

			opts := app.Options{Logger: logger}
			var metricsHandler http.Handler
			if !disableMetrics {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				opts.Metrics = metrics.NewPrometheus(reg, "")
				metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			env, err := app.Open(ctx, workspace, opts)
			if err != nil {
				return err
			}
			defer env.Close()
			server.StartWebhooks(ctx, env.Engine, logger)

			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, DevLogin: devLogin, AllowLegacyActorHeader: legacy},
				Logger:   logger,
				Metrics:  metricsHandler,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving annoline API", "addr", addr, "base_path", basePath, "docs", "/docs", "metrics", !disableMetrics, "webhooks", len(env.Config.Webhooks))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (config server.addr when empty)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (config server.base_path when empty)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (never in production)")
	cmd.Flags().BoolVar(&legacy, "allow-actor-header", false, "accept unauthenticated X-Actor-Id")
	cmd.Flags().BoolVar(&disableMetrics, "no-metrics", false, "do not expose /metrics")
	return cmd
}
