package main

import (
	"context"
	"fmt"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"notehub/internal/database"
	"notehub/internal/database/migration"
	handlers "notehub/internal/http/handler"
	"notehub/internal/http/middleware"
	"notehub/internal/otel"
	"notehub/internal/repository/postgres"
	"notehub/internal/service"
)

func newAPICmd() *cobra.Command {
	var (
		port        string
		autoMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the notes REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := setup()
			if port != "" {
				cfg.Port = port
			}
			ctx := cmd.Context()

			shutdownTracing, err := otel.Init(ctx, "notehub-api", log)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Warn().Err(err).Msg("tracing shutdown")
				}
			}()

			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if autoMigrate {
				if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
					return err
				}
			}

			noteSvc := service.NewNoteService(postgres.NewNotePostgres(db))

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			prom, err := middleware.NewPrometheusMiddleware(reg, "api")
			if err != nil {
				return err
			}

			app := fiber.New(fiber.Config{
				AppName:               "notehub-api",
				ErrorHandler:          handlers.ErrorHandler(),
				DisableStartupMessage: true,
			})
			app.Use(otelfiber.Middleware())
			app.Use(middleware.RequestID())
			app.Use(middleware.RequestLogger(log))
			app.Use(prom.Handler())
			app.Get("/metrics", middleware.MetricsHandler(reg))

			handlers.RegisterRoutes(app, db, noteSvc, log)

			return serve(app, ":"+cfg.Port, log)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Create the schema on start when missing")
	return cmd
}
