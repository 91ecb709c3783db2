package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"notehub/internal/config"
	"notehub/internal/draft"
	"notehub/internal/http/middleware"
	"notehub/internal/http/web"
	"notehub/internal/notesapi"
	"notehub/internal/otel"
	"notehub/internal/querycache"
	"notehub/internal/storage"
)

func newWebCmd() *cobra.Command {
	var port, apiURL string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the HTML front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := setup()
			if port != "" {
				cfg.Web.Port = port
			}
			if apiURL != "" {
				cfg.Web.APIBaseURL = apiURL
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			shutdownTracing, err := otel.Init(ctx, "notehub-web", log)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Warn().Err(err).Msg("tracing shutdown")
				}
			}()

			store, err := newDraftStore(ctx, cfg)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			prom, err := middleware.NewPrometheusMiddleware(reg, "web")
			if err != nil {
				return err
			}

			cache, err := querycache.New(querycache.Options{
				StaleTime:  cfg.Web.StaleTime,
				GCTime:     cfg.Web.GCTime,
				Registerer: reg,
			}, log)
			if err != nil {
				return err
			}
			if path := cfg.Web.CacheSnapshot; path != "" {
				n, err := cache.LoadSnapshot(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("cache snapshot not restored")
				} else {
					log.Info().Int("queries", n).Str("path", path).Msg("cache snapshot restored")
				}
				defer func() {
					if err := cache.SaveSnapshot(path); err != nil {
						log.Warn().Err(err).Str("path", path).Msg("cache snapshot not saved")
					}
				}()
			}
			go cache.RunGC(ctx, max(cfg.Web.GCTime/2, time.Second))

			views, err := web.NewViews(cfg.Location())
			if err != nil {
				return err
			}
			h := web.NewHandler(
				notesapi.New(cfg.Web.APIBaseURL, cfg.Web.APITimeout),
				cache,
				draft.NewService(store),
				views,
				web.Options{PerPage: cfg.Web.PerPage, SearchDebounce: cfg.Web.SearchDebounce},
				log,
			)

			app := fiber.New(web.AppConfig(views, log))
			app.Use(otelfiber.Middleware())
			app.Use(middleware.RequestID())
			app.Use(middleware.RequestLogger(log))
			app.Use(prom.Handler())
			app.Use(middleware.Session())
			app.Get("/metrics", middleware.MetricsHandler(reg))

			web.RegisterRoutes(app, h, cfg.Web.StaticDir)

			return serve(app, ":"+cfg.Web.Port, log)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides WEB_PORT)")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Notes API base URL (overrides NOTES_API_URL)")
	return cmd
}

func newDraftStore(ctx context.Context, cfg *config.AppConfig) (draft.Store, error) {
	switch cfg.Web.DraftBackend {
	case "", "memory":
		return draft.NewMemoryStore(), nil
	case "s3":
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		return draft.NewObjectStore(objStore), nil
	default:
		return nil, fmt.Errorf("unknown draft backend %q", cfg.Web.DraftBackend)
	}
}
