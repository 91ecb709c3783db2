package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"notehub/internal/config"
	"notehub/internal/logging"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "notehub",
	Short: "NoteHub notes API and web front-end",
	Long: `NoteHub is a small note-taking application.

The api command serves the notes REST API backed by PostgreSQL, the web
command serves the HTML front-end that consumes it, and migrate prepares
the database schema.

Configuration is read from the environment; a .env file in the working
directory is loaded automatically.

Examples:
  notehub migrate
  notehub api --port 8080
  notehub web --port 3000 --api-url http://localhost:8080`,
	SilenceUsage: true,
}

var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newAPICmd())
	rootCmd.AddCommand(newWebCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

// setup loads configuration and builds the process logger.
func setup() (*config.AppConfig, zerolog.Logger) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logging.New(cfg.LogLevel, cfg.Location())
}

// serve runs app until SIGINT/SIGTERM, then drains in-flight requests.
func serve(app *fiber.App, addr string, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
