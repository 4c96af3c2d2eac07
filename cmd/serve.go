package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/validation"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the site",
	Long: `Serve the marketing pages, quote forms and lead API.

In development, pointing --content at a directory of page YAML reloads the
site whenever a file changes.

Examples:
  brokerage serve                         # Serve the embedded content
  brokerage serve --content ./content     # Serve and watch local content
  brokerage serve --env production -p 80  # Production profile`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("open", false, "Open the site in a browser once listening")
	serveCmd.Flags().String("content", "", "Directory of page YAML to serve instead of the embedded content")
	serveCmd.Flags().String("storage", "", "Form draft storage backend (memory, file, sqlite)")

	AddFlagValidation(serveCmd, "port", ValidatePort)
	AddFlagValidation(serveCmd, "storage", OneOf("memory", "file", "sqlite"))

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))
	_ = viper.BindPFlag("content.dir", serveCmd.Flags().Lookup("content"))
	_ = viper.BindPFlag("storage.backend", serveCmd.Flags().Lookup("storage"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Open {
		if err := validation.ValidateURL(cfg.Server.BaseURL); err != nil {
			return fmt.Errorf("refusing to open browser: %w", err)
		}
		go func() {
			time.Sleep(200 * time.Millisecond)
			if err := browser.OpenURL(cfg.Server.BaseURL); err != nil {
				logger.Warn(ctx, err, "opening browser")
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", cfg.Server.Environment, cfg.Server.BaseURL)

	return srv.Start(ctx)
}
