package cmd

import (
	"context"
	"io/fs"
	"os"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/forms"
	"github.com/conneroisu/brokerage/internal/formstate"
	"github.com/conneroisu/brokerage/internal/leads"
	"github.com/conneroisu/brokerage/internal/logging"
	"github.com/conneroisu/brokerage/internal/pages"
	"github.com/conneroisu/brokerage/internal/server"
)

// contentFS returns the catalogue: the configured directory, or the copy
// embedded in the binary.
func contentFS(cfg *config.Config) fs.FS {
	if cfg.Content.Dir != "" {
		return os.DirFS(cfg.Content.Dir)
	}
	return pages.EmbeddedContent()
}

// newMailer picks the notification transport from the mail section.
func newMailer(cfg *config.Config, logger logging.Logger) leads.Mailer {
	if cfg.Mail.Driver == "smtp" {
		return leads.NewSMTPMailer(leads.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		})
	}
	return leads.NewLogMailer(logger)
}

// buildServer opens storage and wires a server from cfg. The returned func
// closes what was opened and must be called after the server has shut down.
func buildServer(cfg *config.Config, logger logging.Logger) (*server.Server, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn(context.Background(), err, "closing resource")
			}
		}
	}

	registry, err := forms.NewRegistry()
	if err != nil {
		return nil, nil, err
	}

	storage, closeStorage, err := formstate.OpenStorage(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeStorage)

	leadStore, err := leads.OpenSQLite(cfg.Leads.DatabasePath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, leadStore.Close)

	service := leads.NewService(leadStore, newMailer(cfg, logger), cfg.Mail.From, cfg.Mail.To, logger)

	srv, err := server.New(server.Deps{
		Config:  cfg,
		Logger:  logger,
		Catalog: pages.NewCatalog(contentFS(cfg)),
		Forms:   registry,
		Leads:   service,
		Storage: storage,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return srv, cleanup, nil
}
