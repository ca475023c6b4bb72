// Package webrunner serves the portal HTTP API. It is the default run
// mode.
package webrunner

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/annotation"
	"github.com/bbnconsulting/report-portal/catalog"
	"github.com/bbnconsulting/report-portal/identity"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/postgres"
	"github.com/bbnconsulting/report-portal/runner"
	"github.com/bbnconsulting/report-portal/uploader"
	"github.com/bbnconsulting/report-portal/web"
	"github.com/bbnconsulting/report-portal/web/sqlite"
)

type webrunner struct {
	srv    *web.Server
	db     *sql.DB
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.IdentityURL == "" || cfg.IdentityKey == "" {
		return nil, fmt.Errorf("identity-url and identity-key are required for the web server")
	}

	logger := runner.Logger(cfg.Debug)

	objects, err := cfg.ObjectStore(context.Background(), logger)
	if err != nil {
		return nil, err
	}

	var (
		db       *sql.DB
		jobs     models.JobRepository
		profiles models.ProfileRepository
	)

	if cfg.Dsn != "" {
		db, err = postgres.Open(cfg.Dsn)
		if err != nil {
			return nil, err
		}

		jobs = postgres.NewJobRepository(db)
		profiles = postgres.NewProfileRepository(db)
	} else {
		if err := os.MkdirAll(cfg.SqlitePath, 0o755); err != nil {
			return nil, err
		}

		db, err = sqlite.Open(filepath.Join(cfg.SqlitePath, "portal.db"))
		if err != nil {
			return nil, err
		}

		jobs = sqlite.NewJobRepository(db)
		profiles = sqlite.NewProfileRepository(db)
	}

	ann := annotation.NewStore(objects, logger)

	deps := web.Dependencies{
		Logger:    logger,
		Catalog:   catalog.NewAggregator(objects, ann, logger),
		Writer:    uploader.NewWriter(objects, ann, logger),
		Jobs:      jobs,
		Identity:  identity.NewClient(cfg.IdentityURL, cfg.IdentityKey),
		Profiles:  profiles,
		Telemetry: runner.Telemetry(),
	}

	return &webrunner{
		srv:    web.New(cfg.Addr, deps),
		db:     db,
		logger: logger,
	}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	return w.srv.Start(ctx)
}

func (w *webrunner) Close(context.Context) error {
	_ = w.logger.Sync()

	if w.db != nil {
		return w.db.Close()
	}

	return nil
}
