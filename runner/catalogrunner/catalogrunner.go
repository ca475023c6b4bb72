// Package catalogrunner prints the aggregated report catalog as JSON, for
// quick inspection of the bucket from the command line.
package catalogrunner

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/annotation"
	"github.com/bbnconsulting/report-portal/catalog"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/runner"
)

type catalogrunner struct {
	cfg    *runner.Config
	agg    *catalog.Aggregator
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	logger := runner.Logger(cfg.Debug)

	objects, err := cfg.ObjectStore(context.Background(), logger)
	if err != nil {
		return nil, err
	}

	ann := annotation.NewStore(objects, logger)

	return &catalogrunner{
		cfg:    cfg,
		agg:    catalog.NewAggregator(objects, ann, logger),
		logger: logger,
	}, nil
}

func (c *catalogrunner) Run(ctx context.Context) error {
	var (
		out any
		err error
	)

	if c.cfg.JobCode != "" {
		out, err = c.agg.BuildJob(ctx, c.cfg.JobCode)
	} else {
		var entries []models.CatalogEntry

		entries, err = c.agg.Build(ctx)
		if err == nil && c.cfg.Query != "" {
			entries = catalog.Search(entries, c.cfg.Query)
		}

		out = entries
	}

	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func (c *catalogrunner) Close(context.Context) error {
	_ = c.logger.Sync()

	return nil
}
