package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/storage"
	"github.com/bbnconsulting/report-portal/storage/memory"
)

// ObjectStore builds the bucket client from the config. Without S3
// credentials it falls back to an in-memory store, which is only useful
// for local experiments.
func (cfg *Config) ObjectStore(ctx context.Context, logger *zap.Logger) (storage.ObjectStore, error) {
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		logger.Warn("no object storage credentials, using in-memory store")

		return memory.New(), nil
	}

	return storage.NewS3Store(ctx, storage.S3Config{
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}, logger)
}
