// Package uploader writes report batches into the bucket namespace.
package uploader

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bbnconsulting/report-portal/annotation"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/storage"
)

// Writer validates upload requests and writes each file to its
// deterministic key under jobCode/category/.
type Writer struct {
	objects     storage.ObjectStore
	annotations *annotation.Store
	tracker     *Tracker
	logger      *zap.Logger
}

func NewWriter(objects storage.ObjectStore, annotations *annotation.Store, logger *zap.Logger) *Writer {
	return &Writer{
		objects:     objects,
		annotations: annotations,
		tracker:     NewTracker(),
		logger:      logger,
	}
}

// Tracker exposes the progress counters of in-flight batches.
func (w *Writer) Tracker() *Tracker {
	return w.tracker
}

// Upload writes every file of the request in sequence. Validation faults
// reject the batch before any storage call; after that, each file's outcome
// is recorded independently and one failure never aborts the rest. When an
// address is supplied, the annotation save afterwards is best effort.
func (w *Writer) Upload(ctx context.Context, req models.UploadRequest) (models.UploadSummary, error) {
	if err := req.Validate(); err != nil {
		return models.UploadSummary{}, err
	}

	batchID := uuid.New().String()

	summary := models.UploadSummary{
		BatchID:  batchID,
		Statuses: make([]models.FileStatus, 0, len(req.Files)),
	}

	w.tracker.Begin(batchID, req.JobCode, len(req.Files))
	defer w.tracker.End(batchID)

	for _, file := range req.Files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		key := fmt.Sprintf("%s/%s/%s", req.JobCode, req.Category, file.Name)

		err := w.objects.Upload(ctx, key, file.Body, storage.UploadOptions{
			Overwrite:   req.Overwrite,
			ContentType: "application/pdf",
		})
		if err != nil {
			summary.Failed++
			summary.Statuses = append(summary.Statuses, models.FileStatus{Name: file.Name, Err: err.Error()})
			w.tracker.IncrFailed(batchID)

			w.logger.Warn("file upload failed",
				zap.String("batch", batchID), zap.String("key", key), zap.Error(err))

			continue
		}

		summary.Succeeded++
		summary.Statuses = append(summary.Statuses, models.FileStatus{Name: file.Name, Done: true})
		w.tracker.IncrCompleted(batchID)
	}

	if req.Address != "" {
		if err := w.annotations.Save(ctx, req.JobCode, req.Address); err != nil {
			// Soft fault: the files are already up, the address can be
			// re-saved on the next upload.
			w.logger.Warn("address save failed after upload",
				zap.String("job", req.JobCode), zap.Error(err))
		}
	}

	w.logger.Info("upload batch finished",
		zap.String("batch", batchID),
		zap.String("job", req.JobCode),
		zap.String("category", req.Category),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))

	return summary, nil
}
