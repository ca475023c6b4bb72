package models

import (
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// FileUpload is one file selected for upload.
type FileUpload struct {
	Name string
	Body io.Reader
}

// UploadRequest carries one upload batch. All files go under the same
// job/category prefix.
type UploadRequest struct {
	JobCode   string `validate:"required"`
	Address   string
	Category  string `validate:"required"`
	Overwrite bool
	Files     []FileUpload `validate:"required"`
}

// Validate rejects a malformed request before any storage call is made.
func (r *UploadRequest) Validate() error {
	var errs error

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(r); err != nil {
		errs = multierr.Append(errs, err)
	}

	if !IsJobCode(r.JobCode) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrInvalidJobCode, r.JobCode))
	}

	if !IsCategory(r.Category) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category))
	}

	if len(r.Files) == 0 {
		errs = multierr.Append(errs, ErrNoFiles)
	}

	for i := range r.Files {
		if r.Files[i].Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("file %d: missing name", i))
		}
	}

	return errs
}

// FileStatus records the independent outcome of one file in a batch.
type FileStatus struct {
	Name string `json:"name"`
	Done bool   `json:"done"`
	Err  string `json:"error,omitempty"`
}

// UploadSummary is returned after every file in a batch has been attempted.
type UploadSummary struct {
	BatchID   string       `json:"batch_id"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Statuses  []FileStatus `json:"statuses"`
}
