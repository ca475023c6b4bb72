package models

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// jobCodePattern matches the job identifiers used as top level folders in
// the reports bucket, e.g. BBN.4342.
var jobCodePattern = regexp.MustCompile(`^BBN\.\d+$`)

var (
	ErrInvalidJobCode  = errors.New("invalid job code")
	ErrInvalidCategory = errors.New("invalid category")
	ErrNoFiles         = errors.New("no files to upload")
	ErrNotFound        = errors.New("not found")
)

// Category labels. The second path segment under a job folder is always one
// of these. Older uploads used a slugified folder name instead of the label,
// so listings probe both forms.
const (
	CategoryClearance      = "Clearance Reports"
	CategoryAirMonitoring  = "Air Monitoring Reports"
	CategoryAsbestosID     = "Asbestos ID"
	CategoryAsbestosSurvey = "Asbestos Surveys"
)

// Categories returns the fixed category set in display order.
func Categories() []string {
	return []string{
		CategoryClearance,
		CategoryAirMonitoring,
		CategoryAsbestosID,
		CategoryAsbestosSurvey,
	}
}

// IsJobCode reports whether s is a valid job code.
func IsJobCode(s string) bool {
	return jobCodePattern.MatchString(s)
}

// ValidateJobCode returns ErrInvalidJobCode when code does not match the
// job code pattern.
func ValidateJobCode(code string) error {
	if !IsJobCode(code) {
		return fmt.Errorf("%w: %q", ErrInvalidJobCode, code)
	}

	return nil
}

// IsCategory reports whether s is one of the fixed category labels.
func IsCategory(s string) bool {
	for _, c := range Categories() {
		if c == s {
			return true
		}
	}

	return false
}

// CategorySlug returns the legacy hyphenated folder name for a category
// label, e.g. "Air Monitoring Reports" -> "air-monitoring-reports".
func CategorySlug(category string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(category)), " ", "-")
}

// FileRecord is a leaf object under Job/Category/ together with its derived
// public download reference.
type FileRecord struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// CategoryGroup holds the files of one category under a job.
type CategoryGroup struct {
	Category string       `json:"category"`
	Files    []FileRecord `json:"files"`
}

// CatalogEntry is the derived per-job view: storage listings merged with the
// address annotation. It is rebuilt on every read and never persisted.
type CatalogEntry struct {
	Job     string          `json:"job"`
	Address string          `json:"address"`
	Groups  []CategoryGroup `json:"groups"`
}

// FileCount returns the total number of files across all groups.
func (e *CatalogEntry) FileCount() int {
	var n int
	for i := range e.Groups {
		n += len(e.Groups[i].Files)
	}

	return n
}

// Job statuses mirror the values of the jobs table.
const (
	JobStatusPending    = "Pending"
	JobStatusPrivate    = "Private"
	JobStatusPublic     = "Public"
	JobStatusInProgress = "In Progress"
	JobStatusCompleted  = "Completed"
	JobStatusArchived   = "Archived"
)

// Job is a row of the jobs table.
type Job struct {
	JobCode   string    `json:"job_code"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) Validate() error {
	if err := ValidateJobCode(j.JobCode); err != nil {
		return err
	}

	if j.Address == "" {
		return errors.New("missing address")
	}

	if j.Status == "" {
		return errors.New("missing status")
	}

	return nil
}

// JobRepository defines the interface for the jobs table.
type JobRepository interface {
	Get(ctx context.Context, jobCode string) (Job, error)
	Create(ctx context.Context, job *Job) error
	Select(ctx context.Context) ([]Job, error)
}

// Roles recognised by the portal. Anything unknown degrades to RoleClient.
const (
	RoleAdmin    = "admin"
	RoleUploader = "uploader"
	RoleClient   = "client"
)

// Profile associates a signed-in user with a portal role.
type Profile struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// ProfileRepository looks up the role record of a user.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (Profile, error)
}

// CanUpload reports whether a role may write reports.
func CanUpload(role string) bool {
	return role == RoleAdmin || role == RoleUploader
}

// APIError is the JSON error envelope returned by the web layer.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
