package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bbnconsulting/report-portal/models"
)

// jobRepository implements models.JobRepository.
type jobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a JobRepository backed by the jobs table.
func NewJobRepository(db *sql.DB) models.JobRepository {
	return &jobRepository{db: db}
}

func (repo *jobRepository) Get(ctx context.Context, jobCode string) (models.Job, error) {
	const q = `SELECT job_code, address, status, created_at, updated_at FROM jobs WHERE job_code = $1`

	row := repo.db.QueryRowContext(ctx, q, jobCode)

	var job models.Job
	err := row.Scan(&job.JobCode, &job.Address, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, fmt.Errorf("%w: job %s", models.ErrNotFound, jobCode)
		}

		return models.Job{}, err
	}

	return job, nil
}

func (repo *jobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	if err := job.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	const q = `INSERT INTO jobs (job_code, address, status, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5)`

	_, err := repo.db.ExecContext(ctx, q, job.JobCode, job.Address, job.Status, job.CreatedAt, job.UpdatedAt)

	return err
}

// Select returns all jobs, newest first.
func (repo *jobRepository) Select(ctx context.Context) ([]models.Job, error) {
	const q = `SELECT job_code, address, status, created_at, updated_at FROM jobs ORDER BY created_at DESC`

	rows, err := repo.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.Job

	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.JobCode, &job.Address, &job.Status, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}

		ans = append(ans, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ans, nil
}
