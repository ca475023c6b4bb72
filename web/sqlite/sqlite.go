// Package sqlite implements the job and profile repositories on a local
// sqlite file, used by the local run mode where no postgres is available.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/bbnconsulting/report-portal/models"
)

// Open initialises the sqlite database file and its schema.
func Open(path string) (*sql.DB, error) {
	return initDatabase(path)
}

type repo struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) models.JobRepository {
	return &repo{db: db}
}

func (repo *repo) Get(ctx context.Context, jobCode string) (models.Job, error) {
	const q = `SELECT job_code, address, status, created_at, updated_at FROM jobs WHERE job_code = ?`

	row := repo.db.QueryRowContext(ctx, q, jobCode)

	return rowToJob(row)
}

func (repo *repo) Create(ctx context.Context, job *models.Job) error {
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

	const q = `INSERT INTO jobs (job_code, address, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	_, err := repo.db.ExecContext(ctx, q,
		job.JobCode, job.Address, job.Status, job.CreatedAt.Unix(), job.UpdatedAt.Unix())

	return err
}

func (repo *repo) Select(ctx context.Context) ([]models.Job, error) {
	const q = `SELECT job_code, address, status, created_at, updated_at FROM jobs ORDER BY created_at DESC`

	rows, err := repo.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.Job

	for rows.Next() {
		job, err := rowToJob(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ans, nil
}

type profileRepo struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) models.ProfileRepository {
	return &profileRepo{db: db}
}

func (repo *profileRepo) GetByUserID(ctx context.Context, userID string) (models.Profile, error) {
	const q = `SELECT user_id, email, COALESCE(NULLIF(role, ''), 'client') FROM profiles WHERE user_id = ?`

	row := repo.db.QueryRowContext(ctx, q, userID)

	var profile models.Profile

	err := row.Scan(&profile.UserID, &profile.Email, &profile.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, fmt.Errorf("%w: profile %s", models.ErrNotFound, userID)
		}

		return models.Profile{}, err
	}

	return profile, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func rowToJob(row scannable) (models.Job, error) {
	var (
		job                  models.Job
		createdAt, updatedAt int64
	)

	err := row.Scan(&job.JobCode, &job.Address, &job.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, fmt.Errorf("%w: job", models.ErrNotFound)
		}

		return models.Job{}, err
	}

	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	job.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return job, nil
}

func initDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, createSchema(db)
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_code TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INT NOT NULL,
			updated_at INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'client'
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
