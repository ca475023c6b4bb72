// Package memory provides in-memory repository implementations, used in
// tests and when the portal runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bbnconsulting/report-portal/models"
)

var _ models.JobRepository = (*JobRepository)(nil)

type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs: make(map[string]models.Job),
	}
}

func (repo *JobRepository) Get(_ context.Context, jobCode string) (models.Job, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	job, ok := repo.jobs[jobCode]
	if !ok {
		return models.Job{}, models.ErrNotFound
	}

	return job, nil
}

func (repo *JobRepository) Create(_ context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	job.UpdatedAt = job.CreatedAt
	repo.jobs[job.JobCode] = *job

	return nil
}

func (repo *JobRepository) Select(_ context.Context) ([]models.Job, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	items := make([]models.Job, 0, len(repo.jobs))
	for _, job := range repo.jobs {
		items = append(items, job)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

var _ models.ProfileRepository = (*ProfileRepository)(nil)

type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles: make(map[string]models.Profile),
	}
}

func (repo *ProfileRepository) GetByUserID(_ context.Context, userID string) (models.Profile, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	profile, ok := repo.profiles[userID]
	if !ok {
		return models.Profile{}, models.ErrNotFound
	}

	return profile, nil
}

// Put inserts or replaces a profile row.
func (repo *ProfileRepository) Put(profile models.Profile) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.profiles[profile.UserID] = profile
}
