package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bbnconsulting/report-portal/models"
)

// profileRepository implements models.ProfileRepository.
type profileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a ProfileRepository backed by the profiles table.
func NewProfileRepository(db *sql.DB) models.ProfileRepository {
	return &profileRepository{db: db}
}

// GetByUserID retrieves the single role record of a user. Unknown or empty
// roles come back as the client role; a missing row is models.ErrNotFound so
// the caller can apply its own fail-safe default.
func (repo *profileRepository) GetByUserID(ctx context.Context, userID string) (models.Profile, error) {
	const q = `SELECT user_id, email, COALESCE(NULLIF(role, ''), 'client') FROM profiles WHERE user_id = $1`

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
