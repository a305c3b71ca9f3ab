package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const profileColumns = `user_id, email, name, username, image, created_at, updated_at`

// PostgresRepository implements Repository on the profiles table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get selects exactly one profile by user id.
func (r *PostgresRepository) Get(ctx context.Context, userID uuid.UUID) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	var p Profile
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Insert creates the row unless one already exists for the user, then
// returns whichever row is stored.
func (r *PostgresRepository) Insert(ctx context.Context, profile Profile) (Profile, bool, error) {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + profileColumns

	var stored Profile
	err := r.db.QueryRowxContext(ctx, query,
		profile.UserID,
		profile.Email,
		profile.Name,
		profile.Username,
		profile.Image,
		profile.CreatedAt,
		profile.UpdatedAt,
	).StructScan(&stored)
	switch {
	case err == nil:
		return stored, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, getErr := r.Get(ctx, profile.UserID)
		if getErr != nil {
			return Profile{}, false, getErr
		}
		return existing, false, nil
	case isUniqueViolation(err):
		return Profile{}, false, ErrUsernameTaken
	default:
		return Profile{}, false, fmt.Errorf("insert profile: %w", err)
	}
}

// Update writes the provided fields and bumps updated_at.
func (r *PostgresRepository) Update(ctx context.Context, userID uuid.UUID, fields Fields, at time.Time) (Profile, error) {
	query := `
		UPDATE profiles
		SET name = COALESCE($2, name),
			username = COALESCE($3, username),
			image = COALESCE($4, image),
			updated_at = $5
		WHERE user_id = $1
		RETURNING ` + profileColumns

	var p Profile
	err := r.db.QueryRowxContext(ctx, query, userID, fields.Name, fields.Username, fields.Image, at).StructScan(&p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Profile{}, ErrUsernameTaken
		}
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
