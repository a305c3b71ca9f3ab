package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, name, avatar_url, oauth_provider, oauth_provider_id,
	email_confirmed_at, created_at, updated_at, last_login_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID looks up a user by primary key.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindUserByOAuth looks up a user by their OAuth provider and provider ID.
func (r *PostgresRepository) FindUserByOAuth(ctx context.Context, provider, providerID string) (*User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_provider_id = $2`, provider, providerID)
}

// FindUserByEmail looks up a user by their email address.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *PostgresRepository) findUser(ctx context.Context, query string, args ...any) (*User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// CreateUser inserts a new user into the database.
func (r *PostgresRepository) CreateUser(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.AvatarURL,
		user.OAuthProvider,
		user.OAuthProviderID,
		user.EmailConfirmedAt,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLoginAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return User{}, ErrUserExists
		}
		return User{}, err
	}

	return user, nil
}

// UpdateUserLogin updates the user's last login time and refreshes profile data.
func (r *PostgresRepository) UpdateUserLogin(ctx context.Context, id uuid.UUID, name, avatarURL string) error {
	const query = `
		UPDATE users
		SET name = $2, avatar_url = $3, last_login_at = $4, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, name, avatarURL, time.Now())
	return err
}

// LinkOAuthIdentity attaches a provider identity to an existing account.
func (r *PostgresRepository) LinkOAuthIdentity(ctx context.Context, id uuid.UUID, provider, providerID string) error {
	const query = `
		UPDATE users
		SET oauth_provider = $2, oauth_provider_id = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, provider, providerID, time.Now())
	return err
}

// ConfirmEmail marks the user's address as verified.
func (r *PostgresRepository) ConfirmEmail(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE users SET email_confirmed_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

// CreateSession inserts a new session into the database.
func (r *PostgresRepository) CreateSession(ctx context.Context, session Session, tokenHash string) error {
	const query = `
		INSERT INTO user_sessions (id, user_id, session_token_hash, expires_at, created_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		tokenHash,
		session.ExpiresAt,
		session.CreatedAt,
		session.UserAgent,
		session.IPAddress,
	)
	return err
}

// FindSessionByTokenHash looks up a session and its associated user by token hash.
func (r *PostgresRepository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, *User, error) {
	const query = `
		SELECT
			s.id AS session_id, s.expires_at AS session_expires_at, s.created_at AS session_created_at,
			s.user_agent, s.ip_address,
			u.id, u.email, u.password_hash, u.name, u.avatar_url, u.oauth_provider, u.oauth_provider_id,
			u.email_confirmed_at, u.created_at, u.updated_at, u.last_login_at
		FROM user_sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.session_token_hash = $1
	`

	var row sessionUserRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	return row.toSession(), row.toUser(), nil
}

// DeleteSession removes a session from the database.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM user_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteExpiredSessions removes all expired sessions.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CreateCode stores a one-time code by hash.
func (r *PostgresRepository) CreateCode(ctx context.Context, code Code, codeHash string) error {
	const query = `
		INSERT INTO auth_codes (code_hash, user_id, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, codeHash, code.UserID, string(code.Purpose), code.ExpiresAt, code.CreatedAt)
	return err
}

// ConsumeCode deletes the code and returns it in one statement so it can only be redeemed once.
func (r *PostgresRepository) ConsumeCode(ctx context.Context, codeHash string) (*Code, error) {
	const query = `
		DELETE FROM auth_codes
		WHERE code_hash = $1
		RETURNING user_id, purpose, expires_at, created_at
	`

	var row codeRow
	if err := r.db.GetContext(ctx, &row, query, codeHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &Code{
		UserID:    row.UserID,
		Purpose:   CodePurpose(row.Purpose),
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

// DeleteExpiredCodes removes codes that can no longer be redeemed.
func (r *PostgresRepository) DeleteExpiredCodes(ctx context.Context) (int64, error) {
	const query = `DELETE FROM auth_codes WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// userRow is a database row representation of User.
type userRow struct {
	ID               uuid.UUID    `db:"id"`
	Email            string       `db:"email"`
	PasswordHash     string       `db:"password_hash"`
	Name             string       `db:"name"`
	AvatarURL        string       `db:"avatar_url"`
	OAuthProvider    string       `db:"oauth_provider"`
	OAuthProviderID  string       `db:"oauth_provider_id"`
	EmailConfirmedAt sql.NullTime `db:"email_confirmed_at"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
	LastLoginAt      time.Time    `db:"last_login_at"`
}

func (r *userRow) toUser() *User {
	u := &User{
		ID:              r.ID,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		Name:            r.Name,
		AvatarURL:       r.AvatarURL,
		OAuthProvider:   r.OAuthProvider,
		OAuthProviderID: r.OAuthProviderID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		LastLoginAt:     r.LastLoginAt,
	}
	if r.EmailConfirmedAt.Valid {
		confirmed := r.EmailConfirmedAt.Time
		u.EmailConfirmedAt = &confirmed
	}
	return u
}

// sessionUserRow is a database row for the session + user join query.
type sessionUserRow struct {
	SessionID        uuid.UUID `db:"session_id"`
	SessionExpiresAt time.Time `db:"session_expires_at"`
	SessionCreatedAt time.Time `db:"session_created_at"`
	UserAgent        string    `db:"user_agent"`
	IPAddress        string    `db:"ip_address"`

	userRow
}

func (r *sessionUserRow) toSession() *Session {
	return &Session{
		ID:        r.SessionID,
		UserID:    r.ID,
		ExpiresAt: r.SessionExpiresAt,
		CreatedAt: r.SessionCreatedAt,
		UserAgent: r.UserAgent,
		IPAddress: r.IPAddress,
	}
}

type codeRow struct {
	UserID    uuid.UUID `db:"user_id"`
	Purpose   string    `db:"purpose"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
