package database

import (
	"context"
	"errors"

	"picshare/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateUser = errors.New("a user with this username or email already exists")

const userColumns = `id, username, email, full_name, avatar, password_hash, refresh_token, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

type CreateUserParams struct {
	Username     string
	Email        string
	FullName     string
	Avatar       string
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, full_name, avatar, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	user, err := scanUser(q.db.QueryRow(ctx, query,
		arg.Username,
		arg.Email,
		arg.FullName,
		arg.Avatar,
		arg.PasswordHash,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}

	return user, nil
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(q.db.QueryRow(ctx, query, username))
}

// GetUserByLogin matches either identifier; empty arguments never match.
func (q *Queries) GetUserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY id
		LIMIT 1
	`
	return scanUser(q.db.QueryRow(ctx, query, username, email))
}

func (q *Queries) UserExists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)"
	err := q.db.QueryRow(ctx, query, username, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// SetRefreshToken overwrites the single stored refresh token. A nil token
// clears it.
func (q *Queries) SetRefreshToken(ctx context.Context, userID int64, refreshToken *string) error {
	query := `UPDATE users SET refresh_token = $1, updated_at = NOW() WHERE id = $2`
	_, err := q.db.Exec(ctx, query, refreshToken, userID)
	return err
}

// RotateRefreshToken replaces the stored token only if it still equals
// current, so two concurrent refreshes cannot both succeed.
func (q *Queries) RotateRefreshToken(ctx context.Context, userID int64, current, next string) (bool, error) {
	query := `
		UPDATE users
		SET refresh_token = $1, updated_at = NOW()
		WHERE id = $2 AND refresh_token = $3
	`
	res, err := q.db.Exec(ctx, query, next, userID, current)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}
