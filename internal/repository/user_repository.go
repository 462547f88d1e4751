package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/google/uuid"
)

// PostgresUserDirectory implements domain.UserDirectory using PostgreSQL.
// The users table carries a unique index on username; duplicate inserts
// surface as errors from Create.
type PostgresUserDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserDirectory creates a new user directory
func NewPostgresUserDirectory(db *sql.DB, logger *slog.Logger) *PostgresUserDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserDirectory{
		db:     db,
		logger: logger,
	}
}

const userColumns = "id, username, password_digest, active, created_at, updated_at"

// EnsureSchema creates the users table and its unique username index if
// they do not exist yet. Called once at startup.
func (r *PostgresUserDirectory) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			id              UUID PRIMARY KEY,
			username        TEXT NOT NULL UNIQUE,
			password_digest TEXT NOT NULL,
			active          BOOLEAN NOT NULL DEFAULT false,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure users schema: %w", err)
	}
	return nil
}

// Create inserts a new user record, assigning its id and timestamps.
func (r *PostgresUserDirectory) Create(user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, username, password_digest, active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		user.ID,
		user.Username,
		user.PasswordDigest,
		user.Active,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by id.
func (r *PostgresUserDirectory) FindByID(id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(query, id))
}

// FindByUsername retrieves a user by username.
func (r *PostgresUserDirectory) FindByUsername(username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(r.db.QueryRow(query, username))
}

// UpdatePassword replaces the stored digest and returns the updated record.
func (r *PostgresUserDirectory) UpdatePassword(id, digest string) (*domain.User, error) {
	query := `
		UPDATE users
		SET password_digest = $1, updated_at = now()
		WHERE id = $2
		RETURNING ` + userColumns

	user, err := r.scanOne(r.db.QueryRow(query, digest, id))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update password: %w", err)
	}
	return user, nil
}

// Delete removes a user record.
func (r *PostgresUserDirectory) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// List returns a page of users matching the filter plus the total count
// of matching records.
func (r *PostgresUserDirectory) List(filter domain.ListFilter, limit, skip int) ([]*domain.User, int, error) {
	where, args := buildFilter(filter)

	var total int
	countQuery := `SELECT count(*) FROM users` + where
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, skip)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user := &domain.User{}
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordDigest,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read user rows: %w", err)
	}

	return users, total, nil
}

func (r *PostgresUserDirectory) scanOne(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordDigest,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func buildFilter(filter domain.ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Username != "" {
		args = append(args, filter.Username)
		clauses = append(clauses, "username = $"+strconv.Itoa(len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, "active = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
