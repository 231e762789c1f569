package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// sortClause fills the default ordering, newest first, when a filter
// leaves it unset. Column names are allow-listed by the caller before
// they reach the query text.
func sortClause(sortBy, sortOrder string) (string, string) {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if sortOrder == "" {
		sortOrder = "desc"
	}
	return sortBy, sortOrder
}

const userColumns = `id, name, email, password_hash, role, active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.Active)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email)))
}

func (s *PostgresStore) EmailTaken(ctx context.Context, email, excludeUserID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email=$1 AND id <> $2)`,
		strings.ToLower(email), excludeUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

type UserFilter struct {
	Role      string
	Active    *bool
	Search    string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	where := "TRUE"
	args := []any{}
	argN := 1

	if filter.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", argN)
		args = append(args, filter.Role)
		argN++
	}
	if filter.Active != nil {
		where += fmt.Sprintf(" AND active = $%d", argN)
		args = append(args, *filter.Active)
		argN++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", argN, argN)
		args = append(args, "%"+filter.Search+"%")
		argN++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	sortBy, sortOrder := sortClause(filter.SortBy, filter.SortOrder)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		userColumns, where, sortBy, sortOrder, filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name=$2, email=$3, role=$4, active=$5, updated_at=NOW()
		WHERE id=$1
	`, user.ID, user.Name, user.Email, user.Role, user.Active)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) SavePasswordResetToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO NOTHING
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

// ConsumePasswordResetToken marks the token used and returns its user.
// Expired, already used, and unknown tokens all surface as sql.ErrNoRows.
func (s *PostgresStore) ConsumePasswordResetToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE password_reset_tokens
		SET used_at=NOW()
		WHERE token_hash=$1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

// requireRow converts a zero-row UPDATE into sql.ErrNoRows so the HTTP
// layer can answer 404 without a separate existence query.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
