package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

// ErrEmailTaken 邮箱已被注册
var ErrEmailTaken = errors.New("email already registered")

// PostgresUsersRepo 用户（PostgreSQL）
type PostgresUsersRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresUsersRepo(db *sql.DB, logger *zap.Logger) *PostgresUsersRepo {
	return &PostgresUsersRepo{db: db, logger: logger}
}

var _ UsersRepo = (*PostgresUsersRepo)(nil)

func (r *PostgresUsersRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, email, name, created_at FROM users WHERE id = $1`

	var u models.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresUsersRepo) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	skip, limit = normalizePage(skip, limit)
	query := `
		SELECT id, email, name, created_at
		FROM users
		ORDER BY id ASC
		OFFSET $1 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (r *PostgresUsersRepo) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, user.Email, user.Name).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
