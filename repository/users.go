package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rafhael-Viana/geoproof/models"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, user_id, name, email, password_hash, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.UserID, &u.Name, &u.Email, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Create inserts u; u.Password must already be a bcrypt hash.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, u.UserID, u.Name, u.Email, u.Password, u.Role).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) LIMIT 1`, email))
}

func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string // bcrypt hash
	Role     *models.Role
}

func (r *UserRepository) Update(ctx context.Context, userID string, in UserUpdate) (*models.User, error) {
	fields := []string{}
	values := []any{}
	i := 1

	add := func(col string, v any) {
		fields = append(fields, fmt.Sprintf("%s = $%d", col, i))
		values = append(values, v)
		i++
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Email != nil {
		add("email", *in.Email)
	}
	if in.Password != nil {
		add("password_hash", *in.Password)
	}
	if in.Role != nil {
		add("role", *in.Role)
	}
	if len(fields) == 0 {
		return r.GetByUserID(ctx, userID)
	}

	values = append(values, userID)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = now() WHERE user_id = $%d RETURNING `+userColumns,
		strings.Join(fields, ", "), len(values))

	u, err := scanUser(r.pool.QueryRow(ctx, query, values...))
	if isUniqueViolation(err, "") {
		return nil, ErrDuplicate
	}
	return u, err
}

func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count counts users, optionally by role.
func (r *UserRepository) Count(ctx context.Context, role *models.Role) (int64, error) {
	var n int64
	var err error
	if role == nil {
		err = r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = $1`, *role).Scan(&n)
	}
	return n, err
}
