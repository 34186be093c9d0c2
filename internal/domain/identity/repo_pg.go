package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

const emailConstraint = "users_email_role_uniq"

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, email, phone, role, speciality, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Speciality, &u.CreatedAt, &u.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User, passwordHash string) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, name, email, phone, password_hash, role, speciality)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.Phone, passwordHash, u.Role, u.Speciality,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1 AND role = $2`, id, role))
}

func (r *userRepoPG) FindByEmail(ctx context.Context, email, role string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		SELECT `+userCols+` FROM users
		WHERE lower(email) = lower($1) AND ($2 = '' OR role = $2)
		ORDER BY created_at LIMIT 1`, email, role))
}

func (r *userRepoPG) List(ctx context.Context, role string) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userCols+` FROM users WHERE role = $1 ORDER BY name, created_at`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET name = $3, email = $4, phone = $5, speciality = $6, updated_at = NOW()
		WHERE id = $1 AND role = $2
		RETURNING created_at, updated_at`,
		u.ID, u.Role, u.Name, u.Email, u.Phone, u.Speciality,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return ErrUserNotFound
	case db.IsUniqueViolation(err, emailConstraint):
		return ErrDuplicateEmail
	case err != nil:
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *userRepoPG) SetCredentials(ctx context.Context, id uuid.UUID, role, passwordHash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET role = $2, password_hash = $3, updated_at = NOW() WHERE id = $1`, id, role, passwordHash)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("set credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1 AND role = $2`, id, role)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
