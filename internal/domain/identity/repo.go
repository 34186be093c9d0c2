package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User, passwordHash string) error
	// GetByID matches role too; a user of another role is not found.
	GetByID(ctx context.Context, id uuid.UUID, role string) (*User, error)
	// FindByEmail matches case-insensitively. An empty role matches any.
	FindByEmail(ctx context.Context, email, role string) (*User, error)
	List(ctx context.Context, role string) ([]*User, error)
	Update(ctx context.Context, u *User) error
	// SetCredentials replaces the role and password of an existing user.
	SetCredentials(ctx context.Context, id uuid.UUID, role, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID, role string) error
}
