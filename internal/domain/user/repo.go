package user

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository defines the persistence interface for users. Emails are stored
// and matched lower-cased.
type Repository interface {
	// Create assigns the ID and timestamps. It returns ErrDuplicateEmail when
	// the address is taken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// ListByRole returns users newest first.
	ListByRole(ctx context.Context, role auth.Role) ([]*User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error)
}
