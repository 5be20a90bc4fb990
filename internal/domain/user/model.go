package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

// MinPasswordLength is the shortest password accepted on create.
const MinPasswordLength = 6

// User is an agent or admin account. PasswordHash never leaves the service.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is the authorization view of u.
func (u *User) Actor() auth.Actor {
	return auth.Actor{ID: u.ID, Email: u.Email, Role: u.Role, Active: u.IsActive}
}

// NormalizeEmail folds an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type CreateRequest struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role,omitempty"`
}

// Validate normalizes the request in place and reports the first problem.
func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)

	if r.Name == "" {
		return apperror.Validation("Name is required")
	}
	if r.Email == "" {
		return apperror.Validation("Email is required")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return apperror.Validation("Please provide a valid email address")
	}
	if r.Password == "" {
		return apperror.Validation("Password is required")
	}
	if len(r.Password) < MinPasswordLength {
		return apperror.Validation("Password must be at least %d characters", MinPasswordLength)
	}
	if r.Role == "" {
		r.Role = auth.RoleAgent
	}
	if !r.Role.Valid() {
		return apperror.Validation("role must be one of: admin, agent")
	}
	return nil
}

type StatusRequest struct {
	IsActive *bool `json:"is_active"`
}

func (r StatusRequest) Validate() error {
	if r.IsActive == nil {
		return apperror.Validation("is_active status is required")
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}
