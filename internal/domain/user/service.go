package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgDeactivated        = "Your account has been deactivated"
)

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	logger zerolog.Logger
}

func NewService(repo Repository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger.With().Str("component", "users").Logger()}
}

// Create adds a user on behalf of an admin.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*User, error) {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return s.create(ctx, req)
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.Internal("Failed to create user", err)
	}
	u := &User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, apperror.Conflict("Email already exists")
		}
		return nil, apperror.Internal("Failed to create user", err)
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user created")
	return u, nil
}

func (s *Service) CreateAgent(ctx context.Context, actor auth.Actor, req CreateRequest) (*User, error) {
	req.Role = auth.RoleAgent
	return s.Create(ctx, actor, req)
}

func (s *Service) CreateAdmin(ctx context.Context, actor auth.Actor, req CreateRequest) (*User, error) {
	req.Role = auth.RoleAdmin
	return s.Create(ctx, actor, req)
}

// Login checks credentials and issues a session token scoped to tenantID.
func (s *Service) Login(ctx context.Context, tenantID string, req LoginRequest) (*LoginResponse, error) {
	if NormalizeEmail(req.Email) == "" || req.Password == "" {
		return nil, apperror.Validation("email and password are required")
	}

	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.Authentication(msgInvalidCredentials)
		}
		return nil, apperror.Internal("Failed to sign in", err)
	}
	if !u.IsActive {
		return nil, apperror.Authentication(msgDeactivated)
	}
	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("stored password hash is unreadable")
		return nil, apperror.Authentication(msgInvalidCredentials)
	}
	if !ok {
		return nil, apperror.Authentication(msgInvalidCredentials)
	}

	token, exp, err := s.tokens.Issue(u.ID, u.Email, u.Role, tenantID)
	if err != nil {
		return nil, apperror.Internal("Failed to sign in", err)
	}
	return &LoginResponse{AccessToken: token, ExpiresAt: exp, User: u}, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Internal("Failed to load user", err)
	}
	return u, nil
}

func (s *Service) ListAgents(ctx context.Context, actor auth.Actor) ([]*User, error) {
	return s.list(ctx, actor, auth.RoleAgent)
}

func (s *Service) ListAdmins(ctx context.Context, actor auth.Actor) ([]*User, error) {
	return s.list(ctx, actor, auth.RoleAdmin)
}

func (s *Service) list(ctx context.Context, actor auth.Actor, role auth.Role) ([]*User, error) {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, apperror.Internal("Failed to list users", err)
	}
	return users, nil
}

// SetStatus activates or deactivates a user. Deactivation takes effect on the
// user's next request because every request reloads the token subject.
func (s *Service) SetStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, req StatusRequest) (*User, error) {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u, err := s.repo.SetActive(ctx, id, *req.IsActive)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Internal("Failed to update user status", err)
	}
	s.logger.Info().
		Str("user_id", u.ID.String()).
		Bool("is_active", u.IsActive).
		Str("by", actor.ID.String()).
		Msg("user status changed")
	return u, nil
}

// EnsureAdmin creates an admin with the given credentials unless the email
// is already registered. It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*User, bool, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	u, err := s.create(ctx, CreateRequest{Name: name, Email: email, Password: password, Role: auth.RoleAdmin})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// LookupActor implements auth.UserLookup. An unknown id is a NotFound
// error; anything else is Internal.
func (s *Service) LookupActor(ctx context.Context, id uuid.UUID) (auth.Actor, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return auth.Actor{}, apperror.NotFound("User %s not found", id)
	}
	if err != nil {
		return auth.Actor{}, apperror.Internal("Failed to load user", err)
	}
	return u.Actor(), nil
}
