package activitylog

import (
	"context"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

// Service is the read side of the audit trail plus the append hook used by
// the appointment pipeline.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append stores e. Errors are returned unwrapped so the calling mutation
// fails with them.
func (s *Service) Append(ctx context.Context, e *Entry) error {
	return s.repo.Append(ctx, e)
}

// PurgeAppointment drops the history rows that die with an appointment.
func (s *Service) PurgeAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := s.repo.PurgeAppointment(ctx, appointmentID)
	return err
}

func (s *Service) ListAll(ctx context.Context, actor auth.Actor) ([]*Entry, error) {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return wrapList(s.repo.ListAll(ctx))
}

func (s *Service) ListByAppointment(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) ([]*Entry, error) {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return wrapList(s.repo.ListByAppointment(ctx, appointmentID))
}

func (s *Service) ListByAgent(ctx context.Context, actor auth.Actor, agentID uuid.UUID) ([]*Entry, error) {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return wrapList(s.repo.ListByAgent(ctx, agentID))
}

func wrapList(entries []*Entry, err error) ([]*Entry, error) {
	if err != nil {
		return nil, apperror.Internal("Failed to load activity logs", err)
	}
	return entries, nil
}
