package activitylog

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for audit entries. All lists
// are ordered newest first.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListAll(ctx context.Context) ([]*Entry, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Entry, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*Entry, error)
	// PurgeAppointment removes the CREATE and UPDATE entries of a deleted
	// appointment. DELETE entries are kept.
	PurgeAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
}
