package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/internal/platform/reporting"
)

var ErrNotFound = errors.New("appointment not found")

// SuggestField selects the column a suggestion query matches against.
type SuggestField string

const (
	FieldPatientName   SuggestField = "patient_name"
	FieldContactNumber SuggestField = "contact_number"
)

// Query selects a page of appointments. Search matches patient name or
// contact number as a case-insensitive substring; a non-zero Range bounds
// created_at inclusively. Both apply together when set.
type Query struct {
	Search string
	Range  reporting.Range
	Limit  int
	Offset int
}

// Repository defines the persistence interface for appointments. Create and
// Update recompute BalanceAmount before writing. Reads include the agent.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Find returns the page ordered by created_at descending and the total
	// number of matches.
	Find(ctx context.Context, q Query) ([]*Appointment, int, error)
	// Suggest returns up to limit distinct values of field containing
	// substr, most recently created first.
	Suggest(ctx context.Context, field SuggestField, substr string, limit int) ([]string, error)
	// ListCreated returns appointments created within r ordered by
	// created_at ascending. A zero r returns everything.
	ListCreated(ctx context.Context, r reporting.Range) ([]*Appointment, error)
}
