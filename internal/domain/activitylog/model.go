package activitylog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Entry is one immutable audit record. AgentID is the acting user, which is
// not necessarily the appointment's assigned agent.
type Entry struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	AgentID       uuid.UUID       `json:"agent_id"`
	Action        Action          `json:"action"`
	OldData       json.RawMessage `json:"old_data"`
	NewData       json.RawMessage `json:"new_data"`
	CreatedAt     time.Time       `json:"created_at"`

	Agent       *ActorSummary       `json:"agent,omitempty"`
	Appointment *AppointmentSummary `json:"appointment,omitempty"`
}

// ActorSummary is the acting user as shown next to an entry.
type ActorSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// AppointmentSummary is the affected appointment, when it still exists.
type AppointmentSummary struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	TestName    string    `json:"test_name"`
}

var emptyObject = json.RawMessage(`{}`)

// NewEntry builds an entry from before/after values. A nil before records no
// old state; a nil after records an empty object.
func NewEntry(action Action, appointmentID, actorID uuid.UUID, before, after interface{}) (*Entry, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("invalid audit action %q", action)
	}
	e := &Entry{
		AppointmentID: appointmentID,
		AgentID:       actorID,
		Action:        action,
		NewData:       emptyObject,
	}
	if before != nil {
		b, err := json.Marshal(before)
		if err != nil {
			return nil, fmt.Errorf("encode old snapshot: %w", err)
		}
		e.OldData = b
	}
	if after != nil {
		b, err := json.Marshal(after)
		if err != nil {
			return nil, fmt.Errorf("encode new snapshot: %w", err)
		}
		e.NewData = b
	}
	return e, nil
}
