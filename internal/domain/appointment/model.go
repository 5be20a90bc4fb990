package appointment

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
	"github.com/rohanchauhan123/appointment-system/pkg/money"
)

const (
	maxNameLength    = 255
	maxContactLength = 20
	dateOnlyLayout   = "2006-01-02"
)

// Appointment is a booked diagnostic test. BalanceAmount is always
// Amount - AdvanceAmount; callers never set it.
type Appointment struct {
	ID              uuid.UUID    `json:"id"`
	PatientName     string       `json:"patient_name"`
	TestName        string       `json:"test_name"`
	BranchLocation  string       `json:"branch_location"`
	AppointmentDate time.Time    `json:"appointment_date"`
	Amount          money.Amount `json:"amount"`
	AdvanceAmount   money.Amount `json:"advance_amount"`
	BalanceAmount   money.Amount `json:"balance_amount"`
	ProDetails      *string      `json:"pro_details"`
	ContactNumber   string       `json:"contact_number"`
	AgentID         uuid.UUID    `json:"agent_id"`
	Agent           *Agent       `json:"agent,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Agent is the owning user as embedded in appointment responses.
type Agent struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// ComputeBalance derives the outstanding balance.
func ComputeBalance(amount, advance money.Amount) money.Amount {
	return amount.Sub(advance)
}

// Snapshot is the audit-log form of an appointment: every field plus the
// owning agent's id and name.
type Snapshot struct {
	ID              uuid.UUID    `json:"id"`
	PatientName     string       `json:"patient_name"`
	TestName        string       `json:"test_name"`
	BranchLocation  string       `json:"branch_location"`
	AppointmentDate time.Time    `json:"appointment_date"`
	Amount          money.Amount `json:"amount"`
	AdvanceAmount   money.Amount `json:"advance_amount"`
	BalanceAmount   money.Amount `json:"balance_amount"`
	ProDetails      *string      `json:"pro_details"`
	ContactNumber   string       `json:"contact_number"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	AgentID         uuid.UUID    `json:"agent_id"`
	AgentName       string       `json:"agent_name"`
}

func (a *Appointment) Snapshot() Snapshot {
	s := Snapshot{
		ID:              a.ID,
		PatientName:     a.PatientName,
		TestName:        a.TestName,
		BranchLocation:  a.BranchLocation,
		AppointmentDate: a.AppointmentDate,
		Amount:          a.Amount,
		AdvanceAmount:   a.AdvanceAmount,
		BalanceAmount:   a.BalanceAmount,
		ProDetails:      a.ProDetails,
		ContactNumber:   a.ContactNumber,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		AgentID:         a.AgentID,
	}
	if a.Agent != nil {
		s.AgentName = a.Agent.Name
	}
	return s
}

// CreateInput is the body of POST /appointments. AgentID is honored for
// admins only.
type CreateInput struct {
	PatientName     string        `json:"patient_name"`
	TestName        string        `json:"test_name"`
	BranchLocation  string        `json:"branch_location"`
	AppointmentDate string        `json:"appointment_date"`
	Amount          *money.Amount `json:"amount"`
	AdvanceAmount   *money.Amount `json:"advance_amount"`
	ProDetails      *string       `json:"pro_details"`
	ContactNumber   string        `json:"contact_number"`
	AgentID         *uuid.UUID    `json:"agent_id,omitempty"`
}

// Build validates in and returns an unsaved appointment without an owner.
func (in *CreateInput) Build() (*Appointment, error) {
	a := &Appointment{}
	var err error
	if a.PatientName, err = requiredText("Patient name", in.PatientName); err != nil {
		return nil, err
	}
	if a.TestName, err = requiredText("Test name", in.TestName); err != nil {
		return nil, err
	}
	if a.BranchLocation, err = requiredText("Branch location", in.BranchLocation); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.AppointmentDate) == "" {
		return nil, apperror.Validation("Appointment date is required")
	}
	if a.AppointmentDate, err = parseAppointmentDate(in.AppointmentDate); err != nil {
		return nil, err
	}
	if in.Amount == nil {
		return nil, apperror.Validation("Amount is required")
	}
	if err := checkAmount("Amount", *in.Amount); err != nil {
		return nil, err
	}
	a.Amount = *in.Amount
	if in.AdvanceAmount != nil {
		if err := checkAmount("Advance amount", *in.AdvanceAmount); err != nil {
			return nil, err
		}
		a.AdvanceAmount = *in.AdvanceAmount
	}
	if a.ContactNumber, err = contactNumber(in.ContactNumber); err != nil {
		return nil, err
	}
	a.ProDetails = in.ProDetails
	a.BalanceAmount = ComputeBalance(a.Amount, a.AdvanceAmount)
	return a, nil
}

// OptionalText is a JSON field that distinguishes absent from null. Set is
// true when the key was present; Value is nil when it was null.
type OptionalText struct {
	Set   bool
	Value *string
}

// Text returns a present OptionalText holding v.
func Text(v string) OptionalText {
	return OptionalText{Set: true, Value: &v}
}

// Null returns a present OptionalText that clears the field.
func Null() OptionalText {
	return OptionalText{Set: true}
}

func (o *OptionalText) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// UpdatePatch is the body of PUT /appointments/:id. Nil fields are left
// unchanged; pro_details may also be sent as null to clear it.
type UpdatePatch struct {
	PatientName     *string       `json:"patient_name"`
	TestName        *string       `json:"test_name"`
	BranchLocation  *string       `json:"branch_location"`
	AppointmentDate *string       `json:"appointment_date"`
	Amount          *money.Amount `json:"amount"`
	AdvanceAmount   *money.Amount `json:"advance_amount"`
	ProDetails      OptionalText  `json:"pro_details"`
	ContactNumber   *string       `json:"contact_number"`
}

// Apply validates every present field and merges them into a. a is not
// modified when any field is invalid.
func (p *UpdatePatch) Apply(a *Appointment) error {
	next := *a
	var err error
	if p.PatientName != nil {
		if next.PatientName, err = requiredText("Patient name", *p.PatientName); err != nil {
			return err
		}
	}
	if p.TestName != nil {
		if next.TestName, err = requiredText("Test name", *p.TestName); err != nil {
			return err
		}
	}
	if p.BranchLocation != nil {
		if next.BranchLocation, err = requiredText("Branch location", *p.BranchLocation); err != nil {
			return err
		}
	}
	if p.AppointmentDate != nil {
		if next.AppointmentDate, err = parseAppointmentDate(*p.AppointmentDate); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := checkAmount("Amount", *p.Amount); err != nil {
			return err
		}
		next.Amount = *p.Amount
	}
	if p.AdvanceAmount != nil {
		if err := checkAmount("Advance amount", *p.AdvanceAmount); err != nil {
			return err
		}
		next.AdvanceAmount = *p.AdvanceAmount
	}
	if p.ContactNumber != nil {
		if next.ContactNumber, err = contactNumber(*p.ContactNumber); err != nil {
			return err
		}
	}
	if p.ProDetails.Set {
		next.ProDetails = p.ProDetails.Value
	}
	next.BalanceAmount = ComputeBalance(next.Amount, next.AdvanceAmount)
	*a = next
	return nil
}

func requiredText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperror.Validation("%s is required", field)
	}
	if utf8.RuneCountInString(v) > maxNameLength {
		return "", apperror.Validation("%s must be at most %d characters", field, maxNameLength)
	}
	return v, nil
}

func contactNumber(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperror.Validation("Contact number is required")
	}
	if utf8.RuneCountInString(v) > maxContactLength {
		return "", apperror.Validation("Contact number must be at most %d characters", maxContactLength)
	}
	return v, nil
}

func checkAmount(field string, v money.Amount) error {
	if v.IsNegative() {
		return apperror.Validation("%s must be a non-negative number", field)
	}
	if v > money.Max {
		return apperror.Validation("%s must not exceed %s", field, money.Max)
	}
	return nil
}

// parseAppointmentDate accepts RFC 3339 timestamps or a bare YYYY-MM-DD,
// which is read as midnight UTC.
func parseAppointmentDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateOnlyLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperror.Validation("Appointment date must be a valid date")
}
