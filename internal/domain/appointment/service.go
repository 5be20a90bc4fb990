package appointment

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/domain/activitylog"
	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/internal/platform/events"
	"github.com/rohanchauhan123/appointment-system/internal/platform/reporting"
	"github.com/rohanchauhan123/appointment-system/internal/platform/telemetry"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
	"github.com/rohanchauhan123/appointment-system/pkg/pagination"
)

const (
	minSuggestionQuery = 2
	nameSuggestions    = 3
	phoneSuggestions   = 2
)

// AuditLog records appointment history. *activitylog.Service satisfies it.
type AuditLog interface {
	Append(ctx context.Context, e *activitylog.Entry) error
	PurgeAppointment(ctx context.Context, appointmentID uuid.UUID) error
}

// Transactor runs fn atomically. *db.Transactor satisfies it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives committed changes. *events.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, ch events.Change)
}

// ActorLookup resolves the agent an admin assigns an appointment to. An
// unknown id must be reported as an apperror NotFound.
type ActorLookup interface {
	LookupActor(ctx context.Context, id uuid.UUID) (auth.Actor, error)
}

type Config struct {
	// Location defines "today" for unfiltered listings and the calendar day
	// of date-only filter bounds.
	Location *time.Location
}

// Suggestion is one search-as-you-type hint.
type Suggestion struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

const (
	SuggestionName  = "name"
	SuggestionPhone = "phone"
)

// ListRequest carries the query string of GET /appointments.
type ListRequest struct {
	Search    string
	StartDate string
	EndDate   string
	Page      pagination.Params
}

// Service runs every appointment mutation through one pipeline: authorize,
// validate and derive, persist, reload, audit, then notify after commit.
type Service struct {
	repo     Repository
	audit    AuditLog
	tx       Transactor
	notifier Notifier
	users    ActorLookup
	metrics  *telemetry.Metrics
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the pipeline. notifier, users and metrics may be nil.
func NewService(repo Repository, audit AuditLog, tx Transactor, notifier Notifier, users ActorLookup, metrics *telemetry.Metrics, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		tx:       tx,
		notifier: notifier,
		users:    users,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.With().Str("component", "appointments").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Appointment, error) {
	if err := auth.Authorize(actor, auth.RoleAgent); err != nil {
		return nil, err
	}
	a, err := in.Build()
	if err != nil {
		return nil, err
	}
	a.AgentID = actor.ID
	if actor.IsAdmin() && in.AgentID != nil && *in.AgentID != uuid.Nil {
		if err := s.checkAssignee(ctx, *in.AgentID); err != nil {
			return nil, err
		}
		a.AgentID = *in.AgentID
	}

	var saved *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return apperror.Internal("Failed to save appointment", err)
		}
		var err error
		if saved, err = s.reload(ctx, a.ID, "Failed to load saved appointment"); err != nil {
			return err
		}
		return s.record(ctx, activitylog.ActionCreate, saved.ID, actor.ID, nil, saved.Snapshot())
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, events.ActionCreate, saved)
	s.logger.Info().Str("appointment_id", saved.ID.String()).Str("actor_id", actor.ID.String()).Msg("appointment created")
	return saved, nil
}

// Update applies patch to the appointment. Any agent may edit any
// appointment; concurrent edits are last-write-wins.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, patch UpdatePatch) (*Appointment, error) {
	if err := auth.Authorize(actor, auth.RoleAgent); err != nil {
		return nil, err
	}

	var saved *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		before := existing.Snapshot()
		if err := patch.Apply(existing); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, existing); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound(id)
			}
			return apperror.Internal("Failed to update appointment", err)
		}
		if saved, err = s.reload(ctx, id, "Failed to load updated appointment"); err != nil {
			return err
		}
		return s.record(ctx, activitylog.ActionUpdate, id, actor.ID, before, saved.Snapshot())
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, events.ActionUpdate, saved)
	s.logger.Info().Str("appointment_id", id.String()).Str("actor_id", actor.ID.String()).Msg("appointment updated")
	return saved, nil
}

// Delete removes an appointment. The DELETE entry is written first and
// survives; the appointment's CREATE and UPDATE entries go with it.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := auth.Authorize(actor, auth.RoleAdmin); err != nil {
		return err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, activitylog.ActionDelete, id, actor.ID, existing.Snapshot(), nil); err != nil {
			return err
		}
		if err := s.audit.PurgeAppointment(ctx, id); err != nil {
			return apperror.Internal("Failed to clear appointment history", err)
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound(id)
			}
			return apperror.Internal("Failed to delete appointment", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.committed(ctx, events.ActionDelete, map[string]string{"id": id.String()})
	s.logger.Info().Str("appointment_id", id.String()).Str("actor_id", actor.ID.String()).Msg("appointment deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	if err := auth.Authorize(actor, auth.RoleAgent); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// List returns one page of appointments, newest first. With a search term
// the optional date range narrows the matches; without one the date range
// applies on its own, defaulting to today.
func (s *Service) List(ctx context.Context, actor auth.Actor, req ListRequest) (*pagination.Response, error) {
	if err := auth.Authorize(actor, auth.RoleAgent); err != nil {
		return nil, err
	}
	rng, err := reporting.ParseRange(req.StartDate, req.EndDate, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	q := Query{Search: req.Search, Range: rng, Limit: req.Page.Limit, Offset: req.Page.Offset()}
	if q.Search == "" && rng.IsZero() {
		q.Range = reporting.DayRange(s.now().In(s.cfg.Location))
	}

	list, total, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, apperror.Internal("Failed to load appointments", err)
	}
	return pagination.NewResponse(list, total, req.Page), nil
}

// Suggestions returns up to three recent patient names and two contact
// numbers containing query. Queries shorter than two characters match
// nothing.
func (s *Service) Suggestions(ctx context.Context, actor auth.Actor, query string) ([]Suggestion, error) {
	if err := auth.Authorize(actor, auth.RoleAgent); err != nil {
		return nil, err
	}
	out := []Suggestion{}
	if utf8.RuneCountInString(query) < minSuggestionQuery {
		return out, nil
	}

	names, err := s.repo.Suggest(ctx, FieldPatientName, query, nameSuggestions)
	if err != nil {
		return nil, apperror.Internal("Failed to load suggestions", err)
	}
	phones, err := s.repo.Suggest(ctx, FieldContactNumber, query, phoneSuggestions)
	if err != nil {
		return nil, apperror.Internal("Failed to load suggestions", err)
	}

	seen := make(map[Suggestion]bool)
	add := func(text, kind string) {
		sg := Suggestion{Text: text, Type: kind}
		if !seen[sg] {
			seen[sg] = true
			out = append(out, sg)
		}
	}
	for _, n := range names {
		add(n, SuggestionName)
	}
	for _, p := range phones {
		add(p, SuggestionPhone)
	}
	return out, nil
}

// ReportRecords implements reporting.Source.
func (s *Service) ReportRecords(ctx context.Context, r reporting.Range) ([]reporting.Record, error) {
	list, err := s.repo.ListCreated(ctx, r)
	if err != nil {
		return nil, err
	}
	records := make([]reporting.Record, 0, len(list))
	for _, a := range list {
		rec := reporting.Record{
			ID:              a.ID,
			PatientName:     a.PatientName,
			TestName:        a.TestName,
			BranchLocation:  a.BranchLocation,
			AppointmentDate: a.AppointmentDate,
			Amount:          a.Amount,
			AdvanceAmount:   a.AdvanceAmount,
			BalanceAmount:   a.BalanceAmount,
			ContactNumber:   a.ContactNumber,
			CreatedAt:       a.CreatedAt,
		}
		if a.ProDetails != nil {
			rec.ProDetails = *a.ProDetails
		}
		if a.Agent != nil {
			rec.AgentName = a.Agent.Name
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Service) checkAssignee(ctx context.Context, id uuid.UUID) error {
	if s.users == nil {
		return nil
	}
	assignee, err := s.users.LookupActor(ctx, id)
	if apperror.Is(err, apperror.KindNotFound) {
		return apperror.Validation("Assigned agent %s does not exist", id)
	}
	if err != nil {
		return apperror.Internal("Failed to load assigned agent", err)
	}
	if !assignee.Active {
		return apperror.Validation("Assigned agent %s is inactive", id)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, apperror.Internal("Failed to load appointment", err)
	}
	return a, nil
}

// reload reads back a row written in the same transaction. Missing it
// means the write was lost.
func (s *Service) reload(ctx context.Context, id uuid.UUID, message string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal(message, err)
	}
	return a, nil
}

func (s *Service) record(ctx context.Context, action activitylog.Action, id, actorID uuid.UUID, before, after interface{}) error {
	entry, err := activitylog.NewEntry(action, id, actorID, before, after)
	if err != nil {
		return apperror.Internal("Failed to encode activity log", err)
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return apperror.Internal("Failed to record activity log", err)
	}
	return nil
}

func (s *Service) committed(ctx context.Context, action string, data interface{}) {
	s.metrics.RecordMutation(action)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, events.Change{
		TenantID: db.TenantFromContext(ctx),
		Action:   action,
		Data:     data,
		At:       s.now().UTC(),
	})
}

func notFound(id uuid.UUID) error {
	return apperror.NotFound("Appointment with ID %s not found", id)
}
