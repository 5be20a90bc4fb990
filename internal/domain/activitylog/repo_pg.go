package activitylog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// Appointment columns are NULL once the appointment is gone.
const entrySelect = `
	SELECT l.id, l.appointment_id, l.agent_id, l.action, l.old_data, l.new_data, l.created_at,
	       u.name, u.email, u.role,
	       a.patient_name, a.test_name
	FROM activity_logs l
	JOIN users u ON u.id = l.agent_id
	LEFT JOIN appointments a ON a.id = l.appointment_id`

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	var oldData interface{}
	if len(e.OldData) > 0 {
		oldData = []byte(e.OldData)
	}
	newData := []byte(e.NewData)
	if len(newData) == 0 {
		newData = []byte(emptyObject)
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO activity_logs (id, appointment_id, agent_id, action, old_data, new_data)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb)
		RETURNING created_at`,
		e.ID, e.AppointmentID, e.AgentID, string(e.Action), oldData, newData,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Entry, error) {
	return r.list(ctx, entrySelect+` ORDER BY l.created_at DESC`)
}

func (r *repoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Entry, error) {
	return r.list(ctx, entrySelect+` WHERE l.appointment_id = $1 ORDER BY l.created_at DESC`, appointmentID)
}

func (r *repoPG) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*Entry, error) {
	return r.list(ctx, entrySelect+` WHERE l.agent_id = $1 ORDER BY l.created_at DESC`, agentID)
}

func (r *repoPG) PurgeAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM activity_logs WHERE appointment_id = $1 AND action IN ('CREATE', 'UPDATE')`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("purge activity logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var (
			e                     Entry
			action                string
			oldData, newData      []byte
			agent                 ActorSummary
			patientName, testName *string
		)
		if err := rows.Scan(
			&e.ID, &e.AppointmentID, &e.AgentID, &action, &oldData, &newData, &e.CreatedAt,
			&agent.Name, &agent.Email, &agent.Role,
			&patientName, &testName,
		); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		e.Action = Action(action)
		if oldData != nil {
			e.OldData = oldData
		}
		e.NewData = newData
		agent.ID = e.AgentID
		e.Agent = &agent
		if patientName != nil {
			e.Appointment = &AppointmentSummary{ID: e.AppointmentID, PatientName: *patientName}
			if testName != nil {
				e.Appointment.TestName = *testName
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
