package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/internal/platform/reporting"
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

// Amounts are read as text so they round-trip exactly through money.Amount.
const appointmentSelect = `
	SELECT a.id, a.patient_name, a.test_name, a.branch_location, a.appointment_date,
	       a.amount::text, a.advance_amount::text, a.balance_amount::text,
	       a.pro_details, a.contact_number, a.agent_id, a.created_at, a.updated_at,
	       u.name, u.email, u.role
	FROM appointments a
	JOIN users u ON u.id = a.agent_id`

func (r *repoPG) scanRow(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var agent Agent
	err := row.Scan(
		&a.ID, &a.PatientName, &a.TestName, &a.BranchLocation, &a.AppointmentDate,
		&a.Amount, &a.AdvanceAmount, &a.BalanceAmount,
		&a.ProDetails, &a.ContactNumber, &a.AgentID, &a.CreatedAt, &a.UpdatedAt,
		&agent.Name, &agent.Email, &agent.Role,
	)
	if err != nil {
		return nil, err
	}
	agent.ID = a.AgentID
	a.Agent = &agent
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.BalanceAmount = ComputeBalance(a.Amount, a.AdvanceAmount)
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_name, test_name, branch_location, appointment_date,
			amount, advance_amount, balance_amount, pro_details, contact_number, agent_id)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric, $8::text::numeric, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientName, a.TestName, a.BranchLocation, a.AppointmentDate,
		a.Amount.String(), a.AdvanceAmount.String(), a.BalanceAmount.String(),
		a.ProDetails, a.ContactNumber, a.AgentID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanRow(r.conn(ctx).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	a.BalanceAmount = ComputeBalance(a.Amount, a.AdvanceAmount)
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			patient_name = $2, test_name = $3, branch_location = $4, appointment_date = $5,
			amount = $6::text::numeric, advance_amount = $7::text::numeric, balance_amount = $8::text::numeric,
			pro_details = $9, contact_number = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientName, a.TestName, a.BranchLocation, a.AppointmentDate,
		a.Amount.String(), a.AdvanceAmount.String(), a.BalanceAmount.String(),
		a.ProDetails, a.ContactNumber,
	).Scan(&a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Find(ctx context.Context, q Query) ([]*Appointment, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		conds = append(conds, fmt.Sprintf("(a.patient_name ILIKE $%d OR a.contact_number ILIKE $%d)", len(args), len(args)))
	}
	if !q.Range.IsZero() {
		args = append(args, q.Range.Start, q.Range.End)
		conds = append(conds, fmt.Sprintf("a.created_at BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	c := r.conn(ctx)
	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	args = append(args, q.Limit, q.Offset)
	query := appointmentSelect + where +
		fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	list, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

var suggestColumns = map[SuggestField]string{
	FieldPatientName:   "patient_name",
	FieldContactNumber: "contact_number",
}

func (r *repoPG) Suggest(ctx context.Context, field SuggestField, substr string, limit int) ([]string, error) {
	col, ok := suggestColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown suggestion field %q", field)
	}
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %[1]s FROM appointments
		WHERE %[1]s ILIKE $1
		GROUP BY %[1]s
		ORDER BY MAX(created_at) DESC
		LIMIT $2`, col), "%"+escapeLike(substr)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("suggest %s: %w", col, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repoPG) ListCreated(ctx context.Context, rng reporting.Range) ([]*Appointment, error) {
	if rng.IsZero() {
		return r.list(ctx, appointmentSelect+` ORDER BY a.created_at ASC`)
	}
	return r.list(ctx, appointmentSelect+` WHERE a.created_at BETWEEN $1 AND $2 ORDER BY a.created_at ASC`,
		rng.Start, rng.End)
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	out := []*Appointment{}
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
