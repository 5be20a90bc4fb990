package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/pkg/money"
)

// Header is the fixed column order of every appointments CSV. Downstream
// consumers parse it, so labels and order must not change.
var Header = []string{
	"ID",
	"Patient Name",
	"Test Name",
	"Branch Location",
	"Appointment Date",
	"Amount",
	"Advance Amount",
	"Balance Amount",
	"Contact Number",
	"Pro Details",
	"Agent Name",
	"Created At",
}

// Record is one appointment row as it appears in a report.
type Record struct {
	ID              uuid.UUID
	PatientName     string
	TestName        string
	BranchLocation  string
	AppointmentDate time.Time
	Amount          money.Amount
	AdvanceAmount   money.Amount
	BalanceAmount   money.Amount
	ContactNumber   string
	ProDetails      string
	AgentName       string
	CreatedAt       time.Time
}

// Range bounds a report by creation time. Both ends are inclusive. The zero
// Range selects every record.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Source loads report records ordered by creation time ascending.
type Source interface {
	ReportRecords(ctx context.Context, r Range) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, r Range) ([]Record, error)

func (f SourceFunc) ReportRecords(ctx context.Context, r Range) ([]Record, error) {
	return f(ctx, r)
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

func (r Record) row() []string {
	return []string{
		r.ID.String(),
		r.PatientName,
		r.TestName,
		r.BranchLocation,
		r.AppointmentDate.UTC().Format(timestampLayout),
		r.Amount.String(),
		r.AdvanceAmount.String(),
		r.BalanceAmount.String(),
		r.ContactNumber,
		r.ProDetails,
		r.AgentName,
		r.CreatedAt.UTC().Format(timestampLayout),
	}
}

// WriteCSV writes the header followed by one row per record. An empty slice
// produces a header-only document.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		if err := cw.Write(records[i].row()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeCSV renders records into memory.
func EncodeCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
