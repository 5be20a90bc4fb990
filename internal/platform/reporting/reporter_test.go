package reporting

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/blobstore"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/internal/platform/notification"
	"github.com/rohanchauhan123/appointment-system/internal/platform/telemetry"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
	"github.com/rohanchauhan123/appointment-system/pkg/money"
)

var fixedNow = time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)

type fakeSource struct {
	records []Record
	err     error
	ranges  []Range
}

func (f *fakeSource) ReportRecords(_ context.Context, r Range) ([]Record, error) {
	f.ranges = append(f.ranges, r)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func sampleRecord() Record {
	return Record{
		ID:              uuid.MustParse("7d7b2b8e-2f55-4b3a-9a51-0f3c6b1d2e4f"),
		PatientName:     "Asha Rao",
		TestName:        "CBC",
		BranchLocation:  "Indiranagar",
		AppointmentDate: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		Amount:          money.MustParse("1000.00"),
		AdvanceAmount:   money.MustParse("250.50"),
		BalanceAmount:   money.MustParse("749.50"),
		ContactNumber:   "9876543210",
		ProDetails:      "Dr. Mehta, fasting",
		AgentName:       "Ravi",
		CreatedAt:       time.Date(2024, 3, 1, 10, 15, 30, 123000000, time.UTC),
	}
}

type harness struct {
	reporter *Reporter
	source   *fakeSource
	mailer   *notification.MockMailer
	store    *blobstore.InMemoryStore
	metrics  *telemetry.Metrics
}

func newHarness(records []Record, recipients ...string) *harness {
	h := &harness{
		source:  &fakeSource{records: records},
		mailer:  &notification.MockMailer{},
		store:   blobstore.NewInMemoryStore(),
		metrics: telemetry.New(telemetry.Config{}),
	}
	h.reporter = NewReporter(h.source, h.mailer, h.store, Config{Recipients: recipients, Location: time.UTC}, h.metrics, zerolog.Nop())
	h.reporter.now = func() time.Time { return fixedNow }
	return h
}

func tenantCtx(tenant string) context.Context {
	return context.WithValue(context.Background(), db.TenantIDKey, tenant)
}

func reportCount(t *testing.T, reg *prometheus.Registry, kind, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "appointments_reports_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["kind"] == kind && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestEncodeCSV_HeaderAndRow(t *testing.T) {
	body, err := EncodeCSV([]Record{sampleRecord()})
	if err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	wantHeader := "ID,Patient Name,Test Name,Branch Location,Appointment Date,Amount,Advance Amount,Balance Amount,Contact Number,Pro Details,Agent Name,Created At"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Errorf("header = %q", got)
	}
	want := []string{
		"7d7b2b8e-2f55-4b3a-9a51-0f3c6b1d2e4f",
		"Asha Rao",
		"CBC",
		"Indiranagar",
		"2024-03-02T09:00:00.000Z",
		"1000.00",
		"250.50",
		"749.50",
		"9876543210",
		"Dr. Mehta, fasting",
		"Ravi",
		"2024-03-01T10:15:30.123Z",
	}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("column %s = %q, want %q", Header[i], rows[1][i], want[i])
		}
	}
}

func TestEncodeCSV_EmptyIsHeaderOnly(t *testing.T) {
	body, err := EncodeCSV(nil)
	if err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	if strings.Count(string(body), "\n") != 1 || !strings.HasPrefix(string(body), "ID,Patient Name") {
		t.Errorf("expected header-only document, got %q", body)
	}
}

func TestRunDailyReport_SendsAndArchives(t *testing.T) {
	h := newHarness([]Record{sampleRecord(), sampleRecord()}, "ops@example.com")

	out, err := h.reporter.RunDailyReport(tenantCtx("acme"))
	if err != nil {
		t.Fatalf("RunDailyReport: %v", err)
	}
	if !out.Sent || out.Count != 2 || out.FileName != "appointments_report_2024-03-01.csv" {
		t.Errorf("unexpected outcome %+v", out)
	}

	sent := h.mailer.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	msg := sent[0]
	if msg.Subject != "Appointments Report - Friday, March 1, 2024" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if len(msg.To) != 1 || msg.To[0] != "ops@example.com" {
		t.Errorf("to = %v", msg.To)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].FileName != out.FileName || msg.Attachments[0].ContentType != "text/csv" {
		t.Errorf("unexpected attachments %+v", msg.Attachments)
	}
	if !strings.Contains(msg.HTMLBody, "<strong>Total Appointments:</strong> 2") {
		t.Errorf("body missing count: %s", msg.HTMLBody)
	}

	items, err := h.store.List(context.Background(), blobstore.TenantPrefix("acme"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Key != "reports/acme/daily-report/appointments_report_2024-03-01.csv" {
		t.Errorf("unexpected archive %+v", items)
	}

	if got := reportCount(t, h.metrics.Registry(), KindDaily, OutcomeSent); got != 1 {
		t.Errorf("sent counter = %v, want 1", got)
	}
}

func TestRunDailyReport_QueriesToday(t *testing.T) {
	h := newHarness(nil)
	if _, err := h.reporter.RunDailyReport(tenantCtx("acme")); err != nil {
		t.Fatalf("RunDailyReport: %v", err)
	}
	if len(h.source.ranges) != 1 {
		t.Fatalf("expected one query, got %d", len(h.source.ranges))
	}
	r := h.source.ranges[0]
	if !r.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", r.Start)
	}
	if !r.End.Equal(time.Date(2024, 3, 1, 23, 59, 59, 999999000, time.UTC)) {
		t.Errorf("end = %v", r.End)
	}
}

func TestRunDailyReport_ZeroRowsSkips(t *testing.T) {
	h := newHarness(nil, "ops@example.com")

	out, err := h.reporter.RunDailyReport(tenantCtx("acme"))
	if err != nil {
		t.Fatalf("RunDailyReport: %v", err)
	}
	if out.Sent || out.Count != 0 {
		t.Errorf("expected skip, got %+v", out)
	}
	if len(h.mailer.Sent()) != 0 {
		t.Error("no email should be sent for zero rows")
	}
	if items, _ := h.store.List(context.Background(), ""); len(items) != 0 {
		t.Errorf("nothing should be archived, got %d items", len(items))
	}
	if got := reportCount(t, h.metrics.Registry(), KindDaily, OutcomeSkipped); got != 1 {
		t.Errorf("skipped counter = %v, want 1", got)
	}
}

func TestRunDailyReport_NoRecipientsSkipsMail(t *testing.T) {
	h := newHarness([]Record{sampleRecord()})

	out, err := h.reporter.RunDailyReport(tenantCtx("acme"))
	if err != nil {
		t.Fatalf("RunDailyReport: %v", err)
	}
	if out.Sent {
		t.Error("expected Sent=false without recipients")
	}
	if len(h.mailer.Sent()) != 0 {
		t.Error("no email should be sent without recipients")
	}
}

func TestRunDailyReport_MailFailure(t *testing.T) {
	h := newHarness([]Record{sampleRecord()}, "ops@example.com")
	h.mailer.Err = errors.New("smtp down")

	if _, err := h.reporter.RunDailyReport(tenantCtx("acme")); err == nil {
		t.Fatal("expected error when mail fails")
	}
	if got := reportCount(t, h.metrics.Registry(), KindDaily, OutcomeFailed); got != 1 {
		t.Errorf("failed counter = %v, want 1", got)
	}
}

func TestRunDailyReport_ArchiveFailureIsNotFatal(t *testing.T) {
	h := newHarness([]Record{sampleRecord()}, "ops@example.com")
	h.reporter.store = failingStore{}

	out, err := h.reporter.RunDailyReport(tenantCtx("acme"))
	if err != nil {
		t.Fatalf("RunDailyReport: %v", err)
	}
	if !out.Sent {
		t.Error("mail should still be sent when archiving fails")
	}
}

func TestTriggerReport(t *testing.T) {
	h := newHarness(nil, "ops@example.com")
	res, err := h.reporter.TriggerReport(tenantCtx("acme"))
	if err != nil {
		t.Fatalf("TriggerReport: %v", err)
	}
	if res.Message != "No appointments found for today" || res.Count != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	h.source.records = []Record{sampleRecord()}
	res, err = h.reporter.TriggerReport(tenantCtx("acme"))
	if err != nil {
		t.Fatalf("TriggerReport: %v", err)
	}
	if res.Message != "Report generated and sent successfully" || res.Count != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestTriggerReport_FailureIsInternal(t *testing.T) {
	h := newHarness(nil)
	h.source.err = errors.New("connection reset")
	_, err := h.reporter.TriggerReport(tenantCtx("acme"))
	if !apperror.Is(err, apperror.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRunAdHocExport_ZeroRows(t *testing.T) {
	h := newHarness(nil)
	res, err := h.reporter.RunAdHocExport(tenantCtx("acme"), ExportRequest{Recipients: []string{"a@example.com"}})
	if err != nil {
		t.Fatalf("RunAdHocExport: %v", err)
	}
	if res.Message != "No appointments found" || res.Count != 0 || res.SentTo == nil || len(res.SentTo) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(h.mailer.Sent()) != 0 {
		t.Error("no email should be sent for zero rows")
	}
}

func TestRunAdHocExport_Sends(t *testing.T) {
	h := newHarness([]Record{sampleRecord()})
	req := ExportRequest{
		Recipients: []string{"a@example.com", "b@example.com"},
		StartDate:  "2024-03-01",
		EndDate:    "2024-03-05",
	}
	res, err := h.reporter.RunAdHocExport(tenantCtx("acme"), req)
	if err != nil {
		t.Fatalf("RunAdHocExport: %v", err)
	}
	if res.Message != "Report exported and sent successfully" || res.Count != 1 || len(res.SentTo) != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	sent := h.mailer.Sent()
	if len(sent) != 1 || sent[0].Attachments[0].FileName != "appointments_export_2024-03-01.csv" {
		t.Fatalf("unexpected mail %+v", sent)
	}

	r := h.source.ranges[0]
	if !r.End.Equal(time.Date(2024, 3, 5, 23, 59, 59, 999999000, time.UTC)) {
		t.Errorf("date-only end should cover the whole day, got %v", r.End)
	}

	if _, _, err := h.store.Get(context.Background(), "reports/acme/export/appointments_export_2024-03-01.csv"); err != nil {
		t.Errorf("export not archived: %v", err)
	}
}

func TestRunAdHocExport_SingleBoundExportsAll(t *testing.T) {
	h := newHarness([]Record{sampleRecord()})
	_, err := h.reporter.RunAdHocExport(tenantCtx("acme"), ExportRequest{
		Recipients: []string{"a@example.com"},
		StartDate:  "2024-03-01",
	})
	if err != nil {
		t.Fatalf("RunAdHocExport: %v", err)
	}
	if !h.source.ranges[0].IsZero() {
		t.Errorf("expected unbounded range, got %+v", h.source.ranges[0])
	}
}

func TestRunAdHocExport_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  ExportRequest
	}{
		{"no recipients", ExportRequest{}},
		{"bad recipient", ExportRequest{Recipients: []string{"not-an-email"}}},
		{"display name", ExportRequest{Recipients: []string{"Ops <ops@example.com>"}}},
		{"bad start", ExportRequest{Recipients: []string{"a@example.com"}, StartDate: "yesterday", EndDate: "2024-03-01"}},
		{"end before start", ExportRequest{Recipients: []string{"a@example.com"}, StartDate: "2024-03-05", EndDate: "2024-03-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness([]Record{sampleRecord()})
			_, err := h.reporter.RunAdHocExport(tenantCtx("acme"), tt.req)
			if !apperror.Is(err, apperror.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(h.mailer.Sent()) != 0 {
				t.Error("no email should be sent on validation failure")
			}
		})
	}
}

func TestRunAdHocExport_MailFailure(t *testing.T) {
	h := newHarness([]Record{sampleRecord()})
	h.mailer.Err = errors.New("smtp down")
	_, err := h.reporter.RunAdHocExport(tenantCtx("acme"), ExportRequest{Recipients: []string{"a@example.com"}})
	if !apperror.Is(err, apperror.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if apperror.Message(err) != "Failed to send report email" {
		t.Errorf("message = %q", apperror.Message(err))
	}
}

func TestExportCSV(t *testing.T) {
	h := newHarness(nil)
	body, count, err := h.reporter.ExportCSV(tenantCtx("acme"), "", "")
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if count != 0 || !strings.HasPrefix(string(body), "ID,Patient Name") {
		t.Errorf("expected header-only CSV, got count=%d body=%q", count, body)
	}
	if len(h.mailer.Sent()) != 0 {
		t.Error("download must not send mail")
	}
}

func TestParseRange(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	r, err := ParseRange("2024-03-01T00:00:00Z", "2024-03-02T12:00:00+05:30", ist)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if !r.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", r.Start)
	}
	if !r.End.Equal(time.Date(2024, 3, 2, 6, 30, 0, 0, time.UTC)) {
		t.Errorf("timestamp end must be used as given, got %v", r.End)
	}

	r, err = ParseRange("2024-03-01", "2024-03-01", ist)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if !r.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, ist)) {
		t.Errorf("date-only start should be local midnight, got %v", r.Start)
	}
	if r.End.Sub(r.Start) != 24*time.Hour-time.Microsecond {
		t.Errorf("same-day range should span the day, got %v", r.End.Sub(r.Start))
	}

	if r, err := ParseRange("", "", ist); err != nil || !r.IsZero() {
		t.Errorf("empty bounds should give the zero range, got %+v, %v", r, err)
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, blobstore.Metadata, io.Reader) (*blobstore.Metadata, error) {
	return nil, errors.New("bucket unavailable")
}

func (failingStore) Get(context.Context, string) (io.ReadCloser, *blobstore.Metadata, error) {
	return nil, nil, blobstore.ErrBlobNotFound
}

func (failingStore) List(context.Context, string) ([]*blobstore.Metadata, error) {
	return nil, nil
}

func (failingStore) Delete(context.Context, string) error {
	return blobstore.ErrBlobNotFound
}
