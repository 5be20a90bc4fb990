// Package reporting renders appointment CSV reports and delivers them by
// email, on a daily schedule, on demand, or as a direct download. Every
// mailed file is also archived to the blob store when one is configured.
package reporting

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/blobstore"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/internal/platform/notification"
	"github.com/rohanchauhan123/appointment-system/internal/platform/telemetry"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

const (
	KindDaily    = "daily"
	KindExport   = "export"
	KindDownload = "download"

	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

const (
	msgNoneToday     = "No appointments found for today"
	msgReportSent    = "Report generated and sent successfully"
	msgNoneFound     = "No appointments found"
	msgExportSent    = "Report exported and sent successfully"
	dateOnlyLayout   = "2006-01-02"
	csvContentType   = "text/csv"
	dailyFilePrefix  = "appointments_report_"
	exportFilePrefix = "appointments_export_"
)

// Config holds the delivery settings of a Reporter.
type Config struct {
	// Recipients receive the daily report.
	Recipients []string
	// Location defines "today" and the calendar day of date-only bounds.
	Location *time.Location
}

// TriggerResult is returned by an on-demand daily report.
type TriggerResult struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ExportRequest asks for an ad-hoc export mailed to custom recipients.
type ExportRequest struct {
	Recipients []string `json:"recipients"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
}

// ExportResult is returned by an ad-hoc export.
type ExportResult struct {
	Message string   `json:"message"`
	Count   int      `json:"count"`
	SentTo  []string `json:"sentTo"`
}

// DailyOutcome describes one scheduled run.
type DailyOutcome struct {
	Count    int
	FileName string
	Sent     bool
}

// Reporter builds and delivers appointment reports.
type Reporter struct {
	source  Source
	mailer  notification.Mailer
	store   blobstore.Store
	cfg     Config
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewReporter creates a Reporter. store and metrics may be nil.
func NewReporter(source Source, mailer notification.Mailer, store blobstore.Store, cfg Config, metrics *telemetry.Metrics, logger zerolog.Logger) *Reporter {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Reporter{
		source:  source,
		mailer:  mailer,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "reporting").Logger(),
		now:     time.Now,
	}
}

// RunDailyReport mails today's appointments to the configured recipients.
// Zero rows or an empty recipient list skip delivery without error.
func (r *Reporter) RunDailyReport(ctx context.Context) (DailyOutcome, error) {
	log := r.logger.With().Str("tenant_id", db.TenantFromContext(ctx)).Logger()
	log.Info().Msg("starting daily appointment report")

	today := r.clock()
	records, err := r.source.ReportRecords(ctx, DayRange(today))
	if err != nil {
		r.metrics.RecordReport(KindDaily, OutcomeFailed)
		return DailyOutcome{}, fmt.Errorf("load today's appointments: %w", err)
	}
	if len(records) == 0 {
		log.Info().Msg("no appointments found for today, skipping report")
		r.metrics.RecordReport(KindDaily, OutcomeSkipped)
		return DailyOutcome{}, nil
	}

	out := DailyOutcome{Count: len(records), FileName: dailyFilePrefix + today.Format(dateOnlyLayout) + ".csv"}
	sent, err := r.deliver(ctx, blobstore.CategoryDailyReport, out.FileName, records, r.cfg.Recipients, today)
	if err != nil {
		r.metrics.RecordReport(KindDaily, OutcomeFailed)
		return out, err
	}
	out.Sent = sent
	if sent {
		r.metrics.RecordReport(KindDaily, OutcomeSent)
		log.Info().Int("count", out.Count).Msg("daily report sent")
	} else {
		r.metrics.RecordReport(KindDaily, OutcomeSkipped)
	}
	return out, nil
}

// TriggerReport runs the daily report on demand and reports the result in
// caller-facing terms.
func (r *Reporter) TriggerReport(ctx context.Context) (TriggerResult, error) {
	r.logger.Info().Msg("manual report trigger requested")
	out, err := r.RunDailyReport(ctx)
	if err != nil {
		return TriggerResult{}, asInternal("Failed to generate report", err)
	}
	if out.Count == 0 {
		return TriggerResult{Message: msgNoneToday, Count: 0}, nil
	}
	return TriggerResult{Message: msgReportSent, Count: out.Count}, nil
}

// RunAdHocExport mails the appointments in the requested range to the
// requested recipients. Without both bounds every appointment is exported.
func (r *Reporter) RunAdHocExport(ctx context.Context, req ExportRequest) (ExportResult, error) {
	recipients, err := validateRecipients(req.Recipients)
	if err != nil {
		return ExportResult{}, err
	}
	rng, err := ParseRange(req.StartDate, req.EndDate, r.cfg.Location)
	if err != nil {
		return ExportResult{}, err
	}
	r.logger.Info().Strs("recipients", recipients).Msg("export requested")

	records, err := r.source.ReportRecords(ctx, rng)
	if err != nil {
		r.metrics.RecordReport(KindExport, OutcomeFailed)
		return ExportResult{}, asInternal("Failed to load appointments", err)
	}
	if len(records) == 0 {
		r.metrics.RecordReport(KindExport, OutcomeSkipped)
		return ExportResult{Message: msgNoneFound, Count: 0, SentTo: []string{}}, nil
	}

	today := r.clock()
	fileName := ExportFileName(today)
	if _, err := r.deliver(ctx, blobstore.CategoryExport, fileName, records, recipients, today); err != nil {
		r.metrics.RecordReport(KindExport, OutcomeFailed)
		return ExportResult{}, asInternal("Failed to send report email", err)
	}
	r.metrics.RecordReport(KindExport, OutcomeSent)
	return ExportResult{Message: msgExportSent, Count: len(records), SentTo: recipients}, nil
}

// ExportCSV renders the appointments in the requested range for download.
// An empty result is a header-only document.
func (r *Reporter) ExportCSV(ctx context.Context, startDate, endDate string) ([]byte, int, error) {
	rng, err := ParseRange(startDate, endDate, r.cfg.Location)
	if err != nil {
		return nil, 0, err
	}
	records, err := r.source.ReportRecords(ctx, rng)
	if err != nil {
		r.metrics.RecordReport(KindDownload, OutcomeFailed)
		return nil, 0, asInternal("Failed to load appointments", err)
	}
	body, err := EncodeCSV(records)
	if err != nil {
		r.metrics.RecordReport(KindDownload, OutcomeFailed)
		return nil, 0, asInternal("Failed to render CSV", err)
	}
	r.metrics.RecordReport(KindDownload, OutcomeSent)
	return body, len(records), nil
}

// DownloadFileName is the attachment name of an export produced now.
func (r *Reporter) DownloadFileName() string {
	return ExportFileName(r.clock())
}

// ExportFileName is the attachment name of an export produced on day.
func ExportFileName(day time.Time) string {
	return exportFilePrefix + day.Format(dateOnlyLayout) + ".csv"
}

func (r *Reporter) clock() time.Time {
	return r.now().In(r.cfg.Location)
}

// deliver archives the CSV and mails it. It reports false when there was no
// one to mail to.
func (r *Reporter) deliver(ctx context.Context, category, fileName string, records []Record, recipients []string, day time.Time) (bool, error) {
	body, err := EncodeCSV(records)
	if err != nil {
		return false, fmt.Errorf("render csv: %w", err)
	}

	r.archive(ctx, category, fileName, body)

	if len(recipients) == 0 {
		r.logger.Warn().Str("file", fileName).Msg("no report recipients provided, skipping email")
		return false, nil
	}

	subject, html, err := notification.ReportEmail(day, len(records))
	if err != nil {
		return false, err
	}
	msg := notification.Message{
		To:       recipients,
		Subject:  subject,
		HTMLBody: html,
		Attachments: []notification.Attachment{
			{FileName: fileName, ContentType: csvContentType, Content: body},
		},
	}
	if err := r.mailer.Send(ctx, msg); err != nil {
		r.logger.Error().Err(err).Str("file", fileName).Msg("failed to send report email")
		return false, fmt.Errorf("send report email: %w", err)
	}
	return true, nil
}

func (r *Reporter) archive(ctx context.Context, category, fileName string, body []byte) {
	if r.store == nil {
		return
	}
	tenant := db.TenantFromContext(ctx)
	meta, err := r.store.Put(ctx, blobstore.Metadata{
		Key:         blobstore.ReportKey(tenant, category, fileName),
		FileName:    fileName,
		ContentType: csvContentType,
		TenantID:    tenant,
		Category:    category,
	}, bytes.NewReader(body))
	if err != nil {
		r.logger.Error().Err(err).Str("file", fileName).Msg("failed to archive report")
		return
	}
	r.logger.Debug().Str("key", meta.Key).Int64("size", meta.Size).Msg("report archived")
}

func validateRecipients(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, apperror.Validation("At least one email recipient is required")
	}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		addr := strings.TrimSpace(raw)
		parsed, err := mail.ParseAddress(addr)
		if err != nil || parsed.Address != addr {
			return nil, apperror.Validation("Each recipient must be a valid email")
		}
		out = append(out, addr)
	}
	return out, nil
}

// ParseRange builds a creation-time range from optional ISO 8601 bounds.
// Unless both bounds are given the zero Range is returned. A date-only end
// bound covers that whole day.
func ParseRange(startDate, endDate string, loc *time.Location) (Range, error) {
	startDate, endDate = strings.TrimSpace(startDate), strings.TrimSpace(endDate)
	var rng Range
	if startDate != "" {
		t, _, err := parseBound(startDate, loc)
		if err != nil {
			return Range{}, apperror.Validation("startDate must be a valid ISO 8601 date string")
		}
		rng.Start = t
	}
	if endDate != "" {
		t, dateOnly, err := parseBound(endDate, loc)
		if err != nil {
			return Range{}, apperror.Validation("endDate must be a valid ISO 8601 date string")
		}
		if dateOnly {
			t = endOfDay(t)
		}
		rng.End = t
	}
	if rng.Start.IsZero() || rng.End.IsZero() {
		return Range{}, nil
	}
	if rng.End.Before(rng.Start) {
		return Range{}, apperror.Validation("endDate must not be before startDate")
	}
	return rng, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(dateOnlyLayout, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, false, err
}

// DayRange covers the calendar day of t in its location.
func DayRange(day time.Time) Range {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Range{Start: start, End: endOfDay(start)}
}

// endOfDay is the last instant Postgres can store on the day of t.
func endOfDay(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start.AddDate(0, 0, 1).Add(-time.Microsecond)
}

func asInternal(message string, err error) error {
	if apperror.KindOf(err) != apperror.KindInternal {
		return err
	}
	return apperror.Internal(message, err)
}
