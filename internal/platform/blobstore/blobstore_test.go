package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
)

func seedReport(t *testing.T, store Store, tenant, category, fileName, content string) *Metadata {
	t.Helper()
	meta, err := store.Put(context.Background(), Metadata{
		FileName:    fileName,
		ContentType: "text/csv",
		TenantID:    tenant,
		Category:    category,
	}, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedReport: %v", err)
	}
	return meta
}

func TestInMemoryStore_PutGet(t *testing.T) {
	store := NewInMemoryStore()
	meta := seedReport(t, store, "acme", CategoryDailyReport, "appointments_report_2024-03-01.csv", "ID,Patient Name\n")

	if meta.Key != "reports/acme/daily-report/appointments_report_2024-03-01.csv" {
		t.Errorf("unexpected key %s", meta.Key)
	}
	if meta.Size != int64(len("ID,Patient Name\n")) {
		t.Errorf("unexpected size %d", meta.Size)
	}
	if len(meta.Hash) != 64 {
		t.Errorf("expected sha256 hex hash, got %q", meta.Hash)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	rc, got, err := store.Get(context.Background(), meta.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "ID,Patient Name\n" {
		t.Errorf("unexpected content %q", body)
	}
	if got.FileName != meta.FileName {
		t.Errorf("file name = %s, want %s", got.FileName, meta.FileName)
	}
}

func TestInMemoryStore_PutOverwrites(t *testing.T) {
	store := NewInMemoryStore()
	seedReport(t, store, "acme", CategoryExport, "a.csv", "first")
	meta := seedReport(t, store, "acme", CategoryExport, "a.csv", "second")

	rc, _, err := store.Get(context.Background(), meta.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "second" {
		t.Errorf("expected overwrite, got %q", body)
	}
}

func TestInMemoryStore_Validation(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.Put(context.Background(), Metadata{}, strings.NewReader("x")); !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
	if _, err := store.Put(context.Background(), Metadata{Key: "reports/../etc", FileName: "x"}, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestInMemoryStore_ListByPrefix(t *testing.T) {
	store := NewInMemoryStore()
	seedReport(t, store, "acme", CategoryDailyReport, "b.csv", "x")
	seedReport(t, store, "acme", CategoryExport, "a.csv", "x")
	seedReport(t, store, "other", CategoryExport, "c.csv", "x")

	items, err := store.List(context.Background(), TenantPrefix("acme"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items for acme, got %d", len(items))
	}
	if items[0].Key > items[1].Key {
		t.Error("expected items sorted by key")
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	meta := seedReport(t, store, "acme", CategoryExport, "a.csv", "x")

	if err := store.Delete(context.Background(), meta.Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(context.Background(), meta.Key); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), meta.Key); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func newAdminContext(method, target, tenant string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), db.TenantIDKey, tenant)
	ctx = context.WithValue(ctx, auth.UserRoleKey, auth.RoleAdmin)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_List(t *testing.T) {
	store := NewInMemoryStore()
	seedReport(t, store, "acme", CategoryDailyReport, "r.csv", "x")
	seedReport(t, store, "acme", CategoryExport, "e.csv", "x")
	seedReport(t, store, "other", CategoryExport, "o.csv", "x")
	h := NewHandler(store)

	c, rec := newAdminContext(http.MethodGet, "/api/v1/admin/reports?category=export", "acme")
	if err := h.handleList(c); err != nil {
		t.Fatalf("handleList: %v", err)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].FileName != "e.csv" {
		t.Errorf("unexpected list response: %+v", resp)
	}
}

func TestHandler_ListRejectsUnknownCategory(t *testing.T) {
	h := NewHandler(NewInMemoryStore())
	c, _ := newAdminContext(http.MethodGet, "/api/v1/admin/reports?category=secrets", "acme")
	err := h.handleList(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Download(t *testing.T) {
	store := NewInMemoryStore()
	seedReport(t, store, "acme", CategoryExport, "e.csv", "ID\n1\n")
	h := NewHandler(store)

	c, rec := newAdminContext(http.MethodGet, "/", "acme")
	c.SetParamNames("category", "file")
	c.SetParamValues(CategoryExport, "e.csv")
	if err := h.handleDownload(c); err != nil {
		t.Fatalf("handleDownload: %v", err)
	}
	if rec.Body.String() != "ID\n1\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="e.csv"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
}

func TestHandler_DownloadIsTenantScoped(t *testing.T) {
	store := NewInMemoryStore()
	seedReport(t, store, "other", CategoryExport, "e.csv", "secret")
	h := NewHandler(store)

	c, _ := newAdminContext(http.MethodGet, "/", "acme")
	c.SetParamNames("category", "file")
	c.SetParamValues(CategoryExport, "e.csv")
	err := h.handleDownload(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %v", err)
	}
}
