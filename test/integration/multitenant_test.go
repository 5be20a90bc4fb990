//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/rohanchauhan123/appointment-system/internal/domain/appointment"
	"github.com/rohanchauhan123/appointment-system/internal/domain/user"
	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
	"github.com/rohanchauhan123/appointment-system/pkg/pagination"
)

// Appointments written in one tenant are invisible from another.
func TestMultiTenant_AppointmentIsolation(t *testing.T) {
	tenantA := createTenant(t, "tenanta")
	tenantB := createTenant(t, "tenantb")
	s := newStack()

	var createdID uuid.UUID
	var agentA auth.Actor
	inTenant(t, tenantA, func(ctx context.Context) error {
		_, agentA = seedActors(t, ctx, s)
		a, err := s.appointments.Create(ctx, agentA, input("Isolated Patient", "9111111111"))
		if err != nil {
			t.Fatalf("Create in tenant A: %v", err)
		}
		createdID = a.ID
		return nil
	})

	inTenant(t, tenantB, func(ctx context.Context) error {
		admin, agentB := seedActors(t, ctx, s)
		if _, err := s.appointments.Get(ctx, agentB, createdID); !apperror.Is(err, apperror.KindNotFound) {
			t.Errorf("tenant B read tenant A's appointment: %v", err)
		}
		page, err := s.appointments.List(ctx, agentB, appointment.ListRequest{
			Search: "Isolated",
			Page:   pagination.Params{Page: 1, Limit: 10},
		})
		if err != nil {
			t.Fatalf("List in tenant B: %v", err)
		}
		if page.Total != 0 {
			t.Errorf("tenant B sees %d appointments", page.Total)
		}
		logs, err := s.logs.ListAll(ctx, admin)
		if err != nil {
			t.Fatalf("ListAll in tenant B: %v", err)
		}
		if len(logs) != 0 {
			t.Errorf("tenant B sees %d activity logs", len(logs))
		}
		return nil
	})

	inTenant(t, tenantA, func(ctx context.Context) error {
		if _, err := s.appointments.Get(ctx, agentA, createdID); err != nil {
			t.Errorf("tenant A lost its appointment: %v", err)
		}
		return nil
	})
}

// A user created in one tenant cannot log in to another.
func TestMultiTenant_UserIsolation(t *testing.T) {
	tenantA := createTenant(t, "usersa")
	tenantB := createTenant(t, "usersb")
	s := newStack()

	inTenant(t, tenantA, func(ctx context.Context) error {
		seedActors(t, ctx, s)
		return nil
	})
	inTenant(t, tenantB, func(ctx context.Context) error {
		_, err := s.users.Login(ctx, tenantB, user.LoginRequest{Email: "smith@example.com", Password: "secret1"})
		if !apperror.Is(err, apperror.KindAuthentication) {
			t.Errorf("login across tenants: expected authentication error, got %v", err)
		}
		return nil
	})
	inTenant(t, tenantA, func(ctx context.Context) error {
		resp, err := s.users.Login(ctx, tenantA, user.LoginRequest{Email: "smith@example.com", Password: "secret1"})
		if err != nil {
			t.Fatalf("Login in tenant A: %v", err)
		}
		if resp.AccessToken == "" {
			t.Error("empty token")
		}
		return nil
	})
}
