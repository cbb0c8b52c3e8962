package dispatch

import (
	"context"
	"errors"
	"testing"

	"dealflow/auth"
	"dealflow/deal"
)

func TestListDeals_DeniesUnknownRole(t *testing.T) {
	// Role gating short-circuits before any query runs, so no pool is
	// needed for the denial paths.
	svc := NewService(nil, nil, nil)

	for _, role := range []auth.Role{"", "contractor", "superuser"} {
		actor := auth.Actor{UserID: "u", Role: auth.Role(role), CompanyID: "co-1"}
		_, err := svc.ListDeals(context.Background(), actor)
		if !errors.Is(err, deal.ErrForbidden) {
			t.Errorf("role %q: err = %v, want ErrForbidden", role, err)
		}
	}
}

func TestGetDeal_DeniesUnknownRole(t *testing.T) {
	svc := NewService(nil, nil, nil)
	actor := auth.Actor{UserID: "u", Role: auth.Role("contractor"), CompanyID: "co-1"}

	_, err := svc.GetDeal(context.Background(), actor, "deal-1")
	if !errors.Is(err, deal.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
